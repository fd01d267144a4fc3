package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/tuning"
	"toolsync.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 {
		t.Fatalf("drop stats mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(world.TickLogEntry{}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if err := s.UpsertTools("w", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTools: %v", err)
	}
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestSQLiteIndex_WritesTicksEventsAudits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.UpsertTools("world_1", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTools: %v", err)
	}

	fire := protocol.Event{Type: protocol.EventFire, ToolID: "blaster", Actor: "P1", AtMs: 100}
	_ = s.WriteTick(world.TickLogEntry{Tick: 2, AtMs: 150, Digest: "a", Events: []protocol.Event{fire}})
	_ = s.WriteTick(world.TickLogEntry{Tick: 8, AtMs: 450, Digest: "b", Events: []protocol.Event{fire, {
		Type: protocol.EventRejected, ToolID: "blaster", Actor: "P2", Code: protocol.ErrHeld,
	}}})
	_ = s.WriteAudit(world.AuditEntry{Tick: 8, Actor: "P1", Action: "OWNER", ToolID: "blaster"})
	_ = s.WriteAudit(world.AuditEntry{Tick: 8, Action: "RESPAWN", ToolID: "blaster"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: Close must have committed everything queued.
	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	n, err := s.CountEvents(ctx, "blaster", protocol.EventFire)
	if err != nil || n != 2 {
		t.Fatalf("fires=%d err=%v, want 2", n, err)
	}
	n, err = s.CountEvents(ctx, "blaster", protocol.EventRejected)
	if err != nil || n != 1 {
		t.Fatalf("rejections=%d err=%v, want 1", n, err)
	}

	var ticks, audits int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&ticks); err != nil || ticks != 2 {
		t.Fatalf("ticks=%d err=%v", ticks, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audits WHERE tick=8`).Scan(&audits); err != nil || audits != 2 {
		t.Fatalf("audits=%d err=%v", audits, err)
	}

	var cooldownMs int64
	var ensure bool
	if err := s.db.QueryRow(`SELECT cooldown_ms, ensure_ownership FROM tools WHERE id='blaster'`).Scan(&cooldownMs, &ensure); err != nil {
		t.Fatalf("tools row: %v", err)
	}
	if cooldownMs != 300 || !ensure {
		t.Fatalf("tools row mismatch: cooldown=%d ensure=%t", cooldownMs, ensure)
	}

	var worldID string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key='world_id'`).Scan(&worldID); err != nil && err != sql.ErrNoRows {
		t.Fatalf("meta: %v", err)
	}
	if worldID != "world_1" {
		t.Fatalf("world_id=%q", worldID)
	}
}

func TestSQLiteIndex_RestartKeepsEarlierRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	fire := protocol.Event{Type: protocol.EventFire, ToolID: "blaster", Actor: "P1"}

	// Each process restarts at tick 0 and writes the same (tick, seq) keys.
	for want := int64(1); want <= 2; want++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		if s.Run() != want {
			t.Fatalf("run=%d want %d", s.Run(), want)
		}
		_ = s.WriteTick(world.TickLogEntry{Tick: 0, Digest: "d0", Events: []protocol.Event{fire}})
		_ = s.WriteAudit(world.AuditEntry{Tick: 0, Action: "RESPAWN", ToolID: "blaster"})
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	n, err := s.CountEvents(context.Background(), "blaster", protocol.EventFire)
	if err != nil || n != 2 {
		t.Fatalf("fires=%d err=%v, want 2", n, err)
	}
	var ticks, audits int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE tick=0`).Scan(&ticks); err != nil || ticks != 2 {
		t.Fatalf("ticks=%d err=%v, want 2", ticks, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audits`).Scan(&audits); err != nil || audits != 2 {
		t.Fatalf("audits=%d err=%v, want 2", audits, err)
	}
	var current string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key='current_run'`).Scan(&current); err != nil || current != "3" {
		t.Fatalf("current_run=%q err=%v, want 3", current, err)
	}
}

func TestSQLiteIndex_DropsPreRunTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE ticks (tick INTEGER PRIMARY KEY, digest TEXT)`); err != nil {
		t.Fatalf("legacy schema: %v", err)
	}
	_ = db.Close()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite over legacy schema: %v", err)
	}
	_ = s.WriteTick(world.TickLogEntry{Tick: 0, Digest: "d0"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE run=1`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("ticks=%d err=%v, want 1", n, err)
	}
}
