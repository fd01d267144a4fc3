package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"toolsync.ai/internal/sim/tuning"
	"toolsync.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary copy of the tick and audit logs.
// Writes are queued and applied by a single goroutine; the JSONL logs remain
// the source of truth, so a full queue drops rows instead of stalling the world.
//
// Every OpenSQLite starts a new run: tick numbers restart at 0 with each
// server process, so ticks, events and audits are keyed by (run, tick).
type SQLiteIndex struct {
	db  *sql.DB
	run int64

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropAudit atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
)

type req struct {
	kind  reqKind
	tick  world.TickLogEntry
	audit world.AuditEntry
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropAuditTotal uint64 `json:"drop_audit_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	run, err := startRun(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite run: %w", err)
	}

	s := &SQLiteIndex{db: db, run: run, ch: make(chan req, 65536)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func startRun(db *sql.DB) (int64, error) {
	res, err := db.Exec(`INSERT INTO runs(started_at) VALUES(?)`, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	run, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('current_run',?)`, fmt.Sprint(run)); err != nil {
		return 0, err
	}
	return run, nil
}

// Run is the id of the run this index writes rows for.
func (s *SQLiteIndex) Run() int64 {
	if s == nil {
		return 0
	}
	return s.run
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// dropPreRunTables discards tick tables written before rows carried a run id.
// The index is rebuilt from live traffic; the JSONL logs keep the history.
func dropPreRunTables(db *sql.DB) error {
	var cols, withRun int
	if err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(name='run'),0) FROM pragma_table_info('ticks')`).Scan(&cols, &withRun); err != nil {
		return err
	}
	if cols == 0 || withRun > 0 {
		return nil
	}
	for _, t := range []string{"ticks", "events", "audits"} {
		if _, err := db.Exec(`DROP TABLE IF EXISTS ` + t); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	if err := dropPreRunTables(db); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tools (
			id TEXT PRIMARY KEY,
			ensure_ownership INTEGER NOT NULL,
			dropped_respawn INTEGER NOT NULL,
			dropped_timeout_ms INTEGER NOT NULL,
			fully_auto_fire INTEGER NOT NULL,
			cooldown_ms INTEGER NOT NULL,
			queue_window_ms INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			inputs INTEGER NOT NULL,
			events INTEGER NOT NULL,
			PRIMARY KEY (run, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			type TEXT NOT NULL,
			tool_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_tool_type ON events(tool_id, type, run, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor_tick ON events(actor, run, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			tool_id TEXT NOT NULL,
			reason TEXT,
			PRIMARY KEY (run, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_tool_tick ON audits(tool_id, run, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropAuditTotal: s.dropAudit.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// UpsertTools records the tuning the server started with: one row per tool,
// plus the world id and a digest of the whole tuning document in meta.
func (s *SQLiteIndex) UpsertTools(worldID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	meta := [][2]string{
		{"schema_version", "2"},
		{"world_id", worldID},
		{"protocol_version", tune.ProtocolVersion},
		{"tuning_digest", hex.EncodeToString(sum[:])},
	}
	for _, kv := range meta {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO tools(id,ensure_ownership,dropped_respawn,dropped_timeout_ms,fully_auto_fire,cooldown_ms,queue_window_ms,updated_at) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range tune.Tools {
		c := t.Config()
		if _, err := stmt.Exec(
			t.ID,
			c.EnsureOwnership,
			c.DroppedRespawn,
			c.DroppedTimeout.Milliseconds(),
			c.FullyAutoFire,
			c.Cooldown.Milliseconds(),
			c.QueueWindow.Milliseconds(),
			now,
		); err != nil {
			return fmt.Errorf("tool %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// CountEvents counts indexed events of one type for a tool across all runs.
func (s *SQLiteIndex) CountEvents(ctx context.Context, toolID, typ string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE tool_id=? AND type=?`, toolID, typ).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run,tick,at_ms,digest,joins,leaves,inputs,events) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run,tick,seq,at_ms,type,tool_id,actor,code,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(run,tick,seq,at_ms,actor,action,tool_id,reason) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertAudit} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					s.run, int64(e.Tick), e.AtMs, e.Digest,
					len(e.Joins), len(e.Leaves), len(e.Inputs), len(e.Events),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, ev := range e.Events {
				if insertEvent == nil {
					break
				}
				raw, _ := json.Marshal(ev)
				if _, err := tx.Stmt(insertEvent).Exec(
					s.run, int64(e.Tick), i, ev.AtMs, ev.Type, ev.ToolID, ev.Actor, ev.Code, string(raw),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					s.run, int64(a.Tick), seq, a.AtMs, a.Actor, a.Action, a.ToolID, a.Reason,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
