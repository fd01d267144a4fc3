package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "toolsync.ai/internal/persistence/log"
	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/tuning"
	"toolsync.ai/internal/sim/world"
)

func newWorld(t *testing.T) *world.World {
	t.Helper()
	tune := tuning.Defaults()
	tune.OwnershipFailPermille = 500
	tune.Tools[0].DroppedTimeoutS = 0.5
	w, err := world.New(world.ConfigFromTuning("world_1", tune))
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func worlds(t *testing.T) func() (*world.World, error) {
	return func() (*world.World, error) { return newWorld(t), nil }
}

// record drives a short session and returns the events dir.
func record(t *testing.T, mutate func(*world.TickLogEntry)) string {
	t.Helper()
	dir := t.TempDir()
	recordInto(t, dir, mutate)
	return filepath.Join(dir, "events")
}

// recordInto logs one server run under dir, as a process start would.
func recordInto(t *testing.T, dir string, mutate func(*world.TickLogEntry)) {
	t.Helper()
	w := newWorld(t)
	tl := persistlog.NewTickLogger(dir)
	if mutate == nil {
		w.SetTickLogger(tl)
	} else {
		w.SetTickLogger(mutatingLogger{next: tl, mutate: mutate})
	}

	in := func(input string) []world.InputEnvelope {
		return []world.InputEnvelope{{ActorID: "P1", ToolID: "blaster", Input: input}}
	}
	w.StepOnce([]world.JoinRequest{{Name: "alice"}, {Name: "bob"}}, nil, nil)
	w.StepOnce(nil, nil, in(protocol.InputPickup))
	w.StepOnce(nil, nil, in(protocol.InputUseDown))
	w.StepOnce(nil, nil, in(protocol.InputUseUp))
	w.StepOnce(nil, nil, []world.InputEnvelope{{ActorID: "P2", ToolID: "blaster", Input: protocol.InputPickup}})
	for i := 0; i < 30; i++ {
		w.StepOnce(nil, nil, nil)
	}
	w.StepOnce(nil, nil, in(protocol.InputDrop))
	for i := 0; i < 20; i++ {
		w.StepOnce(nil, nil, nil)
	}
	w.StepOnce(nil, []string{"P2"}, nil)

	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type mutatingLogger struct {
	next   world.TickLogger
	mutate func(*world.TickLogEntry)
}

func (m mutatingLogger) WriteTick(e world.TickLogEntry) error {
	m.mutate(&e)
	return m.next.WriteTick(e)
}

func TestReplay_ReproducesDigestsAndCounts(t *testing.T) {
	dir := record(t, nil)
	files, err := persistlog.ListFiles(dir, "events")
	if err != nil || len(files) == 0 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}

	s, err := replay(worlds(t), files, 0, true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if s.Checked != 57 {
		t.Fatalf("checked=%d want 57", s.Checked)
	}
	c := s.Tools["blaster"]
	if c == nil {
		t.Fatalf("no counters for blaster: %+v", s.Tools)
	}
	if c.Pickups != 1 || c.Drops != 1 || c.Fires != 1 || c.Respawns != 1 || c.Rejected != 1 {
		t.Fatalf("unexpected counters %+v", *c)
	}
}

func TestReplay_StopsAtTick(t *testing.T) {
	dir := record(t, nil)
	files, _ := persistlog.ListFiles(dir, "events")

	s, err := replay(worlds(t), files, 9, true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if s.Checked != 10 {
		t.Fatalf("checked=%d want 10", s.Checked)
	}
}

func TestReplay_DetectsDigestMismatch(t *testing.T) {
	dir := record(t, func(e *world.TickLogEntry) {
		if e.Tick == 3 {
			e.Digest = "bogus"
		}
	})
	files, _ := persistlog.ListFiles(dir, "events")

	_, err := replay(worlds(t), files, 0, true)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 3") {
		t.Fatalf("expected digest mismatch at tick 3, got %v", err)
	}
	if _, err := replay(worlds(t), files, 0, false); err != nil {
		t.Fatalf("unverified replay: %v", err)
	}
}

func TestReplay_RestartStartsNewRun(t *testing.T) {
	dir := t.TempDir()
	recordInto(t, dir, nil)
	recordInto(t, dir, nil)
	files, err := persistlog.ListFiles(filepath.Join(dir, "events"), "events")
	if err != nil || len(files) == 0 {
		t.Fatalf("ListFiles: %v %v", files, err)
	}

	s, err := replay(worlds(t), files, 0, true)
	if err != nil {
		t.Fatalf("replay over two runs: %v", err)
	}
	if s.Runs != 2 || s.Checked != 114 {
		t.Fatalf("runs=%d checked=%d want 2 and 114", s.Runs, s.Checked)
	}
	c := s.Tools["blaster"]
	if c == nil || c.Pickups != 2 || c.Fires != 2 || c.Respawns != 2 || c.Rejected != 2 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestReplay_GapInsideRunIsReported(t *testing.T) {
	dir := record(t, func(e *world.TickLogEntry) {
		if e.Tick == 5 {
			e.Tick = 7
		}
	})
	files, _ := persistlog.ListFiles(dir, "events")

	_, err := replay(worlds(t), files, 0, false)
	if err == nil || !strings.Contains(err.Error(), "run 1: tick mismatch: want=5 got=7") {
		t.Fatalf("expected tick mismatch in run 1, got %v", err)
	}
}
