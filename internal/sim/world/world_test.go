package world

import (
	"testing"
	"time"

	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/pickup"
)

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memAuditLog struct{ entries []AuditEntry }

func (m *memAuditLog) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memTickLog) events(typ string) []protocol.Event {
	var out []protocol.Event
	for _, e := range m.entries {
		for _, ev := range e.Events {
			if ev.Type == typ {
				out = append(out, ev)
			}
		}
	}
	return out
}

type testWorld struct {
	t     *testing.T
	w     *World
	ticks *memTickLog
	audit *memAuditLog
}

func newTestWorld(t *testing.T, cfg WorldConfig) *testWorld {
	t.Helper()
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = 20
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tw := &testWorld{t: t, w: w, ticks: &memTickLog{}, audit: &memAuditLog{}}
	w.SetTickLogger(tw.ticks)
	w.SetAuditLogger(tw.audit)
	return tw
}

func blaster(cfg pickup.Config) WorldConfig {
	return WorldConfig{Tools: []ToolConfig{{ID: "blaster", Proxy: cfg}}}
}

func (tw *testWorld) join(name string) string {
	tw.t.Helper()
	resp := make(chan JoinResponse, 1)
	tw.w.StepOnce([]JoinRequest{{Name: name, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.ActorID == "" {
		tw.t.Fatalf("join %s: empty actor id", name)
	}
	return r.Welcome.ActorID
}

func (tw *testWorld) input(actorID, input string) {
	tw.w.StepOnce(nil, nil, []InputEnvelope{{ActorID: actorID, ToolID: "blaster", Input: input}})
}

// until steps empty ticks until the clock has reached at.
func (tw *testWorld) until(at time.Duration) {
	for tw.w.clock.Now() < at {
		tw.w.StepOnce(nil, nil, nil)
	}
}

func atMs(evs []protocol.Event) []int64 {
	out := make([]int64, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.AtMs)
	}
	return out
}

func sameInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWorld_QueuedFireAcrossTicks(t *testing.T) {
	cfg := pickup.Config{Cooldown: 300 * time.Millisecond, QueueWindow: 150 * time.Millisecond}
	tw := newTestWorld(t, blaster(cfg))

	p1 := tw.join("alice")
	tw.input(p1, protocol.InputPickup)
	// t=100: fires; window opens at 250, cycle ends at 400.
	tw.input(p1, protocol.InputUseDown)
	tw.input(p1, protocol.InputUseUp)
	tw.until(300 * time.Millisecond)
	// t=300: inside the window, so it queues.
	tw.input(p1, protocol.InputUseDown)
	tw.until(time.Second)

	got := atMs(tw.ticks.events(protocol.EventFire))
	if !sameInts(got, []int64{100, 400}) {
		t.Fatalf("fires at %v, want [100 400]", got)
	}
	m := tw.w.Metrics()
	if len(m.Tools) != 1 || m.Tools[0].Fires != 2 || !m.Tools[0].Cooled {
		t.Fatalf("unexpected metrics: %+v", m.Tools)
	}
}

func TestWorld_DroppedToolRespawns(t *testing.T) {
	cfg := pickup.Config{DroppedRespawn: true, DroppedTimeout: time.Second}
	tw := newTestWorld(t, blaster(cfg))

	p1 := tw.join("alice")
	tw.input(p1, protocol.InputPickup)
	tw.input(p1, protocol.InputDrop) // t=100
	tw.until(3 * time.Second)

	got := atMs(tw.ticks.events(protocol.EventRespawn))
	if !sameInts(got, []int64{1100}) {
		t.Fatalf("respawns at %v, want [1100]", got)
	}
	if m := tw.w.Metrics(); !m.Tools[0].AtOrigin || m.Tools[0].Respawns != 1 {
		t.Fatalf("tool not back at origin: %+v", m.Tools[0])
	}
}

func TestWorld_RepickupCancelsRespawn(t *testing.T) {
	cfg := pickup.Config{DroppedRespawn: true, DroppedTimeout: time.Second}
	tw := newTestWorld(t, blaster(cfg))

	p1 := tw.join("alice")
	p2 := tw.join("bob")
	tw.input(p1, protocol.InputPickup)
	tw.input(p1, protocol.InputDrop)
	tw.until(500 * time.Millisecond)
	tw.input(p2, protocol.InputPickup)
	tw.until(5 * time.Second)

	if n := len(tw.ticks.events(protocol.EventRespawn)); n != 0 {
		t.Fatalf("expected no respawn, got %d", n)
	}
	if m := tw.w.Metrics(); m.Tools[0].Holder != p2 {
		t.Fatalf("expected %s to hold, got %+v", p2, m.Tools[0])
	}
}

func TestWorld_OwnershipRetriesWhileHeld(t *testing.T) {
	cfg := WorldConfig{
		OwnershipFailPermille: 1000,
		Tools:                 []ToolConfig{{ID: "blaster", Proxy: pickup.Config{EnsureOwnership: true}}},
	}
	tw := newTestWorld(t, cfg)

	p1 := tw.join("alice")
	tw.input(p1, protocol.InputPickup)
	tw.until(5 * time.Second)
	if m := tw.w.Metrics(); m.PendingTimers != 1 || m.Tools[0].Owner != "" {
		t.Fatalf("expected one pending recheck and no owner: %+v", m)
	}

	tw.input(p1, protocol.InputDrop)
	tw.until(8 * time.Second)
	if m := tw.w.Metrics(); m.PendingTimers != 0 {
		t.Fatalf("recheck should stop after release: %+v", m)
	}
	if n := len(tw.ticks.events(protocol.EventOwner)); n != 0 {
		t.Fatalf("ownership should never stick, got %d OWNER events", n)
	}
}

func TestWorld_OwnershipTransfersOnPickup(t *testing.T) {
	tw := newTestWorld(t, blaster(pickup.Config{EnsureOwnership: true}))

	p1 := tw.join("alice")
	tw.input(p1, protocol.InputPickup)
	tw.until(3 * time.Second)

	owners := tw.ticks.events(protocol.EventOwner)
	if len(owners) != 1 || owners[0].Actor != p1 {
		t.Fatalf("expected one OWNER event for %s, got %+v", p1, owners)
	}
	if tw.w.Metrics().PendingTimers != 0 {
		t.Fatalf("recheck should stop once owner")
	}
	found := false
	for _, a := range tw.audit.entries {
		if a.Action == "OWNER" && a.Actor == p1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing OWNER audit entry")
	}
}

func TestWorld_Rejections(t *testing.T) {
	tw := newTestWorld(t, blaster(pickup.Config{}))

	p1 := tw.join("alice")
	p2 := tw.join("bob")
	tw.input(p1, protocol.InputPickup)
	tw.input(p2, protocol.InputPickup)
	tw.input(p2, protocol.InputUseDown)
	tw.input(p2, "JUMP")
	tw.w.StepOnce(nil, nil, []InputEnvelope{{ActorID: p1, ToolID: "wand", Input: protocol.InputPickup}})
	tw.w.StepOnce(nil, nil, []InputEnvelope{{ActorID: "P99", ToolID: "blaster", Input: protocol.InputPickup}})
	tw.input(p1, protocol.InputDrop)
	tw.w.StepOnce(nil, nil, []InputEnvelope{{ToolID: "blaster", Input: InputDisableInteract}})
	tw.input(p2, protocol.InputPickup)

	var codes []string
	for _, ev := range tw.ticks.events(protocol.EventRejected) {
		codes = append(codes, ev.Code)
	}
	want := []string{
		protocol.ErrHeld,
		protocol.ErrNotHolder,
		protocol.ErrBadInput,
		protocol.ErrNoTool,
		protocol.ErrUnknownActor,
		protocol.ErrNotPickupable,
	}
	if len(codes) != len(want) {
		t.Fatalf("codes %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes %v, want %v", codes, want)
		}
	}
}

func TestWorld_DropRespawnOnlyHolderDrops(t *testing.T) {
	tw := newTestWorld(t, blaster(pickup.Config{}))

	p1 := tw.join("alice")
	p2 := tw.join("bob")
	tw.input(p1, protocol.InputPickup)
	tw.input(p2, protocol.InputDropRespawn)
	tw.until(time.Second)
	if m := tw.w.Metrics(); m.Tools[0].Holder != p1 || m.Tools[0].Respawns != 0 {
		t.Fatalf("non-holder must not drop or respawn a held tool: %+v", m.Tools[0])
	}

	tw.input(p1, protocol.InputDropRespawn)
	drops := tw.ticks.events(protocol.EventDrop)
	respawns := tw.ticks.events(protocol.EventRespawn)
	if len(drops) != 1 || len(respawns) != 1 || drops[0].Tick != respawns[0].Tick {
		t.Fatalf("expected drop and respawn in the same tick: drops=%+v respawns=%+v", drops, respawns)
	}
}

func TestWorld_LeaveReleasesHeldTrigger(t *testing.T) {
	tw := newTestWorld(t, blaster(pickup.Config{}))

	p1 := tw.join("alice")
	tw.input(p1, protocol.InputPickup)
	tw.input(p1, protocol.InputUseDown)
	tw.w.StepOnce(nil, []string{p1}, nil)

	if n := len(tw.ticks.events(protocol.EventUseUp)); n != 1 {
		t.Fatalf("expected USE_UP on leave, got %d", n)
	}
	if n := len(tw.ticks.events(protocol.EventDrop)); n != 1 {
		t.Fatalf("expected DROP on leave, got %d", n)
	}
	if m := tw.w.Metrics(); m.Actors != 0 || m.Tools[0].Holder != "" {
		t.Fatalf("unexpected state after leave: %+v", m)
	}
}

func TestWorld_DeterministicDigests(t *testing.T) {
	cfg := WorldConfig{
		Seed:                  42,
		OwnershipFailPermille: 500,
		Tools: []ToolConfig{
			{ID: "blaster", Proxy: pickup.DefaultConfig()},
			{ID: "hose", Proxy: pickup.Config{FullyAutoFire: true, Cooldown: 100 * time.Millisecond, QueueWindow: 50 * time.Millisecond}},
		},
	}
	script := func(w *World) []string {
		var digests []string
		step := func(joins []JoinRequest, inputs ...InputEnvelope) {
			_, d := w.StepOnce(joins, nil, inputs)
			digests = append(digests, d)
		}
		step([]JoinRequest{{Name: "a"}, {Name: "b"}})
		step(nil, InputEnvelope{ActorID: "P1", ToolID: "blaster", Input: protocol.InputPickup},
			InputEnvelope{ActorID: "P2", ToolID: "hose", Input: protocol.InputPickup})
		step(nil, InputEnvelope{ActorID: "P2", ToolID: "hose", Input: protocol.InputUseDown})
		for i := 0; i < 60; i++ {
			if i%7 == 0 {
				step(nil, InputEnvelope{ActorID: "P1", ToolID: "blaster", Input: protocol.InputUseDown})
				continue
			}
			if i%7 == 1 {
				step(nil, InputEnvelope{ActorID: "P1", ToolID: "blaster", Input: protocol.InputUseUp})
				continue
			}
			step(nil)
		}
		step(nil, InputEnvelope{ActorID: "P1", ToolID: "blaster", Input: protocol.InputDrop})
		for i := 0; i < 40; i++ {
			step(nil)
		}
		return digests
	}

	w1, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w2, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d1, d2 := script(w1), script(w2)
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("digest mismatch at step %d", i)
		}
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(WorldConfig{}); err == nil {
		t.Fatalf("expected error without tools")
	}
	dup := WorldConfig{Tools: []ToolConfig{{ID: "a"}, {ID: "a"}}}
	if _, err := New(dup); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	neg := WorldConfig{Tools: []ToolConfig{{ID: "a", Proxy: pickup.Config{Cooldown: -time.Second}}}}
	if _, err := New(neg); err == nil {
		t.Fatalf("expected negative cooldown error")
	}
}
