package pickup

import (
	"testing"
	"time"

	"toolsync.ai/internal/sim/timer"
)

const alice ActorID = "P1"

type fakeTarget struct {
	q       *timer.Queue
	fires   []time.Duration
	ups     int
	pickups int
	drops   int
}

func (f *fakeTarget) ProxyOnPickup()  { f.pickups++ }
func (f *fakeTarget) ProxyOnDrop()    { f.drops++ }
func (f *fakeTarget) ProxyOnUseDown() { f.fires = append(f.fires, f.q.Now()) }
func (f *fakeTarget) ProxyOnUseUp()   { f.ups++ }

type fakeHost struct {
	holder      ActorID
	owner       ActorID
	failLeft    int
	requests    []time.Duration
	q           *timer.Queue
	respawns    []time.Duration
	broadcasts  int
	drops       []ActorID
	pickupable  bool
	indicatorOn bool
	indicated   int
}

func (h *fakeHost) RequestOwnership(actor ActorID) {
	h.requests = append(h.requests, h.q.Now())
	if h.failLeft != 0 {
		if h.failLeft > 0 {
			h.failLeft--
		}
		return
	}
	h.owner = actor
}
func (h *fakeHost) IsOwner(actor ActorID) bool { return actor.Valid() && h.owner == actor }
func (h *fakeHost) CurrentHolder() ActorID     { return h.holder }
func (h *fakeHost) Drop(actor ActorID) {
	h.drops = append(h.drops, actor)
	h.holder = ""
}
func (h *fakeHost) SetPickupable(on bool) { h.pickupable = on }
func (h *fakeHost) Respawn()              { h.respawns = append(h.respawns, h.q.Now()) }
func (h *fakeHost) BroadcastRespawn()     { h.broadcasts++ }
func (h *fakeHost) SetActive(on bool) {
	h.indicatorOn = on
	h.indicated++
}

type rig struct {
	q      *timer.Queue
	target *fakeTarget
	host   *fakeHost
	p      *Proxy
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	q := timer.NewQueue()
	r := &rig{
		q:      q,
		target: &fakeTarget{q: q},
		host:   &fakeHost{q: q, holder: alice},
	}
	p, err := New(cfg, Deps{
		Target:    r.target,
		Ownership: r.host,
		Pickup:    r.host,
		Respawner: r.host,
		Scheduler: q,
		Indicator: r.host,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.p = p
	return r
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (r *rig) at(d time.Duration) { r.q.Advance(d) }

func fireConfig(cooldown, window time.Duration, auto bool) Config {
	return Config{
		Cooldown:      cooldown,
		QueueWindow:   window,
		FullyAutoFire: auto,
	}
}

func assertFires(t *testing.T, got []time.Duration, want ...time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("fires: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fires: got %v want %v", got, want)
		}
	}
}
