package world

import (
	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/pickup"
)

// tool is the host side of one pickup: it owns holder/owner/pose state and
// implements every collaborator interface its proxy drives.
type tool struct {
	w     *World
	id    string
	proxy *pickup.Proxy

	holder     pickup.ActorID
	lastHolder pickup.ActorID
	owner      pickup.ActorID
	pickupable bool
	atOrigin   bool
	indicator  bool

	fires        uint64
	respawns     uint64
	ownerChanges uint64
}

func (t *tool) grab(a pickup.ActorID) {
	t.holder = a
	t.lastHolder = a
	t.atOrigin = false
	t.proxy.OnPickup(a)
}

// release opens the hand: a held trigger is let go before the drop.
func (t *tool) release(a pickup.ActorID) {
	if t.proxy.State().UseLatched {
		t.proxy.OnUseUp(a)
	}
	t.holder = ""
	t.lastHolder = a
	t.proxy.OnDrop(a)
}

func (t *tool) actorID() string {
	if t.holder.Valid() {
		return string(t.holder)
	}
	return string(t.lastHolder)
}

func (t *tool) info() protocol.ToolInfo {
	cfg := t.proxy.Config()
	return protocol.ToolInfo{
		ID:               t.id,
		EnsureOwnership:  cfg.EnsureOwnership,
		DroppedRespawn:   cfg.DroppedRespawn,
		DroppedTimeoutMs: cfg.DroppedTimeout.Milliseconds(),
		FullyAutoFire:    cfg.FullyAutoFire,
		CooldownMs:       cfg.Cooldown.Milliseconds(),
		QueueWindowMs:    cfg.QueueWindow.Milliseconds(),
		Holder:           string(t.holder),
		Owner:            string(t.owner),
		Pickupable:       t.pickupable,
	}
}

// pickup.SyncTarget

func (t *tool) ProxyOnPickup() {
	t.w.emit(protocol.Event{Type: protocol.EventPickup, ToolID: t.id, Actor: t.actorID()})
}

func (t *tool) ProxyOnDrop() {
	t.w.emit(protocol.Event{Type: protocol.EventDrop, ToolID: t.id, Actor: t.actorID()})
}

func (t *tool) ProxyOnUseDown() {
	t.fires++
	t.w.emit(protocol.Event{Type: protocol.EventFire, ToolID: t.id, Actor: t.actorID()})
}

func (t *tool) ProxyOnUseUp() {
	t.w.emit(protocol.Event{Type: protocol.EventUseUp, ToolID: t.id, Actor: t.actorID()})
}

// pickup.Ownership

func (t *tool) RequestOwnership(a pickup.ActorID) {
	if !a.Valid() {
		return
	}
	if _, ok := t.w.actors[string(a)]; !ok {
		return
	}
	if p := t.w.cfg.OwnershipFailPermille; p > 0 && t.w.rng.Intn(1000) < p {
		// Lost in transit; nobody is told.
		return
	}
	if t.owner == a {
		return
	}
	t.owner = a
	t.ownerChanges++
	t.w.emit(protocol.Event{Type: protocol.EventOwner, ToolID: t.id, Actor: string(a)})
	t.w.audit("OWNER", string(a), t.id, "")
}

func (t *tool) IsOwner(a pickup.ActorID) bool {
	return a.Valid() && t.owner == a
}

// pickup.Pickup

func (t *tool) CurrentHolder() pickup.ActorID { return t.holder }

func (t *tool) Drop(a pickup.ActorID) {
	if a.Valid() && t.holder == a {
		t.release(a)
	}
}

func (t *tool) SetPickupable(on bool) {
	if t.pickupable == on {
		return
	}
	t.pickupable = on
	t.w.emit(protocol.Event{Type: protocol.EventPickupable, ToolID: t.id, On: boolPtr(on)})
}

// pickup.Respawner

// Respawn returns the tool to its origin. A held tool ignores it.
func (t *tool) Respawn() {
	if t.holder.Valid() {
		t.w.audit("RESPAWN", string(t.holder), t.id, "ignored: held")
		return
	}
	t.atOrigin = true
	t.respawns++
	t.w.emit(protocol.Event{Type: protocol.EventRespawn, ToolID: t.id})
	t.w.audit("RESPAWN", string(t.lastHolder), t.id, "")
}

// BroadcastRespawn delivers the respawn as a network event would: on a later callback.
func (t *tool) BroadcastRespawn() {
	t.w.clock.After(0, t.proxy.Respawn)
}

// pickup.Indicator

func (t *tool) SetActive(on bool) {
	if t.indicator == on {
		return
	}
	t.indicator = on
	t.w.emit(protocol.Event{Type: protocol.EventIndicator, ToolID: t.id, Actor: t.actorID(), On: boolPtr(on)})
}

func boolPtr(b bool) *bool { return &b }
