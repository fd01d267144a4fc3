package pickup

// OnDrop forwards the drop and, if enabled, arms the respawn timeout.
// A pickup before the timeout fires disarms it.
func (p *Proxy) OnDrop(_ ActorID) {
	p.deps.Target.ProxyOnDrop()

	if p.cfg.DroppedRespawn {
		p.st.DroppedTimingOut = true
		p.st.DroppedEpoch++
		p.deps.Scheduler.After(p.cfg.DroppedTimeout, p.droppedTimedOut)
	}

	p.setIndicator(false)
}

func (p *Proxy) droppedTimedOut() {
	p.st.DroppedEpoch--
	if p.st.DroppedEpoch == 0 && p.st.DroppedTimingOut {
		p.deps.Respawner.Respawn()
	}
}

// DropRespawn releases the tool from actor's hand and tells everyone to respawn it.
// Only the holder's drop goes through; the respawn broadcast is sent regardless
// and each host decides whether to honour it.
func (p *Proxy) DropRespawn(actor ActorID) {
	if p.deps.Pickup.CurrentHolder() == actor && actor.Valid() {
		p.deps.Pickup.Drop(actor)
	}
	p.deps.Respawner.BroadcastRespawn()
}

// Respawn is the receiving end of a respawn broadcast.
func (p *Proxy) Respawn() {
	p.deps.Respawner.Respawn()
}
