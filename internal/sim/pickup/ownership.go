package pickup

// OnPickup takes network ownership for actor and forwards the pickup.
// With EnsureOwnership the request is repeated every second until it sticks
// or the actor lets go.
func (p *Proxy) OnPickup(actor ActorID) {
	p.st.DroppedTimingOut = false

	p.deps.Ownership.RequestOwnership(actor)
	if p.cfg.EnsureOwnership {
		p.scheduleOwnershipCheck(actor)
	}

	p.deps.Target.ProxyOnPickup()
}

func (p *Proxy) scheduleOwnershipCheck(actor ActorID) {
	p.deps.Scheduler.After(OwnershipRecheckInterval, func() { p.checkOwnership(actor) })
}

func (p *Proxy) checkOwnership(actor ActorID) {
	holder := p.deps.Pickup.CurrentHolder()
	if !holder.Valid() || holder != actor || p.deps.Ownership.IsOwner(actor) {
		return
	}
	p.deps.Ownership.RequestOwnership(actor)
	p.scheduleOwnershipCheck(actor)
}
