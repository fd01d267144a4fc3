package pickup

import "time"

// OnUseDown handles a trigger press from the holder. A press while latched
// is ignored unless fully automatic fire is enabled.
func (p *Proxy) OnUseDown(actor ActorID) {
	if h := p.deps.Pickup.CurrentHolder(); !h.Valid() || h != actor {
		return
	}
	if !p.st.UseLatched || p.cfg.FullyAutoFire {
		p.st.UseLatched = true

		if p.cfg.Cooldown > 0 {
			switch {
			case p.st.IsCooled:
				p.st.IsCooled = false
				p.deps.Target.ProxyOnUseDown()
				p.startCoolingDown()
			case p.st.QueueWindowOpen:
				p.st.QueuedFire = true
			}
			// Otherwise too early: the press is dropped.
		} else {
			p.deps.Target.ProxyOnUseDown()
		}
	}
	p.setIndicator(true)
}

// OnUseUp handles a trigger release. Releases without a matching press are ignored.
// With nobody holding, a release is still accepted so a press cut short by a
// drop can complete.
func (p *Proxy) OnUseUp(actor ActorID) {
	if h := p.deps.Pickup.CurrentHolder(); h.Valid() && h != actor {
		return
	}
	if p.st.UseLatched {
		p.st.UseLatched = false
		p.deps.Target.ProxyOnUseUp()

		if p.cfg.FullyAutoFire && p.st.QueueWindowOpen {
			p.st.QueuedFire = true
		}
	}
	p.setIndicator(false)
}

func (p *Proxy) startCoolingDown() {
	cd, qw := p.cfg.Cooldown, p.cfg.QueueWindow
	switch {
	case qw <= 0:
		p.st.QueueWindowOpen = false
		p.st.QueueWindowOpening = false
		p.scheduleCooledDown(cd)

	case qw < cd:
		// Window is the trailing qw of the cycle.
		p.st.QueueWindowOpen = false
		p.st.CoolingDown = false
		p.st.QueueWindowEpoch++
		p.st.QueueWindowOpening = true
		p.deps.Scheduler.After(cd-qw, p.openQueueWindow)

	default:
		// Window covers the whole cycle.
		p.st.QueueWindowOpen = true
		p.st.QueueWindowOpening = false
		p.scheduleCooledDown(cd)
	}
}

func (p *Proxy) scheduleCooledDown(after time.Duration) {
	p.st.CooldownEpoch++
	p.st.CoolingDown = true
	p.deps.Scheduler.After(after, p.cooledDown)
}

func (p *Proxy) openQueueWindow() {
	p.st.QueueWindowEpoch--
	if p.st.QueueWindowOpening && p.st.QueueWindowEpoch == 0 {
		p.st.QueueWindowOpening = false
		p.st.QueueWindowOpen = true
		p.scheduleCooledDown(p.cfg.QueueWindow)
	}
}

func (p *Proxy) cooledDown() {
	p.st.CooldownEpoch--
	if !p.st.CoolingDown || p.st.CooldownEpoch != 0 {
		return
	}
	p.st.CoolingDown = false
	p.st.QueueWindowOpen = false

	if p.st.QueuedFire || (p.st.UseLatched && p.cfg.FullyAutoFire) {
		p.st.QueuedFire = false
		p.deps.Target.ProxyOnUseDown()
		p.startCoolingDown()
		return
	}
	p.st.IsCooled = true
}
