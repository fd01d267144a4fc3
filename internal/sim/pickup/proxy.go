package pickup

import (
	"fmt"
	"time"
)

// ActorID identifies a player. The empty ID means "no actor".
type ActorID string

func (a ActorID) Valid() bool { return a != "" }

// OwnershipRecheckInterval is how often the guardian re-requests ownership while held.
const OwnershipRecheckInterval = time.Second

// SyncTarget is the manually synced behaviour the proxy forwards to.
type SyncTarget interface {
	ProxyOnPickup()
	ProxyOnDrop()
	ProxyOnUseDown()
	ProxyOnUseUp()
}

// Ownership is the host's network ownership primitive for the synced object.
// RequestOwnership may fail without any signal.
type Ownership interface {
	RequestOwnership(actor ActorID)
	IsOwner(actor ActorID) bool
}

// Pickup is the host's pickup component.
type Pickup interface {
	CurrentHolder() ActorID
	Drop(actor ActorID)
	SetPickupable(on bool)
}

// Respawner returns the object to its origin. BroadcastRespawn asks every
// actor to do so.
type Respawner interface {
	Respawn()
	BroadcastRespawn()
}

// Scheduler runs fn once, no earlier than d from now. Scheduled callbacks
// cannot be canceled.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Indicator is an optional visual toggle for held input.
type Indicator interface {
	SetActive(on bool)
}

type Config struct {
	EnsureOwnership bool
	DroppedRespawn  bool
	DroppedTimeout  time.Duration
	FullyAutoFire   bool
	Cooldown        time.Duration
	QueueWindow     time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnsureOwnership: true,
		DroppedRespawn:  true,
		DroppedTimeout:  10 * time.Second,
		FullyAutoFire:   false,
		Cooldown:        300 * time.Millisecond,
		QueueWindow:     150 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.DroppedTimeout < 0 {
		return fmt.Errorf("dropped timeout must be >= 0, got %v", c.DroppedTimeout)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %v", c.Cooldown)
	}
	if c.QueueWindow < 0 {
		return fmt.Errorf("queue window must be >= 0, got %v", c.QueueWindow)
	}
	return nil
}

// Deps bundles the host collaborators a Proxy drives. Indicator may be nil.
type Deps struct {
	Target    SyncTarget
	Ownership Ownership
	Pickup    Pickup
	Respawner Respawner
	Scheduler Scheduler
	Indicator Indicator
}

func (d Deps) validate() error {
	switch {
	case d.Target == nil:
		return fmt.Errorf("missing sync target")
	case d.Ownership == nil:
		return fmt.Errorf("missing ownership")
	case d.Pickup == nil:
		return fmt.Errorf("missing pickup")
	case d.Respawner == nil:
		return fmt.Errorf("missing respawner")
	case d.Scheduler == nil:
		return fmt.Errorf("missing scheduler")
	}
	return nil
}

// State is the proxy's tool state. Epoch counters count in-flight callbacks
// per timer class; only the callback that brings its counter back to zero acts.
type State struct {
	IsCooled      bool `json:"is_cooled"`
	CoolingDown   bool `json:"cooling_down"`
	CooldownEpoch uint `json:"cooldown_epoch"`

	QueueWindowOpen    bool `json:"queue_window_open"`
	QueueWindowOpening bool `json:"queue_window_opening"`
	QueueWindowEpoch   uint `json:"queue_window_epoch"`
	QueuedFire         bool `json:"queued_fire"`

	UseLatched bool `json:"use_latched"`

	DroppedTimingOut bool `json:"dropped_timing_out"`
	DroppedEpoch     uint `json:"dropped_epoch"`
}

// Proxy sits between host input events and a SyncTarget.
// It is not safe for concurrent use; drive it from one goroutine.
type Proxy struct {
	cfg  Config
	deps Deps
	st   State
}

func New(cfg Config, deps Deps) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Proxy{
		cfg:  cfg,
		deps: deps,
		st:   State{IsCooled: true},
	}, nil
}

func (p *Proxy) Config() Config { return p.cfg }
func (p *Proxy) State() State   { return p.st }

func (p *Proxy) EnableInteract()  { p.deps.Pickup.SetPickupable(true) }
func (p *Proxy) DisableInteract() { p.deps.Pickup.SetPickupable(false) }

func (p *Proxy) setIndicator(on bool) {
	if p.deps.Indicator != nil {
		p.deps.Indicator.SetActive(on)
	}
}
