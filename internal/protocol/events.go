package protocol

// Input kinds carried by INPUT.
const (
	InputPickup      = "PICKUP"
	InputDrop        = "DROP"
	InputUseDown     = "USE_DOWN"
	InputUseUp       = "USE_UP"
	InputDropRespawn = "DROP_RESPAWN"
)

var knownInputs = map[string]struct{}{
	InputPickup:      {},
	InputDrop:        {},
	InputUseDown:     {},
	InputUseUp:       {},
	InputDropRespawn: {},
}

func IsKnownInput(in string) bool {
	_, ok := knownInputs[in]
	return ok
}

// Event types.
const (
	EventJoin       = "JOIN"
	EventLeave      = "LEAVE"
	EventPickup     = "PICKUP"
	EventDrop       = "DROP"
	EventFire       = "FIRE"
	EventUseUp      = "USE_UP"
	EventRespawn    = "RESPAWN"
	EventOwner      = "OWNER"
	EventPickupable = "PICKUPABLE"
	EventIndicator  = "INDICATOR"
	EventRejected   = "REJECTED"
)

type Event struct {
	Tick   uint64 `json:"tick"`
	AtMs   int64  `json:"at_ms"`
	Type   string `json:"type"`
	ToolID string `json:"tool_id,omitempty"`
	Actor  string `json:"actor,omitempty"`
	On     *bool  `json:"on,omitempty"`
	Code   string `json:"code,omitempty"`
	Input  string `json:"input,omitempty"`
}
