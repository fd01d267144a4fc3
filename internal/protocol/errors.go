package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Input layer.
	ErrBadInput      = "E_BAD_INPUT"
	ErrNoTool        = "E_NO_TOOL"
	ErrHeld          = "E_HELD"
	ErrNotHolder     = "E_NOT_HOLDER"
	ErrNotPickupable = "E_NOT_PICKUPABLE"
	ErrUnknownActor  = "E_UNKNOWN_ACTOR"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadInput:        {},
	ErrNoTool:          {},
	ErrHeld:            {},
	ErrNotHolder:       {},
	ErrNotPickupable:   {},
	ErrUnknownActor:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
