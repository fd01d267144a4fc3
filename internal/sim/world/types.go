package world

import "toolsync.ai/internal/protocol"

// Admin-only inputs; never accepted from clients.
const (
	InputEnableInteract  = "ENABLE_INTERACT"
	InputDisableInteract = "DISABLE_INTERACT"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// InputEnvelope is one host input event for a tool.
type InputEnvelope struct {
	ActorID string `json:"actor_id,omitempty"`
	ToolID  string `json:"tool_id"`
	Input   string `json:"input"`
}

type RecordedJoin struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick   uint64           `json:"tick"`
	AtMs   int64            `json:"at_ms"`
	Joins  []RecordedJoin   `json:"joins,omitempty"`
	Leaves []string         `json:"leaves,omitempty"`
	Inputs []InputEnvelope  `json:"inputs,omitempty"`
	Events []protocol.Event `json:"events,omitempty"`
	Digest string           `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	AtMs   int64  `json:"at_ms"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "RESPAWN"
	ToolID string `json:"tool_id"`
	Reason string `json:"reason,omitempty"`
}
