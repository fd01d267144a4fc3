package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorName       string `json:"actor_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	ActorID         string     `json:"actor_id"`
	WorldID         string     `json:"world_id,omitempty"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Tools           []ToolInfo `json:"tools"`
}

type ToolInfo struct {
	ID               string `json:"id"`
	EnsureOwnership  bool   `json:"ensure_ownership"`
	DroppedRespawn   bool   `json:"dropped_respawn"`
	DroppedTimeoutMs int64  `json:"dropped_timeout_ms"`
	FullyAutoFire    bool   `json:"fully_auto_fire"`
	CooldownMs       int64  `json:"cooldown_ms"`
	QueueWindowMs    int64  `json:"queue_window_ms"`
	Holder           string `json:"holder,omitempty"`
	Owner            string `json:"owner,omitempty"`
	Pickupable       bool   `json:"pickupable"`
}

// INPUT (client -> server): one host input event for a tool.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ToolID          string `json:"tool_id"`
	Input           string `json:"input"`
}

// EVENTS (server -> client): everything that happened in one tick.
type EventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}
