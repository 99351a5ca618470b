package websocket

import "time"

// EventType names what a dashboard event describes
type EventType string

const (
	// EventTypePipeline reports the outcome of one drafting request
	EventTypePipeline EventType = "pipeline_outcome"
	// EventTypeRedaction reports a standalone masking call
	EventTypeRedaction EventType = "redaction"
	// EventTypeSystemStatus is the periodic server heartbeat
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection announces dashboard joins and leaves
	EventTypeConnection EventType = "connection"
)

// Event is the envelope written to every dashboard connection
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// PipelineEvent summarizes a finished request. Counts only; no transcript,
// draft text or matched terms.
type PipelineEvent struct {
	RequestID      string  `json:"request_id"`
	VisitID        string  `json:"visit_id"`
	Outcome        string  `json:"outcome"`
	Stage          string  `json:"stage"`
	RulesVersion   string  `json:"rules_version"`
	RedactionCount int     `json:"redaction_count"`
	ErrorCount     int     `json:"error_count"`
	LeakCount      int     `json:"leak_count"`
	ProcessingMS   float64 `json:"processing_ms"`
}

// RedactionEvent reports a masking-only call
type RedactionEvent struct {
	RequestID      string         `json:"request_id"`
	RedactionCount int            `json:"redaction_count"`
	ByRule         map[string]int `json:"by_rule"`
}

// SystemStatusEvent is the heartbeat payload
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	Accepted         int64  `json:"accepted"`
	Rejected         int64  `json:"rejected"`
	ActiveRules      int    `json:"active_rules"`
	RulesVersion     string `json:"rules_version"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent is sent to other dashboards when one joins or leaves
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage is an inbound control frame: "subscribe" or "ping"
type ClientMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SubscriptionRequest limits a connection to the listed event types
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows pipeline events for one client
type EventFilter struct {
	Outcomes     []string `json:"outcomes,omitempty"`
	RejectedOnly bool     `json:"rejected_only,omitempty"`
}
