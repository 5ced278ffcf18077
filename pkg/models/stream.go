package models

import (
	"encoding/json"
	"time"
)

// EventType classifies an agent stream event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventEvaluation   EventType = "evaluation"
	EventTrigger      EventType = "trigger"
	EventStatusChange EventType = "status_change"
	EventPong         EventType = "pong"
)

// StreamEvent is a single server-pushed agent event. Payload carries the
// full original message verbatim.
type StreamEvent struct {
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ConnectionState describes the stream client lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)
