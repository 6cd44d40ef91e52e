package history

import (
	"context"
	"time"
)

// EventType defines the kind of engine or usage event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventCrash   EventType = "crash"
	EventRestart EventType = "restart"
	EventSpeak   EventType = "speak"
)

// Record carries the event payload. Lifecycle events fill Engine/PID/Status;
// speak events additionally fill Voice/Characters/DurationMS.
type Record struct {
	Engine     string `json:"engine"`
	PID        int    `json:"pid,omitempty"`
	Status     string `json:"status"`
	Voice      string `json:"voice,omitempty"`
	Characters int    `json:"characters,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Event represents an event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
