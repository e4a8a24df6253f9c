package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventQueryRouted            EventType = "query.routed"
	EventAgentResponded         EventType = "agent.responded"
	EventCollaborationCompleted EventType = "collaboration.completed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// QueryRoutedPayload is the payload of EventQueryRouted.
type QueryRoutedPayload struct {
	Query    string          `json:"query"`
	Decision RoutingDecision `json:"decision"`
}

// AgentRespondedPayload is the payload of EventAgentResponded.
type AgentRespondedPayload struct {
	AgentID    string      `json:"agent_id"`
	Kind       MessageKind `json:"kind"`
	DurationMs int64       `json:"duration_ms"`
}

// CollaborationCompletedPayload is the payload of EventCollaborationCompleted.
type CollaborationCompletedPayload struct {
	Status     SessionStatus `json:"status"`
	Mode       Mode          `json:"mode"`
	AgentsUsed []string      `json:"agents_used"`
	DurationMs int64         `json:"duration_ms"`
}

// NewEvent builds an event with a JSON-encoded payload. A payload that
// fails to encode is dropped.
func NewEvent(t EventType, sessionID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
