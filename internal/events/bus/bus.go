// Package bus provides the local republish bus. Every event the bridge
// delivers is mirrored onto a subject so other local tooling can observe
// deliveries without talking to the server. Publishing is best-effort and
// never blocks delivery.
package bus

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubjectPrefix namespaces all bridge subjects.
const SubjectPrefix = "bridge.events."

// SubjectFor returns the subject an event type is republished on. Dots in
// the event type are kept, so "task.assigned" lands on
// "bridge.events.task.assigned" and matches a "bridge.events.>" wildcard.
func SubjectFor(eventType string) string {
	if eventType == "" {
		return SubjectPrefix + "unknown"
	}
	return SubjectPrefix + strings.ToLower(eventType)
}

// Event represents a message on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"` // transport that delivered the event
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the republish surface. The in-memory implementation serves a
// single process; the NATS implementation lets out-of-process consumers
// subscribe.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// Close closes the connection.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}
