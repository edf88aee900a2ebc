// Package events is the in-process bus outreach components publish incidents
// on. Every event carries a fingerprint so repeated incidents group together
// downstream.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Event is anything published on the bus.
type Event interface {
	EventName() string
	OccurredAt() time.Time
	// Fingerprint groups repeated occurrences of the same incident.
	Fingerprint() string
}

// BaseEvent is embedded by every concrete event.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Print     string    `json:"fingerprint,omitempty"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

func (e BaseEvent) Fingerprint() string { return e.Print }

// NewBaseEvent creates a new base event with the current UTC timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// NewIncidentEvent creates a base event fingerprinted by name and key fields.
func NewIncidentEvent(name string, keys ...string) BaseEvent {
	e := NewBaseEvent()
	e.Print = Fingerprint(name, keys...)
	return e
}

// Fingerprint hashes name|keys and keeps the first 20 hex characters.
func Fingerprint(name string, keys ...string) string {
	parts := append([]string{name}, keys...)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:20]
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to handlers subscribed by name. Publish is
// asynchronous; PublishSync returns the first handler error.
type Bus interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
