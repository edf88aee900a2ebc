package events

import (
	"context"
	"sync"

	platformevents "github.com/renandiiias/build-automated-outreach/platform/events"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
// This is a convenience re-export from platform/events.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// Recording is a bus that keeps every published event. Tests use it to
// assert on emitted events.
type Recording struct {
	*platformevents.InMemoryBus
	sink *collector
}

// NewRecording returns a Recording with no other subscribers.
func NewRecording() *Recording {
	bus := platformevents.NewInMemoryBus(nil)
	c := &collector{}
	bus.Subscribe(AllEvents, c)
	return &Recording{InMemoryBus: bus, sink: c}
}

// Events returns a snapshot of recorded events after pending handlers finish.
func (r *Recording) Events() []Event {
	r.Wait()
	return r.sink.snapshot()
}

// Names returns the recorded event names in handling order. Publish is
// asynchronous, so callers should not rely on ordering across events.
func (r *Recording) Names() []string {
	evts := r.Events()
	names := make([]string, len(evts))
	for i, e := range evts {
		names[i] = e.EventName()
	}
	return names
}

// Count returns how many events named name were recorded.
func (r *Recording) Count(name string) int {
	n := 0
	for _, e := range r.Events() {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Handle(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}
