package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
)

// Recorder appends every published event to the log.
type Recorder struct {
	store Store
	log   *logger.Logger
}

func NewRecorder(store Store, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{store: store, log: log}
}

// Subscribe registers the recorder for all events on bus.
func (r *Recorder) Subscribe(bus interface {
	Subscribe(eventName string, handler events.Handler)
}) {
	bus.Subscribe(events.AllEvents, r)
}

func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.EventName(), err)
	}
	rec := Record{
		ID:          uuid.New(),
		Name:        e.EventName(),
		Fingerprint: e.Fingerprint(),
		Payload:     payload,
		OccurredAt:  e.OccurredAt(),
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Error("failed to append event", "event", rec.Name, "error", err)
		return err
	}
	return nil
}
