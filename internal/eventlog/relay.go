package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is how many relay tasks an event gets before it is
// dead-lettered as failed.
const DefaultMaxAttempts = 5

// Sink receives relayed events.
type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

// NopSink drops events. Used when no EVENT_SINK_URL is configured.
type NopSink struct{}

func (NopSink) Deliver(context.Context, Record) error { return nil }

// Relayer delivers one stored event to the sink.
type Relayer struct {
	store       Store
	sink        Sink
	maxAttempts int
	log         *logger.Logger
}

func NewRelayer(store Store, sink Sink, maxAttempts int, log *logger.Logger) *Relayer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.Nop()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Relayer{store: store, sink: sink, maxAttempts: maxAttempts, log: log}
}

// Relay delivers event id. A failed delivery goes back to pending until the
// attempt budget is spent.
func (r *Relayer) Relay(ctx context.Context, id uuid.UUID) error {
	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("relay skipped: event not found", "event_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == StatusRelayed || rec.Status == StatusFailed {
		return nil
	}
	if err := r.store.MarkProcessing(ctx, id); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	rec.Attempts++

	if err := r.sink.Deliver(ctx, rec); err != nil {
		msg := err.Error()
		if rec.Attempts >= r.maxAttempts {
			r.log.Error("event relay dead-lettered", "event_id", id, "event", rec.Name, "attempts", rec.Attempts, "error", err)
			return r.store.MarkFailed(ctx, id, msg)
		}
		r.log.Warn("event relay failed", "event_id", id, "event", rec.Name, "attempts", rec.Attempts, "error", err)
		if markErr := r.store.MarkPending(ctx, id, &msg); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	return r.store.MarkRelayed(ctx, id)
}
