package scheduler

import (
	"context"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/eventlog"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	relayBatchSize    = 50
	relayPollInterval = 2 * time.Second
)

// EventRelayDispatcher claims pending event log records and turns each into
// an eventlog.relay task.
type EventRelayDispatcher struct {
	queue Enqueuer
	store eventlog.Store
	log   *logger.Logger
	every time.Duration
}

func NewEventRelayDispatcher(queue Enqueuer, store eventlog.Store, log *logger.Logger) *EventRelayDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &EventRelayDispatcher{queue: queue, store: store, log: log, every: relayPollInterval}
}

// Run polls until ctx is cancelled.
func (d *EventRelayDispatcher) Run(ctx context.Context) error {
	if d == nil || d.queue == nil || d.store == nil {
		return nil
	}

	ticker := time.NewTicker(d.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := d.DispatchOnce(ctx); err != nil {
			d.log.Warn("event log claim failed", "error", err)
		}
	}
}

// DispatchOnce enqueues one claimed batch. Records that cannot be enqueued go
// back to pending for the next poll.
func (d *EventRelayDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	records, err := d.store.ClaimPending(ctx, relayBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, rec := range records {
		task, err := NewEventRelayTask(EventRelayPayload{EventID: rec.ID.String()})
		if err == nil {
			_, err = d.queue.EnqueueContext(ctx, task, asynq.MaxRetry(0))
		}
		if err != nil {
			msg := err.Error()
			if markErr := d.store.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Error("event log requeue failed", "event_id", rec.ID, "error", markErr)
			}
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
