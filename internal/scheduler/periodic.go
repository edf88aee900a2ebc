package scheduler

import (
	"context"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// Periodic enqueues the outreach run and the domain sweep on fixed intervals.
// Tasks are unique for one interval, so several scheduler replicas enqueue
// each tick once.
type Periodic struct {
	queue      Enqueuer
	runEvery   time.Duration
	sweepEvery time.Duration
	log        *logger.Logger
}

func NewPeriodic(queue Enqueuer, runEvery, sweepEvery time.Duration, log *logger.Logger) *Periodic {
	if log == nil {
		log = logger.Nop()
	}
	return &Periodic{queue: queue, runEvery: runEvery, sweepEvery: sweepEvery, log: log}
}

// Run enqueues both tasks immediately and then on every tick until ctx is
// cancelled. A non-positive interval disables that task.
func (p *Periodic) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if p.runEvery > 0 {
		g.Go(func() error { return p.loop(ctx, "outreach run", p.runEvery, p.EnqueueRun) })
	}
	if p.sweepEvery > 0 {
		g.Go(func() error { return p.loop(ctx, "domain sweep", p.sweepEvery, p.EnqueueSweep) })
	}
	return g.Wait()
}

func (p *Periodic) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			p.log.Warn("periodic enqueue failed", "task", name, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// EnqueueRun queues a cadence run; the worker names it.
func (p *Periodic) EnqueueRun(ctx context.Context) error {
	return enqueueOutreachRun(ctx, p.queue, "", p.runEvery)
}

func (p *Periodic) EnqueueSweep(ctx context.Context) error {
	opts := []asynq.Option{asynq.MaxRetry(3)}
	if p.sweepEvery > 0 {
		opts = append(opts, asynq.Unique(p.sweepEvery))
	}
	_, err := p.queue.EnqueueContext(ctx, NewDomainJobsSweepTask(), opts...)
	return ignoreDuplicate(err)
}
