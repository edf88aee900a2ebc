package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/cadence"
	"github.com/renandiiias/build-automated-outreach/internal/domainjobs"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Runner executes one cadence run.
type Runner interface {
	Run(ctx context.Context, runID string) (cadence.RunSummary, error)
}

// Sweeper scans domain jobs for expiry alerts.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (domainjobs.SweepResult, error)
}

// Relayer delivers one stored event to the external sink.
type Relayer interface {
	Relay(ctx context.Context, id uuid.UUID) error
}

// Handlers holds the task handlers. Any nil dependency turns its task into a
// no-op.
type Handlers struct {
	Runner  Runner
	Sweeper Sweeper
	Relayer Relayer
	Log     *logger.Logger
	Now     func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) log() *logger.Logger {
	if h.Log == nil {
		return logger.Nop()
	}
	return h.Log
}

// Register mounts every handler on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskOutreachRun, h.HandleOutreachRun)
	mux.HandleFunc(TaskDomainJobsSweep, h.HandleDomainJobsSweep)
	mux.HandleFunc(TaskEventRelay, h.HandleEventRelay)
}

func (h *Handlers) HandleOutreachRun(ctx context.Context, task *asynq.Task) error {
	if h.Runner == nil {
		return nil
	}
	payload, err := ParseOutreachRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	runID := payload.RunID
	if runID == "" {
		runID = cadence.NewRunID(h.now())
	}
	ctx = logger.ContextWithRunID(ctx, runID)
	if _, err := h.Runner.Run(ctx, runID); err != nil {
		h.log().WithContext(ctx).Error("outreach run failed", "error", err)
		return err
	}
	return nil
}

func (h *Handlers) HandleDomainJobsSweep(ctx context.Context, _ *asynq.Task) error {
	if h.Sweeper == nil {
		return nil
	}
	res, err := h.Sweeper.Sweep(ctx, h.now())
	if err != nil {
		h.log().Error("domain job sweep failed", "error", err)
		return err
	}
	h.log().Info("domain job sweep finished", "scanned", res.Scanned, "alerted", res.Alerted)
	return nil
}

// HandleEventRelay never asks asynq to retry: a failed delivery is put back
// to pending by the relayer and claimed again by the dispatcher.
func (h *Handlers) HandleEventRelay(ctx context.Context, task *asynq.Task) error {
	if h.Relayer == nil {
		return nil
	}
	payload, err := ParseEventRelayPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	id, err := uuid.Parse(payload.EventID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := h.Relayer.Relay(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, h *Handlers, log *logger.Logger) (*Worker, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	h.Register(mux)

	return &Worker{server: server, mux: mux, log: log}, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}
	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
