// Package throttle paces a scrape run with jittered delays and halts it on
// anti-bot signals, reporting every signal to the channel health monitor.
package throttle

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

// ErrHalted is returned by Wait once a session has been paused.
var ErrHalted = errors.New("throttle: session halted")

// ErrorKind classifies a scrape failure.
type ErrorKind string

const (
	ErrorGeneric     ErrorKind = "ERROR"
	ErrorTimeout     ErrorKind = "TIMEOUT"
	ErrorRateLimited ErrorKind = "RATE_LIMITED"
	ErrorCaptcha     ErrorKind = "CAPTCHA"
)

// ParseErrorKind validates a raw error kind. "429" is accepted for RATE_LIMITED.
func ParseErrorKind(raw string) (ErrorKind, error) {
	k := ErrorKind(strings.ToUpper(strings.TrimSpace(raw)))
	if k == "429" {
		return ErrorRateLimited, nil
	}
	switch k {
	case ErrorGeneric, ErrorTimeout, ErrorRateLimited, ErrorCaptcha:
		return k, nil
	}
	return "", apperr.Validation("unknown scrape error kind: " + raw).WithReason(domain.ReasonInvalidInput)
}

func (k ErrorKind) outcome() domain.Outcome {
	switch k {
	case ErrorTimeout:
		return domain.OutcomeTimeout
	case ErrorRateLimited:
		return domain.OutcomeRateLimited
	case ErrorCaptcha:
		return domain.OutcomeCaptchaDetected
	}
	return domain.OutcomeFailure
}

func (k ErrorKind) immediate() bool {
	return k == ErrorTimeout || k == ErrorRateLimited || k == ErrorCaptcha
}

// Health is the part of the channel monitor a scrape run reports to.
type Health interface {
	RecordOutcome(ctx context.Context, c domain.Channel, outcome domain.Outcome) (domain.ChannelStatus, error)
	RecordUnstableRun(ctx context.Context, runID string, ok bool) (domain.ChannelStatus, error)
	IsPaused(ctx context.Context, c domain.Channel) (bool, error)
}

// Throttle hands out at most one active Session per process.
type Throttle struct {
	policy config.ThrottlePolicy
	health Health
	bus    events.Bus
	log    *logger.Logger
	rand   func() float64
	sleep  func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active *Session
}

type Option func(*Throttle)

// WithRand replaces the uniform [0,1) source.
func WithRand(fn func() float64) Option { return func(t *Throttle) { t.rand = fn } }

// WithSleep replaces the context-aware sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Throttle) { t.sleep = fn }
}

func New(policy config.ThrottlePolicy, health Health, bus events.Bus, log *logger.Logger, opts ...Option) *Throttle {
	if log == nil {
		log = logger.Nop()
	}
	t := &Throttle{
		policy: policy,
		health: health,
		bus:    bus,
		log:    log,
		rand:   rand.Float64,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CanStart fails with scrape_paused while the SCRAPE channel is paused. An
// elapsed cooldown resumes the channel inside the monitor.
func (t *Throttle) CanStart(ctx context.Context) error {
	paused, err := t.health.IsPaused(ctx, domain.ChannelScrape)
	if err != nil {
		return err
	}
	if paused {
		return apperr.PolicyViolation(domain.ReasonScrapePaused, "scrape channel is paused")
	}
	return nil
}

// Start opens the process-wide session for runID.
func (t *Throttle) Start(ctx context.Context, runID string) (*Session, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, apperr.Validation("run id is required").WithReason(domain.ReasonInvalidInput)
	}
	if err := t.CanStart(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		return nil, apperr.Conflict("scrape session " + t.active.runID + " is active").WithReason(domain.ReasonSessionActive)
	}
	s := &Session{t: t, runID: runID, state: StateRunning, startedAt: time.Now().UTC()}
	t.active = s
	t.log.Info("scrape session started", "run_id", runID)
	return s, nil
}

// Active returns the running session, if any.
func (t *Throttle) Active() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Throttle) release(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == s {
		t.active = nil
	}
}

func (t *Throttle) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(t.rand()*float64(hi-lo))
}
