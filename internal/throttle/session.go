package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

// State of a scrape session.
type State string

const (
	StateRunning  State = "RUNNING"
	StatePaused   State = "PAUSED"
	StateFinished State = "FINISHED"
)

// Summary reports what a session saw.
type Summary struct {
	RunID       string    `json:"runId"`
	State       State     `json:"state"`
	Results     int       `json:"results"`
	Errors      int       `json:"errors"`
	Captcha     int       `json:"captchaEvents"`
	Timeouts    int       `json:"timeoutEvents"`
	RateLimited int       `json:"http429Events"`
	HaltReason  string    `json:"haltReason,omitempty"`
	Unstable    bool      `json:"unstable"`
	StartedAt   time.Time `json:"startedAt"`
}

// Session paces one scrape run.
type Session struct {
	t         *Throttle
	runID     string
	startedAt time.Time

	mu          sync.Mutex
	state       State
	results     int
	errors      int
	captcha     int
	timeouts    int
	rateLimited int
	streak      int
	haltReason  string
	longPaused  int
}

func (s *Session) RunID() string { return s.runID }

// Wait sleeps a jittered delay before the next request, adding a long pause
// after every block of results. It returns ErrHalted once the session or the
// SCRAPE channel is paused.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrHalted
	}
	p := s.t.policy
	delay := s.t.uniform(p.MinDelay, p.MaxDelay)
	if every := max(1, p.LongPauseEvery); s.results > 0 && s.results%every == 0 && s.longPaused != s.results {
		s.longPaused = s.results
		delay += s.t.uniform(p.LongPauseMin, p.LongPauseMax)
	}
	s.mu.Unlock()

	if err := s.t.sleep(ctx, delay); err != nil {
		return err
	}
	if s.Halted() {
		return ErrHalted
	}
	paused, err := s.t.health.IsPaused(ctx, domain.ChannelScrape)
	if err != nil {
		return fmt.Errorf("check scrape channel: %w", err)
	}
	if paused {
		s.halt(domain.ReasonScrapePaused)
		return ErrHalted
	}
	return nil
}

// halt pauses a running session. It reports whether this call stopped it.
func (s *Session) halt(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	s.state = StatePaused
	s.haltReason = reason
	return true
}

// RecordResult counts one scraped item and clears the error streak.
func (s *Session) RecordResult(ctx context.Context) error {
	s.mu.Lock()
	s.results++
	hadStreak := s.streak > 0
	s.streak = 0
	s.mu.Unlock()

	if hadStreak {
		if _, err := s.t.health.RecordOutcome(ctx, domain.ChannelScrape, domain.OutcomeSuccess); err != nil {
			return fmt.Errorf("record scrape success: %w", err)
		}
	}
	return nil
}

// RecordError counts a failure and halts the session on an anti-bot signal,
// once the error streak reaches the limit, or when the monitor pauses SCRAPE.
// The monitor keeps its streak across runs, so it can pause before this
// session's own streak reaches the limit.
func (s *Session) RecordError(ctx context.Context, kind ErrorKind) error {
	s.mu.Lock()
	s.errors++
	s.streak++
	switch kind {
	case ErrorCaptcha:
		s.captcha++
	case ErrorTimeout:
		s.timeouts++
	case ErrorRateLimited:
		s.rateLimited++
	}
	streak := s.streak
	limit := kind.immediate() || streak >= max(1, s.t.policy.ErrorStreak)
	s.mu.Unlock()

	ctx = logger.ContextWithRunID(ctx, s.runID)
	st, err := s.t.health.RecordOutcome(ctx, domain.ChannelScrape, kind.outcome())
	if err != nil {
		return fmt.Errorf("record scrape error: %w", err)
	}

	reason := haltReason(kind)
	if !limit && st.Paused {
		reason = st.PauseReason
		if reason == "" {
			reason = domain.ReasonScrapePaused
		}
	}
	if (limit || st.Paused) && s.halt(reason) {
		s.t.log.Warn("scrape session halted", "run_id", s.runID, "reason", reason, "error_streak", streak)
		s.t.bus.Publish(ctx, events.ScrapePaused{
			BaseEvent:   events.NewIncidentEvent(events.NameScrapePaused, s.runID, reason),
			RunID:       s.runID,
			Reason:      reason,
			ErrorStreak: streak,
		})
	}
	return nil
}

func haltReason(kind ErrorKind) string {
	switch kind {
	case ErrorCaptcha:
		return domain.ReasonCaptcha
	case ErrorRateLimited:
		return domain.ReasonRateLimited
	case ErrorTimeout:
		return domain.ReasonTimeout
	}
	return domain.ReasonErrorStreak
}

// Halted reports whether the session stopped pacing requests.
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateRunning
}

// Summary snapshots the session counters.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		RunID:       s.runID,
		State:       s.state,
		Results:     s.results,
		Errors:      s.errors,
		Captcha:     s.captcha,
		Timeouts:    s.timeouts,
		RateLimited: s.rateLimited,
		HaltReason:  s.haltReason,
		Unstable:    s.captcha > 0 || s.rateLimited > 0 || s.timeouts >= max(1, s.t.policy.ErrorStreak),
		StartedAt:   s.startedAt,
	}
}

// Finish closes the session, reports run stability and frees the slot for
// the next run. A halted session keeps its PAUSED state in the summary.
func (s *Session) Finish(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateFinished
	}
	s.mu.Unlock()
	defer s.t.release(s)

	sum := s.Summary()
	if _, err := s.t.health.RecordUnstableRun(logger.ContextWithRunID(ctx, s.runID), s.runID, !sum.Unstable); err != nil {
		return sum, fmt.Errorf("record run stability: %w", err)
	}
	s.t.log.Info("scrape session finished", "run_id", s.runID, "state", sum.State,
		"results", sum.Results, "errors", sum.Errors, "unstable", sum.Unstable)
	return sum, nil
}
