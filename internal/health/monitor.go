// Package health tracks per-channel deliverability and derives the global
// safe mode. Every pause and resume is persisted, so restarts keep state.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/lock"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

// Store is the persistence the monitor needs.
type Store interface {
	repository.ChannelStore
	repository.FlagStore
	repository.MetricsStore
}

type transition int

const (
	noTransition transition = iota
	paused
	resumed
)

type change struct {
	kind   transition
	status domain.ChannelStatus
	reason string
}

// Monitor implements the channel health policy.
type Monitor struct {
	store  Store
	bus    events.Bus
	log    *logger.Logger
	policy config.HealthPolicy
	locker lock.Locker
	now    func() time.Time

	channelMu map[domain.Channel]*sync.Mutex
	safeMu    sync.Mutex
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLocker adds a cross-process lock around each channel update.
func WithLocker(l lock.Locker) Option {
	return func(m *Monitor) { m.locker = l }
}

func New(store Store, bus events.Bus, log *logger.Logger, policy config.HealthPolicy, opts ...Option) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	m := &Monitor{
		store:     store,
		bus:       bus,
		log:       log,
		policy:    policy,
		now:       time.Now,
		channelMu: make(map[domain.Channel]*sync.Mutex, len(domain.MonitoredChannels)),
	}
	for _, c := range domain.MonitoredChannels {
		m.channelMu[c] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func validChannel(c domain.Channel) error {
	for _, known := range domain.MonitoredChannels {
		if c == known {
			return nil
		}
	}
	return apperr.Validation(fmt.Sprintf("unknown channel: %q", c)).WithReason(domain.ReasonInvalidInput)
}

// update runs fn on the stored status under the channel's mutex, persists
// the result and publishes any pause/resume transition afterwards.
func (m *Monitor) update(ctx context.Context, c domain.Channel, fn func(st *domain.ChannelStatus, now time.Time) (change, error)) (domain.ChannelStatus, error) {
	if err := validChannel(c); err != nil {
		return domain.ChannelStatus{}, err
	}
	st, ch, err := m.mutate(ctx, c, fn)
	if err != nil {
		return domain.ChannelStatus{}, err
	}
	if ch.kind != noTransition {
		m.announce(ctx, ch)
		if err := m.recomputeSafeMode(ctx); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (m *Monitor) mutate(ctx context.Context, c domain.Channel, fn func(st *domain.ChannelStatus, now time.Time) (change, error)) (domain.ChannelStatus, change, error) {
	mu := m.channelMu[c]
	mu.Lock()
	defer mu.Unlock()
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "health:"+string(c))
		if err != nil {
			return domain.ChannelStatus{}, change{}, err
		}
		defer unlock()
	}

	st, err := m.store.GetChannelStatus(ctx, c)
	if err != nil {
		return domain.ChannelStatus{}, change{}, fmt.Errorf("load channel status: %w", err)
	}
	ch, err := fn(&st, m.now().UTC())
	if err != nil {
		return domain.ChannelStatus{}, change{}, err
	}
	if err := m.store.SaveChannelStatus(ctx, st); err != nil {
		return domain.ChannelStatus{}, change{}, fmt.Errorf("save channel status: %w", err)
	}
	return st, ch, nil
}

func (m *Monitor) announce(ctx context.Context, ch change) {
	st := ch.status
	switch ch.kind {
	case paused:
		m.log.ChannelTransition(string(st.Channel), true, ch.reason)
		m.bus.Publish(ctx, events.ChannelPaused{
			BaseEvent:     events.NewIncidentEvent(events.NameChannelPaused, string(st.Channel), ch.reason),
			Channel:       st.Channel,
			Reason:        ch.reason,
			CooldownUntil: st.CooldownUntil,
		})
		if ch.reason == domain.ReasonCaptcha {
			m.bus.Publish(ctx, events.CaptchaDetected{
				BaseEvent: events.NewIncidentEvent(events.NameCaptchaDetected, string(st.Channel)),
				RunID:     runIDFrom(ctx),
			})
		}
	case resumed:
		m.log.ChannelTransition(string(st.Channel), false, ch.reason)
		m.bus.Publish(ctx, events.ChannelResumed{
			BaseEvent: events.NewIncidentEvent(events.NameChannelResumed, string(st.Channel), ch.reason),
			Channel:   st.Channel,
			Reason:    ch.reason,
		})
	}
}

func runIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(logger.RunIDKey).(string); ok {
		return v
	}
	return ""
}

func pause(st *domain.ChannelStatus, reason string, cooldownUntil *time.Time) change {
	if st.Paused {
		return change{}
	}
	st.Paused = true
	st.PauseReason = reason
	st.CooldownUntil = cooldownUntil
	return change{kind: paused, status: *st, reason: reason}
}

func resume(st *domain.ChannelStatus, reason string) change {
	if !st.Paused {
		return change{}
	}
	st.Paused = false
	st.PauseReason = ""
	st.CooldownUntil = nil
	st.ErrorStreak = 0
	st.UnstableStreak = 0
	st.ResetWindow()
	return change{kind: resumed, status: *st, reason: reason}
}

// countAttempt opens a new window when the current one is full, then counts one send.
func (m *Monitor) countAttempt(st *domain.ChannelStatus, n int) {
	if m.policy.WindowSize > 0 && st.WindowSent >= m.policy.WindowSize {
		st.ResetWindow()
	}
	st.WindowSent += n
}

// RecordOutcome applies one health signal to channel c.
func (m *Monitor) RecordOutcome(ctx context.Context, c domain.Channel, outcome domain.Outcome) (domain.ChannelStatus, error) {
	if _, err := domain.ParseOutcome(string(outcome)); err != nil {
		return domain.ChannelStatus{}, err
	}
	if c == domain.ChannelScrape && (outcome == domain.OutcomeBounce || outcome == domain.OutcomeComplaint) {
		return domain.ChannelStatus{}, apperr.Validation("bounce and complaint do not apply to SCRAPE").WithReason(domain.ReasonInvalidInput)
	}
	return m.update(ctx, c, func(st *domain.ChannelStatus, now time.Time) (change, error) {
		if c == domain.ChannelScrape {
			return m.applyScrape(st, outcome, now), nil
		}
		m.applySend(st, outcome)
		return m.evaluateRates(st), nil
	})
}

func (m *Monitor) applySend(st *domain.ChannelStatus, outcome domain.Outcome) {
	switch outcome {
	case domain.OutcomeSuccess:
		m.countAttempt(st, 1)
		st.ErrorStreak = 0
	case domain.OutcomeBounce:
		if st.Channel == domain.ChannelEmail {
			st.WindowBounces++
		} else {
			st.WindowFailures++
		}
	case domain.OutcomeComplaint:
		if st.Channel == domain.ChannelEmail {
			st.WindowComplaints++
		} else {
			st.WindowFailures++
		}
	default:
		// FAILURE, TIMEOUT, RATE_LIMITED and CAPTCHA are failed attempts on a send channel.
		m.countAttempt(st, 1)
		st.WindowFailures++
		st.ErrorStreak++
	}
}

func (m *Monitor) evaluateRates(st *domain.ChannelStatus) change {
	switch st.Channel {
	case domain.ChannelEmail:
		if st.WindowSent < m.policy.EmailMinSample {
			return change{}
		}
		if st.ComplaintRate() > m.policy.EmailComplaintRate {
			return pause(st, domain.ReasonComplaintRate, nil)
		}
		if st.BounceRate() > m.policy.EmailBounceRate {
			return pause(st, domain.ReasonBounceRate, nil)
		}
	case domain.ChannelWhatsApp:
		if st.WindowSent < m.policy.WhatsAppMinSample {
			return change{}
		}
		if st.FailureRate() > m.policy.WhatsAppFailureRate {
			return pause(st, domain.ReasonWAFailRate, nil)
		}
	}
	return change{}
}

func (m *Monitor) applyScrape(st *domain.ChannelStatus, outcome domain.Outcome, now time.Time) change {
	if outcome == domain.OutcomeSuccess {
		st.ErrorStreak = 0
		return change{}
	}
	st.ErrorStreak++
	cooldown := now.Add(m.policy.ScrapeCooldown)
	switch outcome {
	case domain.OutcomeCaptchaDetected:
		return pause(st, domain.ReasonCaptcha, &cooldown)
	case domain.OutcomeRateLimited:
		return pause(st, domain.ReasonRateLimited, &cooldown)
	case domain.OutcomeTimeout:
		return pause(st, domain.ReasonTimeout, &cooldown)
	}
	if st.ErrorStreak >= m.policy.ScrapeErrorStreak {
		return pause(st, domain.ReasonErrorStreak, &cooldown)
	}
	return change{}
}

// RecordEmailFeedback merges batch provider feedback into the EMAIL window.
func (m *Monitor) RecordEmailFeedback(ctx context.Context, sent, bounces, complaints int) (domain.ChannelStatus, error) {
	if sent < 0 || bounces < 0 || complaints < 0 {
		return domain.ChannelStatus{}, apperr.Validation("feedback counters must be non-negative").WithReason(domain.ReasonInvalidInput)
	}
	st, err := m.update(ctx, domain.ChannelEmail, func(st *domain.ChannelStatus, _ time.Time) (change, error) {
		if sent > 0 {
			m.countAttempt(st, sent)
		}
		st.WindowBounces += bounces
		st.WindowComplaints += complaints
		return m.evaluateRates(st), nil
	})
	if err != nil {
		return st, err
	}

	now := m.now()
	if err := m.store.IncrementDaily(ctx, domain.DailyMetric{Day: now, Channel: domain.ChannelEmail, Sent: sent, Bounces: bounces, Complaints: complaints}); err != nil {
		return st, fmt.Errorf("increment email metrics: %w", err)
	}
	if limit, ok := m.EmailDailyLimit(now); ok {
		daily, err := m.store.GetDaily(ctx, now, domain.ChannelEmail)
		if err != nil {
			return st, err
		}
		if daily.Sent > limit {
			m.deliverabilityAlert(ctx, st, domain.ReasonWarmupLimit, daily.Sent, limit)
		}
	}
	return st, nil
}

func (m *Monitor) deliverabilityAlert(ctx context.Context, st domain.ChannelStatus, reason string, sent, limit int) {
	m.log.Warn("deliverability_alert", "channel", st.Channel, "reason", reason, "daily_sent", sent, "daily_limit", limit)
	m.bus.Publish(ctx, events.DeliverabilityAlert{
		BaseEvent:     events.NewIncidentEvent(events.NameDeliverabilityAlert, string(st.Channel), reason, domain.DayOf(m.now()).Format(time.DateOnly)),
		Channel:       st.Channel,
		Reason:        reason,
		SentToday:     sent,
		DailyLimit:    limit,
		BounceRate:    st.BounceRate(),
		ComplaintRate: st.ComplaintRate(),
	})
}

// RecordUnstableRun tracks consecutive unstable scrape runs.
func (m *Monitor) RecordUnstableRun(ctx context.Context, runID string, ok bool) (domain.ChannelStatus, error) {
	return m.update(ctx, domain.ChannelScrape, func(st *domain.ChannelStatus, now time.Time) (change, error) {
		if ok {
			st.UnstableStreak = 0
			return change{}, nil
		}
		st.UnstableStreak++
		m.log.Warn("unstable scrape run", "run_id", runID, "unstable_streak", st.UnstableStreak)
		if m.policy.UnstableRunLimit > 0 && st.UnstableStreak >= m.policy.UnstableRunLimit {
			cooldown := now.Add(m.policy.ScrapeCooldown)
			return pause(st, domain.ReasonUnstableRuns, &cooldown), nil
		}
		return change{}, nil
	})
}

// Status returns the channel status, auto-resuming an elapsed cooldown.
func (m *Monitor) Status(ctx context.Context, c domain.Channel) (domain.ChannelStatus, error) {
	if err := validChannel(c); err != nil {
		return domain.ChannelStatus{}, err
	}
	st, err := m.store.GetChannelStatus(ctx, c)
	if err != nil {
		return domain.ChannelStatus{}, fmt.Errorf("load channel status: %w", err)
	}
	if !st.CooldownElapsed(m.now().UTC()) {
		return st, nil
	}
	return m.update(ctx, c, func(st *domain.ChannelStatus, now time.Time) (change, error) {
		if st.CooldownElapsed(now) {
			return resume(st, domain.ReasonCooldownElapsed), nil
		}
		return change{}, nil
	})
}

// IsPaused reports whether c is paused after applying cooldown auto-resume.
func (m *Monitor) IsPaused(ctx context.Context, c domain.Channel) (bool, error) {
	st, err := m.Status(ctx, c)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// Statuses returns every monitored channel's status.
func (m *Monitor) Statuses(ctx context.Context) ([]domain.ChannelStatus, error) {
	out := make([]domain.ChannelStatus, 0, len(domain.MonitoredChannels))
	for _, c := range domain.MonitoredChannels {
		st, err := m.Status(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Pause pauses one channel. Pausing a paused channel is a no-op.
func (m *Monitor) Pause(ctx context.Context, c domain.Channel, reason string) (domain.ChannelStatus, error) {
	if reason == "" {
		reason = domain.ReasonManual
	}
	return m.update(ctx, c, func(st *domain.ChannelStatus, _ time.Time) (change, error) {
		return pause(st, reason, nil), nil
	})
}

// PauseAll pauses every send channel, which in turn enables safe mode.
func (m *Monitor) PauseAll(ctx context.Context, reason string) error {
	for _, c := range []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp} {
		if _, err := m.Pause(ctx, c, reason); err != nil {
			return err
		}
	}
	return nil
}

// Resume clears a pause and its counters. Resuming a running channel is a no-op.
func (m *Monitor) Resume(ctx context.Context, c domain.Channel) (domain.ChannelStatus, error) {
	return m.update(ctx, c, func(st *domain.ChannelStatus, _ time.Time) (change, error) {
		return resume(st, domain.ReasonManual), nil
	})
}

// SafeMode reads the persisted derived flag.
func (m *Monitor) SafeMode(ctx context.Context) (bool, error) {
	return m.store.GetFlag(ctx, repository.SafeModeFlag)
}

func (m *Monitor) recomputeSafeMode(ctx context.Context) error {
	m.safeMu.Lock()
	defer m.safeMu.Unlock()

	statuses, err := m.store.ListChannelStatuses(ctx)
	if err != nil {
		return fmt.Errorf("list channel statuses: %w", err)
	}
	pausedChannels := make([]domain.Channel, 0, len(statuses))
	for _, st := range statuses {
		if st.Paused {
			pausedChannels = append(pausedChannels, st.Channel)
		}
	}
	safe := len(pausedChannels) >= m.policy.SafeModeThreshold

	prev, err := m.store.GetFlag(ctx, repository.SafeModeFlag)
	if err != nil {
		return err
	}
	if prev == safe {
		return nil
	}
	if err := m.store.SetFlag(ctx, repository.SafeModeFlag, safe); err != nil {
		return err
	}

	if safe {
		m.log.Warn("safe mode enabled", "paused_channels", pausedChannels)
		m.bus.Publish(ctx, events.SafeModeEnabled{BaseEvent: events.NewIncidentEvent(events.NameSafeModeEnabled), PausedChannels: pausedChannels})
	} else {
		m.log.Info("safe mode disabled", "paused_channels", pausedChannels)
		m.bus.Publish(ctx, events.SafeModeDisabled{BaseEvent: events.NewIncidentEvent(events.NameSafeModeDisabled), PausedChannels: pausedChannels})
	}
	return nil
}

// EmailDailyLimit returns the warm-up cap for now. ok is false when no
// warm-up start date is configured.
func (m *Monitor) EmailDailyLimit(now time.Time) (int, bool) {
	start, ok := m.policy.WarmupStart()
	if !ok {
		return 0, false
	}
	day := int(domain.DayOf(now).Sub(domain.DayOf(start)).Hours()/24) + 1
	return WarmupLimit(day), true
}

// WarmupLimit is the email cap for the 1-based campaign day.
func WarmupLimit(day int) int {
	switch {
	case day <= 3:
		return 30
	case day <= 7:
		return 60
	}
	return 80 + 20*((day-8)/7)
}

// AllowSend is the health part of the send gate for channel c.
func (m *Monitor) AllowSend(ctx context.Context, c domain.Channel) error {
	if !c.Sendable() {
		return apperr.Validation(fmt.Sprintf("channel %s cannot send", c)).WithReason(domain.ReasonInvalidInput)
	}
	st, err := m.Status(ctx, c)
	if err != nil {
		return err
	}
	safe, err := m.SafeMode(ctx)
	if err != nil {
		return err
	}
	if safe {
		return apperr.PolicyViolation(domain.ReasonSafeMode, "global safe mode is enabled")
	}
	if st.Paused {
		return apperr.PolicyViolation(domain.ReasonChannelPaused, fmt.Sprintf("channel %s is paused: %s", c, st.PauseReason))
	}

	now := m.now()
	daily, err := m.store.GetDaily(ctx, now, c)
	if err != nil {
		return err
	}
	switch c {
	case domain.ChannelEmail:
		if limit, ok := m.EmailDailyLimit(now); ok && daily.Sent >= limit {
			m.deliverabilityAlert(ctx, st, domain.ReasonWarmupLimit, daily.Sent, limit)
			return apperr.PolicyViolation(domain.ReasonWarmupLimit, fmt.Sprintf("email warm-up limit %d reached", limit))
		}
	case domain.ChannelWhatsApp:
		if limit := m.policy.WhatsAppDailyLimit; limit > 0 && daily.Sent >= limit {
			return apperr.PolicyViolation(domain.ReasonDailyLimit, fmt.Sprintf("whatsapp daily limit %d reached", limit))
		}
	}
	return nil
}
