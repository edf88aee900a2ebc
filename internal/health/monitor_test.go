package health

import (
	"context"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	monitor *Monitor
	store   *memory.Store
	bus     *events.Recording
	now     time.Time
}

func newFixture(t *testing.T, mutate ...func(*config.HealthPolicy)) *fixture {
	t.Helper()
	policy := config.DefaultPolicy().Health
	for _, fn := range mutate {
		fn(&policy)
	}
	f := &fixture{
		store: memory.New(),
		bus:   events.NewRecording(),
		now:   time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	f.monitor = New(f.store, f.bus, nil, policy, WithClock(func() time.Time { return f.now }))
	return f
}

func record(t *testing.T, m *Monitor, c domain.Channel, o domain.Outcome, n int) domain.ChannelStatus {
	t.Helper()
	var st domain.ChannelStatus
	var err error
	for i := 0; i < n; i++ {
		st, err = m.RecordOutcome(context.Background(), c, o)
		require.NoError(t, err)
	}
	return st
}

func TestBounceRateAboveFivePercentPausesEmail(t *testing.T) {
	f := newFixture(t)
	record(t, f.monitor, domain.ChannelEmail, domain.OutcomeSuccess, 100)

	st := record(t, f.monitor, domain.ChannelEmail, domain.OutcomeBounce, 5)
	assert.False(t, st.Paused, "5%% is not above the threshold")

	st = record(t, f.monitor, domain.ChannelEmail, domain.OutcomeBounce, 1)
	assert.True(t, st.Paused)
	assert.Equal(t, domain.ReasonBounceRate, st.PauseReason)

	evts := f.bus.Events()
	require.Len(t, evts, 1)
	paused, ok := evts[0].(events.ChannelPaused)
	require.True(t, ok)
	assert.Equal(t, domain.ChannelEmail, paused.Channel)
	assert.Equal(t, domain.ReasonBounceRate, paused.Reason)
	assert.NotEmpty(t, paused.Fingerprint())
}

func TestComplaintIsCheckedBeforeBounce(t *testing.T) {
	f := newFixture(t)
	record(t, f.monitor, domain.ChannelEmail, domain.OutcomeSuccess, 100)
	record(t, f.monitor, domain.ChannelEmail, domain.OutcomeBounce, 5)

	st := record(t, f.monitor, domain.ChannelEmail, domain.OutcomeComplaint, 1)
	assert.True(t, st.Paused)
	assert.Equal(t, domain.ReasonComplaintRate, st.PauseReason)
}

func TestEmailNeedsMinimumSample(t *testing.T) {
	f := newFixture(t)
	record(t, f.monitor, domain.ChannelEmail, domain.OutcomeSuccess, 10)
	st := record(t, f.monitor, domain.ChannelEmail, domain.OutcomeBounce, 3)
	assert.False(t, st.Paused)
}

func TestWindowResetsAfterWindowSize(t *testing.T) {
	f := newFixture(t)
	record(t, f.monitor, domain.ChannelEmail, domain.OutcomeSuccess, 100)
	record(t, f.monitor, domain.ChannelEmail, domain.OutcomeBounce, 4)

	st := record(t, f.monitor, domain.ChannelEmail, domain.OutcomeSuccess, 1)
	assert.Equal(t, 1, st.WindowSent)
	assert.Zero(t, st.WindowBounces)
}

func TestWhatsAppFailureRatePauses(t *testing.T) {
	f := newFixture(t)
	record(t, f.monitor, domain.ChannelWhatsApp, domain.OutcomeSuccess, 9)
	st := record(t, f.monitor, domain.ChannelWhatsApp, domain.OutcomeFailure, 2)
	assert.True(t, st.Paused)
	assert.Equal(t, domain.ReasonWAFailRate, st.PauseReason)
}

func TestScrapeErrorStreakPausesWithCooldownAndAutoResumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st := record(t, f.monitor, domain.ChannelScrape, domain.OutcomeFailure, 2)
	assert.False(t, st.Paused)
	st = record(t, f.monitor, domain.ChannelScrape, domain.OutcomeFailure, 1)
	require.True(t, st.Paused)
	assert.Equal(t, domain.ReasonErrorStreak, st.PauseReason)
	require.NotNil(t, st.CooldownUntil)
	assert.Equal(t, f.now.Add(12*time.Hour), *st.CooldownUntil)

	paused, err := f.monitor.IsPaused(ctx, domain.ChannelScrape)
	require.NoError(t, err)
	assert.True(t, paused)

	f.now = f.now.Add(12 * time.Hour)
	paused, err = f.monitor.IsPaused(ctx, domain.ChannelScrape)
	require.NoError(t, err)
	assert.False(t, paused)

	var resumed []events.ChannelResumed
	for _, e := range f.bus.Events() {
		if r, ok := e.(events.ChannelResumed); ok {
			resumed = append(resumed, r)
		}
	}
	require.Len(t, resumed, 1)
	assert.Equal(t, domain.ReasonCooldownElapsed, resumed[0].Reason)
}

func TestCaptchaPausesImmediatelyAndEmits(t *testing.T) {
	f := newFixture(t)
	st := record(t, f.monitor, domain.ChannelScrape, domain.OutcomeCaptchaDetected, 1)
	assert.True(t, st.Paused)
	assert.Equal(t, domain.ReasonCaptcha, st.PauseReason)
	assert.Equal(t, 1, f.bus.Count(events.NameCaptchaDetected))
	assert.Equal(t, 1, f.bus.Count(events.NameChannelPaused))
}

func TestSafeModeFollowsPausedCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	record(t, f.monitor, domain.ChannelScrape, domain.OutcomeCaptchaDetected, 1)
	safe, err := f.monitor.SafeMode(ctx)
	require.NoError(t, err)
	assert.False(t, safe)

	_, err = f.monitor.Pause(ctx, domain.ChannelWhatsApp, domain.ReasonManual)
	require.NoError(t, err)
	safe, err = f.monitor.SafeMode(ctx)
	require.NoError(t, err)
	assert.True(t, safe)
	assert.Equal(t, 1, f.bus.Count(events.NameSafeModeEnabled))

	err = f.monitor.AllowSend(ctx, domain.ChannelEmail)
	assert.True(t, apperr.Is(err, apperr.KindPolicyViolation))
	assert.Equal(t, domain.ReasonSafeMode, apperr.ReasonOf(err))

	_, err = f.monitor.Resume(ctx, domain.ChannelWhatsApp)
	require.NoError(t, err)
	safe, err = f.monitor.SafeMode(ctx)
	require.NoError(t, err)
	assert.False(t, safe)
	assert.Equal(t, 1, f.bus.Count(events.NameSafeModeDisabled))
	assert.NoError(t, f.monitor.AllowSend(ctx, domain.ChannelEmail))
}

func TestPausedChannelBlocksOnlyItself(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.monitor.Pause(ctx, domain.ChannelEmail, "")
	require.NoError(t, err)

	err = f.monitor.AllowSend(ctx, domain.ChannelEmail)
	assert.Equal(t, domain.ReasonChannelPaused, apperr.ReasonOf(err))
	assert.NoError(t, f.monitor.AllowSend(ctx, domain.ChannelWhatsApp))
}

func TestPauseAllAndResumeAreIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.monitor.PauseAll(ctx, domain.ReasonManual))
	require.NoError(t, f.monitor.PauseAll(ctx, domain.ReasonManual))
	assert.Equal(t, 2, f.bus.Count(events.NameChannelPaused))
	assert.Equal(t, 1, f.bus.Count(events.NameSafeModeEnabled))

	_, err := f.monitor.Resume(ctx, domain.ChannelScrape)
	require.NoError(t, err)
	assert.Zero(t, f.bus.Count(events.NameChannelResumed), "resuming a running channel emits nothing")
}

func TestInvalidInputDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.monitor.RecordOutcome(ctx, "SMS", domain.OutcomeSuccess)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.monitor.RecordOutcome(ctx, domain.ChannelEmail, "EXPLODED")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.monitor.RecordOutcome(ctx, domain.ChannelScrape, domain.OutcomeBounce)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.monitor.RecordEmailFeedback(ctx, -1, 0, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	st, err := f.store.GetChannelStatus(ctx, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Zero(t, st.WindowSent)
	assert.Empty(t, f.bus.Events())
}

func TestEmailFeedbackPausesOnBatch(t *testing.T) {
	f := newFixture(t)
	st, err := f.monitor.RecordEmailFeedback(context.Background(), 50, 3, 0)
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, domain.ReasonBounceRate, st.PauseReason)
}

func TestUnstableRunsPauseScrape(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, err := f.monitor.RecordUnstableRun(ctx, "run-1", false)
	require.NoError(t, err)
	assert.False(t, st.Paused)
	st, err = f.monitor.RecordUnstableRun(ctx, "run-2", false)
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, domain.ReasonUnstableRuns, st.PauseReason)
}

func TestWarmupLimit(t *testing.T) {
	cases := map[int]int{1: 30, 3: 30, 4: 60, 7: 60, 8: 80, 14: 80, 15: 100, 22: 120}
	for day, want := range cases {
		assert.Equal(t, want, WarmupLimit(day), "day %d", day)
	}
}

func TestAllowSendEnforcesDailyLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(p *config.HealthPolicy) {
		p.EmailWarmupStart = "2026-05-10"
		p.WhatsAppDailyLimit = 2
	})

	limit, ok := f.monitor.EmailDailyLimit(f.now)
	require.True(t, ok)
	require.Equal(t, 30, limit)

	require.NoError(t, f.store.IncrementDaily(ctx, domain.DailyMetric{Day: f.now, Channel: domain.ChannelEmail, Sent: 30}))
	err := f.monitor.AllowSend(ctx, domain.ChannelEmail)
	assert.Equal(t, domain.ReasonWarmupLimit, apperr.ReasonOf(err))
	assert.Equal(t, 1, f.bus.Count(events.NameDeliverabilityAlert))

	require.NoError(t, f.store.IncrementDaily(ctx, domain.DailyMetric{Day: f.now, Channel: domain.ChannelWhatsApp, Sent: 2}))
	err = f.monitor.AllowSend(ctx, domain.ChannelWhatsApp)
	assert.Equal(t, domain.ReasonDailyLimit, apperr.ReasonOf(err))

	f.now = f.now.Add(24 * time.Hour)
	assert.NoError(t, f.monitor.AllowSend(ctx, domain.ChannelWhatsApp))
}
