package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/health"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	throttle *Throttle
	monitor  *health.Monitor
	bus      *events.Recording
	slept    []time.Duration
	now      time.Time
}

func newHarness(t *testing.T, r float64) *harness {
	t.Helper()
	policy := config.DefaultPolicy()
	h := &harness{bus: events.NewRecording(), now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
	h.monitor = health.New(memory.New(), h.bus, nil, policy.Health, health.WithClock(func() time.Time { return h.now }))
	h.throttle = New(policy.Throttle, h.monitor, h.bus, nil,
		WithRand(func() float64 { return r }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		}))
	return h
}

func TestWaitDrawsDelayWithinBounds(t *testing.T) {
	ctx := context.Background()
	for _, r := range []float64{0, 0.5, 0.999} {
		h := newHarness(t, r)
		s, err := h.throttle.Start(ctx, "run-1")
		require.NoError(t, err)
		require.NoError(t, s.Wait(ctx))
		require.Len(t, h.slept, 1)
		assert.GreaterOrEqual(t, h.slept[0], 1800*time.Millisecond)
		assert.Less(t, h.slept[0], 4200*time.Millisecond)
	}
}

func TestLongPauseAfterEveryTwentyResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	s, err := h.throttle.Start(ctx, "run-1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Wait(ctx))
		require.NoError(t, s.RecordResult(ctx))
	}
	require.NoError(t, s.Wait(ctx))
	require.NoError(t, s.Wait(ctx))

	require.Len(t, h.slept, 22)
	assert.Equal(t, 1800*time.Millisecond, h.slept[19])
	assert.Equal(t, 1800*time.Millisecond+45*time.Second, h.slept[20])
	assert.Equal(t, 1800*time.Millisecond, h.slept[21], "one long pause per block")
}

func TestSingleActiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	s, err := h.throttle.Start(ctx, "run-1")
	require.NoError(t, err)

	_, err = h.throttle.Start(ctx, "run-2")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, domain.ReasonSessionActive, apperr.ReasonOf(err))

	_, err = s.Finish(ctx)
	require.NoError(t, err)
	_, err = h.throttle.Start(ctx, "run-2")
	assert.NoError(t, err)
}

func TestErrorStreakHaltsAndPausesScrape(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	s, err := h.throttle.Start(ctx, "run-1")
	require.NoError(t, err)

	require.NoError(t, s.RecordError(ctx, ErrorGeneric))
	require.NoError(t, s.RecordError(ctx, ErrorGeneric))
	require.NoError(t, s.RecordResult(ctx))
	require.NoError(t, s.RecordError(ctx, ErrorGeneric))
	require.NoError(t, s.RecordError(ctx, ErrorGeneric))
	assert.False(t, s.Halted(), "a result resets the streak")

	require.NoError(t, s.RecordError(ctx, ErrorGeneric))
	assert.True(t, s.Halted())
	assert.ErrorIs(t, s.Wait(ctx), ErrHalted)
	assert.Equal(t, 1, h.bus.Count(events.NameScrapePaused))

	paused, err := h.monitor.IsPaused(ctx, domain.ChannelScrape)
	require.NoError(t, err)
	assert.True(t, paused)

	sum := s.Summary()
	assert.Equal(t, StatePaused, sum.State)
	assert.Equal(t, domain.ReasonErrorStreak, sum.HaltReason)
	assert.Equal(t, 5, sum.Errors)
	assert.Equal(t, 1, sum.Results)
}

func TestCaptchaHaltsImmediatelyAndBlocksNextRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	s, err := h.throttle.Start(ctx, "run-1")
	require.NoError(t, err)

	require.NoError(t, s.RecordError(ctx, ErrorCaptcha))
	assert.True(t, s.Halted())
	sum, err := s.Finish(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Unstable)
	assert.Equal(t, 1, sum.Captcha)
	assert.Equal(t, 1, h.bus.Count(events.NameCaptchaDetected))

	err = h.throttle.CanStart(ctx)
	assert.Equal(t, domain.ReasonScrapePaused, apperr.ReasonOf(err))
	_, err = h.throttle.Start(ctx, "run-2")
	assert.True(t, apperr.Is(err, apperr.KindPolicyViolation))

	h.now = h.now.Add(12 * time.Hour)
	assert.NoError(t, h.throttle.CanStart(ctx), "cooldown elapsed")
}

func TestStreakCarriedFromPreviousRunHaltsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	first, err := h.throttle.Start(ctx, "run-1")
	require.NoError(t, err)
	require.NoError(t, first.RecordError(ctx, ErrorGeneric))
	require.NoError(t, first.RecordError(ctx, ErrorGeneric))
	sum, err := first.Finish(ctx)
	require.NoError(t, err)
	require.Equal(t, StateFinished, sum.State)

	s, err := h.throttle.Start(ctx, "run-2")
	require.NoError(t, err)
	require.NoError(t, s.RecordError(ctx, ErrorGeneric))

	paused, err := h.monitor.IsPaused(ctx, domain.ChannelScrape)
	require.NoError(t, err)
	require.True(t, paused)
	assert.True(t, s.Halted(), "a paused channel stops the run")
	assert.ErrorIs(t, s.Wait(ctx), ErrHalted)
	assert.Equal(t, domain.ReasonErrorStreak, s.Summary().HaltReason)
	assert.Equal(t, 1, h.bus.Count(events.NameScrapePaused))
}

func TestWaitHaltsWhenChannelPausedElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	s, err := h.throttle.Start(ctx, "run-1")
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	_, err = h.monitor.Pause(ctx, domain.ChannelScrape, domain.ReasonManual)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Wait(ctx), ErrHalted)
	sum := s.Summary()
	assert.Equal(t, StatePaused, sum.State)
	assert.Equal(t, domain.ReasonScrapePaused, sum.HaltReason)
}

func TestWaitHonorsCancellation(t *testing.T) {
	policy := config.DefaultPolicy()
	h := newHarness(t, 0)
	th := New(policy.Throttle, h.monitor, h.bus, nil)
	s, err := th.Start(context.Background(), "run-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.Canceled)
}

func TestParseErrorKind(t *testing.T) {
	k, err := ParseErrorKind("429")
	require.NoError(t, err)
	assert.Equal(t, ErrorRateLimited, k)
	k, err = ParseErrorKind("captcha")
	require.NoError(t, err)
	assert.Equal(t, ErrorCaptcha, k)
	_, err = ParseErrorKind("boom")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
