package pricing

import (
	"context"
	"testing"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLadder(t *testing.T, mutate ...func(*config.PricingPolicy)) (*Ladder, *events.Recording) {
	t.Helper()
	policy := config.DefaultPolicy().Pricing
	for _, fn := range mutate {
		fn(&policy)
	}
	bus := events.NewRecording()
	return New(memory.New(), bus, nil, policy), bus
}

// offers quotes n offers for plan and accepts the first `accepted` of them
// right after they are sent.
func offers(t *testing.T, l *Ladder, plan domain.Plan, n, accepted int) domain.PriceLevel {
	t.Helper()
	ctx := context.Background()
	var lvl domain.PriceLevel
	for i := 0; i < n; i++ {
		o, err := l.QuoteOffer(ctx, uuid.New(), plan)
		require.NoError(t, err)
		lvl, err = l.RecordOfferOutcome(ctx, o.ID, i < accepted)
		require.NoError(t, err)
	}
	return lvl
}

func TestSaleRaisesPriceByOneStep(t *testing.T) {
	ctx := context.Background()
	l, bus := newLadder(t)

	cur, err := l.Current(ctx, domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, 100, cur.Price)

	lvl, err := l.RecordSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, 1, lvl.Level)
	assert.Equal(t, 200, lvl.Price)

	other, err := l.Current(ctx, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, 0, other.Level, "plans move independently")
	assert.Equal(t, 1, bus.Count(events.NamePriceChanged))
}

func TestWeakWindowStepsDownOncePerWindow(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t)
	for i := 0; i < 2; i++ {
		_, err := l.RecordSale(ctx, uuid.New(), domain.PlanCompleto)
		require.NoError(t, err)
	}

	lvl := offers(t, l, domain.PlanCompleto, 9, 0)
	assert.Equal(t, 2, lvl.Level, "an incomplete window never adjusts")

	lvl = offers(t, l, domain.PlanCompleto, 1, 0)
	assert.Equal(t, 1, lvl.Level)
	assert.Equal(t, 300, lvl.Price)
	assert.Empty(t, lvl.Window)

	lvl = offers(t, l, domain.PlanCompleto, 10, 0)
	assert.Equal(t, 0, lvl.Level)

	lvl = offers(t, l, domain.PlanCompleto, 10, 0)
	assert.Equal(t, 0, lvl.Level, "the floor holds")
	assert.Equal(t, 200, lvl.Price)
}

func TestConversionAtThresholdHolds(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t)
	_, err := l.RecordSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)

	lvl := offers(t, l, domain.PlanSimples, 10, 1)
	assert.Equal(t, 1, lvl.Level)
}

func TestBelowBaselineStepsDown(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t)

	lvl := offers(t, l, domain.PlanSimples, 10, 3)
	require.NotNil(t, lvl.BaselineConversion)
	assert.InDelta(t, 0.3, *lvl.BaselineConversion, 1e-9)
	assert.Equal(t, 0, lvl.Level)

	_, err := l.RecordSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)

	lvl = offers(t, l, domain.PlanSimples, 10, 2)
	assert.Equal(t, 0, lvl.Level)
}

func TestSaleClearsWindowAndRespectsCap(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t, func(p *config.PricingPolicy) { p.MaxLevel = 1 })

	offers(t, l, domain.PlanSimples, 5, 0)
	lvl, err := l.RecordSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)
	assert.Empty(t, lvl.Window)
	assert.Zero(t, lvl.SinceEvaluation)

	lvl, err = l.RecordSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, 1, lvl.Level, "capped at max level")
}

func TestOfferOutcomeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t)
	o, err := l.QuoteOffer(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, 100, o.Price)

	first, err := l.RecordOfferOutcome(ctx, o.ID, false)
	require.NoError(t, err)
	again, err := l.RecordOfferOutcome(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, first.SinceEvaluation, again.SinceEvaluation, "a repeat must not count twice")

	_, err = l.RecordOfferOutcome(ctx, o.ID, true)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = l.RecordOfferOutcome(ctx, uuid.New(), true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestInvalidPlan(t *testing.T) {
	l, _ := newLadder(t)
	_, err := l.RecordSale(context.Background(), uuid.New(), "PREMIUM")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestResolveLeadOffersAcceptsSoldPlan(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t)
	lead := uuid.New()
	quoted := map[domain.Plan]domain.Offer{}
	for _, p := range domain.Plans {
		o, err := l.QuoteOffer(ctx, lead, p)
		require.NoError(t, err)
		quoted[p] = o
	}

	offer, ok, err := l.ResolveLeadOffers(ctx, lead, domain.PlanSimples)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, quoted[domain.PlanSimples].ID, offer.ID)
	assert.Equal(t, domain.OfferAccepted, offer.Outcome)
	assert.Equal(t, 100, offer.Price)

	for _, p := range domain.Plans {
		lvl, err := l.Current(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []bool{false}, lvl.Window, "settling leaves %s's window alone", p)
	}

	_, ok, err = l.ResolveLeadOffers(ctx, lead, domain.PlanSimples)
	require.NoError(t, err)
	assert.False(t, ok, "nothing left to settle")
}

func TestTenOffersWithoutSaleStepDown(t *testing.T) {
	ctx := context.Background()
	l, bus := newLadder(t)
	lead := uuid.New()
	_, err := l.QuoteOffer(ctx, lead, domain.PlanCompleto)
	require.NoError(t, err)
	lvl, err := l.RecordSale(ctx, lead, domain.PlanCompleto)
	require.NoError(t, err)
	require.Equal(t, 1, lvl.Level)

	for i := 0; i < 10; i++ {
		_, err := l.QuoteOffer(ctx, lead, domain.PlanCompleto)
		require.NoError(t, err)
	}

	lvl, err = l.Current(ctx, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, 0, lvl.Level)
	assert.Equal(t, 200, lvl.Price)
	assert.Empty(t, lvl.Window)
	assert.Equal(t, 2, bus.Count(events.NamePriceChanged))
}

func TestAcceptedOfferCountsInOpenWindow(t *testing.T) {
	ctx := context.Background()
	l, _ := newLadder(t)
	o, err := l.QuoteOffer(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)
	_, err = l.QuoteOffer(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)

	lvl, err := l.RecordOfferOutcome(ctx, o.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, lvl.Window)
	assert.Equal(t, 2, lvl.SinceEvaluation)
}

func TestRecordSaleIsIdempotentPerLead(t *testing.T) {
	ctx := context.Background()
	l, bus := newLadder(t)
	lead := uuid.New()

	first, err := l.RecordSale(ctx, lead, domain.PlanSimples)
	require.NoError(t, err)
	again, err := l.RecordSale(ctx, lead, domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, first.Level, again.Level)
	assert.Equal(t, 1, again.Level)
	assert.Equal(t, 1, bus.Count(events.NamePriceChanged))

	other, err := l.RecordSale(ctx, uuid.New(), domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, 2, other.Level)
}
