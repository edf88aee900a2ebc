// Package pricing implements the per-plan price ladder: a sale raises the
// price one step, a weak window of sent offers lowers it one step.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
)

const (
	// maxPendingOffers bounds one settlement pass.
	maxPendingOffers = 32
	// recentSalesKept bounds the per-plan list that makes RecordSale idempotent.
	recentSalesKept = 32
)

// Price change reasons.
const (
	ReasonSale           = "sale"
	ReasonZeroSales      = "zero_sales_in_window"
	ReasonBelowThreshold = "below_threshold"
	ReasonBelowBaseline  = "below_baseline"
)

type Ladder struct {
	store  repository.PricingStore
	bus    events.Bus
	log    *logger.Logger
	policy config.PricingPolicy
	now    func() time.Time

	planMu map[domain.Plan]*sync.Mutex
}

func New(store repository.PricingStore, bus events.Bus, log *logger.Logger, policy config.PricingPolicy) *Ladder {
	if log == nil {
		log = logger.Nop()
	}
	l := &Ladder{
		store:  store,
		bus:    bus,
		log:    log,
		policy: policy,
		now:    time.Now,
		planMu: make(map[domain.Plan]*sync.Mutex, len(domain.Plans)),
	}
	for _, p := range domain.Plans {
		l.planMu[p] = &sync.Mutex{}
	}
	return l
}

// SetClock replaces time.Now. Tests only.
func (l *Ladder) SetClock(now func() time.Time) { l.now = now }

// PriceFor returns the price of plan at level.
func (l *Ladder) PriceFor(plan domain.Plan, level int) int {
	base := l.policy.BaseCompleto
	if plan == domain.PlanSimples {
		base = l.policy.BaseSimples
	}
	return base + level*l.policy.Step
}

func (l *Ladder) load(ctx context.Context, plan domain.Plan) (domain.PriceLevel, error) {
	p, err := l.store.GetPriceLevel(ctx, plan)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.PriceLevel{Plan: plan, Level: 0, Price: l.PriceFor(plan, 0)}, nil
	}
	return p, err
}

func (l *Ladder) lock(plan domain.Plan) (func(), error) {
	mu, ok := l.planMu[plan]
	if !ok {
		return nil, apperr.Validation("unknown plan: " + string(plan)).WithReason(domain.ReasonInvalidInput)
	}
	mu.Lock()
	return mu.Unlock, nil
}

// Current returns the ladder position of plan.
func (l *Ladder) Current(ctx context.Context, plan domain.Plan) (domain.PriceLevel, error) {
	if _, err := domain.ParsePlan(string(plan)); err != nil {
		return domain.PriceLevel{}, err
	}
	return l.load(ctx, plan)
}

// Levels returns every plan's position.
func (l *Ladder) Levels(ctx context.Context) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(domain.Plans))
	for _, p := range domain.Plans {
		lvl, err := l.load(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, nil
}

// QuoteOffer snapshots the current price of plan for a lead and counts the
// offer in the plan's window. The offer that completes a window triggers its
// evaluation, which may lower the level by one.
func (l *Ladder) QuoteOffer(ctx context.Context, leadID uuid.UUID, plan domain.Plan) (domain.Offer, error) {
	unlock, err := l.lock(plan)
	if err != nil {
		return domain.Offer{}, err
	}
	defer unlock()

	current, err := l.load(ctx, plan)
	if err != nil {
		return domain.Offer{}, err
	}
	offer := domain.Offer{
		ID:        uuid.New(),
		LeadID:    leadID,
		Plan:      plan,
		Level:     current.Level,
		Price:     current.Price,
		Outcome:   domain.OfferPending,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.InsertOffer(ctx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("insert offer: %w", err)
	}

	next, reason := l.observe(current, false)
	if err := l.store.SavePriceLevel(ctx, next); err != nil {
		return domain.Offer{}, fmt.Errorf("save price level: %w", err)
	}
	if next.Level != current.Level {
		l.announce(ctx, current, next, reason)
	}
	return offer, nil
}

// RecordOfferOutcome resolves an offer. An acceptance converts one offer of
// the plan's open window; outcomes never evaluate a window by themselves.
func (l *Ladder) RecordOfferOutcome(ctx context.Context, offerID uuid.UUID, accepted bool) (domain.PriceLevel, error) {
	outcome := domain.OfferRejected
	if accepted {
		outcome = domain.OfferAccepted
	}
	offer, err := l.store.ResolveOffer(ctx, offerID, outcome, l.now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.PriceLevel{}, apperr.NotFound("offer not found")
	case errors.Is(err, repository.ErrAlreadyResolved):
		if offer.Outcome == outcome {
			return l.load(ctx, offer.Plan)
		}
		return domain.PriceLevel{}, apperr.Conflict(fmt.Sprintf("offer already %s", offer.Outcome)).WithReason(domain.ReasonAlreadyDecided)
	case err != nil:
		return domain.PriceLevel{}, err
	}

	unlock, err := l.lock(offer.Plan)
	if err != nil {
		return domain.PriceLevel{}, err
	}
	defer unlock()

	current, err := l.load(ctx, offer.Plan)
	if err != nil || !accepted {
		return current, err
	}
	idx := slices.Index(current.Window, false)
	if idx < 0 {
		return current, nil
	}
	next := current
	next.Window = slices.Clone(current.Window)
	next.Window[idx] = true
	if err := l.store.SavePriceLevel(ctx, next); err != nil {
		return domain.PriceLevel{}, fmt.Errorf("save price level: %w", err)
	}
	return next, nil
}

// observe appends one outcome and evaluates a completed window. It returns the
// new position and, when the level moved, the reason.
func (l *Ladder) observe(p domain.PriceLevel, accepted bool) (domain.PriceLevel, string) {
	size := l.policy.WindowSize
	p.Window = append(append([]bool(nil), p.Window...), accepted)
	if len(p.Window) > size {
		p.Window = p.Window[len(p.Window)-size:]
	}
	p.SinceEvaluation++
	if len(p.Window) < size || p.SinceEvaluation < size {
		return p, ""
	}

	conversion := p.Conversion()
	if p.Level == 0 && p.BaselineConversion == nil {
		baseline := conversion
		p.BaselineConversion = &baseline
	}

	var reason string
	switch {
	case conversion == 0:
		reason = ReasonZeroSales
	case conversion < l.policy.ConversionThreshold:
		reason = ReasonBelowThreshold
	case p.BaselineConversion != nil && conversion < *p.BaselineConversion:
		reason = ReasonBelowBaseline
	}

	p.Window = nil
	p.SinceEvaluation = 0
	if reason == "" || p.Level == 0 {
		return p, ""
	}
	p.Level--
	p.Price = l.PriceFor(p.Plan, p.Level)
	return p, reason
}

// RecordSale raises plan one level for the sale of leadID and starts a fresh
// window. A repeated call for the same lead returns the current level
// unchanged, so a retried sale raises the price once.
func (l *Ladder) RecordSale(ctx context.Context, leadID uuid.UUID, plan domain.Plan) (domain.PriceLevel, error) {
	if _, err := domain.ParsePlan(string(plan)); err != nil {
		return domain.PriceLevel{}, err
	}
	unlock, err := l.lock(plan)
	if err != nil {
		return domain.PriceLevel{}, err
	}
	defer unlock()

	current, err := l.load(ctx, plan)
	if err != nil {
		return domain.PriceLevel{}, err
	}
	if slices.Contains(current.RecentSales, leadID) {
		return current, nil
	}
	next := current
	next.Window = nil
	next.SinceEvaluation = 0
	next.RecentSales = append(slices.Clone(current.RecentSales), leadID)
	if len(next.RecentSales) > recentSalesKept {
		next.RecentSales = next.RecentSales[len(next.RecentSales)-recentSalesKept:]
	}
	if l.policy.MaxLevel <= 0 || current.Level < l.policy.MaxLevel {
		next.Level++
		next.Price = l.PriceFor(plan, next.Level)
	}
	if err := l.store.SavePriceLevel(ctx, next); err != nil {
		return domain.PriceLevel{}, fmt.Errorf("save price level: %w", err)
	}
	if next.Level != current.Level {
		l.announce(ctx, current, next, ReasonSale)
	}
	return next, nil
}

func (l *Ladder) announce(ctx context.Context, from, to domain.PriceLevel, reason string) {
	l.log.Info("price level changed", "plan", to.Plan, "from_level", from.Level, "to_level", to.Level, "price", to.Price, "reason", reason)
	l.bus.Publish(ctx, events.PriceChanged{
		BaseEvent: events.NewBaseEvent(),
		Plan:      to.Plan,
		FromLevel: from.Level,
		ToLevel:   to.Level,
		Price:     to.Price,
		Reason:    reason,
	})
}

// ResolveLeadOffers settles every pending offer of a lead after a sale: the
// offer for plan is accepted, the others rejected. Settling leaves the windows
// alone; the sale already started a fresh one. It returns the accepted offer,
// if one was quoted.
func (l *Ladder) ResolveLeadOffers(ctx context.Context, leadID uuid.UUID, plan domain.Plan) (domain.Offer, bool, error) {
	var (
		accepted domain.Offer
		found    bool
	)
	for range maxPendingOffers {
		offer, err := l.store.LatestPendingOffer(ctx, leadID)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return domain.Offer{}, false, fmt.Errorf("load pending offer: %w", err)
		}
		ok := offer.Plan == plan && !found
		outcome := domain.OfferRejected
		if ok {
			outcome = domain.OfferAccepted
		}
		resolved, err := l.store.ResolveOffer(ctx, offer.ID, outcome, l.now().UTC())
		if errors.Is(err, repository.ErrAlreadyResolved) {
			continue
		}
		if err != nil {
			return domain.Offer{}, false, fmt.Errorf("resolve offer: %w", err)
		}
		if ok {
			accepted, found = resolved, true
		}
	}
	return accepted, found, nil
}
