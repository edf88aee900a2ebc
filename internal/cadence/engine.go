package cadence

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/lock"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/internal/transport"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence the cadence needs.
type Store interface {
	repository.LeadReader
	repository.LeadWriter
	repository.TouchStore
	repository.OptOutStore
	repository.SendGuardStore
	repository.MetricsStore
}

// Health is the channel gate and outcome sink.
type Health interface {
	AllowSend(ctx context.Context, c domain.Channel) error
	RecordOutcome(ctx context.Context, c domain.Channel, o domain.Outcome) (domain.ChannelStatus, error)
	SafeMode(ctx context.Context) (bool, error)
}

// Review guards commercial messages.
type Review interface {
	RequireDecision(ctx context.Context, leadID uuid.UUID) error
	AwaitingReview(ctx context.Context, leadID uuid.UUID) (bool, error)
}

// Pricing supplies offer prices.
type Pricing interface {
	Current(ctx context.Context, plan domain.Plan) (domain.PriceLevel, error)
	QuoteOffer(ctx context.Context, leadID uuid.UUID, plan domain.Plan) (domain.Offer, error)
}

// Outcome of one Execute call.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeClosed  Outcome = "closed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeBlocked Outcome = "blocked"
	OutcomeFailed  Outcome = "failed"
	OutcomeHalted  Outcome = "halted"
)

// Result reports what Execute did with one lead.
type Result struct {
	LeadID            uuid.UUID `json:"leadId"`
	Decision          Decision  `json:"decision"`
	Outcome           Outcome   `json:"outcome"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
}

// Engine runs the cadence.
type Engine struct {
	store    Store
	health   Health
	review   Review
	pricing  Pricing
	dispatch transport.Dispatcher
	locker   lock.Locker
	bus      events.Bus
	log      *logger.Logger
	policy   config.CadencePolicy
	now      func() time.Time
}

// Deps wires an Engine.
type Deps struct {
	Store      Store
	Health     Health
	Review     Review
	Pricing    Pricing
	Dispatcher transport.Dispatcher
	Locker     lock.Locker
	Bus        events.Bus
	Log        *logger.Logger
	Policy     config.CadencePolicy
}

func New(d Deps) *Engine {
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex(lock.DefaultWait)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Policy.PageSize <= 0 {
		d.Policy.PageSize = 100
	}
	return &Engine{
		store:    d.Store,
		health:   d.Health,
		review:   d.Review,
		pricing:  d.Pricing,
		dispatch: d.Dispatcher,
		locker:   d.Locker,
		bus:      d.Bus,
		log:      d.Log,
		policy:   d.Policy,
		now:      time.Now,
	}
}

// SetClock replaces time.Now. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Decide evaluates lead with the engine's clock and policy.
func (e *Engine) Decide(lead domain.Lead) Decision {
	return Decide(lead, e.now().UTC(), e.policy)
}

// SelectEligibleLeads yields every lead with a due action, paging by id. Each
// page is read from the store, so re-running after an interruption only yields
// leads that are still due.
func (e *Engine) SelectEligibleLeads(ctx context.Context, runID string) iter.Seq2[domain.Lead, error] {
	return func(yield func(domain.Lead, error) bool) {
		log := e.log.WithRunID(runID)
		cursor := uuid.Nil
		for {
			if err := ctx.Err(); err != nil {
				yield(domain.Lead{}, err)
				return
			}
			page, err := e.store.ListLeadsAfter(ctx, cursor, eligibleStates, e.policy.PageSize)
			if err != nil {
				yield(domain.Lead{}, fmt.Errorf("list leads: %w", err))
				return
			}
			now := e.now().UTC()
			for _, lead := range page {
				cursor = lead.ID
				if d := Decide(lead, now, e.policy); d.Action == ActionNone {
					continue
				}
				if !yield(lead, nil) {
					return
				}
			}
			if len(page) < e.policy.PageSize {
				log.Debug("eligible lead scan complete", "cursor", cursor)
				return
			}
		}
	}
}

// Execute performs the due action for one lead under its lock. A gate
// rejection is returned as a PolicyViolation, a send failure as a transient
// error.
func (e *Engine) Execute(ctx context.Context, runID string, leadID uuid.UUID) (Result, error) {
	ctx = logger.ContextWithRunID(ctx, runID)
	res := Result{LeadID: leadID, Outcome: OutcomeSkipped}

	unlock, err := e.locker.Lock(ctx, lock.LeadKey(leadID))
	if err != nil {
		return res, err
	}
	defer unlock()

	lead, err := e.store.GetLead(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return res, apperr.NotFound("lead not found")
	}
	if err != nil {
		return res, fmt.Errorf("load lead: %w", err)
	}
	if lead.Halted {
		res.Decision = none(domain.ReasonLeadHalted)
		return res, nil
	}
	if err := domain.ValidateLead(lead); err != nil {
		res.Outcome = OutcomeHalted
		e.halt(ctx, lead, err.Error())
		return res, err
	}

	d := Decide(lead, e.now().UTC(), e.policy)
	res.Decision = d
	switch d.Action {
	case ActionNone:
		return res, nil
	case ActionFollowUp, ActionCloseStale:
		// An unread reply outranks the sequence.
		pending, err := e.review.AwaitingReview(ctx, lead.ID)
		if err != nil {
			return res, err
		}
		if pending {
			res.Decision = none(domain.ReasonReviewPending)
			return res, nil
		}
	}
	if d.Action == ActionCloseStale {
		return e.closeStale(ctx, lead, res)
	}
	return e.send(ctx, runID, lead, d, res)
}

func (e *Engine) closeStale(ctx context.Context, lead domain.Lead, res Result) (Result, error) {
	lead.State = domain.LeadClosedStale
	if _, err := e.store.UpdateLead(ctx, lead); err != nil {
		return res, e.writeErr(err)
	}
	e.log.WithContext(ctx).Info("lead closed stale", "lead_id", lead.ID, "attempts", lead.Attempts)
	res.Outcome = OutcomeClosed
	return res, nil
}

func (e *Engine) send(ctx context.Context, runID string, lead domain.Lead, d Decision, res Result) (Result, error) {
	if err := e.gate(ctx, &lead, d); err != nil {
		res.Outcome = OutcomeBlocked
		e.blocked(ctx, runID, lead, d, err)
		return res, err
	}

	key := domain.SendGuardKey{ContactHash: lead.ContactHash, Channel: d.Channel, MessageKind: d.MessageKind, SequenceStep: d.Step}
	claimed, err := e.store.ClaimSend(ctx, key)
	if err != nil {
		return res, fmt.Errorf("claim send guard: %w", err)
	}
	if !claimed {
		err := apperr.PolicyViolation(domain.ReasonDuplicateSend, fmt.Sprintf("%s step %d already sent to this contact", d.MessageKind, d.Step))
		res.Outcome = OutcomeHalted
		e.blocked(ctx, runID, lead, d, err)
		e.halt(ctx, lead, "send guard already claimed")
		return res, err
	}

	cmd := transport.SendCommand{Lead: lead, Channel: d.Channel, MessageKind: d.MessageKind, Step: d.Step, RunID: runID}
	if d.Action == ActionOffer {
		if cmd.Offers, err = e.currentOffers(ctx, lead.ID); err != nil {
			e.release(ctx, key)
			return res, err
		}
	}

	receipt, err := e.dispatch.Dispatch(ctx, cmd)
	if err != nil {
		e.release(ctx, key)
		res.Outcome = OutcomeFailed
		e.failed(ctx, runID, lead, d, err)
		if apperr.Is(err, apperr.KindTransient) {
			return res, err
		}
		return res, apperr.Transient(fmt.Sprintf("%s send failed", d.Channel), err)
	}

	res.Outcome = OutcomeSent
	res.ProviderMessageID = receipt.ProviderMessageID
	return res, e.acknowledge(ctx, runID, lead, d, receipt)
}

// gate re-validates every send precondition right before the send.
func (e *Engine) gate(ctx context.Context, lead *domain.Lead, d Decision) error {
	if lead.State == domain.LeadUnsubscribed {
		return apperr.PolicyViolation(domain.ReasonUnsubscribed, "lead is unsubscribed")
	}
	opted, err := e.store.HasOptOut(ctx, lead.ContactHash, d.Channel)
	if err != nil {
		return fmt.Errorf("check opt-out: %w", err)
	}
	if opted {
		e.markUnsubscribed(ctx, lead)
		return apperr.PolicyViolation(domain.ReasonOptedOut, "contact opted out")
	}
	if err := e.health.AllowSend(ctx, d.Channel); err != nil {
		return err
	}
	if d.MessageKind.Commercial() {
		if err := e.review.RequireDecision(ctx, lead.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) markUnsubscribed(ctx context.Context, lead *domain.Lead) {
	next := *lead
	next.State = domain.LeadUnsubscribed
	saved, err := e.store.UpdateLead(ctx, next)
	if err != nil {
		e.log.WithContext(ctx).Error("failed to mark opted-out lead unsubscribed", "lead_id", lead.ID, "error", err)
		return
	}
	*lead = saved
}

// currentOffers prices both plans for rendering. Offers are snapshotted only
// after the provider acknowledges the send.
func (e *Engine) currentOffers(ctx context.Context, leadID uuid.UUID) ([]domain.Offer, error) {
	out := make([]domain.Offer, 0, len(domain.Plans))
	for _, p := range domain.Plans {
		lvl, err := e.pricing.Current(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", p, err)
		}
		out = append(out, domain.Offer{LeadID: leadID, Plan: p, Level: lvl.Level, Price: lvl.Price, Outcome: domain.OfferPending})
	}
	return out, nil
}

func (e *Engine) acknowledge(ctx context.Context, runID string, lead domain.Lead, d Decision, receipt transport.Receipt) error {
	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = e.now().UTC()
	}
	touch := domain.Touch{
		ID:                uuid.New(),
		LeadID:            lead.ID,
		Channel:           d.Channel,
		MessageKind:       d.MessageKind,
		ProviderMessageID: receipt.ProviderMessageID,
		SentAt:            sentAt,
	}
	if err := e.store.AppendTouch(ctx, touch); err != nil {
		return fmt.Errorf("append touch: %w", err)
	}

	lead.LastTouchAt = &sentAt
	lead.ChannelUsed = d.Channel
	switch d.Action {
	case ActionFirstTouch, ActionFollowUp:
		lead.State = domain.LeadWaitingReply
		lead.Attempts++
	case ActionOffer:
		lead.OfferSentAt = &sentAt
		if lead.Attempts == 0 {
			lead.Attempts = 1
		}
		for _, p := range domain.Plans {
			if _, err := e.pricing.QuoteOffer(ctx, lead.ID, p); err != nil {
				e.log.WithContext(ctx).Error("failed to snapshot offer", "lead_id", lead.ID, "plan", p, "error", err)
			}
		}
	}
	if _, err := e.store.UpdateLead(ctx, lead); err != nil {
		return e.writeErr(err)
	}

	e.advisory(ctx, d.Channel, domain.OutcomeSuccess)
	if err := e.store.IncrementDaily(ctx, domain.DailyMetric{Day: sentAt, Channel: d.Channel, Sent: 1}); err != nil {
		e.log.WithContext(ctx).Error("failed to count daily send", "channel", d.Channel, "error", err)
	}
	e.log.WithContext(ctx).Info("touch delivered", "lead_id", lead.ID, "channel", d.Channel,
		"message_kind", d.MessageKind, "step", d.Step)
	e.bus.Publish(ctx, events.ContactDelivered{
		BaseEvent:         events.NewBaseEvent(),
		LeadID:            lead.ID,
		Channel:           d.Channel,
		MessageKind:       d.MessageKind,
		ProviderMessageID: receipt.ProviderMessageID,
		RunID:             runID,
	})
	return nil
}

func (e *Engine) failed(ctx context.Context, runID string, lead domain.Lead, d Decision, cause error) {
	e.advisory(ctx, d.Channel, domain.OutcomeFailure)
	if err := e.store.IncrementDaily(ctx, domain.DailyMetric{Day: e.now().UTC(), Channel: d.Channel, Failed: 1}); err != nil {
		e.log.WithContext(ctx).Error("failed to count daily failure", "channel", d.Channel, "error", err)
	}
	e.log.WithContext(ctx).Warn("touch failed", "lead_id", lead.ID, "channel", d.Channel,
		"message_kind", d.MessageKind, "error", cause)
	e.bus.Publish(ctx, events.ContactFailed{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		Channel:     d.Channel,
		MessageKind: d.MessageKind,
		Reason:      cause.Error(),
		RunID:       runID,
	})
}

func (e *Engine) blocked(ctx context.Context, runID string, lead domain.Lead, d Decision, cause error) {
	reason := apperr.ReasonOf(cause)
	if reason == "" {
		reason = cause.Error()
	}
	e.log.WithContext(ctx).PolicyViolation("cadence.execute", reason,
		"lead_id", lead.ID, "channel", d.Channel, "message_kind", d.MessageKind)
	e.bus.Publish(ctx, events.SendBlocked{
		BaseEvent:   events.NewIncidentEvent(events.NameSendBlocked, lead.ID.String(), string(d.MessageKind), reason),
		LeadID:      lead.ID,
		Channel:     d.Channel,
		MessageKind: d.MessageKind,
		Reason:      reason,
		RunID:       runID,
	})
}

// halt stops all automation for a lead and escalates.
func (e *Engine) halt(ctx context.Context, lead domain.Lead, detail string) {
	lead.Halted = true
	if _, err := e.store.UpdateLead(ctx, lead); err != nil {
		e.log.WithContext(ctx).Error("failed to halt lead", "lead_id", lead.ID, "error", err)
	}
	e.log.WithContext(ctx).Error("lead halted", "lead_id", lead.ID, "detail", detail)
	e.bus.Publish(ctx, events.StateCorruptionDetected{
		BaseEvent: events.NewIncidentEvent(events.NameStateCorruptionDetected, lead.ID.String()),
		LeadID:    lead.ID,
		Detail:    detail,
	})
}

func (e *Engine) release(ctx context.Context, key domain.SendGuardKey) {
	if err := e.store.ReleaseSend(ctx, key); err != nil {
		e.log.WithContext(ctx).Error("failed to release send guard", "message_kind", key.MessageKind, "error", err)
	}
}

// advisory records a health outcome; monitor errors never fail the loop.
func (e *Engine) advisory(ctx context.Context, c domain.Channel, o domain.Outcome) {
	if _, err := e.health.RecordOutcome(ctx, c, o); err != nil {
		e.log.WithContext(ctx).Error("failed to record channel outcome", "channel", c, "outcome", o, "error", err)
	}
}

func (e *Engine) writeErr(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return apperr.Transient("lead changed concurrently", err)
	}
	return fmt.Errorf("update lead: %w", err)
}
