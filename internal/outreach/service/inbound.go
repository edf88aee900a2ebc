package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/lock"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/internal/review"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/google/uuid"
)

func (s *Service) getLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("load lead: %w", err)
	}
	return lead, nil
}

// GetLead returns one lead.
func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return s.getLead(ctx, id)
}

// RecordReply queues an inbound reply for review.
func (s *Service) RecordReply(ctx context.Context, leadID uuid.UUID, channel domain.Channel, rawText string) (domain.Reply, error) {
	return s.review.RecordReply(ctx, leadID, channel, rawText)
}

// SubmitDecision records the reviewer verdict on a reply.
func (s *Service) SubmitDecision(ctx context.Context, replyID uuid.UUID, decision domain.Decision, reviewer string) (domain.Reply, error) {
	return s.review.SubmitDecision(ctx, replyID, decision, reviewer)
}

// ListPendingReplies returns the review queue, oldest first.
func (s *Service) ListPendingReplies(ctx context.Context, limit int) ([]domain.Reply, error) {
	return s.review.ListPending(ctx, limit)
}

// Delivery is a transport-side report about one touch.
type Delivery struct {
	LeadID            uuid.UUID
	Channel           domain.Channel
	Outcome           domain.Outcome
	MessageKind       domain.MessageKind
	ProviderMessageID string
	Reason            string
}

// RecordDelivery applies a delivery report. The attempt itself was counted
// when the transport acknowledged the send, so SUCCESS only confirms it;
// failures feed the channel window and a complaint unsubscribes the contact.
func (s *Service) RecordDelivery(ctx context.Context, d Delivery) error {
	if !d.Channel.Sendable() {
		return apperr.Validation(fmt.Sprintf("channel %s has no deliveries", d.Channel)).WithReason(domain.ReasonInvalidInput)
	}
	outcome, err := domain.ParseOutcome(string(d.Outcome))
	if err != nil {
		return err
	}
	lead, err := s.getLead(ctx, d.LeadID)
	if err != nil {
		return err
	}

	now := s.now()
	if outcome == domain.OutcomeSuccess {
		s.bus.Publish(ctx, events.ContactDelivered{
			BaseEvent:         events.NewIncidentEvent(events.NameContactDelivered, lead.ID.String(), d.ProviderMessageID),
			LeadID:            lead.ID,
			Channel:           d.Channel,
			MessageKind:       d.MessageKind,
			ProviderMessageID: d.ProviderMessageID,
		})
		return nil
	}

	if _, err := s.health.RecordOutcome(ctx, d.Channel, outcome); err != nil {
		return fmt.Errorf("record delivery outcome: %w", err)
	}
	metric := domain.DailyMetric{Day: now, Channel: d.Channel}
	switch outcome {
	case domain.OutcomeBounce:
		metric.Bounces = 1
	case domain.OutcomeComplaint:
		metric.Complaints = 1
	default:
		metric.Failed = 1
	}
	if err := s.store.IncrementDaily(ctx, metric); err != nil {
		return fmt.Errorf("increment daily metrics: %w", err)
	}

	reason := d.Reason
	if reason == "" {
		reason = string(outcome)
	}
	s.log.WithContext(ctx).Warn("delivery failed", "lead_id", lead.ID, "channel", d.Channel, "outcome", outcome, "reason", reason)
	s.bus.Publish(ctx, events.ContactFailed{
		BaseEvent:   events.NewIncidentEvent(events.NameContactFailed, lead.ID.String(), string(d.Channel), d.ProviderMessageID),
		LeadID:      lead.ID,
		Channel:     d.Channel,
		MessageKind: d.MessageKind,
		Reason:      reason,
	})

	if outcome == domain.OutcomeComplaint {
		if _, err := s.review.OptOut(ctx, lead.ID, review.SourceComplaint); err != nil {
			return fmt.Errorf("opt out complaining contact: %w", err)
		}
	}
	return nil
}

// Sale is the result of RecordSale.
type Sale struct {
	Lead      domain.Lead       `json:"lead"`
	Plan      domain.Plan       `json:"plan"`
	Price     int               `json:"price"`
	NextPrice domain.PriceLevel `json:"nextPrice"`
	Offer     *domain.Offer     `json:"offer,omitempty"`
	DomainJob domain.DomainJob  `json:"domainJob"`
}

// RecordSale closes a consented lead as WON. The plan moves up the ladder, the
// lead's pending offers are settled and the post-sale domain job is opened.
// The lead is saved WON last.
func (s *Service) RecordSale(ctx context.Context, leadID uuid.UUID, plan domain.Plan) (Sale, error) {
	plan, err := domain.ParsePlan(string(plan))
	if err != nil {
		return Sale{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.LeadKey(leadID))
	if err != nil {
		return Sale{}, err
	}
	defer unlock()

	lead, err := s.getLead(ctx, leadID)
	if err != nil {
		return Sale{}, err
	}
	if err := s.review.RequireDecision(ctx, leadID); err != nil {
		if apperr.Is(err, apperr.KindPolicyViolation) {
			s.log.WithContext(ctx).PolicyViolation("outreach.record_sale", apperr.ReasonOf(err), "lead_id", leadID)
		}
		return Sale{}, err
	}
	if lead.Halted {
		return Sale{}, apperr.PolicyViolation(domain.ReasonLeadHalted, "lead is halted")
	}
	if lead.State == domain.LeadWon || !domain.CanTransition(lead.State, domain.LeadWon) {
		return Sale{}, apperr.Conflict(fmt.Sprintf("lead in state %s cannot be won", lead.State)).WithReason(domain.ReasonInvalidState)
	}

	current, err := s.pricing.Current(ctx, plan)
	if err != nil {
		return Sale{}, err
	}
	// Every step before the WON save is idempotent per lead, so a sale that
	// failed halfway is finished by retrying it.
	next, err := s.pricing.RecordSale(ctx, leadID, plan)
	if err != nil {
		return Sale{}, err
	}
	offer, quoted, err := s.pricing.ResolveLeadOffers(ctx, leadID, plan)
	if err != nil {
		return Sale{}, err
	}
	price := current.Price
	if quoted {
		price = offer.Price
	}
	job, err := s.jobs.CreateForSale(ctx, leadID, plan)
	if err != nil {
		return Sale{}, err
	}

	lead.State = domain.LeadWon
	lead, err = s.store.UpdateLead(ctx, lead)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return Sale{}, apperr.Transient("lead changed concurrently", err)
		}
		return Sale{}, fmt.Errorf("update lead: %w", err)
	}

	s.log.WithContext(ctx).Info("sale recorded", "lead_id", leadID, "plan", plan, "price", price, "next_price", next.Price)
	s.bus.Publish(ctx, events.SaleRecorded{
		BaseEvent: events.NewIncidentEvent(events.NameSaleRecorded, leadID.String()),
		LeadID:    leadID,
		Plan:      plan,
		Price:     price,
	})

	sale := Sale{Lead: lead, Plan: plan, Price: price, NextPrice: next, DomainJob: job}
	if quoted {
		sale.Offer = &offer
	}
	return sale, nil
}

// RecordOfferOutcome resolves one quoted offer.
func (s *Service) RecordOfferOutcome(ctx context.Context, offerID uuid.UUID, accepted bool) (domain.PriceLevel, error) {
	return s.pricing.RecordOfferOutcome(ctx, offerID, accepted)
}

// CompleteDomainStep ticks one post-sale checklist step.
func (s *Service) CompleteDomainStep(ctx context.Context, jobID uuid.UUID, step string) (domain.DomainJob, error) {
	return s.jobs.CompleteStep(ctx, jobID, step)
}

// Unsubscribe honors a signed unsubscribe link. Repeated clicks are no-ops.
func (s *Service) Unsubscribe(ctx context.Context, token string) (domain.Lead, error) {
	claims, err := s.links.Parse(token)
	if err != nil {
		return domain.Lead{}, err
	}
	leadID := claims.LeadID
	lead, err := s.review.OptOut(ctx, leadID, review.SourceUnsubscribe)
	if err != nil {
		return domain.Lead{}, err
	}
	s.log.WithContext(ctx).Info("unsubscribe link used", "lead_id", leadID, "channel", claims.Channel)
	return lead, nil
}
