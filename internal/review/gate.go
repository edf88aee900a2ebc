// Package review holds inbound replies until a reviewer decides them. Only a
// decided positive reply grants consent for commercial messages.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/lock"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
	"github.com/renandiiias/build-automated-outreach/platform/sanitize"

	"github.com/google/uuid"
)

// Opt-out sources.
const (
	SourceReply       = "reply"
	SourceUnsubscribe = "unsubscribe_link"
	SourceComplaint   = "complaint"
)

const maxReplyLength = 5000

// Store is the persistence the gate needs.
type Store interface {
	repository.LeadReader
	repository.LeadWriter
	repository.ReplyStore
	repository.OptOutStore
}

type Gate struct {
	store  Store
	bus    events.Bus
	locker lock.Locker
	log    *logger.Logger
	now    func() time.Time
}

func New(store Store, bus events.Bus, locker lock.Locker, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	if locker == nil {
		locker = lock.NewKeyedMutex(lock.DefaultWait)
	}
	return &Gate{store: store, bus: bus, locker: locker, log: log, now: time.Now}
}

// SetClock replaces time.Now. Tests only.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// RecordReply stores a sanitized inbound reply as a PENDING review item.
func (g *Gate) RecordReply(ctx context.Context, leadID uuid.UUID, channel domain.Channel, rawText string) (domain.Reply, error) {
	if !channel.Sendable() {
		return domain.Reply{}, apperr.Validation("replies arrive on EMAIL or WHATSAPP").WithReason(domain.ReasonInvalidInput)
	}
	text := sanitize.Text(rawText)
	if text == "" {
		return domain.Reply{}, apperr.Validation("reply text is empty").WithReason(domain.ReasonInvalidInput)
	}
	if r := []rune(text); len(r) > maxReplyLength {
		text = string(r[:maxReplyLength])
	}
	if _, err := g.store.GetLead(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Reply{}, apperr.NotFound("lead not found")
		}
		return domain.Reply{}, err
	}

	cls := Classify(text)
	reply := domain.Reply{
		ID:             uuid.New(),
		LeadID:         leadID,
		Channel:        channel,
		RawText:        text,
		Classification: cls.Label,
		Intent:         cls.Intent,
		Confidence:     cls.Confidence,
		ReviewStatus:   domain.ReviewPending,
		ReceivedAt:     g.now().UTC(),
	}
	if err := g.store.InsertReply(ctx, reply); err != nil {
		return domain.Reply{}, fmt.Errorf("insert reply: %w", err)
	}

	g.log.WithContext(ctx).Info("reply queued for review",
		"lead_id", leadID, "reply_id", reply.ID, "channel", channel,
		"classification", cls.Label, "intent", cls.Intent, "confidence", cls.Confidence)
	g.bus.Publish(ctx, events.ReplyReceived{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         leadID,
		ReplyID:        reply.ID,
		Channel:        channel,
		Classification: cls.Label,
		Intent:         cls.Intent,
		Confidence:     cls.Confidence,
	})
	return reply, nil
}

// SubmitDecision records the reviewer verdict once and applies it to the lead.
// Repeating the same verdict is a no-op; a different one is a conflict.
func (g *Gate) SubmitDecision(ctx context.Context, replyID uuid.UUID, decision domain.Decision, reviewer string) (domain.Reply, error) {
	if _, err := domain.ParseDecision(string(decision)); err != nil {
		return domain.Reply{}, err
	}
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return domain.Reply{}, apperr.Validation("reviewer is required").WithReason(domain.ReasonInvalidInput)
	}

	reply, err := g.store.GetReply(ctx, replyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Reply{}, apperr.NotFound("reply not found")
		}
		return domain.Reply{}, err
	}

	unlock, err := g.locker.Lock(ctx, lock.LeadKey(reply.LeadID))
	if err != nil {
		return domain.Reply{}, err
	}
	defer unlock()

	decided, err := g.store.DecideReply(ctx, replyID, decision, reviewer, g.now().UTC())
	switch {
	case errors.Is(err, repository.ErrAlreadyDecided):
		if decided.Decision != decision {
			return domain.Reply{}, apperr.Conflict(fmt.Sprintf("reply already decided as %s", decided.Decision)).
				WithReason(domain.ReasonAlreadyDecided)
		}
	case err != nil:
		return domain.Reply{}, fmt.Errorf("decide reply: %w", err)
	}

	// Effects are idempotent, so a repeated decision also heals a lead update
	// that failed after the decision was stored.
	if err := g.apply(ctx, decided); err != nil {
		return domain.Reply{}, err
	}
	return decided, nil
}

func (g *Gate) apply(ctx context.Context, reply domain.Reply) error {
	lead, err := g.store.GetLead(ctx, reply.LeadID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	if reply.Decision == domain.DecisionOptOut {
		return g.suppress(ctx, lead, SourceReply)
	}
	// A verdict on an older reply never overrides the state set by a newer one.
	latest, err := g.store.LatestReply(ctx, reply.LeadID)
	if err != nil {
		return fmt.Errorf("load latest reply: %w", err)
	}
	if latest.ID != reply.ID {
		return nil
	}
	switch reply.Decision {
	case domain.DecisionPositive:
		return g.transition(ctx, lead, domain.LeadConsented)
	default:
		if lead.LastTouchAt == nil {
			return nil
		}
		return g.transition(ctx, lead, domain.LeadWaitingReply)
	}
}

func (g *Gate) transition(ctx context.Context, lead domain.Lead, to domain.LeadState) error {
	if lead.State == to {
		return nil
	}
	if !domain.CanTransition(lead.State, to) {
		// UNSUBSCRIBED and WON keep their state; the decision stays recorded.
		g.log.WithContext(ctx).Info("decision recorded without state change",
			"lead_id", lead.ID, "state", lead.State, "wanted", to)
		return nil
	}
	lead.State = to
	if _, err := g.store.UpdateLead(ctx, lead); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperr.Transient("lead changed concurrently", err)
		}
		return fmt.Errorf("update lead: %w", err)
	}
	return nil
}

// suppress registers a global opt-out for the lead's contact and marks it
// UNSUBSCRIBED. The caller holds the lead lock.
func (g *Gate) suppress(ctx context.Context, lead domain.Lead, source string) error {
	created := false
	if lead.ContactHash != "" {
		var err error
		created, err = g.store.InsertOptOut(ctx, domain.OptOut{
			ContactHash: lead.ContactHash,
			Channel:     domain.ChannelAll,
			Source:      source,
			CreatedAt:   g.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("insert opt-out: %w", err)
		}
	}
	changed := lead.State != domain.LeadUnsubscribed
	if changed {
		lead.State = domain.LeadUnsubscribed
		if _, err := g.store.UpdateLead(ctx, lead); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return apperr.Transient("lead changed concurrently", err)
			}
			return fmt.Errorf("update lead: %w", err)
		}
	}
	if created || changed {
		g.log.WithContext(ctx).Info("contact opted out", "lead_id", lead.ID, "source", source)
		g.bus.Publish(ctx, events.OptOutRegistered{
			BaseEvent: events.NewIncidentEvent(events.NameOptOutRegistered, lead.ContactHash),
			LeadID:    lead.ID,
			Channel:   domain.ChannelAll,
			Source:    source,
		})
	}
	return nil
}

// OptOut suppresses a lead outside the review flow, for unsubscribe links and
// complaints. It is idempotent.
func (g *Gate) OptOut(ctx context.Context, leadID uuid.UUID, source string) (domain.Lead, error) {
	unlock, err := g.locker.Lock(ctx, lock.LeadKey(leadID))
	if err != nil {
		return domain.Lead{}, err
	}
	defer unlock()

	lead, err := g.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, err
	}
	if err := g.suppress(ctx, lead, source); err != nil {
		return domain.Lead{}, err
	}
	return g.store.GetLead(ctx, leadID)
}

// RequireDecision allows commercial action only when the latest reply of the
// lead carries a positive decision.
func (g *Gate) RequireDecision(ctx context.Context, leadID uuid.UUID) error {
	latest, err := g.store.LatestReply(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.PolicyViolation(domain.ReasonNoConsent, "lead has no reviewed reply")
	}
	if err != nil {
		return err
	}
	if !latest.Decided() {
		return apperr.PolicyViolation(domain.ReasonReviewPending, "latest reply awaits review")
	}
	if latest.Decision != domain.DecisionPositive {
		return apperr.PolicyViolation(domain.ReasonNoConsent, "latest reply was not decided positive")
	}
	return nil
}

// AwaitingReview reports whether the lead's latest reply has no decision yet.
func (g *Gate) AwaitingReview(ctx context.Context, leadID uuid.UUID) (bool, error) {
	latest, err := g.store.LatestReply(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !latest.Decided(), nil
}

// ListPending returns undecided replies, oldest first.
func (g *Gate) ListPending(ctx context.Context, limit int) ([]domain.Reply, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return g.store.ListPendingReplies(ctx, limit)
}
