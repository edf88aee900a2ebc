// Package cadence decides which lead is due for which touch and runs the
// gated send path.
package cadence

import (
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/platform/config"
)

// Action is what the cadence wants to do with a lead now.
type Action string

const (
	ActionNone       Action = "NONE"
	ActionFirstTouch Action = "FIRST_TOUCH"
	ActionFollowUp   Action = "FOLLOW_UP"
	ActionCloseStale Action = "CLOSE_STALE"
	ActionOffer      Action = "OFFER"
)

// Skip reasons for ActionNone.
const (
	ReasonNotDue      = "not_due"
	ReasonNotEligible = "not_eligible"
	ReasonOfferSent   = "offer_sent"
)

// eligibleStates are the states SelectEligibleLeads pages through.
var eligibleStates = []domain.LeadState{domain.LeadNew, domain.LeadWaitingReply, domain.LeadConsented}

// Decision is the pure outcome of Decide.
type Decision struct {
	Action      Action             `json:"action"`
	Channel     domain.Channel     `json:"channel,omitempty"`
	MessageKind domain.MessageKind `json:"messageKind,omitempty"`
	// Step is the 1-based sequence position of the touch.
	Step   int    `json:"step,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func none(reason string) Decision { return Decision{Action: ActionNone, Reason: reason} }

// Decide computes the due action for lead at now from persisted state only.
func Decide(lead domain.Lead, now time.Time, policy config.CadencePolicy) Decision {
	if lead.Halted {
		return none(domain.ReasonLeadHalted)
	}
	switch lead.State {
	case domain.LeadNew:
		ch := lead.PreferredChannel()
		if ch == "" {
			return none(domain.ReasonNoContact)
		}
		return Decision{Action: ActionFirstTouch, Channel: ch, MessageKind: domain.MessageConsentRequest, Step: 1}

	case domain.LeadWaitingReply:
		if !due(lead, now, policy) {
			return none(ReasonNotDue)
		}
		if lead.Attempts >= maxAttempts(policy) {
			return Decision{Action: ActionCloseStale, Channel: lead.ChannelUsed}
		}
		ch := lead.ChannelUsed
		if ch == "" {
			ch = lead.PreferredChannel()
		}
		if ch == "" {
			return none(domain.ReasonNoContact)
		}
		return Decision{Action: ActionFollowUp, Channel: ch, MessageKind: domain.MessageFollowUp, Step: lead.Attempts + 1}

	case domain.LeadConsented:
		if lead.OfferSentAt != nil {
			return none(ReasonOfferSent)
		}
		ch := lead.ChannelUsed
		if ch == "" || lead.ContactFor(ch) == "" {
			ch = lead.PreferredChannel()
		}
		if ch == "" {
			return none(domain.ReasonNoContact)
		}
		return Decision{Action: ActionOffer, Channel: ch, MessageKind: domain.MessageOffer, Step: 1}

	case domain.LeadUnsubscribed:
		return none(domain.ReasonUnsubscribed)
	}
	return none(ReasonNotEligible)
}

// due reports whether the follow-up interval elapsed since the last touch. A
// missing touch time is due so the send path can inspect the record.
func due(lead domain.Lead, now time.Time, policy config.CadencePolicy) bool {
	if lead.LastTouchAt == nil {
		return true
	}
	interval := policy.FollowUpInterval
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	return !now.Before(lead.LastTouchAt.Add(interval))
}

func maxAttempts(policy config.CadencePolicy) int {
	if policy.MaxAttempts <= 0 {
		return 3
	}
	return policy.MaxAttempts
}
