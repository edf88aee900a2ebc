package domain

import (
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/google/uuid"
)

// Decision is the reviewer verdict on a reply. Classifier labels share the set.
type Decision string

const (
	DecisionPositive Decision = "positive"
	DecisionOptOut   Decision = "opt_out"
	DecisionOther    Decision = "other"
)

// ParseDecision validates a raw decision.
func ParseDecision(raw string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(raw)))
	switch d {
	case DecisionPositive, DecisionOptOut, DecisionOther:
		return d, nil
	}
	return "", apperr.Validation("unknown decision: " + raw).WithReason(ReasonInvalidInput)
}

// ReviewStatus tracks whether a reply has a decision.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "PENDING"
	ReviewDecided ReviewStatus = "DECIDED"
)

// Reply is an inbound message awaiting or holding a review decision.
type Reply struct {
	ID             uuid.UUID    `json:"id"`
	LeadID         uuid.UUID    `json:"leadId"`
	Channel        Channel      `json:"channel"`
	RawText        string       `json:"rawText"`
	Classification Decision     `json:"classification"`
	Intent         string       `json:"intent,omitempty"`
	Confidence     float64      `json:"confidence"`
	ReviewStatus   ReviewStatus `json:"reviewStatus"`
	Decision       Decision     `json:"decision,omitempty"`
	DecidedBy      string       `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time   `json:"decidedAt,omitempty"`
	ReceivedAt     time.Time    `json:"receivedAt"`
}

// Decided reports whether a decision record exists.
func (r Reply) Decided() bool {
	return r.ReviewStatus == ReviewDecided
}
