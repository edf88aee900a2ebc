package domain

import (
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/google/uuid"
)

// Plan is a sellable package.
type Plan string

const (
	PlanSimples  Plan = "SIMPLES"
	PlanCompleto Plan = "COMPLETO"
)

// Plans lists every plan in display order.
var Plans = []Plan{PlanSimples, PlanCompleto}

// ParsePlan validates a raw plan.
func ParsePlan(raw string) (Plan, error) {
	p := Plan(strings.ToUpper(strings.TrimSpace(raw)))
	switch p {
	case PlanSimples, PlanCompleto:
		return p, nil
	}
	return "", apperr.Validation("unknown plan: " + raw).WithReason(ReasonInvalidInput)
}

// PriceLevel is the ladder position of one plan.
type PriceLevel struct {
	Plan  Plan `json:"plan"`
	Level int  `json:"level"`
	Price int  `json:"price"`
	// Window holds one entry per offer sent since the last evaluation, oldest
	// first. An entry turns true when its offer converts.
	Window []bool `json:"window"`
	// SinceEvaluation counts offers added since the last window evaluation.
	SinceEvaluation    int      `json:"sinceEvaluation"`
	BaselineConversion *float64 `json:"baselineConversion,omitempty"`
	// RecentSales are the leads whose sale already raised this plan.
	RecentSales []uuid.UUID `json:"recentSales,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Conversion is accepted / len(window).
func (p PriceLevel) Conversion() float64 {
	if len(p.Window) == 0 {
		return 0
	}
	accepted := 0
	for _, ok := range p.Window {
		if ok {
			accepted++
		}
	}
	return float64(accepted) / float64(len(p.Window))
}

// OfferOutcome is the resolution of a quoted offer.
type OfferOutcome string

const (
	OfferPending  OfferOutcome = "PENDING"
	OfferAccepted OfferOutcome = "ACCEPTED"
	OfferRejected OfferOutcome = "REJECTED"
)

// Offer snapshots the price quoted to a lead.
type Offer struct {
	ID         uuid.UUID    `json:"id"`
	LeadID     uuid.UUID    `json:"leadId"`
	Plan       Plan         `json:"plan"`
	Level      int          `json:"level"`
	Price      int          `json:"price"`
	Outcome    OfferOutcome `json:"outcome"`
	CreatedAt  time.Time    `json:"createdAt"`
	ResolvedAt *time.Time   `json:"resolvedAt,omitempty"`
}
