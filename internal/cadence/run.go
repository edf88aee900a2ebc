package cadence

import (
	"context"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/google/uuid"
)

// NewRunID names a run by its start time plus a short random suffix.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// RunSummary counts what one run did.
type RunSummary struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	SafeMode   bool      `json:"safeMode"`
	Due        int       `json:"due"`
	Sent       int       `json:"sent"`
	Closed     int       `json:"closed"`
	Skipped    int       `json:"skipped"`
	Blocked    int       `json:"blocked"`
	Failed     int       `json:"failed"`
	Halted     int       `json:"halted"`
	Errors     int       `json:"errors"`
}

// Run executes every due lead once. Per-lead failures are counted and the run
// continues; it stops on cancellation. Nothing is sent while safe mode is on.
func (e *Engine) Run(ctx context.Context, runID string) (RunSummary, error) {
	sum := RunSummary{RunID: runID, StartedAt: e.now().UTC()}
	log := e.log.WithRunID(runID)
	defer func() {
		sum.FinishedAt = e.now().UTC()
		log.Info("cadence run finished", "due", sum.Due, "sent", sum.Sent, "closed", sum.Closed,
			"blocked", sum.Blocked, "failed", sum.Failed, "halted", sum.Halted, "safe_mode", sum.SafeMode)
	}()

	safe, err := e.health.SafeMode(ctx)
	if err != nil {
		return sum, err
	}
	if safe {
		sum.SafeMode = true
		log.Warn("cadence run skipped: global safe mode is enabled")
		return sum, nil
	}

	for lead, err := range e.SelectEligibleLeads(ctx, runID) {
		if err != nil {
			return sum, err
		}
		sum.Due++
		res, err := e.Execute(ctx, runID, lead.ID)
		switch res.Outcome {
		case OutcomeSent:
			sum.Sent++
		case OutcomeClosed:
			sum.Closed++
		case OutcomeBlocked:
			sum.Blocked++
		case OutcomeFailed:
			sum.Failed++
		case OutcomeHalted:
			sum.Halted++
		default:
			sum.Skipped++
		}
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			if !apperr.Is(err, apperr.KindPolicyViolation) && !apperr.Is(err, apperr.KindTransient) {
				sum.Errors++
				log.Error("cadence execute failed", "lead_id", lead.ID, "error", err)
			}
		}
	}
	return sum, nil
}
