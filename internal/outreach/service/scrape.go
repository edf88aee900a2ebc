package service

import (
	"context"
	"errors"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/throttle"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
)

// RecordScrapeOutcome applies a scraper-side signal outside a paced session.
func (s *Service) RecordScrapeOutcome(ctx context.Context, outcome domain.Outcome) (domain.ChannelStatus, error) {
	return s.health.RecordOutcome(ctx, domain.ChannelScrape, outcome)
}

// StartScrape opens the paced session for a scrape run.
func (s *Service) StartScrape(ctx context.Context, runID string) (throttle.Summary, error) {
	session, err := s.throttle.Start(ctx, runID)
	if err != nil {
		if apperr.Is(err, apperr.KindPolicyViolation) {
			s.log.WithContext(ctx).PolicyViolation("outreach.start_scrape", apperr.ReasonOf(err), "run_id", runID)
		}
		return throttle.Summary{}, err
	}
	return session.Summary(), nil
}

func (s *Service) session(runID string) (*throttle.Session, error) {
	active := s.throttle.Active()
	if active == nil || active.RunID() != runID {
		return nil, apperr.NotFound("no active scrape session " + runID)
	}
	return active, nil
}

// WaitScrape blocks for the next jittered delay of the run. A halted session
// answers with a throttle_halted policy violation.
func (s *Service) WaitScrape(ctx context.Context, runID string) error {
	session, err := s.session(runID)
	if err != nil {
		return err
	}
	if err := session.Wait(ctx); err != nil {
		if errors.Is(err, throttle.ErrHalted) {
			return apperr.PolicyViolation(domain.ReasonThrottleHalted, "scrape session is halted")
		}
		return err
	}
	return nil
}

// RecordScrapeResult counts one scraped item.
func (s *Service) RecordScrapeResult(ctx context.Context, runID string) (throttle.Summary, error) {
	session, err := s.session(runID)
	if err != nil {
		return throttle.Summary{}, err
	}
	if err := session.RecordResult(ctx); err != nil {
		return throttle.Summary{}, err
	}
	return session.Summary(), nil
}

// RecordScrapeError counts one failed request and may halt the run.
func (s *Service) RecordScrapeError(ctx context.Context, runID string, kind throttle.ErrorKind) (throttle.Summary, error) {
	session, err := s.session(runID)
	if err != nil {
		return throttle.Summary{}, err
	}
	if err := session.RecordError(ctx, kind); err != nil {
		return throttle.Summary{}, err
	}
	return session.Summary(), nil
}

// FinishScrape closes the run and reports its stability.
func (s *Service) FinishScrape(ctx context.Context, runID string) (throttle.Summary, error) {
	session, err := s.session(runID)
	if err != nil {
		return throttle.Summary{}, err
	}
	return session.Finish(ctx)
}
