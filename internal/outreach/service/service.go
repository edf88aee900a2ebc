// Package service is the inbound surface of the control loop: lead intake,
// replies, deliveries, sales, unsubscribe links and operator controls. It
// composes the health monitor, review gate, price ladder and domain jobs.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/domainjobs"
	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/health"
	enrichment "github.com/renandiiias/build-automated-outreach/internal/leadenrichment/service"
	"github.com/renandiiias/build-automated-outreach/internal/lock"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/internal/pricing"
	"github.com/renandiiias/build-automated-outreach/internal/review"
	"github.com/renandiiias/build-automated-outreach/internal/throttle"
	"github.com/renandiiias/build-automated-outreach/internal/transport"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

// Enricher looks up contacts on a lead's website.
type Enricher interface {
	WebsiteContacts(ctx context.Context, website string) (enrichment.Contacts, error)
}

// Deps are the collaborators of the Service. Enricher is optional.
type Deps struct {
	Store      repository.Store
	Health     *health.Monitor
	Review     *review.Gate
	Pricing    *pricing.Ladder
	DomainJobs *domainjobs.Service
	Throttle   *throttle.Throttle
	Links      *transport.UnsubscribeLinks
	Enricher   Enricher
	Locker     lock.Locker
	Bus        events.Bus
	Log        *logger.Logger
}

type Service struct {
	store    repository.Store
	health   *health.Monitor
	review   *review.Gate
	pricing  *pricing.Ladder
	jobs     *domainjobs.Service
	throttle *throttle.Throttle
	links    *transport.UnsubscribeLinks
	enricher Enricher
	locker   lock.Locker
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex(lock.DefaultWait)
	}
	return &Service{
		store:    d.Store,
		health:   d.Health,
		review:   d.Review,
		pricing:  d.Pricing,
		jobs:     d.DomainJobs,
		throttle: d.Throttle,
		links:    d.Links,
		enricher: d.Enricher,
		locker:   d.Locker,
		bus:      d.Bus,
		log:      d.Log,
		now:      time.Now,
	}
}

// SetClock replaces time.Now. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// StatusReport is the operator view of the loop.
type StatusReport struct {
	SafeMode bool                   `json:"safeMode"`
	Channels []domain.ChannelStatus `json:"channels"`
	Prices   []domain.PriceLevel    `json:"prices"`
	Scrape   *throttle.Summary      `json:"scrapeSession,omitempty"`
}

// Status reports channel health, safe mode and the current price ladder.
func (s *Service) Status(ctx context.Context) (StatusReport, error) {
	channels, err := s.health.Statuses(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("channel statuses: %w", err)
	}
	safe, err := s.health.SafeMode(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("safe mode: %w", err)
	}
	prices, err := s.pricing.Levels(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("price levels: %w", err)
	}
	report := StatusReport{SafeMode: safe, Channels: channels, Prices: prices}
	if s.throttle != nil {
		if active := s.throttle.Active(); active != nil {
			sum := active.Summary()
			report.Scrape = &sum
		}
	}
	return report, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ResumeChannel clears a pause on one channel.
func (s *Service) ResumeChannel(ctx context.Context, c domain.Channel) (domain.ChannelStatus, error) {
	st, err := s.health.Resume(ctx, c)
	if err != nil {
		return st, err
	}
	s.log.WithContext(ctx).Info("channel resumed by operator", "channel", c)
	return st, nil
}

// PauseAll pauses every send channel, which enables safe mode.
func (s *Service) PauseAll(ctx context.Context, reason string) error {
	if reason == "" {
		reason = domain.ReasonManual
	}
	if err := s.health.PauseAll(ctx, reason); err != nil {
		return err
	}
	s.log.WithContext(ctx).Warn("all send channels paused by operator", "reason", reason)
	return nil
}

// RecordEmailFeedback merges provider batch feedback into the EMAIL window.
func (s *Service) RecordEmailFeedback(ctx context.Context, sent, bounces, complaints int) (domain.ChannelStatus, error) {
	return s.health.RecordEmailFeedback(ctx, sent, bounces, complaints)
}
