// Package domainjobs tracks the post-sale checklist of a sold site and warns
// before its domain expires.
package domainjobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
)

const day = 24 * time.Hour

type Service struct {
	store  repository.DomainJobStore
	bus    events.Bus
	log    *logger.Logger
	policy config.DomainJobPolicy
	now    func() time.Time
}

func New(store repository.DomainJobStore, bus events.Bus, log *logger.Logger, policy config.DomainJobPolicy) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if policy.Validity <= 0 {
		policy.Validity = 365 * day
	}
	days := slices.Clone(policy.AlertDays)
	slices.Sort(days)
	slices.Reverse(days)
	policy.AlertDays = days
	return &Service{store: store, bus: bus, log: log, policy: policy, now: time.Now}
}

// SetClock replaces time.Now. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateForSale opens the job for a won lead. A second call returns the
// existing job.
func (s *Service) CreateForSale(ctx context.Context, leadID uuid.UUID, plan domain.Plan) (domain.DomainJob, error) {
	now := s.now().UTC()
	job := domain.DomainJob{
		ID:        uuid.New(),
		LeadID:    leadID,
		Plan:      plan,
		Status:    domain.JobDomainSelected,
		Checklist: domain.DefaultChecklist(),
		ExpiresAt: now.Add(s.policy.Validity),
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, created, err := s.store.CreateDomainJob(ctx, job)
	if err != nil {
		return domain.DomainJob{}, fmt.Errorf("create domain job: %w", err)
	}
	if created {
		s.log.Info("domain job created", "job_id", stored.ID, "lead_id", leadID, "expires_at", stored.ExpiresAt)
	}
	return stored, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, jobID uuid.UUID) (domain.DomainJob, error) {
	job, err := s.store.GetDomainJob(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.DomainJob{}, apperr.NotFound("domain job not found")
	}
	return job, err
}

// CompleteStep marks a checklist step done and derives the job status.
// Completing a finished step again changes nothing.
func (s *Service) CompleteStep(ctx context.Context, jobID uuid.UUID, step string) (domain.DomainJob, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return domain.DomainJob{}, err
	}
	idx := slices.IndexFunc(job.Checklist, func(it domain.ChecklistItem) bool { return it.Step == step })
	if idx < 0 {
		return domain.DomainJob{}, apperr.Validation("unknown checklist step: " + step).WithReason(domain.ReasonInvalidInput)
	}
	if job.Checklist[idx].Done {
		return job, nil
	}
	now := s.now().UTC()
	job.Checklist[idx].Done = true
	job.Checklist[idx].DoneAt = &now
	job.Status = domain.StatusFromChecklist(job.Checklist)
	job.UpdatedAt = now
	if err := s.store.SaveDomainJob(ctx, job); err != nil {
		return domain.DomainJob{}, fmt.Errorf("save domain job: %w", err)
	}
	return job, nil
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Alerted int `json:"alerted"`
}

// Sweep emits one domain_expiry_alert per job and crossed offset. When a
// sweep finds several offsets crossed at once only the closest is announced;
// the wider ones are recorded silently so they never fire late.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	if len(s.policy.AlertDays) == 0 {
		return res, nil
	}
	now = now.UTC()
	cutoff := now.Add(time.Duration(s.policy.AlertDays[0]) * day)
	jobs, err := s.store.ListExpiringDomainJobs(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("list expiring domain jobs: %w", err)
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !now.Before(job.ExpiresAt) {
			continue
		}
		res.Scanned++
		due := s.dueOffsets(job, now)
		for i, d := range due {
			created, err := s.store.MarkAlertSent(ctx, job.ID, d)
			if err != nil {
				return res, fmt.Errorf("mark alert: %w", err)
			}
			if !created || i != len(due)-1 {
				continue
			}
			res.Alerted++
			s.log.Info("domain expiry alert", "job_id", job.ID, "lead_id", job.LeadID, "days_before", d)
			s.bus.Publish(ctx, events.DomainExpiryAlert{
				BaseEvent:  events.NewIncidentEvent(events.NameDomainExpiryAlert, job.ID.String(), fmt.Sprint(d)),
				JobID:      job.ID,
				LeadID:     job.LeadID,
				DaysBefore: d,
				ExpiresAt:  job.ExpiresAt,
			})
		}
	}
	return res, nil
}

// dueOffsets returns the crossed, unalerted offsets, widest first.
func (s *Service) dueOffsets(job domain.DomainJob, now time.Time) []int {
	var due []int
	for _, d := range s.policy.AlertDays {
		if now.Before(job.ExpiresAt.Add(-time.Duration(d) * day)) {
			continue
		}
		if !job.AlertSent(d) {
			due = append(due, d)
		}
	}
	return due
}
