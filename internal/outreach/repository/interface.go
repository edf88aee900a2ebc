// Package repository defines the outreach entity store. Interfaces are
// segregated by entity so each service depends only on what it touches.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrVersionConflict  = errors.New("version conflict")
	ErrAlreadyDecided   = errors.New("reply already decided")
	ErrAlreadyResolved  = errors.New("offer already resolved")
	ErrUnknownChecklist = errors.New("unknown checklist step")
)

// SafeModeFlag is the flags row holding the derived global safe mode.
const SafeModeFlag = "GLOBAL_SAFE_MODE"

// LeadReader reads leads.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetLeadBySourceURL(ctx context.Context, sourceURL string) (domain.Lead, error)
	// ListLeadsAfter pages non-halted leads in states ordered by id, starting after the cursor.
	ListLeadsAfter(ctx context.Context, after uuid.UUID, states []domain.LeadState, limit int) ([]domain.Lead, error)
}

// LeadWriter writes leads.
type LeadWriter interface {
	// CreateLead inserts lead unless its source URL is known; created=false returns the stored lead.
	CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, bool, error)
	// UpdateLead persists lead if lead.Version matches the stored one and bumps Version.
	UpdateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error)
}

// TouchStore is the append-only touch log.
type TouchStore interface {
	AppendTouch(ctx context.Context, touch domain.Touch) error
	ListTouches(ctx context.Context, leadID uuid.UUID) ([]domain.Touch, error)
}

// ReplyStore holds the review queue.
type ReplyStore interface {
	InsertReply(ctx context.Context, reply domain.Reply) error
	GetReply(ctx context.Context, id uuid.UUID) (domain.Reply, error)
	// LatestReply returns ErrNotFound when the lead never replied.
	LatestReply(ctx context.Context, leadID uuid.UUID) (domain.Reply, error)
	// DecideReply records the decision only while PENDING; otherwise it returns the
	// stored reply with ErrAlreadyDecided.
	DecideReply(ctx context.Context, id uuid.UUID, decision domain.Decision, decidedBy string, at time.Time) (domain.Reply, error)
	ListPendingReplies(ctx context.Context, limit int) ([]domain.Reply, error)
}

// OptOutStore holds suppressions. Inserts are idempotent.
type OptOutStore interface {
	InsertOptOut(ctx context.Context, optOut domain.OptOut) (bool, error)
	// HasOptOut matches the exact channel or ChannelAll.
	HasOptOut(ctx context.Context, contactHash string, channel domain.Channel) (bool, error)
}

// ChannelStore holds channel health.
type ChannelStore interface {
	// GetChannelStatus returns the healthy default when nothing is stored.
	GetChannelStatus(ctx context.Context, channel domain.Channel) (domain.ChannelStatus, error)
	SaveChannelStatus(ctx context.Context, status domain.ChannelStatus) error
	ListChannelStatuses(ctx context.Context) ([]domain.ChannelStatus, error)
}

// FlagStore holds global booleans.
type FlagStore interface {
	GetFlag(ctx context.Context, name string) (bool, error)
	SetFlag(ctx context.Context, name string, enabled bool) error
}

// MetricsStore aggregates per-day channel counters.
type MetricsStore interface {
	IncrementDaily(ctx context.Context, delta domain.DailyMetric) error
	GetDaily(ctx context.Context, day time.Time, channel domain.Channel) (domain.DailyMetric, error)
}

// SendGuardStore deduplicates sequence steps across restarts.
type SendGuardStore interface {
	// ClaimSend returns false when the key was already claimed.
	ClaimSend(ctx context.Context, key domain.SendGuardKey) (bool, error)
	ReleaseSend(ctx context.Context, key domain.SendGuardKey) error
}

// PricingStore holds the ladder and offer snapshots.
type PricingStore interface {
	// GetPriceLevel returns ErrNotFound before the plan's first use.
	GetPriceLevel(ctx context.Context, plan domain.Plan) (domain.PriceLevel, error)
	SavePriceLevel(ctx context.Context, level domain.PriceLevel) error
	InsertOffer(ctx context.Context, offer domain.Offer) error
	GetOffer(ctx context.Context, id uuid.UUID) (domain.Offer, error)
	LatestPendingOffer(ctx context.Context, leadID uuid.UUID) (domain.Offer, error)
	// ResolveOffer moves a PENDING offer to outcome; otherwise ErrAlreadyResolved.
	ResolveOffer(ctx context.Context, id uuid.UUID, outcome domain.OfferOutcome, at time.Time) (domain.Offer, error)
}

// DomainJobStore holds post-sale domain jobs.
type DomainJobStore interface {
	// CreateDomainJob is idempotent per lead; created=false returns the stored job.
	CreateDomainJob(ctx context.Context, job domain.DomainJob) (domain.DomainJob, bool, error)
	GetDomainJob(ctx context.Context, id uuid.UUID) (domain.DomainJob, error)
	SaveDomainJob(ctx context.Context, job domain.DomainJob) error
	// ListExpiringDomainJobs returns jobs expiring at or before the cutoff.
	ListExpiringDomainJobs(ctx context.Context, before time.Time) ([]domain.DomainJob, error)
	// MarkAlertSent returns false when the alert for daysBefore already exists.
	MarkAlertSent(ctx context.Context, jobID uuid.UUID, daysBefore int) (bool, error)
}

// Store composes every entity store.
type Store interface {
	LeadReader
	LeadWriter
	TouchStore
	ReplyStore
	OptOutStore
	ChannelStore
	FlagStore
	MetricsStore
	SendGuardStore
	PricingStore
	DomainJobStore
	Ping(ctx context.Context) error
}
