// Package events provides the outreach domain event definitions.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent     = events.NewBaseEvent
	NewIncidentEvent = events.NewIncidentEvent
)

const AllEvents = events.AllEvents

// Event names. They are the wire names stored in the event log.
const (
	NameLeadEnriched            = "lead_enriched"
	NameChannelPaused           = "channel_paused"
	NameChannelResumed          = "channel_resumed"
	NameSafeModeEnabled         = "safe_mode_enabled"
	NameSafeModeDisabled        = "safe_mode_disabled"
	NameCaptchaDetected         = "captcha_detected"
	NameDeliverabilityAlert     = "deliverability_alert"
	NameContactDelivered        = "contact_delivered"
	NameContactFailed           = "contact_failed"
	NameReplyReceived           = "reply_received"
	NameOptOutRegistered        = "opt_out_registered"
	NameSendBlocked             = "send_blocked"
	NameStateCorruptionDetected = "state_corruption_detected"
	NameDomainExpiryAlert       = "domain_expiry_alert"
	NameSaleRecorded            = "sale_recorded"
	NamePriceChanged            = "price_changed"
	NameScrapePaused            = "scrape_paused"
)

// =============================================================================
// Lead Events
// =============================================================================

// LeadEnriched is published when an ingested lead carries contact data.
type LeadEnriched struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	HasEmail   bool      `json:"hasEmail"`
	HasPhone   bool      `json:"hasPhone"`
	HasWebsite bool      `json:"hasWebsite"`

	// FromWebsite is set when email or phone was found on the website.
	FromWebsite bool `json:"fromWebsite,omitempty"`
}

func (e LeadEnriched) EventName() string { return NameLeadEnriched }

// StateCorruptionDetected is published when a loaded lead fails its invariants
// and is halted.
type StateCorruptionDetected struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Detail string    `json:"detail"`
}

func (e StateCorruptionDetected) EventName() string { return NameStateCorruptionDetected }

// =============================================================================
// Channel Health Events
// =============================================================================

// ChannelPaused is published on a running -> paused transition.
type ChannelPaused struct {
	BaseEvent
	Channel       domain.Channel `json:"channel"`
	Reason        string         `json:"reason"`
	CooldownUntil *time.Time     `json:"cooldownUntil,omitempty"`
}

func (e ChannelPaused) EventName() string { return NameChannelPaused }

// ChannelResumed is published on a paused -> running transition.
type ChannelResumed struct {
	BaseEvent
	Channel domain.Channel `json:"channel"`
	Reason  string         `json:"reason"`
}

func (e ChannelResumed) EventName() string { return NameChannelResumed }

// SafeModeEnabled is published when two or more channels are paused.
type SafeModeEnabled struct {
	BaseEvent
	PausedChannels []domain.Channel `json:"pausedChannels"`
}

func (e SafeModeEnabled) EventName() string { return NameSafeModeEnabled }

// SafeModeDisabled is published when fewer than two channels remain paused.
type SafeModeDisabled struct {
	BaseEvent
	PausedChannels []domain.Channel `json:"pausedChannels"`
}

func (e SafeModeDisabled) EventName() string { return NameSafeModeDisabled }

// CaptchaDetected is published when the scraper reports a captcha.
type CaptchaDetected struct {
	BaseEvent
	RunID string `json:"runId,omitempty"`
}

func (e CaptchaDetected) EventName() string { return NameCaptchaDetected }

// ScrapePaused is published when a throttle session halts a scrape run.
type ScrapePaused struct {
	BaseEvent
	RunID       string `json:"runId"`
	Reason      string `json:"reason"`
	ErrorStreak int    `json:"errorStreak"`
}

func (e ScrapePaused) EventName() string { return NameScrapePaused }

// DeliverabilityAlert is published when email volume or rates approach limits.
type DeliverabilityAlert struct {
	BaseEvent
	Channel       domain.Channel `json:"channel"`
	Reason        string         `json:"reason"`
	SentToday     int            `json:"sentToday"`
	DailyLimit    int            `json:"dailyLimit"`
	BounceRate    float64        `json:"bounceRate"`
	ComplaintRate float64        `json:"complaintRate"`
}

func (e DeliverabilityAlert) EventName() string { return NameDeliverabilityAlert }

// =============================================================================
// Contact Events
// =============================================================================

// ContactDelivered is published when a transport acknowledges a touch.
type ContactDelivered struct {
	BaseEvent
	LeadID            uuid.UUID          `json:"leadId"`
	Channel           domain.Channel     `json:"channel"`
	MessageKind       domain.MessageKind `json:"messageKind,omitempty"`
	ProviderMessageID string             `json:"providerMessageId,omitempty"`
	RunID             string             `json:"runId,omitempty"`
}

func (e ContactDelivered) EventName() string { return NameContactDelivered }

// ContactFailed is published when a send errors, times out or bounces.
type ContactFailed struct {
	BaseEvent
	LeadID      uuid.UUID          `json:"leadId"`
	Channel     domain.Channel     `json:"channel"`
	MessageKind domain.MessageKind `json:"messageKind,omitempty"`
	Reason      string             `json:"reason"`
	RunID       string             `json:"runId,omitempty"`
}

func (e ContactFailed) EventName() string { return NameContactFailed }

// SendBlocked is published when a policy gate rejects a due touch.
type SendBlocked struct {
	BaseEvent
	LeadID      uuid.UUID          `json:"leadId"`
	Channel     domain.Channel     `json:"channel,omitempty"`
	MessageKind domain.MessageKind `json:"messageKind,omitempty"`
	Reason      string             `json:"reason"`
	RunID       string             `json:"runId,omitempty"`
}

func (e SendBlocked) EventName() string { return NameSendBlocked }

// ReplyReceived is published when an inbound reply enters the review queue.
type ReplyReceived struct {
	BaseEvent
	LeadID         uuid.UUID       `json:"leadId"`
	ReplyID        uuid.UUID       `json:"replyId"`
	Channel        domain.Channel  `json:"channel"`
	Classification domain.Decision `json:"classification"`
	Intent         string          `json:"intent,omitempty"`
	Confidence     float64         `json:"confidence"`
}

func (e ReplyReceived) EventName() string { return NameReplyReceived }

// OptOutRegistered is published when a contact is suppressed.
type OptOutRegistered struct {
	BaseEvent
	LeadID  uuid.UUID      `json:"leadId"`
	Channel domain.Channel `json:"channel"`
	Source  string         `json:"source"`
}

func (e OptOutRegistered) EventName() string { return NameOptOutRegistered }

// =============================================================================
// Commercial Events
// =============================================================================

// SaleRecorded is published when a lead is marked WON.
type SaleRecorded struct {
	BaseEvent
	LeadID uuid.UUID   `json:"leadId"`
	Plan   domain.Plan `json:"plan"`
	Price  int         `json:"price"`
}

func (e SaleRecorded) EventName() string { return NameSaleRecorded }

// PriceChanged is published when a plan moves on the ladder.
type PriceChanged struct {
	BaseEvent
	Plan      domain.Plan `json:"plan"`
	FromLevel int         `json:"fromLevel"`
	ToLevel   int         `json:"toLevel"`
	Price     int         `json:"price"`
	Reason    string      `json:"reason"`
}

func (e PriceChanged) EventName() string { return NamePriceChanged }

// DomainExpiryAlert is published once per job and offset before expiry.
type DomainExpiryAlert struct {
	BaseEvent
	JobID      uuid.UUID `json:"jobId"`
	LeadID     uuid.UUID `json:"leadId"`
	DaysBefore int       `json:"daysBefore"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (e DomainExpiryAlert) EventName() string { return NameDomainExpiryAlert }
