// Package domain holds the outreach entities, their closed enums and the
// transition rules every service enforces.
package domain

import (
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"
)

// Channel identifies an outreach or discovery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelScrape   Channel = "SCRAPE"
	// ChannelAll scopes an opt-out to every channel.
	ChannelAll Channel = "ALL"
)

// MonitoredChannels are the channels with a health status.
var MonitoredChannels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelScrape}

// ParseChannel accepts any monitored channel, case-insensitively.
func ParseChannel(raw string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelScrape:
		return c, nil
	}
	return "", apperr.Validation("unknown channel: " + raw).WithReason(ReasonInvalidInput)
}

// Sendable reports whether messages can be delivered over the channel.
func (c Channel) Sendable() bool {
	return c == ChannelEmail || c == ChannelWhatsApp
}

// Outcome is a health signal reported for a channel.
type Outcome string

const (
	OutcomeSuccess         Outcome = "SUCCESS"
	OutcomeBounce          Outcome = "BOUNCE"
	OutcomeComplaint       Outcome = "COMPLAINT"
	OutcomeFailure         Outcome = "FAILURE"
	OutcomeCaptchaDetected Outcome = "CAPTCHA_DETECTED"
	OutcomeRateLimited     Outcome = "RATE_LIMITED"
	OutcomeTimeout         Outcome = "TIMEOUT"
)

// ParseOutcome validates a raw outcome kind.
func ParseOutcome(raw string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(raw)))
	switch o {
	case OutcomeSuccess, OutcomeBounce, OutcomeComplaint, OutcomeFailure,
		OutcomeCaptchaDetected, OutcomeRateLimited, OutcomeTimeout:
		return o, nil
	}
	return "", apperr.Validation("unknown outcome: " + raw).WithReason(ReasonInvalidInput)
}

// ChannelStatus is the persisted health of one channel.
type ChannelStatus struct {
	Channel          Channel    `json:"channel"`
	Paused           bool       `json:"paused"`
	PauseReason      string     `json:"pauseReason,omitempty"`
	CooldownUntil    *time.Time `json:"cooldownUntil,omitempty"`
	ErrorStreak      int        `json:"errorStreak"`
	UnstableStreak   int        `json:"unstableStreak"`
	WindowSent       int        `json:"windowSent"`
	WindowBounces    int        `json:"windowBounces"`
	WindowComplaints int        `json:"windowComplaints"`
	WindowFailures   int        `json:"windowFailures"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewChannelStatus returns the healthy zero state for c.
func NewChannelStatus(c Channel) ChannelStatus {
	return ChannelStatus{Channel: c}
}

func (s ChannelStatus) rate(n int) float64 {
	if s.WindowSent == 0 {
		return 0
	}
	return float64(n) / float64(s.WindowSent)
}

// BounceRate over the current window.
func (s ChannelStatus) BounceRate() float64 { return s.rate(s.WindowBounces) }

// ComplaintRate over the current window.
func (s ChannelStatus) ComplaintRate() float64 { return s.rate(s.WindowComplaints) }

// FailureRate over the current window.
func (s ChannelStatus) FailureRate() float64 { return s.rate(s.WindowFailures) }

// ResetWindow clears the rolling counters.
func (s *ChannelStatus) ResetWindow() {
	s.WindowSent = 0
	s.WindowBounces = 0
	s.WindowComplaints = 0
	s.WindowFailures = 0
}

// CooldownElapsed reports whether a timed pause has expired at now.
func (s ChannelStatus) CooldownElapsed(now time.Time) bool {
	return s.Paused && s.CooldownUntil != nil && !now.Before(*s.CooldownUntil)
}

// DailyMetric aggregates one channel's activity for a UTC day.
type DailyMetric struct {
	Day        time.Time `json:"day"`
	Channel    Channel   `json:"channel"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Bounces    int       `json:"bounces"`
	Complaints int       `json:"complaints"`
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
