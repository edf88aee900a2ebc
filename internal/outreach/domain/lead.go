package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/google/uuid"
)

// LeadState is the cadence position of a lead.
type LeadState string

const (
	LeadNew          LeadState = "NEW"
	LeadConsented    LeadState = "CONSENTED"
	LeadWaitingReply LeadState = "WAITING_REPLY"
	LeadUnsubscribed LeadState = "UNSUBSCRIBED"
	LeadClosedStale  LeadState = "CLOSED_STALE"
	LeadWon          LeadState = "WON"
)

// Valid reports whether s is a known state.
func (s LeadState) Valid() bool {
	switch s {
	case LeadNew, LeadConsented, LeadWaitingReply, LeadUnsubscribed, LeadClosedStale, LeadWon:
		return true
	}
	return false
}

var transitions = map[LeadState][]LeadState{
	LeadNew:          {LeadWaitingReply, LeadConsented, LeadUnsubscribed},
	LeadWaitingReply: {LeadWaitingReply, LeadConsented, LeadUnsubscribed, LeadClosedStale},
	LeadConsented:    {LeadConsented, LeadWaitingReply, LeadUnsubscribed, LeadWon},
	LeadClosedStale:  {LeadConsented, LeadWaitingReply, LeadUnsubscribed},
	LeadWon:          {LeadWon, LeadUnsubscribed},
	LeadUnsubscribed: nil,
}

// CanTransition reports whether from -> to is allowed. UNSUBSCRIBED is terminal.
func CanTransition(from, to LeadState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Lead is a discovered business and its outreach position.
type Lead struct {
	ID           uuid.UUID  `json:"id"`
	ContactHash  string     `json:"contactHash"`
	BusinessName string     `json:"businessName"`
	SourceURL    string     `json:"sourceUrl"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Website      string     `json:"website,omitempty"`
	Address      string     `json:"address,omitempty"`
	Audience     string     `json:"audience,omitempty"`
	CountryCode  string     `json:"countryCode,omitempty"`
	State        LeadState  `json:"state"`
	LastTouchAt  *time.Time `json:"lastTouchAt,omitempty"`
	OfferSentAt  *time.Time `json:"offerSentAt,omitempty"`
	ChannelUsed  Channel    `json:"channelUsed,omitempty"`
	Attempts     int        `json:"attempts"`
	Halted       bool       `json:"halted"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PreferredChannel picks EMAIL when an address exists, else WHATSAPP when a
// phone exists, else "".
func (l Lead) PreferredChannel() Channel {
	if strings.TrimSpace(l.Email) != "" {
		return ChannelEmail
	}
	if strings.TrimSpace(l.Phone) != "" {
		return ChannelWhatsApp
	}
	return ""
}

// ContactFor returns the address used on channel c.
func (l Lead) ContactFor(c Channel) string {
	switch c {
	case ChannelEmail:
		return l.Email
	case ChannelWhatsApp:
		return l.Phone
	}
	return ""
}

// ContactHash identifies a contact across leads: sha256 of the normalized
// email, or of the phone when there is no email.
func ContactHash(email, phone string) string {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		key = strings.TrimSpace(phone)
	}
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ValidateLead checks the persisted invariants of a loaded lead.
func ValidateLead(l Lead) error {
	fail := func(format string, args ...any) error {
		return apperr.Corrupted(ReasonCorruptedRecord, fmt.Sprintf("lead %s: "+format, append([]any{l.ID}, args...)...))
	}
	if !l.State.Valid() {
		return fail("unknown state %q", l.State)
	}
	if l.Attempts < 0 {
		return fail("negative attempts %d", l.Attempts)
	}
	if l.ChannelUsed != "" && !l.ChannelUsed.Sendable() {
		return fail("channel_used %q is not sendable", l.ChannelUsed)
	}
	if l.State == LeadWaitingReply && l.LastTouchAt == nil {
		return fail("WAITING_REPLY without last_touch_at")
	}
	if l.Attempts > 0 && (l.LastTouchAt == nil || l.ChannelUsed == "") {
		return fail("attempts recorded without a touch")
	}
	return nil
}
