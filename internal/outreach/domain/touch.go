package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind is the content class of a touch. No body is persisted.
type MessageKind string

const (
	MessageConsentRequest MessageKind = "CONSENT_REQUEST"
	MessageFollowUp       MessageKind = "FOLLOW_UP"
	MessageOffer          MessageKind = "OFFER"
)

// Commercial reports whether the message requires a recorded review decision.
func (k MessageKind) Commercial() bool {
	return k == MessageOffer
}

// Touch is one acknowledged outreach attempt.
type Touch struct {
	ID                uuid.UUID   `json:"id"`
	LeadID            uuid.UUID   `json:"leadId"`
	Channel           Channel     `json:"channel"`
	MessageKind       MessageKind `json:"messageKind"`
	ProviderMessageID string      `json:"providerMessageId,omitempty"`
	SentAt            time.Time   `json:"sentAt"`
}

// SendGuardKey deduplicates a sequence step for a contact across restarts.
type SendGuardKey struct {
	ContactHash  string
	Channel      Channel
	MessageKind  MessageKind
	SequenceStep int
}

// OptOut suppresses a contact on one channel or on ChannelAll.
type OptOut struct {
	ContactHash string    `json:"contactHash"`
	Channel     Channel   `json:"channel"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
}
