package transport

import (
	"errors"
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const unsubscribeTokenType = "unsubscribe"

// DefaultUnsubscribeTTL keeps links in old emails working.
const DefaultUnsubscribeTTL = 180 * 24 * time.Hour

// UnsubscribeClaims is what a signed unsubscribe link carries.
type UnsubscribeClaims struct {
	LeadID  uuid.UUID      `json:"-"`
	Channel domain.Channel `json:"channel"`
	Type    string         `json:"type"`
	jwt.RegisteredClaims
}

// UnsubscribeLinks signs and verifies unsubscribe tokens.
type UnsubscribeLinks struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewUnsubscribeLinks(cfg config.AuthConfig) (*UnsubscribeLinks, error) {
	if cfg.GetUnsubscribeSecret() == "" {
		return nil, errors.New("UNSUBSCRIBE_SECRET is required")
	}
	ttl := cfg.GetUnsubscribeTTL()
	if ttl <= 0 {
		ttl = DefaultUnsubscribeTTL
	}
	return &UnsubscribeLinks{
		secret:  []byte(cfg.GetUnsubscribeSecret()),
		ttl:     ttl,
		baseURL: strings.TrimRight(cfg.GetAppBaseURL(), "/"),
		now:     time.Now,
	}, nil
}

// Issue signs a token for lead on channel.
func (u *UnsubscribeLinks) Issue(leadID uuid.UUID, channel domain.Channel) (string, error) {
	now := u.now()
	claims := UnsubscribeClaims{
		Channel: channel,
		Type:    unsubscribeTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   leadID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.secret)
}

// URL returns APP_BASE_URL/unsubscribe?token=....
func (u *UnsubscribeLinks) URL(leadID uuid.UUID, channel domain.Channel) (string, error) {
	if u == nil {
		return "", errors.New("unsubscribe links not configured")
	}
	token, err := u.Issue(leadID, channel)
	if err != nil {
		return "", err
	}
	return u.baseURL + "/unsubscribe?token=" + token, nil
}

// Parse verifies a token. Any defect is a ValidationError.
func (u *UnsubscribeLinks) Parse(raw string) (UnsubscribeClaims, error) {
	invalid := apperr.Validation("invalid unsubscribe token").WithReason(domain.ReasonInvalidInput)
	var claims UnsubscribeClaims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(u.now))
	if err != nil || !parsed.Valid || claims.Type != unsubscribeTokenType {
		return UnsubscribeClaims{}, invalid
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return UnsubscribeClaims{}, invalid
	}
	claims.LeadID = id
	if claims.Channel == "" {
		claims.Channel = domain.ChannelAll
	}
	return claims, nil
}
