package eventlog

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/codeGROOVE-dev/retry"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body.
const SignatureHeader = "X-Outreach-Signature"

type envelope struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Fingerprint string          `json:"fingerprint"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// WebhookSink POSTs events to an external endpoint.
type WebhookSink struct {
	url      string
	secret   []byte
	client   *http.Client
	attempts uint
	delay    time.Duration
	log      *logger.Logger
}

// NewWebhookSink returns nil when no sink URL is configured.
func NewWebhookSink(cfg config.EventSinkConfig, log *logger.Logger) *WebhookSink {
	if cfg.GetEventSinkURL() == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WebhookSink{
		url:      cfg.GetEventSinkURL(),
		secret:   []byte(cfg.GetEventSinkSecret()),
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
		delay:    time.Second,
		log:      log,
	}
}

type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("event sink returned %d", e.code) }

func (s *WebhookSink) Deliver(ctx context.Context, rec Record) error {
	body, err := json.Marshal(envelope{
		ID:          rec.ID.String(),
		Name:        rec.Name,
		Fingerprint: rec.Fingerprint,
		OccurredAt:  rec.OccurredAt,
		Payload:     rec.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Event-Id", rec.ID.String())
			if len(s.secret) > 0 {
				req.Header.Set(SignatureHeader, sign(s.secret, body))
			}

			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode >= http.StatusBadRequest {
				return statusError{code: resp.StatusCode}
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.log.Info("retrying event delivery", "event_id", rec.ID, "attempt", n, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			// Client errors other than 429 will not improve.
			var se statusError
			if errors.As(err, &se) {
				return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
			}
			return true
		}),
	)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
