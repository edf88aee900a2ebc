// Package whatsapp sends text messages through a GOWA gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
	"github.com/renandiiias/build-automated-outreach/platform/phone"

	"github.com/google/uuid"
)

// Sender delivers a text to a phone number and returns the gateway message id.
type Sender interface {
	Send(ctx context.Context, phoneNumber, text string) (string, error)
}

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Results struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	} `json:"results"`
}

// NewClient returns nil when no gateway URL is configured.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (c *Client) Send(ctx context.Context, phoneNumber, text string) (string, error) {
	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")
	if normalized == "" {
		return "", fmt.Errorf("whatsapp: invalid phone number")
	}

	body, err := json.Marshal(gowaRequest{Phone: normalized, Message: text})
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out gowaResponse
	_ = json.Unmarshal(data, &out)
	id := out.Results.MessageID
	if id == "" {
		id = "gowa-" + uuid.NewString()
	}
	c.log.WithContext(ctx).Info("whatsapp sent via gowa", "phone", logger.RedactPhone(normalized), "message_id", id)
	return id, nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey))
}

// NoopSender logs instead of sending.
type NoopSender struct {
	Log *logger.Logger
}

func (n NoopSender) Send(ctx context.Context, phoneNumber, text string) (string, error) {
	id := "noop-" + uuid.NewString()
	log := n.Log
	if log == nil {
		log = logger.Nop()
	}
	log.WithContext(ctx).Info("whatsapp not sent (no gateway configured)", "phone", logger.RedactPhone(phoneNumber), "message_id", id)
	return id, nil
}
