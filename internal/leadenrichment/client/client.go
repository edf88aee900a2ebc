// Package client fetches lead websites for contact enrichment.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

const (
	defaultHTTPTimeout = 20 * time.Second
	maxBodyBytes       = 2 << 20
	userAgent          = "Mozilla/5.0 LeadGenerator/1.0"
)

// ErrInvalidURL is returned for anything but an absolute http(s) URL.
var ErrInvalidURL = errors.New("website must be an absolute http or https url")

// Client downloads website HTML.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a website client.
func New(log *logger.Logger) *Client {
	return NewWithHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}, log)
}

// NewWithHTTPClient lets tests point the client at an httptest server.
func NewWithHTTPClient(httpClient *http.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{httpClient: httpClient, log: log}
}

// ValidURL reports whether raw is an absolute http(s) URL with a host.
func ValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FetchHTML returns at most 2 MiB of the page body.
func (c *Client) FetchHTML(ctx context.Context, website string) (string, error) {
	if !ValidURL(website) {
		return "", ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(website), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch website: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch website: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read website: %w", err)
	}
	c.log.Debug("website fetched", "host", req.URL.Host, "bytes", len(body))
	return string(body), nil
}
