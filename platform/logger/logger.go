// Package logger wraps slog with the outreach log vocabulary: request and run
// scoping, policy violations and channel transitions. Contact data and secrets
// are redacted before a record is written.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	RunIDKey     contextKey = "run_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Secrets are masked on every record.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: redactAttr,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext scopes the logger to the request and run stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	out := l
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		out = out.WithRequestID(requestID)
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		out = out.WithRunID(runID)
	}
	return out
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithRunID returns a logger scoped to an outreach run
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("run_id", runID)),
	}
}

// ContextWithRunID stores the run id for WithContext.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// HTTPRequest logs a finished request. Server errors are logged at error level.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, "http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// PolicyViolation logs a rejected send or commercial action. Always high severity.
func (l *Logger) PolicyViolation(op, reason string, attrs ...any) {
	args := append([]any{
		slog.String("op", op),
		slog.String("reason", reason),
		slog.String("severity", "high"),
	}, attrs...)
	l.Error("policy_violation", args...)
}

// ChannelTransition logs a pause or resume of an outreach channel.
func (l *Logger) ChannelTransition(channel string, paused bool, reason string) {
	l.Warn("channel_transition",
		slog.String("channel", channel),
		slog.Bool("paused", paused),
		slog.String("reason", reason),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
