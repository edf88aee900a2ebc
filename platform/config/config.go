// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// StoreConfig selects the entity store backend.
type StoreConfig interface {
	GetStoreBackend() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AuthConfig provides secrets for collaborator webhooks and unsubscribe links.
type AuthConfig interface {
	GetServiceJWTSecret() string
	GetUnsubscribeSecret() string
	GetUnsubscribeTTL() time.Duration
	GetAppBaseURL() string
}

// SchedulerConfig provides Redis and asynq settings.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetOutreachRunInterval() time.Duration
	GetDomainSweepInterval() time.Duration
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailProvider() string
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSESRegion() string
	GetSESAccessKey() string
	GetSESSecretKey() string
}

// WhatsAppConfig provides settings for the GOWA WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// TransportConfig provides per-send limits.
type TransportConfig interface {
	GetSendTimeout() time.Duration
}

// LockConfig provides per-lead lock settings.
type LockConfig interface {
	GetLockTTL() time.Duration
	GetLockWait() time.Duration
}

// EventSinkConfig provides the external event stream endpoint.
type EventSinkConfig interface {
	GetEventSinkURL() string
	GetEventSinkSecret() string
}

// EnrichmentConfig toggles website contact lookups at ingest.
type EnrichmentConfig interface {
	GetWebsiteEnrichment() bool
}

// PolicyConfig exposes the outreach thresholds.
type PolicyConfig interface {
	GetPolicy() Policy
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	StoreBackend        string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	AppBaseURL          string
	ServiceJWTSecret    string
	UnsubscribeSecret   string
	UnsubscribeTTL      time.Duration
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	OutreachRunInterval time.Duration
	DomainSweepInterval time.Duration
	EmailProvider       string
	BrevoAPIKey         string
	EmailFromName       string
	EmailFromAddress    string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	SESRegion           string
	SESAccessKey        string
	SESSecretKey        string
	WhatsAppURL         string
	WhatsAppKey         string
	WhatsAppDeviceID    string
	SendTimeout         time.Duration
	LockTTL             time.Duration
	LockWait            time.Duration
	EventSinkURL        string
	EventSinkSecret     string
	WebsiteEnrichment   bool
	Policy              Policy
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string  { return c.DatabaseURL }
func (c *Config) GetStoreBackend() string { return c.StoreBackend }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AuthConfig implementation
func (c *Config) GetServiceJWTSecret() string      { return c.ServiceJWTSecret }
func (c *Config) GetUnsubscribeSecret() string     { return c.UnsubscribeSecret }
func (c *Config) GetUnsubscribeTTL() time.Duration { return c.UnsubscribeTTL }
func (c *Config) GetAppBaseURL() string            { return c.AppBaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                   { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool             { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string             { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int              { return c.AsynqConcurrency }
func (c *Config) GetOutreachRunInterval() time.Duration { return c.OutreachRunInterval }
func (c *Config) GetDomainSweepInterval() time.Duration { return c.DomainSweepInterval }

// EmailConfig implementation
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetSESRegion() string        { return c.SESRegion }
func (c *Config) GetSESAccessKey() string     { return c.SESAccessKey }
func (c *Config) GetSESSecretKey() string     { return c.SESSecretKey }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// TransportConfig implementation
func (c *Config) GetSendTimeout() time.Duration { return c.SendTimeout }

// LockConfig implementation
func (c *Config) GetLockTTL() time.Duration  { return c.LockTTL }
func (c *Config) GetLockWait() time.Duration { return c.LockWait }

// EventSinkConfig implementation
func (c *Config) GetEventSinkURL() string    { return c.EventSinkURL }
func (c *Config) GetEventSinkSecret() string { return c.EventSinkSecret }

// EnrichmentConfig implementation
func (c *Config) GetWebsiteEnrichment() bool { return c.WebsiteEnrichment }

// PolicyConfig implementation
func (c *Config) GetPolicy() Policy { return c.Policy }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	policy, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		AppBaseURL:          strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		ServiceJWTSecret:    getEnv("SERVICE_JWT_SECRET", ""),
		UnsubscribeSecret:   getEnv("UNSUBSCRIBE_SECRET", ""),
		UnsubscribeTTL:      mustDuration(getEnv("UNSUBSCRIBE_TTL", "2160h")),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "outreach"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		OutreachRunInterval: mustDuration(getEnv("OUTREACH_RUN_INTERVAL", "15m")),
		DomainSweepInterval: mustDuration(getEnv("DOMAIN_SWEEP_INTERVAL", "24h")),
		EmailProvider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "noop")),
		BrevoAPIKey:         getEnv("BREVO_API_KEY", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Outreach"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SESRegion:           getEnv("SES_REGION", "us-east-1"),
		SESAccessKey:        getEnv("SES_ACCESS_KEY", ""),
		SESSecretKey:        getEnv("SES_SECRET_KEY", ""),
		WhatsAppURL:         getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:         getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:    getEnv("WHATSAPP_DEVICE_ID", ""),
		SendTimeout:         mustDuration(getEnv("SEND_TIMEOUT", "15s")),
		LockTTL:             mustDuration(getEnv("LOCK_TTL", "30s")),
		LockWait:            mustDuration(getEnv("LOCK_WAIT", "5s")),
		EventSinkURL:        getEnv("EVENT_SINK_URL", ""),
		EventSinkSecret:     getEnv("EVENT_SINK_SECRET", ""),
		WebsiteEnrichment:   strings.EqualFold(getEnv("WEBSITE_ENRICHMENT", "true"), "true"),
		Policy:              policy,
	}

	if cfg.StoreBackend != "postgres" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory")
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ServiceJWTSecret == "" || cfg.UnsubscribeSecret == "" {
		return nil, fmt.Errorf("SERVICE_JWT_SECRET and UNSUBSCRIBE_SECRET are required")
	}
	if err := validateEmail(cfg); err != nil {
		return nil, err
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SendTimeout <= 0 || cfg.LockWait <= 0 || cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("SEND_TIMEOUT, LOCK_WAIT and LOCK_TTL must be positive durations")
	}

	return cfg, nil
}

func loadPolicy() (Policy, error) {
	policy := DefaultPolicy()

	if path := getEnv("POLICY_FILE", ""); path != "" {
		loaded, err := LoadPolicyFile(path, policy)
		if err != nil {
			return policy, err
		}
		policy = loaded
	}

	if v := getEnv("PRICING_CONVERSION_THRESHOLD", ""); v != "" {
		policy.Pricing.ConversionThreshold = mustFloat(v)
	}
	if v := getEnv("PRICING_MAX_LEVEL", ""); v != "" {
		policy.Pricing.MaxLevel = mustInt(v)
	}
	if v := getEnv("CADENCE_MAX_ATTEMPTS", ""); v != "" {
		policy.Cadence.MaxAttempts = mustInt(v)
	}
	if v := getEnv("CADENCE_FOLLOW_UP_INTERVAL", ""); v != "" {
		policy.Cadence.FollowUpInterval = mustDuration(v)
	}
	if v := getEnv("EMAIL_WARMUP_START", ""); v != "" {
		policy.Health.EmailWarmupStart = v
	}
	if v := getEnv("WHATSAPP_DAILY_LIMIT", ""); v != "" {
		policy.Health.WhatsAppDailyLimit = mustInt(v)
	}

	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("invalid policy: %w", err)
	}
	return policy, nil
}

func validateEmail(cfg *Config) error {
	switch cfg.EmailProvider {
	case "noop":
		return nil
	case "brevo":
		if cfg.BrevoAPIKey == "" {
			return fmt.Errorf("BREVO_API_KEY is required when EMAIL_PROVIDER is brevo")
		}
	case "smtp":
		if cfg.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
		}
	case "ses":
		if cfg.SESAccessKey == "" || cfg.SESSecretKey == "" {
			return fmt.Errorf("SES_ACCESS_KEY and SES_SECRET_KEY are required when EMAIL_PROVIDER is ses")
		}
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
	if cfg.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return -1
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
