package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds every tunable threshold of the outreach control loop.
// Defaults come from DefaultPolicy, then POLICY_FILE, then env overrides.
type Policy struct {
	Health     HealthPolicy    `yaml:"health"`
	Cadence    CadencePolicy   `yaml:"cadence"`
	Pricing    PricingPolicy   `yaml:"pricing"`
	Throttle   ThrottlePolicy  `yaml:"throttle"`
	DomainJobs DomainJobPolicy `yaml:"domain_jobs"`
}

// HealthPolicy configures per-channel pause thresholds.
type HealthPolicy struct {
	EmailBounceRate     float64       `yaml:"email_bounce_rate"`
	EmailComplaintRate  float64       `yaml:"email_complaint_rate"`
	EmailMinSample      int           `yaml:"email_min_sample"`
	WhatsAppFailureRate float64       `yaml:"whatsapp_failure_rate"`
	WhatsAppMinSample   int           `yaml:"whatsapp_min_sample"`
	WindowSize          int           `yaml:"window_size"`
	ScrapeErrorStreak   int           `yaml:"scrape_error_streak"`
	ScrapeCooldown      time.Duration `yaml:"scrape_cooldown"`
	UnstableRunLimit    int           `yaml:"unstable_run_limit"`
	SafeModeThreshold   int           `yaml:"safe_mode_threshold"`
	WhatsAppDailyLimit  int           `yaml:"whatsapp_daily_limit"`
	// EmailWarmupStart is a YYYY-MM-DD date; empty disables the warm-up limit.
	EmailWarmupStart string `yaml:"email_warmup_start"`
}

// WarmupStart parses EmailWarmupStart. ok is false when unset or invalid.
func (p HealthPolicy) WarmupStart() (time.Time, bool) {
	if p.EmailWarmupStart == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, p.EmailWarmupStart)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// CadencePolicy configures follow-up timing.
type CadencePolicy struct {
	FollowUpInterval time.Duration `yaml:"follow_up_interval"`
	MaxAttempts      int           `yaml:"max_attempts"`
	PageSize         int           `yaml:"page_size"`
}

// PricingPolicy configures the price ladder.
type PricingPolicy struct {
	BaseSimples         int     `yaml:"base_simples"`
	BaseCompleto        int     `yaml:"base_completo"`
	Step                int     `yaml:"step"`
	WindowSize          int     `yaml:"window_size"`
	ConversionThreshold float64 `yaml:"conversion_threshold"`
	// MaxLevel caps increases when > 0.
	MaxLevel int `yaml:"max_level"`
}

// ThrottlePolicy configures scrape pacing.
type ThrottlePolicy struct {
	MinDelay       time.Duration `yaml:"min_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	LongPauseEvery int           `yaml:"long_pause_every"`
	LongPauseMin   time.Duration `yaml:"long_pause_min"`
	LongPauseMax   time.Duration `yaml:"long_pause_max"`
	ErrorStreak    int           `yaml:"error_streak"`
}

// DomainJobPolicy configures post-sale domain tracking.
type DomainJobPolicy struct {
	Validity  time.Duration `yaml:"validity"`
	AlertDays []int         `yaml:"alert_days"`
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Health: HealthPolicy{
			EmailBounceRate:     0.05,
			EmailComplaintRate:  0.003,
			EmailMinSample:      20,
			WhatsAppFailureRate: 0.10,
			WhatsAppMinSample:   10,
			WindowSize:          100,
			ScrapeErrorStreak:   3,
			ScrapeCooldown:      12 * time.Hour,
			UnstableRunLimit:    2,
			SafeModeThreshold:   2,
			WhatsAppDailyLimit:  40,
		},
		Cadence: CadencePolicy{
			FollowUpInterval: 7 * 24 * time.Hour,
			MaxAttempts:      3,
			PageSize:         100,
		},
		Pricing: PricingPolicy{
			BaseSimples:         100,
			BaseCompleto:        200,
			Step:                100,
			WindowSize:          10,
			ConversionThreshold: 0.10,
		},
		Throttle: ThrottlePolicy{
			MinDelay:       1800 * time.Millisecond,
			MaxDelay:       4200 * time.Millisecond,
			LongPauseEvery: 20,
			LongPauseMin:   45 * time.Second,
			LongPauseMax:   90 * time.Second,
			ErrorStreak:    3,
		},
		DomainJobs: DomainJobPolicy{
			Validity:  365 * 24 * time.Hour,
			AlertDays: []int{30, 15, 7},
		},
	}
}

// LoadPolicyFile overlays a YAML policy document on top of base.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("parse policy file: %w", err)
	}
	return base, nil
}

// Validate rejects policies that would disable a safety threshold.
func (p Policy) Validate() error {
	h := p.Health
	if !validRate(h.EmailBounceRate) || !validRate(h.EmailComplaintRate) || !validRate(h.WhatsAppFailureRate) {
		return fmt.Errorf("health rates must be within (0, 1]")
	}
	if h.WindowSize < 1 || h.ScrapeErrorStreak < 1 {
		return fmt.Errorf("health window and error streak must be positive")
	}
	if h.SafeModeThreshold < 2 {
		return fmt.Errorf("safe_mode_threshold must be at least 2")
	}
	if h.EmailWarmupStart != "" {
		if _, ok := h.WarmupStart(); !ok {
			return fmt.Errorf("email_warmup_start must be YYYY-MM-DD")
		}
	}
	if p.Cadence.MaxAttempts < 1 || p.Cadence.FollowUpInterval <= 0 {
		return fmt.Errorf("cadence max attempts and follow-up interval must be positive")
	}
	if p.Pricing.WindowSize < 1 || p.Pricing.Step < 1 {
		return fmt.Errorf("pricing window size and step must be positive")
	}
	if p.Pricing.ConversionThreshold < 0 || p.Pricing.ConversionThreshold > 1 {
		return fmt.Errorf("pricing conversion threshold must be within [0, 1]")
	}
	if p.Throttle.MinDelay <= 0 || p.Throttle.MaxDelay < p.Throttle.MinDelay {
		return fmt.Errorf("throttle delays must satisfy 0 < min <= max")
	}
	if p.Throttle.LongPauseMax < p.Throttle.LongPauseMin {
		return fmt.Errorf("throttle long pause must satisfy min <= max")
	}
	if p.DomainJobs.Validity <= 0 {
		return fmt.Errorf("domain job validity must be positive")
	}
	return nil
}

func validRate(r float64) bool {
	return r > 0 && r <= 1
}
