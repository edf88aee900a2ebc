package domain

// Pause reasons recorded on a ChannelStatus.
const (
	ReasonComplaintRate   = "complaint_rate"
	ReasonBounceRate      = "bounce_rate"
	ReasonWAFailRate      = "wa_fail_rate"
	ReasonErrorStreak     = "error_streak"
	ReasonCaptcha         = "captcha"
	ReasonRateLimited     = "rate_limited"
	ReasonTimeout         = "timeout"
	ReasonUnstableRuns    = "unstable_runs"
	ReasonManual          = "manual"
	ReasonCooldownElapsed = "cooldown_elapsed"
)

// Rejection reasons returned with PolicyViolation and ValidationError.
const (
	ReasonInvalidInput    = "invalid_input"
	ReasonSafeMode        = "safe_mode"
	ReasonChannelPaused   = "channel_paused"
	ReasonUnsubscribed    = "unsubscribed"
	ReasonOptedOut        = "opted_out"
	ReasonReviewPending   = "review_pending"
	ReasonNoConsent       = "no_consent"
	ReasonWarmupLimit     = "warmup_limit"
	ReasonDailyLimit      = "daily_limit"
	ReasonNoContact       = "no_contact"
	ReasonScrapePaused    = "scrape_paused"
	ReasonLeadHalted      = "lead_halted"
	ReasonDuplicateSend   = "duplicate_send"
	ReasonInvalidState    = "invalid_transition"
	ReasonAlreadyDecided  = "already_decided"
	ReasonSessionActive   = "session_active"
	ReasonThrottleHalted  = "throttle_halted"
	ReasonCorruptedRecord = "corrupted_record"
)
