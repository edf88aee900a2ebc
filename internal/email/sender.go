package email

import (
	"context"
	"fmt"

	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/google/uuid"
)

// Message is one rendered outbound email.
type Message struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	UnsubscribeURL string
	// Tags are provider metadata such as lead id and message kind.
	Tags map[string]string
}

// Sender delivers a message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NoopSender logs instead of sending. Used in development.
type NoopSender struct {
	log *logger.Logger
}

func NewNoopSender(log *logger.Logger) NoopSender {
	if log == nil {
		log = logger.Nop()
	}
	return NoopSender{log: log}
}

func (n NoopSender) Send(ctx context.Context, msg Message) (string, error) {
	id := "noop-" + uuid.NewString()
	log := n.log
	if log == nil {
		log = logger.Nop()
	}
	log.WithContext(ctx).Info("email not sent (noop provider)", "to", msg.To, "subject", msg.Subject, "message_id", id)
	return id, nil
}

// NewSender picks the provider named by EMAIL_PROVIDER.
func NewSender(cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch cfg.GetEmailProvider() {
	case "", "noop":
		return NewNoopSender(log), nil
	case "brevo":
		if cfg.GetBrevoAPIKey() == "" {
			return nil, fmt.Errorf("BREVO_API_KEY is required for the brevo provider")
		}
		return NewBrevoSender(cfg.GetBrevoAPIKey(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName()), nil
	case "smtp":
		if cfg.GetSMTPHost() == "" {
			return nil, fmt.Errorf("SMTP_HOST is required for the smtp provider")
		}
		return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName()), nil
	case "ses":
		return NewSESSender(context.Background(), cfg.GetSESAccessKey(), cfg.GetSESSecretKey(), cfg.GetSESRegion(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.GetEmailProvider())
}
