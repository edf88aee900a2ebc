// Package transport turns a cadence send command into a provider call.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/renandiiias/build-automated-outreach/internal/email"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/whatsapp"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
)

// DefaultSendTimeout bounds one provider call.
const DefaultSendTimeout = 15 * time.Second

// SendCommand asks for one message to one lead.
type SendCommand struct {
	Lead        domain.Lead
	Channel     domain.Channel
	MessageKind domain.MessageKind
	// Step is the 1-based position in the sequence.
	Step   int
	RunID  string
	Offers []domain.Offer
}

// Receipt is the provider acknowledgment of a send.
type Receipt struct {
	ProviderMessageID string
	Channel           domain.Channel
	SentAt            time.Time
}

// Dispatcher delivers send commands. Implementations never retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd SendCommand) (Receipt, error)
}

// Router renders a command and hands it to the channel's sender.
type Router struct {
	email   email.Sender
	wa      whatsapp.Sender
	links   *UnsubscribeLinks
	timeout time.Duration
	log     *logger.Logger
}

func NewRouter(emailSender email.Sender, waSender whatsapp.Sender, links *UnsubscribeLinks, timeout time.Duration, log *logger.Logger) *Router {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Router{email: emailSender, wa: waSender, links: links, timeout: timeout, log: log}
}

func (r *Router) Dispatch(ctx context.Context, cmd SendCommand) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		id  string
		err error
	)
	switch cmd.Channel {
	case domain.ChannelEmail:
		id, err = r.sendEmail(ctx, cmd)
	case domain.ChannelWhatsApp:
		id, err = r.sendWhatsApp(ctx, cmd)
	default:
		return Receipt{}, apperr.Validation("channel cannot send: " + string(cmd.Channel)).WithReason(domain.ReasonInvalidInput)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Receipt{}, apperr.Transient(fmt.Sprintf("%s send timed out", cmd.Channel), err)
		}
		return Receipt{}, apperr.Transient(fmt.Sprintf("%s send failed", cmd.Channel), err)
	}
	return Receipt{ProviderMessageID: id, Channel: cmd.Channel, SentAt: time.Now().UTC()}, nil
}

func (r *Router) sendEmail(ctx context.Context, cmd SendCommand) (string, error) {
	if r.email == nil {
		return "", errors.New("email sender not configured")
	}
	lead := cmd.Lead
	unsubscribe, err := r.links.URL(lead.ID, domain.ChannelEmail)
	if err != nil {
		return "", err
	}
	completo, simples := prices(lead, cmd.Offers)
	subject, body, err := email.Render(cmd.MessageKind, email.Content{
		BusinessName:   lead.BusinessName,
		City:           cityFromAddress(lead.Address),
		HasWebsite:     lead.Website != "",
		PT:             portuguese(lead),
		Step:           cmd.Step,
		PriceCompleto:  completo,
		PriceSimples:   simples,
		UnsubscribeURL: unsubscribe,
	})
	if err != nil {
		return "", err
	}
	return r.email.Send(ctx, email.Message{
		To:             lead.Email,
		Subject:        subject,
		HTML:           body,
		UnsubscribeURL: unsubscribe,
		Tags: map[string]string{
			"lead_id":      lead.ID.String(),
			"message_kind": string(cmd.MessageKind),
		},
	})
}

func (r *Router) sendWhatsApp(ctx context.Context, cmd SendCommand) (string, error) {
	if r.wa == nil {
		return "", errors.New("whatsapp sender not configured")
	}
	lead := cmd.Lead
	completo, simples := prices(lead, cmd.Offers)
	text := whatsapp.Text{
		BusinessName:  lead.BusinessName,
		HasWebsite:    lead.Website != "",
		PT:            portuguese(lead),
		Step:          cmd.Step,
		PriceCompleto: completo,
		PriceSimples:  simples,
	}
	var body string
	switch cmd.MessageKind {
	case domain.MessageConsentRequest:
		body = whatsapp.ConsentRequest(text)
	case domain.MessageFollowUp:
		body = whatsapp.FollowUp(text)
	case domain.MessageOffer:
		body = whatsapp.Offer(text)
	default:
		return "", fmt.Errorf("no whatsapp text for %s", cmd.MessageKind)
	}
	return r.wa.Send(ctx, lead.Phone, body)
}

func portuguese(lead domain.Lead) bool {
	switch strings.ToUpper(lead.CountryCode) {
	case "BR", "PT":
		return true
	}
	return false
}

func money(lead domain.Lead, amount int) string {
	if portuguese(lead) {
		return fmt.Sprintf("R$ %d", amount)
	}
	return fmt.Sprintf("EUR %d", amount)
}

func prices(lead domain.Lead, offers []domain.Offer) (completo, simples string) {
	for _, o := range offers {
		switch o.Plan {
		case domain.PlanCompleto:
			completo = money(lead, o.Price)
		case domain.PlanSimples:
			simples = money(lead, o.Price)
		}
	}
	return completo, simples
}

// cityFromAddress picks the locality of a maps address such as
// "Rua X, 10 - Centro, Curitiba - PR, 80000-000".
func cityFromAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 3 {
		return ""
	}
	city := strings.TrimSpace(parts[len(parts)-2])
	if i := strings.Index(city, " - "); i > 0 {
		city = city[:i]
	}
	if strings.IndexFunc(city, unicode.IsDigit) >= 0 {
		return ""
	}
	return city
}
