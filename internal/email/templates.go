package email

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// Content is what every outreach template can show.
type Content struct {
	BusinessName   string
	City           string
	HasWebsite     bool
	PT             bool
	Step           int
	PriceCompleto  string
	PriceSimples   string
	PreviewURL     string
	UnsubscribeURL string
}

var templateFiles = map[domain.MessageKind]string{
	domain.MessageConsentRequest: "consent_request.html",
	domain.MessageFollowUp:       "follow_up.html",
	domain.MessageOffer:          "offer.html",
}

// Render builds the subject and HTML body of kind.
func Render(kind domain.MessageKind, data Content) (subject, body string, err error) {
	name, ok := templateFiles[kind]
	if !ok {
		return "", "", fmt.Errorf("no email template for %s", kind)
	}
	if data.UnsubscribeURL == "" {
		return "", "", fmt.Errorf("email %s without unsubscribe link", kind)
	}
	tmpl, err := template.New("base.html").ParseFS(templateFS, "templates/base.html", "templates/"+name)
	if err != nil {
		return "", "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var subj, buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subj, "subject", data); err != nil {
		return "", "", fmt.Errorf("execute subject %s: %w", name, err)
	}
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return html.UnescapeString(strings.TrimSpace(subj.String())), buf.String(), nil
}
