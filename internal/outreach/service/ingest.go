package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
	"github.com/renandiiias/build-automated-outreach/platform/phone"
	"github.com/renandiiias/build-automated-outreach/platform/sanitize"
)

// LeadInput is a business discovered by the scraper.
type LeadInput struct {
	BusinessName string
	SourceURL    string
	Email        string
	Phone        string
	Website      string
	Address      string
	Audience     string
	CountryCode  string
}

// IngestResult reports whether the lead was new.
type IngestResult struct {
	Lead    domain.Lead `json:"lead"`
	Created bool        `json:"created"`
}

// IngestLead stores a scraped lead. Leads are deduplicated on their source
// URL and a contact that opted out before is stored UNSUBSCRIBED. A new lead
// with a website but no email or phone gets them from the website when an
// enricher is configured.
func (s *Service) IngestLead(ctx context.Context, in LeadInput) (IngestResult, error) {
	lead, err := s.normalizeLead(in)
	if err != nil {
		return IngestResult{}, err
	}

	paused, err := s.health.IsPaused(ctx, domain.ChannelScrape)
	if err != nil {
		return IngestResult{}, err
	}
	if paused {
		s.log.WithContext(ctx).PolicyViolation("outreach.ingest_lead", domain.ReasonScrapePaused, "source_url", lead.SourceURL)
		return IngestResult{}, apperr.PolicyViolation(domain.ReasonScrapePaused, "scrape channel is paused")
	}

	existing, err := s.store.GetLeadBySourceURL(ctx, lead.SourceURL)
	if err == nil {
		return IngestResult{Lead: existing}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return IngestResult{}, fmt.Errorf("lookup lead: %w", err)
	}

	fromWebsite := s.enrich(ctx, &lead)

	if lead.ContactHash != "" {
		optedOut, err := s.store.HasOptOut(ctx, lead.ContactHash, domain.ChannelAll)
		if err != nil {
			return IngestResult{}, fmt.Errorf("check opt-out: %w", err)
		}
		if optedOut {
			lead.State = domain.LeadUnsubscribed
		}
	}

	stored, created, err := s.store.CreateLead(ctx, lead)
	if err != nil {
		return IngestResult{}, fmt.Errorf("create lead: %w", err)
	}
	if !created {
		return IngestResult{Lead: stored}, nil
	}

	s.log.WithContext(ctx).Info("lead ingested",
		"lead_id", stored.ID,
		"state", stored.State,
		"country", stored.CountryCode,
		"email", logger.RedactEmail(stored.Email),
		"phone", logger.RedactPhone(stored.Phone))

	if stored.Email != "" || stored.Phone != "" || stored.Website != "" {
		s.bus.Publish(ctx, events.LeadEnriched{
			BaseEvent:   events.NewIncidentEvent(events.NameLeadEnriched, stored.ID.String()),
			LeadID:      stored.ID,
			HasEmail:    stored.Email != "",
			HasPhone:    stored.Phone != "",
			HasWebsite:  stored.Website != "",
			FromWebsite: fromWebsite,
		})
	}
	return IngestResult{Lead: stored, Created: true}, nil
}

// enrich fills a missing email and phone from the lead's website. Lookup
// failures are logged and never block intake.
func (s *Service) enrich(ctx context.Context, lead *domain.Lead) bool {
	if s.enricher == nil || lead.Website == "" || (lead.Email != "" && lead.Phone != "") {
		return false
	}
	contacts, err := s.enricher.WebsiteContacts(ctx, lead.Website)
	if err != nil {
		s.log.WithContext(ctx).Warn("lead enrichment failed", "source_url", lead.SourceURL, "error", err)
		return false
	}
	found := false
	if lead.Email == "" && len(contacts.Emails) > 0 {
		lead.Email = contacts.Emails[0]
		found = true
	}
	if lead.Phone == "" && len(contacts.Phones) > 0 {
		lead.Phone = contacts.Phones[0]
		found = true
	}
	if !found {
		return false
	}
	if lead.CountryCode == "" {
		lead.CountryCode = InferCountry(lead.Phone, lead.Address)
	}
	lead.ContactHash = domain.ContactHash(lead.Email, lead.Phone)
	return true
}

func (s *Service) normalizeLead(in LeadInput) (domain.Lead, error) {
	lead := domain.Lead{
		BusinessName: sanitize.Text(in.BusinessName),
		SourceURL:    strings.TrimSpace(in.SourceURL),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        phone.NormalizeE164(in.Phone),
		Website:      strings.TrimSpace(in.Website),
		Address:      sanitize.Text(in.Address),
		Audience:     strings.TrimSpace(in.Audience),
		State:        domain.LeadNew,
	}
	if lead.BusinessName == "" {
		return domain.Lead{}, apperr.Validation("business name is required").WithReason(domain.ReasonInvalidInput)
	}
	if lead.SourceURL == "" {
		return domain.Lead{}, apperr.Validation("source url is required").WithReason(domain.ReasonInvalidInput)
	}
	lead.CountryCode = strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if lead.CountryCode == "" {
		lead.CountryCode = InferCountry(lead.Phone, lead.Address)
	}
	lead.ContactHash = domain.ContactHash(lead.Email, lead.Phone)
	return lead, nil
}

var addressCountries = []struct {
	code   string
	tokens []string
}{
	{"BR", []string{"brasil", "brazil", "sao paulo", "são paulo", "rio de janeiro", "belo horizonte", "fortaleza", "recife"}},
	{"PT", []string{"portugal", "lisboa", "lisbon", "porto"}},
	{"GB", []string{"united kingdom", "london", "manchester", "england"}},
	{"US", []string{"united states", "usa", "miami", "new york", "florida"}},
}

// InferCountry derives an ISO region from the phone number, falling back to
// well-known place names in the address.
func InferCountry(phoneNumber, address string) string {
	if code := phone.CountryCode(phoneNumber); code != "" {
		return code
	}
	addr := " " + strings.ToLower(address)
	for _, c := range addressCountries {
		for _, token := range c.tokens {
			if strings.Contains(addr, " "+token) {
				return c.code
			}
		}
	}
	return ""
}
