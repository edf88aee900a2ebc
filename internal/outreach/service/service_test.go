package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/domainjobs"
	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/health"
	enrichment "github.com/renandiiias/build-automated-outreach/internal/leadenrichment/service"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/internal/pricing"
	"github.com/renandiiias/build-automated-outreach/internal/review"
	"github.com/renandiiias/build-automated-outreach/internal/throttle"
	"github.com/renandiiias/build-automated-outreach/internal/transport"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"
	"github.com/renandiiias/build-automated-outreach/platform/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authConfig struct{}

func (authConfig) GetServiceJWTSecret() string      { return "svc-secret" }
func (authConfig) GetUnsubscribeSecret() string     { return "unsub-secret" }
func (authConfig) GetUnsubscribeTTL() time.Duration { return time.Hour }
func (authConfig) GetAppBaseURL() string            { return "https://outreach.example" }

type harness struct {
	svc     *Service
	store   *memory.Store
	monitor *health.Monitor
	gate    *review.Gate
	ladder  *pricing.Ladder
	links   *transport.UnsubscribeLinks
	bus     *events.Recording
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	policy := config.DefaultPolicy()
	h := &harness{
		store: memory.New(),
		bus:   events.NewRecording(),
		now:   time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.monitor = health.New(h.store, h.bus, nil, policy.Health, health.WithClock(clock))
	h.gate = review.New(h.store, h.bus, nil, nil)
	h.gate.SetClock(clock)
	h.ladder = pricing.New(h.store, h.bus, nil, policy.Pricing)
	h.ladder.SetClock(clock)
	jobs := domainjobs.New(h.store, h.bus, nil, policy.DomainJobs)
	jobs.SetClock(clock)
	th := throttle.New(policy.Throttle, h.monitor, h.bus, nil,
		throttle.WithSleep(func(context.Context, time.Duration) error { return nil }))
	links, err := transport.NewUnsubscribeLinks(authConfig{})
	require.NoError(t, err)
	h.links = links

	h.svc = New(Deps{
		Store:      h.store,
		Health:     h.monitor,
		Review:     h.gate,
		Pricing:    h.ladder,
		DomainJobs: jobs,
		Throttle:   th,
		Links:      links,
		Bus:        h.bus,
	})
	h.svc.SetClock(clock)
	return h
}

func (h *harness) ingest(t *testing.T, in LeadInput) domain.Lead {
	t.Helper()
	if in.BusinessName == "" {
		in.BusinessName = "Padaria Sol"
	}
	if in.SourceURL == "" {
		in.SourceURL = "https://maps.example/place/" + uuid.NewString()
	}
	res, err := h.svc.IngestLead(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Lead
}

func (h *harness) reload(t *testing.T, id uuid.UUID) domain.Lead {
	t.Helper()
	l, err := h.store.GetLead(context.Background(), id)
	require.NoError(t, err)
	return l
}

// consent walks a lead through a reviewed positive reply.
func (h *harness) consent(t *testing.T, leadID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	reply, err := h.svc.RecordReply(ctx, leadID, domain.ChannelEmail, "Sim, tenho interesse!")
	require.NoError(t, err)
	_, err = h.svc.SubmitDecision(ctx, reply.ID, domain.DecisionPositive, "ana")
	require.NoError(t, err)
	require.Equal(t, domain.LeadConsented, h.reload(t, leadID).State)
}

func TestIngestLeadNormalizesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := LeadInput{
		BusinessName: "  Padaria <b>Sol</b> ",
		SourceURL:    "https://maps.example/place/padaria-sol",
		Email:        " Dono@Padaria.Example ",
		Phone:        "+55 11 98765-4321",
	}

	res, err := h.svc.IngestLead(ctx, in)
	require.NoError(t, err)
	require.True(t, res.Created)
	lead := res.Lead
	assert.Equal(t, "Padaria Sol", lead.BusinessName)
	assert.Equal(t, "dono@padaria.example", lead.Email)
	assert.Equal(t, "+5511987654321", lead.Phone)
	assert.Equal(t, "BR", lead.CountryCode)
	assert.Equal(t, domain.LeadNew, lead.State)
	assert.Equal(t, domain.ContactHash("dono@padaria.example", ""), lead.ContactHash)

	again, err := h.svc.IngestLead(ctx, in)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, lead.ID, again.Lead.ID)
	assert.Equal(t, 1, h.bus.Count(events.NameLeadEnriched), "a duplicate is not announced again")
}

func TestIngestLeadKeepsOptedOutContactUnsubscribed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.store.InsertOptOut(ctx, domain.OptOut{
		ContactHash: domain.ContactHash("gone@example.com", ""),
		Channel:     domain.ChannelAll,
		Source:      review.SourceUnsubscribe,
		CreatedAt:   h.now,
	})
	require.NoError(t, err)

	lead := h.ingest(t, LeadInput{Email: "gone@example.com"})
	assert.Equal(t, domain.LeadUnsubscribed, lead.State)
}

func TestIngestLeadRejectedWhileScrapePaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.monitor.Pause(ctx, domain.ChannelScrape, domain.ReasonCaptcha)
	require.NoError(t, err)

	_, err = h.svc.IngestLead(ctx, LeadInput{BusinessName: "Cafe", SourceURL: "https://maps.example/cafe"})
	assert.True(t, apperr.Is(err, apperr.KindPolicyViolation))
	assert.Equal(t, domain.ReasonScrapePaused, apperr.ReasonOf(err))
}

func TestIngestLeadValidatesRequiredFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.IngestLead(context.Background(), LeadInput{SourceURL: "https://maps.example/x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = h.svc.IngestLead(context.Background(), LeadInput{BusinessName: "Cafe"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestInferCountry(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		address string
		want    string
	}{
		{"brazilian mobile", "+55 11 98765-4321", "", "BR"},
		{"portuguese mobile", "+351 912 345 678", "", "PT"},
		{"address fallback", "", "Rua Augusta 10, Lisboa", "PT"},
		{"phone wins over address", "+55 11 98765-4321", "Lisboa", "BR"},
		{"us city", "", "200 Ocean Dr, Miami, FL", "US"},
		{"unknown", "", "Somewhere", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferCountry(tt.phone, tt.address))
		})
	}
}

func TestRecordDeliveryOutcomes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})

	require.NoError(t, h.svc.RecordDelivery(ctx, Delivery{LeadID: lead.ID, Channel: domain.ChannelEmail, Outcome: domain.OutcomeSuccess, ProviderMessageID: "m-1"}))
	assert.Equal(t, 1, h.bus.Count(events.NameContactDelivered))

	require.NoError(t, h.svc.RecordDelivery(ctx, Delivery{LeadID: lead.ID, Channel: domain.ChannelEmail, Outcome: domain.OutcomeBounce}))
	assert.Equal(t, 1, h.bus.Count(events.NameContactFailed))
	st, err := h.monitor.Status(ctx, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, st.WindowBounces)
	daily, err := h.store.GetDaily(ctx, h.now, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, daily.Bounces)
	assert.Equal(t, domain.LeadNew, h.reload(t, lead.ID).State)
}

func TestComplaintUnsubscribesContact(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})

	require.NoError(t, h.svc.RecordDelivery(ctx, Delivery{LeadID: lead.ID, Channel: domain.ChannelEmail, Outcome: domain.OutcomeComplaint}))
	assert.Equal(t, domain.LeadUnsubscribed, h.reload(t, lead.ID).State)
	assert.Equal(t, 1, h.bus.Count(events.NameOptOutRegistered))

	opted, err := h.store.HasOptOut(ctx, lead.ContactHash, domain.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, opted)
}

func TestRecordDeliveryValidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	err := h.svc.RecordDelivery(ctx, Delivery{LeadID: uuid.New(), Channel: domain.ChannelScrape, Outcome: domain.OutcomeFailure})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	err = h.svc.RecordDelivery(ctx, Delivery{LeadID: uuid.New(), Channel: domain.ChannelEmail, Outcome: domain.OutcomeFailure})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRecordSaleRequiresDecision(t *testing.T) {
	h := newHarness(t)
	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})

	_, err := h.svc.RecordSale(context.Background(), lead.ID, domain.PlanCompleto)
	assert.True(t, apperr.Is(err, apperr.KindPolicyViolation))
	assert.Equal(t, domain.ReasonNoConsent, apperr.ReasonOf(err))
	assert.Zero(t, h.bus.Count(events.NameSaleRecorded))
}

func TestRecordSaleWinsLeadRaisesPriceAndOpensDomainJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})
	h.consent(t, lead.ID)

	simples, err := h.ladder.QuoteOffer(ctx, lead.ID, domain.PlanSimples)
	require.NoError(t, err)
	completo, err := h.ladder.QuoteOffer(ctx, lead.ID, domain.PlanCompleto)
	require.NoError(t, err)

	sale, err := h.svc.RecordSale(ctx, lead.ID, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadWon, sale.Lead.State)
	assert.Equal(t, 200, sale.Price)
	assert.Equal(t, 300, sale.NextPrice.Price)
	require.NotNil(t, sale.Offer)
	assert.Equal(t, completo.ID, sale.Offer.ID)
	assert.Equal(t, domain.JobDomainSelected, sale.DomainJob.Status)
	assert.Equal(t, lead.ID, sale.DomainJob.LeadID)

	got, err := h.store.GetOffer(ctx, simples.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferRejected, got.Outcome)
	got, err = h.store.GetOffer(ctx, completo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferAccepted, got.Outcome)

	assert.Equal(t, 1, h.bus.Count(events.NameSaleRecorded))

	_, err = h.svc.RecordSale(ctx, lead.ID, domain.PlanCompleto)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "a lead is won once")
	level, err := h.ladder.Current(ctx, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, 1, level.Level)
}

func TestUnsubscribeLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})
	token, err := h.links.Issue(lead.ID, domain.ChannelEmail)
	require.NoError(t, err)

	got, err := h.svc.Unsubscribe(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadUnsubscribed, got.State)

	_, err = h.svc.Unsubscribe(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, h.bus.Count(events.NameOptOutRegistered))

	_, err = h.svc.Unsubscribe(ctx, token+"x")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPauseAllEnablesSafeModeInStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.svc.PauseAll(ctx, ""))

	report, err := h.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, report.SafeMode)
	assert.Len(t, report.Prices, 2)
	paused := 0
	for _, st := range report.Channels {
		if st.Paused {
			paused++
			assert.Equal(t, domain.ReasonManual, st.PauseReason)
		}
	}
	assert.Equal(t, 2, paused)

	_, err = h.svc.ResumeChannel(ctx, domain.ChannelEmail)
	require.NoError(t, err)
	report, err = h.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, report.SafeMode)
}

func TestScrapeSessionHaltsOnCaptcha(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.StartScrape(ctx, "scrape-1")
	require.NoError(t, err)
	require.NoError(t, h.svc.WaitScrape(ctx, "scrape-1"))
	sum, err := h.svc.RecordScrapeResult(ctx, "scrape-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Results)

	_, err = h.svc.RecordScrapeResult(ctx, "other-run")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	sum, err = h.svc.RecordScrapeError(ctx, "scrape-1", throttle.ErrorCaptcha)
	require.NoError(t, err)
	assert.Equal(t, throttle.StatePaused, sum.State)

	err = h.svc.WaitScrape(ctx, "scrape-1")
	assert.Equal(t, domain.ReasonThrottleHalted, apperr.ReasonOf(err))

	report, err := h.svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, report.Scrape)
	assert.Equal(t, 1, report.Scrape.Captcha)

	_, err = h.svc.FinishScrape(ctx, "scrape-1")
	require.NoError(t, err)
	_, err = h.svc.StartScrape(ctx, "scrape-2")
	assert.Equal(t, domain.ReasonScrapePaused, apperr.ReasonOf(err))
}

type fakeEnricher struct {
	contacts enrichment.Contacts
	err      error
	calls    int
}

func (f *fakeEnricher) WebsiteContacts(context.Context, string) (enrichment.Contacts, error) {
	f.calls++
	return f.contacts, f.err
}

func TestIngestLeadEnrichesFromWebsite(t *testing.T) {
	h := newHarness(t)
	enricher := &fakeEnricher{contacts: enrichment.Contacts{
		Emails: []string{"contato@padariasol.com.br", "vendas@padariasol.com.br"},
		Phones: []string{"+5511987654321"},
	}}
	h.svc.enricher = enricher

	lead := h.ingest(t, LeadInput{Website: "https://padariasol.com.br"})
	assert.Equal(t, "contato@padariasol.com.br", lead.Email)
	assert.Equal(t, "+5511987654321", lead.Phone)
	assert.Equal(t, "BR", lead.CountryCode)
	assert.Equal(t, domain.ContactHash(lead.Email, lead.Phone), lead.ContactHash)

	var enriched []events.LeadEnriched
	for _, e := range h.bus.Events() {
		if le, ok := e.(events.LeadEnriched); ok {
			enriched = append(enriched, le)
		}
	}
	require.Len(t, enriched, 1)
	assert.True(t, enriched[0].FromWebsite)

	h.ingest(t, LeadInput{Website: "https://other.example", Email: "a@b.example", Phone: "+5511912345678"})
	assert.Equal(t, 1, enricher.calls, "a lead with both contacts is not looked up")
}

func TestIngestLeadSurvivesEnrichmentFailure(t *testing.T) {
	h := newHarness(t)
	h.svc.enricher = &fakeEnricher{err: errors.New("fetch website: status 503")}

	lead := h.ingest(t, LeadInput{Website: "https://padariasol.com.br"})
	assert.Empty(t, lead.Email)
	assert.Empty(t, lead.ContactHash)
	assert.Equal(t, domain.LeadNew, lead.State)
}

func TestEnrichedContactHonorsOptOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	hash := domain.ContactHash("contato@padariasol.com.br", "")
	_, err := h.store.InsertOptOut(ctx, domain.OptOut{
		ContactHash: hash,
		Channel:     domain.ChannelAll,
		Source:      "reply",
		CreatedAt:   h.now,
	})
	require.NoError(t, err)
	h.svc.enricher = &fakeEnricher{contacts: enrichment.Contacts{Emails: []string{"contato@padariasol.com.br"}}}

	lead := h.ingest(t, LeadInput{Website: "https://padariasol.com.br"})
	assert.Equal(t, domain.LeadUnsubscribed, lead.State)
}

func TestRecordSaleRaisesPriceOneStepOverOpenWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.ladder.RecordSale(ctx, uuid.New(), domain.PlanCompleto)
	require.NoError(t, err)
	for range 8 {
		_, err := h.ladder.QuoteOffer(ctx, uuid.New(), domain.PlanCompleto)
		require.NoError(t, err)
	}

	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})
	h.consent(t, lead.ID)
	_, err = h.ladder.QuoteOffer(ctx, lead.ID, domain.PlanCompleto)
	require.NoError(t, err)
	before, err := h.ladder.Current(ctx, domain.PlanCompleto)
	require.NoError(t, err)
	require.Len(t, before.Window, 9)

	sale, err := h.svc.RecordSale(ctx, lead.ID, domain.PlanCompleto)
	require.NoError(t, err)
	assert.Equal(t, 300, sale.Price)
	assert.Equal(t, before.Price+100, sale.NextPrice.Price)
	assert.Empty(t, sale.NextPrice.Window)
}

// failingJobs fails CreateDomainJob until healed.
type failingJobs struct {
	*memory.Store
	fail bool
}

func (f *failingJobs) CreateDomainJob(ctx context.Context, job domain.DomainJob) (domain.DomainJob, bool, error) {
	if f.fail {
		return domain.DomainJob{}, false, errors.New("connection reset")
	}
	return f.Store.CreateDomainJob(ctx, job)
}

func TestRecordSaleRetryFinishesAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	jobs := &failingJobs{Store: h.store, fail: true}
	h.svc.jobs = domainjobs.New(jobs, h.bus, nil, config.DefaultPolicy().DomainJobs)

	lead := h.ingest(t, LeadInput{Email: "dono@padaria.example"})
	h.consent(t, lead.ID)

	_, err := h.svc.RecordSale(ctx, lead.ID, domain.PlanSimples)
	require.Error(t, err)
	assert.Equal(t, domain.LeadConsented, h.reload(t, lead.ID).State, "the lead is won only once everything else is done")

	jobs.fail = false
	sale, err := h.svc.RecordSale(ctx, lead.ID, domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadWon, sale.Lead.State)
	assert.Equal(t, lead.ID, sale.DomainJob.LeadID)

	level, err := h.ladder.Current(ctx, domain.PlanSimples)
	require.NoError(t, err)
	assert.Equal(t, 1, level.Level, "a retried sale raises the price once")
	assert.Equal(t, 1, h.bus.Count(events.NameSaleRecorded))
}
