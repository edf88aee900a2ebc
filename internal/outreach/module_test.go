package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/domainjobs"
	"github.com/renandiiias/build-automated-outreach/internal/events"
	"github.com/renandiiias/build-automated-outreach/internal/health"
	apphttp "github.com/renandiiias/build-automated-outreach/internal/http"
	"github.com/renandiiias/build-automated-outreach/internal/http/router"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/handler"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/repository/memory"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/service"
	"github.com/renandiiias/build-automated-outreach/internal/pricing"
	"github.com/renandiiias/build-automated-outreach/internal/review"
	"github.com/renandiiias/build-automated-outreach/internal/throttle"
	"github.com/renandiiias/build-automated-outreach/internal/transport"
	"github.com/renandiiias/build-automated-outreach/platform/config"
	"github.com/renandiiias/build-automated-outreach/platform/httpkit"
	"github.com/renandiiias/build-automated-outreach/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceSecret = "svc-secret"

type routerConfig struct{}

func (routerConfig) GetHTTPAddr() string              { return ":0" }
func (routerConfig) GetCORSAllowAll() bool            { return true }
func (routerConfig) GetCORSOrigins() []string         { return nil }
func (routerConfig) GetCORSAllowCreds() bool          { return false }
func (routerConfig) GetServiceJWTSecret() string      { return serviceSecret }
func (routerConfig) GetUnsubscribeSecret() string     { return "unsub-secret" }
func (routerConfig) GetUnsubscribeTTL() time.Duration { return time.Hour }
func (routerConfig) GetAppBaseURL() string            { return "https://outreach.example" }

type testAPI struct {
	engine *gin.Engine
	store  *memory.Store
	links  *transport.UnsubscribeLinks
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	policy := config.DefaultPolicy()
	store := memory.New()
	bus := events.NewRecording()
	monitor := health.New(store, bus, nil, policy.Health)
	links, err := transport.NewUnsubscribeLinks(routerConfig{})
	require.NoError(t, err)

	svc := service.New(service.Deps{
		Store:      store,
		Health:     monitor,
		Review:     review.New(store, bus, nil, nil),
		Pricing:    pricing.New(store, bus, nil, policy.Pricing),
		DomainJobs: domainjobs.New(store, bus, nil, policy.DomainJobs),
		Throttle:   throttle.New(policy.Throttle, monitor, bus, nil),
		Links:      links,
		Bus:        bus,
	})
	engine := router.New(&apphttp.App{
		Config:   routerConfig{},
		Logger:   logger.Nop(),
		Health:   store,
		EventBus: bus,
		Modules:  []apphttp.Module{NewModule(svc)},
	})
	return &testAPI{engine: engine, store: store, links: links}
}

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	tok, err := httpkit.IssueServiceToken(serviceSecret, "scraper", scopes, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestWebhooksRequireServiceToken(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/leads", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/status", token(t, handler.ScopeIngest), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIngestLeadOverHTTP(t *testing.T) {
	api := newAPI(t)
	tok := token(t, handler.ScopeIngest)
	body := map[string]string{
		"businessName": "Padaria Sol",
		"sourceUrl":    "https://maps.example/place/padaria-sol",
		"email":        "dono@padaria.example",
	}

	rec := api.do(t, http.MethodPost, "/api/v1/leads", tok, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res service.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Created)
	assert.Equal(t, domain.LeadNew, res.Lead.State)

	rec = api.do(t, http.MethodPost, "/api/v1/leads", tok, body)
	assert.Equal(t, http.StatusOK, rec.Code, "a known source url is not created twice")
}

func TestIngestLeadValidationDetails(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/leads", token(t, handler.ScopeIngest), map[string]string{
		"businessName": "Padaria Sol",
		"sourceUrl":    "not a url",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var res httpkit.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	details, ok := res.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "url", details["sourceurl"])
}

func TestEnumTagsRejectUnknownValues(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/deliveries", token(t, handler.ScopeIngest), map[string]string{
		"leadId":  "3b0f3f3e-8a55-4c43-9f55-2d0c7a0a6a11",
		"channel": "SCRAPE",
		"outcome": "SUCCESS",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaleWithoutConsentIsPolicyViolation(t *testing.T) {
	api := newAPI(t)
	lead, _, err := api.store.CreateLead(context.Background(), domain.Lead{
		BusinessName: "Cafe Lua",
		SourceURL:    "https://maps.example/cafe-lua",
		Email:        "cafe@lua.example",
		State:        domain.LeadNew,
	})
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/api/v1/sales", token(t, handler.ScopeReview), map[string]string{
		"leadId": lead.ID.String(),
		"plan":   "COMPLETO",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var res httpkit.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.ReasonNoConsent, res.Reason)
}

func TestPauseAllAndStatus(t *testing.T) {
	api := newAPI(t)
	tok := token(t, handler.ScopeOperator)

	rec := api.do(t, http.MethodPost, "/api/v1/channels/pause-all", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report service.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.SafeMode)

	rec = api.do(t, http.MethodPost, "/api/v1/channels/whatsapp/resume", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/v1/status", tok, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.SafeMode)

	rec = api.do(t, http.MethodPost, "/api/v1/channels/sms/resume", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnsubscribePage(t *testing.T) {
	api := newAPI(t)
	lead, _, err := api.store.CreateLead(context.Background(), domain.Lead{
		BusinessName: "Cafe Lua",
		SourceURL:    "https://maps.example/cafe-lua",
		Email:        "cafe@lua.example",
		ContactHash:  domain.ContactHash("cafe@lua.example", ""),
		State:        domain.LeadNew,
	})
	require.NoError(t, err)
	tok, err := api.links.Issue(lead.ID, domain.ChannelEmail)
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/unsubscribe?token="+tok, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "Unsubscribed")

	got, err := api.store.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadUnsubscribed, got.State)

	rec = api.do(t, http.MethodGet, "/unsubscribe?token=garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
