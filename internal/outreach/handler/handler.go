package handler

import (
	"net/http"
	"strings"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
	"github.com/renandiiias/build-automated-outreach/internal/outreach/service"
	"github.com/renandiiias/build-automated-outreach/internal/throttle"
	"github.com/renandiiias/build-automated-outreach/platform/httpkit"
	"github.com/renandiiias/build-automated-outreach/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Scopes granted to collaborator tokens.
const (
	ScopeIngest   = "ingest"
	ScopeReview   = "review"
	ScopeOperator = "operator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc, validate: newValidator()}
}

func newValidator() *validator.Validator {
	v := validator.New()
	enums := map[string][]string{
		"send_channel":     {string(domain.ChannelEmail), string(domain.ChannelWhatsApp)},
		"delivery_outcome": {string(domain.OutcomeSuccess), string(domain.OutcomeBounce), string(domain.OutcomeComplaint), string(domain.OutcomeFailure), string(domain.OutcomeTimeout)},
		"scrape_outcome":   {string(domain.OutcomeSuccess), string(domain.OutcomeFailure), string(domain.OutcomeCaptchaDetected), string(domain.OutcomeRateLimited), string(domain.OutcomeTimeout)},
		"message_kind":     {string(domain.MessageConsentRequest), string(domain.MessageFollowUp), string(domain.MessageOffer)},
		"plan":             {string(domain.PlanSimples), string(domain.PlanCompleto)},
		"decision":         {string(domain.DecisionPositive), string(domain.DecisionOptOut), string(domain.DecisionOther)},
		"scrape_error":     {string(throttle.ErrorGeneric), string(throttle.ErrorTimeout), string(throttle.ErrorRateLimited), string(throttle.ErrorCaptcha), "429"},
	}
	for tag, allowed := range enums {
		// Registration only fails on an empty tag.
		_ = v.RegisterEnum(tag, allowed...)
	}
	return v
}

// RegisterRoutes mounts the collaborator webhooks on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	ingest := rg.Group("", httpkit.RequireScope(ScopeIngest))
	ingest.POST("/leads", h.IngestLead)
	ingest.POST("/replies", h.RecordReply)
	ingest.POST("/deliveries", h.RecordDelivery)
	ingest.POST("/email-feedback", h.RecordEmailFeedback)
	ingest.POST("/scrape/outcomes", h.RecordScrapeOutcome)
	ingest.POST("/scrape/sessions", h.StartScrape)
	ingest.POST("/scrape/sessions/:runId/wait", h.WaitScrape)
	ingest.POST("/scrape/sessions/:runId/results", h.RecordScrapeResult)
	ingest.POST("/scrape/sessions/:runId/errors", h.RecordScrapeError)
	ingest.POST("/scrape/sessions/:runId/finish", h.FinishScrape)

	reviewer := rg.Group("", httpkit.RequireScope(ScopeReview))
	reviewer.GET("/leads/:id", h.GetLead)
	reviewer.GET("/replies/pending", h.ListPendingReplies)
	reviewer.POST("/replies/:id/decision", h.SubmitDecision)
	reviewer.POST("/sales", h.RecordSale)
	reviewer.POST("/offers/:id/outcome", h.RecordOfferOutcome)
	reviewer.POST("/domain-jobs/:id/steps/:step", h.CompleteDomainStep)

	ops := rg.Group("", httpkit.RequireScope(ScopeOperator))
	ops.GET("/status", h.Status)
	ops.POST("/channels/:channel/resume", h.ResumeChannel)
	ops.POST("/channels/pause-all", h.PauseAll)
}

// bind decodes and validates a JSON body, answering 400 on failure.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return false
	}
	return true
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) IngestLead(c *gin.Context) {
	var req IngestLeadRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.IngestLead(c.Request.Context(), service.LeadInput{
		BusinessName: req.BusinessName,
		SourceURL:    req.SourceURL,
		Email:        req.Email,
		Phone:        req.Phone,
		Website:      req.Website,
		Address:      req.Address,
		Audience:     req.Audience,
		CountryCode:  req.CountryCode,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, res)
}

func (h *Handler) GetLead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	lead, err := h.svc.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) RecordReply(c *gin.Context) {
	var req RecordReplyRequest
	if !h.bind(c, &req) {
		return
	}
	reply, err := h.svc.RecordReply(c.Request.Context(), uuid.MustParse(req.LeadID), domain.Channel(req.Channel), req.Text)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, reply)
}

func (h *Handler) RecordDelivery(c *gin.Context) {
	var req RecordDeliveryRequest
	if !h.bind(c, &req) {
		return
	}
	err := h.svc.RecordDelivery(c.Request.Context(), service.Delivery{
		LeadID:            uuid.MustParse(req.LeadID),
		Channel:           domain.Channel(req.Channel),
		Outcome:           domain.Outcome(req.Outcome),
		MessageKind:       domain.MessageKind(req.MessageKind),
		ProviderMessageID: req.ProviderMessageID,
		Reason:            req.Reason,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) RecordSale(c *gin.Context) {
	var req RecordSaleRequest
	if !h.bind(c, &req) {
		return
	}
	sale, err := h.svc.RecordSale(c.Request.Context(), uuid.MustParse(req.LeadID), domain.Plan(req.Plan))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, sale)
}

func (h *Handler) RecordEmailFeedback(c *gin.Context) {
	var req EmailFeedbackRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := h.svc.RecordEmailFeedback(c.Request.Context(), req.Sent, req.Bounces, req.Complaints)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, st)
}

func (h *Handler) ListPendingReplies(c *gin.Context) {
	var q PendingRepliesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	replies, err := h.svc.ListPendingReplies(c.Request.Context(), q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": replies})
}

func (h *Handler) SubmitDecision(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if !h.bind(c, &req) {
		return
	}
	reviewer := req.Reviewer
	if reviewer == "" {
		reviewer = httpkit.GetIdentity(c).Subject()
	}
	reply, err := h.svc.SubmitDecision(c.Request.Context(), id, domain.Decision(req.Decision), reviewer)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, reply)
}

func (h *Handler) RecordOfferOutcome(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req OfferOutcomeRequest
	if !h.bind(c, &req) {
		return
	}
	level, err := h.svc.RecordOfferOutcome(c.Request.Context(), id, *req.Accepted)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, level)
}

func (h *Handler) CompleteDomainStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	job, err := h.svc.CompleteDomainStep(c.Request.Context(), id, c.Param("step"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, job)
}

func (h *Handler) Status(c *gin.Context) {
	report, err := h.svc.Status(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func (h *Handler) ResumeChannel(c *gin.Context) {
	channel, err := domain.ParseChannel(c.Param("channel"))
	if httpkit.HandleError(c, err) {
		return
	}
	st, err := h.svc.ResumeChannel(c.Request.Context(), channel)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, st)
}

func (h *Handler) PauseAll(c *gin.Context) {
	var req PauseAllRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	if err := h.svc.PauseAll(c.Request.Context(), strings.TrimSpace(req.Reason)); httpkit.HandleError(c, err) {
		return
	}
	h.Status(c)
}

func (h *Handler) RecordScrapeOutcome(c *gin.Context) {
	var req ScrapeOutcomeRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := h.svc.RecordScrapeOutcome(c.Request.Context(), domain.Outcome(req.Outcome))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, st)
}

func (h *Handler) StartScrape(c *gin.Context) {
	var req StartScrapeRequest
	if !h.bind(c, &req) {
		return
	}
	sum, err := h.svc.StartScrape(c.Request.Context(), req.RunID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, sum)
}

func (h *Handler) WaitScrape(c *gin.Context) {
	if err := h.svc.WaitScrape(c.Request.Context(), c.Param("runId")); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RecordScrapeResult(c *gin.Context) {
	sum, err := h.svc.RecordScrapeResult(c.Request.Context(), c.Param("runId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, sum)
}

func (h *Handler) RecordScrapeError(c *gin.Context) {
	var req ScrapeErrorRequest
	if !h.bind(c, &req) {
		return
	}
	kind, err := throttle.ParseErrorKind(req.Kind)
	if httpkit.HandleError(c, err) {
		return
	}
	sum, err := h.svc.RecordScrapeError(c.Request.Context(), c.Param("runId"), kind)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, sum)
}

func (h *Handler) FinishScrape(c *gin.Context) {
	sum, err := h.svc.FinishScrape(c.Request.Context(), c.Param("runId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, sum)
}
