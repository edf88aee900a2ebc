package handler

// IngestLeadRequest is posted by the scraper for every discovered business.
type IngestLeadRequest struct {
	BusinessName string `json:"businessName" validate:"required,min=1,max=300"`
	SourceURL    string `json:"sourceUrl" validate:"required,url,max=2000"`
	Email        string `json:"email" validate:"omitempty,email,max=320"`
	Phone        string `json:"phone" validate:"omitempty,max=40"`
	Website      string `json:"website" validate:"omitempty,url,max=2000"`
	Address      string `json:"address" validate:"omitempty,max=500"`
	Audience     string `json:"audience" validate:"omitempty,max=100"`
	CountryCode  string `json:"countryCode" validate:"omitempty,len=2,alpha"`
}

// RecordReplyRequest carries an inbound message.
type RecordReplyRequest struct {
	LeadID  string `json:"leadId" validate:"required,uuid"`
	Channel string `json:"channel" validate:"required,send_channel"`
	Text    string `json:"text" validate:"required,max=20000"`
}

// RecordDeliveryRequest carries a transport delivery report.
type RecordDeliveryRequest struct {
	LeadID            string `json:"leadId" validate:"required,uuid"`
	Channel           string `json:"channel" validate:"required,send_channel"`
	Outcome           string `json:"outcome" validate:"required,delivery_outcome"`
	MessageKind       string `json:"messageKind" validate:"omitempty,message_kind"`
	ProviderMessageID string `json:"providerMessageId" validate:"omitempty,max=200"`
	Reason            string `json:"reason" validate:"omitempty,max=200"`
}

// RecordSaleRequest marks a lead as WON.
type RecordSaleRequest struct {
	LeadID string `json:"leadId" validate:"required,uuid"`
	Plan   string `json:"plan" validate:"required,plan"`
}

// EmailFeedbackRequest is a provider feedback batch.
type EmailFeedbackRequest struct {
	Sent       int `json:"sent" validate:"min=0"`
	Bounces    int `json:"bounces" validate:"min=0"`
	Complaints int `json:"complaints" validate:"min=0"`
}

// DecisionRequest is a reviewer verdict.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,decision"`
	Reviewer string `json:"reviewer" validate:"omitempty,max=100"`
}

// OfferOutcomeRequest resolves a quoted offer.
type OfferOutcomeRequest struct {
	Accepted *bool `json:"accepted" validate:"required"`
}

// PauseAllRequest pauses every send channel.
type PauseAllRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=100"`
}

// ScrapeOutcomeRequest is a scraper-side health signal.
type ScrapeOutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,scrape_outcome"`
}

// StartScrapeRequest opens a paced scrape session.
type StartScrapeRequest struct {
	RunID string `json:"runId" validate:"required,max=100"`
}

// ScrapeErrorRequest reports a failed scrape request.
type ScrapeErrorRequest struct {
	Kind string `json:"kind" validate:"required,scrape_error"`
}

// PendingRepliesQuery pages the review queue.
type PendingRepliesQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}
