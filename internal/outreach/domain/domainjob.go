package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the position of a DomainJob in its checklist.
type JobStatus string

const (
	JobDomainSelected JobStatus = "DOMAIN_SELECTED"
	JobInProgress     JobStatus = "IN_PROGRESS"
	JobDone           JobStatus = "DONE"
)

// Checklist step names, in order.
const (
	StepSelectDomain          = "select_domain"
	StepRegisterDomain        = "register_domain"
	StepConfigureDNS          = "configure_dns"
	StepPublishSite           = "publish_site"
	StepConfirmRenewalContact = "confirm_renewal_contact"
)

// ChecklistItem is one step of the post-sale checklist.
type ChecklistItem struct {
	Step   string     `json:"step"`
	Done   bool       `json:"done"`
	DoneAt *time.Time `json:"doneAt,omitempty"`
}

// DefaultChecklist returns the fixed post-sale steps.
func DefaultChecklist() []ChecklistItem {
	steps := []string{StepSelectDomain, StepRegisterDomain, StepConfigureDNS, StepPublishSite, StepConfirmRenewalContact}
	items := make([]ChecklistItem, len(steps))
	for i, s := range steps {
		items[i] = ChecklistItem{Step: s}
	}
	return items
}

// DomainJob tracks a sold site's domain until expiry.
type DomainJob struct {
	ID         uuid.UUID       `json:"id"`
	LeadID     uuid.UUID       `json:"leadId"`
	Plan       Plan            `json:"plan"`
	Status     JobStatus       `json:"status"`
	Checklist  []ChecklistItem `json:"checklist"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	AlertsSent []int           `json:"alertsSent"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// AlertSent reports whether the alert for daysBefore was recorded.
func (j DomainJob) AlertSent(daysBefore int) bool {
	for _, d := range j.AlertsSent {
		if d == daysBefore {
			return true
		}
	}
	return false
}

// StatusFromChecklist derives the job status from step completion.
func StatusFromChecklist(items []ChecklistItem) JobStatus {
	done := 0
	for _, it := range items {
		if it.Done {
			done++
		}
	}
	switch {
	case done == len(items):
		return JobDone
	case done == 0:
		return JobDomainSelected
	default:
		return JobInProgress
	}
}
