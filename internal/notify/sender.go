package notify

import (
	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/report"
)

// FollowUp is the lead-facing summary attached to a follow-up notification.
// Fields default to "N/A" at render time when the analysis left them blank.
type FollowUp struct {
	LeadName     string
	Intent       string
	FollowUpTime string
	LeadEmail    string
	LeadPhone    string
}

// Sender delivers call outcome notifications to lead owners. Delivery is
// best-effort: callers log failures and move on, they never retry the
// triggering event because of a notification error.
type Sender interface {
	SendCallReport(recipient, leadName string, analysis *domain.CallAnalysis) error
	SendFollowUp(recipient string, followUp FollowUp) error
	SendBatchReport(recipient string, batchReport report.Report) error
}
