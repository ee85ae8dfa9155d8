package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
)

// JobKind discriminates the deferred job payloads the dispatcher understands.
type JobKind string

const (
	// JobKindScheduledCall is the standard deferred call with lead and agent
	// context in its metadata.
	JobKindScheduledCall JobKind = "call-schedule"
	// JobKindContactLead is the legacy first-touch job that dials through the
	// fixed fallback agent.
	JobKindContactLead JobKind = "contact-lead"
)

// JobMetadata correlates a queued call with its lead, agent and, when the
// call came from a fan-out submission, its batch. It rides along to the call
// vendor and comes back untouched on completion events.
type JobMetadata struct {
	BatchCallID *uuid.UUID `json:"batch_call_id,omitempty"`
	LeadID      uuid.UUID  `json:"lead_id"`
	AgentID     uuid.UUID  `json:"agent_id"`
	SellerAgent bool       `json:"seller_agent"`
}

// ScheduledJob is the unit of deferred work placed on the job queue. It is
// consumed once by the dispatcher, though redelivery can occur if a consumer
// dies between claim and ack.
type ScheduledJob struct {
	ID          uuid.UUID   `json:"id"`
	Kind        JobKind     `json:"kind"`
	PhoneNumber string      `json:"phone_number"`
	FromNumber  string      `json:"from_number"`
	DisplayName string      `json:"display_name"`
	Metadata    JobMetadata `json:"metadata"`
	FireAt      time.Time   `json:"fire_at"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}

// EventTypeCallAnalyzed is the only completion event type that triggers
// processing; every other type is acknowledged and ignored.
const EventTypeCallAnalyzed = "call_analyzed"

// AnalysisPayload is the vendor analysis attached to a completion event.
type AnalysisPayload struct {
	Summary   string         `json:"call_summary"`
	Sentiment string         `json:"user_sentiment"`
	Custom    map[string]any `json:"custom_analysis_data"`
}

// ToDomain converts the wire analysis into the domain form.
func (p *AnalysisPayload) ToDomain() *domain.CallAnalysis {
	if p == nil {
		return nil
	}
	return &domain.CallAnalysis{
		Summary:   p.Summary,
		Sentiment: p.Sentiment,
		Custom:    p.Custom,
	}
}

// CompletionCall is the call snapshot inside a completion event.
type CompletionCall struct {
	VendorCallID string           `json:"call_id"`
	Analysis     *AnalysisPayload `json:"call_analysis,omitempty"`
	Transcript   string           `json:"transcript,omitempty"`
	RecordingURL string           `json:"recording_url,omitempty"`
	DurationMs   int64            `json:"duration_ms,omitempty"`
	Cost         float64          `json:"cost,omitempty"`
	FromNumber   string           `json:"from_number,omitempty"`
	ToNumber     string           `json:"to_number,omitempty"`
	DialStatus   string           `json:"to_number_status,omitempty"`
	Metadata     *JobMetadata     `json:"metadata,omitempty"`
}

// CompletionEvent is the asynchronous vendor notification that a previously
// placed call has finished and been analyzed.
type CompletionEvent struct {
	EventType  string         `json:"event_type"`
	Call       CompletionCall `json:"call"`
	ReceivedAt time.Time      `json:"received_at"`
}
