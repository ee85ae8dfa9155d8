package telephony

import (
	"context"
	"time"

	"github.com/acme/lead-call-scheduler/internal/queue"
)

// PlaceCallRequest carries everything the vendor needs to dial one number.
// Metadata is opaque to the vendor and comes back verbatim on completion
// events, which is how those events are correlated to lead and batch.
type PlaceCallRequest struct {
	FromNumber      string
	ToNumber        string
	AgentOverrideID string
	Variables       map[string]any
	Metadata        queue.JobMetadata
}

// PlaceCallResult identifies the placed call on the vendor side.
type PlaceCallResult struct {
	VendorCallID string
}

// CallDetails is the vendor's view of a call, used for read-through when no
// analyzed record exists locally.
type CallDetails struct {
	Status       string
	Analysis     *queue.AnalysisPayload
	Transcript   string
	RecordingURL string
	DurationMs   int64
	Cost         float64
	FromNumber   string
	ToNumber     string
}

// BatchTask is one dial instruction inside a vendor batch.
type BatchTask struct {
	ToNumber        string
	AgentOverrideID string
	Variables       map[string]any
	Metadata        queue.JobMetadata
}

// CreateBatchRequest submits many dial tasks in one vendor call, optionally
// deferred to a trigger timestamp.
type CreateBatchRequest struct {
	FromNumber string
	Tasks      []BatchTask
	TriggerAt  *time.Time
}

// CreateBatchResult identifies the submitted batch on the vendor side.
type CreateBatchResult struct {
	VendorBatchID string
}

// Provider abstracts the outbound calling vendor.
type Provider interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	GetCallDetails(ctx context.Context, vendorCallID string) (CallDetails, error)
	CreateBatch(ctx context.Context, req CreateBatchRequest) (CreateBatchResult, error)
}
