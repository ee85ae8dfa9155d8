package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/notify"
	"github.com/acme/lead-call-scheduler/internal/queue"
	"github.com/acme/lead-call-scheduler/internal/report"
	"github.com/acme/lead-call-scheduler/internal/repository"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	schedulesvc "github.com/acme/lead-call-scheduler/internal/service/schedule"
	"github.com/acme/lead-call-scheduler/pkg/logger"
)

type scheduler interface {
	ScheduleCall(ctx context.Context, input schedulesvc.ScheduleCallInput) (*schedulesvc.ScheduleCallResult, error)
}

type callStore interface {
	CreateCall(ctx context.Context, record *domain.Call) error
	GetCallByVendorID(ctx context.Context, vendorCallID string) (*domain.Call, error)
	UpdateCallResult(ctx context.Context, record *domain.Call) error
}

type batchRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.BatchCall, error)
	IncrementCallsDone(ctx context.Context, id uuid.UUID) (repository.BatchProgress, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}

type leadGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
}

type userGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type reportBuilder interface {
	Build(ctx context.Context, batchID uuid.UUID) (report.Report, error)
}

// Processor applies completion events. An event takes exactly one of three
// paths: re-entry into the job queue when the analysis asks for another call,
// batch progress accounting when the call belongs to a batch, and single-call
// finalization otherwise. A returned error means the event should be
// redelivered; dropped events return nil.
type Processor struct {
	calls    callStore
	batches  batchRepo
	leads    leadGetter
	users    userGetter
	sched    scheduler
	reports  reportBuilder
	notifier notify.Sender
	log      *logger.Logger
}

// NewProcessor builds a completion processor.
func NewProcessor(
	calls callStore,
	batches batchRepo,
	leads leadGetter,
	users userGetter,
	sched scheduler,
	reports reportBuilder,
	notifier notify.Sender,
	log *logger.Logger,
) *Processor {
	return &Processor{
		calls:    calls,
		batches:  batches,
		leads:    leads,
		users:    users,
		sched:    sched,
		reports:  reports,
		notifier: notifier,
		log:      log,
	}
}

// Handle processes one completion event.
func (p *Processor) Handle(ctx context.Context, event queue.CompletionEvent) error {
	if event.EventType != queue.EventTypeCallAnalyzed {
		return nil
	}
	if event.Call.VendorCallID == "" || event.Call.Analysis == nil {
		p.log.Warn("completion: dropping malformed event",
			zap.String("vendor_call_id", event.Call.VendorCallID))
		return nil
	}

	analysis := event.Call.Analysis.ToDomain()

	if analysis.NeedsScheduling() {
		return p.reschedule(ctx, event, analysis)
	}

	metadata := event.Call.Metadata
	if metadata != nil && metadata.BatchCallID != nil {
		return p.handleBatchCall(ctx, event, analysis, *metadata)
	}

	return p.finalizeCall(ctx, event, analysis, metadata)
}

// reschedule re-enters the call into the job queue with the analysis-supplied
// delay. The call record is deliberately left untouched: the conversation is
// not over, it is deferred.
func (p *Processor) reschedule(ctx context.Context, event queue.CompletionEvent, analysis *domain.CallAnalysis) error {
	delaySpec, ok := analysis.Custom[domain.CustomKeyScheduleDelay]
	if !ok {
		p.log.Warn("completion: reschedule requested without a delay",
			zap.String("vendor_call_id", event.Call.VendorCallID))
		return nil
	}

	displayName := ""
	metadata := queue.JobMetadata{}
	if event.Call.Metadata != nil {
		metadata = *event.Call.Metadata
		if lead, err := p.leads.Get(ctx, metadata.LeadID); err == nil {
			displayName = lead.Name
		}
	}

	result, err := p.sched.ScheduleCall(ctx, schedulesvc.ScheduleCallInput{
		PhoneNumber: event.Call.ToNumber,
		FromNumber:  event.Call.FromNumber,
		DisplayName: displayName,
		DelaySpec:   delaySpec,
		Kind:        queue.JobKindScheduledCall,
		Metadata:    metadata,
	})
	if err != nil {
		var parseErr *timespec.ParseError
		if errors.As(err, &parseErr) {
			p.log.Warn("completion: unusable reschedule delay",
				zap.String("vendor_call_id", event.Call.VendorCallID),
				zap.Any("delay_spec", delaySpec),
				zap.String("reason", parseErr.Reason))
			return nil
		}
		return fmt.Errorf("reschedule %s: %w", event.Call.VendorCallID, err)
	}

	p.log.Info("completion: call rescheduled",
		zap.String("vendor_call_id", event.Call.VendorCallID),
		zap.String("job_id", result.JobID.String()),
		zap.Time("fire_at", result.FireAt))
	return nil
}

// handleBatchCall records the call and advances its batch. Creating the call
// record first makes the increment idempotent under redelivery: a duplicate
// event hits the vendor-call-id conflict and never touches the counter.
func (p *Processor) handleBatchCall(ctx context.Context, event queue.CompletionEvent, analysis *domain.CallAnalysis, metadata queue.JobMetadata) error {
	batchID := *metadata.BatchCallID

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	record := &domain.Call{
		ID:           uuid.New(),
		VendorCallID: event.Call.VendorCallID,
		LeadID:       metadata.LeadID,
		Status:       domain.CallStatusAnalyzed,
		Analysis:     analysis,
		Transcript:   event.Call.Transcript,
		RecordingURL: event.Call.RecordingURL,
		DurationMs:   event.Call.DurationMs,
		Cost:         event.Call.Cost,
		FromNumber:   event.Call.FromNumber,
		ToNumber:     event.Call.ToNumber,
		CreatedAt:    receivedAt,
		UpdatedAt:    receivedAt,
	}
	if err := p.calls.CreateCall(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			p.log.Warn("completion: duplicate batch event",
				zap.String("vendor_call_id", event.Call.VendorCallID),
				zap.String("batch_id", batchID.String()))
			return nil
		}
		return fmt.Errorf("record batch call %s: %w", event.Call.VendorCallID, err)
	}

	progress, err := p.batches.IncrementCallsDone(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.log.Warn("completion: batch counter already full or batch missing",
				zap.String("batch_id", batchID.String()))
			return nil
		}
		return fmt.Errorf("advance batch %s: %w", batchID, err)
	}
	if progress.CallsDone < progress.ExpectedCalls {
		return nil
	}

	transitioned, err := p.batches.MarkCompleted(ctx, batchID)
	if err != nil {
		return fmt.Errorf("complete batch %s: %w", batchID, err)
	}
	if !transitioned {
		return nil
	}

	p.deliverBatchReport(ctx, batchID)
	return nil
}

// deliverBatchReport is best-effort. The batch is already completed; a report
// failure is logged rather than resurrecting the event.
func (p *Processor) deliverBatchReport(ctx context.Context, batchID uuid.UUID) {
	batch, err := p.batches.Get(ctx, batchID)
	if err != nil {
		p.log.Error("completion: load completed batch", zap.String("batch_id", batchID.String()), zap.Error(err))
		return
	}
	owner, err := p.users.Get(ctx, batch.UserID)
	if err != nil {
		p.log.Error("completion: resolve batch owner", zap.String("batch_id", batchID.String()), zap.Error(err))
		return
	}
	batchReport, err := p.reports.Build(ctx, batchID)
	if err != nil {
		p.log.Error("completion: build batch report", zap.String("batch_id", batchID.String()), zap.Error(err))
		return
	}
	if err := p.notifier.SendBatchReport(owner.Email, batchReport); err != nil {
		p.log.Error("completion: send batch report", zap.String("batch_id", batchID.String()), zap.Error(err))
	}
}

// finalizeCall overwrites the registered record with the analyzed result and
// notifies the lead owner.
func (p *Processor) finalizeCall(ctx context.Context, event queue.CompletionEvent, analysis *domain.CallAnalysis, metadata *queue.JobMetadata) error {
	record, err := p.calls.GetCallByVendorID(ctx, event.Call.VendorCallID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.log.Warn("completion: no call record for event",
				zap.String("vendor_call_id", event.Call.VendorCallID))
			return nil
		}
		return fmt.Errorf("load call %s: %w", event.Call.VendorCallID, err)
	}

	record.Status = domain.CallStatusAnalyzed
	record.Analysis = analysis
	record.Transcript = event.Call.Transcript
	record.RecordingURL = event.Call.RecordingURL
	record.DurationMs = event.Call.DurationMs
	record.Cost = event.Call.Cost
	record.UpdatedAt = time.Now().UTC()
	if err := p.calls.UpdateCallResult(ctx, record); err != nil {
		return fmt.Errorf("finalize call %s: %w", event.Call.VendorCallID, err)
	}

	leadID := record.LeadID
	if metadata != nil && metadata.LeadID != uuid.Nil {
		leadID = metadata.LeadID
	}
	if leadID == uuid.Nil {
		return nil
	}
	lead, err := p.leads.Get(ctx, leadID)
	if err != nil {
		p.log.Warn("completion: lead gone, skipping notifications",
			zap.String("lead_id", leadID.String()), zap.Error(err))
		return nil
	}
	owner, err := p.users.Get(ctx, lead.UserID)
	if err != nil {
		p.log.Warn("completion: lead owner gone, skipping notifications",
			zap.String("user_id", lead.UserID.String()), zap.Error(err))
		return nil
	}

	if err := p.notifier.SendCallReport(owner.Email, lead.Name, analysis); err != nil {
		p.log.Error("completion: send call report", zap.Error(err))
	}
	if err := p.notifier.SendFollowUp(owner.Email, followUpFrom(lead, analysis)); err != nil {
		p.log.Error("completion: send follow-up", zap.Error(err))
	}
	return nil
}

// followUpFrom prefers what the lead said on the call and falls back to the
// stored lead record field by field.
func followUpFrom(lead *domain.Lead, analysis *domain.CallAnalysis) notify.FollowUp {
	f := notify.FollowUp{
		LeadName:  lead.Name,
		LeadEmail: lead.Email,
		LeadPhone: lead.PhoneNumber,
	}
	if v, ok := analysis.CustomString(domain.CustomKeyName); ok {
		f.LeadName = v
	}
	if v, ok := analysis.CustomString(domain.CustomKeyIntent); ok {
		f.Intent = v
	}
	if v, ok := analysis.CustomString(domain.CustomKeyFollowUpTime); ok {
		f.FollowUpTime = v
	}
	if v, ok := analysis.CustomString(domain.CustomKeyEmail); ok {
		f.LeadEmail = v
	}
	if v, ok := analysis.CustomString(domain.CustomKeyPhoneNumber); ok {
		f.LeadPhone = v
	}
	return f
}
