package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/lead-call-scheduler/internal/app"
	"github.com/acme/lead-call-scheduler/internal/config"
	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/queue"
	"github.com/acme/lead-call-scheduler/internal/repository"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	"github.com/acme/lead-call-scheduler/internal/telephony"
	"github.com/acme/lead-call-scheduler/pkg/logger"
)

type jobSource interface {
	Claim(ctx context.Context, limit int, visibility time.Duration) ([]queue.ScheduledJob, error)
	Ack(ctx context.Context, jobID uuid.UUID) error
	ReapExpired(ctx context.Context) (int, error)
}

type leadGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
}

type agentSource interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
	GetByVendorAgentID(ctx context.Context, vendorAgentID string) (*domain.Agent, error)
}

type callCreator interface {
	CreateCall(ctx context.Context, record *domain.Call) error
}

// Worker drains due jobs from the delayed queue and dials them. Jobs whose
// context can no longer be resolved are dropped with a log line; a vendor
// failure drops the job too, there is no automatic retry.
type Worker struct {
	jobs     jobSource
	leads    leadGetter
	agents   agentSource
	calls    callCreator
	provider telephony.Provider
	resolver *timespec.Resolver
	log      *logger.Logger

	fallbackAgentRef string
	callTimeout      time.Duration
	cfg              config.DispatcherConfig

	sem chan struct{}
}

// New creates a dispatch worker from the container.
func New(container *app.Container) *Worker {
	repos := container.Repositories()
	return newWorker(
		container.Queues().Jobs,
		repos.Leads,
		repos.Agents,
		repos.CallStore,
		container.Providers().Telephony,
		container.Resolver,
		container.Logger,
		container.Config.Scheduling.FallbackAgentID,
		container.Config.CallBridge.RequestTimeout,
		container.Config.Dispatcher,
	)
}

func newWorker(
	jobs jobSource,
	leads leadGetter,
	agents agentSource,
	calls callCreator,
	provider telephony.Provider,
	resolver *timespec.Resolver,
	log *logger.Logger,
	fallbackAgentRef string,
	callTimeout time.Duration,
	cfg config.DispatcherConfig,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = cfg.Concurrency
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Worker{
		jobs:             jobs,
		leads:            leads,
		agents:           agents,
		calls:            calls,
		provider:         provider,
		resolver:         resolver,
		log:              log,
		fallbackAgentRef: fallbackAgentRef,
		callTimeout:      callTimeout,
		cfg:              cfg,
		sem:              make(chan struct{}, cfg.Concurrency),
	}
}

// Run polls for due jobs until the context is cancelled. In-flight calls are
// waited for on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if n, err := w.jobs.ReapExpired(ctx); err != nil {
			w.log.Error("dispatch: reap expired", zap.Error(err))
		} else if n > 0 {
			w.log.Warn("dispatch: requeued expired claims", zap.Int("count", n))
		}

		claimed, err := w.jobs.Claim(ctx, w.cfg.ClaimBatchSize, w.cfg.VisibilityTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("dispatch: claim jobs", zap.Error(err))
			continue
		}

		for _, job := range claimed {
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			wg.Add(1)
			go func(job queue.ScheduledJob) {
				defer wg.Done()
				defer func() { <-w.sem }()
				if err := w.processJob(ctx, job); err != nil {
					w.log.Error("dispatch: process job",
						zap.String("job_id", job.ID.String()),
						zap.Error(err))
				}
			}(job)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.ScheduledJob) error {
	tracer := otel.Tracer("leadcall.dispatch")
	sctx, span := tracer.Start(ctx, "dispatch.call", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.kind", string(job.Kind)),
	))
	defer span.End()

	switch job.Kind {
	case queue.JobKindScheduledCall, queue.JobKindContactLead:
	default:
		w.log.Warn("dispatch: unknown job kind",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)))
		return w.jobs.Ack(sctx, job.ID)
	}

	lead, err := w.resolveLead(sctx, job)
	if err != nil {
		span.RecordError(err)
		w.log.Warn("dispatch: dropping job, lead unresolved",
			zap.String("job_id", job.ID.String()),
			zap.String("lead_id", job.Metadata.LeadID.String()),
			zap.Error(err))
		return w.jobs.Ack(sctx, job.ID)
	}

	agent, err := w.resolveAgent(sctx, job)
	if err != nil {
		span.RecordError(err)
		w.log.Warn("dispatch: dropping job, agent unresolved",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return w.jobs.Ack(sctx, job.ID)
	}

	from := job.FromNumber
	if from == "" {
		from = agent.PhoneNumber
	}
	metadata := job.Metadata
	metadata.AgentID = agent.ID

	callCtx, cancel := context.WithTimeout(sctx, w.callTimeout)
	result, callErr := w.provider.PlaceCall(callCtx, telephony.PlaceCallRequest{
		FromNumber:      from,
		ToNumber:        job.PhoneNumber,
		AgentOverrideID: agent.VendorAgentID,
		Variables:       w.callVariables(job, lead),
		Metadata:        metadata,
	})
	cancel()

	if callErr != nil {
		span.RecordError(callErr)
		w.log.Error("dispatch: place call",
			zap.String("job_id", job.ID.String()),
			zap.String("to", job.PhoneNumber),
			zap.Error(callErr))
		return w.jobs.Ack(sctx, job.ID)
	}

	now := time.Now().UTC()
	record := &domain.Call{
		ID:           uuid.New(),
		VendorCallID: result.VendorCallID,
		LeadID:       metadata.LeadID,
		Status:       domain.CallStatusRegistered,
		FromNumber:   from,
		ToNumber:     job.PhoneNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := w.calls.CreateCall(sctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// redelivered job that already dialed
			w.log.Warn("dispatch: call already recorded",
				zap.String("vendor_call_id", result.VendorCallID))
		} else {
			span.RecordError(err)
			w.log.Error("dispatch: persist call",
				zap.String("vendor_call_id", result.VendorCallID),
				zap.Error(err))
		}
	}

	if err := w.jobs.Ack(sctx, job.ID); err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

// resolveLead is strict for scheduled calls and lenient for the legacy
// first-touch kind, which may predate any lead record.
func (w *Worker) resolveLead(ctx context.Context, job queue.ScheduledJob) (*domain.Lead, error) {
	if job.Metadata.LeadID == uuid.Nil {
		if job.Kind == queue.JobKindContactLead {
			return nil, nil
		}
		return nil, errors.New("job carries no lead id")
	}
	lead, err := w.leads.Get(ctx, job.Metadata.LeadID)
	if err != nil {
		if job.Kind == queue.JobKindContactLead && errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return lead, nil
}

func (w *Worker) resolveAgent(ctx context.Context, job queue.ScheduledJob) (*domain.Agent, error) {
	if job.Kind == queue.JobKindScheduledCall && job.Metadata.AgentID != uuid.Nil {
		return w.agents.Get(ctx, job.Metadata.AgentID)
	}
	if w.fallbackAgentRef == "" {
		return nil, errors.New("no agent on job and no fallback configured")
	}
	if id, err := uuid.Parse(w.fallbackAgentRef); err == nil {
		return w.agents.Get(ctx, id)
	}
	return w.agents.GetByVendorAgentID(ctx, w.fallbackAgentRef)
}

// callVariables builds the template variables for a dial. The date context is
// computed here, at dispatch time, so a job scheduled days ahead still tells
// the agent what "today" is.
func (w *Worker) callVariables(job queue.ScheduledJob, lead *domain.Lead) map[string]any {
	name := job.DisplayName
	email := ""
	address := ""
	if lead != nil {
		if lead.Name != "" {
			name = lead.Name
		}
		email = lead.Email
		address = lead.Address
	}

	dateCtx := w.resolver.DateContext()
	vars := map[string]any{
		"name":         name,
		"email":        email,
		"phone_number": job.PhoneNumber,
		"today_day":    dateCtx.Day,
		"today_date":   dateCtx.Date,
		"today_iso":    dateCtx.ISO,
		"timezone":     dateCtx.TimeZone,
	}
	if job.Metadata.SellerAgent {
		vars["address"] = address
	}
	return vars
}
