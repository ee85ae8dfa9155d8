package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/queue"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	apperrors "github.com/acme/lead-call-scheduler/pkg/errors"
)

// Queue is the deferred-job sink the service enqueues into.
type Queue interface {
	Enqueue(ctx context.Context, job queue.ScheduledJob, delay time.Duration) (uuid.UUID, error)
}

// Service turns delay specifications into queued call jobs.
type Service struct {
	resolver    *timespec.Resolver
	jobs        Queue
	defaultFrom string
}

// NewService builds the scheduling service.
func NewService(resolver *timespec.Resolver, jobs Queue, defaultFrom string) *Service {
	return &Service{resolver: resolver, jobs: jobs, defaultFrom: defaultFrom}
}

// ScheduleCallInput encapsulates the arguments for deferring a call.
type ScheduleCallInput struct {
	PhoneNumber string
	FromNumber  string
	DisplayName string
	DelaySpec   any
	Kind        queue.JobKind
	Metadata    queue.JobMetadata
}

// ScheduleCallResult reports where and when the deferred call landed.
type ScheduleCallResult struct {
	JobID  uuid.UUID
	FireAt time.Time
	Delay  time.Duration
}

// ScheduleCall resolves the delay specification and enqueues the call job.
// A specification that cannot be resolved is rejected with a *timespec.ParseError;
// nothing is ever enqueued with a defaulted fire time.
func (s *Service) ScheduleCall(ctx context.Context, input ScheduleCallInput) (*ScheduleCallResult, error) {
	if input.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number is required", apperrors.ErrValidation)
	}

	res, err := s.resolver.Resolve(input.DelaySpec)
	if err != nil {
		return nil, err
	}

	kind := input.Kind
	if kind == "" {
		kind = queue.JobKindScheduledCall
	}
	from := input.FromNumber
	if from == "" {
		from = s.defaultFrom
	}

	job := queue.ScheduledJob{
		Kind:        kind,
		PhoneNumber: input.PhoneNumber,
		FromNumber:  from,
		DisplayName: input.DisplayName,
		Metadata:    input.Metadata,
		FireAt:      res.FireAt,
	}

	jobID, err := s.jobs.Enqueue(ctx, job, res.Delay)
	if err != nil {
		return nil, fmt.Errorf("schedule service: enqueue job: %w", err)
	}

	return &ScheduleCallResult{JobID: jobID, FireAt: res.FireAt, Delay: res.Delay}, nil
}
