package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/queue"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	apperrors "github.com/acme/lead-call-scheduler/pkg/errors"
)

type fakeQueue struct {
	jobs  []queue.ScheduledJob
	delay time.Duration
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.ScheduledJob, delay time.Duration) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	f.jobs = append(f.jobs, job)
	f.delay = delay
	return job.ID, nil
}

func newTestService(t *testing.T, q Queue) *Service {
	t.Helper()
	resolver, err := timespec.NewResolver("UTC")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return NewService(resolver, q, "+15559999")
}

func TestScheduleCallMinutes(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(t, q)

	res, err := svc.ScheduleCall(context.Background(), ScheduleCallInput{
		PhoneNumber: "+15550001",
		DelaySpec:   float64(30),
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("ScheduleCall: %v", err)
	}
	if res.Delay != 30*time.Minute {
		t.Errorf("delay = %v, want 30m", res.Delay)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Kind != queue.JobKindScheduledCall {
		t.Errorf("kind = %q", job.Kind)
	}
	if job.FromNumber != "+15559999" {
		t.Errorf("from number = %q, want configured default", job.FromNumber)
	}
	if !job.FireAt.Equal(res.FireAt) {
		t.Errorf("job fires at %v, result says %v", job.FireAt, res.FireAt)
	}
}

func TestScheduleCallBadSpecNotEnqueued(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(t, q)

	_, err := svc.ScheduleCall(context.Background(), ScheduleCallInput{
		PhoneNumber: "+15550001",
		DelaySpec:   "purple elephants dancing",
	})
	var parseErr *timespec.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if len(q.jobs) != 0 {
		t.Errorf("rejected spec must not enqueue, got %d jobs", len(q.jobs))
	}
}

func TestScheduleCallRequiresPhone(t *testing.T) {
	svc := newTestService(t, &fakeQueue{})
	_, err := svc.ScheduleCall(context.Background(), ScheduleCallInput{DelaySpec: 5})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestScheduleCallExplicitFromPreserved(t *testing.T) {
	q := &fakeQueue{}
	svc := newTestService(t, q)

	_, err := svc.ScheduleCall(context.Background(), ScheduleCallInput{
		PhoneNumber: "+15550001",
		FromNumber:  "+15551234",
		DelaySpec:   "in 2 hours",
	})
	if err != nil {
		t.Fatalf("ScheduleCall: %v", err)
	}
	if q.jobs[0].FromNumber != "+15551234" {
		t.Errorf("from number = %q, want caller-supplied number", q.jobs[0].FromNumber)
	}
}
