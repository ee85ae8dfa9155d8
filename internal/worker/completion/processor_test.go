package completion

import (
	"context"
	"sync"
	"testing"

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

type memCallStore struct {
	mu         sync.Mutex
	byVendorID map[string]*domain.Call
}

func newMemCallStore() *memCallStore {
	return &memCallStore{byVendorID: map[string]*domain.Call{}}
}

func (s *memCallStore) CreateCall(_ context.Context, record *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byVendorID[record.VendorCallID]; ok {
		return repository.ErrConflict
	}
	copied := *record
	s.byVendorID[record.VendorCallID] = &copied
	return nil
}

func (s *memCallStore) GetCallByVendorID(_ context.Context, vendorCallID string) (*domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byVendorID[vendorCallID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *memCallStore) UpdateCallResult(_ context.Context, record *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.byVendorID[record.VendorCallID] = &copied
	return nil
}

type memBatchRepo struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*domain.BatchCall
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: map[uuid.UUID]*domain.BatchCall{}}
}

func (r *memBatchRepo) Get(_ context.Context, id uuid.UUID) (*domain.BatchCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *batch
	return &copied, nil
}

func (r *memBatchRepo) IncrementCallsDone(_ context.Context, id uuid.UUID) (repository.BatchProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[id]
	if !ok || batch.CallsDone >= batch.ExpectedCalls {
		return repository.BatchProgress{}, repository.ErrNotFound
	}
	batch.CallsDone++
	return repository.BatchProgress{CallsDone: batch.CallsDone, ExpectedCalls: batch.ExpectedCalls}, nil
}

func (r *memBatchRepo) MarkCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[id]
	if !ok || batch.Status != domain.BatchStatusPending {
		return false, nil
	}
	batch.Status = domain.BatchStatusCompleted
	return true, nil
}

type memLeads struct {
	mu    sync.Mutex
	leads map[uuid.UUID]*domain.Lead
}

func (m *memLeads) Get(_ context.Context, id uuid.UUID) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return lead, nil
}

type memUsers struct {
	users map[uuid.UUID]*domain.User
}

func (m *memUsers) Get(_ context.Context, id uuid.UUID) (*domain.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

type capturingScheduler struct {
	mu     sync.Mutex
	inputs []schedulesvc.ScheduleCallInput
	err    error
}

func (s *capturingScheduler) ScheduleCall(_ context.Context, input schedulesvc.ScheduleCallInput) (*schedulesvc.ScheduleCallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, input)
	return &schedulesvc.ScheduleCallResult{JobID: uuid.New()}, nil
}

type stubReports struct {
	mu     sync.Mutex
	builds int
}

func (s *stubReports) Build(_ context.Context, _ uuid.UUID) (report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds++
	return report.Report{}, nil
}

type capturingSender struct {
	mu           sync.Mutex
	callReports  []string
	followUps    []notify.FollowUp
	batchReports []string
}

func (s *capturingSender) SendCallReport(recipient, _ string, _ *domain.CallAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callReports = append(s.callReports, recipient)
	return nil
}

func (s *capturingSender) SendFollowUp(_ string, f notify.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps = append(s.followUps, f)
	return nil
}

func (s *capturingSender) SendBatchReport(recipient string, _ report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchReports = append(s.batchReports, recipient)
	return nil
}

type env struct {
	processor *Processor
	calls     *memCallStore
	batches   *memBatchRepo
	leads     *memLeads
	users     *memUsers
	sched     *capturingScheduler
	reports   *stubReports
	sender    *capturingSender
	lead      *domain.Lead
	owner     *domain.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	owner := &domain.User{ID: uuid.New(), Email: "owner@example.com"}
	lead := &domain.Lead{
		ID: uuid.New(), UserID: owner.ID,
		Name: "Ana", Email: "ana@example.com", PhoneNumber: "+15550001",
	}
	e := &env{
		calls:   newMemCallStore(),
		batches: newMemBatchRepo(),
		leads:   &memLeads{leads: map[uuid.UUID]*domain.Lead{lead.ID: lead}},
		users:   &memUsers{users: map[uuid.UUID]*domain.User{owner.ID: owner}},
		sched:   &capturingScheduler{},
		reports: &stubReports{},
		sender:  &capturingSender{},
		lead:    lead,
		owner:   owner,
	}
	e.processor = NewProcessor(
		e.calls, e.batches, e.leads, e.users, e.sched, e.reports, e.sender,
		&logger.Logger{Logger: zap.NewNop()},
	)
	return e
}

func analyzedEvent(vendorCallID string, metadata *queue.JobMetadata, custom map[string]any) queue.CompletionEvent {
	return queue.CompletionEvent{
		EventType: queue.EventTypeCallAnalyzed,
		Call: queue.CompletionCall{
			VendorCallID: vendorCallID,
			Analysis: &queue.AnalysisPayload{
				Summary:   "talked",
				Sentiment: "positive",
				Custom:    custom,
			},
			FromNumber: "+15559000",
			ToNumber:   "+15550001",
			Metadata:   metadata,
		},
	}
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	e := newEnv(t)
	err := e.processor.Handle(context.Background(), queue.CompletionEvent{EventType: "call_started"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(e.calls.byVendorID) != 0 || len(e.sender.callReports) != 0 {
		t.Errorf("non-analyzed event caused side effects")
	}
}

func TestHandleDropsMalformedEvent(t *testing.T) {
	e := newEnv(t)
	event := queue.CompletionEvent{
		EventType: queue.EventTypeCallAnalyzed,
		Call:      queue.CompletionCall{VendorCallID: "call_1"},
	}
	if err := e.processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(e.calls.byVendorID) != 0 {
		t.Errorf("malformed event persisted a call")
	}
}

func TestHandleReschedulesWithoutTouchingRecord(t *testing.T) {
	e := newEnv(t)
	existing := &domain.Call{VendorCallID: "call_1", LeadID: e.lead.ID, Status: domain.CallStatusRegistered}
	if err := e.calls.CreateCall(context.Background(), existing); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	metadata := &queue.JobMetadata{LeadID: e.lead.ID, AgentID: uuid.New()}
	event := analyzedEvent("call_1", metadata, map[string]any{
		domain.CustomKeyNeedsScheduling: "True",
		domain.CustomKeyScheduleDelay:   float64(45),
	})
	if err := e.processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(e.sched.inputs) != 1 {
		t.Fatalf("scheduled %d jobs, want 1", len(e.sched.inputs))
	}
	input := e.sched.inputs[0]
	if input.PhoneNumber != "+15550001" || input.FromNumber != "+15559000" {
		t.Errorf("reschedule numbers = %q/%q, want originals", input.PhoneNumber, input.FromNumber)
	}
	if input.DisplayName != "Ana" {
		t.Errorf("display name = %q, want lead name", input.DisplayName)
	}
	if input.Metadata.LeadID != metadata.LeadID || input.Metadata.AgentID != metadata.AgentID {
		t.Errorf("metadata not carried through: %+v", input.Metadata)
	}

	record, _ := e.calls.GetCallByVendorID(context.Background(), "call_1")
	if record.Status != domain.CallStatusRegistered || record.Analysis != nil {
		t.Errorf("reschedule mutated the call record: %+v", record)
	}
	if len(e.sender.callReports) != 0 {
		t.Errorf("reschedule must not notify")
	}
}

func TestHandleRescheduleBadDelayDropped(t *testing.T) {
	e := newEnv(t)
	event := analyzedEvent("call_1", &queue.JobMetadata{LeadID: e.lead.ID}, map[string]any{
		domain.CustomKeyNeedsScheduling: true,
		domain.CustomKeyScheduleDelay:   "purple elephants dancing",
	})
	e.sched.err = &timespec.ParseError{Reason: timespec.ReasonUnparseable, Spec: "purple elephants dancing"}

	if err := e.processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("unusable delay must be dropped, got %v", err)
	}
}

func TestHandleFinalizesSingleCall(t *testing.T) {
	e := newEnv(t)
	seed := &domain.Call{VendorCallID: "call_1", LeadID: e.lead.ID, Status: domain.CallStatusRegistered}
	if err := e.calls.CreateCall(context.Background(), seed); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	event := analyzedEvent("call_1", &queue.JobMetadata{LeadID: e.lead.ID}, map[string]any{
		domain.CustomKeyIntent:       "wants a viewing",
		domain.CustomKeyFollowUpTime: "tomorrow morning",
	})
	event.Call.Transcript = "hello"
	if err := e.processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	record, _ := e.calls.GetCallByVendorID(context.Background(), "call_1")
	if record.Status != domain.CallStatusAnalyzed {
		t.Errorf("status = %q, want analyzed", record.Status)
	}
	if record.Transcript != "hello" || record.Analysis == nil {
		t.Errorf("result not written: %+v", record)
	}

	if len(e.sender.callReports) != 1 || e.sender.callReports[0] != e.owner.Email {
		t.Errorf("call report recipients = %v", e.sender.callReports)
	}
	if len(e.sender.followUps) != 1 {
		t.Fatalf("follow-ups = %d, want 1", len(e.sender.followUps))
	}
	f := e.sender.followUps[0]
	if f.Intent != "wants a viewing" || f.FollowUpTime != "tomorrow morning" {
		t.Errorf("follow-up custom fields lost: %+v", f)
	}
	if f.LeadEmail != e.lead.Email {
		t.Errorf("follow-up email = %q, want lead default", f.LeadEmail)
	}
}

func TestHandleUnknownCallDropped(t *testing.T) {
	e := newEnv(t)
	event := analyzedEvent("never_placed", nil, nil)
	if err := e.processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("unknown call must be dropped, got %v", err)
	}
	if len(e.sender.callReports) != 0 {
		t.Errorf("notified for a call that was never placed")
	}
}

func TestHandleBatchCompletesExactlyOnce(t *testing.T) {
	e := newEnv(t)
	batch := &domain.BatchCall{
		ID: uuid.New(), UserID: e.owner.ID,
		ExpectedCalls: 5, Status: domain.BatchStatusPending,
	}
	e.batches.batches[batch.ID] = batch

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			metadata := &queue.JobMetadata{BatchCallID: &batch.ID, LeadID: uuid.New()}
			event := analyzedEvent("call_batch_"+string(rune('a'+i)), metadata, nil)
			if err := e.processor.Handle(context.Background(), event); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := e.batches.Get(context.Background(), batch.ID)
	if got.CallsDone != 5 {
		t.Errorf("calls done = %d, want 5", got.CallsDone)
	}
	if got.Status != domain.BatchStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if e.reports.builds != 1 {
		t.Errorf("report built %d times, want exactly 1", e.reports.builds)
	}
	if len(e.sender.batchReports) != 1 || e.sender.batchReports[0] != e.owner.Email {
		t.Errorf("batch report recipients = %v, want owner once", e.sender.batchReports)
	}
}

func TestHandleDuplicateBatchEventDoesNotDoubleCount(t *testing.T) {
	e := newEnv(t)
	batch := &domain.BatchCall{
		ID: uuid.New(), UserID: e.owner.ID,
		ExpectedCalls: 2, Status: domain.BatchStatusPending,
	}
	e.batches.batches[batch.ID] = batch

	metadata := &queue.JobMetadata{BatchCallID: &batch.ID, LeadID: uuid.New()}
	event := analyzedEvent("call_dup", metadata, nil)

	for i := 0; i < 3; i++ {
		if err := e.processor.Handle(context.Background(), event); err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
	}

	got, _ := e.batches.Get(context.Background(), batch.ID)
	if got.CallsDone != 1 {
		t.Errorf("calls done = %d, want 1 despite redelivery", got.CallsDone)
	}
	if got.Status != domain.BatchStatusPending {
		t.Errorf("batch completed early")
	}
}
