package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/lead-call-scheduler/internal/config"
	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/queue"
	"github.com/acme/lead-call-scheduler/internal/repository"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	"github.com/acme/lead-call-scheduler/internal/telephony"
	"github.com/acme/lead-call-scheduler/pkg/logger"
)

type fakeJobs struct {
	acked []uuid.UUID
}

func (f *fakeJobs) Claim(_ context.Context, _ int, _ time.Duration) ([]queue.ScheduledJob, error) {
	return nil, nil
}

func (f *fakeJobs) Ack(_ context.Context, jobID uuid.UUID) error {
	f.acked = append(f.acked, jobID)
	return nil
}

func (f *fakeJobs) ReapExpired(_ context.Context) (int, error) { return 0, nil }

type fakeLeads struct {
	leads map[uuid.UUID]*domain.Lead
}

func (f *fakeLeads) Get(_ context.Context, id uuid.UUID) (*domain.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return lead, nil
}

type fakeAgents struct {
	agents map[uuid.UUID]*domain.Agent
}

func (f *fakeAgents) Get(_ context.Context, id uuid.UUID) (*domain.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return agent, nil
}

func (f *fakeAgents) GetByVendorAgentID(_ context.Context, vendorAgentID string) (*domain.Agent, error) {
	for _, agent := range f.agents {
		if agent.VendorAgentID == vendorAgentID {
			return agent, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeCalls struct {
	created []*domain.Call
	err     error
}

func (f *fakeCalls) CreateCall(_ context.Context, record *domain.Call) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, record)
	return nil
}

type fakeProvider struct {
	placed []telephony.PlaceCallRequest
	err    error
}

func (f *fakeProvider) PlaceCall(_ context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	if f.err != nil {
		return telephony.PlaceCallResult{}, f.err
	}
	f.placed = append(f.placed, req)
	return telephony.PlaceCallResult{VendorCallID: "call_fake"}, nil
}

func (f *fakeProvider) GetCallDetails(_ context.Context, _ string) (telephony.CallDetails, error) {
	return telephony.CallDetails{}, errors.New("not used")
}

func (f *fakeProvider) CreateBatch(_ context.Context, _ telephony.CreateBatchRequest) (telephony.CreateBatchResult, error) {
	return telephony.CreateBatchResult{}, errors.New("not used")
}

type harness struct {
	worker   *Worker
	jobs     *fakeJobs
	leads    *fakeLeads
	agents   *fakeAgents
	calls    *fakeCalls
	provider *fakeProvider
	agent    *domain.Agent
	fallback *domain.Agent
	lead     *domain.Lead
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	resolver, err := timespec.NewResolver("UTC")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	agent := &domain.Agent{ID: uuid.New(), Name: "Seller Outreach", PhoneNumber: "+15552000", VendorAgentID: "agent_seller"}
	fallback := &domain.Agent{ID: uuid.New(), Name: "First Touch", PhoneNumber: "+15553000", VendorAgentID: "agent_fallback"}
	lead := &domain.Lead{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", PhoneNumber: "+15550001", Type: domain.LeadTypeSeller, Address: "1 Oak St"}

	h := &harness{
		jobs:     &fakeJobs{},
		leads:    &fakeLeads{leads: map[uuid.UUID]*domain.Lead{lead.ID: lead}},
		agents:   &fakeAgents{agents: map[uuid.UUID]*domain.Agent{agent.ID: agent, fallback.ID: fallback}},
		calls:    &fakeCalls{},
		provider: &fakeProvider{},
		agent:    agent,
		fallback: fallback,
		lead:     lead,
	}
	h.worker = newWorker(
		h.jobs, h.leads, h.agents, h.calls, h.provider,
		resolver,
		&logger.Logger{Logger: zap.NewNop()},
		fallback.VendorAgentID,
		time.Second,
		config.DispatcherConfig{Concurrency: 2},
	)
	return h
}

func (h *harness) job() queue.ScheduledJob {
	return queue.ScheduledJob{
		ID:          uuid.New(),
		Kind:        queue.JobKindScheduledCall,
		PhoneNumber: h.lead.PhoneNumber,
		Metadata: queue.JobMetadata{
			LeadID:      h.lead.ID,
			AgentID:     h.agent.ID,
			SellerAgent: true,
		},
	}
}

func TestProcessJobPlacesCallAndRecords(t *testing.T) {
	h := newHarness(t)
	job := h.job()

	if err := h.worker.processJob(context.Background(), job); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	if len(h.provider.placed) != 1 {
		t.Fatalf("placed %d calls, want 1", len(h.provider.placed))
	}
	req := h.provider.placed[0]
	if req.FromNumber != h.agent.PhoneNumber {
		t.Errorf("from = %q, want agent number", req.FromNumber)
	}
	if req.Variables["address"] != h.lead.Address {
		t.Errorf("seller dial missing address variable: %v", req.Variables)
	}
	if req.Variables["today_day"] == "" {
		t.Errorf("date context not injected")
	}

	if len(h.calls.created) != 1 {
		t.Fatalf("recorded %d calls, want 1", len(h.calls.created))
	}
	record := h.calls.created[0]
	if record.Status != domain.CallStatusRegistered {
		t.Errorf("status = %q, want registered", record.Status)
	}
	if record.VendorCallID != "call_fake" {
		t.Errorf("vendor call id = %q", record.VendorCallID)
	}

	if len(h.jobs.acked) != 1 || h.jobs.acked[0] != job.ID {
		t.Errorf("job not acked: %v", h.jobs.acked)
	}
}

func TestProcessJobMissingLeadDropped(t *testing.T) {
	h := newHarness(t)
	job := h.job()
	job.Metadata.LeadID = uuid.New()

	if err := h.worker.processJob(context.Background(), job); err != nil {
		t.Fatalf("processJob: %v", err)
	}
	if len(h.provider.placed) != 0 {
		t.Errorf("dial placed for unresolvable lead")
	}
	if len(h.jobs.acked) != 1 {
		t.Errorf("dropped job must still be acked")
	}
}

func TestProcessJobProviderFailureDropsJob(t *testing.T) {
	h := newHarness(t)
	h.provider.err = errors.New("line busy")
	job := h.job()

	if err := h.worker.processJob(context.Background(), job); err != nil {
		t.Fatalf("processJob: %v", err)
	}
	if len(h.calls.created) != 0 {
		t.Errorf("call recorded despite vendor failure")
	}
	if len(h.jobs.acked) != 1 {
		t.Errorf("failed dial must be acked, not retried")
	}
}

func TestProcessJobContactLeadUsesFallbackAgent(t *testing.T) {
	h := newHarness(t)
	job := queue.ScheduledJob{
		ID:          uuid.New(),
		Kind:        queue.JobKindContactLead,
		PhoneNumber: "+15550042",
		DisplayName: "Walk-in",
	}

	if err := h.worker.processJob(context.Background(), job); err != nil {
		t.Fatalf("processJob: %v", err)
	}
	if len(h.provider.placed) != 1 {
		t.Fatalf("placed %d calls, want 1", len(h.provider.placed))
	}
	req := h.provider.placed[0]
	if req.AgentOverrideID != h.fallback.VendorAgentID {
		t.Errorf("agent = %q, want fallback", req.AgentOverrideID)
	}
	if req.Variables["name"] != "Walk-in" {
		t.Errorf("name variable = %v, want display name", req.Variables["name"])
	}
}

func TestProcessJobUnknownKindAcked(t *testing.T) {
	h := newHarness(t)
	job := h.job()
	job.Kind = "mystery"

	if err := h.worker.processJob(context.Background(), job); err != nil {
		t.Fatalf("processJob: %v", err)
	}
	if len(h.provider.placed) != 0 {
		t.Errorf("dial placed for unknown kind")
	}
	if len(h.jobs.acked) != 1 {
		t.Errorf("unknown kind must be acked")
	}
}
