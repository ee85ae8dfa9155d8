package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/repository"
)

type fakeBatches struct {
	batch *domain.BatchCall
}

func (f *fakeBatches) Get(_ context.Context, id uuid.UUID) (*domain.BatchCall, error) {
	if f.batch == nil || f.batch.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.batch, nil
}

type fakeLeads struct {
	leads []*domain.Lead
}

func (f *fakeLeads) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Lead, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.Lead
	for _, lead := range f.leads {
		if want[lead.ID] {
			out = append(out, lead)
		}
	}
	return out, nil
}

type fakeCalls struct {
	calls []domain.Call
}

func (f *fakeCalls) ListCallsByLeads(_ context.Context, leadIDs []uuid.UUID) ([]domain.Call, error) {
	want := make(map[uuid.UUID]bool, len(leadIDs))
	for _, id := range leadIDs {
		want[id] = true
	}
	var out []domain.Call
	for _, call := range f.calls {
		if want[call.LeadID] {
			out = append(out, call)
		}
	}
	return out, nil
}

func TestBuildKeysByPhoneAndSplitsByLeadType(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	batchID := uuid.New()

	batches := &fakeBatches{batch: &domain.BatchCall{
		ID:      batchID,
		LeadIDs: []uuid.UUID{buyerID, sellerID},
	}}
	leads := &fakeLeads{leads: []*domain.Lead{
		{ID: buyerID, Name: "Ana", Email: "ana@example.com", PhoneNumber: "+15550001", Type: domain.LeadTypeBuyer},
		{ID: sellerID, Name: "Bo", Email: "bo@example.com", PhoneNumber: "+15550002", Type: domain.LeadTypeSeller, Address: "12 Elm St"},
	}}
	calls := &fakeCalls{calls: []domain.Call{
		{
			LeadID: buyerID,
			Status: domain.CallStatusAnalyzed,
			Analysis: &domain.CallAnalysis{
				Summary:   "interested in a condo",
				Sentiment: "positive",
				Custom: map[string]any{
					domain.CustomKeyPreferredWindow: "weekday mornings",
				},
			},
		},
		{
			LeadID: sellerID,
			Status: domain.CallStatusAnalyzed,
			Analysis: &domain.CallAnalysis{
				Summary:   "wants a valuation",
				Sentiment: "neutral",
				Custom: map[string]any{
					domain.CustomKeyAppointment: "Tuesday 2pm on site",
				},
			},
		},
	}}

	rep, err := newBuilder(batches, leads, calls).Build(context.Background(), batchID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rep) != 2 {
		t.Fatalf("got %d entries, want 2", len(rep))
	}

	buyer, ok := rep["+15550001"]
	if !ok {
		t.Fatalf("missing buyer entry")
	}
	if buyer.CallDetails.Summary != "interested in a condo" {
		t.Errorf("buyer summary = %q", buyer.CallDetails.Summary)
	}
	if buyer.CallDetails.FollowUp != "weekday mornings" {
		t.Errorf("buyer follow-up = %q", buyer.CallDetails.FollowUp)
	}
	if buyer.LeadDetails.Address != "" || buyer.CallDetails.Appointment != "" {
		t.Errorf("buyer entry carries seller-only fields: %+v", buyer)
	}

	seller, ok := rep["+15550002"]
	if !ok {
		t.Fatalf("missing seller entry")
	}
	if seller.LeadDetails.Address != "12 Elm St" {
		t.Errorf("seller address = %q", seller.LeadDetails.Address)
	}
	if seller.CallDetails.Appointment != "Tuesday 2pm on site" {
		t.Errorf("seller appointment = %q", seller.CallDetails.Appointment)
	}
}

func TestBuildLatestCallWins(t *testing.T) {
	leadID := uuid.New()
	batchID := uuid.New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	batches := &fakeBatches{batch: &domain.BatchCall{ID: batchID, LeadIDs: []uuid.UUID{leadID}}}
	leads := &fakeLeads{leads: []*domain.Lead{
		{ID: leadID, Name: "Cy", PhoneNumber: "+15550003", Type: domain.LeadTypeBuyer},
	}}
	calls := &fakeCalls{calls: []domain.Call{
		{LeadID: leadID, CreatedAt: base, Analysis: &domain.CallAnalysis{Summary: "first attempt"}},
		{LeadID: leadID, CreatedAt: base.Add(time.Hour), Analysis: &domain.CallAnalysis{Summary: "second attempt"}},
	}}

	rep, err := newBuilder(batches, leads, calls).Build(context.Background(), batchID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	entry := rep["+15550003"]
	if entry.CallDetails.Summary != "second attempt" {
		t.Errorf("summary = %q, want most recent call", entry.CallDetails.Summary)
	}
}

func TestBuildLeadWithoutCall(t *testing.T) {
	leadID := uuid.New()
	batchID := uuid.New()

	batches := &fakeBatches{batch: &domain.BatchCall{ID: batchID, LeadIDs: []uuid.UUID{leadID}}}
	leads := &fakeLeads{leads: []*domain.Lead{
		{ID: leadID, Name: "Di", PhoneNumber: "+15550004", Type: domain.LeadTypeBuyer},
	}}
	calls := &fakeCalls{}

	rep, err := newBuilder(batches, leads, calls).Build(context.Background(), batchID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	entry, ok := rep["+15550004"]
	if !ok {
		t.Fatalf("lead without a call should still get a row")
	}
	if entry.CallDetails.Summary != "" || entry.CallDetails.Sentiment != "" {
		t.Errorf("expected empty call details, got %+v", entry.CallDetails)
	}
}

func TestBuildUnknownBatch(t *testing.T) {
	rep, err := newBuilder(&fakeBatches{}, &fakeLeads{}, &fakeCalls{}).Build(context.Background(), uuid.New())
	if err == nil {
		t.Fatalf("expected error, got report %+v", rep)
	}
}
