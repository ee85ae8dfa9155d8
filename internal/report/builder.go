package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/repository"
)

// CallDetails summarizes the call made to one lead of a batch.
type CallDetails struct {
	Summary     string            `json:"summary"`
	Status      domain.CallStatus `json:"status"`
	Sentiment   string            `json:"sentiment"`
	FollowUp    string            `json:"follow_up,omitempty"`
	Appointment string            `json:"appointment,omitempty"`
}

// LeadDetails identifies the lead a batch row concerns.
type LeadDetails struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`
	LeadType domain.LeadType `json:"lead_type"`
	Address  string          `json:"address,omitempty"`
}

// Entry is one row of a batch report.
type Entry struct {
	CallDetails CallDetails `json:"call_details"`
	LeadDetails LeadDetails `json:"lead_details"`
}

// Report maps each dialed phone number to its batch row.
type Report map[string]Entry

type batchGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.BatchCall, error)
}

type leadLister interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Lead, error)
}

type callLister interface {
	ListCallsByLeads(ctx context.Context, leadIDs []uuid.UUID) ([]domain.Call, error)
}

// Builder joins a batch's leads and calls into a report. It has no side
// effects and is deterministic given its inputs.
type Builder struct {
	batches batchGetter
	leads   leadLister
	calls   callLister
}

// NewBuilder constructs a report builder.
func NewBuilder(batches repository.BatchCallRepository, leads repository.LeadRepository, calls repository.CallStore) *Builder {
	return &Builder{batches: batches, leads: leads, calls: calls}
}

func newBuilder(batches batchGetter, leads leadLister, calls callLister) *Builder {
	return &Builder{batches: batches, leads: leads, calls: calls}
}

// Build produces the per-lead report for a batch. One call per lead is
// expected; when more exist the most recent wins.
func (b *Builder) Build(ctx context.Context, batchID uuid.UUID) (Report, error) {
	batch, err := b.batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("report: load batch: %w", err)
	}

	leads, err := b.leads.ListByIDs(ctx, batch.LeadIDs)
	if err != nil {
		return nil, fmt.Errorf("report: load leads: %w", err)
	}

	calls, err := b.calls.ListCallsByLeads(ctx, batch.LeadIDs)
	if err != nil {
		return nil, fmt.Errorf("report: load calls: %w", err)
	}

	latest := make(map[uuid.UUID]domain.Call, len(calls))
	for _, call := range calls {
		existing, ok := latest[call.LeadID]
		if !ok || call.CreatedAt.After(existing.CreatedAt) {
			latest[call.LeadID] = call
		}
	}

	result := make(Report, len(leads))
	for _, lead := range leads {
		entry := Entry{
			LeadDetails: LeadDetails{
				Name:     lead.Name,
				Email:    lead.Email,
				Phone:    lead.PhoneNumber,
				LeadType: lead.Type,
			},
		}

		if call, ok := latest[lead.ID]; ok {
			entry.CallDetails = CallDetails{
				Status: call.Status,
			}
			if call.Analysis != nil {
				entry.CallDetails.Summary = call.Analysis.Summary
				entry.CallDetails.Sentiment = call.Analysis.Sentiment
				if followUp, ok := call.Analysis.CustomString(domain.CustomKeyPreferredWindow); ok {
					entry.CallDetails.FollowUp = followUp
				}
			}
		}

		if lead.Type == domain.LeadTypeSeller {
			entry.LeadDetails.Address = lead.Address
			if call, ok := latest[lead.ID]; ok && call.Analysis != nil {
				if appt, ok := call.Analysis.CustomString(domain.CustomKeyAppointment); ok {
					entry.CallDetails.Appointment = appt
				}
			}
		}

		result[lead.PhoneNumber] = entry
	}

	return result, nil
}
