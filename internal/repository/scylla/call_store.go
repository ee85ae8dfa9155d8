package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/repository"
)

// CallStore persists call records in Scylla. The primary table is keyed by
// the vendor call id, the correlation key for completion events; a second
// table indexes calls per lead for history listings and batch reports.
type CallStore struct {
	session *gocql.Session
}

// NewCallStore creates a new call store.
func NewCallStore(session *gocql.Session) *CallStore {
	return &CallStore{session: session}
}

// CreateCall inserts a call record. The vendor call id is unique: a second
// insert for the same id fails with a conflict instead of clobbering the
// first row.
func (s *CallStore) CreateCall(ctx context.Context, record *domain.Call) error {
	custom, err := marshalCustom(record.Analysis)
	if err != nil {
		return err
	}

	applied, err := s.session.Query(`INSERT INTO calls_by_vendor (vendor_call_id, call_id, lead_id, status, summary, sentiment, custom, transcript, recording_url, duration_ms, cost, from_number, to_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		record.VendorCallID, record.ID.String(), record.LeadID.String(), string(record.Status),
		analysisSummary(record.Analysis), analysisSentiment(record.Analysis), custom,
		record.Transcript, record.RecordingURL, record.DurationMs, record.Cost,
		record.FromNumber, record.ToNumber, record.CreatedAt, record.UpdatedAt,
	).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return fmt.Errorf("call store: insert calls_by_vendor: %w", err)
	}
	if !applied {
		return repository.ErrConflict
	}

	if err := s.session.Query(`INSERT INTO calls_by_lead (lead_id, created_at, vendor_call_id, status, to_number)
		VALUES (?, ?, ?, ?, ?)`,
		record.LeadID.String(), record.CreatedAt, record.VendorCallID, string(record.Status), record.ToNumber,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: insert calls_by_lead: %w", err)
	}

	return nil
}

// GetCallByVendorID fetches a call record by its vendor call id.
func (s *CallStore) GetCallByVendorID(ctx context.Context, vendorCallID string) (*domain.Call, error) {
	var (
		callIDStr    string
		leadIDStr    string
		status       string
		summary      string
		sentiment    string
		custom       string
		transcript   string
		recordingURL string
		durationMs   int64
		cost         float64
		fromNumber   string
		toNumber     string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := s.session.Query(`SELECT call_id, lead_id, status, summary, sentiment, custom, transcript, recording_url, duration_ms, cost, from_number, to_number, created_at, updated_at
		FROM calls_by_vendor WHERE vendor_call_id = ?`, vendorCallID,
	).WithContext(ctx).Scan(&callIDStr, &leadIDStr, &status, &summary, &sentiment, &custom,
		&transcript, &recordingURL, &durationMs, &cost, &fromNumber, &toNumber, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call store: get by vendor id: %w", err)
	}

	callID, err := uuid.Parse(callIDStr)
	if err != nil {
		return nil, fmt.Errorf("call store: parse call_id: %w", err)
	}
	leadID, err := uuid.Parse(leadIDStr)
	if err != nil {
		return nil, fmt.Errorf("call store: parse lead_id: %w", err)
	}

	record := &domain.Call{
		ID:           callID,
		VendorCallID: vendorCallID,
		LeadID:       leadID,
		Status:       domain.CallStatus(status),
		Transcript:   transcript,
		RecordingURL: recordingURL,
		DurationMs:   durationMs,
		Cost:         cost,
		FromNumber:   fromNumber,
		ToNumber:     toNumber,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	record.Analysis = unmarshalAnalysis(summary, sentiment, custom)
	return record, nil
}

// UpdateCallResult overwrites the mutable fields of an existing call record.
func (s *CallStore) UpdateCallResult(ctx context.Context, record *domain.Call) error {
	custom, err := marshalCustom(record.Analysis)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.session.Query(`UPDATE calls_by_vendor SET status = ?, summary = ?, sentiment = ?, custom = ?, transcript = ?, recording_url = ?, duration_ms = ?, cost = ?, from_number = ?, to_number = ?, updated_at = ?
		WHERE vendor_call_id = ?`,
		string(record.Status), analysisSummary(record.Analysis), analysisSentiment(record.Analysis), custom,
		record.Transcript, record.RecordingURL, record.DurationMs, record.Cost,
		record.FromNumber, record.ToNumber, now, record.VendorCallID,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: update calls_by_vendor: %w", err)
	}

	if err := s.session.Query(`UPDATE calls_by_lead SET status = ? WHERE lead_id = ? AND created_at = ? AND vendor_call_id = ?`,
		string(record.Status), record.LeadID.String(), record.CreatedAt, record.VendorCallID,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: update calls_by_lead: %w", err)
	}

	return nil
}

// ListCallsByLead lists a lead's calls, newest first, with pagination.
func (s *CallStore) ListCallsByLead(ctx context.Context, leadID uuid.UUID, limit int, pagingState []byte) ([]domain.Call, []byte, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.session.Query(`SELECT created_at, vendor_call_id, status, to_number
		FROM calls_by_lead WHERE lead_id = ?`, leadID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	calls := make([]domain.Call, 0, limit)

	var (
		createdAt    time.Time
		vendorCallID string
		status       string
		toNumber     string
	)

	for iter.Scan(&createdAt, &vendorCallID, &status, &toNumber) {
		calls = append(calls, domain.Call{
			VendorCallID: vendorCallID,
			LeadID:       leadID,
			Status:       domain.CallStatus(status),
			ToNumber:     toNumber,
			CreatedAt:    createdAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("call store: iter close: %w", err)
	}

	nextState := iter.PageState()

	return calls, nextState, nil
}

// ListCallsByLeads loads the full call records for all of the given leads.
func (s *CallStore) ListCallsByLeads(ctx context.Context, leadIDs []uuid.UUID) ([]domain.Call, error) {
	var results []domain.Call
	for _, leadID := range leadIDs {
		iter := s.session.Query(`SELECT vendor_call_id FROM calls_by_lead WHERE lead_id = ?`,
			leadID.String()).WithContext(ctx).Iter()

		var vendorCallID string
		var vendorIDs []string
		for iter.Scan(&vendorCallID) {
			vendorIDs = append(vendorIDs, vendorCallID)
		}
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("call store: list by lead %s: %w", leadID, err)
		}

		for _, id := range vendorIDs {
			call, err := s.GetCallByVendorID(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return nil, err
			}
			results = append(results, *call)
		}
	}
	return results, nil
}

func marshalCustom(analysis *domain.CallAnalysis) (string, error) {
	if analysis == nil || analysis.Custom == nil {
		return "", nil
	}
	raw, err := json.Marshal(analysis.Custom)
	if err != nil {
		return "", fmt.Errorf("call store: marshal custom analysis: %w", err)
	}
	return string(raw), nil
}

func unmarshalAnalysis(summary, sentiment, custom string) *domain.CallAnalysis {
	if summary == "" && sentiment == "" && custom == "" {
		return nil
	}
	analysis := &domain.CallAnalysis{Summary: summary, Sentiment: sentiment}
	if custom != "" {
		_ = json.Unmarshal([]byte(custom), &analysis.Custom)
	}
	return analysis
}

func analysisSummary(analysis *domain.CallAnalysis) string {
	if analysis == nil {
		return ""
	}
	return analysis.Summary
}

func analysisSentiment(analysis *domain.CallAnalysis) string {
	if analysis == nil {
		return ""
	}
	return analysis.Sentiment
}
