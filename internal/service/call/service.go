package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/queue"
	"github.com/acme/lead-call-scheduler/internal/repository"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	"github.com/acme/lead-call-scheduler/internal/service/common"
	"github.com/acme/lead-call-scheduler/internal/telephony"
	apperrors "github.com/acme/lead-call-scheduler/pkg/errors"
)

// Service coordinates immediate calls, fan-out submissions and lead upkeep.
type Service struct {
	leads    repository.LeadRepository
	agents   repository.AgentRepository
	users    repository.UserRepository
	batches  repository.BatchCallRepository
	calls    repository.CallStore
	provider telephony.Provider
	resolver *timespec.Resolver
}

// NewService builds the call management service.
func NewService(
	leads repository.LeadRepository,
	agents repository.AgentRepository,
	users repository.UserRepository,
	batches repository.BatchCallRepository,
	calls repository.CallStore,
	provider telephony.Provider,
	resolver *timespec.Resolver,
) *Service {
	return &Service{
		leads:    leads,
		agents:   agents,
		users:    users,
		batches:  batches,
		calls:    calls,
		provider: provider,
		resolver: resolver,
	}
}

// InitiateCallInput encapsulates the arguments for placing one call now.
// AgentRef is either the agent's id or its vendor-side identifier.
type InitiateCallInput struct {
	UserID      uuid.UUID
	AgentRef    string
	LeadName    string
	LeadEmail   string
	PhoneNumber string
	Address     string
	FromNumber  string
}

// InitiateCall upserts the lead, dials it through the requested agent and
// records the placed call as registered.
func (s *Service) InitiateCall(ctx context.Context, input InitiateCallInput) (*domain.Call, error) {
	if input.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number is required", apperrors.ErrValidation)
	}
	if input.AgentRef == "" {
		return nil, fmt.Errorf("%w: agent is required", apperrors.ErrValidation)
	}

	agent, err := s.resolveAgent(ctx, input.AgentRef)
	if err != nil {
		return nil, err
	}
	if err := s.checkAgentAccess(ctx, input.UserID, agent.ID); err != nil {
		return nil, err
	}

	sellerAgent := agent.IsSellerAgent()
	if sellerAgent && input.Address == "" {
		return nil, fmt.Errorf("%w: address is required for seller leads", apperrors.ErrValidation)
	}

	lead, err := s.upsertLead(ctx, input.UserID, leadUpsert{
		Name:    input.LeadName,
		Email:   input.LeadEmail,
		Phone:   input.PhoneNumber,
		Address: input.Address,
		Type:    agent.LeadType(),
	})
	if err != nil {
		return nil, err
	}

	from := input.FromNumber
	if from == "" {
		from = agent.PhoneNumber
	}

	metadata := queue.JobMetadata{
		LeadID:      lead.ID,
		AgentID:     agent.ID,
		SellerAgent: sellerAgent,
	}

	result, err := s.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		FromNumber:      from,
		ToNumber:        lead.PhoneNumber,
		AgentOverrideID: agent.VendorAgentID,
		Variables:       s.callVariables(lead, sellerAgent),
		Metadata:        metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: place call: %v", apperrors.ErrCollaborator, err)
	}

	now := time.Now().UTC()
	call := &domain.Call{
		ID:           uuid.New(),
		VendorCallID: result.VendorCallID,
		LeadID:       lead.ID,
		Status:       domain.CallStatusRegistered,
		FromNumber:   from,
		ToNumber:     lead.PhoneNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.calls.CreateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("call service: persist call: %w", err)
	}

	return call, nil
}

// BatchLeadInput is one candidate lead of a fan-out submission.
type BatchLeadInput struct {
	Name        string
	Email       string
	PhoneNumber string
	Address     string
}

// CreateBatchInput encapsulates the arguments for a fan-out submission.
type CreateBatchInput struct {
	UserID     uuid.UUID
	AgentRef   string
	FromNumber string
	Leads      []BatchLeadInput
	TriggerAt  *time.Time
}

// CreateBatchResult reports the created batch and what was skipped.
type CreateBatchResult struct {
	Batch         *domain.BatchCall
	VendorBatchID string
	SkippedLeads  int
}

// CreateBatch validates and upserts the submitted leads, fixes the batch's
// expected call count to the valid ones, and hands the dial tasks to the
// vendor in a single submission. Invalid leads are skipped, not fatal.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (*CreateBatchResult, error) {
	if input.AgentRef == "" {
		return nil, fmt.Errorf("%w: agent is required", apperrors.ErrValidation)
	}
	if len(input.Leads) == 0 {
		return nil, fmt.Errorf("%w: at least one lead is required", apperrors.ErrValidation)
	}

	agent, err := s.resolveAgent(ctx, input.AgentRef)
	if err != nil {
		return nil, err
	}
	if err := s.checkAgentAccess(ctx, input.UserID, agent.ID); err != nil {
		return nil, err
	}

	sellerAgent := agent.IsSellerAgent()
	leadType := agent.LeadType()

	var (
		validLeads []*domain.Lead
		skipped    int
	)
	for _, candidate := range input.Leads {
		if candidate.PhoneNumber == "" {
			skipped++
			continue
		}
		if sellerAgent && candidate.Address == "" {
			skipped++
			continue
		}
		lead, err := s.upsertLead(ctx, input.UserID, leadUpsert{
			Name:    candidate.Name,
			Email:   candidate.Email,
			Phone:   candidate.PhoneNumber,
			Address: candidate.Address,
			Type:    leadType,
			ByPhone: true,
		})
		if err != nil {
			return nil, err
		}
		validLeads = append(validLeads, lead)
	}
	if len(validLeads) == 0 {
		return nil, fmt.Errorf("%w: no dialable leads in batch", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	batch := &domain.BatchCall{
		ID:            uuid.New(),
		UserID:        input.UserID,
		AgentID:       agent.ID,
		ExpectedCalls: len(validLeads),
		Status:        domain.BatchStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("call service: persist batch: %w", err)
	}

	leadIDs := make([]uuid.UUID, len(validLeads))
	for i, lead := range validLeads {
		leadIDs[i] = lead.ID
	}
	if err := s.batches.AttachLeads(ctx, batch.ID, leadIDs); err != nil {
		return nil, fmt.Errorf("call service: attach batch leads: %w", err)
	}
	batch.LeadIDs = leadIDs

	from := input.FromNumber
	if from == "" {
		from = agent.PhoneNumber
	}

	tasks := make([]telephony.BatchTask, len(validLeads))
	for i, lead := range validLeads {
		tasks[i] = telephony.BatchTask{
			ToNumber:        lead.PhoneNumber,
			AgentOverrideID: agent.VendorAgentID,
			Variables:       s.callVariables(lead, sellerAgent),
			Metadata: queue.JobMetadata{
				BatchCallID: &batch.ID,
				LeadID:      lead.ID,
				AgentID:     agent.ID,
				SellerAgent: sellerAgent,
			},
		}
	}

	vendorBatch, err := s.provider.CreateBatch(ctx, telephony.CreateBatchRequest{
		FromNumber: from,
		Tasks:      tasks,
		TriggerAt:  input.TriggerAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create batch: %v", apperrors.ErrCollaborator, err)
	}

	return &CreateBatchResult{
		Batch:         batch,
		VendorBatchID: vendorBatch.VendorBatchID,
		SkippedLeads:  skipped,
	}, nil
}

// GetBatch retrieves a batch with its lead ids.
func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchCall, error) {
	return s.batches.Get(ctx, id)
}

// GetCallByVendorID serves the local record when it is already analyzed and
// falls back to a vendor read-through otherwise, backfilling the local record
// when one exists.
func (s *Service) GetCallByVendorID(ctx context.Context, vendorCallID string) (*domain.Call, error) {
	local, err := s.calls.GetCallByVendorID(ctx, vendorCallID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if local != nil && local.Status == domain.CallStatusAnalyzed {
		return local, nil
	}

	details, vendorErr := s.provider.GetCallDetails(ctx, vendorCallID)
	if vendorErr != nil {
		if local != nil {
			return local, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%w: fetch call details: %v", apperrors.ErrCollaborator, vendorErr)
	}

	if local == nil {
		return &domain.Call{
			VendorCallID: vendorCallID,
			Status:       domain.CallStatus(details.Status),
			Analysis:     details.Analysis.ToDomain(),
			Transcript:   details.Transcript,
			RecordingURL: details.RecordingURL,
			DurationMs:   details.DurationMs,
			Cost:         details.Cost,
			FromNumber:   details.FromNumber,
			ToNumber:     details.ToNumber,
		}, nil
	}

	local.Analysis = details.Analysis.ToDomain()
	local.Transcript = details.Transcript
	local.RecordingURL = details.RecordingURL
	local.DurationMs = details.DurationMs
	local.Cost = details.Cost
	local.UpdatedAt = time.Now().UTC()
	if details.Analysis != nil {
		local.Status = domain.CallStatusAnalyzed
	}
	if err := s.calls.UpdateCallResult(ctx, local); err != nil {
		return nil, fmt.Errorf("call service: backfill call: %w", err)
	}
	return local, nil
}

// ListLeads lists a user's leads, newest first.
func (s *Service) ListLeads(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Lead, error) {
	return s.leads.ListByUser(ctx, userID, limit)
}

// ImportLeads bulk-upserts leads for a user and reports how many rows landed.
func (s *Service) ImportLeads(ctx context.Context, userID uuid.UUID, records []repository.LeadImportRecord) (int, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: no leads to import", apperrors.ErrValidation)
	}
	return s.leads.BulkUpsert(ctx, userID, records)
}

// DeleteLead removes a user's lead by phone number.
func (s *Service) DeleteLead(ctx context.Context, userID uuid.UUID, phone string) error {
	if phone == "" {
		return fmt.Errorf("%w: phone number is required", apperrors.ErrValidation)
	}
	return s.leads.DeleteByPhone(ctx, userID, phone)
}

// ListCallsByLeadResult carries a page of calls and its continuation token.
type ListCallsByLeadResult struct {
	Calls       []domain.Call
	PagingState []byte
}

// ListCallsByLead lists a lead's calls with pagination.
func (s *Service) ListCallsByLead(ctx context.Context, leadID uuid.UUID, limit int, pagingState []byte) (*ListCallsByLeadResult, error) {
	calls, next, err := s.calls.ListCallsByLead(ctx, leadID, limit, pagingState)
	if err != nil {
		return nil, err
	}
	return &ListCallsByLeadResult{Calls: calls, PagingState: next}, nil
}

type leadUpsert struct {
	Name    string
	Email   string
	Phone   string
	Address string
	Type    domain.LeadType
	// ByPhone selects phone as the identity key; the default is email when
	// one is present.
	ByPhone bool
}

func (s *Service) upsertLead(ctx context.Context, userID uuid.UUID, up leadUpsert) (*domain.Lead, error) {
	var (
		existing *domain.Lead
		err      error
	)
	if !up.ByPhone && up.Email != "" {
		existing, err = s.leads.FindByEmail(ctx, userID, up.Email)
	} else {
		existing, err = s.leads.FindByPhone(ctx, userID, up.Phone)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("call service: find lead: %w", err)
	}

	now := time.Now().UTC()
	if existing == nil {
		lead := &domain.Lead{
			ID:          uuid.New(),
			Name:        up.Name,
			Email:       up.Email,
			PhoneNumber: up.Phone,
			UserID:      userID,
			Type:        up.Type,
			Address:     up.Address,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.leads.Create(ctx, lead); err != nil {
			return nil, fmt.Errorf("call service: create lead: %w", err)
		}
		return lead, nil
	}

	if up.Name != "" {
		existing.Name = up.Name
	}
	if up.Email != "" {
		existing.Email = up.Email
	}
	if up.Phone != "" {
		existing.PhoneNumber = up.Phone
	}
	if up.Address != "" {
		existing.Address = up.Address
	}
	existing.Type = up.Type
	existing.UpdatedAt = now
	if err := s.leads.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("call service: refresh lead: %w", err)
	}
	return existing, nil
}

func (s *Service) resolveAgent(ctx context.Context, ref string) (*domain.Agent, error) {
	if id, err := uuid.Parse(ref); err == nil {
		agent, err := s.agents.Get(ctx, id)
		if err == nil {
			return agent, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("call service: lookup agent: %w", err)
		}
	}
	agent, err := s.agents.GetByVendorAgentID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("call service: lookup agent %q: %w", ref, err)
	}
	return agent, nil
}

func (s *Service) checkAgentAccess(ctx context.Context, userID, agentID uuid.UUID) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("call service: lookup user: %w", err)
	}
	if !user.HasAgent(agentID) {
		return fmt.Errorf("%w: agent not assigned to user", apperrors.ErrForbidden)
	}
	return nil
}

func (s *Service) callVariables(lead *domain.Lead, sellerAgent bool) map[string]any {
	dateCtx := s.resolver.DateContext()
	vars := map[string]any{
		"name":         lead.Name,
		"email":        lead.Email,
		"phone_number": lead.PhoneNumber,
		"today_day":    dateCtx.Day,
		"today_date":   dateCtx.Date,
		"today_iso":    dateCtx.ISO,
		"timezone":     dateCtx.TimeZone,
	}
	if sellerAgent {
		vars["address"] = lead.Address
	}
	return vars
}

// EncodePagingState converts the paging state to base64 for API responses.
func EncodePagingState(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return common.EncodeBase64(state)
}

// DecodePagingState decodes a base64 token to paging state bytes.
func DecodePagingState(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	return common.DecodeBase64(token)
}
