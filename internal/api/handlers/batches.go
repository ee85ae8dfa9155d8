package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	callsvc "github.com/acme/lead-call-scheduler/internal/service/call"
)

type batchLeadRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

type createBatchRequest struct {
	UserID     string             `json:"user_id"`
	AgentID    string             `json:"agent_id"`
	FromNumber string             `json:"from_number"`
	Leads      []batchLeadRequest `json:"leads"`
	TriggerAt  *time.Time         `json:"trigger_at"`
}

type createBatchResponse struct {
	Batch         batchResponse `json:"batch"`
	VendorBatchID string        `json:"vendor_batch_id"`
	SkippedLeads  int           `json:"skipped_leads"`
}

func (h *HandlerSet) createBatch(ctx *fiber.Ctx) error {
	var req createBatchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	leads := make([]callsvc.BatchLeadInput, len(req.Leads))
	for i, lead := range req.Leads {
		leads[i] = callsvc.BatchLeadInput{
			Name:        lead.Name,
			Email:       lead.Email,
			PhoneNumber: lead.PhoneNumber,
			Address:     lead.Address,
		}
	}

	result, err := h.calls.CreateBatch(ctx.Context(), callsvc.CreateBatchInput{
		UserID:     userID,
		AgentRef:   req.AgentID,
		FromNumber: req.FromNumber,
		Leads:      leads,
		TriggerAt:  req.TriggerAt,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusAccepted).JSON(createBatchResponse{
		Batch:         toBatchResponse(result.Batch),
		VendorBatchID: result.VendorBatchID,
		SkippedLeads:  result.SkippedLeads,
	})
}

func (h *HandlerSet) getBatch(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid batch id")
	}

	batch, err := h.calls.GetBatch(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toBatchResponse(batch))
}

type batchResponse struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	AgentID       uuid.UUID          `json:"agent_id"`
	LeadIDs       []uuid.UUID        `json:"lead_ids"`
	ExpectedCalls int                `json:"expected_calls"`
	CallsDone     int                `json:"calls_done"`
	Status        domain.BatchStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

func toBatchResponse(batch *domain.BatchCall) batchResponse {
	return batchResponse{
		ID:            batch.ID,
		UserID:        batch.UserID,
		AgentID:       batch.AgentID,
		LeadIDs:       batch.LeadIDs,
		ExpectedCalls: batch.ExpectedCalls,
		CallsDone:     batch.CallsDone,
		Status:        batch.Status,
		CreatedAt:     batch.CreatedAt,
		CompletedAt:   batch.CompletedAt,
	}
}
