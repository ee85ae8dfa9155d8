package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/repository"
	callsvc "github.com/acme/lead-call-scheduler/internal/service/call"
)

func (h *HandlerSet) listLeads(ctx *fiber.Ctx) error {
	userID, err := uuid.Parse(ctx.Query("user_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	limit := ctx.QueryInt("limit", 100)

	leads, err := h.calls.ListLeads(ctx.Context(), userID, limit)
	if err != nil {
		return translateError(err)
	}

	out := make([]leadResponse, len(leads))
	for i, lead := range leads {
		out[i] = toLeadResponse(lead)
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"leads": out})
}

type importLeadRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

type importLeadsRequest struct {
	UserID string              `json:"user_id"`
	Leads  []importLeadRequest `json:"leads"`
}

func (h *HandlerSet) importLeads(ctx *fiber.Ctx) error {
	var req importLeadsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	records := make([]repository.LeadImportRecord, len(req.Leads))
	for i, lead := range req.Leads {
		records[i] = repository.LeadImportRecord{
			Name:        lead.Name,
			Email:       lead.Email,
			PhoneNumber: lead.PhoneNumber,
		}
	}

	imported, err := h.calls.ImportLeads(ctx.Context(), userID, records)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"imported": imported,
		"skipped":  len(records) - imported,
	})
}

func (h *HandlerSet) deleteLead(ctx *fiber.Ctx) error {
	userID, err := uuid.Parse(ctx.Query("user_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	phone := ctx.Params("phone")

	if err := h.calls.DeleteLead(ctx.Context(), userID, phone); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) listLeadCalls(ctx *fiber.Ctx) error {
	leadID, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid lead id")
	}
	limit := ctx.QueryInt("limit", 50)

	pagingState, err := callsvc.DecodePagingState(ctx.Query("page_token"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid page token")
	}

	result, err := h.calls.ListCallsByLead(ctx.Context(), leadID, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	calls := make([]callResponse, len(result.Calls))
	for i := range result.Calls {
		calls[i] = toCallResponse(&result.Calls[i])
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"calls":           calls,
		"next_page_token": callsvc.EncodePagingState(result.PagingState),
	})
}

type leadResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phone_number"`
	Type        domain.LeadType `json:"type"`
	Address     string          `json:"address,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toLeadResponse(lead *domain.Lead) leadResponse {
	return leadResponse{
		ID:          lead.ID,
		Name:        lead.Name,
		Email:       lead.Email,
		PhoneNumber: lead.PhoneNumber,
		Type:        lead.Type,
		Address:     lead.Address,
		CreatedAt:   lead.CreatedAt,
		UpdatedAt:   lead.UpdatedAt,
	}
}
