package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/queue"
	callsvc "github.com/acme/lead-call-scheduler/internal/service/call"
	schedulesvc "github.com/acme/lead-call-scheduler/internal/service/schedule"
)

type initiateCallRequest struct {
	UserID      string `json:"user_id"`
	AgentID     string `json:"agent_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	FromNumber  string `json:"from_number"`
}

func (h *HandlerSet) initiateCall(ctx *fiber.Ctx) error {
	var req initiateCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	record, err := h.calls.InitiateCall(ctx.Context(), callsvc.InitiateCallInput{
		UserID:      userID,
		AgentRef:    req.AgentID,
		LeadName:    req.Name,
		LeadEmail:   req.Email,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		FromNumber:  req.FromNumber,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusAccepted).JSON(toCallResponse(record))
}

func (h *HandlerSet) getCall(ctx *fiber.Ctx) error {
	vendorCallID := ctx.Params("vendor_call_id")
	if vendorCallID == "" {
		return fiber.NewError(http.StatusBadRequest, "missing call id")
	}

	record, err := h.calls.GetCallByVendorID(ctx.Context(), vendorCallID)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCallResponse(record))
}

type scheduleCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	FromNumber  string `json:"from_number"`
	Name        string `json:"name"`
	// Delay is either a positive number of minutes or a natural-language
	// expression such as "tomorrow at 9am".
	Delay   any    `json:"delay"`
	LeadID  string `json:"lead_id"`
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind"`
}

type scheduleCallResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	FireAt  time.Time `json:"fire_at"`
	DelayMs int64     `json:"delay_ms"`
}

func (h *HandlerSet) scheduleCall(ctx *fiber.Ctx) error {
	var req scheduleCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	metadata := queue.JobMetadata{}
	if req.LeadID != "" {
		id, err := uuid.Parse(req.LeadID)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid lead id")
		}
		metadata.LeadID = id
	}
	if req.AgentID != "" {
		id, err := uuid.Parse(req.AgentID)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid agent id")
		}
		metadata.AgentID = id
	}

	result, err := h.schedule.ScheduleCall(ctx.Context(), schedulesvc.ScheduleCallInput{
		PhoneNumber: req.PhoneNumber,
		FromNumber:  req.FromNumber,
		DisplayName: req.Name,
		DelaySpec:   req.Delay,
		Kind:        queue.JobKind(req.Kind),
		Metadata:    metadata,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusAccepted).JSON(scheduleCallResponse{
		JobID:   result.JobID,
		FireAt:  result.FireAt,
		DelayMs: result.Delay.Milliseconds(),
	})
}

type callResponse struct {
	ID           uuid.UUID            `json:"id"`
	VendorCallID string               `json:"vendor_call_id"`
	LeadID       uuid.UUID            `json:"lead_id"`
	Status       domain.CallStatus    `json:"status"`
	Analysis     *callAnalysisPayload `json:"analysis,omitempty"`
	Transcript   string               `json:"transcript,omitempty"`
	RecordingURL string               `json:"recording_url,omitempty"`
	DurationMs   int64                `json:"duration_ms,omitempty"`
	Cost         float64              `json:"cost,omitempty"`
	FromNumber   string               `json:"from_number,omitempty"`
	ToNumber     string               `json:"to_number,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type callAnalysisPayload struct {
	Summary   string         `json:"summary"`
	Sentiment string         `json:"sentiment"`
	Custom    map[string]any `json:"custom,omitempty"`
}

func toCallResponse(call *domain.Call) callResponse {
	resp := callResponse{
		ID:           call.ID,
		VendorCallID: call.VendorCallID,
		LeadID:       call.LeadID,
		Status:       call.Status,
		Transcript:   call.Transcript,
		RecordingURL: call.RecordingURL,
		DurationMs:   call.DurationMs,
		Cost:         call.Cost,
		FromNumber:   call.FromNumber,
		ToNumber:     call.ToNumber,
		CreatedAt:    call.CreatedAt,
		UpdatedAt:    call.UpdatedAt,
	}
	if call.Analysis != nil {
		resp.Analysis = &callAnalysisPayload{
			Summary:   call.Analysis.Summary,
			Sentiment: call.Analysis.Sentiment,
			Custom:    call.Analysis.Custom,
		}
	}
	return resp
}
