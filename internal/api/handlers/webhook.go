package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/lead-call-scheduler/internal/queue"
)

// callEvents receives vendor completion webhooks. The request path only
// validates and enqueues; all state changes happen in the completion worker.
// The vendor retries non-2xx responses, so only genuinely malformed payloads
// get a 4xx.
func (h *HandlerSet) callEvents(ctx *fiber.Ctx) error {
	var event queue.CompletionEvent
	if err := ctx.BodyParser(&event); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid event payload")
	}

	if event.EventType != queue.EventTypeCallAnalyzed {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "ignored"})
	}
	if event.Call.VendorCallID == "" {
		return fiber.NewError(http.StatusBadRequest, "missing call id")
	}
	if event.Call.Analysis == nil {
		return fiber.NewError(http.StatusBadRequest, "missing call analysis")
	}

	event.ReceivedAt = time.Now().UTC()

	if err := h.completions.Publish(ctx.Context(), event); err != nil {
		h.container.Logger.Error("webhook: publish completion event",
			zap.String("vendor_call_id", event.Call.VendorCallID),
			zap.Error(err))
		return fiber.NewError(http.StatusServiceUnavailable, "event not accepted")
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "accepted"})
}
