package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/lead-call-scheduler/internal/app"
	"github.com/acme/lead-call-scheduler/internal/queue"
	callsvc "github.com/acme/lead-call-scheduler/internal/service/call"
	schedulesvc "github.com/acme/lead-call-scheduler/internal/service/schedule"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container   *app.Container
	calls       *callsvc.Service
	schedule    *schedulesvc.Service
	completions *queue.CompletionPublisher
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	services := container.Services()
	return &HandlerSet{
		container:   container,
		calls:       services.Call,
		schedule:    services.Schedule,
		completions: container.Queues().Completions,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	calls := v1.Group("/calls")
	calls.Post("/", h.initiateCall)
	calls.Post("/schedule", h.scheduleCall)
	calls.Get("/:vendor_call_id", h.getCall)

	batches := v1.Group("/batches")
	batches.Post("/", h.createBatch)
	batches.Get("/:id", h.getBatch)

	leads := v1.Group("/leads")
	leads.Get("/", h.listLeads)
	leads.Post("/bulk", h.importLeads)
	leads.Delete("/:phone", h.deleteLead)
	leads.Get("/:id/calls", h.listLeadCalls)

	webhooks := app.Group("/webhooks")
	webhooks.Post("/call-events", h.callEvents)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
