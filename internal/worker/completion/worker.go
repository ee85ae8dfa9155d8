package completion

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/lead-call-scheduler/internal/app"
	"github.com/acme/lead-call-scheduler/internal/queue"
)

// Worker consumes completion events and applies them through the processor.
type Worker struct {
	container *app.Container
	processor *Processor
}

// New creates a completion worker from the container.
func New(container *app.Container) *Worker {
	repos := container.Repositories()
	services := container.Services()
	processor := NewProcessor(
		repos.CallStore,
		repos.Batches,
		repos.Leads,
		repos.Users,
		services.Schedule,
		container.Reports(),
		container.Notifiers().Email,
		container.Logger,
	)
	return &Worker{container: container, processor: processor}
}

// Run processes completion events until the context is cancelled. A failed
// event is not committed and comes back on the next fetch.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.ConsumerGroupID + "-completion"
	reader := w.container.Kafka.NewReader(cfg.Kafka.CompletionTopic, groupID)
	defer reader.Close()

	log := w.container.Logger

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("completion worker: fetch", zap.Error(err))
			continue
		}

		var event queue.CompletionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("completion worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		tracer := otel.Tracer("leadcall.completionworker")
		sctx, span := tracer.Start(ctx, "completion.event", trace.WithAttributes(
			attribute.String("event.type", event.EventType),
			attribute.String("vendor_call.id", event.Call.VendorCallID),
		))

		if err := w.processor.Handle(sctx, event); err != nil {
			span.RecordError(err)
			span.End()
			log.Error("completion worker: process",
				zap.String("vendor_call_id", event.Call.VendorCallID),
				zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			log.Error("completion worker: commit", zap.Error(err))
		}
		span.End()
	}
}
