package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// CompletionPublisher hands validated completion events to Kafka so that
// processing happens off the webhook request path.
type CompletionPublisher struct {
	writer *kafka.Writer
}

// NewCompletionPublisher constructs a publisher for the completion topic.
func NewCompletionPublisher(k *Kafka, topic string) *CompletionPublisher {
	return &CompletionPublisher{
		writer: k.NewWriter(topic),
	}
}

// Publish writes the event keyed by its vendor call id, so events for the
// same call land on the same partition in order.
func (p *CompletionPublisher) Publish(ctx context.Context, event CompletionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("completion publisher: marshal event: %w", err)
	}

	record := kafka.Message{
		Key:   []byte(event.Call.VendorCallID),
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("completion publisher: write event: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *CompletionPublisher) Close() error {
	return p.writer.Close()
}
