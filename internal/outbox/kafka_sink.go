package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaSink is the external transport ExternalSink, grounded on the
// teacher's cmd/poller kafka.Writer usage for publishing outbox rows.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink wraps a configured kafka.Writer.
func NewKafkaSink(writer *kafka.Writer) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Publish implements ExternalSink.
func (k *KafkaSink) Publish(ctx context.Context, entry Entry, wrapped WrappedPayload) (bool, error) {
	value, err := json.Marshal(wrapped)
	if err != nil {
		return false, fmt.Errorf("marshal wrapped payload: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(entry.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "integration_action", Value: []byte(entry.IntegrationAction)},
			{Key: "correlation_id", Value: []byte(entry.CorrelationID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return false, fmt.Errorf("write kafka message: %w", err)
	}
	return true, nil
}
