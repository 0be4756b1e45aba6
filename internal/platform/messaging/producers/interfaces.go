package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher publishes ledger transaction events to their topic.
// The outbox poller depends on this rather than on a concrete writer.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks confirmations that cannot be reconciled.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
