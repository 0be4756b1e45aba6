package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/grantpilot-credit-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// fetchRetryDelay spaces out retries when the broker is unreachable.
const fetchRetryDelay = time.Second

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error
	Close() error
}

// KafkaConsumer implements Consumer using Kafka
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafkaConsumer builds a consumer for one topic and group. The service
// runs two of them: the payment confirmation reader and the ledger archiver.
func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		logger: logger,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Subscribe runs the fetch loop over the topic and blocks until ctx is
// canceled, so the caller's goroutine lives exactly as long as the loop.
// An offset is committed only after the handler succeeds; a handler error
// leaves the message uncommitted so the group redelivers it.
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error {
	c.logger.Info("Consuming Kafka topic", "topic", topic, "group_id", groupID)

	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("Fetch from Kafka failed",
				"topic", topic,
				"group_id", groupID,
				"error", err,
			)
			time.Sleep(fetchRetryDelay)
			continue
		}

		c.logger.Debug("Fetched message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("Handler rejected message, leaving offset uncommitted",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Offset commit failed after successful handling",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
	}
	c.logger.Info("Consumer stopped", "topic", topic, "group_id", groupID)

	return nil
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
