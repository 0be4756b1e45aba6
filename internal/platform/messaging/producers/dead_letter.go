package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantpilot-credit-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// DLQProducer parks payment confirmations the reconciler judged permanently
// unprocessable. Parked records carry the raw payload so an operator can
// replay them once the cause is fixed.
type DLQProducer struct {
	logger   *slog.Logger
	writer   KafkaWriter
	dlqTopic string
}

// deadLetterRecord wraps the original confirmation with its failure context.
type deadLetterRecord struct {
	ConfirmationKey     string `json:"confirmation_key"`
	ConfirmationPayload string `json:"confirmation_payload"`
	FailureReason       string `json:"failure_reason"`
	ParkedAt            string `json:"parked_at"`
}

// NewDLQProducer builds the parking producer. An empty DLQTopic disables the
// DLQ entirely; the returned nil producer is a valid no-op sentinel.
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic not configured, unprocessable confirmations will be redelivered instead of parked")
		return nil, nil
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for dlq producer: %w", err)
	}
	defer conn.Close()

	if err := createKafkaTopicIfNotExists(conn, cfg.DLQTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to park confirmations", "topic", cfg.DLQTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Parked confirmations", "topic", cfg.DLQTopic, "count", len(messages))
			}
		},
	}

	return &DLQProducer{
		logger:   logger,
		writer:   writer,
		dlqTopic: cfg.DLQTopic,
	}, nil
}

// PublishToDLQ parks one raw confirmation with the reason it was rejected.
func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	if p == nil {
		return fmt.Errorf("DLQ producer not initialized")
	}
	if p.writer == nil {
		p.logger.Warn("DLQ disabled, dropping park request", "key", key, "reason", reason)
		return fmt.Errorf("DLQ producer not initialized")
	}

	record := deadLetterRecord{
		ConfirmationKey:     key,
		ConfirmationPayload: string(originalMessageValue),
		FailureReason:       reason,
		ParkedAt:            time.Now().UTC().Format(time.RFC3339Nano),
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "failure-reason", Value: []byte(reason)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to park confirmation",
			"topic", p.dlqTopic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to park confirmation on %s: %w", p.dlqTopic, err)
	}

	p.logger.Info("Parked unprocessable confirmation",
		"topic", p.dlqTopic,
		"key", key,
		"reason", reason,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
