package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantpilot-credit-ledger/internal/domain/payment"
	"github.com/grantpilot-credit-ledger/internal/platform/messaging/producers"
	"github.com/grantpilot-credit-ledger/internal/reconciler/service"
)

// ConfirmationHandler consumes payment confirmation messages from Kafka.
// Malformed or permanently invalid payloads go to the DLQ and their offset
// is committed; transient failures are left uncommitted for redelivery.
type ConfirmationHandler struct {
	processor service.ConfirmationProcessor
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

// NewConfirmationHandler creates a new handler.
func NewConfirmationHandler(
	logger *slog.Logger,
	processor service.ConfirmationProcessor,
	producer producers.DeadLetterPublisher,
) *ConfirmationHandler {
	return &ConfirmationHandler{
		processor: processor,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes one Kafka message.
func (h *ConfirmationHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	intent, err := payment.ParseConfirmation(value)
	if err != nil {
		h.logger.Error("Rejected payment confirmation",
			"error", err,
			"message_key", string(key),
		)
		return h.sendToDLQ(ctx, key, value, err)
	}

	h.logger.Info("Received payment confirmation",
		"account_id", intent.AccountID.String(),
		"idempotency_token", intent.Token,
		"kind", string(intent.Kind),
	)

	if err := h.processor.ProcessConfirmation(ctx, intent); err != nil {
		if service.IsPermanent(err) {
			h.logger.Error("Payment confirmation permanently rejected",
				"account_id", intent.AccountID.String(),
				"idempotency_token", intent.Token,
				"error", err,
			)
			return h.sendToDLQ(ctx, key, value, err)
		}

		h.logger.Error("Failed to reconcile payment confirmation, leaving offset uncommitted",
			"account_id", intent.AccountID.String(),
			"idempotency_token", intent.Token,
			"error", err,
		)
		return fmt.Errorf("reconciling confirmation %s failed: %w", intent.Token, err)
	}

	return nil // Success, commit offset
}

// sendToDLQ parks the raw payload on the dead letter topic. Returning nil
// commits the offset so the poison message is not redelivered; if the DLQ
// write itself fails the original error is surfaced to keep the message.
func (h *ConfirmationHandler) sendToDLQ(ctx context.Context, key []byte, value []byte, cause error) error {
	if h.producer == nil {
		return fmt.Errorf("confirmation rejected and no DLQ configured: %w", cause)
	}

	if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, cause.Error()); dlqErr != nil {
		h.logger.Error("Failed to publish rejected confirmation to DLQ",
			"dlq_error", dlqErr,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("confirmation rejected and DLQ publish failed: %w", cause)
	}

	h.logger.Info("Rejected confirmation parked on DLQ", "message_key", string(key), "reason", cause.Error())
	return nil
}
