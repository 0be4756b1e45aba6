package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantpilot-credit-ledger/internal/domain/outbox"
	"github.com/grantpilot-credit-ledger/internal/platform/messaging/producers"
)

// EventPublisher pushes one outbox message onto the ledger events topic.
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl implements EventPublisher on top of a Kafka producer.
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewEventPublisher creates a new publisher.
func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent publishes the transaction carried by the outbox row, keyed by
// account ID so one account's events stay ordered, then marks the row
// processed. A corrupt payload can never publish and is parked as
// FAILED_TO_PUBLISH immediately.
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	transaction, err := message.GetTransaction()
	if err != nil {
		p.logger.Error("Failed to decode transaction from outbox payload",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark corrupt outbox message as FAILED_TO_PUBLISH",
				"outbox_id", message.ID, "update_error", updateErr,
			)
		}
		return fmt.Errorf("decode payload for outbox %d failed: %w", message.ID, err)
	}

	if err := p.producer.Publish(ctx, transaction.AccountID.String(), transaction); err != nil {
		return fmt.Errorf("failed to publish transaction %s from outbox %d: %w", message.TransactionID, message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusProcessed); err != nil {
		// The event is already on the topic; the next poll republishes and
		// downstream consumers dedupe on transaction ID.
		p.logger.Error("Published ledger event but failed to mark outbox message as PROCESSED",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		return fmt.Errorf("event for %s published, but marking outbox %d as PROCESSED failed: %w", message.TransactionID, message.ID, err)
	}

	p.logger.Info("Outbox message published and marked as PROCESSED",
		"outbox_id", message.ID, "transaction_id", message.TransactionID,
	)
	return nil
}
