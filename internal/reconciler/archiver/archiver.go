package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
)

// Store is the archive sink. *mongo.ArchiveRepository satisfies it.
type Store interface {
	Archive(ctx context.Context, transaction *credit.Transaction) error
}

// Archiver copies committed ledger transactions from the ledger events
// topic into the long-term archive. Archiving is duplicate-tolerant, so the
// at-least-once delivery from the outbox poller needs no coordination here.
type Archiver struct {
	store  Store
	logger *slog.Logger
}

func New(logger *slog.Logger, store Store) *Archiver {
	return &Archiver{
		store:  store,
		logger: logger,
	}
}

// HandleMessage archives one ledger event. A malformed payload is logged
// and committed: it can only come from our own producer, and redelivery
// would fail the same way forever.
func (a *Archiver) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var transaction credit.Transaction
	if err := json.Unmarshal(value, &transaction); err != nil {
		a.logger.Error("Failed to unmarshal ledger event, skipping",
			"message_key", string(key),
			"error", err,
		)
		return nil
	}

	if err := a.store.Archive(ctx, &transaction); err != nil {
		a.logger.Error("Failed to archive ledger transaction",
			"transaction_id", transaction.ID.String(),
			"account_id", transaction.AccountID.String(),
			"error", err,
		)
		return fmt.Errorf("archiving transaction %s failed: %w", transaction.ID.String(), err)
	}

	a.logger.Debug("Archived ledger transaction",
		"transaction_id", transaction.ID.String(),
		"account_id", transaction.AccountID.String(),
	)
	return nil
}
