package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/domain/payment"
)

// ReconciliationService is the base confirmation processor: it hands each
// intent to the ledger, which makes redelivered confirmations no-ops via the
// payment token.
type ReconciliationService struct {
	ledger Ledger
	logger *slog.Logger
}

func NewReconciliationService(logger *slog.Logger, ledger Ledger) *ReconciliationService {
	return &ReconciliationService{
		ledger: ledger,
		logger: logger,
	}
}

func (s *ReconciliationService) ProcessConfirmation(ctx context.Context, intent *payment.DepositIntent) error {
	transaction, err := s.ledger.Reconcile(ctx, intent)
	if err != nil {
		return fmt.Errorf("reconciling payment %s for account %s failed: %w", intent.Token, intent.AccountID.String(), err)
	}

	s.logger.Info("Payment confirmation reconciled",
		"account_id", intent.AccountID.String(),
		"idempotency_token", intent.Token,
		"transaction_id", transaction.ID.String(),
		"amount", transaction.Amount.String(),
	)
	return nil
}

// IsPermanent reports whether the error can never succeed on redelivery.
// Permanent failures go to the DLQ and the offset is committed; anything
// else is left uncommitted for Kafka to redeliver.
func IsPermanent(err error) bool {
	return errors.Is(err, credit.ErrUnknownTier{}) ||
		errors.Is(err, credit.ErrInvalidAmount) ||
		errors.Is(err, payment.ErrInvalidAmount) ||
		errors.Is(err, payment.ErrAmbiguousIntent) ||
		errors.Is(err, payment.ErrMissingAccountID) ||
		errors.Is(err, payment.ErrMissingToken)
}
