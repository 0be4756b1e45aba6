package service

import (
	"context"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/domain/payment"
)

// ConfirmationProcessor applies validated payment confirmations to the
// ledger.
type ConfirmationProcessor interface {
	ProcessConfirmation(ctx context.Context, intent *payment.DepositIntent) error
}

// Ledger is the slice of the credit ledger the reconciler needs.
type Ledger interface {
	Reconcile(ctx context.Context, intent *payment.DepositIntent) (*credit.Transaction, error)
}
