package ledger

import (
	"context"
	"fmt"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/domain/payment"
)

// Reconcile applies a validated payment confirmation to the ledger. The
// payment token doubles as the idempotency key, so redelivered confirmations
// return the transaction written by the first delivery.
func (s *Service) Reconcile(ctx context.Context, intent *payment.DepositIntent) (*credit.Transaction, error) {
	switch intent.Kind {
	case payment.IntentTierPurchase:
		return s.AddTierCredits(ctx, intent.AccountID, intent.TierID, intent.Token)
	case payment.IntentCustomTopUp:
		return s.TopUp(ctx, intent.AccountID, intent.Amount, intent.Token)
	default:
		return nil, fmt.Errorf("unknown deposit intent kind %q", intent.Kind)
	}
}
