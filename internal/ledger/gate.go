package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccessReason explains why the gate denied service.
type AccessReason string

const (
	AccessReasonZeroBalance     AccessReason = "ZERO_BALANCE"
	AccessReasonNegativeBalance AccessReason = "NEGATIVE_BALANCE"
)

// AccessDecision is the gate verdict for one account. ResumePayment is the
// debt that must be cleared plus the minimum top-up, or zero when the
// balance carries no debt.
type AccessDecision struct {
	AccountID     uuid.UUID       `json:"account_id"`
	Allowed       bool            `json:"allowed"`
	Balance       decimal.Decimal `json:"balance"`
	Reason        AccessReason    `json:"reason,omitempty"`
	ResumePayment decimal.Decimal `json:"resume_payment"`
}

// CanUseService is the pre-operation gate: any positive balance grants
// access regardless of the estimated cost of the upcoming operation. The
// verdict is advisory, not a reservation, so a concurrent deduction can
// still take the balance to zero before the operation settles.
func (s *Service) CanUseService(ctx context.Context, accountID uuid.UUID) (*AccessDecision, error) {
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	decision := &AccessDecision{
		AccountID:     accountID,
		Allowed:       balance.CanUseService,
		Balance:       balance.Balance,
		ResumePayment: decimal.Zero,
	}
	if decision.Allowed {
		return decision, nil
	}

	if balance.IsNegative {
		decision.Reason = AccessReasonNegativeBalance
	} else {
		decision.Reason = AccessReasonZeroBalance
	}
	decision.ResumePayment = CalculateResumePayment(balance.Balance, s.cfg.MinimumTopUp)
	return decision, nil
}

// CalculateResumePayment returns the payment that clears an account's debt:
// abs(balance) plus the minimum top-up for a negative balance, zero
// otherwise. A blocked zero balance owes nothing here; the usual top-up
// minimum applies to whatever payment the account makes next.
func CalculateResumePayment(balance, minimumTopUp decimal.Decimal) decimal.Decimal {
	if balance.Sign() >= 0 {
		return decimal.Zero
	}
	return balance.Abs().Add(minimumTopUp)
}
