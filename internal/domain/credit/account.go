package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scale is the fixed decimal scale for all monetary values in the ledger.
// Every amount that results from a multiplication is rounded half-up to
// this scale before it is stored or compared.
const Scale = 4

// Account is the cached aggregate for one account holder's spendable
// credits. It is a materialized view over the transaction log: Balance,
// LifetimeSpent and LifetimeAdded are only ever updated inside the same
// database transaction that writes the corresponding ledger transaction.
// Accounts are created lazily at balance zero and never deleted.
type Account struct {
	AccountID     uuid.UUID       `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	LifetimeSpent decimal.Decimal `json:"lifetime_spent"`
	LifetimeAdded decimal.Decimal `json:"lifetime_added"`
	LastTopUpAt   *time.Time      `json:"last_top_up_at,omitempty"`
	LastTopUpTier string          `json:"last_top_up_tier,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewAccount creates an empty account for the given holder.
func NewAccount(accountID uuid.UUID) *Account {
	now := time.Now().UTC()
	return &Account{
		AccountID:     accountID,
		Balance:       decimal.Zero,
		LifetimeSpent: decimal.Zero,
		LifetimeAdded: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyDeposit credits the account and raises LifetimeAdded. The tier is
// recorded as the last top-up when non-empty.
func (a *Account) ApplyDeposit(amount decimal.Decimal, tierID string) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	now := time.Now().UTC()
	a.Balance = a.Balance.Add(amount)
	a.LifetimeAdded = a.LifetimeAdded.Add(amount)
	if tierID != "" {
		a.LastTopUpTier = tierID
	}
	a.LastTopUpAt = &now
	a.UpdatedAt = now
	return nil
}

// ApplyDeduction debits the account by the charged (post-markup) amount and
// raises LifetimeSpent by the same amount. The balance is allowed to go
// negative: actual cost is often only known after a metered operation has
// already run, so settlement must always succeed.
func (a *Account) ApplyDeduction(chargedAmount decimal.Decimal) error {
	if chargedAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance.Sub(chargedAmount)
	a.LifetimeSpent = a.LifetimeSpent.Add(chargedAmount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyRefund credits the account without touching LifetimeSpent, so
// historical spend reporting is preserved. LifetimeAdded does increase.
func (a *Account) ApplyRefund(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance.Add(amount)
	a.LifetimeAdded = a.LifetimeAdded.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// CanUseService reports whether the account may start new metered
// operations. A balance of exactly zero already blocks usage.
func (a *Account) CanUseService() bool {
	return a.Balance.Sign() > 0
}

// IsNegative reports whether the account carries grace debt.
func (a *Account) IsNegative() bool {
	return a.Balance.Sign() < 0
}
