package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType defines the possible ledger transaction kinds
type TransactionType string

const (
	TransactionTypeDeposit   TransactionType = "DEPOSIT"
	TransactionTypeDeduction TransactionType = "DEDUCTION"
	TransactionTypeRefund    TransactionType = "REFUND"
)

// Valid reports whether the type is one of the known transaction kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeDeduction, TransactionTypeRefund:
		return true
	}
	return false
}

// Metadata carries pricing context for a ledger transaction. For deductions
// it records the metered actual cost next to the charged (post-markup)
// amount; for deposits it records the purchased tier.
type Metadata struct {
	Tier        string            `json:"tier,omitempty" bson:"tier,omitempty"`
	ActualCost  *decimal.Decimal  `json:"actual_cost,omitempty" bson:"actual_cost,omitempty"`
	ChargedCost *decimal.Decimal  `json:"charged_cost,omitempty" bson:"charged_cost,omitempty"`
	Markup      *decimal.Decimal  `json:"markup,omitempty" bson:"markup,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" bson:"extra,omitempty"`
}

// Transaction is one immutable entry in the append-only ledger. Amount is a
// magnitude; SignedAmount applies the sign implied by Type. Corrections are
// never edits, they are compensating REFUND or DEDUCTION entries.
type Transaction struct {
	ID                 uuid.UUID       `json:"id" bson:"id"`
	AccountID          uuid.UUID       `json:"account_id" bson:"account_id"`
	Type               TransactionType `json:"type" bson:"type"`
	Amount             decimal.Decimal `json:"amount" bson:"amount"`
	BalanceBefore      decimal.Decimal `json:"balance_before" bson:"balance_before"`
	BalanceAfter       decimal.Decimal `json:"balance_after" bson:"balance_after"`
	Description        string          `json:"description" bson:"description"`
	RelatedOperationID string          `json:"related_operation_id,omitempty" bson:"related_operation_id,omitempty"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	Metadata           Metadata        `json:"metadata" bson:"metadata"`
	CreatedAt          time.Time       `json:"created_at" bson:"created_at"`
}

// SignedAmount returns the amount with the sign implied by the transaction
// type: deposits and refunds are positive, deductions negative. Replaying
// signed amounts over the log reproduces the account balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeDeduction {
		return t.Amount.Neg()
	}
	return t.Amount
}

// NewTransaction builds a ledger transaction for an account mutation. The
// caller supplies the pre-mutation balance; BalanceAfter is derived from the
// signed amount so the chain invariant holds by construction.
func NewTransaction(accountID uuid.UUID, txType TransactionType, amount, balanceBefore decimal.Decimal, description string) *Transaction {
	tx := &Transaction{
		ID:            uuid.New(),
		AccountID:     accountID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
	tx.BalanceAfter = balanceBefore.Add(tx.SignedAmount())
	return tx
}
