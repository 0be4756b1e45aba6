// Package payment validates externally-delivered payment confirmations
// before they are allowed to touch the ledger. Payloads arrive from the
// payment provider at-least-once and unordered; everything malformed is
// rejected here, never inside a ledger write.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrMissingAccountID = errors.New("confirmation is missing account_id")
	ErrMissingToken     = errors.New("confirmation is missing idempotency token")
	ErrAmbiguousIntent  = errors.New("confirmation must carry exactly one of tier_id or amount")
	ErrInvalidAmount    = errors.New("confirmation amount must be positive")
)

// ConfirmationEvent is the wire shape of a payment-confirmation delivery.
type ConfirmationEvent struct {
	AccountID uuid.UUID        `json:"account_id"`
	TierID    string           `json:"tier_id,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Token     string           `json:"idempotency_token"`
}

// IntentKind discriminates the deposit intent variants
type IntentKind string

const (
	IntentTierPurchase IntentKind = "TIER_PURCHASE"
	IntentCustomTopUp  IntentKind = "CUSTOM_TOP_UP"
)

// DepositIntent is the validated, tagged form of a confirmation: either a
// tier purchase or a custom top-up, never both.
type DepositIntent struct {
	Kind      IntentKind
	AccountID uuid.UUID
	TierID    string
	Amount    decimal.Decimal
	Token     string
}

// ParseConfirmation decodes and validates a raw confirmation payload.
func ParseConfirmation(data []byte) (*DepositIntent, error) {
	var event ConfirmationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("malformed confirmation payload: %w", err)
	}
	return event.Intent()
}

// Intent validates the event and returns its tagged deposit intent.
func (e *ConfirmationEvent) Intent() (*DepositIntent, error) {
	if e.AccountID == uuid.Nil {
		return nil, ErrMissingAccountID
	}
	if e.Token == "" {
		return nil, ErrMissingToken
	}

	hasTier := e.TierID != ""
	hasAmount := e.Amount != nil
	if hasTier == hasAmount {
		return nil, ErrAmbiguousIntent
	}

	if hasTier {
		return &DepositIntent{
			Kind:      IntentTierPurchase,
			AccountID: e.AccountID,
			TierID:    e.TierID,
			Token:     e.Token,
		}, nil
	}

	if e.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return &DepositIntent{
		Kind:      IntentCustomTopUp,
		AccountID: e.AccountID,
		Amount:    *e.Amount,
		Token:     e.Token,
	}, nil
}
