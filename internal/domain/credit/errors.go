package credit

import (
	"errors"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount = errors.New("amount must be positive")
)

// ErrAccountNotFound indicates a mutation against an account that was never
// created. Lazy creation on reads and deposits makes this rare, but
// deductions and refunds handle it defensively.
type ErrAccountNotFound struct {
	AccountID uuid.UUID
}

func (e ErrAccountNotFound) Error() string {
	return "credit account not found: " + e.AccountID.String()
}

// Is implements the errors.Is interface for ErrAccountNotFound
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	if t.AccountID == uuid.Nil {
		return true
	}
	return e.AccountID == t.AccountID
}

// ErrUnknownTier indicates a purchase against a tier that is not in the
// catalog.
type ErrUnknownTier struct {
	TierID string
}

func (e ErrUnknownTier) Error() string {
	return "unknown purchase tier: " + e.TierID
}

// Is implements the errors.Is interface for ErrUnknownTier
func (e ErrUnknownTier) Is(target error) bool {
	t, ok := target.(ErrUnknownTier)
	if !ok {
		return false
	}
	if t.TierID == "" {
		return true
	}
	return e.TierID == t.TierID
}

// ErrTransactionNotFound indicates a missing ledger transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "ledger transaction not found: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrTransactionNotFound
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

// ErrDuplicateIdempotencyKey indicates that a second deposit tried to reuse
// a non-null idempotency key. Callers treat this as "already applied" and
// re-read the original transaction.
type ErrDuplicateIdempotencyKey struct {
	IdempotencyKey string
}

func (e ErrDuplicateIdempotencyKey) Error() string {
	return "idempotency key already used: " + e.IdempotencyKey
}

// Is implements the errors.Is interface for ErrDuplicateIdempotencyKey
func (e ErrDuplicateIdempotencyKey) Is(target error) bool {
	t, ok := target.(ErrDuplicateIdempotencyKey)
	if !ok {
		return false
	}
	if t.IdempotencyKey == "" {
		return true
	}
	return e.IdempotencyKey == t.IdempotencyKey
}
