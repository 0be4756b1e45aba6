package credit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository manages credit account persistence. Implementations must
// support running against either a connection pool or an open transaction
// via WithTx.
type AccountRepository interface {
	// EnsureExists creates the account row at balance zero if it is absent.
	// No ledger transaction is written for lazy creation.
	EnsureExists(ctx context.Context, accountID uuid.UUID) error
	GetByID(ctx context.Context, accountID uuid.UUID) (*Account, error)
	// LockForUpdate obtains a row lock on the account and returns its
	// current state. Must be called inside a transaction; it is the
	// serialization point for all mutations on one account.
	LockForUpdate(ctx context.Context, accountID uuid.UUID) (*Account, error)
	// UpdateBalances persists the balance and lifetime counters of a locked
	// account.
	UpdateBalances(ctx context.Context, acc *Account) error
	WithTx(tx pgx.Tx) AccountRepository
}

// TransactionRepository manages the append-only ledger transaction log.
type TransactionRepository interface {
	Create(ctx context.Context, transaction *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// GetByIdempotencyKey returns the prior transaction carrying the key,
	// or nil when the key is unseen.
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Transaction, error)
	// ListByAccountID returns the newest transactions first.
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*Transaction, error)
	CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error)
	WithTx(tx pgx.Tx) TransactionRepository
}
