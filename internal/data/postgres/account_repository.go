// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations while maintaining
// transaction safety and proper error handling for the credit ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the credit.AccountRepository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) credit.AccountRepository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls.
func (r *AccountRepository) WithTx(tx pgx.Tx) credit.AccountRepository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// EnsureExists lazily creates the account row at balance zero. No ledger
// transaction is written for creation itself, so a fresh account has an
// empty log and a zero balance that already reconcile.
func (r *AccountRepository) EnsureExists(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO credit_accounts (account_id, balance, lifetime_spent, lifetime_added, created_at, updated_at)
		VALUES ($1, 0, 0, 0, NOW(), NOW())
		ON CONFLICT (account_id) DO NOTHING
	`

	_, err := r.querier.Exec(ctx, query, accountID)
	if err != nil {
		r.logger.Error("Failed to ensure account exists", "account_id", accountID.String(), "error", err)
		return fmt.Errorf("failed to ensure account exists: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	query := `
		SELECT account_id, balance, lifetime_spent, lifetime_added, last_top_up_at, last_top_up_tier, created_at, updated_at
		FROM credit_accounts
		WHERE account_id = $1
	`

	return r.scanAccount(r.querier.QueryRow(ctx, query, accountID), accountID)
}

// LockForUpdate obtains a row lock on the account and returns its current
// state. Must run inside a transaction; this lock is what serializes all
// mutations for one account while leaving other accounts untouched.
func (r *AccountRepository) LockForUpdate(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	query := `
		SELECT account_id, balance, lifetime_spent, lifetime_added, last_top_up_at, last_top_up_tier, created_at, updated_at
		FROM credit_accounts
		WHERE account_id = $1
		FOR UPDATE
	`

	return r.scanAccount(r.querier.QueryRow(ctx, query, accountID), accountID)
}

// UpdateBalances persists the balance and lifetime counters of a locked account
func (r *AccountRepository) UpdateBalances(ctx context.Context, acc *credit.Account) error {
	query := `
		UPDATE credit_accounts
		SET balance = $1, lifetime_spent = $2, lifetime_added = $3, last_top_up_at = $4, last_top_up_tier = $5, updated_at = $6
		WHERE account_id = $7
	`

	var lastTopUpTier *string
	if acc.LastTopUpTier != "" {
		lastTopUpTier = &acc.LastTopUpTier
	}

	result, err := r.querier.Exec(ctx, query,
		acc.Balance,
		acc.LifetimeSpent,
		acc.LifetimeAdded,
		acc.LastTopUpAt,
		lastTopUpTier,
		acc.UpdatedAt,
		acc.AccountID,
	)
	if err != nil {
		r.logger.Error("Failed to update account balances", "account_id", acc.AccountID.String(), "error", err)
		return fmt.Errorf("failed to update account balances: %w", err)
	}

	if result.RowsAffected() == 0 {
		return credit.ErrAccountNotFound{AccountID: acc.AccountID}
	}

	return nil
}

func (r *AccountRepository) scanAccount(row pgx.Row, accountID uuid.UUID) (*credit.Account, error) {
	var acc credit.Account
	var lastTopUpTier *string
	err := row.Scan(
		&acc.AccountID,
		&acc.Balance,
		&acc.LifetimeSpent,
		&acc.LifetimeAdded,
		&acc.LastTopUpAt,
		&lastTopUpTier,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credit.ErrAccountNotFound{AccountID: accountID}
		}
		r.logger.Error("Failed to get account", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if lastTopUpTier != nil {
		acc.LastTopUpTier = *lastTopUpTier
	}

	return &acc, nil
}
