package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TransactionRepository implements the credit.TransactionRepository
// interface for PostgreSQL. The credit_transactions table is append-only:
// rows are inserted once and never updated or deleted.
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) credit.TransactionRepository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so ledger writes commit
// atomically with the account balance update.
func (r *TransactionRepository) WithTx(tx pgx.Tx) credit.TransactionRepository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a ledger transaction. A non-null idempotency key hitting
// the partial unique index surfaces as ErrDuplicateIdempotencyKey.
func (r *TransactionRepository) Create(ctx context.Context, transaction *credit.Transaction) error {
	query := `
		INSERT INTO credit_transactions
			(id, account_id, type, amount, balance_before, balance_after, description, related_operation_id, idempotency_key, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	metadata, err := json.Marshal(transaction.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	var relatedOperationID, idempotencyKey *string
	if transaction.RelatedOperationID != "" {
		relatedOperationID = &transaction.RelatedOperationID
	}
	if transaction.IdempotencyKey != "" {
		idempotencyKey = &transaction.IdempotencyKey
	}

	_, err = r.querier.Exec(ctx, query,
		transaction.ID,
		transaction.AccountID,
		string(transaction.Type),
		transaction.Amount,
		transaction.BalanceBefore,
		transaction.BalanceAfter,
		transaction.Description,
		relatedOperationID,
		idempotencyKey,
		metadata,
		transaction.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && transaction.IdempotencyKey != "" {
			return credit.ErrDuplicateIdempotencyKey{IdempotencyKey: transaction.IdempotencyKey}
		}
		r.logger.Error("Failed to create ledger transaction",
			"transaction_id", transaction.ID.String(),
			"account_id", transaction.AccountID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create ledger transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a ledger transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*credit.Transaction, error) {
	query := selectTransaction + ` WHERE id = $1`

	transaction, err := r.scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credit.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get ledger transaction", "transaction_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger transaction: %w", err)
	}

	return transaction, nil
}

// GetByIdempotencyKey returns the transaction carrying the key, or nil when
// the key is unseen. Used for replay detection on retried deliveries.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*credit.Transaction, error) {
	query := selectTransaction + ` WHERE idempotency_key = $1`

	transaction, err := r.scanTransaction(r.querier.QueryRow(ctx, query, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction by idempotency key", "idempotency_key", idempotencyKey, "error", err)
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}

	return transaction, nil
}

// ListByAccountID returns the account's transactions, newest first
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*credit.Transaction, error) {
	query := selectTransaction + `
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, accountID, limit)
	if err != nil {
		r.logger.Error("Failed to list ledger transactions", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*credit.Transaction
	for rows.Next() {
		transaction, err := r.scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger transaction", "error", err)
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		transactions = append(transactions, transaction)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger transactions", "error", err)
		return nil, fmt.Errorf("error iterating over ledger transactions: %w", err)
	}

	return transactions, nil
}

// CountByAccountID returns the number of transactions for an account
func (r *TransactionRepository) CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM credit_transactions WHERE account_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger transactions", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger transactions: %w", err)
	}

	return count, nil
}

const selectTransaction = `
	SELECT id, account_id, type, amount, balance_before, balance_after, description, related_operation_id, idempotency_key, metadata, created_at
	FROM credit_transactions`

func (r *TransactionRepository) scanTransaction(row pgx.Row) (*credit.Transaction, error) {
	var transaction credit.Transaction
	var txType string
	var relatedOperationID, idempotencyKey *string
	var metadata []byte

	err := row.Scan(
		&transaction.ID,
		&transaction.AccountID,
		&txType,
		&transaction.Amount,
		&transaction.BalanceBefore,
		&transaction.BalanceAfter,
		&transaction.Description,
		&relatedOperationID,
		&idempotencyKey,
		&metadata,
		&transaction.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	transaction.Type = credit.TransactionType(txType)
	if relatedOperationID != nil {
		transaction.RelatedOperationID = *relatedOperationID
	}
	if idempotencyKey != nil {
		transaction.IdempotencyKey = *idempotencyKey
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &transaction.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
		}
	}

	return &transaction, nil
}

// isUniqueViolation reports whether the error is a Postgres unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
