// Package ledger implements the usage-metered credit ledger: balance
// queries, tiered top-up crediting, markup deductions, refunds and the
// balance-based access gate. Every mutation commits its ledger transaction,
// the account balances and an outbox row in one database transaction, with
// the account row locked for the duration, so all mutations on one account
// are serialized while different accounts proceed in parallel.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/domain/outbox"
)

// DefaultHistoryLimit caps transaction history reads when the caller does
// not specify a limit.
const DefaultHistoryLimit = 50

// MaxHistoryLimit is the hard upper bound for one history page.
const MaxHistoryLimit = 500

// TxRunner runs a function inside a database transaction, rolling back on
// error or panic. *persistence.PostgresDB satisfies it; tests substitute an
// in-memory runner.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Config is the pricing policy injected into the service. It is explicit
// constructor state, not ambient configuration, so tests can vary pricing
// freely.
type Config struct {
	MarkupMultiplier decimal.Decimal
	MinimumTopUp     decimal.Decimal
	Catalog          *credit.TierCatalog
}

func (c Config) validate() error {
	if c.MarkupMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("markup multiplier must be >= 1, got %s", c.MarkupMultiplier)
	}
	if c.MinimumTopUp.Sign() <= 0 {
		return fmt.Errorf("minimum top-up must be positive, got %s", c.MinimumTopUp)
	}
	if c.Catalog == nil {
		return fmt.Errorf("tier catalog is required")
	}
	return nil
}

// Balance is the result of a balance query.
type Balance struct {
	AccountID     uuid.UUID       `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	LifetimeSpent decimal.Decimal `json:"lifetime_spent"`
	LifetimeAdded decimal.Decimal `json:"lifetime_added"`
	CanUseService bool            `json:"can_use_service"`
	IsNegative    bool            `json:"is_negative"`
}

// Service is the credit ledger.
type Service struct {
	runner       TxRunner
	accounts     credit.AccountRepository
	transactions credit.TransactionRepository
	outboxRepo   outbox.Repository
	cfg          Config
	logger       *slog.Logger
}

// NewService creates the ledger service.
func NewService(
	logger *slog.Logger,
	runner TxRunner,
	accounts credit.AccountRepository,
	transactions credit.TransactionRepository,
	outboxRepo outbox.Repository,
	cfg Config,
) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	return &Service{
		runner:       runner,
		accounts:     accounts,
		transactions: transactions,
		outboxRepo:   outboxRepo,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// MinimumTopUp returns the configured minimum custom top-up.
func (s *Service) MinimumTopUp() decimal.Decimal {
	return s.cfg.MinimumTopUp
}

// Catalog returns the tier bonus schedule.
func (s *Service) Catalog() *credit.TierCatalog {
	return s.cfg.Catalog
}

// GetBalance returns the account's balance view, lazily creating the
// account at zero on first query. Creation writes no ledger transaction, so
// the empty log and the zero balance already reconcile. The read is an
// unlocked committed snapshot.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	if err := s.accounts.EnsureExists(ctx, accountID); err != nil {
		return nil, err
	}

	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		AccountID:     acc.AccountID,
		Balance:       acc.Balance,
		LifetimeSpent: acc.LifetimeSpent,
		LifetimeAdded: acc.LifetimeAdded,
		CanUseService: acc.CanUseService(),
		IsNegative:    acc.IsNegative(),
	}, nil
}

// AddTierCredits applies a tier purchase: the credited amount (including
// any bonus) is deposited exactly once per idempotency key. Replayed keys
// return the original transaction unchanged.
func (s *Service) AddTierCredits(ctx context.Context, accountID uuid.UUID, tierID, idempotencyKey string) (*credit.Transaction, error) {
	def, err := s.cfg.Catalog.Resolve(tierID)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Tier purchase %s: %s paid, %s credited", def.TierID, def.PaymentAmount, def.CreditedAmount)
	return s.deposit(ctx, accountID, def.CreditedAmount, def.TierID, idempotencyKey, description)
}

// TopUp credits a custom payment 1:1. Payments below the configured
// minimum are rejected with ErrInvalidAmount before any ledger write.
func (s *Service) TopUp(ctx context.Context, accountID uuid.UUID, paymentAmount decimal.Decimal, idempotencyKey string) (*credit.Transaction, error) {
	if paymentAmount.LessThan(s.cfg.MinimumTopUp) {
		return nil, fmt.Errorf("top-up %s is below the minimum %s: %w", paymentAmount, s.cfg.MinimumTopUp, credit.ErrInvalidAmount)
	}

	description := fmt.Sprintf("Top-up of %s credits", paymentAmount)
	return s.deposit(ctx, accountID, paymentAmount, "", idempotencyKey, description)
}

// DeductForUsage settles a completed metered operation. The charged amount
// is actualCost times the markup multiplier, rounded to the ledger scale.
// The balance may go negative: settlement must never fail for insufficient
// funds because the cost is only known after the operation has run, and a
// partially-run operation still has to be paid for. Blocking happens in the
// access gate before the operation starts; the gap between gate check and
// settlement is an accepted overspend window resolved through grace debt.
func (s *Service) DeductForUsage(
	ctx context.Context,
	accountID uuid.UUID,
	actualCost decimal.Decimal,
	description string,
	relatedOperationID string,
	extra map[string]string,
) (*credit.Transaction, error) {
	if actualCost.Sign() <= 0 {
		return nil, fmt.Errorf("actual cost %s: %w", actualCost, credit.ErrInvalidAmount)
	}

	markup := s.cfg.MarkupMultiplier
	charged := actualCost.Mul(markup).Round(credit.Scale)

	var result *credit.Transaction
	err := s.runner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)
		transactions := s.transactions.WithTx(tx)

		acc, err := accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		transaction := credit.NewTransaction(accountID, credit.TransactionTypeDeduction, charged, acc.Balance, description)
		transaction.RelatedOperationID = relatedOperationID
		transaction.Metadata = credit.Metadata{
			ActualCost:  &actualCost,
			ChargedCost: &charged,
			Markup:      &markup,
			Extra:       extra,
		}

		if err := acc.ApplyDeduction(charged); err != nil {
			return err
		}
		if err := transactions.Create(ctx, transaction); err != nil {
			return err
		}
		if err := accounts.UpdateBalances(ctx, acc); err != nil {
			return err
		}
		if err := s.createOutboxEntry(ctx, tx, transaction); err != nil {
			return err
		}

		result = transaction
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Usage deducted",
		"account_id", accountID.String(),
		"transaction_id", result.ID.String(),
		"actual_cost", actualCost.String(),
		"charged", charged.String(),
		"balance_after", result.BalanceAfter.String(),
	)
	return result, nil
}

// Refund credits an account without raising LifetimeSpent, preserving
// historical spend reporting. The idempotency key is optional: internal
// one-off refunds pass none, upstream-retriable triggers pass one and get
// the same replay safety as deposits.
func (s *Service) Refund(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reason, idempotencyKey string) (*credit.Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("refund amount %s: %w", amount, credit.ErrInvalidAmount)
	}

	var result *credit.Transaction
	err := s.runner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)
		transactions := s.transactions.WithTx(tx)

		acc, err := accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		if idempotencyKey != "" {
			existing, err := transactions.GetByIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		transaction := credit.NewTransaction(accountID, credit.TransactionTypeRefund, amount, acc.Balance, reason)
		transaction.IdempotencyKey = idempotencyKey

		if err := acc.ApplyRefund(amount); err != nil {
			return err
		}
		if err := transactions.Create(ctx, transaction); err != nil {
			return err
		}
		if err := accounts.UpdateBalances(ctx, acc); err != nil {
			return err
		}
		if err := s.createOutboxEntry(ctx, tx, transaction); err != nil {
			return err
		}

		result = transaction
		return nil
	})
	if err != nil {
		if original := s.resolveDuplicate(ctx, err, idempotencyKey); original != nil {
			return original, nil
		}
		return nil, err
	}

	s.logger.Info("Refund applied",
		"account_id", accountID.String(),
		"transaction_id", result.ID.String(),
		"amount", amount.String(),
		"reason", reason,
	)
	return result, nil
}

// Transactions returns the account's ledger history, newest first. History
// is readable in every account state, including grace debt.
func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID, limit int) ([]*credit.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.transactions.ListByAccountID(ctx, accountID, limit)
}

// deposit is the shared crediting path for tier purchases and custom
// top-ups. The idempotency check runs after the account lock is held, so a
// replayed delivery for the same account always observes the first write.
// The partial unique index on idempotency_key backstops pathological
// concurrent reuse across accounts.
func (s *Service) deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, tierID, idempotencyKey, description string) (*credit.Transaction, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("deposit requires an idempotency key: %w", credit.ErrInvalidAmount)
	}

	var result *credit.Transaction
	var replayed bool
	err := s.runner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)
		transactions := s.transactions.WithTx(tx)

		// Deposits may land before the account's first balance query, so
		// the row is created here as well.
		if err := accounts.EnsureExists(ctx, accountID); err != nil {
			return err
		}
		acc, err := accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		existing, err := transactions.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			replayed = true
			return nil
		}

		transaction := credit.NewTransaction(accountID, credit.TransactionTypeDeposit, amount, acc.Balance, description)
		transaction.IdempotencyKey = idempotencyKey
		transaction.Metadata = credit.Metadata{Tier: tierID}

		if err := acc.ApplyDeposit(amount, tierID); err != nil {
			return err
		}
		if err := transactions.Create(ctx, transaction); err != nil {
			return err
		}
		if err := accounts.UpdateBalances(ctx, acc); err != nil {
			return err
		}
		if err := s.createOutboxEntry(ctx, tx, transaction); err != nil {
			return err
		}

		result = transaction
		return nil
	})
	if err != nil {
		if original := s.resolveDuplicate(ctx, err, idempotencyKey); original != nil {
			return original, nil
		}
		return nil, err
	}

	if replayed {
		s.logger.Info("Duplicate payment delivery ignored",
			"account_id", accountID.String(),
			"idempotency_key", idempotencyKey,
			"transaction_id", result.ID.String(),
		)
	} else {
		s.logger.Info("Credits deposited",
			"account_id", accountID.String(),
			"transaction_id", result.ID.String(),
			"amount", amount.String(),
			"tier", tierID,
		)
	}
	return result, nil
}

func (s *Service) createOutboxEntry(ctx context.Context, tx pgx.Tx, transaction *credit.Transaction) error {
	message, err := outbox.NewMessage(transaction)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}
	return s.outboxRepo.WithTx(tx).Create(ctx, message)
}

// resolveDuplicate turns a unique-index violation on the idempotency key
// into the original transaction. This only triggers when two deliveries of
// the same key race on different connections: the loser's transaction rolls
// back, and the winner's committed row is visible outside it.
func (s *Service) resolveDuplicate(ctx context.Context, err error, idempotencyKey string) *credit.Transaction {
	if idempotencyKey == "" || !errors.Is(err, credit.ErrDuplicateIdempotencyKey{}) {
		return nil
	}
	existing, lookupErr := s.transactions.GetByIdempotencyKey(ctx, idempotencyKey)
	if lookupErr != nil {
		s.logger.Error("Failed to look up original transaction after duplicate key",
			"idempotency_key", idempotencyKey,
			"error", lookupErr,
		)
		return nil
	}
	return existing
}
