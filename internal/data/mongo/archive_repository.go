// Package mongo provides the MongoDB transaction archive. Published ledger
// transactions are mirrored into a long-lived collection that serves audit
// and reporting reads without touching the primary store. History is never
// deleted.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
)

const (
	// ArchiveCollectionName is the name of the transaction archive collection
	ArchiveCollectionName = "credit_transactions"
)

// archivedTransaction is the BSON shape of an archived ledger transaction.
// Decimal amounts are stored as strings so no precision is lost in transit.
type archivedTransaction struct {
	ID                 uuid.UUID         `bson:"id"`
	AccountID          uuid.UUID         `bson:"account_id"`
	Type               string            `bson:"type"`
	Amount             string            `bson:"amount"`
	BalanceBefore      string            `bson:"balance_before"`
	BalanceAfter       string            `bson:"balance_after"`
	Description        string            `bson:"description"`
	RelatedOperationID string            `bson:"related_operation_id,omitempty"`
	IdempotencyKey     string            `bson:"idempotency_key,omitempty"`
	MetadataTier       string            `bson:"metadata_tier,omitempty"`
	MetadataActual     string            `bson:"metadata_actual_cost,omitempty"`
	MetadataCharged    string            `bson:"metadata_charged_cost,omitempty"`
	MetadataMarkup     string            `bson:"metadata_markup,omitempty"`
	MetadataExtra      map[string]string `bson:"metadata_extra,omitempty"`
	CreatedAt          time.Time         `bson:"created_at"`
}

func toArchived(t *credit.Transaction) *archivedTransaction {
	doc := &archivedTransaction{
		ID:                 t.ID,
		AccountID:          t.AccountID,
		Type:               string(t.Type),
		Amount:             t.Amount.String(),
		BalanceBefore:      t.BalanceBefore.String(),
		BalanceAfter:       t.BalanceAfter.String(),
		Description:        t.Description,
		RelatedOperationID: t.RelatedOperationID,
		IdempotencyKey:     t.IdempotencyKey,
		MetadataTier:       t.Metadata.Tier,
		MetadataExtra:      t.Metadata.Extra,
		CreatedAt:          t.CreatedAt,
	}
	if t.Metadata.ActualCost != nil {
		doc.MetadataActual = t.Metadata.ActualCost.String()
	}
	if t.Metadata.ChargedCost != nil {
		doc.MetadataCharged = t.Metadata.ChargedCost.String()
	}
	if t.Metadata.Markup != nil {
		doc.MetadataMarkup = t.Metadata.Markup.String()
	}
	return doc
}

func (d *archivedTransaction) toTransaction() (*credit.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid archived amount %q: %w", d.Amount, err)
	}
	balanceBefore, err := decimal.NewFromString(d.BalanceBefore)
	if err != nil {
		return nil, fmt.Errorf("invalid archived balance_before %q: %w", d.BalanceBefore, err)
	}
	balanceAfter, err := decimal.NewFromString(d.BalanceAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid archived balance_after %q: %w", d.BalanceAfter, err)
	}

	transaction := &credit.Transaction{
		ID:                 d.ID,
		AccountID:          d.AccountID,
		Type:               credit.TransactionType(d.Type),
		Amount:             amount,
		BalanceBefore:      balanceBefore,
		BalanceAfter:       balanceAfter,
		Description:        d.Description,
		RelatedOperationID: d.RelatedOperationID,
		IdempotencyKey:     d.IdempotencyKey,
		Metadata: credit.Metadata{
			Tier:  d.MetadataTier,
			Extra: d.MetadataExtra,
		},
		CreatedAt: d.CreatedAt,
	}
	if d.MetadataActual != "" {
		actual, err := decimal.NewFromString(d.MetadataActual)
		if err != nil {
			return nil, fmt.Errorf("invalid archived actual cost %q: %w", d.MetadataActual, err)
		}
		transaction.Metadata.ActualCost = &actual
	}
	if d.MetadataCharged != "" {
		charged, err := decimal.NewFromString(d.MetadataCharged)
		if err != nil {
			return nil, fmt.Errorf("invalid archived charged cost %q: %w", d.MetadataCharged, err)
		}
		transaction.Metadata.ChargedCost = &charged
	}
	if d.MetadataMarkup != "" {
		markup, err := decimal.NewFromString(d.MetadataMarkup)
		if err != nil {
			return nil, fmt.Errorf("invalid archived markup %q: %w", d.MetadataMarkup, err)
		}
		transaction.Metadata.Markup = &markup
	}

	return transaction, nil
}

// ArchiveRepository mirrors committed ledger transactions into MongoDB.
// Writes are duplicate-tolerant because the ledger topic is consumed
// at-least-once.
type ArchiveRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewArchiveRepository creates a new MongoDB archive repository
func NewArchiveRepository(logger *slog.Logger, db *mongo.Database) *ArchiveRepository {
	return &ArchiveRepository{
		db:     db,
		logger: logger,
	}
}

// Archive stores a copy of a published ledger transaction. Re-archiving the
// same transaction is a no-op.
func (r *ArchiveRepository) Archive(ctx context.Context, transaction *credit.Transaction) error {
	collection := r.db.Collection(ArchiveCollectionName)

	existing, err := r.GetByTransactionID(ctx, transaction.ID)
	if err != nil && !errors.Is(err, credit.ErrTransactionNotFound{}) {
		r.logger.Error("Failed to check for existing archived transaction",
			"transaction_id", transaction.ID.String(),
			"error", err)
		return fmt.Errorf("failed to check for existing archived transaction: %w", err)
	}

	if existing != nil {
		r.logger.Debug("Transaction already archived", "transaction_id", transaction.ID.String())
		return nil
	}

	_, err = collection.InsertOne(ctx, toArchived(transaction))
	if err != nil {
		r.logger.Error("Failed to archive transaction",
			"transaction_id", transaction.ID.String(),
			"error", err)
		return fmt.Errorf("failed to archive transaction: %w", err)
	}

	return nil
}

// GetByTransactionID retrieves an archived transaction by its ledger ID.
// Returns ErrTransactionNotFound if it has not been archived.
func (r *ArchiveRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*credit.Transaction, error) {
	collection := r.db.Collection(ArchiveCollectionName)

	filter := bson.M{"id": transactionID}
	var doc archivedTransaction
	err := collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, credit.ErrTransactionNotFound{TransactionID: transactionID}
		}
		r.logger.Error("Failed to get archived transaction",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get archived transaction: %w", err)
	}

	return doc.toTransaction()
}

// ListByAccountID returns archived transactions for an account, newest first
func (r *ArchiveRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int64) ([]*credit.Transaction, error) {
	collection := r.db.Collection(ArchiveCollectionName)

	filter := bson.M{"account_id": accountID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list archived transactions",
			"account_id", accountID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list archived transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []*credit.Transaction
	for cursor.Next(ctx) {
		var doc archivedTransaction
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode archived transaction: %w", err)
		}
		transaction, err := doc.toTransaction()
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	if err := cursor.Err(); err != nil {
		r.logger.Error("Failed to iterate archived transactions",
			"account_id", accountID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to iterate archived transactions: %w", err)
	}

	return transactions, nil
}

// EnsureIndexes creates the archive collection indexes: account history
// lookups and a uniqueness guard on the ledger transaction id.
func (r *ArchiveRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(ArchiveCollectionName)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create archive indexes: %w", err)
	}

	return nil
}
