package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/ledger"
)

// LedgerService is the slice of the credit ledger the HTTP handlers use.
type LedgerService interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error)
	CanUseService(ctx context.Context, accountID uuid.UUID) (*ledger.AccessDecision, error)
	Transactions(ctx context.Context, accountID uuid.UUID, limit int) ([]*credit.Transaction, error)
	AddTierCredits(ctx context.Context, accountID uuid.UUID, tierID, idempotencyKey string) (*credit.Transaction, error)
	TopUp(ctx context.Context, accountID uuid.UUID, paymentAmount decimal.Decimal, idempotencyKey string) (*credit.Transaction, error)
	DeductForUsage(ctx context.Context, accountID uuid.UUID, actualCost decimal.Decimal, description, relatedOperationID string, extra map[string]string) (*credit.Transaction, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reason, idempotencyKey string) (*credit.Transaction, error)
	Catalog() *credit.TierCatalog
}

// AccountHandler serves the read side: balances, gate verdicts, transaction
// history and the tier schedule.
type AccountHandler struct {
	ledgerService LedgerService
	logger        *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, ledgerService LedgerService) *AccountHandler {
	return &AccountHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// GetBalance returns the account's balance view, creating the account at
// zero on first sight.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("Failed to get balance", "account_id", accountID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapBalanceToResponse(balance))
}

// GetAccess returns the gate verdict and, when blocked, the payment that
// restores access.
func (h *AccountHandler) GetAccess(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	decision, err := h.ledgerService.CanUseService(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("Failed to evaluate access", "account_id", accountID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapDecisionToResponse(decision))
}

// GetTransactions returns the account's ledger history, newest first.
func (h *AccountHandler) GetTransactions(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			RespondBadRequest(c, "Invalid limit")
			return
		}
		limit = parsed
	}

	transactions, err := h.ledgerService.Transactions(c.Request.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("Failed to list transactions", "account_id", accountID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	response := TransactionListResponse{Transactions: make([]TransactionResponse, 0, len(transactions))}
	for _, transaction := range transactions {
		response.Transactions = append(response.Transactions, mapTransactionToResponse(transaction))
	}
	RespondOK(c, response)
}

// GetTiers lists the purchase tiers, cheapest first.
func (h *AccountHandler) GetTiers(c *gin.Context) {
	tiers := h.ledgerService.Catalog().List()
	response := make([]TierResponse, 0, len(tiers))
	for _, tier := range tiers {
		response = append(response, TierResponse{
			TierID:         tier.TierID,
			PaymentAmount:  tier.PaymentAmount.String(),
			CreditedAmount: tier.CreditedAmount.String(),
		})
	}
	RespondOK(c, response)
}

func parseAccountID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return uuid.Nil, false
	}
	return id, true
}

func respondLedgerError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, credit.ErrAccountNotFound{}):
		RespondNotFound(c, "Account not found")
	case errors.Is(err, credit.ErrUnknownTier{}):
		RespondBadRequest(c, "Unknown tier")
	case errors.Is(err, credit.ErrInvalidAmount):
		RespondBadRequest(c, err.Error())
	default:
		logger.Error("Ledger operation failed", "error", err)
		RespondInternalError(c)
	}
}
