package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
)

// CreditHandler serves the mutation side: tier purchases, custom top-ups,
// usage deductions and refunds. Mutations respond 200 with the ledger
// transaction; a replayed idempotency key returns the original transaction
// with the same status, so retries are indistinguishable from first calls.
type CreditHandler struct {
	ledgerService LedgerService
	logger        *slog.Logger
}

// NewCreditHandler creates a new credit handler
func NewCreditHandler(logger *slog.Logger, ledgerService LedgerService) *CreditHandler {
	return &CreditHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// Credit applies a tier purchase or a custom top-up.
func (h *CreditHandler) Credit(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if (req.TierID == "") == (req.Amount == nil) {
		RespondBadRequest(c, "Provide exactly one of tier_id or amount")
		return
	}

	var transaction *credit.Transaction
	var err error
	if req.TierID != "" {
		transaction, err = h.ledgerService.AddTierCredits(c.Request.Context(), accountID, req.TierID, req.IdempotencyKey)
	} else {
		transaction, err = h.ledgerService.TopUp(c.Request.Context(), accountID, *req.Amount, req.IdempotencyKey)
	}
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(transaction))
}

// Deduct settles a completed metered operation against the balance.
func (h *CreditHandler) Deduct(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req DeductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	transaction, err := h.ledgerService.DeductForUsage(
		c.Request.Context(), accountID, req.ActualCost, req.Description, req.RelatedOperationID, req.Metadata,
	)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(transaction))
}

// Refund credits an account back without altering lifetime spend.
func (h *CreditHandler) Refund(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	transaction, err := h.ledgerService.Refund(
		c.Request.Context(), accountID, req.Amount, req.Reason, req.IdempotencyKey,
	)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(transaction))
}
