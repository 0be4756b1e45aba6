package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/ledger"
	"github.com/grantpilot-credit-ledger/internal/pricing"
)

// CreditRequest represents a request to credit an account: either a tier
// purchase (tier_id) or a custom top-up (amount), never both.
type CreditRequest struct {
	TierID         string           `json:"tier_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	IdempotencyKey string           `json:"idempotency_key" binding:"required"`
}

// DeductionRequest represents a usage settlement request
type DeductionRequest struct {
	ActualCost         decimal.Decimal   `json:"actual_cost" binding:"required"`
	Description        string            `json:"description" binding:"required"`
	RelatedOperationID string            `json:"related_operation_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// RefundRequest represents a request to credit an account back
type RefundRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Reason         string          `json:"reason" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// EstimateRequest carries the usage descriptor for a cost preview
type EstimateRequest struct {
	LLMInputTokens  int64 `json:"llm_input_tokens" binding:"min=0"`
	LLMOutputTokens int64 `json:"llm_output_tokens" binding:"min=0"`
	EmbeddingTokens int64 `json:"embedding_tokens" binding:"min=0"`
	ScrapePages     int64 `json:"scrape_pages" binding:"min=0"`
}

// BalanceResponse represents an account balance in API responses
type BalanceResponse struct {
	AccountID     string `json:"account_id"`
	Balance       string `json:"balance"`
	LifetimeSpent string `json:"lifetime_spent"`
	LifetimeAdded string `json:"lifetime_added"`
	CanUseService bool   `json:"can_use_service"`
	IsNegative    bool   `json:"is_negative"`
}

// AccessResponse represents a gate verdict in API responses
type AccessResponse struct {
	AccountID     string `json:"account_id"`
	Allowed       bool   `json:"allowed"`
	Balance       string `json:"balance"`
	Reason        string `json:"reason,omitempty"`
	ResumePayment string `json:"resume_payment"`
}

// TransactionResponse represents a ledger transaction in API responses
type TransactionResponse struct {
	TransactionID      string            `json:"transaction_id"`
	AccountID          string            `json:"account_id"`
	Type               string            `json:"type"`
	Amount             string            `json:"amount"`
	SignedAmount       string            `json:"signed_amount"`
	BalanceBefore      string            `json:"balance_before"`
	BalanceAfter       string            `json:"balance_after"`
	Description        string            `json:"description,omitempty"`
	RelatedOperationID string            `json:"related_operation_id,omitempty"`
	Tier               string            `json:"tier,omitempty"`
	ActualCost         string            `json:"actual_cost,omitempty"`
	ChargedCost        string            `json:"charged_cost,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          string            `json:"created_at"`
}

// TransactionListResponse represents a list of transactions in API responses
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// TierResponse represents one purchase tier in API responses
type TierResponse struct {
	TierID         string `json:"tier_id"`
	PaymentAmount  string `json:"payment_amount"`
	CreditedAmount string `json:"credited_amount"`
}

// EstimateResponse represents a cost preview in API responses
type EstimateResponse struct {
	ActualCost  string                  `json:"actual_cost"`
	ChargedCost string                  `json:"charged_cost"`
	Breakdown   []EstimateBreakdownLine `json:"breakdown"`
}

// EstimateBreakdownLine is one component of a cost preview
type EstimateBreakdownLine struct {
	Component string `json:"component"`
	Quantity  int64  `json:"quantity"`
	Cost      string `json:"cost"`
}

func mapBalanceToResponse(balance *ledger.Balance) BalanceResponse {
	return BalanceResponse{
		AccountID:     balance.AccountID.String(),
		Balance:       balance.Balance.String(),
		LifetimeSpent: balance.LifetimeSpent.String(),
		LifetimeAdded: balance.LifetimeAdded.String(),
		CanUseService: balance.CanUseService,
		IsNegative:    balance.IsNegative,
	}
}

func mapDecisionToResponse(decision *ledger.AccessDecision) AccessResponse {
	return AccessResponse{
		AccountID:     decision.AccountID.String(),
		Allowed:       decision.Allowed,
		Balance:       decision.Balance.String(),
		Reason:        string(decision.Reason),
		ResumePayment: decision.ResumePayment.String(),
	}
}

func mapTransactionToResponse(transaction *credit.Transaction) TransactionResponse {
	response := TransactionResponse{
		TransactionID:      transaction.ID.String(),
		AccountID:          transaction.AccountID.String(),
		Type:               string(transaction.Type),
		Amount:             transaction.Amount.String(),
		SignedAmount:       transaction.SignedAmount().String(),
		BalanceBefore:      transaction.BalanceBefore.String(),
		BalanceAfter:       transaction.BalanceAfter.String(),
		Description:        transaction.Description,
		RelatedOperationID: transaction.RelatedOperationID,
		Tier:               transaction.Metadata.Tier,
		Metadata:           transaction.Metadata.Extra,
		CreatedAt:          transaction.CreatedAt.Format(time.RFC3339),
	}
	if transaction.Metadata.ActualCost != nil {
		response.ActualCost = transaction.Metadata.ActualCost.String()
	}
	if transaction.Metadata.ChargedCost != nil {
		response.ChargedCost = transaction.Metadata.ChargedCost.String()
	}
	return response
}

func mapEstimateToResponse(estimate pricing.CostEstimate) EstimateResponse {
	response := EstimateResponse{
		ActualCost:  estimate.ActualCost.String(),
		ChargedCost: estimate.ChargedCost.String(),
		Breakdown:   make([]EstimateBreakdownLine, 0, len(estimate.Breakdown)),
	}
	for _, line := range estimate.Breakdown {
		response.Breakdown = append(response.Breakdown, EstimateBreakdownLine{
			Component: line.Component,
			Quantity:  line.Quantity,
			Cost:      line.Cost.String(),
		})
	}
	return response
}
