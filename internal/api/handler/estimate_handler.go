package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/grantpilot-credit-ledger/internal/pricing"
)

// EstimateHandler serves cost previews. Estimates never touch the ledger.
type EstimateHandler struct {
	estimator *pricing.Estimator
	logger    *slog.Logger
}

// NewEstimateHandler creates a new estimate handler
func NewEstimateHandler(logger *slog.Logger, estimator *pricing.Estimator) *EstimateHandler {
	return &EstimateHandler{
		estimator: estimator,
		logger:    logger,
	}
}

// Estimate prices a usage descriptor at the current rates and markup.
func (h *EstimateHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	estimate := h.estimator.Estimate(pricing.UsageDescriptor{
		LLMInputTokens:  req.LLMInputTokens,
		LLMOutputTokens: req.LLMOutputTokens,
		EmbeddingTokens: req.EmbeddingTokens,
		ScrapePages:     req.ScrapePages,
	})

	RespondOK(c, mapEstimateToResponse(estimate))
}
