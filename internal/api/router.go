package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grantpilot-credit-ledger/internal/api/handler"
	"github.com/grantpilot-credit-ledger/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	accountHandler *handler.AccountHandler,
	creditHandler *handler.CreditHandler,
	estimateHandler *handler.EstimateHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		accounts := v1.Group("/accounts")
		{
			accounts.GET("/:id/balance", accountHandler.GetBalance)
			accounts.GET("/:id/access", accountHandler.GetAccess)
			accounts.GET("/:id/transactions", accountHandler.GetTransactions)
			accounts.POST("/:id/credits", creditHandler.Credit)
			accounts.POST("/:id/deductions", creditHandler.Deduct)
			accounts.POST("/:id/refunds", creditHandler.Refund)
		}

		v1.GET("/tiers", accountHandler.GetTiers)
		v1.POST("/estimates", estimateHandler.Estimate)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
