package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grantpilot-credit-ledger/internal/api"
	"github.com/grantpilot-credit-ledger/internal/config"
	"github.com/grantpilot-credit-ledger/internal/data/postgres"
	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/ledger"
	"github.com/grantpilot-credit-ledger/internal/logger"
	"github.com/grantpilot-credit-ledger/internal/platform/persistence"
	"github.com/grantpilot-credit-ledger/internal/pricing"
)

func main() {
	// Root context, canceled on shutdown
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api")
	if err != nil {
		// logger does not exist yet at this point
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// Postgres runs migrations on startup
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	accountRepo := postgres.NewAccountRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	// Build the tier catalog and the pricing estimator from configuration
	catalog, err := credit.ParseTierTable(cfg.Pricing.TierTable)
	if err != nil {
		log.Error("Invalid tier table", "error", err)
		os.Exit(1)
	}
	estimator, err := pricing.NewEstimator(pricing.Rates{
		LLMInputPer1K:  cfg.Pricing.LLMInputPer1K,
		LLMOutputPer1K: cfg.Pricing.LLMOutputPer1K,
		EmbeddingPer1K: cfg.Pricing.EmbeddingPer1K,
		ScrapePerPage:  cfg.Pricing.ScrapePerPage,
	}, cfg.Pricing.MarkupMultiplier)
	if err != nil {
		log.Error("Invalid pricing rates", "error", err)
		os.Exit(1)
	}

	// Initialize the ledger service
	ledgerService, err := ledger.NewService(log, postgresDB, accountRepo, transactionRepo, outboxRepo, ledger.Config{
		MarkupMultiplier: cfg.Pricing.MarkupMultiplier,
		MinimumTopUp:     cfg.Pricing.MinimumTopUp,
		Catalog:          catalog,
	})
	if err != nil {
		log.Error("Failed to initialize ledger service", "error", err)
		os.Exit(1)
	}

	// Initialize REST server
	server := api.NewServer(log, cfg, ledgerService, estimator)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Block until a signal arrives or a component dies
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	postgresDB.Close()

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
