package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grantpilot-credit-ledger/internal/config"
	"github.com/grantpilot-credit-ledger/internal/data/mongo"
	"github.com/grantpilot-credit-ledger/internal/data/postgres"
	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/ledger"
	"github.com/grantpilot-credit-ledger/internal/logger"
	"github.com/grantpilot-credit-ledger/internal/platform/messaging/consumers"
	"github.com/grantpilot-credit-ledger/internal/platform/messaging/producers"
	"github.com/grantpilot-credit-ledger/internal/platform/persistence"
	"github.com/grantpilot-credit-ledger/internal/reconciler/archiver"
	"github.com/grantpilot-credit-ledger/internal/reconciler/consumer"
	"github.com/grantpilot-credit-ledger/internal/reconciler/outbox_poller"
	"github.com/grantpilot-credit-ledger/internal/reconciler/service"
)

func main() {
	// Root context, canceled on shutdown
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("reconciler")
	if err != nil {
		// logger does not exist yet at this point
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Reconciler",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Postgres runs migrations on startup; Mongo holds the archive
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	accountRepo := postgres.NewAccountRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	archiveRepo := mongo.NewArchiveRepository(log, mongoDB.Database())
	if err := archiveRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure archive indexes", "error", err)
		os.Exit(1)
	}

	// Build the tier catalog from configuration
	catalog, err := credit.ParseTierTable(cfg.Pricing.TierTable)
	if err != nil {
		log.Error("Invalid tier table", "error", err)
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

	// Initialize Kafka consumers: payment confirmations and the archiver
	paymentConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.PaymentsTopic, cfg.Kafka.ConsumerGroup)
	archiveConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.LedgerTopic, cfg.Kafka.ArchiverGroup)

	// Initialize Kafka producers
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer is nil if DLQTopic is not configured. Handler is nil-safe.

	ledgerProducer, err := producers.NewLedgerEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger event producer", "error", err)
		os.Exit(1)
	}

	// Initialize the confirmation processing chain: ledger -> base service
	// -> worker pool -> Kafka handler
	baseProcessor := service.NewReconciliationService(log, ledgerService)
	poolProcessor, err := service.NewWorkerPoolProcessor(baseProcessor, service.WorkerPoolConfig{
		Size: cfg.WorkerPool.Size,
	}, log)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}
	confirmationHandler := consumer.NewConfirmationHandler(log, poolProcessor, dlqProducer)

	// Initialize the outbox poller and the archiver
	eventPublisher := outbox_poller.NewEventPublisher(outboxRepo, ledgerProducer, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, eventPublisher, log)
	transactionArchiver := archiver.New(log, archiveRepo)

	errChan := make(chan error, 2)

	var wg sync.WaitGroup

	// Start the payment confirmation consumer
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting payment confirmation consumer",
			"topic", cfg.Kafka.PaymentsTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := paymentConsumer.Subscribe(appCtx, cfg.Kafka.PaymentsTopic, cfg.Kafka.ConsumerGroup, confirmationHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("payment consumer error: %w", err)
		}
	}()

	// Start the archiver consumer
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting ledger archiver consumer",
			"topic", cfg.Kafka.LedgerTopic,
			"group", cfg.Kafka.ArchiverGroup,
		)
		if err := archiveConsumer.Subscribe(appCtx, cfg.Kafka.LedgerTopic, cfg.Kafka.ArchiverGroup, transactionArchiver.HandleMessage); err != nil {
			errChan <- fmt.Errorf("archiver consumer error: %w", err)
		}
	}()

	// Start the outbox poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting outbox poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Block until a signal arrives or a component dies
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	// Shut down the worker pool
	poolProcessor.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close Kafka producers and consumers
	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}
	if err = ledgerProducer.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
	}
	if err = paymentConsumer.Close(); err != nil {
		log.Error("Error closing payment consumer", "error", err)
	}
	if err = archiveConsumer.Close(); err != nil {
		log.Error("Error closing archiver consumer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Payment Reconciler shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Payment Reconciler shutdown completed with errors")
	} else {
		log.Info("Payment Reconciler shutdown completed successfully")
	}
}
