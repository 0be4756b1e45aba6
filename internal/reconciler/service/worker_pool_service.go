package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/grantpilot-credit-ledger/internal/domain/payment"
)

// WorkerPoolProcessor fans confirmations out over an ants pool. The row
// lock inside the ledger serializes same-account confirmations, so the pool
// buys parallelism across accounts without weakening per-account ordering.
type WorkerPoolProcessor struct {
	baseService ConfirmationProcessor
	pool        *ants.Pool
	logger      *slog.Logger
	mu          sync.Mutex
	inflight    map[string]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessor(
	baseService ConfirmationProcessor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessor, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessor{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		inflight:    make(map[string]chan error),
	}, nil
}

// ProcessConfirmation submits the intent to the pool and waits for the
// worker's result, so the consumer's commit decision still reflects the
// actual processing outcome.
func (s *WorkerPoolProcessor) ProcessConfirmation(ctx context.Context, intent *payment.DepositIntent) error {
	s.logger.Debug("Submitting payment confirmation to worker pool",
		"account_id", intent.AccountID.String(),
		"idempotency_token", intent.Token,
	)

	resultChan := make(chan error, 1)
	token := intent.Token
	s.mu.Lock()
	s.inflight[token] = resultChan
	s.mu.Unlock()

	intentCopy := *intent

	err := s.pool.Submit(func() {
		err := s.baseService.ProcessConfirmation(ctx, &intentCopy)

		resultChan <- err

		s.mu.Lock()
		delete(s.inflight, token)
		close(resultChan)
		s.mu.Unlock()
	})
	if err != nil {
		s.mu.Lock()
		delete(s.inflight, token)
		close(resultChan)
		s.mu.Unlock()

		s.logger.Error("Failed to submit confirmation to worker pool",
			"idempotency_token", token,
			"error", err,
		)
		return err
	}

	return <-resultChan
}

// Shutdown gracefully releases the worker pool.
func (s *WorkerPoolProcessor) Shutdown() {
	s.logger.Info("Shutting down reconciler worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessor) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessor) Capacity() int {
	return s.pool.Cap()
}
