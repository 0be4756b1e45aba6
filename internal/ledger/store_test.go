package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/grantpilot-credit-ledger/internal/domain/outbox"
)

// memDB is an in-memory stand-in for Postgres used by the service tests. It
// emulates the two properties the service relies on: SELECT ... FOR UPDATE
// row locks held until the end of the transaction, and the unique index on
// idempotency_key. Writes apply directly; the tests only drive paths where
// a failed transaction performs no writes before the failure.
type memDB struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*credit.Account
	transactions []*credit.Transaction
	byID         map[uuid.UUID]*credit.Transaction
	byKey        map[string]*credit.Transaction
	outboxSeq    int64
	outboxRows   []*outbox.Message
	rowLocks     map[uuid.UUID]*sync.Mutex
}

func newMemDB() *memDB {
	return &memDB{
		accounts: make(map[uuid.UUID]*credit.Account),
		byID:     make(map[uuid.UUID]*credit.Transaction),
		byKey:    make(map[string]*credit.Transaction),
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (d *memDB) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	tx := &memTx{db: d}
	err := fn(tx)
	tx.releaseLocks()
	return err
}

func (d *memDB) rowLock(accountID uuid.UUID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.rowLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		d.rowLocks[accountID] = lock
	}
	return lock
}

// memTx carries the row locks acquired during one transaction. The embedded
// nil pgx.Tx satisfies the interface; none of its methods are called.
type memTx struct {
	pgx.Tx
	db   *memDB
	mu   sync.Mutex
	held []*sync.Mutex
}

func (t *memTx) acquire(lock *sync.Mutex) {
	lock.Lock()
	t.mu.Lock()
	t.held = append(t.held, lock)
	t.mu.Unlock()
}

func (t *memTx) releaseLocks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

type memAccountRepo struct {
	db *memDB
	tx *memTx
}

func (r *memAccountRepo) WithTx(tx pgx.Tx) credit.AccountRepository {
	return &memAccountRepo{db: r.db, tx: tx.(*memTx)}
}

func (r *memAccountRepo) EnsureExists(_ context.Context, accountID uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.accounts[accountID]; !ok {
		r.db.accounts[accountID] = credit.NewAccount(accountID)
	}
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, accountID uuid.UUID) (*credit.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	acc, ok := r.db.accounts[accountID]
	if !ok {
		return nil, credit.ErrAccountNotFound{AccountID: accountID}
	}
	cp := *acc
	return &cp, nil
}

func (r *memAccountRepo) LockForUpdate(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	if r.tx != nil {
		r.tx.acquire(r.db.rowLock(accountID))
	}
	return r.GetByID(ctx, accountID)
}

func (r *memAccountRepo) UpdateBalances(_ context.Context, account *credit.Account) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.accounts[account.AccountID]; !ok {
		return credit.ErrAccountNotFound{AccountID: account.AccountID}
	}
	cp := *account
	r.db.accounts[account.AccountID] = &cp
	return nil
}

type memTransactionRepo struct {
	db *memDB
}

func (r *memTransactionRepo) WithTx(_ pgx.Tx) credit.TransactionRepository {
	return r
}

func (r *memTransactionRepo) Create(_ context.Context, transaction *credit.Transaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if transaction.IdempotencyKey != "" {
		if _, ok := r.db.byKey[transaction.IdempotencyKey]; ok {
			return credit.ErrDuplicateIdempotencyKey{IdempotencyKey: transaction.IdempotencyKey}
		}
	}
	cp := *transaction
	r.db.transactions = append(r.db.transactions, &cp)
	r.db.byID[cp.ID] = &cp
	if cp.IdempotencyKey != "" {
		r.db.byKey[cp.IdempotencyKey] = &cp
	}
	return nil
}

func (r *memTransactionRepo) GetByID(_ context.Context, transactionID uuid.UUID) (*credit.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	transaction, ok := r.db.byID[transactionID]
	if !ok {
		return nil, credit.ErrTransactionNotFound{TransactionID: transactionID}
	}
	cp := *transaction
	return &cp, nil
}

func (r *memTransactionRepo) GetByIdempotencyKey(_ context.Context, idempotencyKey string) (*credit.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	transaction, ok := r.db.byKey[idempotencyKey]
	if !ok {
		return nil, nil
	}
	cp := *transaction
	return &cp, nil
}

func (r *memTransactionRepo) ListByAccountID(_ context.Context, accountID uuid.UUID, limit int) ([]*credit.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var result []*credit.Transaction
	for i := len(r.db.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		if r.db.transactions[i].AccountID == accountID {
			cp := *r.db.transactions[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *memTransactionRepo) CountByAccountID(_ context.Context, accountID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var count int64
	for _, transaction := range r.db.transactions {
		if transaction.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

type memOutboxRepo struct {
	db *memDB
}

func (r *memOutboxRepo) WithTx(_ pgx.Tx) outbox.Repository {
	return r
}

func (r *memOutboxRepo) Create(_ context.Context, message *outbox.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.outboxSeq++
	cp := *message
	cp.ID = r.db.outboxSeq
	r.db.outboxRows = append(r.db.outboxRows, &cp)
	return nil
}

func (r *memOutboxRepo) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var result []*outbox.Message
	for _, message := range r.db.outboxRows {
		if message.Status == outbox.StatusPending && len(result) < limit {
			cp := *message
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *memOutboxRepo) UpdateStatus(_ context.Context, id int64, status outbox.Status) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, message := range r.db.outboxRows {
		if message.ID == id {
			message.Status = status
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (r *memOutboxRepo) IncrementAttempts(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, message := range r.db.outboxRows {
		if message.ID == id {
			message.IncrementAttempts()
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (r *memOutboxRepo) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, message := range r.db.outboxRows {
		if message.ID == id {
			r.db.outboxRows = append(r.db.outboxRows[:i], r.db.outboxRows[i+1:]...)
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (r *memOutboxRepo) GetByTransactionID(_ context.Context, transactionID uuid.UUID) (*outbox.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, message := range r.db.outboxRows {
		if message.TransactionID == transactionID {
			cp := *message
			return &cp, nil
		}
	}
	return nil, outbox.ErrMessageNotFound{}
}
