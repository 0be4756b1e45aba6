package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/grantpilot-credit-ledger/internal/domain/credit"
)

// Status defines message publishing states
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusProcessed       Status = "PROCESSED"
	StatusFailedToPublish Status = "FAILED_TO_PUBLISH"
)

// Message stores a committed ledger transaction for reliable publishing.
// A row is written in the same database transaction as the ledger
// transaction itself, so publishing can never observe an uncommitted write.
type Message struct {
	ID            int64           `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}

func NewMessage(transaction *credit.Transaction) (*Message, error) {
	payload, err := json.Marshal(transaction)
	if err != nil {
		return nil, err
	}

	return &Message{
		TransactionID: transaction.ID,
		AccountID:     transaction.AccountID,
		Payload:       payload,
		Status:        StatusPending,
		Attempts:      0,
		CreatedAt:     time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = StatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = StatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetTransaction extracts the ledger transaction from the payload
func (m *Message) GetTransaction() (*credit.Transaction, error) {
	var transaction credit.Transaction
	if err := json.Unmarshal(m.Payload, &transaction); err != nil {
		return nil, err
	}
	return &transaction, nil
}
