package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestLedgerEventProducer_Publish(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &LedgerEventProducer{logger: logger, writer: mockWriter, topic: "ledger_transactions"}

		payload := map[string]string{"transaction_id": "abc"}
		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != "account-1" {
				return false
			}
			var decoded map[string]string
			require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
			return decoded["transaction_id"] == "abc"
		})).Return(nil).Once()

		err := producer.Publish(ctx, "account-1", payload)
		assert.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriteFailure", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &LedgerEventProducer{logger: logger, writer: mockWriter, topic: "ledger_transactions"}

		mockWriter.On("WriteMessages", ctx, mock.Anything).Return(errors.New("broker unavailable")).Once()

		err := producer.Publish(ctx, "account-1", map[string]string{})
		assert.Error(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("UnmarshalableValue", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &LedgerEventProducer{logger: logger, writer: mockWriter, topic: "ledger_transactions"}

		err := producer.Publish(ctx, "account-1", make(chan int))
		assert.Error(t, err)
		mockWriter.AssertNotCalled(t, "WriteMessages")
	})
}

func TestLedgerEventProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mockWriter := new(MockKafkaWriter)
	producer := &LedgerEventProducer{logger: logger, writer: mockWriter, topic: "ledger_transactions"}

	mockWriter.On("Close").Return(nil).Once()
	assert.NoError(t, producer.Close())
	mockWriter.AssertExpectations(t)
}
