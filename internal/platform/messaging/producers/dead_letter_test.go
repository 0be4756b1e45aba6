package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKafkaWriter is shared across package test files - defined in ledger_events_test.go

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dlqTopic := "test-dlq-topic"
	ctx := context.Background()

	t.Run("ParksConfirmationWithFailureContext", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   logger,
			writer:   mockWriter,
			dlqTopic: dlqTopic,
		}

		key := "pay_failed_1"
		confirmation := []byte(`{"account_id":"not-a-uuid"}`)
		reason := "malformed confirmation payload"

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			msg := msgs[0]
			if string(msg.Key) != key {
				return false
			}
			var record map[string]string
			if err := json.Unmarshal(msg.Value, &record); err != nil {
				return false
			}
			return record["confirmation_key"] == key &&
				record["confirmation_payload"] == string(confirmation) &&
				record["failure_reason"] == reason &&
				record["parked_at"] != ""
		})).Return(nil).Once()

		err := producer.PublishToDLQ(ctx, key, confirmation, reason)
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterErrorSurfaces", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   logger,
			writer:   mockWriter,
			dlqTopic: dlqTopic,
		}

		writerError := errors.New("kafka DLQ write error")
		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.PublishToDLQ(ctx, "pay_fail", []byte("payload"), "unknown account")
		require.Error(t, err)
		assert.True(t, errors.Is(err, writerError) || strings.Contains(err.Error(), writerError.Error()))
		mockWriter.AssertExpectations(t)
	})

	t.Run("NilProducerRejectsPark", func(t *testing.T) {
		var producer *DLQProducer

		err := producer.PublishToDLQ(ctx, "some-key", []byte("payload"), "dlq disabled")
		require.Error(t, err)
		assert.Equal(t, "DLQ producer not initialized", err.Error())
	})

	t.Run("NilWriterRejectsPark", func(t *testing.T) {
		producer := &DLQProducer{
			logger:   logger,
			writer:   nil,
			dlqTopic: dlqTopic,
		}

		err := producer.PublishToDLQ(ctx, "some-key", []byte("payload"), "dlq disabled")
		require.Error(t, err)
		assert.Equal(t, "DLQ producer not initialized", err.Error())
	})
}

func TestDLQProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	dlqTopic := "test-dlq-topic-close"

	t.Run("SuccessfulClose", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   logger,
			writer:   mockWriter,
			dlqTopic: dlqTopic,
		}
		mockWriter.On("Close").Return(nil).Once()
		err := producer.Close()
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("CloseReturnsErrorOnWriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   logger,
			writer:   mockWriter,
			dlqTopic: dlqTopic,
		}
		closeError := errors.New("kafka DLQ close error")
		mockWriter.On("Close").Return(closeError).Once()
		err := producer.Close()
		require.Error(t, err)
		assert.True(t, errors.Is(err, closeError) || strings.Contains(err.Error(), closeError.Error()))
		mockWriter.AssertExpectations(t)
	})

	t.Run("NilProducerCloseIsNoOp", func(t *testing.T) {
		var producer *DLQProducer
		require.NoError(t, producer.Close())
	})
}
