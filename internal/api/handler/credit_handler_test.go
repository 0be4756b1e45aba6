package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
)

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestCreditHandler_Credit(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	accountID := uuid.New()

	newRouter := func(mockService *MockLedgerService) http.Handler {
		h := NewCreditHandler(logger, mockService)
		router := setupTestRouter()
		router.POST("/api/v1/accounts/:id/credits", h.Credit)
		return router
	}

	t.Run("TierPurchase", func(t *testing.T) {
		mockService := new(MockLedgerService)
		transaction := credit.NewTransaction(accountID, credit.TransactionTypeDeposit, decimal.RequireFromString("22"), decimal.Zero, "Tier purchase tier_2")
		mockService.On("AddTierCredits", mock.Anything, accountID, "tier_2", "key-1").Return(transaction, nil).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/credits",
			`{"tier_id":"tier_2","idempotency_key":"key-1"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
		mockService.AssertNotCalled(t, "TopUp")
	})

	t.Run("CustomTopUp", func(t *testing.T) {
		mockService := new(MockLedgerService)
		transaction := credit.NewTransaction(accountID, credit.TransactionTypeDeposit, decimal.RequireFromString("25"), decimal.Zero, "Top-up of 25 credits")
		mockService.On("TopUp", mock.Anything, accountID, mock.MatchedBy(func(amount decimal.Decimal) bool {
			return amount.Equal(decimal.RequireFromString("25"))
		}), "key-2").Return(transaction, nil).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/credits",
			`{"amount":"25","idempotency_key":"key-2"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("BothTierAndAmountRejected", func(t *testing.T) {
		mockService := new(MockLedgerService)

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/credits",
			`{"tier_id":"tier_1","amount":"10","idempotency_key":"key-3"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "AddTierCredits")
		mockService.AssertNotCalled(t, "TopUp")
	})

	t.Run("NeitherTierNorAmountRejected", func(t *testing.T) {
		mockService := new(MockLedgerService)

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/credits",
			`{"idempotency_key":"key-4"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("MissingIdempotencyKey", func(t *testing.T) {
		mockService := new(MockLedgerService)

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/credits",
			`{"tier_id":"tier_1"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownTier", func(t *testing.T) {
		mockService := new(MockLedgerService)
		mockService.On("AddTierCredits", mock.Anything, accountID, "tier_99", "key-5").
			Return(nil, credit.ErrUnknownTier{TierID: "tier_99"}).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/credits",
			`{"tier_id":"tier_99","idempotency_key":"key-5"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreditHandler_Deduct(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	accountID := uuid.New()

	newRouter := func(mockService *MockLedgerService) http.Handler {
		h := NewCreditHandler(logger, mockService)
		router := setupTestRouter()
		router.POST("/api/v1/accounts/:id/deductions", h.Deduct)
		return router
	}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockLedgerService)
		transaction := credit.NewTransaction(accountID, credit.TransactionTypeDeduction, decimal.RequireFromString("1.5"), decimal.RequireFromString("10"), "grant search")
		mockService.On("DeductForUsage", mock.Anything, accountID, mock.MatchedBy(func(cost decimal.Decimal) bool {
			return cost.Equal(decimal.RequireFromString("1.00"))
		}), "grant search", "op-1", map[string]string{"model": "large"}).Return(transaction, nil).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/deductions",
			`{"actual_cost":"1.00","description":"grant search","related_operation_id":"op-1","metadata":{"model":"large"}}`)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		mockService := new(MockLedgerService)
		mockService.On("DeductForUsage", mock.Anything, accountID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, credit.ErrAccountNotFound{AccountID: accountID}).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/deductions",
			`{"actual_cost":"1","description":"usage"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("MissingDescription", func(t *testing.T) {
		mockService := new(MockLedgerService)

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/deductions",
			`{"actual_cost":"1"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "DeductForUsage")
	})
}

func TestCreditHandler_Refund(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	accountID := uuid.New()

	newRouter := func(mockService *MockLedgerService) http.Handler {
		h := NewCreditHandler(logger, mockService)
		router := setupTestRouter()
		router.POST("/api/v1/accounts/:id/refunds", h.Refund)
		return router
	}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockLedgerService)
		transaction := credit.NewTransaction(accountID, credit.TransactionTypeRefund, decimal.RequireFromString("3"), decimal.RequireFromString("7"), "operation failed")
		mockService.On("Refund", mock.Anything, accountID, mock.MatchedBy(func(amount decimal.Decimal) bool {
			return amount.Equal(decimal.RequireFromString("3"))
		}), "operation failed", "").Return(transaction, nil).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/refunds",
			`{"amount":"3","reason":"operation failed"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		mockService := new(MockLedgerService)
		mockService.On("Refund", mock.Anything, accountID, mock.Anything, "reason", "").
			Return(nil, credit.ErrInvalidAmount).Once()

		w := postJSON(newRouter(mockService), "/api/v1/accounts/"+accountID.String()+"/refunds",
			`{"amount":"-1","reason":"reason"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
