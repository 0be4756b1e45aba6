package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewEstimator(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		estimator, err := NewEstimator(DefaultRates(), dec("1.5"))
		require.NoError(t, err)
		require.NotNil(t, estimator)
		assert.True(t, estimator.Markup().Equal(dec("1.5")))
	})

	t.Run("NoMarkup", func(t *testing.T) {
		estimator, err := NewEstimator(DefaultRates(), dec("1"))
		require.NoError(t, err)
		require.NotNil(t, estimator)
	})

	t.Run("MarkupBelowOne", func(t *testing.T) {
		estimator, err := NewEstimator(DefaultRates(), dec("0.9"))
		assert.Error(t, err)
		assert.Nil(t, estimator)
	})
}

func TestEstimator_Charge(t *testing.T) {
	estimator, err := NewEstimator(DefaultRates(), dec("1.5"))
	require.NoError(t, err)

	t.Run("AppliesMarkup", func(t *testing.T) {
		assert.True(t, estimator.Charge(dec("1")).Equal(dec("1.5")))
	})

	t.Run("RoundsHalfUpToScale", func(t *testing.T) {
		// 0.0003 * 1.5 = 0.00045, rounds up to 0.0005
		assert.True(t, estimator.Charge(dec("0.0003")).Equal(dec("0.0005")))
	})
}

func TestEstimator_Estimate(t *testing.T) {
	estimator, err := NewEstimator(DefaultRates(), dec("1.5"))
	require.NoError(t, err)

	t.Run("FullDescriptor", func(t *testing.T) {
		estimate := estimator.Estimate(UsageDescriptor{
			LLMInputTokens:  1000,
			LLMOutputTokens: 1000,
			ScrapePages:     10,
		})

		// 1000 in * 0.003/1K + 1000 out * 0.015/1K + 10 pages * 0.01
		assert.True(t, estimate.ActualCost.Equal(dec("0.118")), "got %s", estimate.ActualCost)
		assert.True(t, estimate.ChargedCost.Equal(dec("0.177")), "got %s", estimate.ChargedCost)

		require.Len(t, estimate.Breakdown, 3)
		assert.Equal(t, ComponentLLMInput, estimate.Breakdown[0].Component)
		assert.Equal(t, int64(1000), estimate.Breakdown[0].Quantity)
		assert.True(t, estimate.Breakdown[0].Cost.Equal(dec("0.003")))
		assert.Equal(t, ComponentLLMOutput, estimate.Breakdown[1].Component)
		assert.True(t, estimate.Breakdown[1].Cost.Equal(dec("0.015")))
		assert.Equal(t, ComponentScraping, estimate.Breakdown[2].Component)
		assert.True(t, estimate.Breakdown[2].Cost.Equal(dec("0.1")))
	})

	t.Run("ZeroComponentsOmitted", func(t *testing.T) {
		estimate := estimator.Estimate(UsageDescriptor{EmbeddingTokens: 20000})

		require.Len(t, estimate.Breakdown, 1)
		assert.Equal(t, ComponentEmbeddings, estimate.Breakdown[0].Component)
		assert.True(t, estimate.ActualCost.Equal(dec("0.002")))
		assert.True(t, estimate.ChargedCost.Equal(dec("0.003")))
	})

	t.Run("ZeroUsage", func(t *testing.T) {
		estimate := estimator.Estimate(UsageDescriptor{})

		assert.True(t, estimate.ActualCost.IsZero())
		assert.True(t, estimate.ChargedCost.IsZero())
		assert.Empty(t, estimate.Breakdown)
	})

	t.Run("RoundsEachLineToLedgerScale", func(t *testing.T) {
		// 17 input tokens at 0.003/1K = 0.000051, rounds to 0.0001
		estimate := estimator.Estimate(UsageDescriptor{LLMInputTokens: 17})

		require.Len(t, estimate.Breakdown, 1)
		assert.True(t, estimate.Breakdown[0].Cost.Equal(dec("0.0001")), "got %s", estimate.Breakdown[0].Cost)
	})
}

func TestUsageDescriptor_IsZero(t *testing.T) {
	assert.True(t, UsageDescriptor{}.IsZero())
	assert.False(t, UsageDescriptor{LLMInputTokens: 1}.IsZero())
	assert.False(t, UsageDescriptor{ScrapePages: 1}.IsZero())
}
