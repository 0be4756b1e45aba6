// Package pricing computes the cost of metered external operations. The
// estimator is pure: it performs no I/O and holds no mutable state, so the
// same descriptor always yields the same estimate. Callers use it both as a
// pre-spend preview shown to the user and to settle actual cost afterwards.
package pricing

import (
	"fmt"

	"github.com/grantpilot-credit-ledger/internal/domain/credit"
	"github.com/shopspring/decimal"
)

// Usage components
const (
	ComponentLLMInput   = "llm_input_tokens"
	ComponentLLMOutput  = "llm_output_tokens"
	ComponentEmbeddings = "embedding_tokens"
	ComponentScraping   = "scrape_pages"
)

// Rates holds the provider-cost prices for each metered component.
// Token prices are per 1000 tokens, scraping is per page.
type Rates struct {
	LLMInputPer1K  decimal.Decimal
	LLMOutputPer1K decimal.Decimal
	EmbeddingPer1K decimal.Decimal
	ScrapePerPage  decimal.Decimal
}

// DefaultRates returns the stock provider-cost schedule.
func DefaultRates() Rates {
	return Rates{
		LLMInputPer1K:  decimal.RequireFromString("0.003"),
		LLMOutputPer1K: decimal.RequireFromString("0.015"),
		EmbeddingPer1K: decimal.RequireFromString("0.0001"),
		ScrapePerPage:  decimal.RequireFromString("0.01"),
	}
}

// UsageDescriptor describes one costly external operation: how many tokens
// the language-model call consumed, how many pages were scraped, and how
// many tokens were embedded. Zero-valued fields contribute nothing.
type UsageDescriptor struct {
	LLMInputTokens  int64 `json:"llm_input_tokens"`
	LLMOutputTokens int64 `json:"llm_output_tokens"`
	EmbeddingTokens int64 `json:"embedding_tokens"`
	ScrapePages     int64 `json:"scrape_pages"`
}

// IsZero reports whether the descriptor meters nothing.
func (d UsageDescriptor) IsZero() bool {
	return d.LLMInputTokens == 0 && d.LLMOutputTokens == 0 && d.EmbeddingTokens == 0 && d.ScrapePages == 0
}

// BreakdownLine is one component's contribution to an estimate.
type BreakdownLine struct {
	Component string          `json:"component"`
	Quantity  int64           `json:"quantity"`
	Cost      decimal.Decimal `json:"cost"`
}

// CostEstimate is the result of pricing a usage descriptor. ActualCost is
// the raw provider cost; ChargedCost is what the ledger will deduct after
// markup.
type CostEstimate struct {
	ActualCost  decimal.Decimal `json:"actual_cost"`
	ChargedCost decimal.Decimal `json:"charged_cost"`
	Breakdown   []BreakdownLine `json:"breakdown"`
}

// Estimator prices usage descriptors under a fixed rate schedule and markup
// multiplier.
type Estimator struct {
	rates  Rates
	markup decimal.Decimal
}

// NewEstimator creates an estimator. The markup multiplier must be at least 1.
func NewEstimator(rates Rates, markup decimal.Decimal) (*Estimator, error) {
	if markup.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("markup multiplier must be >= 1, got %s", markup)
	}
	return &Estimator{rates: rates, markup: markup}, nil
}

// Markup returns the configured markup multiplier.
func (e *Estimator) Markup() decimal.Decimal {
	return e.markup
}

// Charge converts a metered actual cost into the amount charged against the
// account, rounded to the ledger scale.
func (e *Estimator) Charge(actualCost decimal.Decimal) decimal.Decimal {
	return actualCost.Mul(e.markup).Round(credit.Scale)
}

// Estimate prices the descriptor component by component.
func (e *Estimator) Estimate(d UsageDescriptor) CostEstimate {
	perThousand := decimal.NewFromInt(1000)

	var breakdown []BreakdownLine
	actual := decimal.Zero

	addLine := func(component string, quantity int64, cost decimal.Decimal) {
		if quantity == 0 {
			return
		}
		cost = cost.Round(credit.Scale)
		breakdown = append(breakdown, BreakdownLine{Component: component, Quantity: quantity, Cost: cost})
		actual = actual.Add(cost)
	}

	addLine(ComponentLLMInput, d.LLMInputTokens,
		e.rates.LLMInputPer1K.Mul(decimal.NewFromInt(d.LLMInputTokens)).Div(perThousand))
	addLine(ComponentLLMOutput, d.LLMOutputTokens,
		e.rates.LLMOutputPer1K.Mul(decimal.NewFromInt(d.LLMOutputTokens)).Div(perThousand))
	addLine(ComponentEmbeddings, d.EmbeddingTokens,
		e.rates.EmbeddingPer1K.Mul(decimal.NewFromInt(d.EmbeddingTokens)).Div(perThousand))
	addLine(ComponentScraping, d.ScrapePages,
		e.rates.ScrapePerPage.Mul(decimal.NewFromInt(d.ScrapePages)))

	return CostEstimate{
		ActualCost:  actual,
		ChargedCost: e.Charge(actual),
		Breakdown:   breakdown,
	}
}
