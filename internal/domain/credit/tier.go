package credit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// TierDefinition maps a purchase tier to the amount of credits it grants.
// CreditedAmount may exceed PaymentAmount (top-up bonus).
type TierDefinition struct {
	TierID         string          `json:"tier_id"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	CreditedAmount decimal.Decimal `json:"credited_amount"`
}

// TierCatalog is the static bonus schedule. It is immutable after
// construction and safe for concurrent use.
type TierCatalog struct {
	tiers map[string]TierDefinition
}

// NewTierCatalog builds a catalog from the given definitions.
func NewTierCatalog(defs []TierDefinition) (*TierCatalog, error) {
	tiers := make(map[string]TierDefinition, len(defs))
	for _, def := range defs {
		if def.TierID == "" {
			return nil, fmt.Errorf("tier definition with empty tier id")
		}
		if def.PaymentAmount.Sign() <= 0 || def.CreditedAmount.Sign() <= 0 {
			return nil, fmt.Errorf("tier %s: payment and credited amounts must be positive", def.TierID)
		}
		if _, exists := tiers[def.TierID]; exists {
			return nil, fmt.Errorf("duplicate tier id %s", def.TierID)
		}
		tiers[def.TierID] = def
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier catalog cannot be empty")
	}
	return &TierCatalog{tiers: tiers}, nil
}

// DefaultTierDefinitions is the stock bonus schedule shipped with the
// service. tier_2 and above carry a bonus over the paid amount.
func DefaultTierDefinitions() []TierDefinition {
	return []TierDefinition{
		{TierID: "tier_1", PaymentAmount: decimal.NewFromInt(10), CreditedAmount: decimal.NewFromInt(10)},
		{TierID: "tier_2", PaymentAmount: decimal.NewFromInt(20), CreditedAmount: decimal.NewFromInt(22)},
		{TierID: "tier_3", PaymentAmount: decimal.NewFromInt(50), CreditedAmount: decimal.NewFromInt(60)},
	}
}

// Resolve returns the definition for tierID or ErrUnknownTier.
func (c *TierCatalog) Resolve(tierID string) (TierDefinition, error) {
	def, ok := c.tiers[tierID]
	if !ok {
		return TierDefinition{}, ErrUnknownTier{TierID: tierID}
	}
	return def, nil
}

// List returns all definitions ordered by payment amount ascending.
func (c *TierCatalog) List() []TierDefinition {
	defs := make([]TierDefinition, 0, len(c.tiers))
	for _, def := range c.tiers {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].PaymentAmount.LessThan(defs[j].PaymentAmount)
	})
	return defs
}

// ParseTierTable parses a catalog from its config representation, e.g.
// "tier_1=10:10,tier_2=20:22". An empty string yields the default schedule.
func ParseTierTable(table string) (*TierCatalog, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return NewTierCatalog(DefaultTierDefinitions())
	}

	var defs []TierDefinition
	for _, entry := range strings.Split(table, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, amounts, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid tier entry %q: expected id=payment:credited", entry)
		}
		payment, credited, ok := strings.Cut(amounts, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tier entry %q: expected id=payment:credited", entry)
		}
		paymentAmount, err := decimal.NewFromString(strings.TrimSpace(payment))
		if err != nil {
			return nil, fmt.Errorf("invalid payment amount in tier entry %q: %w", entry, err)
		}
		creditedAmount, err := decimal.NewFromString(strings.TrimSpace(credited))
		if err != nil {
			return nil, fmt.Errorf("invalid credited amount in tier entry %q: %w", entry, err)
		}
		defs = append(defs, TierDefinition{
			TierID:         strings.TrimSpace(id),
			PaymentAmount:  paymentAmount,
			CreditedAmount: creditedAmount,
		})
	}
	return NewTierCatalog(defs)
}
