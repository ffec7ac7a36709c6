package domain

import (
	"fmt"
	"math"
)

// Risk category names. CategoryOrder fixes the iteration order everywhere a
// deterministic ordering matters (top-risk tie-breaks, report layout).
const (
	CategorySupplier    = "Supplier Risk"
	CategoryContractual = "Contractual Risk"
	CategoryPricingCost = "Pricing & Cost Risk"
	CategoryDelivery    = "Delivery Risk"
	CategoryFraud       = "Fraud/Manipulation Risk"
	CategoryMarket      = "Market Risk"
	CategoryCompliance  = "Compliance Risk"
	CategoryProcess     = "Process Risk"
)

// CategoryOrder is the canonical evaluation and tie-break order.
var CategoryOrder = []string{
	CategorySupplier,
	CategoryContractual,
	CategoryPricingCost,
	CategoryDelivery,
	CategoryFraud,
	CategoryMarket,
	CategoryCompliance,
	CategoryProcess,
}

// Weights maps category name to its share of the overall score.
type Weights map[string]float64

// DefaultWeights returns the standard weight table. The values are business
// policy, tunable per tenant via the API.
func DefaultWeights() Weights {
	return Weights{
		CategorySupplier:    0.25,
		CategoryContractual: 0.20,
		CategoryPricingCost: 0.15,
		CategoryDelivery:    0.15,
		CategoryFraud:       0.10,
		CategoryMarket:      0.05,
		CategoryCompliance:  0.05,
		CategoryProcess:     0.05,
	}
}

// weightSumTolerance allows for float drift when validating weight tables.
const weightSumTolerance = 0.001

// Validate checks that every category has a non-negative weight and the
// weights sum to 1.0.
func (w Weights) Validate() error {
	var sum float64
	for _, cat := range CategoryOrder {
		weight, ok := w[cat]
		if !ok {
			return fmt.Errorf("missing weight for category %q", cat)
		}
		if weight < 0 {
			return fmt.Errorf("weight for category %q is negative", cat)
		}
		sum += weight
	}
	if len(w) != len(CategoryOrder) {
		return fmt.Errorf("weight table has %d entries, want %d", len(w), len(CategoryOrder))
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights sum to %.4f, want 1.0", sum)
	}
	return nil
}

// Clone returns a copy of the weight table.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
