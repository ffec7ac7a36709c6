package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/metrics"
)

// EngineVersion is stamped into report metadata.
const EngineVersion = "1.0.0"

// maxConsolidatedMitigation caps the consolidated strategy list.
const maxConsolidatedMitigation = 10

// topRiskCount is how many categories the ranked list keeps.
const topRiskCount = 3

// evaluators maps each category to its ladder, in canonical order.
var evaluators = map[string]func(*metrics.Aggregates) *domain.CategoryResult{
	domain.CategorySupplier:    evaluateSupplier,
	domain.CategoryContractual: evaluateContractual,
	domain.CategoryPricingCost: evaluatePricingCost,
	domain.CategoryDelivery:    evaluateDelivery,
	domain.CategoryFraud:       evaluateFraud,
	domain.CategoryMarket:      evaluateMarket,
	domain.CategoryCompliance:  evaluateCompliance,
	domain.CategoryProcess:     evaluateProcess,
}

// Engine scores datasets against the eight-category risk model.
type Engine struct {
	weights domain.Weights
}

// NewEngine creates an engine with the given weight table.
func NewEngine(weights domain.Weights) (*Engine, error) {
	if weights == nil {
		weights = domain.DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	return &Engine{weights: weights.Clone()}, nil
}

// Weights returns a copy of the engine's weight table.
func (e *Engine) Weights() domain.Weights {
	return e.weights.Clone()
}

// Assess aggregates a dataset and scores all eight categories. now anchors
// every date comparison, keeping assessments reproducible. The returned
// aggregates let the caller run advisory rules on the same snapshot.
func (e *Engine) Assess(tenantID string, ds *domain.Dataset, now time.Time) (*domain.RiskReport, *metrics.Aggregates) {
	start := time.Now()
	agg := metrics.Compute(ds, now)
	aggDone := time.Now()

	categories := make(map[string]*domain.CategoryResult, len(evaluators))
	for _, name := range domain.CategoryOrder {
		categories[name] = evaluators[name](agg)
	}

	var overall float64
	for _, name := range domain.CategoryOrder {
		overall += categories[name].Score * e.weights[name]
	}

	report := &domain.RiskReport{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		DatasetID:    ds.ID,
		Timestamp:    now,
		OverallScore: overall,
		OverallLevel: domain.ClassifyScore(overall),
		Categories:   categories,
		TopRisks:     rankTopRisks(categories),
		Mitigation:   consolidateMitigation(categories),
		Metadata: domain.ReportMetadata{
			AggregateMs:         aggDone.Sub(start).Milliseconds(),
			ScoreMs:             time.Since(aggDone).Milliseconds(),
			TotalMs:             time.Since(start).Milliseconds(),
			CategoriesEvaluated: len(categories),
			EngineVersion:       EngineVersion,
		},
	}
	return report, agg
}

// rankTopRisks returns the three highest raw category scores, descending.
// Ties break by canonical category order, so ranking is deterministic.
func rankTopRisks(categories map[string]*domain.CategoryResult) []domain.TopRisk {
	ranked := make([]domain.TopRisk, 0, len(domain.CategoryOrder))
	for _, name := range domain.CategoryOrder {
		ranked = append(ranked, domain.TopRisk{Category: name, Score: categories[name].Score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topRiskCount {
		ranked = ranked[:topRiskCount]
	}
	return ranked
}

// consolidateMitigation merges category mitigation lists in canonical
// order, dropping duplicates while preserving first occurrence, capped at
// maxConsolidatedMitigation entries.
func consolidateMitigation(categories map[string]*domain.CategoryResult) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range domain.CategoryOrder {
		for _, strategy := range categories[name].Mitigation {
			if _, ok := seen[strategy]; ok {
				continue
			}
			seen[strategy] = struct{}{}
			out = append(out, strategy)
		}
	}
	if len(out) > maxConsolidatedMitigation {
		out = out[:maxConsolidatedMitigation]
	}
	return out
}
