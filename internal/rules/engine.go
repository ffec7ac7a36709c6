// Package rules provides the CEL-Go based advisory rule engine. Advisory
// rules are tenant-defined expressions over the aggregate metrics of a
// dataset; their findings annotate a report without touching the built-in
// category ladders.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// intMetrics and doubleMetrics list the named variables an expression may
// reference. They mirror the keys of the aggregate metric map; renaming
// one breaks stored rules.
var intMetrics = []string{
	"po_count",
	"supplier_count",
	"contract_count",
	"rfq_count",
	"poor_delivery_suppliers",
	"low_esg_suppliers",
	"high_risk_suppliers",
	"single_supplier_countries",
	"active_non_compliant_contracts",
	"non_compliant_contracts",
	"expiring_contracts",
	"short_term_contracts",
	"volatile_items",
	"overpriced_items",
	"single_supplier_items",
	"high_variance_quotes",
	"suspicious_rfqs",
	"single_bidder_rfqs",
	"high_price_pairs",
	"large_orders",
	"overused_budget_codes",
	"missing_budget_orders",
	"inefficient_departments",
	"missing_field_count",
}

var doubleMetrics = []string{
	"total_spend",
	"top_supplier_share",
	"otif_rate",
	"lead_time_mean",
	"lead_time_std",
	"defect_rate",
	"top_country_share",
	"top_contract_share",
	"small_order_share",
	"daily_order_mean",
	"daily_order_std",
}

// Engine is the CEL-based advisory rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new advisory rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	opts := []cel.EnvOption{
		// Catch-all map for expressions that prefer m["otif_rate"] style
		// access, and a home for metrics added after a rule was written.
		cel.Variable("m", cel.MapType(cel.StringType, cel.DynType)),
	}
	for _, name := range intMetrics {
		opts = append(opts, cel.Variable(name, cel.IntType))
	}
	for _, name := range doubleMetrics {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateAll evaluates all loaded rules against an aggregate metric map
// in parallel. Evaluation errors surface as non-triggered findings with a
// detail message rather than failing the assessment.
func (e *Engine) EvaluateAll(ctx context.Context, metricMap map[string]any) ([]domain.RuleFinding, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := make(map[string]any, len(intMetrics)+len(doubleMetrics)+1)
	for _, name := range intMetrics {
		activation[name] = 0
	}
	for _, name := range doubleMetrics {
		activation[name] = 0.0
	}
	for k, v := range metricMap {
		activation[k] = v
	}
	activation["m"] = metricMap

	findings := make([]domain.RuleFinding, len(rules))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			findings[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return findings, nil
}

// evaluateRule evaluates a single rule and returns its finding.
func evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleFinding {
	finding := domain.RuleFinding{
		RuleID: rule.Config.ID,
		Name:   rule.Config.Name,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		finding.Detail = fmt.Sprintf("evaluation error: %v", err)
		return finding
	}

	finding.Score = toScore(out)
	if b, ok := out.(types.Bool); ok {
		finding.Triggered = bool(b)
	} else {
		finding.Triggered = finding.Score >= rule.Config.Threshold
	}
	if finding.Triggered {
		finding.Points = rule.Config.Points
		finding.Detail = rule.Config.Description
	}

	return finding
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
