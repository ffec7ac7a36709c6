package domain

// RuleConfig defines a custom advisory risk rule. The expression is a CEL
// program over the named aggregate metrics of a dataset (see the rules
// package for the variable list). Advisory rules annotate reports; the
// eight built-in category ladders are fixed policy and are not affected.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression must evaluate to bool, int, or double. A boolean true or
	// any numeric value >= Threshold marks the rule as triggered.
	Expression string `json:"expression"`

	// Threshold above which a numeric expression counts as triggered.
	Threshold float64 `json:"threshold"`

	// Points reported on the finding when the rule triggers.
	Points float64 `json:"points"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}
