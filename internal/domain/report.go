package domain

import (
	"time"
)

// Risk levels. Unknown means a category could not be assessed for lack of
// data, which is a different outcome from "assessed and found low".
const (
	LevelUnknown = "Unknown"
	LevelLow     = "Low"
	LevelMedium  = "Medium"
	LevelHigh    = "High"
)

// Level classification boundaries shared by every category and by the
// overall score. Upper side inclusive: 60.0 is High, 30.0 is Medium.
const (
	HighThreshold   = 60.0
	MediumThreshold = 30.0
)

// ClassifyScore maps a 0-100 risk score to a level.
func ClassifyScore(score float64) string {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Contribution records the outcome of one sub-check inside a category
// evaluator. Applied distinguishes "evaluated and found safe" (Applied,
// zero points) from "skipped because the input was absent" (not Applied).
type Contribution struct {
	Signal  string  `json:"signal"`
	Applied bool    `json:"applied"`
	Points  float64 `json:"points"`
	Detail  string  `json:"detail,omitempty"`
}

// CategoryResult is the outcome of evaluating one risk category.
type CategoryResult struct {
	Category      string         `json:"category"`
	Score         float64        `json:"score"`
	Level         string         `json:"level"`
	Factors       []string       `json:"factors"`
	Mitigation    []string       `json:"mitigation"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// TopRisk is one entry in the ranked top-risk list.
type TopRisk struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// RuleFinding is the result of one custom advisory rule. Advisory findings
// annotate a report; they never change the fixed category ladders.
type RuleFinding struct {
	RuleID    string  `json:"ruleId"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Points    float64 `json:"points"`
	Triggered bool    `json:"triggered"`
	Detail    string  `json:"detail,omitempty"`
}

// RiskReport is the complete assessment for one dataset.
type RiskReport struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	DatasetID string    `json:"datasetId"`
	Timestamp time.Time `json:"timestamp"`

	OverallScore float64 `json:"overallScore"`
	OverallLevel string  `json:"overallLevel"`

	// Categories keyed by category name, all eight always present.
	Categories map[string]*CategoryResult `json:"riskCategories"`

	// TopRisks holds the three highest raw category scores, descending.
	TopRisks []TopRisk `json:"topRisks"`

	// Mitigation is the consolidated, de-duplicated strategy list (max 10).
	Mitigation []string `json:"consolidatedMitigation"`

	// Advisory holds custom-rule findings, when any rules are loaded.
	Advisory []RuleFinding `json:"advisory,omitempty"`

	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information.
type ReportMetadata struct {
	TraceID             string `json:"traceId"`
	AggregateMs         int64  `json:"aggregateMs"`
	ScoreMs             int64  `json:"scoreMs"`
	TotalMs             int64  `json:"totalMs"`
	CategoriesEvaluated int    `json:"categoriesEvaluated"`
	RulesEvaluated      int    `json:"rulesEvaluated"`
	EngineVersion       string `json:"engineVersion"`
}

// HighRiskCount returns how many categories landed at the given level.
func (r *RiskReport) CountLevel(level string) int {
	n := 0
	for _, c := range r.Categories {
		if c.Level == level {
			n++
		}
	}
	return n
}
