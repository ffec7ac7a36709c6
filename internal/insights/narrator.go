// Package insights turns a risk report and its aggregate snapshot into a
// plain-language executive summary.
package insights

import (
	"fmt"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/metrics"
)

// Summary is the narrated view of one assessment.
type Summary struct {
	Headline        string   `json:"headline"`
	Spend           []string `json:"spend"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
}

// maxRecommendations caps the narrated action list.
const maxRecommendations = 5

// Summarize narrates a report. The aggregates must be the snapshot the
// report was scored from; mixing assessments produces nonsense.
func Summarize(report *domain.RiskReport, agg *metrics.Aggregates) *Summary {
	s := &Summary{
		Headline: fmt.Sprintf("Overall procurement risk is %s (score %.1f)",
			report.OverallLevel, report.OverallScore),
	}

	s.Spend = spendLines(agg)
	s.Risks = riskLines(report, agg)

	recs := report.Mitigation
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	s.Recommendations = append(s.Recommendations, recs...)

	return s
}

func spendLines(agg *metrics.Aggregates) []string {
	if agg.Rows.PurchaseOrders == 0 {
		return []string{"No purchase order data available for spend analysis."}
	}

	avg := agg.TotalSpend / float64(agg.Rows.PurchaseOrders)
	lines := []string{
		fmt.Sprintf("Total spend: $%s across %d orders (average $%s)",
			metrics.FormatAmount(agg.TotalSpend), agg.Rows.PurchaseOrders, metrics.FormatAmount(avg)),
	}

	if agg.TopSupplierName != "" {
		line := fmt.Sprintf("Top supplier: %s (%.1f%% of spend)", agg.TopSupplierName, agg.TopSupplierShare)
		switch {
		case agg.TopSupplierShare > 40:
			line += " - high dependence, develop alternatives"
		case agg.TopSupplierShare > 25:
			line += " - moderate concentration, strategic sourcing needed"
		}
		lines = append(lines, line)
	}

	if agg.Rows.Budgets > 0 && agg.OverusedBudgetCodes > 0 {
		lines = append(lines, fmt.Sprintf("%d budget codes exceeded their allocation", agg.OverusedBudgetCodes))
	}
	return lines
}

func riskLines(report *domain.RiskReport, agg *metrics.Aggregates) []string {
	var lines []string
	for i, tr := range report.TopRisks {
		cat := report.Categories[tr.Category]
		if cat == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s risk (score %.0f)", i+1, tr.Category, cat.Level, tr.Score))
	}
	if agg.Rows.Deliveries > 0 {
		lines = append(lines, fmt.Sprintf("On-time delivery rate: %.1f%%", agg.OTIFRate))
	}
	if high := report.CountLevel(domain.LevelHigh); high > 0 {
		lines = append(lines, fmt.Sprintf("%d of %d categories are high risk", high, len(report.Categories)))
	}
	return lines
}
