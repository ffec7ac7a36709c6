// Package risk evaluates the eight procurement risk categories over an
// aggregate snapshot and assembles the final report. Scoring is additive:
// each category runs a fixed ladder of sub-checks, each contributing a
// fixed number of points when its condition holds.
package risk

import (
	"fmt"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/metrics"
)

// Category point values. These are scoring policy: changing one changes
// every report, so they live here and nowhere else.
const (
	ptsHighConcentration     = 40
	ptsModerateConcentration = 25
	ptsPoorSupplierOTIF      = 30
	ptsWeakSupplierOTIF      = 15
	ptsLowESG                = 20
	ptsSingleCountry         = 15

	ptsActiveNonCompliant = 35
	ptsExpiringContracts  = 25
	ptsContractConcentr   = 20
	ptsShortContracts     = 15

	ptsPriceVolatility = 30
	ptsOverpricedItems = 25
	ptsQuoteVariance   = 20
	ptsBudgetOverrun   = 25

	ptsPoorDeliveryOTIF = 40
	ptsWeakDeliveryOTIF = 25
	ptsLeadTimeSpread   = 25
	ptsHighDefectRate   = 20
	ptsModerateDefects  = 10
	ptsPoorPerformers   = 15

	ptsSuspiciousBids = 35
	ptsHighPricePairs = 25
	ptsLargeOrders    = 20
	ptsSingleBidders  = 20

	ptsMarketSingleCountry = 30
	ptsGeoConcentration    = 25
	ptsSingleSourceItems   = 25
	ptsMarketVolatility    = 20

	ptsNonCompliantContracts = 35
	ptsComplianceESG         = 25
	ptsMissingBudgetCodes    = 20
	ptsHighRiskSuppliers     = 20

	ptsSmallOrders      = 25
	ptsInefficientDepts = 20
	ptsErraticVolume    = 20
	ptsMissingFields    = 15
)

// Behavioral thresholds shared by the ladders.
const (
	concentrationHigh     = 40.0 // percent of spend from top supplier
	concentrationModerate = 25.0
	otifPoor              = 80.0 // percent on-time
	otifWeak              = 90.0
	esgFloor              = 50.0
	geoConcentrationHigh  = 60.0 // percent of suppliers in one country
	defectHigh            = 5.0  // percent
	defectModerate        = 2.0
	smallOrderShareHigh   = 30.0 // percent
)

// scorecard accumulates one category's evaluation.
type scorecard struct {
	category      string
	score         float64
	factors       []string
	mitigation    []string
	contributions []domain.Contribution
}

// hit records a sub-check that ran. points and the factor string only land
// when triggered is true; either way the contribution is kept so reports
// show which checks were evaluated.
func (c *scorecard) hit(signal string, triggered bool, points float64, format string, args ...any) {
	detail := ""
	pts := 0.0
	if triggered {
		detail = fmt.Sprintf(format, args...)
		pts = points
		c.score += points
		c.factors = append(c.factors, detail)
	}
	c.contributions = append(c.contributions, domain.Contribution{
		Signal:  signal,
		Applied: true,
		Points:  pts,
		Detail:  detail,
	})
}

// skip records a sub-check that could not run for lack of input.
func (c *scorecard) skip(signal string) {
	c.contributions = append(c.contributions, domain.Contribution{Signal: signal})
}

// mitigate appends mitigation strategies when the gate holds.
func (c *scorecard) mitigate(gate bool, strategies ...string) {
	if gate {
		c.mitigation = append(c.mitigation, strategies...)
	}
}

// result finalizes the category, classifying the score and falling back to
// the category's monitoring advice when no targeted mitigation applied.
func (c *scorecard) result(fallback string) *domain.CategoryResult {
	if len(c.mitigation) == 0 {
		c.mitigation = []string{fallback}
	}
	return &domain.CategoryResult{
		Category:      c.category,
		Score:         c.score,
		Level:         domain.ClassifyScore(c.score),
		Factors:       c.factors,
		Mitigation:    c.mitigation,
		Contributions: c.contributions,
	}
}

// unknownResult is the outcome for a category whose inputs are missing
// entirely. Unknown is not Low: nothing was assessed.
func unknownResult(category, factor, mitigation string) *domain.CategoryResult {
	return &domain.CategoryResult{
		Category:   category,
		Score:      0,
		Level:      domain.LevelUnknown,
		Factors:    []string{factor},
		Mitigation: []string{mitigation},
	}
}

func evaluateSupplier(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.Suppliers == 0 || a.Rows.PurchaseOrders == 0 {
		return unknownResult(domain.CategorySupplier,
			"Insufficient supplier data",
			"Collect comprehensive supplier information")
	}
	c := &scorecard{category: domain.CategorySupplier}

	switch {
	case a.TopSupplierShare > concentrationHigh:
		c.hit("supplier_concentration", true, ptsHighConcentration,
			"High supplier concentration: %.1f%% from top supplier", a.TopSupplierShare)
	case a.TopSupplierShare > concentrationModerate:
		c.hit("supplier_concentration", true, ptsModerateConcentration,
			"Moderate supplier concentration: %.1f%% from top supplier", a.TopSupplierShare)
	default:
		c.hit("supplier_concentration", false, 0, "")
	}

	if a.Rows.Deliveries > 0 {
		switch {
		case a.OTIFRate < otifPoor:
			c.hit("delivery_performance", true, ptsPoorSupplierOTIF,
				"Poor delivery performance: %.1f%% on-time rate", a.OTIFRate)
		case a.OTIFRate < otifWeak:
			c.hit("delivery_performance", true, ptsWeakSupplierOTIF,
				"Below-average delivery performance: %.1f%% on-time rate", a.OTIFRate)
		default:
			c.hit("delivery_performance", false, 0, "")
		}
	} else {
		c.skip("delivery_performance")
	}

	if a.ESGPresent {
		c.hit("low_esg", a.LowESGSuppliers > 0, ptsLowESG,
			"%d suppliers with low ESG scores", a.LowESGSuppliers)
	} else {
		c.skip("low_esg")
	}

	c.hit("geographic_concentration", a.SingleSupplierCountries > 0, ptsSingleCountry,
		"%d countries with single suppliers", a.SingleSupplierCountries)

	c.mitigate(a.TopSupplierShare > concentrationModerate,
		"Develop supplier diversification strategy",
		"Identify and qualify backup suppliers",
		"Implement supplier relationship management program")
	// With no delivery data the on-time rate is unknowable, which is itself
	// a reason to stand up performance monitoring.
	otif := 0.0
	if a.Rows.Deliveries > 0 {
		otif = a.OTIFRate
	}
	c.mitigate(otif < otifWeak,
		"Establish supplier performance improvement programs",
		"Implement delivery performance monitoring",
		"Develop supplier development initiatives")

	return c.result("Continue monitoring supplier performance")
}

func evaluateContractual(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.Contracts == 0 {
		return unknownResult(domain.CategoryContractual,
			"No contract data available",
			"Implement contract management system")
	}
	c := &scorecard{category: domain.CategoryContractual}

	c.hit("active_non_compliant", a.ActiveNonCompliantContracts > 0, ptsActiveNonCompliant,
		"%d active contracts with compliance issues", a.ActiveNonCompliantContracts)
	c.hit("contract_expiry", a.ExpiringContracts > 0, ptsExpiringContracts,
		"%d contracts expiring in 90 days ($%s)", a.ExpiringContracts, metrics.FormatAmount(a.ExpiringContractValue))
	c.hit("value_concentration", a.TopContractShare > 50, ptsContractConcentr,
		"High contract value concentration: %.1f%% in single contract", a.TopContractShare)
	c.hit("short_terms", a.ShortTermContracts > 0, ptsShortContracts,
		"%d contracts with very short terms (<30 days)", a.ShortTermContracts)

	c.mitigate(a.ActiveNonCompliantContracts > 0,
		"Review and address compliance issues",
		"Implement contract compliance monitoring",
		"Establish corrective action plans")
	c.mitigate(a.ExpiringContracts > 0,
		"Develop contract renewal strategies",
		"Identify alternative suppliers for expiring contracts",
		"Implement contract lifecycle management")

	return c.result("Continue monitoring contract performance")
}

func evaluatePricingCost(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.PurchaseOrders == 0 {
		return unknownResult(domain.CategoryPricingCost,
			"No purchase order data available",
			"Implement cost monitoring system")
	}
	c := &scorecard{category: domain.CategoryPricingCost}

	if a.Rows.Items > 0 {
		c.hit("price_volatility", a.VolatileItems30 > 0, ptsPriceVolatility,
			"%d items with high price volatility (>30%%)", a.VolatileItems30)
		c.hit("abnormal_pricing", a.OverpricedItems > 0, ptsOverpricedItems,
			"%d items with abnormally high prices", a.OverpricedItems)
	} else {
		c.skip("price_volatility")
		c.skip("abnormal_pricing")
	}

	if a.Rows.RFQs > 0 {
		c.hit("quote_variance", a.HighVarianceQuotes > 0, ptsQuoteVariance,
			"%d items with high quote variance (>50%%)", a.HighVarianceQuotes)
	} else {
		c.skip("quote_variance")
	}

	if a.Rows.Budgets > 0 {
		c.hit("budget_overrun", a.OverusedBudgetCodes > 0, ptsBudgetOverrun,
			"%d budget codes exceeded 100%% utilization", a.OverusedBudgetCodes)
	} else {
		c.skip("budget_overrun")
	}

	c.mitigate(a.Rows.Items > 0 && a.VolatileItems30 > 0,
		"Implement price monitoring and alerting",
		"Develop price hedging strategies",
		"Establish long-term supply agreements")
	c.mitigate(a.Rows.Items > 0 && a.OverpricedItems > 0,
		"Conduct market price analysis",
		"Negotiate better pricing terms",
		"Explore alternative suppliers")
	c.mitigate(a.Rows.Budgets > 0 && a.OverusedBudgetCodes > 0,
		"Implement budget control measures",
		"Review budget allocation and forecasting",
		"Establish cost monitoring dashboards")

	return c.result("Continue monitoring pricing trends")
}

func evaluateDelivery(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.PurchaseOrders == 0 || a.Rows.Deliveries == 0 {
		return unknownResult(domain.CategoryDelivery,
			"Insufficient delivery data",
			"Implement delivery tracking system")
	}
	c := &scorecard{category: domain.CategoryDelivery}

	switch {
	case a.OTIFRate < otifPoor:
		c.hit("on_time_delivery", true, ptsPoorDeliveryOTIF,
			"Poor on-time delivery: %.1f%% rate", a.OTIFRate)
	case a.OTIFRate < otifWeak:
		c.hit("on_time_delivery", true, ptsWeakDeliveryOTIF,
			"Below-average delivery: %.1f%% rate", a.OTIFRate)
	default:
		c.hit("on_time_delivery", false, 0, "")
	}

	leadTimeSpread := a.LeadTimeStd > a.LeadTimeMean*0.5
	c.hit("lead_time_variability", leadTimeSpread, ptsLeadTimeSpread,
		"High lead time variability: %.1f days std dev", a.LeadTimeStd)

	switch {
	case a.DefectRate > defectHigh:
		c.hit("defect_rate", true, ptsHighDefectRate,
			"High defect rate: %.1f%%", a.DefectRate)
	case a.DefectRate > defectModerate:
		c.hit("defect_rate", true, ptsModerateDefects,
			"Moderate defect rate: %.1f%%", a.DefectRate)
	default:
		c.hit("defect_rate", false, 0, "")
	}

	if a.Rows.Suppliers > 0 {
		c.hit("poor_performers", a.PoorDeliverySuppliers > 0, ptsPoorPerformers,
			"%d suppliers with poor delivery performance", a.PoorDeliverySuppliers)
	} else {
		c.skip("poor_performers")
	}

	c.mitigate(a.OTIFRate < otifWeak,
		"Implement supplier performance improvement programs",
		"Establish delivery performance targets",
		"Develop supplier development initiatives")
	c.mitigate(leadTimeSpread,
		"Standardize lead time requirements",
		"Implement supply chain optimization",
		"Establish buffer inventory strategies")
	c.mitigate(a.DefectRate > defectModerate,
		"Implement quality control measures",
		"Establish supplier quality standards",
		"Develop quality improvement programs")

	return c.result("Continue monitoring delivery performance")
}

func evaluateFraud(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.PurchaseOrders == 0 {
		return unknownResult(domain.CategoryFraud,
			"No purchase order data available",
			"Implement fraud detection systems")
	}
	c := &scorecard{category: domain.CategoryFraud}

	if a.Rows.RFQs > 0 {
		c.hit("bid_rigging", a.SuspiciousRFQs > 0, ptsSuspiciousBids,
			"%d RFQs with suspicious bidding patterns", a.SuspiciousRFQs)
	} else {
		c.skip("bid_rigging")
	}

	if a.Rows.Items > 0 {
		c.hit("price_manipulation", a.HighPricePairs > 0, ptsHighPricePairs,
			"%d supplier-item combinations with consistently high prices", a.HighPricePairs)
		c.hit("bundle_manipulation", a.LargeOrders > 0, ptsLargeOrders,
			"%d orders with unusually large item counts", a.LargeOrders)
	} else {
		c.skip("price_manipulation")
		c.skip("bundle_manipulation")
	}

	if a.Rows.Suppliers > 0 && a.Rows.RFQs > 0 {
		c.hit("single_bidders", a.SingleBidderRFQs > 0, ptsSingleBidders,
			"%d RFQs with only one bidder", a.SingleBidderRFQs)
	} else {
		c.skip("single_bidders")
	}

	c.mitigate(a.Rows.RFQs > 0 && a.SuspiciousRFQs > 0,
		"Implement enhanced bid analysis",
		"Establish bid evaluation committees",
		"Conduct supplier background checks")
	c.mitigate(a.Rows.Items > 0 && a.HighPricePairs > 0,
		"Conduct market price analysis",
		"Implement price benchmarking",
		"Establish competitive bidding requirements")
	c.mitigate(a.Rows.Suppliers > 0 && a.Rows.RFQs > 0 && a.SingleBidderRFQs > 0,
		"Expand supplier base",
		"Implement mandatory competitive bidding",
		"Establish minimum bidder requirements")

	return c.result("Continue monitoring for suspicious patterns")
}

func evaluateMarket(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.Suppliers == 0 {
		return unknownResult(domain.CategoryMarket,
			"No supplier data available",
			"Implement market monitoring")
	}
	c := &scorecard{category: domain.CategoryMarket}

	c.hit("geographic_concentration", a.SingleSupplierCountries > 0, ptsMarketSingleCountry,
		"%d countries with single suppliers", a.SingleSupplierCountries)
	c.hit("regional_dominance", a.TopCountryShare > geoConcentrationHigh, ptsGeoConcentration,
		"High geographic concentration: %.1f%% from one country", a.TopCountryShare)

	if a.Rows.Items > 0 {
		c.hit("supply_diversity", a.SingleSupplierItems > 0, ptsSingleSourceItems,
			"%d items with single suppliers", a.SingleSupplierItems)
	} else {
		c.skip("supply_diversity")
	}

	if a.Rows.PurchaseOrders > 0 && a.Rows.Items > 0 {
		c.hit("market_volatility", a.VolatileItems40 > 0, ptsMarketVolatility,
			"%d items with high market volatility", a.VolatileItems40)
	} else {
		c.skip("market_volatility")
	}

	c.mitigate(a.SingleSupplierCountries > 0,
		"Diversify supplier geographic base",
		"Develop international supplier relationships",
		"Implement regional sourcing strategies")
	c.mitigate(a.Rows.Items > 0 && a.SingleSupplierItems > 0,
		"Identify alternative suppliers for critical items",
		"Develop strategic supplier partnerships",
		"Implement supplier development programs")
	c.mitigate(a.Rows.PurchaseOrders > 0 && a.Rows.Items > 0 && a.VolatileItems40 > 0,
		"Implement price hedging strategies",
		"Establish long-term supply agreements",
		"Develop inventory buffer strategies")

	return c.result("Continue monitoring market conditions")
}

// evaluateCompliance reads three tables. Any one of them present is enough
// to assess: each absent table skips its sub-checks. Only when contracts,
// suppliers, and purchase orders are all missing is there nothing to
// evaluate, and the category reports Unknown.
func evaluateCompliance(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.Contracts == 0 && a.Rows.Suppliers == 0 && a.Rows.PurchaseOrders == 0 {
		return unknownResult(domain.CategoryCompliance,
			"No compliance data available",
			"Implement compliance monitoring system")
	}
	c := &scorecard{category: domain.CategoryCompliance}

	if a.Rows.Contracts > 0 {
		c.hit("contract_compliance", a.NonCompliantContracts > 0, ptsNonCompliantContracts,
			"%d contracts with compliance issues", a.NonCompliantContracts)
	} else {
		c.skip("contract_compliance")
	}

	if a.Rows.Suppliers > 0 && a.ESGPresent {
		c.hit("esg_compliance", a.LowESGSuppliers > 0, ptsComplianceESG,
			"%d suppliers with low ESG scores", a.LowESGSuppliers)
	} else {
		c.skip("esg_compliance")
	}

	if a.Rows.PurchaseOrders > 0 {
		c.hit("budget_codes", a.MissingBudgetOrders > 0, ptsMissingBudgetCodes,
			"%d orders without budget codes", a.MissingBudgetOrders)
	} else {
		c.skip("budget_codes")
	}

	if a.Rows.Suppliers > 0 {
		c.hit("high_risk_suppliers", a.HighRiskSuppliers > 0, ptsHighRiskSuppliers,
			"%d suppliers in high-risk categories", a.HighRiskSuppliers)
	} else {
		c.skip("high_risk_suppliers")
	}

	c.mitigate(a.Rows.Contracts > 0 && a.NonCompliantContracts > 0,
		"Review and address compliance issues",
		"Implement compliance monitoring system",
		"Establish corrective action plans")
	c.mitigate(a.Rows.Suppliers > 0 && a.ESGPresent && a.LowESGSuppliers > 0,
		"Implement ESG supplier development programs",
		"Establish ESG compliance requirements",
		"Conduct supplier ESG assessments")
	c.mitigate(a.Rows.PurchaseOrders > 0 && a.MissingBudgetOrders > 0,
		"Implement mandatory budget code requirements",
		"Establish approval workflows",
		"Conduct policy compliance training")

	return c.result("Continue monitoring compliance status")
}

func evaluateProcess(a *metrics.Aggregates) *domain.CategoryResult {
	if a.Rows.PurchaseOrders == 0 {
		return unknownResult(domain.CategoryProcess,
			"No purchase order data available",
			"Implement process monitoring")
	}
	c := &scorecard{category: domain.CategoryProcess}

	c.hit("small_orders", a.SmallOrderShare > smallOrderShareHigh, ptsSmallOrders,
		"High proportion of small orders: %.1f%%", a.SmallOrderShare)
	c.hit("department_efficiency", a.InefficientDepartments > 0, ptsInefficientDepts,
		"%d departments with inefficient ordering patterns", a.InefficientDepartments)

	erratic := a.DailyOrderStd > a.DailyOrderMean*2
	c.hit("order_consistency", erratic, ptsErraticVolume,
		"High variability in daily order volumes")

	c.hit("documentation_gaps", a.MissingFieldCount > 0, ptsMissingFields,
		"%d missing data points in purchase orders", a.MissingFieldCount)

	c.mitigate(a.SmallOrderShare > smallOrderShareHigh,
		"Implement order consolidation strategies",
		"Establish minimum order value requirements",
		"Develop catalog purchasing programs")
	c.mitigate(a.InefficientDepartments > 0,
		"Provide department-specific training",
		"Implement ordering guidelines",
		"Establish approval workflows")
	c.mitigate(a.MissingFieldCount > 0,
		"Implement data validation requirements",
		"Establish mandatory field requirements",
		"Conduct data quality audits")

	return c.result("Continue monitoring process efficiency")
}

