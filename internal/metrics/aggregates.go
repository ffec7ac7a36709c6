// Package metrics computes the aggregate snapshot that risk evaluation
// reads. All table joins happen here, exactly once per assessment; the
// evaluators downstream only look at the precomputed numbers.
package metrics

import (
	"math"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Aggregates is the read-only snapshot of every dataset-level statistic the
// risk evaluators and advisory rules consume. Percentages are 0-100.
type Aggregates struct {
	Rows domain.DatasetSummary `json:"rows"`
	Now  time.Time             `json:"now"`

	// Spend and supplier concentration
	TotalSpend       float64 `json:"totalSpend"`
	TopSupplierName  string  `json:"topSupplierName,omitempty"`
	TopSupplierShare float64 `json:"topSupplierShare"`

	// Delivery performance over purchase-order / delivery join rows.
	// A purchase order with no delivery record counts as one late row.
	OTIFRate              float64 `json:"otifRate"`
	LeadTimeMean          float64 `json:"leadTimeMean"`
	LeadTimeStd           float64 `json:"leadTimeStd"`
	DefectRate            float64 `json:"defectRate"`
	PoorDeliverySuppliers int     `json:"poorDeliverySuppliers"`

	// Supplier master statistics
	ESGPresent              bool    `json:"esgPresent"`
	LowESGSuppliers         int     `json:"lowEsgSuppliers"`
	HighRiskSuppliers       int     `json:"highRiskSuppliers"`
	SingleSupplierCountries int     `json:"singleSupplierCountries"`
	TopCountry              string  `json:"topCountry,omitempty"`
	TopCountryShare         float64 `json:"topCountryShare"`

	// Contract statistics
	ActiveNonCompliantContracts int     `json:"activeNonCompliantContracts"`
	NonCompliantContracts       int     `json:"nonCompliantContracts"`
	ExpiringContracts           int     `json:"expiringContracts"`
	ExpiringContractValue       float64 `json:"expiringContractValue"`
	TopContractShare            float64 `json:"topContractShare"`
	ShortTermContracts          int     `json:"shortTermContracts"`

	// Item price statistics over purchase-order lines with a resolvable
	// item. Volatility is the coefficient of variation of unit prices.
	VolatileItems30     int `json:"volatileItems30"`
	VolatileItems40     int `json:"volatileItems40"`
	OverpricedItems     int `json:"overpricedItems"`
	SingleSupplierItems int `json:"singleSupplierItems"`

	// Bidding statistics
	HighVarianceQuotes int `json:"highVarianceQuotes"`
	SuspiciousRFQs     int `json:"suspiciousRfqs"`
	SingleBidderRFQs   int `json:"singleBidderRfqs"`
	HighPricePairs     int `json:"highPricePairs"`
	LargeOrders        int `json:"largeOrders"`

	// Budget statistics
	OverusedBudgetCodes int `json:"overusedBudgetCodes"`
	MissingBudgetOrders int `json:"missingBudgetOrders"`

	// Process statistics
	SmallOrderShare        float64 `json:"smallOrderShare"`
	InefficientDepartments int     `json:"inefficientDepartments"`
	DailyOrderMean         float64 `json:"dailyOrderMean"`
	DailyOrderStd          float64 `json:"dailyOrderStd"`
	MissingFieldCount      int     `json:"missingFieldCount"`
}

// deliveryRow is one row of the purchase-order / delivery left join.
type deliveryRow struct {
	po  *domain.PurchaseOrder
	del *domain.Delivery
}

func (r deliveryRow) onTime() bool {
	return r.del != nil && !r.del.ActualDate.IsZero() && !r.del.ActualDate.After(r.po.DeliveryDate)
}

// Compute builds the aggregate snapshot for a dataset. now anchors every
// date comparison (contract expiry, active status) so that assessments are
// reproducible.
func Compute(ds *domain.Dataset, now time.Time) *Aggregates {
	a := &Aggregates{
		Rows: ds.Summary(),
		Now:  now,
	}

	supplierByID := make(map[string]*domain.Supplier, len(ds.Suppliers))
	for i := range ds.Suppliers {
		s := &ds.Suppliers[i]
		if _, ok := supplierByID[s.SupplierID]; !ok {
			supplierByID[s.SupplierID] = s
		}
	}
	itemByID := make(map[string]*domain.Item, len(ds.Items))
	for i := range ds.Items {
		it := &ds.Items[i]
		if _, ok := itemByID[it.ItemID]; !ok {
			itemByID[it.ItemID] = it
		}
	}

	a.computeSpendConcentration(ds, supplierByID)
	a.computeDeliveryPerformance(ds, supplierByID)
	a.computeSupplierProfile(ds)
	a.computeContracts(ds, now)
	a.computeItemPrices(ds, itemByID)
	a.computeBidding(ds, itemByID)
	a.computeBudgets(ds)
	a.computeProcess(ds)

	return a
}

// computeSpendConcentration groups purchase-order spend by supplier name.
// Lines whose supplier is not in the supplier table are excluded, matching
// a left join followed by a group on the joined name.
func (a *Aggregates) computeSpendConcentration(ds *domain.Dataset, supplierByID map[string]*domain.Supplier) {
	spendByName := make(map[string]float64)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		a.TotalSpend += po.LineSpend()
		s, ok := supplierByID[po.SupplierID]
		if !ok {
			continue
		}
		spendByName[s.SupplierName] += po.LineSpend()
	}

	var sum, top float64
	var topName string
	for name, spend := range spendByName {
		sum += spend
		if spend > top || (spend == top && name < topName) {
			top = spend
			topName = name
		}
	}
	a.TopSupplierName = topName
	a.TopSupplierShare = safeDiv(top, sum) * 100
}

func (a *Aggregates) computeDeliveryPerformance(ds *domain.Dataset, supplierByID map[string]*domain.Supplier) {
	deliveriesByPO := make(map[string][]*domain.Delivery)
	for i := range ds.Deliveries {
		d := &ds.Deliveries[i]
		deliveriesByPO[d.POID] = append(deliveriesByPO[d.POID], d)
	}

	var rows []deliveryRow
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		dels := deliveriesByPO[po.POID]
		if len(dels) == 0 {
			rows = append(rows, deliveryRow{po: po})
			continue
		}
		for _, d := range dels {
			rows = append(rows, deliveryRow{po: po, del: d})
		}
	}
	if len(rows) == 0 {
		return
	}

	var onTime, defects int
	var leadTimes []float64
	perSupplier := make(map[string]*struct{ onTime, total int })

	for _, r := range rows {
		if r.onTime() {
			onTime++
		}
		if r.del != nil && r.del.DefectFlag {
			defects++
		}
		if r.del != nil && !r.del.ActualDate.IsZero() && !r.po.OrderDate.IsZero() {
			days := r.del.ActualDate.Sub(r.po.OrderDate) / (24 * time.Hour)
			leadTimes = append(leadTimes, float64(days))
		}
		if s, ok := supplierByID[r.po.SupplierID]; ok {
			sp := perSupplier[s.SupplierName]
			if sp == nil {
				sp = &struct{ onTime, total int }{}
				perSupplier[s.SupplierName] = sp
			}
			sp.total++
			if r.onTime() {
				sp.onTime++
			}
		}
	}

	a.OTIFRate = safeDiv(float64(onTime), float64(len(rows))) * 100
	a.DefectRate = safeDiv(float64(defects), float64(len(rows))) * 100
	a.LeadTimeMean = mean(leadTimes)
	a.LeadTimeStd = sampleStd(leadTimes)

	for _, sp := range perSupplier {
		rate := safeDiv(float64(sp.onTime), float64(sp.total)) * 100
		if rate < 80 && sp.total >= 5 {
			a.PoorDeliverySuppliers++
		}
	}
}

func (a *Aggregates) computeSupplierProfile(ds *domain.Dataset) {
	countryCounts := make(map[string]int)
	for i := range ds.Suppliers {
		s := &ds.Suppliers[i]
		if s.ESGScore != nil {
			a.ESGPresent = true
			if *s.ESGScore < 50 {
				a.LowESGSuppliers++
			}
		}
		if s.RiskCategory == "High" {
			a.HighRiskSuppliers++
		}
		if s.Country != "" {
			countryCounts[s.Country]++
		}
	}

	var topCount int
	var topCountry string
	for country, n := range countryCounts {
		if n == 1 {
			a.SingleSupplierCountries++
		}
		if n > topCount || (n == topCount && country < topCountry) {
			topCount = n
			topCountry = country
		}
	}
	a.TopCountry = topCountry
	a.TopCountryShare = safeDiv(float64(topCount), float64(len(ds.Suppliers))) * 100
}

func (a *Aggregates) computeContracts(ds *domain.Dataset, now time.Time) {
	horizon := now.Add(90 * 24 * time.Hour)
	var total, max float64
	for i := range ds.Contracts {
		c := &ds.Contracts[i]
		if !c.EndDate.Before(now) && c.ComplianceStatus != domain.ComplianceCompliant {
			a.ActiveNonCompliantContracts++
		}
		if c.ComplianceStatus != domain.ComplianceCompliant {
			a.NonCompliantContracts++
		}
		if !c.EndDate.After(horizon) {
			a.ExpiringContracts++
			a.ExpiringContractValue += c.ContractValue
		}
		if c.EndDate.Sub(c.StartDate) < 30*24*time.Hour {
			a.ShortTermContracts++
		}
		total += c.ContractValue
		if c.ContractValue > max {
			max = c.ContractValue
		}
	}
	a.TopContractShare = safeDiv(max, total) * 100
}

// computeItemPrices groups purchase-order unit prices by item name. Lines
// whose item is not in the item table are excluded, so the statistics only
// cover resolvable catalog items.
func (a *Aggregates) computeItemPrices(ds *domain.Dataset, itemByID map[string]*domain.Item) {
	if len(ds.Items) == 0 {
		return
	}

	pricesByItem := make(map[string][]float64)
	suppliersByItem := make(map[string]map[string]struct{})
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		it, ok := itemByID[po.ItemID]
		if !ok {
			continue
		}
		pricesByItem[it.ItemName] = append(pricesByItem[it.ItemName], po.UnitPrice)
		set := suppliersByItem[it.ItemName]
		if set == nil {
			set = make(map[string]struct{})
			suppliersByItem[it.ItemName] = set
		}
		set[po.SupplierID] = struct{}{}
	}

	var itemMeans []float64
	for _, prices := range pricesByItem {
		c := cv(prices)
		if c > 0.3 {
			a.VolatileItems30++
		}
		if c > 0.4 {
			a.VolatileItems40++
		}
		itemMeans = append(itemMeans, mean(prices))
	}
	overallAvg := mean(itemMeans)
	for _, m := range itemMeans {
		if m > overallAvg*2 {
			a.OverpricedItems++
		}
	}
	for _, set := range suppliersByItem {
		if len(set) == 1 {
			a.SingleSupplierItems++
		}
	}
}

func (a *Aggregates) computeBidding(ds *domain.Dataset, itemByID map[string]*domain.Item) {
	type key struct{ a, b string }

	// Quote spread per supplier-item pair, over pairs with 3+ quotes.
	quotesByPair := make(map[key][]float64)
	for i := range ds.RFQs {
		r := &ds.RFQs[i]
		k := key{r.SupplierID, r.ItemID}
		quotesByPair[k] = append(quotesByPair[k], r.UnitPrice)
	}
	for _, prices := range quotesByPair {
		if len(prices) >= 3 && cv(prices) > 0.5 {
			a.HighVarianceQuotes++
		}
	}

	// Bid-rigging signature: 3+ bids for the same item on the same RFQ
	// landing within 5% of each other.
	bidsByRFQItem := make(map[key][]float64)
	biddersByRFQ := make(map[string]map[string]struct{})
	for i := range ds.RFQs {
		r := &ds.RFQs[i]
		k := key{r.ItemID, r.RFQID}
		bidsByRFQItem[k] = append(bidsByRFQItem[k], r.UnitPrice)
		set := biddersByRFQ[r.RFQID]
		if set == nil {
			set = make(map[string]struct{})
			biddersByRFQ[r.RFQID] = set
		}
		set[r.SupplierID] = struct{}{}
	}
	for _, prices := range bidsByRFQItem {
		if len(prices) < 3 {
			continue
		}
		m := mean(prices)
		if m != 0 && sampleStd(prices)/m < 0.05 {
			a.SuspiciousRFQs++
		}
	}
	for _, set := range biddersByRFQ {
		if len(set) == 1 {
			a.SingleBidderRFQs++
		}
	}

	if len(ds.Items) == 0 {
		return
	}

	// Consistently high prices per item-supplier pair: 5+ orders with a
	// mean above the 90th percentile of all pair means.
	pricesByPair := make(map[key][]float64)
	linesByPO := make(map[string]int)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		it, ok := itemByID[po.ItemID]
		if ok {
			k := key{it.ItemName, po.SupplierID}
			pricesByPair[k] = append(pricesByPair[k], po.UnitPrice)
		}
		n := 0
		if ok {
			n = 1
		}
		linesByPO[po.POID] += n
	}

	var pairMeans []float64
	counts := make(map[key]int, len(pricesByPair))
	for k, prices := range pricesByPair {
		pairMeans = append(pairMeans, mean(prices))
		counts[k] = len(prices)
	}
	q90 := quantile(pairMeans, 0.9)
	for k, prices := range pricesByPair {
		if counts[k] >= 5 && mean(prices) > q90 {
			a.HighPricePairs++
		}
	}

	var lineCounts []float64
	for _, n := range linesByPO {
		lineCounts = append(lineCounts, float64(n))
	}
	q95 := quantile(lineCounts, 0.95)
	for _, n := range lineCounts {
		if n > q95 {
			a.LargeOrders++
		}
	}
}

func (a *Aggregates) computeBudgets(ds *domain.Dataset) {
	amounts := make(map[string]float64, len(ds.Budgets))
	for i := range ds.Budgets {
		b := &ds.Budgets[i]
		if _, ok := amounts[b.BudgetCode]; !ok {
			amounts[b.BudgetCode] = b.Amount
		}
	}

	spendByCode := make(map[string]float64)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		if po.BudgetCode == "" {
			a.MissingBudgetOrders++
			continue
		}
		spendByCode[po.BudgetCode] += po.LineSpend()
	}

	for code, spend := range spendByCode {
		amount, ok := amounts[code]
		if !ok {
			continue
		}
		if safeDiv(spend, amount)*100 > 100 {
			a.OverusedBudgetCodes++
		}
	}
}

func (a *Aggregates) computeProcess(ds *domain.Dataset) {
	if len(ds.PurchaseOrders) == 0 {
		return
	}

	var spends []float64
	for i := range ds.PurchaseOrders {
		spends = append(spends, ds.PurchaseOrders[i].LineSpend())
	}
	avg := mean(spends)
	small := 0
	for _, s := range spends {
		if s < avg*0.1 {
			small++
		}
	}
	a.SmallOrderShare = safeDiv(float64(small), float64(len(spends))) * 100

	type deptStat struct {
		orders int
		qty    float64
	}
	depts := make(map[string]*deptStat)
	dailyCounts := make(map[string]int)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		if po.Department != "" {
			d := depts[po.Department]
			if d == nil {
				d = &deptStat{}
				depts[po.Department] = d
			}
			d.orders++
			d.qty += po.Quantity
		}
		if !po.OrderDate.IsZero() {
			dailyCounts[po.OrderDate.Format("2006-01-02")]++
		}

		if po.POID == "" {
			a.MissingFieldCount++
		}
		if po.SupplierID == "" {
			a.MissingFieldCount++
		}
		if po.ItemID == "" {
			a.MissingFieldCount++
		}
		if math.IsNaN(po.Quantity) {
			a.MissingFieldCount++
		}
		if math.IsNaN(po.UnitPrice) {
			a.MissingFieldCount++
		}
	}

	var orderSizes []float64
	for _, d := range depts {
		orderSizes = append(orderSizes, safeDiv(d.qty, float64(d.orders)))
	}
	if len(orderSizes) > 0 {
		q25 := quantile(orderSizes, 0.25)
		for _, s := range orderSizes {
			if s < q25 {
				a.InefficientDepartments++
			}
		}
	}

	var daily []float64
	for _, n := range dailyCounts {
		daily = append(daily, float64(n))
	}
	a.DailyOrderMean = mean(daily)
	a.DailyOrderStd = sampleStd(daily)
}

// Metrics returns the snapshot as a flat variable map for advisory rule
// expressions. Keys are stable; renaming one breaks stored rules.
func (a *Aggregates) Metrics() map[string]any {
	return map[string]any{
		"po_count":                       a.Rows.PurchaseOrders,
		"supplier_count":                 a.Rows.Suppliers,
		"contract_count":                 a.Rows.Contracts,
		"rfq_count":                      a.Rows.RFQs,
		"total_spend":                    a.TotalSpend,
		"top_supplier_share":             a.TopSupplierShare,
		"otif_rate":                      a.OTIFRate,
		"lead_time_mean":                 a.LeadTimeMean,
		"lead_time_std":                  a.LeadTimeStd,
		"defect_rate":                    a.DefectRate,
		"poor_delivery_suppliers":        a.PoorDeliverySuppliers,
		"low_esg_suppliers":              a.LowESGSuppliers,
		"high_risk_suppliers":            a.HighRiskSuppliers,
		"single_supplier_countries":      a.SingleSupplierCountries,
		"top_country_share":              a.TopCountryShare,
		"active_non_compliant_contracts": a.ActiveNonCompliantContracts,
		"non_compliant_contracts":        a.NonCompliantContracts,
		"expiring_contracts":             a.ExpiringContracts,
		"top_contract_share":             a.TopContractShare,
		"short_term_contracts":           a.ShortTermContracts,
		"volatile_items":                 a.VolatileItems30,
		"overpriced_items":               a.OverpricedItems,
		"single_supplier_items":          a.SingleSupplierItems,
		"high_variance_quotes":           a.HighVarianceQuotes,
		"suspicious_rfqs":                a.SuspiciousRFQs,
		"single_bidder_rfqs":             a.SingleBidderRFQs,
		"high_price_pairs":               a.HighPricePairs,
		"large_orders":                   a.LargeOrders,
		"overused_budget_codes":          a.OverusedBudgetCodes,
		"missing_budget_orders":          a.MissingBudgetOrders,
		"small_order_share":              a.SmallOrderShare,
		"inefficient_departments":        a.InefficientDepartments,
		"daily_order_mean":               a.DailyOrderMean,
		"daily_order_std":                a.DailyOrderStd,
		"missing_field_count":            a.MissingFieldCount,
	}
}
