package metrics

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Cost analytics policy constants.
const (
	// overpricedIndex flags purchases above 110% of the item benchmark.
	overpricedIndex = 1.1

	// tailSavingsRate is the assumed savings from consolidating a tail
	// supplier (reduced transaction costs and better pricing).
	tailSavingsRate = 0.15

	// targetSavingsPct is the sourcing savings target against RFQ quotes.
	targetSavingsPct = 5.0

	// switchingVariationCV separates supplier-switching opportunities
	// from plain price negotiation.
	switchingVariationCV = 0.2
)

// CostAnalysis bundles the seven cost analytics computed over a dataset.
// Each section carries its rows plus a one-line summary; sections whose
// source tables are empty carry only an explanatory summary.
type CostAnalysis struct {
	PriceEfficiency    PriceEfficiency    `json:"priceEfficiency"`
	Negotiation        Negotiation        `json:"negotiation"`
	TailSpend          TailSpend          `json:"tailSpend"`
	UnitCostTrends     UnitCostTrends     `json:"unitCostTrends"`
	SavingsRealization SavingsRealization `json:"savingsRealization"`
	SpendAvoidance     SpendAvoidance     `json:"spendAvoidance"`
	ContractLeakage    ContractLeakage    `json:"contractLeakage"`
}

// PriceEfficiencyRow compares one purchase against the item benchmark.
type PriceEfficiencyRow struct {
	ItemID          string  `json:"itemId"`
	ItemName        string  `json:"itemName,omitempty"`
	Category        string  `json:"category,omitempty"`
	SupplierID      string  `json:"supplierId"`
	ActualPrice     float64 `json:"actualPrice"`
	BenchmarkPrice  float64 `json:"benchmarkPrice"`
	EfficiencyIndex float64 `json:"efficiencyIndex"`
	DeviationPct    float64 `json:"deviationPct"`
	Overpriced      bool    `json:"overpriced"`
	Quantity        float64 `json:"quantity"`
	TotalSpend      float64 `json:"totalSpend"`
}

// PriceEfficiency holds the benchmark price efficiency section.
type PriceEfficiency struct {
	Rows    []PriceEfficiencyRow `json:"rows,omitempty"`
	Summary string               `json:"summary"`
}

// NegotiationRow scores one supplier-item pair for renegotiation leverage.
type NegotiationRow struct {
	ItemID               string  `json:"itemId"`
	ItemName             string  `json:"itemName,omitempty"`
	Category             string  `json:"category,omitempty"`
	SupplierID           string  `json:"supplierId"`
	AvgPrice             float64 `json:"avgPrice"`
	PriceStd             float64 `json:"priceStd"`
	POCount              int     `json:"poCount"`
	TotalQuantity        float64 `json:"totalQuantity"`
	VolumeWeight         float64 `json:"volumeWeight"`
	PriceVariationFactor float64 `json:"priceVariationFactor"`
	CompetitionFactor    float64 `json:"competitionFactor"`
	OpportunityScore     float64 `json:"opportunityScore"`
	OpportunityLevel     string  `json:"opportunityLevel"`
}

// Negotiation holds the negotiation opportunity section.
type Negotiation struct {
	Rows    []NegotiationRow `json:"rows,omitempty"`
	Summary string           `json:"summary"`
}

// TailSpendRow is one consolidation candidate from the spend tail.
type TailSpendRow struct {
	SupplierID       string  `json:"supplierId"`
	SupplierName     string  `json:"supplierName,omitempty"`
	TotalSpend       float64 `json:"totalSpend"`
	SpendPct         float64 `json:"spendPct"`
	POCount          int     `json:"poCount"`
	AvgPOValue       float64 `json:"avgPoValue"`
	PotentialSavings float64 `json:"potentialSavings"`
	Priority         string  `json:"priority"`
}

// TailSpend holds the tail spend optimization section.
type TailSpend struct {
	Rows    []TailSpendRow `json:"rows,omitempty"`
	Summary string         `json:"summary"`
}

// UnitCostTrendRow tracks the monthly price trajectory of one item.
type UnitCostTrendRow struct {
	ItemID          string  `json:"itemId"`
	ItemName        string  `json:"itemName,omitempty"`
	Category        string  `json:"category,omitempty"`
	TrendSlope      float64 `json:"trendSlope"`
	PriceVolatility float64 `json:"priceVolatility"`
	TrendDirection  string  `json:"trendDirection"`
	AnomalyCount    int     `json:"anomalyCount"`
	AvgPrice        float64 `json:"avgPrice"`
	PriceRange      float64 `json:"priceRange"`
	TotalQuantity   float64 `json:"totalQuantity"`
	POCount         int     `json:"poCount"`
}

// UnitCostTrends holds the unit cost trend section.
type UnitCostTrends struct {
	Rows    []UnitCostTrendRow `json:"rows,omitempty"`
	Summary string             `json:"summary"`
}

// SavingsRealizationRow compares one RFQ quote against a matching purchase.
type SavingsRealizationRow struct {
	ItemID            string  `json:"itemId"`
	SupplierID        string  `json:"supplierId"`
	RFQCost           float64 `json:"rfqCost"`
	POCost            float64 `json:"poCost"`
	ActualSavings     float64 `json:"actualSavings"`
	ActualSavingsPct  float64 `json:"actualSavingsPct"`
	TargetSavings     float64 `json:"targetSavings"`
	SavingsGap        float64 `json:"savingsGap"`
	SavingsGapPct     float64 `json:"savingsGapPct"`
	RealizationStatus string  `json:"realizationStatus"`
	Quantity          float64 `json:"quantity"`
}

// SavingsRealization holds the savings realization section.
type SavingsRealization struct {
	Rows    []SavingsRealizationRow `json:"rows,omitempty"`
	Summary string                  `json:"summary"`
}

// SpendAvoidanceRow quantifies the cost avoidable by buying one item at
// its observed minimum price.
type SpendAvoidanceRow struct {
	ItemID            string  `json:"itemId"`
	ItemName          string  `json:"itemName,omitempty"`
	Category          string  `json:"category,omitempty"`
	CurrentAvgPrice   float64 `json:"currentAvgPrice"`
	MinPrice          float64 `json:"minPrice"`
	PriceVariationPct float64 `json:"priceVariationPct"`
	SupplierCount     int     `json:"supplierCount"`
	CurrentSpend      float64 `json:"currentSpend"`
	PotentialSpend    float64 `json:"potentialSpend"`
	AvoidedCost       float64 `json:"avoidedCost"`
	AvoidedCostPct    float64 `json:"avoidedCostPct"`
	AvoidanceType     string  `json:"avoidanceType"`
	Priority          string  `json:"priority"`
}

// SpendAvoidance holds the spend avoidance section.
type SpendAvoidance struct {
	Rows    []SpendAvoidanceRow `json:"rows,omitempty"`
	Summary string              `json:"summary"`
}

// CategoryLeakageRow breaks contract leakage down by item category.
type CategoryLeakageRow struct {
	Category         string  `json:"category"`
	TotalSpend       float64 `json:"totalSpend"`
	ContractedPOs    int     `json:"contractedPos"`
	TotalPOs         int     `json:"totalPos"`
	ContractedSpend  float64 `json:"contractedSpend"`
	OffContractSpend float64 `json:"offContractSpend"`
	LeakagePct       float64 `json:"leakagePct"`
}

// OffContractItemRow is one item bought outside any supplier contract.
type OffContractItemRow struct {
	ItemID     string  `json:"itemId"`
	ItemName   string  `json:"itemName,omitempty"`
	Category   string  `json:"category,omitempty"`
	TotalSpend float64 `json:"totalSpend"`
	POCount    int     `json:"poCount"`
}

// ContractLeakage holds the contract leakage section.
type ContractLeakage struct {
	TotalSpend       float64              `json:"totalSpend"`
	ContractedSpend  float64              `json:"contractedSpend"`
	OffContractSpend float64              `json:"offContractSpend"`
	LeakagePct       float64              `json:"leakagePct"`
	ByCategory       []CategoryLeakageRow `json:"byCategory,omitempty"`
	TopOffContract   []OffContractItemRow `json:"topOffContract,omitempty"`
	Summary          string               `json:"summary"`
}

// ComputeCosts runs the seven cost analytics over a dataset. Like Compute,
// it is a pure function: empty tables yield empty sections with an
// explanatory summary, never an error.
func ComputeCosts(ds *domain.Dataset) *CostAnalysis {
	itemByID := make(map[string]*domain.Item, len(ds.Items))
	for i := range ds.Items {
		it := &ds.Items[i]
		if _, ok := itemByID[it.ItemID]; !ok {
			itemByID[it.ItemID] = it
		}
	}
	supplierByID := make(map[string]*domain.Supplier, len(ds.Suppliers))
	for i := range ds.Suppliers {
		s := &ds.Suppliers[i]
		if _, ok := supplierByID[s.SupplierID]; !ok {
			supplierByID[s.SupplierID] = s
		}
	}

	return &CostAnalysis{
		PriceEfficiency:    computePriceEfficiency(ds, itemByID),
		Negotiation:        computeNegotiation(ds, itemByID),
		TailSpend:          computeTailSpend(ds, supplierByID),
		UnitCostTrends:     computeUnitCostTrends(ds, itemByID),
		SavingsRealization: computeSavingsRealization(ds),
		SpendAvoidance:     computeSpendAvoidance(ds, itemByID),
		ContractLeakage:    computeContractLeakage(ds, itemByID),
	}
}

func itemName(itemByID map[string]*domain.Item, id string) (name, category string) {
	if it, ok := itemByID[id]; ok {
		return it.ItemName, it.Category
	}
	return "", ""
}

// computePriceEfficiency compares each purchase against the median unit
// price paid for the same item. The median is the benchmark; purchases
// above 110% of it are flagged as overpriced.
func computePriceEfficiency(ds *domain.Dataset, itemByID map[string]*domain.Item) PriceEfficiency {
	if len(ds.PurchaseOrders) == 0 || len(ds.Items) == 0 {
		return PriceEfficiency{Summary: "No data available for benchmark analysis"}
	}

	pricesByItem := make(map[string][]float64)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		pricesByItem[po.ItemID] = append(pricesByItem[po.ItemID], po.UnitPrice)
	}

	var rows []PriceEfficiencyRow
	var effSum, totalSpend, overpricedSpend float64
	overpriced := 0

	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		benchmark := quantile(pricesByItem[po.ItemID], 0.5)
		if benchmark <= 0 {
			continue
		}
		index := po.UnitPrice / benchmark
		name, category := itemName(itemByID, po.ItemID)
		row := PriceEfficiencyRow{
			ItemID:          po.ItemID,
			ItemName:        name,
			Category:        category,
			SupplierID:      po.SupplierID,
			ActualPrice:     po.UnitPrice,
			BenchmarkPrice:  benchmark,
			EfficiencyIndex: index,
			DeviationPct:    (index - 1) * 100,
			Overpriced:      index > overpricedIndex,
			Quantity:        po.Quantity,
			TotalSpend:      po.LineSpend(),
		}
		rows = append(rows, row)

		effSum += index
		totalSpend += row.TotalSpend
		if row.Overpriced {
			overpriced++
			overpricedSpend += row.TotalSpend
		}
	}

	if len(rows) == 0 {
		return PriceEfficiency{Summary: "No efficiency data calculated"}
	}

	return PriceEfficiency{
		Rows: rows,
		Summary: fmt.Sprintf("Avg Efficiency: %.2f | Overpriced Items: %d | Overpriced Spend: $%s (%.1f%% of total)",
			effSum/float64(len(rows)), overpriced,
			FormatAmount(overpricedSpend), safeDiv(overpricedSpend, totalSpend)*100),
	}
}

// computeNegotiation scores supplier-item pairs for renegotiation leverage:
// high volume, stable prices, and multiple competing suppliers all raise
// the opportunity score.
func computeNegotiation(ds *domain.Dataset, itemByID map[string]*domain.Item) Negotiation {
	if len(ds.PurchaseOrders) == 0 || len(ds.Items) == 0 {
		return Negotiation{Summary: "No data available for negotiation opportunity analysis"}
	}

	type pairKey struct{ itemID, supplierID string }
	type pairAgg struct {
		prices []float64
		qty    float64
	}
	pairs := make(map[pairKey]*pairAgg)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		k := pairKey{po.ItemID, po.SupplierID}
		p := pairs[k]
		if p == nil {
			p = &pairAgg{}
			pairs[k] = p
		}
		p.prices = append(p.prices, po.UnitPrice)
		p.qty += po.Quantity
	}

	suppliersByItem := make(map[string][]pairKey)
	maxQtyByItem := make(map[string]float64)
	for k, p := range pairs {
		suppliersByItem[k.itemID] = append(suppliersByItem[k.itemID], k)
		if p.qty > maxQtyByItem[k.itemID] {
			maxQtyByItem[k.itemID] = p.qty
		}
	}

	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].itemID != keys[j].itemID {
			return keys[i].itemID < keys[j].itemID
		}
		return keys[i].supplierID < keys[j].supplierID
	})

	var rows []NegotiationRow
	var scoreSum float64
	high := 0
	for _, k := range keys {
		p := pairs[k]
		avg := mean(p.prices)
		std := sampleStd(p.prices)

		volumeWeight := math.Min(safeDiv(p.qty, maxQtyByItem[k.itemID]), 1.0)

		// A single purchase has no observable price variation, which
		// gives no evidence of stability: the factor stays 0.
		variationFactor := 0.0
		if len(p.prices) >= 2 {
			variationFactor = math.Max(0, 1-safeDiv(std, avg))
		}

		competition := math.Min(float64(len(suppliersByItem[k.itemID]))/3, 1.0)

		score := volumeWeight * variationFactor * competition
		level := "Low"
		switch {
		case score >= 0.7:
			level = "High"
			high++
		case score >= 0.4:
			level = "Medium"
		}

		name, category := itemName(itemByID, k.itemID)
		rows = append(rows, NegotiationRow{
			ItemID:               k.itemID,
			ItemName:             name,
			Category:             category,
			SupplierID:           k.supplierID,
			AvgPrice:             avg,
			PriceStd:             std,
			POCount:              len(p.prices),
			TotalQuantity:        p.qty,
			VolumeWeight:         volumeWeight,
			PriceVariationFactor: variationFactor,
			CompetitionFactor:    competition,
			OpportunityScore:     score,
			OpportunityLevel:     level,
		})
		scoreSum += score
	}

	return Negotiation{
		Rows: rows,
		Summary: fmt.Sprintf("Avg Opportunity Score: %.2f | High Opportunity Items: %d",
			safeDiv(scoreSum, float64(len(rows))), high),
	}
}

// computeTailSpend finds the long tail of low-spend suppliers: those past
// the 80th percentile of cumulative spend share. Consolidating them saves
// an assumed 15% of their spend.
func computeTailSpend(ds *domain.Dataset, supplierByID map[string]*domain.Supplier) TailSpend {
	if len(ds.PurchaseOrders) == 0 || len(ds.Suppliers) == 0 {
		return TailSpend{Summary: "No data available for tail spend analysis"}
	}

	type spendAgg struct {
		supplierID string
		spend      float64
		poCount    int
	}
	bySupplier := make(map[string]*spendAgg)
	var total float64
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		s := bySupplier[po.SupplierID]
		if s == nil {
			s = &spendAgg{supplierID: po.SupplierID}
			bySupplier[po.SupplierID] = s
		}
		s.spend += po.LineSpend()
		s.poCount++
		total += po.LineSpend()
	}

	ordered := make([]*spendAgg, 0, len(bySupplier))
	for _, s := range bySupplier {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].spend != ordered[j].spend {
			return ordered[i].spend > ordered[j].spend
		}
		return ordered[i].supplierID < ordered[j].supplierID
	})

	cumulative := make([]float64, len(ordered))
	var running float64
	for i, s := range ordered {
		running += safeDiv(s.spend, total) * 100
		cumulative[i] = running
	}

	threshold := quantile(cumulative, 0.8)

	var rows []TailSpendRow
	var tailSpend float64
	tailPOs := 0
	for i, s := range ordered {
		if cumulative[i] <= threshold {
			continue
		}
		name := ""
		if sup, ok := supplierByID[s.supplierID]; ok {
			name = sup.SupplierName
		}
		rows = append(rows, TailSpendRow{
			SupplierID:       s.supplierID,
			SupplierName:     name,
			TotalSpend:       s.spend,
			SpendPct:         safeDiv(s.spend, total) * 100,
			POCount:          s.poCount,
			AvgPOValue:       safeDiv(s.spend, float64(s.poCount)),
			PotentialSavings: s.spend * tailSavingsRate,
			Priority:         tailPriority(s.poCount),
		})
		tailSpend += s.spend
		tailPOs += s.poCount
	}

	return TailSpend{
		Rows: rows,
		Summary: fmt.Sprintf("Tail Spend: $%s (%.1f%% of total) | Tail Suppliers: %d | Avg PO Value: $%s",
			FormatAmount(tailSpend), safeDiv(tailSpend, total)*100,
			len(rows), FormatAmount(safeDiv(tailSpend, float64(tailPOs)))),
	}
}

func tailPriority(poCount int) string {
	if poCount > 5 {
		return "High"
	}
	return "Medium"
}

// computeUnitCostTrends fits a least-squares slope through each item's
// monthly average prices. Items observed in a single month carry no trend
// and are skipped. Anomalies are months more than two standard deviations
// above the item's overall monthly average.
func computeUnitCostTrends(ds *domain.Dataset, itemByID map[string]*domain.Item) UnitCostTrends {
	if len(ds.PurchaseOrders) == 0 || len(ds.Items) == 0 {
		return UnitCostTrends{Summary: "No data available for unit cost trend analysis"}
	}

	type monthAgg struct {
		prices []float64
		qty    float64
	}
	months := make(map[string]map[string]*monthAgg) // itemID -> "2026-01" -> agg
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		month := po.OrderDate.Format("2006-01")
		byMonth := months[po.ItemID]
		if byMonth == nil {
			byMonth = make(map[string]*monthAgg)
			months[po.ItemID] = byMonth
		}
		m := byMonth[month]
		if m == nil {
			m = &monthAgg{}
			byMonth[month] = m
		}
		m.prices = append(m.prices, po.UnitPrice)
		m.qty += po.Quantity
	}

	itemIDs := make([]string, 0, len(months))
	for id := range months {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	var rows []UnitCostTrendRow
	increasing, anomalies := 0, 0
	var volSum float64

	for _, id := range itemIDs {
		byMonth := months[id]
		if len(byMonth) < 2 {
			continue
		}

		keys := make([]string, 0, len(byMonth))
		for m := range byMonth {
			keys = append(keys, m)
		}
		sort.Strings(keys)

		avgs := make([]float64, len(keys))
		var stds []float64
		var totalQty float64
		poCount := 0
		for i, m := range keys {
			agg := byMonth[m]
			avgs[i] = mean(agg.prices)
			// Single-purchase months have no defined deviation and
			// drop out of the volatility average.
			if len(agg.prices) >= 2 {
				stds = append(stds, sampleStd(agg.prices))
			}
			totalQty += agg.qty
			poCount += len(agg.prices)
		}

		slope := olsSlope(avgs)
		volatility := safeDiv(mean(stds), mean(avgs))

		overallMean := mean(avgs)
		overallStd := sampleStd(avgs)
		anomalyCount := 0
		for _, a := range avgs {
			if a > overallMean+2*overallStd {
				anomalyCount++
			}
		}

		direction := "Decreasing"
		if slope > 0 {
			direction = "Increasing"
			increasing++
		}

		minAvg, maxAvg := avgs[0], avgs[0]
		for _, a := range avgs[1:] {
			minAvg = math.Min(minAvg, a)
			maxAvg = math.Max(maxAvg, a)
		}

		name, category := itemName(itemByID, id)
		rows = append(rows, UnitCostTrendRow{
			ItemID:          id,
			ItemName:        name,
			Category:        category,
			TrendSlope:      slope,
			PriceVolatility: volatility,
			TrendDirection:  direction,
			AnomalyCount:    anomalyCount,
			AvgPrice:        overallMean,
			PriceRange:      maxAvg - minAvg,
			TotalQuantity:   totalQty,
			POCount:         poCount,
		})
		volSum += volatility
		anomalies += anomalyCount
	}

	if len(rows) == 0 {
		return UnitCostTrends{Summary: "No trend data calculated"}
	}

	return UnitCostTrends{
		Rows: rows,
		Summary: fmt.Sprintf("Increasing Price Items: %d | Avg Volatility: %.2f | Total Anomalies: %d",
			increasing, volSum/float64(len(rows)), anomalies),
	}
}

// olsSlope is the least-squares slope of ys against 0..n-1.
func olsSlope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	yMean := mean(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	return safeDiv(num, den)
}

// computeSavingsRealization joins RFQ quotes to purchases of the same
// supplier-item pair and measures realized savings against the target.
func computeSavingsRealization(ds *domain.Dataset) SavingsRealization {
	if len(ds.PurchaseOrders) == 0 || len(ds.RFQs) == 0 {
		return SavingsRealization{Summary: "No data available for savings realization tracking"}
	}

	type pairKey struct{ supplierID, itemID string }
	posByPair := make(map[pairKey][]*domain.PurchaseOrder)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		k := pairKey{po.SupplierID, po.ItemID}
		posByPair[k] = append(posByPair[k], po)
	}

	var rows []SavingsRealizationRow
	var realizationSum, gapSum float64
	exceeded, below := 0, 0

	for i := range ds.RFQs {
		rfq := &ds.RFQs[i]
		rfqCost := rfq.UnitPrice * rfq.Quantity
		for _, po := range posByPair[pairKey{rfq.SupplierID, rfq.ItemID}] {
			poCost := po.LineSpend()
			savings := rfqCost - poCost
			savingsPct := safeDiv(savings, rfqCost) * 100
			target := rfqCost * targetSavingsPct / 100
			gap := target - savings

			status := "Below Target"
			switch {
			case savingsPct >= targetSavingsPct:
				status = "Exceeded Target"
				exceeded++
			case savingsPct >= targetSavingsPct*0.8:
				status = "Near Target"
			default:
				below++
			}

			rows = append(rows, SavingsRealizationRow{
				ItemID:            rfq.ItemID,
				SupplierID:        rfq.SupplierID,
				RFQCost:           rfqCost,
				POCost:            poCost,
				ActualSavings:     savings,
				ActualSavingsPct:  savingsPct,
				TargetSavings:     target,
				SavingsGap:        gap,
				SavingsGapPct:     safeDiv(gap, rfqCost) * 100,
				RealizationStatus: status,
				Quantity:          po.Quantity,
			})
			realizationSum += savingsPct
			gapSum += gap
		}
	}

	if len(rows) == 0 {
		return SavingsRealization{Summary: "No matching RFQ-PO data found for savings tracking"}
	}

	return SavingsRealization{
		Rows: rows,
		Summary: fmt.Sprintf("Avg Realization: %.1f%% | Exceeded Target: %d | Below Target: %d | Total Gap: $%s",
			realizationSum/float64(len(rows)), exceeded, below, FormatAmount(gapSum)),
	}
}

// computeSpendAvoidance finds multi-supplier items bought above their
// observed minimum price and quantifies the avoidable spend.
func computeSpendAvoidance(ds *domain.Dataset, itemByID map[string]*domain.Item) SpendAvoidance {
	if len(ds.PurchaseOrders) == 0 || len(ds.Items) == 0 {
		return SpendAvoidance{Summary: "No data available for spend avoidance analysis"}
	}

	type itemAgg struct {
		prices    []float64
		suppliers map[string]bool
		spend     float64
		qty       float64
	}
	byItem := make(map[string]*itemAgg)
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		a := byItem[po.ItemID]
		if a == nil {
			a = &itemAgg{suppliers: make(map[string]bool)}
			byItem[po.ItemID] = a
		}
		a.prices = append(a.prices, po.UnitPrice)
		a.suppliers[po.SupplierID] = true
		a.spend += po.LineSpend()
		a.qty += po.Quantity
	}

	itemIDs := make([]string, 0, len(byItem))
	for id := range byItem {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	var rows []SpendAvoidanceRow
	var totalAvoided, avoidancePctSum float64
	highPriority := 0

	for _, id := range itemIDs {
		a := byItem[id]
		if len(a.suppliers) < 2 {
			continue
		}
		avg := mean(a.prices)
		minPrice, maxPrice := a.prices[0], a.prices[0]
		for _, p := range a.prices[1:] {
			minPrice = math.Min(minPrice, p)
			maxPrice = math.Max(maxPrice, p)
		}
		if minPrice >= avg {
			continue
		}

		potential := a.qty * minPrice
		avoided := a.spend - potential
		avoidedPct := safeDiv(avoided, a.spend) * 100

		avoidanceType := "Price Negotiation"
		if safeDiv(sampleStd(a.prices), avg) > switchingVariationCV {
			avoidanceType = "Supplier Switching"
		}
		priority := "Medium"
		if avoidedPct > 10 {
			priority = "High"
			highPriority++
		}

		name, category := itemName(itemByID, id)
		rows = append(rows, SpendAvoidanceRow{
			ItemID:            id,
			ItemName:          name,
			Category:          category,
			CurrentAvgPrice:   avg,
			MinPrice:          minPrice,
			PriceVariationPct: safeDiv(maxPrice-minPrice, avg) * 100,
			SupplierCount:     len(a.suppliers),
			CurrentSpend:      a.spend,
			PotentialSpend:    potential,
			AvoidedCost:       avoided,
			AvoidedCostPct:    avoidedPct,
			AvoidanceType:     avoidanceType,
			Priority:          priority,
		})
		totalAvoided += avoided
		avoidancePctSum += avoidedPct
	}

	if len(rows) == 0 {
		return SpendAvoidance{Summary: "No avoidance opportunities found"}
	}

	return SpendAvoidance{
		Rows: rows,
		Summary: fmt.Sprintf("Total Avoided Cost: $%s | High Priority: %d | Avg Avoidance: %.1f%%",
			FormatAmount(totalAvoided), highPriority, avoidancePctSum/float64(len(rows))),
	}
}

// computeContractLeakage measures spend flowing to suppliers without any
// contract. Contracts bind at the supplier level, so every purchase from
// a contracted supplier counts as contracted regardless of item.
func computeContractLeakage(ds *domain.Dataset, itemByID map[string]*domain.Item) ContractLeakage {
	if len(ds.PurchaseOrders) == 0 || len(ds.Contracts) == 0 || len(ds.Items) == 0 {
		return ContractLeakage{Summary: "No data available for contract leakage analysis"}
	}

	contracted := make(map[string]bool, len(ds.Contracts))
	for i := range ds.Contracts {
		contracted[ds.Contracts[i].SupplierID] = true
	}

	type catAgg struct {
		spend         float64
		contractedPOs int
		totalPOs      int
	}
	type offItemAgg struct {
		spend   float64
		poCount int
	}
	byCategory := make(map[string]*catAgg)
	offByItem := make(map[string]*offItemAgg)

	result := ContractLeakage{}
	for i := range ds.PurchaseOrders {
		po := &ds.PurchaseOrders[i]
		spend := po.LineSpend()
		result.TotalSpend += spend

		_, category := itemName(itemByID, po.ItemID)
		c := byCategory[category]
		if c == nil {
			c = &catAgg{}
			byCategory[category] = c
		}
		c.spend += spend
		c.totalPOs++

		if contracted[po.SupplierID] {
			result.ContractedSpend += spend
			c.contractedPOs++
			continue
		}
		o := offByItem[po.ItemID]
		if o == nil {
			o = &offItemAgg{}
			offByItem[po.ItemID] = o
		}
		o.spend += spend
		o.poCount++
	}

	result.OffContractSpend = result.TotalSpend - result.ContractedSpend
	result.LeakagePct = safeDiv(result.OffContractSpend, result.TotalSpend) * 100

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		c := byCategory[cat]
		contractedSpend := c.spend * safeDiv(float64(c.contractedPOs), float64(c.totalPOs))
		result.ByCategory = append(result.ByCategory, CategoryLeakageRow{
			Category:         cat,
			TotalSpend:       c.spend,
			ContractedPOs:    c.contractedPOs,
			TotalPOs:         c.totalPOs,
			ContractedSpend:  contractedSpend,
			OffContractSpend: c.spend - contractedSpend,
			LeakagePct:       safeDiv(c.spend-contractedSpend, c.spend) * 100,
		})
	}

	for id, o := range offByItem {
		name, category := itemName(itemByID, id)
		result.TopOffContract = append(result.TopOffContract, OffContractItemRow{
			ItemID:     id,
			ItemName:   name,
			Category:   category,
			TotalSpend: o.spend,
			POCount:    o.poCount,
		})
	}
	sort.Slice(result.TopOffContract, func(i, j int) bool {
		a, b := result.TopOffContract[i], result.TopOffContract[j]
		if a.TotalSpend != b.TotalSpend {
			return a.TotalSpend > b.TotalSpend
		}
		return a.ItemID < b.ItemID
	})

	result.Summary = fmt.Sprintf("Contract Leakage: %.1f%% | Off-Contract Spend: $%s | Contracted Spend: $%s",
		result.LeakagePct, FormatAmount(result.OffContractSpend), FormatAmount(result.ContractedSpend))
	return result
}
