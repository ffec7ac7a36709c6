package risk

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

var reportNow = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestNewEngineValidatesWeights(t *testing.T) {
	if _, err := NewEngine(nil); err != nil {
		t.Fatalf("NewEngine(nil) error = %v", err)
	}

	bad := domain.DefaultWeights()
	bad[domain.CategorySupplier] = 0.9
	if _, err := NewEngine(bad); err == nil {
		t.Error("NewEngine accepted weights that do not sum to 1")
	}

	delete(bad, domain.CategorySupplier)
	if _, err := NewEngine(bad); err == nil {
		t.Error("NewEngine accepted an incomplete weight table")
	}
}

func TestAssessEmptyDataset(t *testing.T) {
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	ds := &domain.Dataset{ID: "ds-1", TenantID: "t-1"}

	report, agg := engine.Assess("t-1", ds, reportNow)
	if agg == nil {
		t.Fatal("Assess returned nil aggregates")
	}
	if len(report.Categories) != 8 {
		t.Fatalf("Categories = %d, want 8", len(report.Categories))
	}

	// Every category guards on missing input: nothing was assessed.
	unknown := report.CountLevel(domain.LevelUnknown)
	if unknown != 8 {
		t.Errorf("Unknown categories = %d, want 8", unknown)
		for name, c := range report.Categories {
			if c.Level != domain.LevelUnknown {
				t.Logf("%s: level = %q", name, c.Level)
			}
		}
	}
	if report.OverallScore != 0 {
		t.Errorf("OverallScore = %v, want 0", report.OverallScore)
	}
	if report.OverallLevel != domain.LevelLow {
		t.Errorf("OverallLevel = %q, want Low", report.OverallLevel)
	}
	if report.ID == "" || report.DatasetID != "ds-1" || report.TenantID != "t-1" {
		t.Errorf("report identity fields: %+v", report)
	}
}

func TestAssessWeightedOverall(t *testing.T) {
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}

	// One dominant supplier with poor delivery and a non-compliant
	// contract. Supplier Risk lands at 70 (40 concentration + 30 OTIF).
	esgScore := 70.0
	ds := &domain.Dataset{
		ID:       "ds-2",
		TenantID: "t-1",
		Suppliers: []domain.Supplier{
			{SupplierID: "S1", SupplierName: "Acme", Country: "US", ESGScore: &esgScore},
			{SupplierID: "S2", SupplierName: "Beta", Country: "US", ESGScore: &esgScore},
		},
		PurchaseOrders: []domain.PurchaseOrder{
			{POID: "PO1", SupplierID: "S1", ItemID: "I1", Quantity: 9, UnitPrice: 100,
				OrderDate: reportNow.Add(-20 * 24 * time.Hour), DeliveryDate: reportNow.Add(-15 * 24 * time.Hour), BudgetCode: "B1"},
			{POID: "PO2", SupplierID: "S2", ItemID: "I1", Quantity: 1, UnitPrice: 100,
				OrderDate: reportNow.Add(-20 * 24 * time.Hour), DeliveryDate: reportNow.Add(-15 * 24 * time.Hour), BudgetCode: "B1"},
		},
		Deliveries: []domain.Delivery{
			{DeliveryID: "D1", POID: "PO1", ActualDate: reportNow.Add(-10 * 24 * time.Hour)},
			{DeliveryID: "D2", POID: "PO2", ActualDate: reportNow.Add(-12 * 24 * time.Hour)},
		},
		Contracts: []domain.Contract{
			{ContractID: "C1", SupplierID: "S1", StartDate: reportNow.Add(-365 * 24 * time.Hour),
				EndDate: reportNow.Add(180 * 24 * time.Hour), ContractValue: 50000,
				ComplianceStatus: domain.ComplianceNonCompliant},
		},
	}

	report, _ := engine.Assess("t-1", ds, reportNow)

	supplier := report.Categories[domain.CategorySupplier]
	if supplier.Score < 70 {
		t.Errorf("supplier Score = %v, want >= 70", supplier.Score)
	}
	if supplier.Level != domain.LevelHigh {
		t.Errorf("supplier Level = %q, want High", supplier.Level)
	}

	// The overall score is the weighted sum of raw category scores.
	weights := domain.DefaultWeights()
	var want float64
	for _, name := range domain.CategoryOrder {
		want += report.Categories[name].Score * weights[name]
	}
	if math.Abs(report.OverallScore-want) > 1e-9 {
		t.Errorf("OverallScore = %v, want %v", report.OverallScore, want)
	}
	if report.OverallLevel != domain.ClassifyScore(report.OverallScore) {
		t.Errorf("OverallLevel = %q inconsistent with score %v", report.OverallLevel, report.OverallScore)
	}
}

func TestRankTopRisks(t *testing.T) {
	categories := make(map[string]*domain.CategoryResult)
	for _, name := range domain.CategoryOrder {
		categories[name] = &domain.CategoryResult{Category: name}
	}
	categories[domain.CategoryDelivery].Score = 50
	categories[domain.CategoryFraud].Score = 50
	categories[domain.CategoryProcess].Score = 80

	top := rankTopRisks(categories)
	if len(top) != 3 {
		t.Fatalf("len(top) = %d, want 3", len(top))
	}
	if top[0].Category != domain.CategoryProcess {
		t.Errorf("top[0] = %q, want Process Risk", top[0].Category)
	}
	// Delivery precedes Fraud in canonical order, so the tie breaks that way.
	if top[1].Category != domain.CategoryDelivery || top[2].Category != domain.CategoryFraud {
		t.Errorf("tie break order = %q, %q", top[1].Category, top[2].Category)
	}
}

func TestRankTopRisksAllZero(t *testing.T) {
	categories := make(map[string]*domain.CategoryResult)
	for _, name := range domain.CategoryOrder {
		categories[name] = &domain.CategoryResult{Category: name}
	}
	top := rankTopRisks(categories)
	if len(top) != 3 {
		t.Fatalf("len(top) = %d, want 3", len(top))
	}
	// All-zero scores fall back to canonical order.
	want := []string{domain.CategorySupplier, domain.CategoryContractual, domain.CategoryPricingCost}
	for i, w := range want {
		if top[i].Category != w {
			t.Errorf("top[%d] = %q, want %q", i, top[i].Category, w)
		}
	}
}

func TestConsolidateMitigation(t *testing.T) {
	categories := make(map[string]*domain.CategoryResult)
	for _, name := range domain.CategoryOrder {
		categories[name] = &domain.CategoryResult{Category: name}
	}
	categories[domain.CategorySupplier].Mitigation = []string{"A", "B"}
	categories[domain.CategoryContractual].Mitigation = []string{"B", "C"}
	categories[domain.CategoryPricingCost].Mitigation = []string{"A", "D"}

	got := consolidateMitigation(categories)
	want := []string{"A", "B", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConsolidateMitigationCap(t *testing.T) {
	categories := make(map[string]*domain.CategoryResult)
	strategies := []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11"}
	for i, name := range domain.CategoryOrder {
		categories[name] = &domain.CategoryResult{
			Category:   name,
			Mitigation: []string{strategies[i], strategies[i+4]},
		}
	}
	got := consolidateMitigation(categories)
	if len(got) > 10 {
		t.Errorf("consolidated list has %d entries, want at most 10", len(got))
	}
}

func TestAssessMitigationNeverEmpty(t *testing.T) {
	engine, _ := NewEngine(nil)
	report, _ := engine.Assess("t-1", &domain.Dataset{ID: "ds"}, reportNow)
	for _, name := range domain.CategoryOrder {
		if len(report.Categories[name].Mitigation) == 0 {
			t.Errorf("category %q has no mitigation", name)
		}
	}
	if len(report.Mitigation) == 0 {
		t.Error("consolidated mitigation is empty")
	}
}

func TestAssessMetadata(t *testing.T) {
	engine, _ := NewEngine(nil)
	report, _ := engine.Assess("t-1", &domain.Dataset{ID: "ds"}, reportNow)
	if report.Metadata.CategoriesEvaluated != 8 {
		t.Errorf("CategoriesEvaluated = %d, want 8", report.Metadata.CategoriesEvaluated)
	}
	if report.Metadata.EngineVersion != EngineVersion {
		t.Errorf("EngineVersion = %q", report.Metadata.EngineVersion)
	}
}
