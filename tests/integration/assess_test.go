//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel risk scoring engine.
//
// These tests verify the COMPLETE assessment pipeline:
//
//	Dataset → Aggregation → Category Scoring → Report → Insights
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. DATASET: A snapshot of procurement tables (POs, suppliers, deliveries,
//    invoices, contracts, budgets, RFQs) ingested as one JSON document.
//
// 2. CATEGORY: One of eight fixed risk dimensions (supplier, contractual,
//    pricing_cost, delivery, fraud, market, compliance, process). Each is
//    scored 0-100 by an additive ladder of checks.
//
// 3. LEVEL: Score-to-level mapping:
//   - Score >= 60 → High
//   - Score >= 30 → Medium
//   - Otherwise   → Low
//
// 4. REPORT: Weighted overall score, all eight category results, top-3
//    risks, and a consolidated mitigation list.
//
// 5. ADVISORY RULE: An optional CEL expression over aggregate metrics,
//    configured per tenant via POST /rules. Findings annotate the report
//    but never change the fixed category ladders.
//
// These tests require a running Kestrel instance (community tier is fine):
//
//	go run cmd/kestrel/main.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("itest-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

type PurchaseOrder struct {
	POID         string  `json:"poId"`
	OrderDate    string  `json:"orderDate"`
	SupplierID   string  `json:"supplierId"`
	ItemID       string  `json:"itemId"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	DeliveryDate string  `json:"deliveryDate"`
}

type Supplier struct {
	SupplierID   string `json:"supplierId"`
	SupplierName string `json:"supplierName"`
	Country      string `json:"country"`
}

type Delivery struct {
	DeliveryID string `json:"deliveryId"`
	POID       string `json:"poId"`
	ActualDate string `json:"actualDate"`
}

type Dataset struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	PurchaseOrders []PurchaseOrder `json:"purchaseOrders"`
	Suppliers      []Supplier      `json:"suppliers"`
	Deliveries     []Delivery      `json:"deliveries,omitempty"`
}

type IngestResponse struct {
	Dataset struct {
		ID             string `json:"id"`
		PurchaseOrders int    `json:"purchaseOrders"`
		Suppliers      int    `json:"suppliers"`
	} `json:"dataset"`
	Metadata struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

type CategoryResult struct {
	Category   string   `json:"category"`
	Score      float64  `json:"score"`
	Level      string   `json:"level"`
	Factors    []string `json:"factors"`
	Mitigation []string `json:"mitigation"`
}

type RiskReport struct {
	ID           string                     `json:"id"`
	DatasetID    string                     `json:"datasetId"`
	OverallScore float64                    `json:"overallScore"`
	OverallLevel string                     `json:"overallLevel"`
	Categories   map[string]*CategoryResult `json:"riskCategories"`
	TopRisks     []struct {
		Category string  `json:"category"`
		Score    float64 `json:"score"`
	} `json:"topRisks"`
	Mitigation []string `json:"consolidatedMitigation"`
	Advisory   []struct {
		RuleID    string  `json:"ruleId"`
		Triggered bool    `json:"triggered"`
		Points    float64 `json:"points"`
	} `json:"advisory,omitempty"`
	Metadata struct {
		TraceID             string `json:"traceId"`
		TotalMs             int64  `json:"totalMs"`
		CategoriesEvaluated int    `json:"categoriesEvaluated"`
		RulesEvaluated      int    `json:"rulesEvaluated"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doJSON(t *testing.T, config TestConfig, method, path string, payload any, want int) []byte {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != want {
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, string(respBody))
	}

	return respBody
}

// concentratedDataset puts 90% of spend with one supplier and tracks a
// mostly-late delivery record, which pushes the supplier category High.
func concentratedDataset(id string) Dataset {
	now := time.Now().UTC()
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format(time.RFC3339)
	}

	ds := Dataset{
		ID: id,
		Suppliers: []Supplier{
			{SupplierID: "SUP-1", SupplierName: "Acme Corp", Country: "USA"},
			{SupplierID: "SUP-2", SupplierName: "Global Supply Co", Country: "Germany"},
		},
	}

	for i := 0; i < 9; i++ {
		ds.PurchaseOrders = append(ds.PurchaseOrders, PurchaseOrder{
			POID:         fmt.Sprintf("PO-A%d", i),
			OrderDate:    day(-30),
			SupplierID:   "SUP-1",
			ItemID:       "ITEM-1",
			Quantity:     10,
			UnitPrice:    100,
			DeliveryDate: day(-10),
		})
	}
	ds.PurchaseOrders = append(ds.PurchaseOrders, PurchaseOrder{
		POID:         "PO-B",
		OrderDate:    day(-30),
		SupplierID:   "SUP-2",
		ItemID:       "ITEM-1",
		Quantity:     1,
		UnitPrice:    1000,
		DeliveryDate: day(-10),
	})

	for i, late := range []bool{true, true, true, false} {
		actual := day(-9)
		if !late {
			actual = day(-11)
		}
		ds.Deliveries = append(ds.Deliveries, Delivery{
			DeliveryID: fmt.Sprintf("DEL-%d", i),
			POID:       ds.PurchaseOrders[i].POID,
			ActualDate: actual,
		})
	}

	return ds
}

// ============================================================================
// SCENARIO 1: Full Pipeline (Ingest → Assess → Report)
// ============================================================================

func TestIngestAssessReport(t *testing.T) {
	/*
	   SCENARIO: Ingest a concentrated dataset, assess it, fetch the report.

	   EXPECTED BEHAVIOR:
	   - Ingest returns 201 with row counts
	   - Assessment returns all eight categories and exactly three top risks
	   - Supplier category is High: 90% concentration (+40), OTIF 25% (+30),
	     and two single-supplier countries (+15)
	   - The latest-report endpoint returns the same report
	*/
	config := getTestConfig()

	ds := concentratedDataset("ds-pipeline")
	body := doJSON(t, config, "POST", "/datasets", ds, http.StatusCreated)

	var ingest IngestResponse
	if err := json.Unmarshal(body, &ingest); err != nil {
		t.Fatalf("Failed to unmarshal ingest response: %v", err)
	}
	if ingest.Dataset.PurchaseOrders != 10 {
		t.Errorf("Expected 10 POs ingested, got %d", ingest.Dataset.PurchaseOrders)
	}

	body = doJSON(t, config, "POST", "/datasets/ds-pipeline/assess", nil, http.StatusOK)

	var report RiskReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}

	if len(report.Categories) != 8 {
		t.Errorf("Expected 8 categories, got %d", len(report.Categories))
	}
	if len(report.TopRisks) != 3 {
		t.Errorf("Expected 3 top risks, got %d", len(report.TopRisks))
	}

	supplier := report.Categories["supplier"]
	if supplier == nil {
		t.Fatal("Missing supplier category")
	}
	if supplier.Level != "High" {
		t.Errorf("Expected High supplier risk, got %s (score %.1f)", supplier.Level, supplier.Score)
	}
	if len(supplier.Factors) == 0 {
		t.Error("Expected supplier risk factors")
	}

	// Latest report must match the assessment we just ran
	body = doJSON(t, config, "GET", "/datasets/ds-pipeline/report", nil, http.StatusOK)
	var latest RiskReport
	if err := json.Unmarshal(body, &latest); err != nil {
		t.Fatalf("Failed to unmarshal latest report: %v", err)
	}
	if latest.ID != report.ID {
		t.Errorf("Latest report %s, want %s", latest.ID, report.ID)
	}

	t.Logf("✓ Pipeline complete: score=%.1f level=%s topRisk=%s",
		report.OverallScore, report.OverallLevel, report.TopRisks[0].Category)
}

// ============================================================================
// SCENARIO 2: Empty Dataset (Unknown Levels)
// ============================================================================

func TestEmptyDataset_UnknownLevels(t *testing.T) {
	/*
	   SCENARIO: A dataset with no rows at all.

	   EXPECTED BEHAVIOR:
	   - Categories with empty-input guards report level "Unknown" at score 0
	   - The overall score is 0
	*/
	config := getTestConfig()

	ds := Dataset{ID: "ds-empty"}
	doJSON(t, config, "POST", "/datasets", ds, http.StatusCreated)

	body := doJSON(t, config, "POST", "/datasets/ds-empty/assess", nil, http.StatusOK)
	var report RiskReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}

	if report.OverallScore != 0 {
		t.Errorf("Expected overall score 0 for empty dataset, got %.1f", report.OverallScore)
	}
	if supplier := report.Categories["supplier"]; supplier == nil || supplier.Level != "Unknown" {
		t.Errorf("Expected Unknown supplier level for empty dataset")
	}

	t.Logf("✓ Empty dataset handled: score=%.1f", report.OverallScore)
}

// ============================================================================
// SCENARIO 3: Custom Weights Shift the Overall Score
// ============================================================================

func TestCustomWeights(t *testing.T) {
	/*
	   SCENARIO: Put all weight on the supplier category and re-assess.

	   EXPECTED BEHAVIOR:
	   - PUT /weights accepts a weight table summing to 1.0
	   - The overall score now tracks the supplier category directly,
	     so the concentrated dataset lands High overall
	*/
	config := getTestConfig()

	ds := concentratedDataset("ds-weights")
	doJSON(t, config, "POST", "/datasets", ds, http.StatusCreated)

	weights := map[string]float64{
		"supplier": 1.0, "contractual": 0, "pricing_cost": 0, "delivery": 0,
		"fraud": 0, "market": 0, "compliance": 0, "process": 0,
	}
	doJSON(t, config, "PUT", "/weights", weights, http.StatusOK)

	body := doJSON(t, config, "POST", "/datasets/ds-weights/assess", nil, http.StatusOK)
	var report RiskReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}

	if report.OverallLevel != "High" {
		t.Errorf("Expected High overall with supplier-only weights, got %s (%.1f)",
			report.OverallLevel, report.OverallScore)
	}

	t.Logf("✓ Weighted assessment: score=%.1f level=%s", report.OverallScore, report.OverallLevel)
}

// ============================================================================
// SCENARIO 4: Advisory Rules Annotate the Report
// ============================================================================

func TestAdvisoryRule(t *testing.T) {
	/*
	   SCENARIO: Create a CEL rule over the concentration metric, then assess.

	   EXPECTED BEHAVIOR:
	   - POST /rules validates the expression and returns 201
	   - The next assessment evaluates the rule and reports a triggered
	     finding at 90% concentration
	*/
	config := getTestConfig()

	ds := concentratedDataset("ds-advisory")
	doJSON(t, config, "POST", "/datasets", ds, http.StatusCreated)

	rule := map[string]any{
		"id":          "concentration-alert",
		"name":        "Concentration alert",
		"description": "Top supplier carries over half of spend",
		"expression":  "top_supplier_share > 50.0",
		"points":      15,
		"enabled":     true,
	}
	doJSON(t, config, "POST", "/rules", rule, http.StatusCreated)

	body := doJSON(t, config, "POST", "/datasets/ds-advisory/assess", nil, http.StatusOK)
	var report RiskReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}

	if report.Metadata.RulesEvaluated != 1 {
		t.Errorf("Expected 1 rule evaluated, got %d", report.Metadata.RulesEvaluated)
	}
	if len(report.Advisory) != 1 || !report.Advisory[0].Triggered {
		t.Errorf("Expected a triggered advisory finding, got %+v", report.Advisory)
	}

	t.Logf("✓ Advisory rule triggered: %+v", report.Advisory)
}

func TestInvalidRuleExpression_Rejected(t *testing.T) {
	/*
	   SCENARIO: Create a rule with a malformed CEL expression.

	   EXPECTED: HTTP 400 Bad Request at creation time, before any
	   assessment ever sees the rule.
	*/
	config := getTestConfig()

	rule := map[string]any{
		"id":         "broken-rule",
		"name":       "Broken rule",
		"expression": "top_supplier_share >>> oops",
		"enabled":    true,
	}
	doJSON(t, config, "POST", "/rules", rule, http.StatusBadRequest)

	t.Log("✓ Malformed expression rejected at create time")
}

// ============================================================================
// SCENARIO 5: Input Validation
// ============================================================================

func TestMissingTenantHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Tenant-ID header.

	   EXPECTED: HTTP 400 Bad Request. Tenant ID is validated as a
	   required field, not as auth.
	*/
	config := getTestConfig()

	req, _ := http.NewRequest("GET", config.BaseURL+"/datasets", nil)
	// NO X-Tenant-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", resp.StatusCode)
}

func TestAssessMissingDataset_NotFound(t *testing.T) {
	/*
	   SCENARIO: Assess a dataset that was never ingested.

	   EXPECTED: HTTP 404 Not Found.
	*/
	config := getTestConfig()

	doJSON(t, config, "POST", "/datasets/no-such-dataset/assess", nil, http.StatusNotFound)

	t.Log("✓ Missing dataset → HTTP 404")
}

func TestInvalidWeights_Rejected(t *testing.T) {
	/*
	   SCENARIO: PUT a weight table that does not sum to 1.0.

	   EXPECTED: HTTP 400 Bad Request.
	*/
	config := getTestConfig()

	weights := map[string]float64{
		"supplier": 0.9, "contractual": 0.9, "pricing_cost": 0, "delivery": 0,
		"fraud": 0, "market": 0, "compliance": 0, "process": 0,
	}
	doJSON(t, config, "PUT", "/weights", weights, http.StatusBadRequest)

	t.Log("✓ Invalid weight table rejected")
}

// ============================================================================
// SCENARIO 6: Tenant Isolation
// ============================================================================

func TestTenantIsolation(t *testing.T) {
	/*
	   SCENARIO: Tenant A ingests a dataset; tenant B asks for it.

	   EXPECTED: HTTP 404 for tenant B. Datasets, reports, weights, and
	   rules are all scoped to the tenant in the X-Tenant-ID header.
	*/
	config := getTestConfig()

	ds := concentratedDataset("ds-isolated")
	doJSON(t, config, "POST", "/datasets", ds, http.StatusCreated)

	other := config
	other.TenantID = config.TenantID + "-other"
	doJSON(t, other, "GET", "/datasets/ds-isolated", nil, http.StatusNotFound)

	t.Log("✓ Dataset invisible to other tenants")
}

// ============================================================================
// SCENARIO 7: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify the report includes all required metadata.

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	ds := concentratedDataset("ds-metadata")
	doJSON(t, config, "POST", "/datasets", ds, http.StatusCreated)

	body := doJSON(t, config, "POST", "/datasets/ds-metadata/assess", nil, http.StatusOK)
	var report RiskReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}

	if report.ID == "" {
		t.Error("Missing report id")
	}
	if report.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if report.Metadata.CategoriesEvaluated != 8 {
		t.Errorf("Expected 8 categories evaluated, got %d", report.Metadata.CategoriesEvaluated)
	}
	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if report.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: reportId=%s traceId=%s totalMs=%d",
		report.ID, report.Metadata.TraceID, report.Metadata.TotalMs)
}
