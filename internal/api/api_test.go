package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-procurement/kestrel/internal/bus"
	"github.com/opensource-procurement/kestrel/internal/cache"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/metrics"
	"github.com/opensource-procurement/kestrel/internal/repository"
	"github.com/opensource-procurement/kestrel/internal/rules"
	"github.com/opensource-procurement/kestrel/internal/sample"
	"github.com/opensource-procurement/kestrel/internal/worker"
)

// createTestServer wires a full server over a temp SQLite repository.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	tmpfile, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpfile.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	reportCache := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	assessor := worker.NewWorker(eventBus, repo, reportCache)

	validator, err := rules.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create rules engine: %v", err)
	}

	return NewServer(cfg, repo, reportCache, eventBus, assessor, validator, "test-v1")
}

func doRequest(t *testing.T, server *Server, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestDatasetEndpoints(t *testing.T) {
	server := createTestServer(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := sample.Generate("tenant-001", 7, now)
	ds.ID = "ds-001"
	ds.Name = "Sample snapshot"

	t.Run("Ingest", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/datasets", "tenant-001", ds)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp IngestResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Dataset.ID != "ds-001" {
			t.Errorf("dataset ID = %s, want ds-001", resp.Dataset.ID)
		}
		if resp.Dataset.PurchaseOrders != sample.NumPurchaseOrders {
			t.Errorf("PO count = %d, want %d", resp.Dataset.PurchaseOrders, sample.NumPurchaseOrders)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("version = %s, want test-v1", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/datasets", "", ds)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/datasets", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(TenantIDHeader, "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-001", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var got domain.Dataset
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse dataset: %v", err)
		}
		if len(got.PurchaseOrders) != sample.NumPurchaseOrders {
			t.Errorf("PO count = %d, want %d", len(got.PurchaseOrders), sample.NumPurchaseOrders)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/no-such", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-001", "tenant-other", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for other tenant, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Datasets []domain.DatasetSummary `json:"datasets"`
			Count    int                     `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %d, want 1", resp.Count)
		}
	})
}

func TestAssessmentEndpoints(t *testing.T) {
	server := createTestServer(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := sample.Generate("tenant-001", 11, now)
	ds.ID = "ds-assess"

	rr := doRequest(t, server, http.MethodPost, "/datasets", "tenant-001", ds)
	if rr.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rr.Code, rr.Body.String())
	}

	var report domain.RiskReport

	t.Run("Assess", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/datasets/ds-assess/assess", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to parse report: %v", err)
		}
		if report.ID == "" {
			t.Error("expected report ID")
		}
		if report.DatasetID != "ds-assess" {
			t.Errorf("datasetID = %s, want ds-assess", report.DatasetID)
		}
		if len(report.Categories) != 8 {
			t.Errorf("categories = %d, want 8", len(report.Categories))
		}
		if len(report.TopRisks) != 3 {
			t.Errorf("top risks = %d, want 3", len(report.TopRisks))
		}
		if report.Metadata.TraceID == "" {
			t.Error("expected traceId in report metadata")
		}
	})

	t.Run("AssessMissingDataset", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/datasets/no-such/assess", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("GetAssessment", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/assessments/"+report.ID, "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var got domain.RiskReport
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse report: %v", err)
		}
		if got.ID != report.ID {
			t.Errorf("report ID = %s, want %s", got.ID, report.ID)
		}
	})

	t.Run("ListAssessments", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-assess/assessments", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Assessments []*domain.RiskReport `json:"assessments"`
			Count       int                  `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %d, want 1", resp.Count)
		}
	})

	t.Run("LatestReport", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-assess/report", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var got domain.RiskReport
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse report: %v", err)
		}
		if got.ID != report.ID {
			t.Errorf("latest report = %s, want %s", got.ID, report.ID)
		}
	})

	t.Run("Insights", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-assess/insights", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Headline string   `json:"headline"`
			Spend    []string `json:"spend"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse insights: %v", err)
		}
		if resp.Headline == "" {
			t.Error("expected headline")
		}
		if len(resp.Spend) == 0 {
			t.Error("expected spend lines")
		}
	})

	t.Run("InsightsWithoutReport", func(t *testing.T) {
		fresh := sample.Generate("tenant-001", 13, now)
		fresh.ID = "ds-noreport"
		rr := doRequest(t, server, http.MethodPost, "/datasets", "tenant-001", fresh)
		if rr.Code != http.StatusCreated {
			t.Fatalf("ingest failed: %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodGet, "/datasets/ds-noreport/insights", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 before first assessment, got %d", rr.Code)
		}
	})
}

func TestCostMetricsEndpoint(t *testing.T) {
	server := createTestServer(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := sample.Generate("tenant-001", 17, now)
	ds.ID = "ds-costs"

	rr := doRequest(t, server, http.MethodPost, "/datasets", "tenant-001", ds)
	if rr.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rr.Code, rr.Body.String())
	}

	t.Run("Get", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-costs/cost-metrics", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var analysis metrics.CostAnalysis
		if err := json.Unmarshal(rr.Body.Bytes(), &analysis); err != nil {
			t.Fatalf("failed to parse cost analysis: %v", err)
		}
		// The sample dataset has orders, items, suppliers, and contracts,
		// so the core sections must carry rows and summaries.
		if len(analysis.PriceEfficiency.Rows) == 0 {
			t.Error("expected price efficiency rows")
		}
		if len(analysis.Negotiation.Rows) == 0 {
			t.Error("expected negotiation rows")
		}
		if analysis.TailSpend.Summary == "" {
			t.Error("expected tail spend summary")
		}
		if analysis.ContractLeakage.Summary == "" {
			t.Error("expected contract leakage summary")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/no-such/cost-metrics", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/datasets/ds-costs/cost-metrics", "tenant-other", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for other tenant, got %d", rr.Code)
		}
	})
}

func TestWeightsEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("GetDefaults", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/weights", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var weights domain.Weights
		if err := json.Unmarshal(rr.Body.Bytes(), &weights); err != nil {
			t.Fatalf("failed to parse weights: %v", err)
		}
		if weights[domain.CategorySupplier] != 0.25 {
			t.Errorf("supplier weight = %v, want default 0.25", weights[domain.CategorySupplier])
		}
	})

	t.Run("UpdateAndGet", func(t *testing.T) {
		updated := domain.DefaultWeights().Clone()
		updated[domain.CategorySupplier] = 0.30
		updated[domain.CategoryContractual] = 0.15

		rr := doRequest(t, server, http.MethodPut, "/weights", "tenant-001", updated)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, "/weights", "tenant-001", nil)
		var weights domain.Weights
		if err := json.Unmarshal(rr.Body.Bytes(), &weights); err != nil {
			t.Fatalf("failed to parse weights: %v", err)
		}
		if weights[domain.CategorySupplier] != 0.30 {
			t.Errorf("supplier weight = %v, want 0.30", weights[domain.CategorySupplier])
		}
	})

	t.Run("RejectInvalidSum", func(t *testing.T) {
		bad := domain.DefaultWeights().Clone()
		bad[domain.CategorySupplier] = 0.90

		rr := doRequest(t, server, http.MethodPut, "/weights", "tenant-001", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Create", func(t *testing.T) {
		req := CreateRuleRequest{
			ID:          "concentration-alert",
			Name:        "Concentration alert",
			Description: "Top supplier carries over half of spend",
			Expression:  "top_supplier_share > 50.0",
			Points:      15,
			Enabled:     true,
		}

		rr := doRequest(t, server, http.MethodPost, "/rules", "tenant-001", req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectBadExpression", func(t *testing.T) {
		req := CreateRuleRequest{
			ID:         "broken",
			Name:       "Broken rule",
			Expression: "top_supplier_share >",
			Enabled:    true,
		}

		rr := doRequest(t, server, http.MethodPost, "/rules", "tenant-001", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad expression, got %d", rr.Code)
		}
	})

	t.Run("RejectMissingFields", func(t *testing.T) {
		req := CreateRuleRequest{ID: "incomplete"}

		rr := doRequest(t, server, http.MethodPost, "/rules", "tenant-001", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetAndList", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/rules/concentration-alert", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var cfg domain.RuleConfig
		if err := json.Unmarshal(rr.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("failed to parse rule: %v", err)
		}
		if cfg.Expression != "top_supplier_share > 50.0" {
			t.Errorf("expression = %q", cfg.Expression)
		}

		rr = doRequest(t, server, http.MethodGet, "/rules", "tenant-001", nil)
		var resp struct {
			Rules []*domain.RuleConfig `json:"rules"`
			Count int                  `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count = %d, want 1", resp.Count)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/rules/no-such", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/health", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["status"] != "healthy" {
			t.Errorf("status = %s, want healthy", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("version = %s, want test-v1", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/ready", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})
}
