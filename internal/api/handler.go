package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/insights"
	"github.com/opensource-procurement/kestrel/internal/metrics"
	"github.com/opensource-procurement/kestrel/internal/repository"
	"github.com/opensource-procurement/kestrel/internal/rules"
	"github.com/opensource-procurement/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	assessor  *worker.Worker
	validator *rules.Engine
	version   string
}

// NewHandler creates a new API handler. The validator is a rules engine
// used only to compile-check custom rule expressions at create time.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, assessor *worker.Worker, validator *rules.Engine, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		assessor:  assessor,
		validator: validator,
		version:   version,
	}
}

// IngestResponse is the response for POST /datasets.
type IngestResponse struct {
	Dataset  domain.DatasetSummary `json:"dataset"`
	Warnings []string              `json:"warnings,omitempty"`
	Metadata struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

// IngestDataset handles POST /datasets.
func (h *Handler) IngestDataset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var ds domain.Dataset
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	ds.TenantID = tenantID
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}

	// Blank identifiers are tolerated but surfaced; the affected rows
	// drop out of joins during scoring.
	warnings := ds.CheckRequired()
	if len(warnings) > 0 {
		slog.Warn("dataset ingested with incomplete rows",
			"dataset_id", ds.ID,
			"warning_count", len(warnings),
		)
	}

	if err := h.repo.SaveDataset(ctx, tenantID, &ds); err != nil {
		slog.Error("failed to save dataset", "dataset_id", ds.ID, "error", err)
		writeRepoError(w, err)
		return
	}

	// Announce the dataset so async workers can pick it up
	if h.bus != nil {
		payload, _ := json.Marshal(worker.AssessmentMessage{
			DatasetID: ds.ID,
			TenantID:  tenantID,
			TraceID:   traceID,
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicDatasetIngested, payload); err != nil {
			slog.Error("failed to publish ingest event", "dataset_id", ds.ID, "error", err)
		}
	}

	resp := IngestResponse{Dataset: ds.Summary(), Warnings: warnings}
	resp.Metadata.TraceID = traceID
	resp.Metadata.IngestMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// ListDatasets handles GET /datasets.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	summaries, err := h.repo.ListDatasets(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list datasets", "error", err)
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": summaries,
		"count":    len(summaries),
	})
}

// GetDataset handles GET /datasets/{id}.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	datasetID := chi.URLParam(r, "id")

	ds, err := h.repo.GetDataset(ctx, tenantID, datasetID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ds)
}

// Assess handles POST /datasets/{id}/assess. Assessment runs synchronously
// and the completed report is returned in the response body.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	datasetID := chi.URLParam(r, "id")

	report, err := h.assessor.Assess(ctx, tenantID, datasetID, traceID)
	if err != nil {
		slog.Error("assessment failed", "dataset_id", datasetID, "error", err)
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetAssessment handles GET /assessments/{id}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	report, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListAssessments handles GET /datasets/{id}/assessments.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	datasetID := chi.URLParam(r, "id")

	reports, err := h.repo.ListReportsByDataset(ctx, tenantID, datasetID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": reports,
		"count":       len(reports),
	})
}

// GetLatestReport handles GET /datasets/{id}/report. The report cache is
// consulted first; on a miss the newest persisted report is served.
func (h *Handler) GetLatestReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	datasetID := chi.URLParam(r, "id")

	if h.cache != nil {
		if report, err := h.cache.GetReport(ctx, tenantID, datasetID); err == nil && report != nil {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := h.latestReport(r, tenantID, datasetID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetInsights handles GET /datasets/{id}/insights. The narrative is built
// from the latest report and a fresh aggregate pass over the dataset.
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	datasetID := chi.URLParam(r, "id")

	ds, err := h.repo.GetDataset(ctx, tenantID, datasetID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	report, err := h.latestReport(r, tenantID, datasetID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	agg := metrics.Compute(ds, report.Timestamp)
	writeJSON(w, http.StatusOK, insights.Summarize(report, agg))
}

// GetCostMetrics handles GET /datasets/{id}/cost-metrics. The analytics are
// recomputed from the stored dataset on every call; no report is required.
func (h *Handler) GetCostMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	datasetID := chi.URLParam(r, "id")

	ds, err := h.repo.GetDataset(ctx, tenantID, datasetID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics.ComputeCosts(ds))
}

// latestReport returns the newest persisted report for a dataset.
func (h *Handler) latestReport(r *http.Request, tenantID, datasetID string) (*domain.RiskReport, error) {
	reports, err := h.repo.ListReportsByDataset(r.Context(), tenantID, datasetID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, repository.ErrNotFound
	}
	return reports[0], nil
}

// GetWeights handles GET /weights.
func (h *Handler) GetWeights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	weights, err := h.repo.GetWeights(ctx, tenantID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, weights)
}

// UpdateWeights handles PUT /weights.
func (h *Handler) UpdateWeights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var weights domain.Weights
	if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := weights.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveWeights(ctx, tenantID, weights); err != nil {
		slog.Error("failed to save weights", "error", err)
		writeRepoError(w, err)
		return
	}

	slog.Info("weights updated", "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, weights)
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	configs, err := h.repo.ListRuleConfigs(ctx, tenantID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": configs,
		"count": len(configs),
	})
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	cfg, err := h.repo.GetRuleConfig(ctx, tenantID, ruleID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateRuleRequest is the request body for creating an advisory rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Threshold   float64 `json:"threshold,omitempty"`
	Points      float64 `json:"points,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule handles POST /rules. The CEL expression is compile-checked
// before the rule is persisted; rules are compiled per assessment, so no
// separate reload step is needed.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	cfg := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1",
		Expression:  req.Expression,
		Threshold:   req.Threshold,
		Points:      req.Points,
		Enabled:     req.Enabled,
	}

	if err := h.validator.ValidateRule(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, tenantID, cfg); err != nil {
		slog.Error("failed to save rule config", "id", cfg.ID, "error", err)
		writeRepoError(w, err)
		return
	}

	slog.Info("rule created", "id", cfg.ID, "name", cfg.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, cfg)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRepoError maps repository sentinel errors onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
