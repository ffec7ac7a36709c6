// Package worker provides async assessment processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/risk"
	"github.com/opensource-procurement/kestrel/internal/rules"
)

// ReportCacheTTL is how long completed reports stay in the cache.
const ReportCacheTTL = 15 * time.Minute

// Worker runs assessments asynchronously from the EventBus.
type Worker struct {
	bus   domain.EventBus
	repo  domain.Repository
	cache domain.Cache

	ruleWorkers int

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// RuleWorkers bounds concurrent advisory rule evaluation per assessment
	RuleWorkers int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		repo:        repo,
		cache:       cache,
		ruleWorkers: 10,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.RuleWorkers > 0 {
		w.ruleWorkers = cfg.RuleWorkers
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	for _, topic := range []string{domain.TopicDatasetIngested, domain.TopicAssessmentRequested} {
		sub, err := w.bus.Subscribe(w.ctx, "_global", topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant. Both the ingest
// and the explicit assessment-request topics trigger a full assessment.
func (w *Worker) startTenantWorker(tenantID string) error {
	for _, topic := range []string{domain.TopicDatasetIngested, domain.TopicAssessmentRequested} {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
			return w.processAssessment(ctx, tenantID, msg)
		})
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processAssessment(ctx, msg.TenantID, msg)
}

// AssessmentMessage is the message payload for assessment processing.
type AssessmentMessage struct {
	DatasetID string `json:"datasetId"`
	TenantID  string `json:"tenantId"`
	TraceID   string `json:"traceId,omitempty"`
}

// processAssessment runs the full assessment pipeline for one dataset.
func (w *Worker) processAssessment(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var req AssessmentMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing assessment",
		"dataset_id", req.DatasetID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	report, err := w.Assess(ctx, tenantID, req.DatasetID, traceID)
	if err != nil {
		slog.Error("assessment failed",
			"dataset_id", req.DatasetID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// Publish completion
	resultPayload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment result",
			"dataset_id", req.DatasetID,
			"error", err,
		)
	}

	// High overall risk fans out to the alert topic
	if report.OverallLevel == domain.LevelHigh {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"dataset_id", req.DatasetID,
				"error", err,
			)
		}
	}

	slog.Info("assessment processed",
		"dataset_id", req.DatasetID,
		"tenant_id", tenantID,
		"report_id", report.ID,
		"level", report.OverallLevel,
		"score", report.OverallScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Assess loads a dataset, scores it with the tenant's weights, runs any
// advisory rules, and persists the resulting report. It is also called
// synchronously by the API for Community-tier deployments.
func (w *Worker) Assess(ctx context.Context, tenantID string, datasetID string, traceID string) (*domain.RiskReport, error) {
	// 1. Load dataset
	ds, err := w.repo.GetDataset(ctx, tenantID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	// 2. Tenant weights drive the scoring engine
	weights, err := w.repo.GetWeights(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}

	engine, err := risk.NewEngine(weights)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	report, agg := engine.Assess(tenantID, ds, time.Now().UTC())
	report.Metadata.TraceID = traceID

	// 3. Advisory rules over the aggregate metrics
	configs, err := w.repo.ListRuleConfigs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule configs: %w", err)
	}
	if len(configs) > 0 {
		findings, err := w.evaluateRules(ctx, configs, agg.Metrics())
		if err != nil {
			slog.Error("advisory rule evaluation failed",
				"tenant_id", tenantID,
				"dataset_id", datasetID,
				"error", err,
			)
		} else {
			report.Advisory = findings
			report.Metadata.RulesEvaluated = len(findings)
		}
	}

	// 4. Persist
	if err := w.repo.SaveReport(ctx, tenantID, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	// 5. Cache most recent report per dataset
	if w.cache != nil {
		if err := w.cache.SetReport(ctx, tenantID, datasetID, report, ReportCacheTTL); err != nil {
			slog.Warn("failed to cache report",
				"dataset_id", datasetID,
				"error", err,
			)
		}
		_, _ = w.cache.IncrementCounter(ctx, tenantID, "assessments", time.Hour)
	}

	return report, nil
}

// evaluateRules compiles the tenant's rule configs and evaluates them
// against the metric snapshot. Per-tenant compilation keeps tenants from
// ever seeing each other's rules.
func (w *Worker) evaluateRules(ctx context.Context, configs []*domain.RuleConfig, metricMap map[string]any) ([]domain.RuleFinding, error) {
	engine, err := rules.NewEngine(w.ruleWorkers)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	if err := engine.LoadRules(configs); err != nil {
		return nil, err
	}

	return engine.EvaluateAll(ctx, metricMap)
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
