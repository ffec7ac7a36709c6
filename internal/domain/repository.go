package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Dataset operations
	SaveDataset(ctx context.Context, tenantID string, ds *Dataset) error
	GetDataset(ctx context.Context, tenantID string, datasetID string) (*Dataset, error)
	ListDatasets(ctx context.Context, tenantID string) ([]DatasetSummary, error)

	// Assessment results
	SaveReport(ctx context.Context, tenantID string, report *RiskReport) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*RiskReport, error)
	ListReportsByDataset(ctx context.Context, tenantID string, datasetID string) ([]*RiskReport, error)

	// Advisory rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Weight table operations (per tenant; DefaultWeights when unset)
	SaveWeights(ctx context.Context, tenantID string, w Weights) error
	GetWeights(ctx context.Context, tenantID string) (Weights, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
