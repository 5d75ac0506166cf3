package config

import (
	"github.com/marmos91/dittodir/pkg/metrics"
	promMetrics "github.com/marmos91/dittodir/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Partition is the metrics collector for the partition engine (never nil, uses noop if disabled)
	Partition metrics.PartitionMetrics

	// Backup is the metrics collector for backup uploads (never nil, uses noop if disabled)
	Backup metrics.BackupMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// Parameters:
//   - cfg: The complete dittodir configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server:    nil,
			Partition: metrics.NewNoopPartitionMetrics(),
			Backup:    metrics.NewNoopBackupMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:    server,
		Partition: promMetrics.NewPartitionMetrics(cfg.Partition.ID, cfg.Partition.Store.Type),
		Backup:    promMetrics.NewBackupMetrics(),
	}
}
