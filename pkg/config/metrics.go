package config

import (
	"fmt"

	"github.com/marmos91/srmeta/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Metadata is the collector for the metadata store (never nil)
	Metadata metrics.StoreMetrics

	// Journal is the collector for the journal (never nil)
	Journal metrics.StoreMetrics

	// Lock is the collector for the lock registry (never nil)
	Lock metrics.LockMetrics

	textfile string
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Metadata: metrics.NoopStoreMetrics{},
			Journal:  metrics.NoopStoreMetrics{},
			Lock:     metrics.NoopLockMetrics{},
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Metadata: metrics.NewStoreMetrics("volume"),
		Journal:  metrics.NewStoreMetrics("journal-" + cfg.Journal.Type),
		Lock:     metrics.NewLockMetrics(),
		textfile: cfg.Metrics.Textfile,
	}
}

// Flush writes the configured metrics textfile, if any.
func (r *MetricsResult) Flush() error {
	if err := metrics.WriteTextfile(r.textfile); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
