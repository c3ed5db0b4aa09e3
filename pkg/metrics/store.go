package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics provides observability for metadata store and journal
// operations.
//
// This interface is optional - if not provided to a store, operations
// proceed without metrics collection (zero overhead).
//
// Example usage:
//
//	// With metrics enabled
//	m := metrics.NewStoreMetrics("volume")
//	store, _ := volume.New(ctx, vol, volume.Config{}, m)
//
//	// Without metrics (no-op)
//	store, _ := volume.New(ctx, vol, volume.Config{}, nil)
type StoreMetrics interface {
	// RecordOperation records a completed public operation with its name,
	// duration, and outcome.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "AddVDI", "Create", "GetAll")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordStorageOperation records a low-level storage operation.
	//
	// Parameters:
	//   - operation: Storage operation (e.g., "read", "write", "sync", "list")
	//   - bytes: Bytes transferred, 0 if not applicable
	//   - duration: Time taken
	//   - err: Error if failed
	RecordStorageOperation(operation string, bytes int, duration time.Duration, err error)

	// SetUsedLength updates the used-length gauge of a metadata store.
	SetUsedLength(length int64)
}

// storeVectors holds the collectors shared by every StoreMetrics instance.
// They are registered once per process; instances differ by store_type label.
type storeVectors struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	storageOpsTotal    *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
	storageBytes       *prometheus.CounterVec
	usedLength         *prometheus.GaugeVec
}

var (
	sharedStoreVectors *storeVectors
	storeVectorsOnce   sync.Once
)

func getStoreVectors(reg prometheus.Registerer) *storeVectors {
	storeVectorsOnce.Do(func() {
		sharedStoreVectors = &storeVectors{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "srmeta_store_operations_total",
					Help: "Total number of store operations by store type, operation, and status",
				},
				[]string{"store_type", "operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "srmeta_store_operation_duration_seconds",
					Help: "Duration of store operations in seconds",
					Buckets: []float64{
						0.0001, // 100µs
						0.0005, // 500µs
						0.001,  // 1ms
						0.005,  // 5ms
						0.01,   // 10ms
						0.05,   // 50ms
						0.1,    // 100ms
						0.5,    // 500ms
						1.0,    // 1s
					},
				},
				[]string{"store_type", "operation"},
			),
			storageOpsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "srmeta_storage_operations_total",
					Help: "Total number of low-level storage operations (read, write, sync, list)",
				},
				[]string{"store_type", "operation", "status"},
			),
			storageOpsDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "srmeta_storage_operation_duration_seconds",
					Help:    "Duration of low-level storage operations in seconds",
					Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
				},
				[]string{"store_type", "operation"},
			),
			storageBytes: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "srmeta_storage_bytes_total",
					Help: "Bytes transferred by low-level storage operations",
				},
				[]string{"store_type", "operation"},
			),
			usedLength: promauto.With(reg).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "srmeta_metadata_used_length_bytes",
					Help: "Used-length recorded in the metadata volume header",
				},
				[]string{"store_type"},
			),
		}
	})
	return sharedStoreVectors
}

// storeMetrics is the Prometheus implementation of StoreMetrics.
type storeMetrics struct {
	storeType string
	v         *storeVectors
}

// NewStoreMetrics creates a new Prometheus-backed StoreMetrics instance.
//
// Parameters:
//   - storeType: Type of store (e.g., "volume", "journal-fs", "journal-badger")
//     Used as a label to distinguish metrics from different store implementations.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics(storeType string) StoreMetrics {
	if !IsEnabled() {
		return NoopStoreMetrics{}
	}

	return &storeMetrics{
		storeType: storeType,
		v:         getStoreVectors(GetRegistry()),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *storeMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.v.operationsTotal.WithLabelValues(m.storeType, operation, status(err)).Inc()
	m.v.operationDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
}

func (m *storeMetrics) RecordStorageOperation(operation string, bytes int, duration time.Duration, err error) {
	m.v.storageOpsTotal.WithLabelValues(m.storeType, operation, status(err)).Inc()
	m.v.storageOpsDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
	if bytes > 0 {
		m.v.storageBytes.WithLabelValues(m.storeType, operation).Add(float64(bytes))
	}
}

func (m *storeMetrics) SetUsedLength(length int64) {
	m.v.usedLength.WithLabelValues(m.storeType).Set(float64(length))
}

// NoopStoreMetrics discards everything.
type NoopStoreMetrics struct{}

func (NoopStoreMetrics) RecordOperation(string, time.Duration, error)             {}
func (NoopStoreMetrics) RecordStorageOperation(string, int, time.Duration, error) {}
func (NoopStoreMetrics) SetUsedLength(int64)                                      {}
