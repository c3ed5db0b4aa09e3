package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LockMetrics provides observability for lock acquisition.
type LockMetrics interface {
	// RecordAcquire records an OS-level acquisition attempt in a namespace.
	//
	// Parameters:
	//   - namespace: Lock namespace
	//   - contended: True if the first non-blocking attempt failed
	//   - wait: Time spent until the lock was obtained (or the attempt gave up)
	//   - acquired: Whether the lock is now held
	RecordAcquire(namespace string, contended bool, wait time.Duration, acquired bool)

	// RecordRelease records an OS-level release.
	RecordRelease(namespace string)
}

type lockMetrics struct {
	acquiresTotal *prometheus.CounterVec
	waitSeconds   *prometheus.HistogramVec
	releasesTotal *prometheus.CounterVec
}

var (
	sharedLockMetrics *lockMetrics
	lockMetricsOnce   sync.Once
)

// NewLockMetrics returns the process-wide Prometheus LockMetrics, or a no-op
// implementation when metrics are disabled.
func NewLockMetrics() LockMetrics {
	if !IsEnabled() {
		return NoopLockMetrics{}
	}

	lockMetricsOnce.Do(func() {
		reg := GetRegistry()
		sharedLockMetrics = &lockMetrics{
			acquiresTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "srmeta_lock_acquires_total",
					Help: "OS-level lock acquisition attempts by namespace, contention and outcome",
				},
				[]string{"namespace", "contended", "status"},
			),
			waitSeconds: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "srmeta_lock_wait_seconds",
					Help:    "Time spent waiting for an OS-level lock",
					Buckets: prometheus.ExponentialBuckets(0.0001, 10, 7),
				},
				[]string{"namespace"},
			),
			releasesTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "srmeta_lock_releases_total",
					Help: "OS-level lock releases by namespace",
				},
				[]string{"namespace"},
			),
		}
	})
	return sharedLockMetrics
}

func (m *lockMetrics) RecordAcquire(namespace string, contended bool, wait time.Duration, acquired bool) {
	c := "false"
	if contended {
		c = "true"
	}
	s := "acquired"
	if !acquired {
		s = "busy"
	}
	m.acquiresTotal.WithLabelValues(namespace, c, s).Inc()
	m.waitSeconds.WithLabelValues(namespace).Observe(wait.Seconds())
}

func (m *lockMetrics) RecordRelease(namespace string) {
	m.releasesTotal.WithLabelValues(namespace).Inc()
}

// NoopLockMetrics discards everything.
type NoopLockMetrics struct{}

func (NoopLockMetrics) RecordAcquire(string, bool, time.Duration, bool) {}
func (NoopLockMetrics) RecordRelease(string)                          {}
