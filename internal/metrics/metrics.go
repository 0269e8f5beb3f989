// Package metrics содержит Prometheus метрики сервера.
// Все методы безопасны для nil *Metrics, чтобы сервисы можно было собирать без метрик.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesnav"

// Результаты операций с блокировками
const (
	LockGranted  = "granted"
	LockDenied   = "denied"
	LockError    = "error"
	LockReleased = "released"
	LockNoop     = "noop"
)

// Статусы операций записи
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusNotFound = "not_found"
	StatusConflict = "conflict"
	StatusError    = "error"
)

// Metrics набор метрик сервера на собственном реестре
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	lockAcquires *prometheus.CounterVec
	lockReleases *prometheus.CounterVec
	locksSwept   prometheus.Counter

	bulkUpdates      *prometheus.CounterVec
	bulkUpdatedTotal prometheus.Counter
	bulkDuration     prometheus.Histogram
	snapshotsWritten *prometheus.CounterVec
	restores         *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry together with Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		lockAcquires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_lock_acquire_total",
			Help:      "Page lock acquire attempts by result",
		}, []string{"result"}),
		lockReleases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_lock_release_total",
			Help:      "Page lock release calls by result",
		}, []string{"result"}),
		locksSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_lock_swept_total",
			Help:      "Expired page locks removed by the sweeper",
		}),
		bulkUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_update_total",
			Help:      "Bulk partial update batches by status",
		}, []string{"status"}),
		bulkUpdatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_update_projects_total",
			Help:      "Projects changed by bulk partial updates",
		}),
		bulkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_update_duration_seconds",
			Help:      "Bulk partial update latency",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		snapshotsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Project snapshots written by source",
		}, []string{"source"}),
		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_restore_total",
			Help:      "Snapshot restores by status",
		}, []string{"status"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// LockAcquire records an acquire attempt result
func (m *Metrics) LockAcquire(result string) {
	if m == nil {
		return
	}
	m.lockAcquires.WithLabelValues(result).Inc()
}

// LockRelease records a release call result
func (m *Metrics) LockRelease(result string) {
	if m == nil {
		return
	}
	m.lockReleases.WithLabelValues(result).Inc()
}

// LocksSwept records expired locks removed by the sweeper
func (m *Metrics) LocksSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.locksSwept.Add(float64(n))
}

// BulkUpdate records a finished batch
func (m *Metrics) BulkUpdate(status string, updated int, d time.Duration) {
	if m == nil {
		return
	}
	m.bulkUpdates.WithLabelValues(status).Inc()
	m.bulkDuration.Observe(d.Seconds())
	if updated > 0 {
		m.bulkUpdatedTotal.Add(float64(updated))
	}
}

// SnapshotWritten records a snapshot insert
func (m *Metrics) SnapshotWritten(source string) {
	if m == nil {
		return
	}
	m.snapshotsWritten.WithLabelValues(source).Inc()
}

// Restore records a restore result
func (m *Metrics) Restore(status string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(status).Inc()
}
