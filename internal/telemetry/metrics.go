package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. It satisfies
// collivery.Recorder.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LedgerEntries   *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

// NewMetrics creates Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collivery_requests_total",
				Help: "Total number of Collivery operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collivery_request_duration_seconds",
				Help:    "Collivery operation duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		LedgerEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collivery_errors_total",
				Help: "Total error ledger entries by kind",
			},
			[]string{"kind"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collivery_cache_lookups_total",
				Help: "Cache lookups by operation and result",
			},
			[]string{"operation", "hit"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an error ledger entry.
func (m *Metrics) RecordError(kind string) {
	m.LedgerEntries.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(operation string, hit bool) {
	m.CacheLookups.WithLabelValues(operation, strconv.FormatBool(hit)).Inc()
}
