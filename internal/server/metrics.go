package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blobd/internal/models"
)

// Metrics holds the Prometheus collectors for one server. Each instance
// owns its registry so tests can build servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec   // blobd_requests_total{operation,status}
	RequestDuration *prometheus.HistogramVec // blobd_request_duration_seconds{operation}
	IngestBytes     prometheus.Counter       // blobd_ingest_bytes_total
	DedupHits       prometheus.Counter       // blobd_dedup_hits_total
	RateLimited     prometheus.Counter       // blobd_rate_limited_total
	SweepReclaimed  *prometheus.CounterVec   // blobd_sweep_reclaimed_total{sweep}
	Objects         prometheus.Gauge         // blobd_objects
	StoredBytes     prometheus.Gauge         // blobd_stored_bytes
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blobd_requests_total",
			Help: "Total API requests by operation and status",
		}, []string{"operation", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blobd_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		IngestBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "blobd_ingest_bytes_total",
			Help: "Total plaintext bytes accepted by ingest",
		}),

		DedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "blobd_dedup_hits_total",
			Help: "Uploads answered with an existing object",
		}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "blobd_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),

		SweepReclaimed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blobd_sweep_reclaimed_total",
			Help: "Objects removed by retention, by sweep kind",
		}, []string{"sweep"}),

		Objects: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blobd_objects",
			Help: "Number of indexed objects",
		}),

		StoredBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blobd_stored_bytes",
			Help: "Total persisted bytes across all objects",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed API request.
func (m *Metrics) RecordRequest(operation string, status int, durationSeconds float64) {
	if m == nil || operation == "" {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func (m *Metrics) RecordIngest(plainBytes int64) {
	if m == nil {
		return
	}
	m.IngestBytes.Add(float64(plainBytes))
}

func (m *Metrics) RecordDedupHit() {
	if m == nil {
		return
	}
	m.DedupHits.Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// RecordReclaimed counts objects removed by one sweep kind.
func (m *Metrics) RecordReclaimed(sweep string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SweepReclaimed.WithLabelValues(sweep).Add(float64(count))
}

// UpdateStorageMetrics refreshes the usage gauges.
func (m *Metrics) UpdateStorageMetrics(stats models.BlobStats) {
	if m == nil {
		return
	}
	m.Objects.Set(float64(stats.ObjectCount))
	m.StoredBytes.Set(float64(stats.TotalSizeBytes))
}
