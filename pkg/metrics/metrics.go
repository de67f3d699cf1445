// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DrawsTotal           *prometheus.CounterVec
	DrawLatency          *prometheus.HistogramVec
	DrawPositionsFilled  *prometheus.HistogramVec
	DrawPrimaryMatches   *prometheus.CounterVec
	PartitionFallbacks   *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DatasetsIngested     *prometheus.CounterVec
	RowsIngested         prometheus.Counter
	CatalogLoads         *prometheus.CounterVec
	CatalogDatasets      prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them on reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DrawsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draws_total",
				Help: "Total draws by mode and outcome (complete, partial, or an error kind).",
			},
			[]string{"mode", "outcome"},
		),
		DrawLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "draw_latency_seconds",
				Help:    "Draw latency in seconds, including dataset load.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode", "cache_status"},
		),
		DrawPositionsFilled: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "draw_positions_filled",
				Help:    "Number of positions filled per successful draw.",
				Buckets: []float64{1, 2, 4, 6, 8, 10, 12, 14, 16},
			},
			[]string{"mode"},
		),
		DrawPrimaryMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draw_primary_matches_total",
				Help: "Primary resolutions by match type (exact, closest_inferior, wrapped).",
			},
			[]string{"mode", "match"},
		),
		PartitionFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draw_partition_fallbacks_total",
				Help: "Series draws that completed from the next lower series, by whether one existed.",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "draw_cache_hits_total",
				Help: "Total number of draw result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "draw_cache_misses_total",
				Help: "Total number of draw result cache misses.",
			},
		),
		DatasetsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasets_ingested_total",
				Help: "Total dataset uploads by status (created, duplicate, rejected).",
			},
			[]string{"status"},
		),
		RowsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dataset_rows_ingested_total",
				Help: "Total rows persisted across all dataset uploads.",
			},
		),
		CatalogLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loads_total",
				Help: "Record store loads from PostgreSQL by status.",
			},
			[]string{"status"},
		),
		CatalogDatasets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_datasets_cached",
				Help: "Number of record stores held in memory.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DrawsTotal,
		m.DrawLatency,
		m.DrawPositionsFilled,
		m.DrawPrimaryMatches,
		m.PartitionFallbacks,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DatasetsIngested,
		m.RowsIngested,
		m.CatalogLoads,
		m.CatalogDatasets,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
