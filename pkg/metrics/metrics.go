// Package metrics defines the Prometheus metric collectors used by the
// search server and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	ConnectionsTotal     prometheus.Counter
	ConnectionsActive    prometheus.Gauge
	ConnectionsShed      prometheus.Counter
	QueueDepth           prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	EngineBuildSeconds   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	SubprocessFailures   prometheus.Counter
	TLSHandshakeFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "connections_accepted_total",
				Help: "Total number of accepted TCP connections.",
			},
		),
		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "connections_active",
				Help: "Number of connections currently being handled by workers.",
			},
		),
		ConnectionsShed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "connections_shed_total",
				Help: "Connections rejected with a busy response because the queue was full.",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_queue_depth",
				Help: "Number of accepted connections waiting for a worker.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total queries by result (found, not_found, error).",
			},
			[]string{"result"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Engine search latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"algorithm"},
		),
		EngineBuildSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_build_seconds",
				Help:    "Corpus load and index build duration in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"algorithm"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		SubprocessFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subprocess_failures_total",
				Help: "Failed invocations of the external search utility.",
			},
		),
		TLSHandshakeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tls_handshake_failures_total",
				Help: "TLS handshakes that failed or timed out.",
			},
		),
	}

	prometheus.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.ConnectionsShed,
		m.QueueDepth,
		m.QueriesTotal,
		m.SearchLatency,
		m.EngineBuildSeconds,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SubprocessFailures,
		m.TLSHandshakeFailures,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
