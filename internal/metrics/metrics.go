// Package metrics exposes Prometheus collectors for workflow runs, graph
// nodes, the generator cache, the collection pool and the HTTP surface.
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

const namespace = "sitegen"

// Metrics holds all collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// Workflow
	RunsTotal       *prometheus.CounterVec
	NodeDuration    *prometheus.HistogramVec
	NodeFailures    *prometheus.CounterVec
	QualityRetries  prometheus.Counter
	CacheEvents     *prometheus.CounterVec
	PoolPending     prometheus.Gauge
	GeneratedChunks prometheus.Counter

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	BuildInfo *prometheus.GaugeVec
}

// New creates collectors on a fresh registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "runs_total",
				Help:      "Workflow runs by outcome",
			},
			[]string{"outcome"},
		),
		NodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Time spent in each workflow stage",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		NodeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_failures_total",
				Help:      "Workflow stage failures",
			},
			[]string{"stage"},
		),
		QualityRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quality_retries_total",
				Help:      "Generations repeated after a failed quality check",
			},
		),
		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generator_cache",
				Name:      "events_total",
				Help:      "Generator cache hits, misses and evictions",
			},
			[]string{"event"},
		),
		PoolPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "collection_pool",
				Name:      "pending",
				Help:      "Asset collection tasks queued or running",
			},
		),
		GeneratedChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generated_chunks_total",
				Help:      "Text chunks forwarded to clients",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "HTTP requests being served",
			},
		),

		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveNode records one stage execution. It matches graph.ObserverFunc.
func (m *Metrics) ObserveNode(stage string, elapsed time.Duration, err error) {
	m.NodeDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.NodeFailures.WithLabelValues(stage).Inc()
	}
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(outcome string) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheEvent counts a generator cache event.
func (m *Metrics) RecordCacheEvent(event string) {
	m.CacheEvents.WithLabelValues(event).Inc()
}

// SetPoolPending reports the collection pool backlog.
func (m *Metrics) SetPoolPending(n int64) {
	m.PoolPending.Set(float64(n))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// SetBuildInfo publishes the binary version.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
}
