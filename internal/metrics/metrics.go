// Package metrics provides Prometheus metrics for the schema registry.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a registry node.
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Schema metrics
	RegistrationsTotal *prometheus.CounterVec

	// Compatibility metrics
	CompatibilityChecks *prometheus.CounterVec

	// Replication metrics
	IsLeader          prometheus.Gauge
	LeaderTransitions prometheus.Counter
	ConsumerLag       prometheus.Gauge
	LogRecordsApplied *prometheus.CounterVec
	ForwardedRequests *prometheus.CounterVec
	BarrierLatency    prometheus.Histogram

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheSize   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schema_registry_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schema_registry_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_registrations_total",
			Help: "Total number of schema registrations",
		},
		[]string{"type", "status"},
	)

	m.CompatibilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_compatibility_checks_total",
			Help: "Total number of compatibility checks",
		},
		[]string{"type", "level", "result"},
	)

	m.IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schema_registry_leader",
			Help: "1 while this node holds leadership, 0 otherwise",
		},
	)

	m.LeaderTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schema_registry_leader_transitions_total",
			Help: "Times this node has gained or lost leadership",
		},
	)

	m.ConsumerLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schema_registry_log_consumer_lag_records",
			Help: "Records between the log end offset and the last applied offset",
		},
	)

	m.LogRecordsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_log_records_applied_total",
			Help: "Log records applied to the lookup cache, by record kind",
		},
		[]string{"kind"},
	)

	m.ForwardedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_forwarded_requests_total",
			Help: "Mutations forwarded to the leader, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	m.BarrierLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schema_registry_read_barrier_seconds",
			Help:    "Time spent waiting for the local consumer to reach the log end",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	m.CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_registry_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	m.CacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "schema_registry_cache_size",
			Help: "Current cache size",
		},
		[]string{"cache"},
	)

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.RegistrationsTotal,
		m.CompatibilityChecks,
		m.IsLeader,
		m.LeaderTransitions,
		m.ConsumerLag,
		m.LogRecordsApplied,
		m.ForwardedRequests,
		m.BarrierLatency,
		m.CacheHits,
		m.CacheMisses,
		m.CacheSize,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware returns HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.RequestsInFlight.Inc()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes a URL path to reduce cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/subjects/") && strings.Contains(path, "/versions/"):
		return "/subjects/{subject}/versions/{version}"
	case strings.HasPrefix(path, "/subjects/") && strings.HasSuffix(path, "/versions"):
		return "/subjects/{subject}/versions"
	case strings.HasPrefix(path, "/subjects/"):
		return "/subjects/{subject}"
	case strings.HasPrefix(path, "/schemas/ids/"):
		return "/schemas/ids/{id}"
	case strings.HasPrefix(path, "/config/"):
		return "/config/{subject}"
	case strings.HasPrefix(path, "/mode/"):
		return "/mode/{subject}"
	case strings.HasPrefix(path, "/compatibility/subjects/"):
		return "/compatibility/subjects/{subject}/versions/{version}"
	case strings.HasPrefix(path, "/contexts/"):
		return "/contexts/{context}"
	}
	return path
}

// RecordSchemaRegistration records a schema registration attempt.
func (m *Metrics) RecordSchemaRegistration(schemaType string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.RegistrationsTotal.WithLabelValues(schemaType, status).Inc()
}

// RecordCompatibilityCheck records a compatibility check result.
func (m *Metrics) RecordCompatibilityCheck(schemaType, level string, compatible bool) {
	result := "compatible"
	if !compatible {
		result = "incompatible"
	}
	m.CompatibilityChecks.WithLabelValues(schemaType, level, result).Inc()
}

// RecordLeadershipChange flips the leader gauge and counts the transition.
func (m *Metrics) RecordLeadershipChange(isLeader bool) {
	if isLeader {
		m.IsLeader.Set(1)
	} else {
		m.IsLeader.Set(0)
	}
	m.LeaderTransitions.Inc()
}

// RecordLogApply counts one applied log record and updates the lag gauge.
func (m *Metrics) RecordLogApply(kind string, lag int64) {
	m.LogRecordsApplied.WithLabelValues(kind).Inc()
	m.ConsumerLag.Set(float64(lag))
}

// RecordForwardedRequest counts a mutation forwarded to the leader.
func (m *Metrics) RecordForwardedRequest(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ForwardedRequests.WithLabelValues(operation, status).Inc()
}

// ObserveBarrier records the duration of one read-barrier wait.
func (m *Metrics) ObserveBarrier(d time.Duration) {
	m.BarrierLatency.Observe(d.Seconds())
}

// RecordCacheAccess records a cache access.
func (m *Metrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(cache).Inc()
	} else {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

// UpdateCacheSize updates the cache size.
func (m *Metrics) UpdateCacheSize(cache string, size float64) {
	m.CacheSize.WithLabelValues(cache).Set(size)
}
