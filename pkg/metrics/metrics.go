// Package metrics holds the Prometheus instruments of the configurine server.
package metrics

import (
	"net/http"
	"time"

	"github.com/mac-/configurine/pkg/cache"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "configurine"

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0}

// Metrics owns a private registry and every instrument. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	storeOps     *prometheus.CounterVec   // op, resource_type, result
	storeLatency *prometheus.HistogramVec // op

	authAttempts *prometheus.CounterVec // method, result
	tokensIssued prometheus.Counter

	resolutions *prometheus.CounterVec // path, result

	cacheEvents *prometheus.CounterVec // cache, event

	requests       *prometheus.CounterVec   // transport, method, route, code
	requestLatency *prometheus.HistogramVec // transport, route

	jobRuns *prometheus.CounterVec // job, result
}

// New creates the instruments and registers them with a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		}, []string{"op", "resource_type", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"op"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of handshake and token validation attempts",
		}, []string{"method", "result"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Total number of access tokens issued",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of config resolutions and queries",
		}, []string{"path", "result"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Credential cache hits, misses and evictions",
		}, []string{"cache", "event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		}, []string{"transport", "method", "route", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"transport", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of background job runs",
		}, []string{"job", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storeOps, m.storeLatency,
		m.authAttempts, m.tokensIssued,
		m.resolutions,
		m.cacheEvents,
		m.requests, m.requestLatency,
		m.jobRuns,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveStoreOp implements store.OpRecorder.
func (m *Metrics) ObserveStoreOp(op string, resourceType types.ResourceType, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case store.IsNotFound(err):
		result = "not_found"
	case store.IsAlreadyExists(err):
		result = "already_exists"
	default:
		result = "error"
	}
	m.storeOps.WithLabelValues(op, string(resourceType), result).Inc()
	m.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveAuth counts an authentication attempt. method is "handshake" or "token".
func (m *Metrics) ObserveAuth(method string, err error) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(method, resultOf(err)).Inc()
}

// TokenIssued counts an issued access token.
func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// ObserveResolution counts a resolution. path is "resolve" or "query".
func (m *Metrics) ObserveResolution(path string, err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(path, resultOf(err)).Inc()
}

// ObserveRequest counts a served API request.
func (m *Metrics) ObserveRequest(transport, method, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, method, route, code).Inc()
	m.requestLatency.WithLabelValues(transport, route).Observe(d.Seconds())
}

// ObserveJob counts a background job run.
func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, resultOf(err)).Inc()
}

// CacheRecorder returns a cache.Recorder reporting under the given cache name.
func (m *Metrics) CacheRecorder(name string) cache.Recorder {
	if m == nil {
		return nil
	}
	return &cacheRecorder{
		hit:      m.cacheEvents.WithLabelValues(name, "hit"),
		miss:     m.cacheEvents.WithLabelValues(name, "miss"),
		eviction: m.cacheEvents.WithLabelValues(name, "eviction"),
	}
}

type cacheRecorder struct {
	hit, miss, eviction prometheus.Counter
}

func (r *cacheRecorder) Hit()      { r.hit.Inc() }
func (r *cacheRecorder) Miss()     { r.miss.Inc() }
func (r *cacheRecorder) Eviction() { r.eviction.Inc() }

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	return types.Category(err)
}
