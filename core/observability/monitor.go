package observability

import (
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/searchktools/maya/core/http"
	"github.com/searchktools/maya/core/pools"
)

// UnmatchedRoute labels requests that did not resolve to a route.
const UnmatchedRoute = "unmatched"

// Monitor collects engine metrics on its own Prometheus registry.
//
// All methods are safe on a nil *Monitor, so the engine calls them
// unconditionally.
type Monitor struct {
	registry  *prometheus.Registry
	namespace string

	requests           *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	middlewareFailures prometheus.Counter
	handlerFailures    prometheus.Counter
	parseErrors        prometheus.Counter
	activeConns        prometheus.Gauge
}

// MonitorOption configures a Monitor.
type MonitorOption func(*monitorConfig)

type monitorConfig struct {
	namespace string
	buckets   []float64
}

// WithNamespace sets the metric name prefix (default "maya").
func WithNamespace(ns string) MonitorOption {
	return func(c *monitorConfig) { c.namespace = ns }
}

// WithBuckets sets the latency histogram buckets, in seconds.
func WithBuckets(buckets ...float64) MonitorOption {
	return func(c *monitorConfig) { c.buckets = buckets }
}

// NewMonitor creates a monitor and registers its collectors.
func NewMonitor(opts ...MonitorOption) *Monitor {
	cfg := monitorConfig{
		namespace: "maya",
		buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Monitor{
		registry:  prometheus.NewRegistry(),
		namespace: cfg.namespace,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "requests_total",
			Help:      "Requests answered, by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from parsed request to written response.",
			Buckets:   cfg.buckets,
		}, []string{"method", "route"}),
		middlewareFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "middleware_failures_total",
			Help:      "Middleware that returned an error or panicked.",
		}),
		handlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "handler_failures_total",
			Help:      "Handlers that returned an error, panicked or produced no response.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "parse_errors_total",
			Help:      "Connections rejected with 400 because the request could not be parsed.",
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.namespace,
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.middlewareFailures,
		m.handlerFailures,
		m.parseErrors,
		m.activeConns,
	)
	return m
}

// ObserveRequest records one answered request. route is the matched pattern,
// UnmatchedRoute otherwise; raw paths are never used as labels.
func (m *Monitor) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = UnmatchedRoute
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Monitor) MiddlewareFailed() {
	if m != nil {
		m.middlewareFailures.Inc()
	}
}

func (m *Monitor) HandlerFailed() {
	if m != nil {
		m.handlerFailures.Inc()
	}
}

func (m *Monitor) ParseFailed() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *Monitor) ConnOpened() {
	if m != nil {
		m.activeConns.Inc()
	}
}

func (m *Monitor) ConnClosed() {
	if m != nil {
		m.activeConns.Dec()
	}
}

// TrackCache exposes the response cache counters. The values are read from
// the cache at scrape time.
func (m *Monitor) TrackCache(cache *http.ResponseCache) {
	if m == nil || cache == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "response_cache_hits_total",
			Help:      "Responses replayed from the cache.",
		}, func() float64 { return float64(cache.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "response_cache_misses_total",
			Help:      "Cache lookups that had to build the response.",
		}, func() float64 { return float64(cache.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "response_cache_entries",
			Help:      "Entries held by the cache, stale ones included.",
		}, func() float64 { return float64(cache.Len()) }),
	)
}

// TrackBytePool exposes the read buffer pool counters.
func (m *Monitor) TrackBytePool(pool *pools.BytePool) {
	if m == nil || pool == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "read_buffers_total",
			Help:      "Read buffers handed out to connections.",
		}, func() float64 { return float64(pool.Stats().Gets) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "read_buffers_oversized_total",
			Help:      "Read buffers larger than every pool tier.",
		}, func() float64 { return float64(pool.Stats().Oversized) }),
	)
}

// Registry returns the registry the collectors live on.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Monitor) Handler() stdhttp.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
