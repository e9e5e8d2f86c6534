package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bundle server
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Bundle metrics
	buildsTotal     *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	bundleBytes     *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	rendersTotal    *prometheus.CounterVec
	sweptEntries    prometheus.Counter
	namedRegistered prometheus.Gauge

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWith registers the metrics with reg and serves them from gatherer
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetbundle_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetbundle_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetbundle_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assetbundle_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetbundle_builds_total",
				Help: "Total number of release bundle builds",
			},
			[]string{"kind", "status"},
		),
		buildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetbundle_build_duration_seconds",
				Help:    "Release bundle build latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		bundleBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetbundle_bundle_size_bytes",
				Help:    "Size of built bundles in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"kind"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetbundle_cache_lookups_total",
				Help: "Bundle cache lookups by result",
			},
			[]string{"kind", "result"},
		),
		rendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetbundle_renders_total",
				Help: "Tag renders by kind and mode",
			},
			[]string{"kind", "mode"},
		),
		sweptEntries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assetbundle_swept_entries_total",
				Help: "Cache entries evicted because a dependency changed",
			},
		),
		namedRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assetbundle_named_bundles",
				Help: "Current number of named bundles",
			},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assetbundle_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())
		responseSize := len(c.Response().Body())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))

		return err
	}
}

// RecordBuild records a release build
func (m *Metrics) RecordBuild(kind string, duration time.Duration, bytes int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.buildsTotal.WithLabelValues(kind, status).Inc()
	m.buildDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err == nil {
		m.bundleBytes.WithLabelValues(kind).Observe(float64(bytes))
	}
}

// RecordCacheLookup records a release cache lookup
func (m *Metrics) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordRender records a rendered tag
func (m *Metrics) RecordRender(kind, mode string) {
	m.rendersTotal.WithLabelValues(kind, mode).Inc()
}

// RecordSweep records entries removed by the dependency sweeper
func (m *Metrics) RecordSweep(removed int) {
	m.sweptEntries.Add(float64(removed))
}

// SetNamedBundles updates the named bundle gauge
func (m *Metrics) SetNamedBundles(n int) {
	m.namedRegistered.Set(float64(n))
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath groups served bundle files under their route so hashed
// file names do not explode label cardinality.
func normalizePath(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 && strings.Contains(path[i+1:], ".") {
		return path[:i+1] + ":file"
	}
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
