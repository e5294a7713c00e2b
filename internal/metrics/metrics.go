package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/atelier-web/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	ratelimitStoreErrors   prometheus.Counter
	ratelimitSweptTotal    prometheus.Counter
	ratelimitEntries       prometheus.Gauge

	errorsTotal    *prometheus.CounterVec
	appErrorsTotal *prometheus.CounterVec

	listenPort      *prometheus.GaugeVec
	portFallback    prometheus.Gauge
	databaseUp      prometheus.Gauge
	profilingActive prometheus.Gauge
}

// Namespace prefixes every application metric; go_ and process_ collectors
// keep their standard names.
const Namespace = "atelier"

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "http_inflight_requests",
			Help:      "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Request latency by method and route",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_response_size_bytes",
			Help:      "Response size by method and route",
			Buckets:   []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_panic_total",
			Help:      "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_rate_limited_total",
			Help:      "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_rate_limited_capacity_total",
			Help:      "Total requests rejected because the rate limit store was full",
		}),
		ratelimitStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Total rate limit store failures (requests were let through)",
		}),
		ratelimitSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ratelimit_swept_entries_total",
			Help:      "Total expired rate limit entries evicted by the sweep",
		}),
		ratelimitEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "ratelimit_entries",
			Help:      "Client identifiers currently tracked by the in-memory rate limit store",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_errors_total",
			Help:      "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		appErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "app_errors_total",
			Help:      "Errors answered by the error handler by kind and status",
		}, []string{"kind", "status"}),
		listenPort: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "http_listen_port",
			Help:      "Port the listener bound (label carries the listener name)",
		}, []string{"listener"}),
		portFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "http_listen_port_fallback",
			Help:      "Whether the public listener had to move off the configured port (1) or not (0)",
		}),
		databaseUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "database_up",
			Help:      "Whether the last database ping succeeded (1) or failed (0)",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "profiling_active",
			Help:      "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.ratelimitStoreErrors,
		m.ratelimitSweptTotal,
		m.ratelimitEntries,
		m.errorsTotal,
		m.appErrorsTotal,
		m.listenPort,
		m.portFallback,
		m.databaseUp,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitStoreError() {
	m.ratelimitStoreErrors.Inc()
}

func (m *ServerMetrics) AddRateLimitSwept(n int) {
	if n > 0 {
		m.ratelimitSweptTotal.Add(float64(n))
	}
}

func (m *ServerMetrics) SetRateLimitEntries(n int) {
	m.ratelimitEntries.Set(float64(n))
}

// ObserveAppError counts an error answered by httperr. kind is
// operational, unexpected or not_found.
func (m *ServerMetrics) ObserveAppError(kind string, status int) {
	m.appErrorsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

// SetListenPort records the bound port of a listener ("http", "admin").
func (m *ServerMetrics) SetListenPort(listener string, port int) {
	m.listenPort.WithLabelValues(listener).Set(float64(port))
}

func (m *ServerMetrics) SetPortFallback(fellBack bool) {
	setBool(m.portFallback, fellBack)
}

func (m *ServerMetrics) SetDatabaseUp(up bool) {
	setBool(m.databaseUp, up)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	setBool(m.profilingActive, active)
}

func setBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}
