package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/themehub/internal/version"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// ServerMetrics owns a private registry. Labels are bounded: route
// patterns, store operation names, outcomes and error kinds. Bucket names
// and keys never become labels.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec

	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	profilingActive        prometheus.Gauge

	storeOpsTotal  *prometheus.CounterVec
	storeOpDur     *prometheus.HistogramVec
	swapsTotal     *prometheus.CounterVec
	swapDur        prometheus.Histogram
	swapObjects    *prometheus.CounterVec
	loginsTotal    *prometheus.CounterVec
	lastSwapTstamp prometheus.Gauge
}

func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the auth rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total new clients refused because the rate limiter table was full",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		storeOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "objstore_operations_total",
			Help: "Object store calls by operation and result (ok or error kind)",
		}, []string{"op", "result"}),
		storeOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "objstore_operation_duration_seconds",
			Help:    "Object store call latency by operation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "theme_swaps_total",
			Help: "Theme swaps by outcome (success, partial, failed, rejected)",
		}, []string{"outcome"}),
		swapDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "theme_swap_duration_seconds",
			Help:    "Wall time of a whole theme swap",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		swapObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "theme_swap_objects_total",
			Help: "Objects handled by theme swaps by action (copied, deleted, failed)",
		}, []string{"action"}),
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result (ok or error kind)",
		}, []string{"result"}),
		lastSwapTstamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "theme_last_successful_swap_timestamp_seconds",
			Help: "Unix timestamp of the last fully successful theme swap",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.profilingActive,
		m.storeOpsTotal,
		m.storeOpDur,
		m.swapsTotal,
		m.swapDur,
		m.swapObjects,
		m.loginsTotal,
		m.lastSwapTstamp,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
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

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// ObserveStoreOp implements objstore.Observer.
func (m *ServerMetrics) ObserveStoreOp(op string, d time.Duration, err error) {
	m.storeOpsTotal.WithLabelValues(op, result(err)).Inc()
	m.storeOpDur.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveSwap implements themes.Observer.
func (m *ServerMetrics) ObserveSwap(outcome string, d time.Duration, copied, deleted, failed int) {
	m.swapsTotal.WithLabelValues(outcome).Inc()
	m.swapDur.Observe(d.Seconds())
	m.swapObjects.WithLabelValues("copied").Add(float64(copied))
	m.swapObjects.WithLabelValues("deleted").Add(float64(deleted))
	m.swapObjects.WithLabelValues("failed").Add(float64(failed))
	if outcome == "success" {
		m.lastSwapTstamp.SetToCurrentTime()
	}
}

// ObserveLogin counts a login attempt by its error kind.
func (m *ServerMetrics) ObserveLogin(err error) {
	m.loginsTotal.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return xerrors.KindOf(err).String()
}
