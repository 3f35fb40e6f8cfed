// Package metrics exposes Prometheus collectors for store calls and HTTP
// traffic, plus the /metrics handler.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edc/edc/internal/platform/store"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry      *prometheus.Registry
	storeCalls    *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	panics        *prometheus.CounterVec
	sessions      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edc",
			Subsystem: "store",
			Name:      "calls_total",
			Help:      "Entity store calls by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edc",
			Subsystem: "store",
			Name:      "call_duration_seconds",
			Help:      "Entity store call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edc",
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics recovered, by route.",
		}, []string{"route"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edc",
			Subsystem: "pages",
			Name:      "sessions_active",
			Help:      "Open page sessions.",
		}),
	}
	m.registry.MustRegister(
		m.storeCalls, m.storeDuration, m.httpRequests, m.httpDuration, m.panics, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStoreCall implements store.Observer.
func (m *Metrics) ObserveStoreCall(kind store.Kind, op string, outcome store.ErrorKind, elapsed time.Duration) {
	label := string(outcome)
	if outcome == store.ErrorKindNone {
		label = "ok"
	}
	m.storeCalls.WithLabelValues(string(kind), op, label).Inc()
	m.storeDuration.WithLabelValues(string(kind), op).Observe(elapsed.Seconds())
}

// ObservePanic implements middleware.PanicObserver.
func (m *Metrics) ObservePanic(route string) {
	m.panics.WithLabelValues(route).Inc()
}

// SetSessions records the number of open page sessions.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
