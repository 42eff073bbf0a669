package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "urlforward"

// DefaultBuckets are default histogram buckets in seconds
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Collector holds the service metrics on a private registry. All methods are
// safe on a nil Collector and do nothing.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec   // route, stage, status
	requestDuration *prometheus.HistogramVec // route
	forwards        *prometheus.CounterVec   // forward, status
	forwardErrors   *prometheus.CounterVec   // forward, status
	forwardDuration *prometheus.HistogramVec // forward
	breakerState    *prometheus.GaugeVec     // forward
	reloads         *prometheus.CounterVec   // result
	routes          prometheus.Gauge
	lastReload      prometheus.Gauge
}

// NewCollector creates a collector with its own registry, including Go
// runtime and process metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound requests by route, final stage and status.",
		}, []string{"route", "stage", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound request handling time.",
			Buckets:   DefaultBuckets,
		}, []string{"route"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwards_total",
			Help:      "Completed outbound exchanges by forward and remote status.",
		}, []string{"forward", "status"}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_errors_total",
			Help:      "Outbound exchanges that failed without a remote status.",
		}, []string{"forward", "status"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Outbound exchange time including retries.",
			Buckets:   DefaultBuckets,
		}, []string{"forward"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per forward: 0 closed, 1 half-open, 2 open.",
		}, []string{"forward"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Routing table reload attempts by result.",
		}, []string{"result"}),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes",
			Help:      "Routes in the active routing table.",
		}),
		lastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reload_success_timestamp_seconds",
			Help:      "Time of the last successful routing table load.",
		}),
	}

	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.forwards,
		c.forwardErrors,
		c.forwardDuration,
		c.breakerState,
		c.reloads,
		c.routes,
		c.lastReload,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordRequest records a completed inbound request. route is empty for
// paths without a route.
func (c *Collector) RecordRequest(route, stage string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(route, stage, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordForward records one forward. failed marks exchanges that produced no
// remote status; statusCode is then the status the failure maps to.
func (c *Collector) RecordForward(forward string, statusCode int, failed bool, duration time.Duration) {
	if c == nil {
		return
	}
	if failed {
		c.forwardErrors.WithLabelValues(forward, strconv.Itoa(statusCode)).Inc()
	} else {
		c.forwards.WithLabelValues(forward, strconv.Itoa(statusCode)).Inc()
	}
	c.forwardDuration.WithLabelValues(forward).Observe(duration.Seconds())
}

// SetBreakerState records a breaker state: 0 closed, 1 half-open, 2 open.
func (c *Collector) SetBreakerState(forward string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(forward).Set(float64(state))
}

// RecordReload records a reload attempt.
func (c *Collector) RecordReload(success bool, routes int) {
	if c == nil {
		return
	}
	if !success {
		c.reloads.WithLabelValues("failure").Inc()
		return
	}
	c.reloads.WithLabelValues("success").Inc()
	c.routes.Set(float64(routes))
	c.lastReload.SetToCurrentTime()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus exposition handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
