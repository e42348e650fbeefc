// Package metrics exposes Prometheus collectors for morning runs, per-user
// outcomes and the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "morningcast"

var (
	runBuckets  = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}
	httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Collector holds the registered collectors.
type Collector struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	usersEvaluated prometheus.Gauge
	outcomesTotal  *prometheus.CounterVec

	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates collectors and registers them on reg. Collectors already
// registered on reg are reused.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	c := &Collector{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Morning evaluation runs by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a morning evaluation run",
			Buckets:   runBuckets,
		}),
		usersEvaluated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "users_in_last_run",
			Help:      "Users in the directory snapshot of the last run",
		}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "user_outcomes_total",
			Help:      "Per-user pipeline outcomes by status, stage and reason",
		}, []string{"status", "stage", "reason"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   httpBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: gatherer,
	}

	c.runsTotal = register(reg, c.runsTotal)
	c.runDuration = register(reg, c.runDuration)
	c.usersEvaluated = register(reg, c.usersEvaluated)
	c.outcomesTotal = register(reg, c.outcomesTotal)
	c.requestTotal = register(reg, c.requestTotal)
	c.requestLatency = register(reg, c.requestLatency)
	return c
}

// NewDefault registers on the process-wide default registry.
func NewDefault() *Collector {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// RunFinished records one completed or aborted run.
func (c *Collector) RunFinished(result string, d time.Duration, users int) {
	c.runsTotal.WithLabelValues(result).Inc()
	c.runDuration.Observe(d.Seconds())
	c.usersEvaluated.Set(float64(users))
}

// UserOutcome records one user's pipeline result.
func (c *Collector) UserOutcome(status, stage, reason string) {
	c.outcomesTotal.WithLabelValues(status, stage, reason).Inc()
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(method, route string, status int, d time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	c.requestTotal.With(labels).Inc()
	c.requestLatency.With(labels).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
