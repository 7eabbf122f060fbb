package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "pdfpool"
	subsystem = "pool"
)

// Metrics holds the Prometheus collectors for one render pool.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RendersTotal        *prometheus.CounterVec
	RenderDuration      prometheus.Histogram
	AttemptsTotal       *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	Workers             prometheus.Gauge
	HealthyWorkers      prometheus.Gauge
	InFlight            prometheus.Gauge
	LaunchesTotal       *prometheus.CounterVec
	EvictionsTotal      *prometheus.CounterVec
	CloseFailuresTotal  prometheus.Counter
	HealthSweepsTotal   prometheus.Counter
	HealthSweepDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RendersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "renders_total",
			Help:      "Total number of logical render requests by outcome code",
		}, []string{"code"}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "render_duration_seconds",
			Help:      "Histogram of end-to-end render durations including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Total number of render attempts against a worker by result",
		}, []string{"result"}),
		RetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Total number of failed attempts that were followed by another attempt or a terminal failure",
		}),
		Workers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workers",
			Help:      "Current number of workers in the pool",
		}),
		HealthyWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "healthy_workers",
			Help:      "Current number of workers marked healthy",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_flight_renders",
			Help:      "Render requests currently inside the pool",
		}),
		LaunchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worker_launches_total",
			Help:      "Total number of worker process launches by result",
		}, []string{"result"}),
		EvictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worker_evictions_total",
			Help:      "Total number of workers evicted by reason",
		}, []string{"reason"}),
		CloseFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "close_failures_total",
			Help:      "Total number of best-effort page or process closes that failed",
		}),
		HealthSweepsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_sweeps_total",
			Help:      "Total number of completed health sweeps",
		}),
		HealthSweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_sweep_duration_seconds",
			Help:      "Histogram of health sweep durations",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveRender records one finished logical request.
func (m *Metrics) ObserveRender(code string, d time.Duration, retries int) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.RendersTotal.WithLabelValues(code).Inc()
	m.RenderDuration.Observe(d.Seconds())
	m.RetriesTotal.Add(float64(retries))
}

// ObserveAttempt records one executor run.
func (m *Metrics) ObserveAttempt(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.AttemptsTotal.WithLabelValues("success").Inc()
		return
	}
	m.AttemptsTotal.WithLabelValues("failure").Inc()
}

// ObserveLaunch records a worker launch.
func (m *Metrics) ObserveLaunch(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.LaunchesTotal.WithLabelValues("error").Inc()
		return
	}
	m.LaunchesTotal.WithLabelValues("ok").Inc()
}

// Evicted records a worker eviction.
func (m *Metrics) Evicted(reason string) {
	if m == nil {
		return
	}
	m.EvictionsTotal.WithLabelValues(reason).Inc()
}

// CloseFailed records a swallowed close error.
func (m *Metrics) CloseFailed() {
	if m == nil {
		return
	}
	m.CloseFailuresTotal.Inc()
}

// ObserveSweep records a completed health sweep.
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.HealthSweepsTotal.Inc()
	m.HealthSweepDuration.Observe(d.Seconds())
}

// SetWorkers updates the worker gauges.
func (m *Metrics) SetWorkers(total, healthy int) {
	if m == nil {
		return
	}
	m.Workers.Set(float64(total))
	m.HealthyWorkers.Set(float64(healthy))
}

// AddInFlight moves the in-flight gauge by delta.
func (m *Metrics) AddInFlight(delta int) {
	if m == nil {
		return
	}
	m.InFlight.Add(float64(delta))
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
