// Package metrics exposes engine counters for Prometheus.
//
//	pingstatus_probe_runs_total{outcome}     finished runs by outcome
//	pingstatus_probe_errors_total{kind}      failed runs by error kind
//	pingstatus_probe_duration_seconds        wall time of a run
//	pingstatus_probes_in_flight              runs currently executing
//	pingstatus_runs_skipped_total{reason}    due runs not started (overlap, capacity)
//	pingstatus_store_write_errors_total      failed last-run writes
//	pingstatus_notify_errors_total           failed report deliveries
//	pingstatus_jobs                          jobs seen by the last tick
//	pingstatus_ticks_total                   scheduler passes
//
// All methods are safe on a nil *Collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pingstatus"

const (
	SkipOverlap  = "overlap"
	SkipCapacity = "capacity"
)

type Collector struct {
	runs         *prometheus.CounterVec
	probeErrors  *prometheus.CounterVec
	duration     prometheus.Histogram
	inFlight     prometheus.Gauge
	skipped      *prometheus.CounterVec
	storeErrors  prometheus.Counter
	notifyErrors prometheus.Counter
	jobs         prometheus.Gauge
	ticks        prometheus.Counter
	gatherer     prometheus.Gatherer
}

// NewCollector registers the metrics with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_runs_total",
			Help:      "Finished probe runs by outcome",
		}, []string{"outcome"}),
		probeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_errors_total",
			Help:      "Failed probe runs by error kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall-clock duration of probe runs",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probes_in_flight",
			Help:      "Probe runs currently executing",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_skipped_total",
			Help:      "Due runs that were not started",
		}, []string{"reason"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_errors_total",
			Help:      "Failed writes of last-run timestamps",
		}),
		notifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Failed report deliveries",
		}),
		jobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Jobs in the store at the last tick",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler passes",
		}),
		gatherer: reg,
	}
	reg.MustRegister(c.runs, c.probeErrors, c.duration, c.inFlight, c.skipped,
		c.storeErrors, c.notifyErrors, c.jobs, c.ticks)
	return c
}

func (c *Collector) RecordRun(outcome, errKind string, seconds float64) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
	if errKind != "" {
		c.probeErrors.WithLabelValues(errKind).Inc()
	}
	c.duration.Observe(seconds)
}

func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

func (c *Collector) RunFinished() {
	if c == nil {
		return
	}
	c.inFlight.Dec()
}

func (c *Collector) RecordSkip(reason string) {
	if c == nil {
		return
	}
	c.skipped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordStoreError() {
	if c == nil {
		return
	}
	c.storeErrors.Inc()
}

func (c *Collector) RecordNotifyError() {
	if c == nil {
		return
	}
	c.notifyErrors.Inc()
}

func (c *Collector) RecordTick(jobs int) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.jobs.Set(float64(jobs))
}

// Handler serves the registry the collector was registered with.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
