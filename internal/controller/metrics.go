package controller

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the run controller exports. A fresh Metrics must
// be registered with exactly one prometheus.Registerer; reusing the default registerer
// across multiple controller instances in one process would panic on duplicate registration.
type Metrics struct {
	stepsLaunched  prometheus.Counter
	stepsCompleted prometheus.Counter
	stepsFailed    prometheus.Counter
	stepsSkipped   prometheus.Counter
	stepsRunning   prometheus.Gauge
	runDuration    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stepsLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playbookrun_steps_launched_total",
			Help: "Total number of step Jobs launched by the run controller.",
		}),
		stepsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playbookrun_steps_completed_total",
			Help: "Total number of steps that reached status completed.",
		}),
		stepsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playbookrun_steps_failed_total",
			Help: "Total number of steps that reached status failed.",
		}),
		stepsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playbookrun_steps_skipped_total",
			Help: "Total number of steps that reached status skipped.",
		}),
		stepsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playbookrun_steps_running",
			Help: "Number of steps currently running for the active run.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playbookrun_run_duration_seconds",
			Help:    "Wall-clock duration of a complete playbook run.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
	}
	reg.MustRegister(m.stepsLaunched, m.stepsCompleted, m.stepsFailed, m.stepsSkipped, m.stepsRunning, m.runDuration)
	return m
}
