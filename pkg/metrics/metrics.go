package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

const namespace = "forecast"

// Metrics owns a private registry so tests and multiple servers never collide
// on the global default registerer
type Metrics struct {
	registry *prometheus.Registry

	predictions        prometheus.Counter
	syntheticRecords   *prometheus.CounterVec
	simulationsQueued  prometheus.Counter
	simulationsRunning prometheus.Gauge
	simulations        *prometheus.CounterVec
	simulationDuration prometheus.Histogram
	trials             prometheus.Counter
	toolCalls          *prometheus.CounterVec
}

// New builds and registers every collector, including the Go runtime and
// process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Match predictions served.",
		}),
		syntheticRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthetic_records_total",
			Help:      "Synthetic records generated, by kind (h2h or form).",
		}, []string{"kind"}),
		simulationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_queued_total",
			Help:      "Simulation jobs accepted onto the queue.",
		}),
		simulationsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulations_running",
			Help:      "Simulation jobs currently held by a worker.",
		}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Simulation jobs finished, by terminal state.",
		}, []string{"state"}),
		simulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of simulation jobs that reached a worker.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		trials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_trials_total",
			Help:      "Monte Carlo trials completed.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions,
		m.syntheticRecords,
		m.simulationsQueued,
		m.simulationsRunning,
		m.simulations,
		m.simulationDuration,
		m.trials,
		m.toolCalls,
	)
	return m
}

// WatchQueue exposes the pool's pending job count as a gauge that is read at
// scrape time
func (m *Metrics) WatchQueue(depth func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "simulation_queue_depth",
		Help:      "Simulation jobs waiting for a worker.",
	}, func() float64 { return float64(depth()) }))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PredictionServed() {
	m.predictions.Inc()
}

// SyntheticGenerated counts one synthetic record of the given kind
func (m *Metrics) SyntheticGenerated(kind string) {
	m.syntheticRecords.WithLabelValues(kind).Inc()
}

// ToolCalled records the outcome of a tool call ("ok" or "error")
func (m *Metrics) ToolCalled(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// JobQueued implements forecast.PoolHooks
func (m *Metrics) JobQueued() {
	m.simulationsQueued.Inc()
}

// JobStarted implements forecast.PoolHooks
func (m *Metrics) JobStarted() {
	m.simulationsRunning.Inc()
}

// JobFinished implements forecast.PoolHooks. Jobs cancelled before a worker
// picked them up report zero elapsed time; they never counted as running and
// are left out of the histogram.
func (m *Metrics) JobFinished(state forecast.JobState, elapsed time.Duration, trials int) {
	m.simulations.WithLabelValues(string(state)).Inc()
	if elapsed > 0 {
		m.simulationsRunning.Dec()
		m.simulationDuration.Observe(elapsed.Seconds())
	}
	if trials > 0 {
		m.trials.Add(float64(trials))
	}
}

var _ forecast.PoolHooks = (*Metrics)(nil)
