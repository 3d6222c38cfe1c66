package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	backtestsTotal    *prometheus.CounterVec
	backtestDuration  prometheus.Histogram
	tradesTotal       *prometheus.CounterVec
	lastReturn        *prometheus.GaugeVec
	lastDrawdown      *prometheus.GaugeVec
	datasetLoads      *prometheus.CounterVec
	datasetLoadTiming prometheus.Histogram
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{Registry: reg}

	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankfolio_backtests_total",
			Help: "Total number of backtest runs",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankfolio_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)
	r.tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankfolio_trades_total",
			Help: "Total number of simulated trades",
		},
		[]string{"side"},
	)
	r.lastReturn = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rankfolio_last_total_return",
			Help: "Total return of the most recent run, as a fraction",
		},
		[]string{"market"},
	)
	r.lastDrawdown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rankfolio_last_max_drawdown",
			Help: "Maximum drawdown of the most recent run, as a fraction",
		},
		[]string{"market"},
	)
	r.datasetLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankfolio_dataset_loads_total",
			Help: "Total number of dataset object loads",
		},
		[]string{"object", "status"},
	)
	r.datasetLoadTiming = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankfolio_dataset_load_duration_seconds",
			Help:    "Dataset load duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.tradesTotal)
	reg.MustRegister(r.lastReturn)
	reg.MustRegister(r.lastDrawdown)
	reg.MustRegister(r.datasetLoads)
	reg.MustRegister(r.datasetLoadTiming)

	return r
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordTrades adds n trades of one side.
func (r *Registry) RecordTrades(side string, n int) {
	r.tradesTotal.WithLabelValues(side).Add(float64(n))
}

// SetRunResult publishes the headline figures of the latest run.
func (r *Registry) SetRunResult(market string, totalReturn, maxDrawdown float64) {
	r.lastReturn.WithLabelValues(market).Set(totalReturn)
	r.lastDrawdown.WithLabelValues(market).Set(maxDrawdown)
}

// RecordDatasetLoad records one dataset object load.
func (r *Registry) RecordDatasetLoad(object string, err error, duration float64) {
	r.datasetLoads.WithLabelValues(object, statusOf(err)).Inc()
	r.datasetLoadTiming.Observe(duration)
}

// WriteTextfile writes every metric to path in the text exposition format,
// for collection by a node exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
