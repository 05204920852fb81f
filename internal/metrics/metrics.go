package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion runs and regional reads.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// City outcomes by kind ("ok" or the error kind)
	CityOutcomes *prometheus.CounterVec

	// Partition writes by result
	PartitionWrites *prometheus.CounterVec

	// Finished runs by terminal status
	Runs *prometheus.CounterVec

	RunDuration prometheus.Histogram

	// Partitions skipped on read because they could not be decoded
	PartitionsSkipped prometheus.Counter
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CityOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regional_weather_city_outcomes_total",
			Help: "Cities processed by ingestion runs, by outcome",
		}, []string{"outcome"}),

		PartitionWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regional_weather_partition_writes_total",
			Help: "Partition writes by result",
		}, []string{"result"}),

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regional_weather_runs_total",
			Help: "Finished ingestion runs by status",
		}, []string{"status"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "regional_weather_run_duration_seconds",
			Help:    "Duration of a single ingestion run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		PartitionsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "regional_weather_partitions_skipped_total",
			Help: "Partitions skipped during retrieval because they could not be read",
		}),
	}
}

// IncCityOutcome records the outcome of one city.
func (m *Metrics) IncCityOutcome(outcome string) {
	if m != nil {
		m.CityOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncPartitionWrite records a partition write result ("ok" or "error").
func (m *Metrics) IncPartitionWrite(result string) {
	if m != nil {
		m.PartitionWrites.WithLabelValues(result).Inc()
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(status).Inc()
		m.RunDuration.Observe(d.Seconds())
	}
}

// IncPartitionsSkipped records an unreadable partition.
func (m *Metrics) IncPartitionsSkipped() {
	if m != nil {
		m.PartitionsSkipped.Inc()
	}
}
