// Package metrics exposes rollover counters in Prometheus text format for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "diet_orders"

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RolloverRuns      prometheus.Counter
	OrdersCreated     prometheus.Counter
	OrdersRetired     prometheus.Counter
	PatientOutcomes   *prometheus.CounterVec
	RolloverDuration  prometheus.Histogram
	LastRunTimestamp  prometheus.Gauge
	LastRunFailures   prometheus.Gauge
	OperationErrors   *prometheus.CounterVec
	MenuFluidWarnings prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RolloverRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollover_runs_total",
			Help:      "Total number of daily rollover runs.",
		}),
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total number of daily orders created by rollover.",
		}),
		OrdersRetired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_retired_total",
			Help:      "Total number of orders moved to retired history.",
		}),
		PatientOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollover_patients_total",
			Help:      "Patients seen by rollover, by outcome.",
		},
			[]string{"outcome"},
		),
		RolloverDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollover_duration_seconds",
			Help:      "Wall time of a rollover run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rollover_last_run_timestamp_seconds",
			Help:      "Unix time the last rollover run finished.",
		}),
		LastRunFailures: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rollover_last_run_failures",
			Help:      "Patients that failed in the last rollover run.",
		}),
		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Total number of errors encountered during specific operations.",
		},
			[]string{"operation"},
		),
		MenuFluidWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_warnings_total",
			Help:      "Warnings raised while generating orders.",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Run is one rollover outcome.
type Run struct {
	Finished       time.Time
	Duration       time.Duration
	Created        int
	AlreadyPending int
	Skipped        int
	Failed         int
	Retired        int64
	Warnings       int
}

// ObserveRun records a completed rollover.
func (m *Metrics) ObserveRun(r Run) {
	m.RolloverRuns.Inc()
	m.OrdersCreated.Add(float64(r.Created))
	m.OrdersRetired.Add(float64(r.Retired))
	m.PatientOutcomes.WithLabelValues("created").Add(float64(r.Created))
	m.PatientOutcomes.WithLabelValues("already_pending").Add(float64(r.AlreadyPending))
	m.PatientOutcomes.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.PatientOutcomes.WithLabelValues("failed").Add(float64(r.Failed))
	m.MenuFluidWarnings.Add(float64(r.Warnings))
	m.RolloverDuration.Observe(r.Duration.Seconds())
	m.LastRunTimestamp.Set(float64(r.Finished.Unix()))
	m.LastRunFailures.Set(float64(r.Failed))
	if r.Failed > 0 {
		m.OperationErrors.WithLabelValues("rollover").Add(float64(r.Failed))
	}
}

// ObserveError counts a failed operation.
func (m *Metrics) ObserveError(operation string) {
	m.OperationErrors.WithLabelValues(operation).Inc()
}

// WriteTextfile atomically writes the registry to path. An empty path is a
// no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
