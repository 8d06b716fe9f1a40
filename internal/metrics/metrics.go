// Package metrics exposes Prometheus collectors for the extractor and
// loader cycles. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/resilience"
)

const namespace = "cdc"

// Metrics holds every collector on a private registry.
type Metrics struct {
	// Counters
	ChangesDetected  prometheus.Counter
	BatchesWritten   prometheus.Counter
	Transitions      *prometheus.CounterVec
	Anomalies        *prometheus.CounterVec
	RecordsFailed    *prometheus.CounterVec
	ArtifactsSkipped *prometheus.CounterVec
	CycleErrors      *prometheus.CounterVec
	CircuitChanges   *prometheus.CounterVec

	// Gauges
	Watermark       prometheus.Gauge
	CurrentVersions prometheus.Gauge
	TotalVersions   prometheus.Gauge
	CircuitState    *prometheus.GaugeVec

	// Histograms
	CycleDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		ChangesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_detected_total",
			Help:      "Change records captured from the source.",
		}),
		BatchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_written_total",
			Help:      "Batch artifacts durably written.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scd2_transitions_total",
			Help:      "SCD2 transitions applied, by action.",
		}, []string{"action"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scd2_anomalies_total",
			Help:      "Reclassified or ignored changes, by reason.",
		}, []string{"reason"}),
		RecordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Change records that failed validation or transition.",
		}, []string{"kind"}),
		ArtifactsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_skipped_total",
			Help:      "Batch artifacts not applied, by reason.",
		}, []string{"reason"}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Pipeline cycles that ended in error.",
		}, []string{"pipeline"}),
		CircuitChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_state_changes_total",
			Help:      "Circuit breaker transitions, by breaker and new state.",
		}, []string{"breaker", "state"}),
		Watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_timestamp_seconds",
			Help:      "Current extraction watermark as a Unix timestamp.",
		}),
		CurrentVersions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dimension_current_versions",
			Help:      "Rows with is_current set in the order dimension.",
		}),
		TotalVersions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dimension_versions",
			Help:      "All rows in the order dimension.",
		}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"breaker"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of extractor and loader cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"pipeline"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.ChangesDetected,
		m.BatchesWritten,
		m.Transitions,
		m.Anomalies,
		m.RecordsFailed,
		m.ArtifactsSkipped,
		m.CycleErrors,
		m.CircuitChanges,
		m.Watermark,
		m.CurrentVersions,
		m.TotalVersions,
		m.CircuitState,
		m.CycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one pipeline cycle.
func (m *Metrics) ObserveCycle(pipeline string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CycleDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	if err != nil {
		m.CycleErrors.WithLabelValues(pipeline).Inc()
	}
}

// BatchWritten records a persisted batch of n changes.
func (m *Metrics) BatchWritten(n int) {
	if m == nil {
		return
	}
	m.BatchesWritten.Inc()
	m.ChangesDetected.Add(float64(n))
}

// SetWatermark publishes the cursor.
func (m *Metrics) SetWatermark(t time.Time) {
	if m == nil || t.IsZero() {
		return
	}
	m.Watermark.Set(float64(t.UnixMicro()) / 1e6)
}

// Transition records an applied or skipped transition.
func (m *Metrics) Transition(action, reason string, anomaly bool) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action).Inc()
	if anomaly {
		m.Anomalies.WithLabelValues(reason).Inc()
	}
}

// RecordFailed counts a failed record of kind "validation" or "transition".
func (m *Metrics) RecordFailed(kind string) {
	if m == nil {
		return
	}
	m.RecordsFailed.WithLabelValues(kind).Inc()
}

// ArtifactSkipped counts an artifact that was not applied.
func (m *Metrics) ArtifactSkipped(reason string) {
	if m == nil {
		return
	}
	m.ArtifactsSkipped.WithLabelValues(reason).Inc()
}

// SetDimension publishes dimension size.
func (m *Metrics) SetDimension(s *model.DimensionStats) {
	if m == nil || s == nil {
		return
	}
	m.CurrentVersions.Set(float64(s.CurrentRecords))
	m.TotalVersions.Set(float64(s.TotalRecords))
}

// ObserveCircuit publishes the state of the named breaker.
func (m *Metrics) ObserveCircuit(name string, s resilience.CircuitState) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(name).Set(float64(s))
}

// CircuitStateChanged implements resilience.StateObserver.
func (m *Metrics) CircuitStateChanged(name string, _, to resilience.CircuitState) {
	if m == nil {
		return
	}
	m.ObserveCircuit(name, to)
	m.CircuitChanges.WithLabelValues(name, to.String()).Inc()
}
