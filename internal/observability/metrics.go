package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bikeshare_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the load pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Stage transitions.
	StageDuration    *prometheus.HistogramVec // labels: stage
	StageTransitions *prometheus.CounterVec   // labels: stage, outcome={completed,skipped,failed}

	// Archive streaming.
	ArchivesStreamed prometheus.Counter
	ArchiveBytes     prometheus.Counter
	FilesExtracted   prometheus.Counter

	// Loading.
	RowsLoaded    *prometheus.CounterVec // labels: table
	CoercionNulls *prometheus.CounterVec // labels: column
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.StageDuration,
		m.StageTransitions,
		m.ArchivesStreamed,
		m.ArchiveBytes,
		m.FilesExtracted,
		m.RowsLoaded,
		m.CoercionNulls,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ArchivesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_streamed_total",
			Help:      "Zip archives downloaded from the trip bucket.",
		}),
		ArchiveBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "Compressed bytes read from the trip bucket.",
		}),
		FilesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_extracted_total",
			Help:      "CSV files written to the output directory.",
		}),
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows bulk copied into each table.",
		}, []string{"table"}),
		CoercionNulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coercion_nulls_total",
			Help:      "Trip values nulled because they failed type coercion.",
		}, []string{"column"}),
	}
}
