package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used as the "reason" label on RecordsDropped. Ingest produces
// the parse reasons; the dataset builder produces the rest.
const (
	DropMalformed     = "malformed"
	DropBadCoordinate = "bad_coordinate"
	DropBadTimestamp  = "bad_timestamp"
	DropOutOfYear     = "out_of_year"
	DropOutOfArea     = "out_of_area"
	DropMidnightSpike = "midnight_spike"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// training pipeline and the recommendation API.
type Metrics struct {
	RecordsIngested prometheus.Counter
	RecordsDropped  *prometheus.CounterVec // label: reason
	ModelLoaded     prometheus.Gauge

	// Training metrics.
	TrainingRuns     *prometheus.CounterVec // label: outcome={success,error}
	TrainingDuration prometheus.Histogram
	DatasetRows      prometheus.Histogram

	// Serving metrics.
	PredictionsServed      prometheus.Counter
	RecommendationRequests *prometheus.CounterVec // label: outcome={ok,bad_query,not_ready,error}
	RecommendationDuration prometheus.Histogram
	RecommendationCache    *prometheus.CounterVec // label: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "patrolcast",
			Name:      "records_ingested_total",
			Help:      "Total cleaned call-for-service records parsed from input batches.",
		}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patrolcast",
			Name:      "records_dropped_total",
			Help:      "Records dropped before aggregation, by reason.",
		}, []string{"reason"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "patrolcast",
			Name:      "model_loaded",
			Help:      "1 when a model artifact is loaded and serving, 0 otherwise.",
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patrolcast",
			Name:      "training_runs_total",
			Help:      "Completed training pipeline runs by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "patrolcast",
			Name:      "training_duration_seconds",
			Help:      "Duration of a complete train-validate-analyze run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),
		DatasetRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "patrolcast",
			Name:      "dataset_rows",
			Help:      "Observations per built dataset, zero-count rows included.",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		}),
		PredictionsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "patrolcast",
			Name:      "predictions_served_total",
			Help:      "Individual cell predictions computed for recommendation queries.",
		}),
		RecommendationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patrolcast",
			Name:      "recommendation_requests_total",
			Help:      "Recommendation queries by outcome.",
		}, []string{"outcome"}),
		RecommendationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "patrolcast",
			Name:      "recommendation_duration_seconds",
			Help:      "Time to score and rank the full grid for one query.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		RecommendationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patrolcast",
			Name:      "recommendation_cache_total",
			Help:      "Recommendation cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.RecordsIngested,
		m.RecordsDropped,
		m.ModelLoaded,
		m.TrainingRuns,
		m.TrainingDuration,
		m.DatasetRows,
		m.PredictionsServed,
		m.RecommendationRequests,
		m.RecommendationDuration,
		m.RecommendationCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsIngested:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "patrolcast", Name: "records_ingested_total"}),
		RecordsDropped:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "patrolcast", Name: "records_dropped_total"}, []string{"reason"}),
		ModelLoaded:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "patrolcast", Name: "model_loaded"}),
		TrainingRuns:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "patrolcast", Name: "training_runs_total"}, []string{"outcome"}),
		TrainingDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "patrolcast", Name: "training_duration_seconds"}),
		DatasetRows:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "patrolcast", Name: "dataset_rows"}),
		PredictionsServed:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "patrolcast", Name: "predictions_served_total"}),
		RecommendationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "patrolcast", Name: "recommendation_requests_total"}, []string{"outcome"}),
		RecommendationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "patrolcast", Name: "recommendation_duration_seconds"}),
		RecommendationCache:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "patrolcast", Name: "recommendation_cache_total"}, []string{"result"}),
	}
}
