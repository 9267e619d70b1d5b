package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecast pipeline and dashboard.
type Metrics struct {
	RowsLoaded    *prometheus.CounterVec // labels: source={satellite,ground}
	RowsMalformed prometheus.Counter
	RowsDropped   *prometheus.CounterVec // labels: reason={no_ground_match,unused_ground}
	FeatureRows   prometheus.Counter

	PredictionsComputed  prometheus.Counter
	HazardousPredictions prometheus.Gauge
	ScoringDuration      prometheus.Histogram

	ExplainRequests *prometheus.CounterVec // labels: outcome={success,error}
	ExplainCache    *prometheus.CounterVec // labels: result={hit,miss}

	AlertsPublished prometheus.Counter

	HTTPRequests *prometheus.CounterVec // labels: route, status
}

// NewMetrics creates and registers all dashboard metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsLoaded,
		m.RowsMalformed,
		m.RowsDropped,
		m.FeatureRows,
		m.PredictionsComputed,
		m.HazardousPredictions,
		m.ScoringDuration,
		m.ExplainRequests,
		m.ExplainCache,
		m.AlertsPublished,
		m.HTTPRequests,
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
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "dataset_rows_loaded_total",
			Help:      "Valid observation rows loaded from the archive, by source.",
		}, []string{"source"}),
		RowsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "dataset_rows_malformed_total",
			Help:      "Archive rows skipped because they failed row validation.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "feature_rows_dropped_total",
			Help:      "Observations excluded during the satellite/ground join, by reason.",
		}, []string{"reason"}),
		FeatureRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "feature_rows_total",
			Help:      "Feature matrix rows assembled from joined observations.",
		}),
		PredictionsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "predictions_computed_total",
			Help:      "PM2.5 forecasts computed.",
		}),
		HazardousPredictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smokesignal",
			Name:      "hazardous_predictions",
			Help:      "Forecasts currently above the hazard threshold.",
		}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smokesignal",
			Name:      "scoring_duration_seconds",
			Help:      "Duration of the full batch scoring pass at startup.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ExplainRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "explain_requests_total",
			Help:      "Attribution computations by outcome.",
		}, []string{"outcome"}),
		ExplainCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "explain_cache_total",
			Help:      "Attribution cache lookups by result.",
		}, []string{"result"}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "alerts_published_total",
			Help:      "Hazard alert messages published to Kafka.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smokesignal",
			Name:      "http_requests_total",
			Help:      "Dashboard HTTP requests by route and status code.",
		}, []string{"route", "status"}),
	}
}
