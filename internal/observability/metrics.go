package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	LocationsProcessed prometheus.Counter
	LocationFailures   prometheus.Counter
	RawRowsLoaded      prometheus.Counter
	AggregatesMerged   prometheus.Counter
	PipelineRunning    prometheus.Gauge

	// Per-run metrics.
	RunDuration    prometheus.Histogram
	GridPointCount prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Summary generation metrics.
	SummaryRequests *prometheus.CounterVec // labels: outcome={success,error}
	SummaryEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		LocationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "locations_processed_total",
			Help:      "Total locations ingested end to end.",
		}),
		LocationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "location_failures_total",
			Help:      "Total locations that failed somewhere in the run.",
		}),
		RawRowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "raw_rows_loaded_total",
			Help:      "Total raw observations appended to the warehouse.",
		}),
		AggregatesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "aggregates_merged_total",
			Help:      "Total hourly aggregate rows merged into the analytics table.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_pipeline",
			Name:      "pipeline_running",
			Help:      "1 while an ingestion run is active, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete per-location ingestion run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		GridPointCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_pipeline",
			Name:      "grid_point_count",
			Help:      "Number of grid points sampled per location.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "geocode_requests_total",
			Help:      "Nominatim API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		SummaryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "summary_requests_total",
			Help:      "Summary generation requests by outcome.",
		}, []string{"outcome"}),
		SummaryEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_pipeline",
			Name:      "summary_enabled",
			Help:      "1 when summary enrichment is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.LocationsProcessed,
		m.LocationFailures,
		m.RawRowsLoaded,
		m.AggregatesMerged,
		m.PipelineRunning,
		m.RunDuration,
		m.GridPointCount,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.SummaryRequests,
		m.SummaryEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		LocationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "locations_processed_total"}),
		LocationFailures:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "location_failures_total"}),
		RawRowsLoaded:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "raw_rows_loaded_total"}),
		AggregatesMerged:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "aggregates_merged_total"}),
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_pipeline", Name: "pipeline_running"}),
		RunDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weather_pipeline", Name: "run_duration_seconds"}),
		GridPointCount:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weather_pipeline", Name: "grid_point_count"}),
		GeocodeRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "geocode_cache_total"}, []string{"result"}),
		SummaryRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_pipeline", Name: "summary_requests_total"}, []string{"outcome"}),
		SummaryEnabled:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_pipeline", Name: "summary_enabled"}),
	}
}
