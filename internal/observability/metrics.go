package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// document store and the ingest loop.
type Metrics struct {
	// Store metrics.
	DocumentsInserted  *prometheus.CounterVec   // label: collection
	VersionConflicts   *prometheus.CounterVec   // label: collection
	QueryDuration      *prometheus.HistogramVec // label: query
	FullScans          *prometheus.CounterVec   // label: collection
	IndexBuildDuration *prometheus.HistogramVec // labels: collection, index

	// Ingest metrics.
	MessagesConsumed        prometheus.Counter
	DocumentsStored         prometheus.Counter
	DecodeErrors            prometheus.Counter
	IngestRunning           prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		DocumentsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_store",
			Name:      "documents_inserted_total",
			Help:      "Total documents inserted, by collection.",
		}, []string{"collection"}),
		VersionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_store",
			Name:      "version_conflicts_total",
			Help:      "Total optimistic-concurrency conflicts rejected, by collection.",
		}, []string{"collection"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_store",
			Name:      "query_duration_seconds",
			Help:      "Query execution time, by query name.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"query"}),
		FullScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_store",
			Name:      "full_scans_total",
			Help:      "Queries answered by a full collection scan instead of an index.",
		}, []string{"collection"}),
		IndexBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_store",
			Name:      "index_build_duration_seconds",
			Help:      "Time spent backfilling a secondary index.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"collection", "index"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_store",
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the ingest topic.",
		}),
		DocumentsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_store",
			Name:      "documents_stored_total",
			Help:      "Total ingested documents written to the store.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_store",
			Name:      "decode_errors_total",
			Help:      "Total ingest messages that failed to decode or validate.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_store",
			Name:      "ingest_running",
			Help:      "1 when the ingest loop is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_store",
			Name:      "batch_size",
			Help:      "Number of messages per batch read from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_store",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch decode-and-store cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.DocumentsInserted,
		m.VersionConflicts,
		m.QueryDuration,
		m.FullScans,
		m.IndexBuildDuration,
		m.MessagesConsumed,
		m.DocumentsStored,
		m.DecodeErrors,
		m.IngestRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		DocumentsInserted:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_store", Name: "documents_inserted_total"}, []string{"collection"}),
		VersionConflicts:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_store", Name: "version_conflicts_total"}, []string{"collection"}),
		QueryDuration:           prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "weather_store", Name: "query_duration_seconds"}, []string{"query"}),
		FullScans:               prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "weather_store", Name: "full_scans_total"}, []string{"collection"}),
		IndexBuildDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "weather_store", Name: "index_build_duration_seconds"}, []string{"collection", "index"}),
		MessagesConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_store", Name: "messages_consumed_total"}),
		DocumentsStored:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_store", Name: "documents_stored_total"}),
		DecodeErrors:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: "weather_store", Name: "decode_errors_total"}),
		IngestRunning:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weather_store", Name: "ingest_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weather_store", Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "weather_store", Name: "batch_processing_duration_seconds"}),
	}
}
