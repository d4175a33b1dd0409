package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for ingestion and the HTTP API.
type Metrics struct {
	IngestRuns         *prometheus.CounterVec
	IngestRows         prometheus.Counter
	IngestComments     *prometheus.CounterVec
	AnnotationsSkipped *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textlib_ingest_runs_total",
				Help: "Total ingestion runs by outcome",
			},
			[]string{"status"},
		),
		IngestRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textlib_ingest_rows_total",
				Help: "Article rows stored by ingestion",
			},
		),
		IngestComments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textlib_ingest_comments_total",
				Help: "Comments produced by ingestion by outcome",
			},
			[]string{"status"},
		),
		AnnotationsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textlib_ingest_annotations_skipped_total",
				Help: "Markers and annotations that did not become comments",
			},
			[]string{"reason"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "textlib_ingest_duration_seconds",
				Help:    "Time taken to ingest one article",
				Buckets: prometheus.DefBuckets,
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textlib_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.IngestRuns,
			m.IngestRows,
			m.IngestComments,
			m.AnnotationsSkipped,
			m.IngestDuration,
			m.HTTPRequests,
		)
	}
	return m
}
