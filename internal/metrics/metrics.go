package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed counts records examined per job.
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_records_processed_total",
		Help: "Total number of records processed per job",
	}, []string{"job"})

	// RecordsWritten counts rows created or updated per job.
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_records_written_total",
		Help: "Total number of rows created or updated per job",
	}, []string{"job"})

	// RecordsSkipped counts hash-gated skips per job.
	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_records_skipped_total",
		Help: "Total number of unchanged records skipped per job",
	}, []string{"job"})

	// RecordErrors counts per-record errors per job.
	RecordErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_record_errors_total",
		Help: "Total number of per-record errors per job",
	}, []string{"job"})

	// RunDuration observes end-to-end run durations.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datahub_run_duration_seconds",
		Help:    "Duration of pipeline runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"job"})

	// DetailCallDuration observes enrichment detail-API call latency.
	DetailCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datahub_detail_call_duration_seconds",
		Help:    "Duration of per-record detail API calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)
