package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbsvc_jobs_processed_total",
		Help: "Total number of thumbnail jobs processed, by status",
	}, []string{"status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thumbsvc_job_stage_duration_seconds",
		Help:    "Duration of thumbnail pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	ThumbnailsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thumbsvc_thumbnails_extracted_total",
		Help: "Total number of frames successfully extracted across all jobs",
	})

	ThumbnailsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thumbsvc_thumbnails_failed_total",
		Help: "Total number of frame extraction attempts that yielded no image",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thumbsvc_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbsvc_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
