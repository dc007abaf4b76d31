package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_timelapse_jobs_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_timelapse_job_duration_seconds",
			Help:    "Wall time from dispatch to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"kind"},
	)

	JobsQueued = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_timelapse_jobs_queued",
			Help: "Jobs waiting in the queue",
		},
		[]string{"kind"},
	)

	SchedulerBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "site_timelapse_scheduler_busy",
			Help: "1 while a job is being processed",
		},
	)
)

// Encoder metrics
var (
	EncoderStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_timelapse_encoder_stage_duration_seconds",
			Help:    "Duration of each external encoder invocation",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "status"},
	)

	EncoderBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "site_timelapse_encoder_batches_total",
			Help: "Batches encoded successfully",
		},
	)

	ArchiveEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_timelapse_archive_entries_total",
			Help: "Frames written to or skipped from photo archives",
		},
		[]string{"result"},
	)
)

// Frame archive metrics
var (
	IndexCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_timelapse_index_cache_total",
			Help: "Frame index side-file cache lookups",
		},
		[]string{"result"},
	)

	ArchiveListDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_timelapse_archive_list_duration_seconds",
			Help:    "Duration of storage listings",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_timelapse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_timelapse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// GinMiddleware records request counts and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveStage times fn and records it under the given encoder stage.
func ObserveStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	EncoderStageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
	return err
}
