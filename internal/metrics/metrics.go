package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalyzesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_analyzes_total",
		Help: "Total number of URL analysis attempts",
	})

	AnalyzesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_analyzes_failed_total",
		Help: "Total number of failed URL analyses",
	})

	TasksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_tasks_started_total",
		Help: "Total number of async download tasks launched",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_tasks_completed_total",
		Help: "Total number of async download tasks completed",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_tasks_failed_total",
		Help: "Total number of async download tasks that ended in error",
	})

	StreamsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_streams_total",
		Help: "Total number of direct streaming deliveries",
	})

	StreamBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafetch_stream_bytes_total",
		Help: "Total bytes delivered through the streaming path",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediafetch_download_duration_seconds",
		Help:    "Async download duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
