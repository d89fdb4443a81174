// Package metrics 汇总服务的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 结果标签
const (
	ResultOK       = "ok"
	ResultSentinel = "sentinel"
	ResultError    = "error"
	ResultSkipped  = "skipped"
)

var (
	OriginalsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resizer_originals_ingested_total",
		Help: "Originals ingested, by result",
	}, []string{"result"})

	DerivedProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resizer_derived_produced_total",
		Help: "Derived images produced by the resizer, by size and result",
	}, []string{"size", "result"})

	ResizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resizer_resize_duration_seconds",
		Help:    "Time to encode one derived image",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"size"})

	BackfillRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resizer_backfill_rows_total",
		Help: "Rows written by the backfill reconciler, by size and result",
	}, []string{"size", "result"})

	DirectoryMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resizer_directory_mutations_total",
		Help: "Directory tree mutations, by operation",
	}, []string{"op"})

	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resizer_feed_dropped_total",
		Help: "Feed events dropped because a session buffer was full",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resizer_http_requests_total",
		Help: "HTTP requests, by route and status code",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resizer_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// ObserveResize 记录一次编码耗时
func ObserveResize(size string, start time.Time) {
	ResizeDuration.WithLabelValues(size).Observe(time.Since(start).Seconds())
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
