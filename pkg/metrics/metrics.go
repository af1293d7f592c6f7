package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"queue"},
	)

	// Completion 调用延迟（毫秒）
	CompletionCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_call_latency_ms",
			Help:    "Completion endpoint call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "status"},
	)

	// OAuth code 兑换延迟（毫秒）
	OAuthExchangeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oauth_exchange_latency_ms",
			Help:    "OAuth code exchange latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		},
		[]string{"provider", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 入队计数
	JobsEnqueuedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_jobs_enqueued_total",
			Help: "Total number of classification jobs enqueued",
		},
		[]string{"broker"},
	)

	// 任务终态计数
	JobsSettledCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_jobs_settled_total",
			Help: "Total number of classification jobs that reached a terminal status",
		},
		[]string{"status", "label"}, // status: completed, failed
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(queue).Observe(float64(duration.Milliseconds()))
}

// RecordCompletionCallLatency 记录 completion 调用延迟
func RecordCompletionCallLatency(model, status string, duration time.Duration) {
	CompletionCallLatency.WithLabelValues(model, status).Observe(float64(duration.Milliseconds()))
}

// RecordOAuthExchangeLatency 记录 OAuth 兑换延迟
func RecordOAuthExchangeLatency(provider, status string, duration time.Duration) {
	OAuthExchangeLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementJobsEnqueued 增加入队计数
func IncrementJobsEnqueued(broker string) {
	JobsEnqueuedCount.WithLabelValues(broker).Inc()
}

// IncrementJobsSettled 增加终态计数，失败时 label 为 error_type
func IncrementJobsSettled(status, label string) {
	JobsSettledCount.WithLabelValues(status, label).Inc()
}
