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
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 邮件处理计数
	EmailProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_processed_count",
			Help: "Total number of emails processed",
		},
		[]string{"status"}, // status: merged, duplicate, discarded, failed
	)

	ExtractionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_count",
			Help: "Extracted applications by inferred status",
		},
		[]string{"status"},
	)

	ExtractionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extraction_confidence",
			Help:    "Confidence score of extracted applications",
			Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 1},
		},
	)

	MergeDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merge_decision_count",
			Help: "Merge engine decisions",
		},
		[]string{"decision", "changed"},
	)

	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "merge_duration_seconds",
			Help:    "Merge duration including lock wait, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementEmailProcessed 增加邮件处理计数
func IncrementEmailProcessed(status string) {
	EmailProcessedCount.WithLabelValues(status).Inc()
}

func RecordExtraction(status string, confidence float64) {
	ExtractionCount.WithLabelValues(status).Inc()
	ExtractionConfidence.Observe(confidence)
}

func RecordMerge(decision string, changed bool, duration time.Duration) {
	c := "false"
	if changed {
		c = "true"
	}
	MergeDecisionCount.WithLabelValues(decision, c).Inc()
	MergeDuration.Observe(duration.Seconds())
}
