// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TriggerDispatchesTotal tracks trigger dispatches by trigger type
	TriggerDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "triggers",
			Name:      "dispatches_total",
			Help:      "Total number of trigger dispatches by trigger type",
		},
		[]string{"tenant_id", "trigger_type"},
	)

	// RuleExecutionsTotal tracks automation rule executions by status
	RuleExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rules",
			Name:      "executions_total",
			Help:      "Total number of automation rule executions by status",
		},
		[]string{"tenant_id", "action_type", "status"},
	)

	// RuleExecutionDuration tracks rule execution duration in seconds
	RuleExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "rules",
			Name:      "execution_duration_seconds",
			Help:      "Duration of automation rule executions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"action_type"},
	)

	// WebhookDeliveryAttemptsTotal tracks webhook delivery attempts by outcome
	WebhookDeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "webhooks",
			Name:      "delivery_attempts_total",
			Help:      "Total number of webhook delivery attempts by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// WebhookDeliveryDuration tracks webhook delivery attempt duration
	WebhookDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "webhooks",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of webhook delivery attempts in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"event_type"},
	)

	// QueueJobsProcessed tracks trigger jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of trigger jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of trigger jobs currently being processed",
		},
	)

	// DLQJobsTotal tracks jobs sent to the dead letter queue
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "dlq",
			Name:      "jobs_total",
			Help:      "Total number of trigger jobs sent to dead letter queue",
		},
		[]string{"tenant_id"},
	)

	// RateLimitRejections tracks rejected rate limit checks by backend
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of rejected rate limit checks by backend",
		},
		[]string{"backend"},
	)

	// RateLimitFallbacks tracks checks that fell back to the in-memory limiter
	RateLimitFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ratelimit",
			Name:      "fallbacks_total",
			Help:      "Total number of rate limit checks served by the in-memory fallback",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)
)

// RecordRuleExecution records an automation rule execution metric
func RecordRuleExecution(tenantID, actionType, status string, durationSeconds float64) {
	RuleExecutionsTotal.WithLabelValues(tenantID, actionType, status).Inc()
	RuleExecutionDuration.WithLabelValues(actionType).Observe(durationSeconds)
}

// RecordDeliveryAttempt records a webhook delivery attempt metric
func RecordDeliveryAttempt(tenantID, eventType, status string, durationSeconds float64) {
	WebhookDeliveryAttemptsTotal.WithLabelValues(tenantID, status).Inc()
	WebhookDeliveryDuration.WithLabelValues(eventType).Observe(durationSeconds)
}

// RecordQueueJob records a queue job processing metric
func RecordQueueJob(status string) {
	QueueJobsProcessed.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
