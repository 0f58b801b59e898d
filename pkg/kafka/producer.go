package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	EventTopic    string
	ActivityTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, eventTopic string, activityTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:       brokerList,
		EventTopic:    eventTopic,
		ActivityTopic: activityTopic,
	}
}

// Producer publishes pipeline events and CRM activity records to Kafka
type Producer struct {
	eventWriter    *kafka.Writer
	activityWriter *kafka.Writer
	logger         ectologger.Logger
	eventTopic     string
	activityTopic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	eventWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	activityWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ActivityTopic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		eventWriter:    eventWriter,
		activityWriter: activityWriter,
		logger:         logger,
		eventTopic:     cfg.EventTopic,
		activityTopic:  cfg.ActivityTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.eventWriter.Close(); err != nil {
		firstErr = err
	}
	if p.activityWriter != nil {
		if err := p.activityWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PipelineEventMessage is a lifecycle event for a processed trigger.
// Downstream services consume these to react to automation outcomes.
type PipelineEventMessage struct {
	Type        string    `json:"type"` // "trigger.received" | "trigger.processed" | "webhook.received"
	TenantID    string    `json:"tenant_id"`
	TriggerType string    `json:"trigger_type,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	RulesRun    int       `json:"rules_run,omitempty"`
	RulesFailed int       `json:"rules_failed,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// ActivityMessage is a CRM activity record appended to a record's timeline
type ActivityMessage struct {
	TenantID    string    `json:"tenant_id"`
	RecordID    string    `json:"record_id"`
	Type        string    `json:"type"` // e.g. "email_sent"
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
}

// PublishEvent publishes a pipeline event message to Kafka
func (p *Producer) PublishEvent(ctx context.Context, msg *PipelineEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.eventTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("tenant_id", msg.TenantID),
		attribute.String("event_type", msg.Type),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Use tenant_id + record_id as key for partitioning
	key := fmt.Sprintf("%s:%s", msg.TenantID, msg.RecordID)

	headers := []kafka.Header{
		{Key: "tenant_id", Value: []byte(msg.TenantID)},
		{Key: "type", Value: []byte(msg.Type)},
	}
	if msg.TriggerType != "" {
		headers = append(headers, kafka.Header{Key: "trigger_type", Value: []byte(msg.TriggerType)})
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	start := time.Now()
	err = p.eventWriter.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	})

	if err != nil {
		metrics.RecordKafkaPublish(p.eventTopic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.eventTopic)
		return err
	}

	metrics.RecordKafkaPublish(p.eventTopic, "success", time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published pipeline event to Kafka: type=%s tenant=%s trace=%s",
		msg.Type, msg.TenantID, msg.TraceID)

	return nil
}

// PublishActivity publishes an activity record to the activity topic
func (p *Producer) PublishActivity(ctx context.Context, msg *ActivityMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishActivity")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.activityTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("tenant_id", msg.TenantID),
		attribute.String("record_id", msg.RecordID),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	key := fmt.Sprintf("%s:%s", msg.TenantID, msg.RecordID)

	headers := []kafka.Header{
		{Key: "tenant_id", Value: []byte(msg.TenantID)},
		{Key: "record_id", Value: []byte(msg.RecordID)},
		{Key: "type", Value: []byte(msg.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if p.activityWriter == nil {
		return fmt.Errorf("activityWriter is nil (activity topic not configured)")
	}

	start := time.Now()
	if err := p.activityWriter.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}); err != nil {
		metrics.RecordKafkaPublish(p.activityTopic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka activity topic %s", p.activityTopic)
		return err
	}

	metrics.RecordKafkaPublish(p.activityTopic, "success", time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published activity to Kafka: record=%s type=%s", msg.RecordID, msg.Type)
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.eventWriter.Stats()
}
