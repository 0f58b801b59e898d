// Package queue consumes trigger jobs from Redis Streams and drives the
// automation pipeline for each one.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/triggers"
	"github.com/Ramsey-B/clover/pkg/webhooks"
)

var (
	// ErrProcessorStopped is returned when the processor is stopped
	ErrProcessorStopped = errors.New("processor stopped")
)

const (
	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of retries for a job
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to claim stale pending messages
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimMinIdle is the minimum idle time before claiming a message
	DefaultClaimMinIdle = 60 * time.Second
)

// ProcessorConfig holds configuration for the trigger processor
type ProcessorConfig struct {
	// Stream name for the trigger queue
	Stream string

	// Consumer group name
	ConsumerGroup string

	// Consumer name (unique per instance)
	ConsumerName string

	// Number of messages to fetch per batch
	BatchSize int64

	// How long to block waiting for new messages
	BlockTimeout time.Duration

	// Maximum number of retries for a job
	MaxRetries int

	// How often to check for and claim stale pending messages
	ClaimInterval time.Duration

	// Minimum idle time before claiming a pending message
	ClaimMinIdle time.Duration

	// Number of worker goroutines
	WorkerCount int
}

// DefaultProcessorConfig returns the default processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        "clover:triggers",
		ConsumerGroup: "clover-workers",
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
	}
}

// JobResult holds the result of processing a trigger job
type JobResult struct {
	JobID     string
	MessageID string
	Success   bool
	Error     error
	Duration  time.Duration
	RulesRun  int
}

// EventPublisher publishes pipeline outcome events
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *kafka.PipelineEventMessage) error
}

// Processor consumes trigger jobs and runs the rule dispatch plus webhook
// fan-out for each one
type Processor struct {
	streams    *redis.Streams
	dlq        *redis.DeadLetterQueue
	dispatcher *triggers.Dispatcher
	delivery   *webhooks.DeliveryEngine
	events     EventPublisher
	config     ProcessorConfig
	logger     ectologger.Logger

	// Channels for coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan redis.StreamMessage

	// State
	running bool
	mu      sync.RWMutex
}

// NewProcessor creates a new trigger processor
func NewProcessor(
	streams *redis.Streams,
	dlq *redis.DeadLetterQueue,
	dispatcher *triggers.Dispatcher,
	delivery *webhooks.DeliveryEngine,
	events EventPublisher,
	config ProcessorConfig,
	logger ectologger.Logger,
) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Processor{
		streams:    streams,
		dlq:        dlq,
		dispatcher: dispatcher,
		delivery:   delivery,
		events:     events,
		config:     config,
		logger:     logger,
		stopCh:     make(chan struct{}),
		stoppedC:   make(chan struct{}),
		jobsCh:     make(chan redis.StreamMessage, config.BatchSize*2),
	}
}

// Start starts the processor
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	p.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Processor.Start")
	defer span.End()

	p.logger.WithContext(ctx).Infof("Starting trigger processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, i)
	}

	wg.Add(1)
	go p.consumeLoop(ctx, &wg)

	wg.Add(1)
	go p.claimLoop(ctx, &wg)

	go func() {
		<-p.stopCh
		close(p.jobsCh)
		wg.Wait()
		close(p.stoppedC)
	}()

	p.logger.WithContext(ctx).Info("Trigger processor started")
	return nil
}

// Stop stops the processor gracefully
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping trigger processor...")

	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Trigger processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Trigger processor shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the processor is running
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// consumeLoop continuously consumes messages from the stream
func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debug("Consumer loop started")

	for {
		select {
		case <-p.stopCh:
			p.logger.WithContext(ctx).Debug("Consumer loop stopping")
			return
		default:
		}

		messages, err := p.streams.Consume(
			ctx,
			p.config.Stream,
			p.config.ConsumerGroup,
			p.config.ConsumerName,
			p.config.BatchSize,
			p.config.BlockTimeout,
		)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			time.Sleep(time.Second) // Back off on error
			continue
		}

		for _, msg := range messages {
			select {
			case p.jobsCh <- msg:
			case <-p.stopCh:
				return
			}
		}
	}
}

// claimLoop periodically claims stale pending messages
func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	p.logger.WithContext(ctx).Debug("Claim loop started")

	for {
		select {
		case <-p.stopCh:
			p.logger.WithContext(ctx).Debug("Claim loop stopping")
			return
		case <-ticker.C:
			p.claimPendingMessages(ctx)
		}
	}
}

// claimPendingMessages claims stale pending messages from other consumers.
// Messages past the retry budget are claimed too, then dead-lettered.
func (p *Processor) claimPendingMessages(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Processor.claimPendingMessages")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return
	}

	if len(pending) == 0 {
		return
	}

	var staleIDs, exhaustedIDs []string
	for _, msg := range pending {
		if msg.Idle < p.config.ClaimMinIdle {
			continue
		}
		if msg.RetryCount <= int64(p.config.MaxRetries) {
			staleIDs = append(staleIDs, msg.ID)
		} else {
			exhaustedIDs = append(exhaustedIDs, msg.ID)
		}
	}

	if len(exhaustedIDs) > 0 {
		claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, exhaustedIDs...)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim exhausted messages")
		} else {
			for _, msg := range claimed {
				p.moveToDLQ(ctx, msg, "exceeded maximum retry count")
			}
		}
	}

	if len(staleIDs) == 0 {
		return
	}

	p.logger.WithContext(ctx).Infof("Claiming %d stale pending messages", len(staleIDs))

	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, staleIDs...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending messages")
		return
	}

	for _, msg := range claimed {
		select {
		case p.jobsCh <- msg:
		case <-p.stopCh:
			return
		default:
			// Channel full, skip for now
		}
	}
}

// worker processes jobs from the channel
func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)

	for msg := range p.jobsCh {
		metrics.QueueJobsInFlight.Inc()
		result := p.processJob(ctx, msg)
		metrics.QueueJobsInFlight.Dec()

		if result.Success {
			metrics.RecordQueueJob("success")
			if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, msg.ID); err != nil {
				p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", msg.ID)
			}
		} else {
			// Message stays pending and will be reclaimed after ClaimMinIdle
			metrics.RecordQueueJob("failed")
			p.logger.WithContext(ctx).WithError(result.Error).Warnf("Trigger job %s failed, will be retried", result.JobID)
		}
	}

	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// processJob runs the full pipeline for one trigger job: rule dispatch,
// webhook fan-out, then the outcome event
func (p *Processor) processJob(ctx context.Context, msg redis.StreamMessage) *JobResult {
	ctx, span := tracing.StartSpan(ctx, "Processor.processJob")
	defer span.End()

	start := time.Now()
	job := msg.Job
	result := &JobResult{
		JobID:     job.ID,
		MessageID: msg.ID,
	}

	if msg.DecodeErr != nil {
		// The entry is not a trigger job at all; retrying can never decode
		// it, so dead-letter the raw payload and ack the entry.
		p.moveToDLQ(ctx, msg, fmt.Sprintf("undecodable stream entry: %v", msg.DecodeErr))
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	ctx = appcontext.SetTenantID(ctx, job.TenantID)
	ctx = appcontext.SetRequestID(ctx, job.ID)

	p.logger.WithContext(ctx).Infof("Processing trigger job %s: trigger=%s tenant=%s", job.ID, job.TriggerType, job.TenantID)

	if !job.TriggerType.Valid() || job.TenantID == "" {
		// No amount of retrying fixes a malformed job; dead-letter it now.
		p.moveToDLQ(ctx, msg, "invalid trigger job")
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	execResults, err := p.dispatcher.Dispatch(ctx, job.TriggerType, &job.Data)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	result.RulesRun = len(execResults)

	failed := 0
	for _, r := range execResults {
		if r.Status != models.ExecutionStatusSuccess {
			failed++
		}
	}

	// Webhook fan-out happens regardless of rule outcomes; subscribers get
	// the event, not the automation results.
	if p.delivery != nil {
		payload := map[string]any{
			"record_id":   job.Data.RecordID,
			"record_name": job.Data.RecordName,
			"email":       job.Data.Email,
			"fields":      job.Data.Fields,
		}
		if _, err := p.delivery.Deliver(ctx, job.TriggerType.Event(), payload); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Webhook fan-out failed for %s", job.TriggerType)
		}
	}

	if p.events != nil {
		event := &kafka.PipelineEventMessage{
			Type:        "trigger.processed",
			TenantID:    job.TenantID,
			TriggerType: string(job.TriggerType),
			RecordID:    job.Data.RecordID,
			RulesRun:    len(execResults),
			RulesFailed: failed,
		}
		if err := p.events.PublishEvent(ctx, event); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to publish trigger.processed event")
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	p.logger.WithContext(ctx).Infof("Trigger job %s completed in %s (%d rules, %d failed)", job.ID, result.Duration, len(execResults), failed)
	return result
}

// moveToDLQ dead-letters a trigger job and acks the original message
func (p *Processor) moveToDLQ(ctx context.Context, msg redis.StreamMessage, errorMsg string) {
	ctx, span := tracing.StartSpan(ctx, "Processor.moveToDLQ")
	defer span.End()

	if p.dlq != nil {
		job := msg.Job
		entry := &redis.DLQEntry{
			TenantID:     job.TenantID,
			TriggerType:  string(job.TriggerType),
			OriginalJob:  &job,
			ErrorMessage: errorMsg,
			RetryCount:   job.Attempts,
		}
		if msg.DecodeErr != nil {
			// There is no job to re-enqueue; keep the raw bytes for inspection
			entry.OriginalJob = nil
			entry.RawPayload = msg.Raw
		}

		if _, dlqErr := p.dlq.Add(ctx, entry); dlqErr != nil {
			p.logger.WithContext(ctx).WithError(dlqErr).Errorf("Failed to add trigger job %s to DLQ", job.ID)
		} else {
			metrics.DLQJobsTotal.WithLabelValues(job.TenantID).Inc()
		}
	}

	if ackErr := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, msg.ID); ackErr != nil {
		p.logger.WithContext(ctx).WithError(ackErr).Warnf("Failed to ack message %s after DLQ", msg.ID)
	}
}

// PublishTrigger publishes a trigger job to the queue
func PublishTrigger(ctx context.Context, streams *redis.Streams, stream string, tenantID string, triggerType models.TriggerType, data models.TriggerData) (string, error) {
	job := &redis.TriggerJob{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		TriggerType: triggerType,
		Data:        data,
		EnqueuedAt:  time.Now(),
	}

	return streams.Publish(ctx, stream, job)
}
