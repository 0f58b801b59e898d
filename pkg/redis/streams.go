package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
)

// TriggerJob is the unit of work carried by the trigger stream. One job
// represents a single CRM event for a single tenant.
type TriggerJob struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenant_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	Data        models.TriggerData `json:"data"`
	EnqueuedAt  time.Time          `json:"enqueued_at"`
	Attempts    int                `json:"attempts"`
}

// StreamMessage pairs a stream entry ID with its decoded job. When the
// entry payload cannot be decoded, DecodeErr is set, Raw carries the
// payload as read, and Job is the zero value; the consumer decides how
// to dispose of the entry.
type StreamMessage struct {
	ID        string
	Stream    string
	Job       TriggerJob
	Raw       string
	DecodeErr error
}

// decodeEntry turns one raw stream entry into a StreamMessage. Decode
// failures are reported on the message rather than dropping the entry,
// so it can still be acknowledged and dead-lettered.
func decodeEntry(stream, id string, values map[string]interface{}) StreamMessage {
	msg := StreamMessage{ID: id, Stream: stream}

	data, ok := values["data"].(string)
	if !ok {
		msg.DecodeErr = fmt.Errorf("stream entry %s has no data field", id)
		return msg
	}
	msg.Raw = data

	if err := json.Unmarshal([]byte(data), &msg.Job); err != nil {
		msg.DecodeErr = fmt.Errorf("failed to unmarshal stream entry %s: %w", id, err)
	}
	return msg
}

// Streams provides Redis Streams operations for the trigger queue
type Streams struct {
	client *Client
}

// NewStreams creates a new Streams instance
func NewStreams(client *Client) *Streams {
	return &Streams{client: client}
}

// Publish appends a trigger job to the stream
func (s *Streams) Publish(ctx context.Context, stream string, job *TriggerJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trigger job: %w", err)
	}

	result, err := s.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(payload),
		},
	}).Result()

	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish trigger job to stream %s", stream)
		return "", err
	}

	s.client.logger.WithContext(ctx).Infof("Published trigger job %s (%s) to stream %s (entry %s)", job.ID, job.TriggerType, stream, result)
	return result, nil
}

// CreateConsumerGroup creates a consumer group for a stream, creating the
// stream itself if it does not exist yet
func (s *Streams) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Consume reads trigger jobs from a stream using a consumer group
func (s *Streams) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	results, err := s.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err == redis.Nil {
		return nil, nil // No messages
	}
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, result := range results {
		for _, msg := range result.Messages {
			decoded := decodeEntry(result.Stream, msg.ID, msg.Values)
			if decoded.DecodeErr != nil {
				s.client.logger.WithContext(ctx).WithError(decoded.DecodeErr).Warnf("Stream entry %s is not a valid trigger job", msg.ID)
			}
			messages = append(messages, decoded)
		}
	}

	return messages, nil
}

// Ack acknowledges processed entries
func (s *Streams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.rdb.XAck(ctx, stream, group, ids...).Err()
}

// Pending returns entries delivered but not yet acknowledged
func (s *Streams) Pending(ctx context.Context, stream, group string, count int64) ([]redis.XPendingExt, error) {
	return s.client.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
}

// Claim takes over pending entries that have been idle for at least minIdle
func (s *Streams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	results, err := s.client.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()

	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, msg := range results {
		messages = append(messages, decodeEntry(stream, msg.ID, msg.Values))
	}

	return messages, nil
}

// Len returns the length of a stream
func (s *Streams) Len(ctx context.Context, stream string) (int64, error) {
	return s.client.rdb.XLen(ctx, stream).Result()
}

// Trim trims a stream to approximately maxLen entries
func (s *Streams) Trim(ctx context.Context, stream string, maxLen int64) error {
	return s.client.rdb.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err()
}
