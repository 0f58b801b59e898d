package handlers

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/queue"
	"github.com/Ramsey-B/clover/pkg/ratelimit"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// TriggerHandler accepts domain events and enqueues them for processing
type TriggerHandler struct {
	streams *redis.Streams
	stream  string
	limiter *ratelimit.Limiter
	limit   int
	window  time.Duration
	events  queue.EventPublisher
	logger  ectologger.Logger
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(
	streams *redis.Streams,
	stream string,
	limiter *ratelimit.Limiter,
	limit int,
	window time.Duration,
	events queue.EventPublisher,
	logger ectologger.Logger,
) *TriggerHandler {
	return &TriggerHandler{
		streams: streams,
		stream:  stream,
		limiter: limiter,
		limit:   limit,
		window:  window,
		events:  events,
		logger:  logger,
	}
}

// TriggerRequest is the request body for firing a trigger
type TriggerRequest struct {
	TriggerType string             `json:"trigger_type" validate:"required"`
	Data        models.TriggerData `json:"data"`
}

// TriggerResponse acknowledges an enqueued trigger
type TriggerResponse struct {
	JobID       string `json:"job_id"`
	TriggerType string `json:"trigger_type"`
	Status      string `json:"status"`
}

// RegisterRoutes registers the trigger routes
func (h *TriggerHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/triggers", h.Fire)
}

// Fire handles POST /triggers. The trigger is validated, rate-limit gated
// per tenant, and enqueued; rule dispatch and webhook fan-out happen
// asynchronously in the queue processor.
func (h *TriggerHandler) Fire(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	triggerType := models.TriggerType(req.TriggerType)
	if !triggerType.Valid() {
		return BadRequest("unknown trigger_type: " + req.TriggerType)
	}

	res := h.limiter.Check(ctx, "triggers:"+tenantID.String(), h.limit, h.window)
	setRateLimitHeaders(c, res)
	if !res.Allowed {
		return TooManyRequests("trigger rate limit exceeded")
	}

	jobID, err := queue.PublishTrigger(ctx, h.streams, h.stream, tenantID.String(), triggerType, req.Data)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue trigger")
		return err
	}

	if h.events != nil {
		event := &kafka.PipelineEventMessage{
			Type:        "trigger.received",
			TenantID:    tenantID.String(),
			TriggerType: req.TriggerType,
			RecordID:    req.Data.RecordID,
		}
		if err := h.events.PublishEvent(ctx, event); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Failed to publish trigger.received event")
		}
	}

	return AcceptedResponse(c, &TriggerResponse{
		JobID:       jobID,
		TriggerType: req.TriggerType,
		Status:      "queued",
	})
}

func setRateLimitHeaders(c echo.Context, res *ratelimit.Result) {
	header := c.Response().Header()
	header.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed && res.RetryIn > 0 {
		retryAfter := int(res.RetryIn.Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		header.Set("Retry-After", strconv.Itoa(retryAfter))
	}
}
