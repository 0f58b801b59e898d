package handlers

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/queue"
	"github.com/Ramsey-B/clover/pkg/ratelimit"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/signature"
)

// maxInboundBodySize caps inbound webhook payloads at 1 MB
const maxInboundBodySize = 1 << 20

// InboundHandler receives webhooks from external systems. Callers are
// authenticated by webhook id plus an HMAC signature over the raw body;
// everything is rejected at the boundary before touching the pipeline.
type InboundHandler struct {
	webhooks repositories.WebhookRepo
	limiter  *ratelimit.Limiter
	limit    int
	window   time.Duration
	events   queue.EventPublisher
	logger   ectologger.Logger
}

// NewInboundHandler creates a new inbound webhook handler
func NewInboundHandler(
	webhooks repositories.WebhookRepo,
	limiter *ratelimit.Limiter,
	limit int,
	window time.Duration,
	events queue.EventPublisher,
	logger ectologger.Logger,
) *InboundHandler {
	return &InboundHandler{
		webhooks: webhooks,
		limiter:  limiter,
		limit:    limit,
		window:   window,
		events:   events,
		logger:   logger,
	}
}

// RegisterRoutes registers the inbound webhook routes
func (h *InboundHandler) RegisterRoutes(g *echo.Group) {
	hooks := g.Group("/hooks")
	hooks.GET("/:id", h.Health)
	hooks.POST("/:id", h.Receive)
}

// Health handles GET /hooks/:id
func (h *InboundHandler) Health(c echo.Context) error {
	if _, err := ParseUUID(c, "id"); err != nil {
		return err
	}

	return SuccessResponse(c, map[string]string{
		"status":  "ok",
		"message": "webhook endpoint is active",
	})
}

// Receive handles POST /hooks/:id
func (h *InboundHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	webhook, err := h.webhooks.GetInbound(ctx, id)
	if err != nil {
		// Don't leak which ids exist
		return Unauthorized("unknown webhook")
	}

	// The caller is external; the webhook's owner is the acting tenant
	// from here on.
	ctx = appcontext.SetTenantID(ctx, webhook.TenantID.String())

	if !webhook.AllowsIP(c.RealIP()) {
		h.logger.WithContext(ctx).Warnf("Inbound webhook %s rejected ip %s", id, c.RealIP())
		return Unauthorized("source address not allowed")
	}

	res := h.limiter.Check(ctx, "hooks:"+id.String(), h.limit, h.window)
	setRateLimitHeaders(c, res)
	if !res.Allowed {
		return TooManyRequests("webhook rate limit exceeded")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxInboundBodySize))
	if err != nil {
		return BadRequest("failed to read request body")
	}

	sig := c.Request().Header.Get("X-Webhook-Signature")
	if !signature.Verify(body, webhook.Secret, sig) {
		h.logger.WithContext(ctx).Warnf("Inbound webhook %s rejected: invalid signature", id)
		return Unauthorized("invalid signature")
	}

	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return BadRequest("body must be valid JSON")
		}
	}

	if err := h.webhooks.UpdateLastTriggered(ctx, id); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warnf("Failed to stamp inbound webhook %s", id)
	}

	if h.events != nil {
		event := &kafka.PipelineEventMessage{
			Type:     "webhook.received",
			TenantID: webhook.TenantID.String(),
			RecordID: id.String(),
			Payload:  payload,
		}
		if err := h.events.PublishEvent(ctx, event); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Failed to publish webhook.received event")
		}
	}

	return SuccessResponse(c, map[string]string{"status": "received"})
}
