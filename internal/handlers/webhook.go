package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

// WebhookHandler handles webhook config API requests
type WebhookHandler struct {
	webhooks   repositories.WebhookRepo
	deliveries repositories.WebhookDeliveryRepo
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks repositories.WebhookRepo, deliveries repositories.WebhookDeliveryRepo) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, deliveries: deliveries}
}

// CreateWebhookRequest is the request body for creating a webhook config
type CreateWebhookRequest struct {
	Name         string            `json:"name" validate:"required"`
	Direction    string            `json:"direction" validate:"required"`
	TargetURL    string            `json:"target_url"`
	Events       []string          `json:"events"`
	Headers      map[string]string `json:"headers"`
	RetryCount   *int              `json:"retry_count"`
	RetryDelayMs *int              `json:"retry_delay_ms"`
	AllowedIPs   []string          `json:"allowed_ips"`
	IsActive     *bool             `json:"is_active"`
}

// UpdateWebhookRequest is the request body for updating a webhook config
type UpdateWebhookRequest struct {
	Name         string            `json:"name"`
	TargetURL    string            `json:"target_url"`
	Events       []string          `json:"events"`
	Headers      map[string]string `json:"headers"`
	RetryCount   *int              `json:"retry_count"`
	RetryDelayMs *int              `json:"retry_delay_ms"`
	AllowedIPs   []string          `json:"allowed_ips"`
	IsActive     *bool             `json:"is_active"`
}

// WebhookWithSecret is returned only on create and secret rotation; every
// other read path omits the secret.
type WebhookWithSecret struct {
	*models.WebhookConfig
	Secret string `json:"secret"`
}

// RegisterRoutes registers the webhook config routes
func (h *WebhookHandler) RegisterRoutes(g *echo.Group) {
	webhooks := g.Group("/webhooks")
	webhooks.POST("", h.Create)
	webhooks.GET("", h.List)
	webhooks.GET("/:id", h.Get)
	webhooks.PUT("/:id", h.Update)
	webhooks.DELETE("/:id", h.Delete)
	webhooks.POST("/:id/rotate-secret", h.RotateSecret)
	webhooks.GET("/:id/deliveries", h.ListDeliveries)
}

// Create handles POST /webhooks
func (h *WebhookHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req CreateWebhookRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Name == "" {
		return BadRequest("name is required")
	}

	direction := models.WebhookDirection(req.Direction)
	switch direction {
	case models.WebhookDirectionInbound, models.WebhookDirectionOutbound:
	default:
		return BadRequest("direction must be inbound or outbound")
	}

	if direction == models.WebhookDirectionOutbound {
		if req.TargetURL == "" {
			return BadRequest("target_url is required for outbound webhooks")
		}
		if len(req.Events) == 0 {
			return BadRequest("events is required for outbound webhooks")
		}
	}

	webhook := &models.WebhookConfig{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         req.Name,
		Direction:    direction,
		TargetURL:    req.TargetURL,
		Events:       database.NewJSONB(req.Events),
		Headers:      database.NewJSONB(req.Headers),
		RetryCount:   3,
		RetryDelayMs: 1000,
		AllowedIPs:   database.NewJSONB(req.AllowedIPs),
		IsActive:     true,
	}
	if req.RetryCount != nil {
		webhook.RetryCount = *req.RetryCount
	}
	if req.RetryDelayMs != nil {
		webhook.RetryDelayMs = *req.RetryDelayMs
	}
	if req.IsActive != nil {
		webhook.IsActive = *req.IsActive
	}

	if err := h.webhooks.Create(ctx, webhook); err != nil {
		return err
	}

	// The only time the secret leaves the server in plain form
	return CreatedResponse(c, &WebhookWithSecret{WebhookConfig: webhook, Secret: webhook.Secret})
}

// List handles GET /webhooks
func (h *WebhookHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	webhooks, err := h.webhooks.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, webhooks)
}

// Get handles GET /webhooks/:id
func (h *WebhookHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	webhook, err := h.webhooks.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, webhook)
}

// Update handles PUT /webhooks/:id
func (h *WebhookHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	existing, err := h.webhooks.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var req UpdateWebhookRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.TargetURL != "" {
		existing.TargetURL = req.TargetURL
	}
	if req.Events != nil {
		existing.Events = database.NewJSONB(req.Events)
	}
	if req.Headers != nil {
		existing.Headers = database.NewJSONB(req.Headers)
	}
	if req.RetryCount != nil {
		existing.RetryCount = *req.RetryCount
	}
	if req.RetryDelayMs != nil {
		existing.RetryDelayMs = *req.RetryDelayMs
	}
	if req.AllowedIPs != nil {
		existing.AllowedIPs = database.NewJSONB(req.AllowedIPs)
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := h.webhooks.Update(ctx, existing); err != nil {
		return err
	}

	return SuccessResponse(c, existing)
}

// Delete handles DELETE /webhooks/:id
func (h *WebhookHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.webhooks.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// RotateSecret handles POST /webhooks/:id/rotate-secret
func (h *WebhookHandler) RotateSecret(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	secret, err := h.webhooks.RotateSecret(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]string{"secret": secret})
}

// ListDeliveries handles GET /webhooks/:id/deliveries
func (h *WebhookHandler) ListDeliveries(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	// Ownership check before reading the delivery log
	if _, err := h.webhooks.GetByID(ctx, id); err != nil {
		return err
	}

	limit, offset := ParsePagination(c)
	deliveries, err := h.deliveries.ListByWebhook(ctx, id, limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, deliveries)
}
