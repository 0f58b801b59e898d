package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

// RuleHandler handles automation rule API requests
type RuleHandler struct {
	rules repositories.AutomationRuleRepo
	logs  repositories.ExecutionLogRepo
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(rules repositories.AutomationRuleRepo, logs repositories.ExecutionLogRepo) *RuleHandler {
	return &RuleHandler{rules: rules, logs: logs}
}

// CreateRuleRequest is the request body for creating a rule
type CreateRuleRequest struct {
	Name         string         `json:"name" validate:"required"`
	TriggerType  string         `json:"trigger_type" validate:"required"`
	ActionType   string         `json:"action_type" validate:"required"`
	ActionConfig map[string]any `json:"action_config"`
	IsActive     *bool          `json:"is_active"`
	Priority     int            `json:"priority"`
}

// UpdateRuleRequest is the request body for updating a rule
type UpdateRuleRequest struct {
	Name         string         `json:"name"`
	TriggerType  string         `json:"trigger_type"`
	ActionConfig map[string]any `json:"action_config"`
	IsActive     *bool          `json:"is_active"`
	Priority     *int           `json:"priority"`
}

// RegisterRoutes registers the rule routes
func (h *RuleHandler) RegisterRoutes(g *echo.Group) {
	rules := g.Group("/rules")
	rules.POST("", h.Create)
	rules.GET("", h.List)
	rules.GET("/:id", h.Get)
	rules.PUT("/:id", h.Update)
	rules.DELETE("/:id", h.Delete)
	rules.POST("/:id/enable", h.Enable)
	rules.POST("/:id/disable", h.Disable)
	rules.POST("/:id/reset-counters", h.ResetCounters)
	rules.GET("/:id/executions", h.ListExecutions)
}

// Create handles POST /rules
func (h *RuleHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req CreateRuleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Name == "" {
		return BadRequest("name is required")
	}

	triggerType := models.TriggerType(req.TriggerType)
	if !triggerType.Valid() {
		return BadRequest("unknown trigger_type: " + req.TriggerType)
	}

	if err := actions.ValidateConfig(models.ActionType(req.ActionType), req.ActionConfig); err != nil {
		return BadRequest(err.Error())
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rule := &models.AutomationRule{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         req.Name,
		TriggerType:  triggerType,
		ActionType:   models.ActionType(req.ActionType),
		ActionConfig: database.NewJSONB(req.ActionConfig),
		IsActive:     isActive,
		Priority:     req.Priority,
	}

	if err := h.rules.Create(ctx, rule); err != nil {
		return err
	}

	return CreatedResponse(c, rule)
}

// List handles GET /rules
func (h *RuleHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	rules, err := h.rules.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, rules)
}

// Get handles GET /rules/:id
func (h *RuleHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	rule, err := h.rules.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, rule)
}

// Update handles PUT /rules/:id
func (h *RuleHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	existing, err := h.rules.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var req UpdateRuleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.TriggerType != "" {
		triggerType := models.TriggerType(req.TriggerType)
		if !triggerType.Valid() {
			return BadRequest("unknown trigger_type: " + req.TriggerType)
		}
		existing.TriggerType = triggerType
	}
	if req.ActionConfig != nil {
		if err := actions.ValidateConfig(existing.ActionType, req.ActionConfig); err != nil {
			return BadRequest(err.Error())
		}
		existing.ActionConfig = database.NewJSONB(req.ActionConfig)
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.Priority != nil {
		existing.Priority = *req.Priority
	}

	if err := h.rules.Update(ctx, existing); err != nil {
		return err
	}

	return SuccessResponse(c, existing)
}

// Delete handles DELETE /rules/:id
func (h *RuleHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.rules.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// Enable handles POST /rules/:id/enable
func (h *RuleHandler) Enable(c echo.Context) error {
	return h.setActive(c, true)
}

// Disable handles POST /rules/:id/disable
func (h *RuleHandler) Disable(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *RuleHandler) setActive(c echo.Context, active bool) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	rule, err := h.rules.GetByID(ctx, id)
	if err != nil {
		return err
	}

	rule.IsActive = active
	if err := h.rules.Update(ctx, rule); err != nil {
		return err
	}

	return SuccessResponse(c, map[string]bool{"is_active": active})
}

// ResetCounters handles POST /rules/:id/reset-counters
func (h *RuleHandler) ResetCounters(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.rules.ResetCounters(ctx, id); err != nil {
		return err
	}

	return SuccessResponse(c, map[string]bool{"reset": true})
}

// ListExecutions handles GET /rules/:id/executions
func (h *RuleHandler) ListExecutions(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	// Ownership check before reading logs
	if _, err := h.rules.GetByID(ctx, id); err != nil {
		return err
	}

	limit, offset := ParsePagination(c)
	logs, err := h.logs.ListByRule(ctx, id, limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, logs)
}
