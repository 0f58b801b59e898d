package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/repositories"
)

// ExecutionHandler exposes the tenant-wide execution history
type ExecutionHandler struct {
	logs repositories.ExecutionLogRepo
}

// NewExecutionHandler creates a new execution log handler
func NewExecutionHandler(logs repositories.ExecutionLogRepo) *ExecutionHandler {
	return &ExecutionHandler{logs: logs}
}

// RegisterRoutes registers the execution log routes
func (h *ExecutionHandler) RegisterRoutes(g *echo.Group) {
	executions := g.Group("/executions")
	executions.GET("", h.List)
	executions.GET("/:id", h.Get)
}

// List handles GET /executions
func (h *ExecutionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit, offset := ParsePagination(c)
	logs, err := h.logs.List(ctx, limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, logs)
}

// Get handles GET /executions/:id
func (h *ExecutionHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	log, err := h.logs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, log)
}
