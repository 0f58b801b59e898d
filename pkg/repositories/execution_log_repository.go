package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const executionLogsTable = "automation_execution_logs"

// ExecutionLogRepository handles database operations for execution logs
type ExecutionLogRepository struct {
	*Repository
}

// NewExecutionLogRepository creates a new execution log repository
func NewExecutionLogRepository(db database.DB, logger ectologger.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{
		Repository: NewRepository(db, logger),
	}
}

// Begin opens a `running` log row before the action executes, so a crashed
// worker still leaves evidence the rule started.
func (r *ExecutionLogRepository) Begin(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (*models.ExecutionLog, error) {
	ctx, span := tracing.StartSpan(ctx, "ExecutionLogRepository.Begin")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	log := &models.ExecutionLog{
		ID:          uuid.New(),
		TenantID:    tenantID,
		RuleID:      rule.ID,
		RecordID:    data.RecordID,
		Status:      models.ExecutionStatusRunning,
		TriggerData: database.NewJSONB(*data),
		StartedAt:   time.Now().UTC(),
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(executionLogsTable).
		Cols("id", "tenant_id", "rule_id", "record_id", "status", "trigger_data", "started_at").
		Values(log.ID, log.TenantID, log.RuleID, log.RecordID, log.Status, log.TriggerData, log.StartedAt)

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": rule.ID,
		}).Error("failed to open execution log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to open execution log")
	}

	return log, nil
}

// Complete closes an execution log exactly once. The status guard keeps a
// second close from overwriting the first outcome.
func (r *ExecutionLogRepository) Complete(ctx context.Context, logID uuid.UUID, status models.ExecutionStatus, result map[string]any, errMessage *string) error {
	ctx, span := tracing.StartSpan(ctx, "ExecutionLogRepository.Complete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_execution_logs
		SET status = $3, action_result = $4, error_message = $5, completed_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'running'
	`

	_, err = r.DB().ExecContext(ctx, query, tenantID, logID, status, database.NewJSONB(result), errMessage)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"log_id": logID,
		}).Error("failed to complete execution log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete execution log")
	}

	return nil
}

// GetByID retrieves an execution log by ID (tenant-scoped)
func (r *ExecutionLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	ctx, span := tracing.StartSpan(ctx, "ExecutionLogRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, rule_id, record_id, status, trigger_data,
		       action_result, error_message, started_at, completed_at
		FROM automation_execution_logs
		WHERE tenant_id = $1 AND id = $2
	`

	var log models.ExecutionLog
	err = r.DB().GetContext(ctx, &log, query, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "execution log %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"log_id": id,
		}).Error("failed to get execution log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get execution log")
	}

	return &log, nil
}

// List returns the tenant's execution logs, newest first
func (r *ExecutionLogRepository) List(ctx context.Context, limit, offset int) ([]models.ExecutionLog, error) {
	ctx, span := tracing.StartSpan(ctx, "ExecutionLogRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, rule_id, record_id, status, trigger_data,
		       action_result, error_message, started_at, completed_at
		FROM automation_execution_logs
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	logs := []models.ExecutionLog{}
	err = r.DB().SelectContext(ctx, &logs, query, tenantID, limit, offset)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list execution logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list execution logs")
	}

	return logs, nil
}

// ListByRule returns logs for one rule, newest first
func (r *ExecutionLogRepository) ListByRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]models.ExecutionLog, error) {
	ctx, span := tracing.StartSpan(ctx, "ExecutionLogRepository.ListByRule")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, rule_id, record_id, status, trigger_data,
		       action_result, error_message, started_at, completed_at
		FROM automation_execution_logs
		WHERE tenant_id = $1 AND rule_id = $2
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`

	logs := []models.ExecutionLog{}
	err = r.DB().SelectContext(ctx, &logs, query, tenantID, ruleID, limit, offset)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": ruleID,
		}).Error("failed to list execution logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list execution logs")
	}

	return logs, nil
}
