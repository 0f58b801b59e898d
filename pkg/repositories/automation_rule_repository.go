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

const rulesTable = "automation_rules"

// AutomationRuleRepository handles database operations for automation rules
type AutomationRuleRepository struct {
	*Repository
}

// NewAutomationRuleRepository creates a new automation rule repository
func NewAutomationRuleRepository(db database.DB, logger ectologger.Logger) *AutomationRuleRepository {
	return &AutomationRuleRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new automation rule
func (r *AutomationRuleRepository) Create(ctx context.Context, rule *models.AutomationRule) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	rule.TenantID = tenantID

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto(rulesTable).
		Cols(
			"id", "tenant_id", "name", "trigger_type", "action_type", "action_config",
			"is_active", "priority", "created_at", "updated_at",
		).
		Values(
			rule.ID, rule.TenantID, rule.Name, rule.TriggerType, rule.ActionType, rule.ActionConfig,
			rule.IsActive, rule.Priority, now, now,
		).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": rule.ID,
		}).Error("failed to create automation rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create automation rule")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rule_id": rule.ID,
	}).Debugf("Created %s", rulesTable)
	return nil
}

// GetByID retrieves a rule by ID (tenant-scoped)
func (r *AutomationRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, trigger_type, action_type, action_config,
		       is_active, priority, trigger_count, success_count, failure_count,
		       last_triggered_at, created_at, updated_at
		FROM automation_rules
		WHERE tenant_id = $1 AND id = $2
	`

	var rule models.AutomationRule
	err = r.DB().GetContext(ctx, &rule, query, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "automation rule %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": id,
		}).Error("failed to get automation rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get automation rule")
	}

	return &rule, nil
}

// List retrieves all rules for the tenant
func (r *AutomationRuleRepository) List(ctx context.Context) ([]models.AutomationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, trigger_type, action_type, action_config,
		       is_active, priority, trigger_count, success_count, failure_count,
		       last_triggered_at, created_at, updated_at
		FROM automation_rules
		WHERE tenant_id = $1
		ORDER BY priority ASC, created_at ASC
	`

	rules := []models.AutomationRule{}
	err = r.DB().SelectContext(ctx, &rules, query, tenantID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list automation rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list automation rules")
	}

	return rules, nil
}

// ListActiveByTrigger returns the tenant's active rules for a trigger type,
// ordered by priority then age. This ordering is the dispatch order.
func (r *AutomationRuleRepository) ListActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]models.AutomationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.ListActiveByTrigger")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, trigger_type, action_type, action_config,
		       is_active, priority, trigger_count, success_count, failure_count,
		       last_triggered_at, created_at, updated_at
		FROM automation_rules
		WHERE tenant_id = $1 AND trigger_type = $2 AND is_active = true
		ORDER BY priority ASC, created_at ASC
	`

	rules := []models.AutomationRule{}
	err = r.DB().SelectContext(ctx, &rules, query, tenantID, triggerType)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"trigger_type": triggerType,
		}).Error("failed to list active automation rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list automation rules")
	}

	return rules, nil
}

// Update updates a rule's definition fields. Counters are untouched.
func (r *AutomationRuleRepository) Update(ctx context.Context, rule *models.AutomationRule) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.Update")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(rulesTable).
		Set(
			ub.Assign("name", rule.Name),
			ub.Assign("trigger_type", rule.TriggerType),
			ub.Assign("action_type", rule.ActionType),
			ub.Assign("action_config", rule.ActionConfig),
			ub.Assign("is_active", rule.IsActive),
			ub.Assign("priority", rule.Priority),
			ub.Assign("updated_at", time.Now().UTC()),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", rule.ID),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": rule.ID,
		}).Error("failed to update automation rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update automation rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "automation rule %s does not exist", rule.ID)
	}

	return nil
}

// Delete removes a rule
func (r *AutomationRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.Delete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(rulesTable).
		Where(
			db.Equal("tenant_id", tenantID),
			db.Equal("id", id),
		)

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": id,
		}).Error("failed to delete automation rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete automation rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "automation rule %s does not exist", id)
	}

	return nil
}

// RecordExecution bumps the rule's counters after a dispatch. The update is
// a single statement so concurrent dispatches converge without locking.
func (r *AutomationRuleRepository) RecordExecution(ctx context.Context, ruleID uuid.UUID, success bool) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.RecordExecution")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_rules
		SET trigger_count = trigger_count + 1,
		    success_count = success_count + CASE WHEN $3 THEN 1 ELSE 0 END,
		    failure_count = failure_count + CASE WHEN $3 THEN 0 ELSE 1 END,
		    last_triggered_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`

	_, err = r.DB().ExecContext(ctx, query, tenantID, ruleID, success)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": ruleID,
		}).Error("failed to record rule execution")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record rule execution")
	}

	return nil
}

// ResetCounters zeroes a rule's execution counters
func (r *AutomationRuleRepository) ResetCounters(ctx context.Context, ruleID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.ResetCounters")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_rules
		SET trigger_count = 0, success_count = 0, failure_count = 0
		WHERE tenant_id = $1 AND id = $2
	`

	result, err := r.DB().ExecContext(ctx, query, tenantID, ruleID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": ruleID,
		}).Error("failed to reset rule counters")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset rule counters")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "automation rule %s does not exist", ruleID)
	}

	return nil
}
