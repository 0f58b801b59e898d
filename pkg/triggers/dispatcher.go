// Package triggers dispatches CRM events to the automation rules that
// subscribe to them.
package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Dispatcher runs every active rule matching a trigger, in priority order.
// One failing rule never stops the rules behind it.
type Dispatcher struct {
	rules    repositories.AutomationRuleRepo
	logs     repositories.ExecutionLogRepo
	registry *actions.Registry
	logger   ectologger.Logger
}

// NewDispatcher creates a trigger dispatcher
func NewDispatcher(rules repositories.AutomationRuleRepo, logs repositories.ExecutionLogRepo, registry *actions.Registry, logger ectologger.Logger) *Dispatcher {
	return &Dispatcher{
		rules:    rules,
		logs:     logs,
		registry: registry,
		logger:   logger,
	}
}

// Dispatch fires triggerType for the tenant in ctx. It returns one result
// per matched rule, in the order they ran.
func (d *Dispatcher) Dispatch(ctx context.Context, triggerType models.TriggerType, data *models.TriggerData) ([]models.ExecutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Dispatcher.Dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("trigger_type", string(triggerType)),
		attribute.String("record_id", data.RecordID),
	)

	if !triggerType.Valid() {
		return nil, fmt.Errorf("unknown trigger type %q", triggerType)
	}

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := d.rules.ListActiveByTrigger(ctx, triggerType)
	if err != nil {
		return nil, err
	}

	metrics.TriggerDispatchesTotal.WithLabelValues(tenantID.String(), string(triggerType)).Inc()

	if len(rules) == 0 {
		d.logger.WithContext(ctx).Debugf("No active rules for trigger %s", triggerType)
		return []models.ExecutionResult{}, nil
	}

	results := make([]models.ExecutionResult, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		results = append(results, d.executeRule(ctx, rule, data))
	}

	d.logger.WithContext(ctx).Infof("Dispatched %s to %d rules for record %s", triggerType, len(rules), data.RecordID)
	return results, nil
}

// executeRule runs one rule end to end: open the log row, execute the
// action, close the row, bump the counters. All failure paths are folded
// into the returned result.
func (d *Dispatcher) executeRule(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) models.ExecutionResult {
	ctx, span := tracing.StartSpan(ctx, "Dispatcher.ExecuteRule")
	defer span.End()

	span.SetAttributes(
		attribute.String("rule_id", rule.ID.String()),
		attribute.String("action_type", string(rule.ActionType)),
	)

	start := time.Now()
	result := models.ExecutionResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Status:   models.ExecutionStatusFailed,
	}

	log, err := d.logs.Begin(ctx, rule, data)
	if err != nil {
		// Without a log row there is no audit trail; skip the action
		// rather than run it unrecorded.
		d.logger.WithContext(ctx).WithError(err).Errorf("Skipping rule %s: could not open execution log", rule.ID)
		result.Error = err.Error()
		result.Duration = time.Since(start)
		d.recordOutcome(ctx, rule, false, result.Duration)
		return result
	}
	result.LogID = log.ID

	actionResult, actionErr := d.runAction(ctx, rule, data)
	result.Duration = time.Since(start)

	if actionErr != nil {
		errMsg := actionErr.Error()
		result.Error = errMsg
		if err := d.logs.Complete(ctx, log.ID, models.ExecutionStatusFailed, nil, &errMsg); err != nil {
			d.logger.WithContext(ctx).WithError(err).Errorf("Failed to close execution log %s", log.ID)
		}
		d.recordOutcome(ctx, rule, false, result.Duration)
		d.logger.WithContext(ctx).WithError(actionErr).Warnf("Rule %s (%s) failed", rule.Name, rule.ID)
		return result
	}

	result.Status = models.ExecutionStatusSuccess
	result.Result = actionResult
	if err := d.logs.Complete(ctx, log.ID, models.ExecutionStatusSuccess, actionResult, nil); err != nil {
		d.logger.WithContext(ctx).WithError(err).Errorf("Failed to close execution log %s", log.ID)
	}
	d.recordOutcome(ctx, rule, true, result.Duration)

	return result
}

// runAction resolves and executes the rule's action, converting panics in
// action code into plain errors so one bad rule cannot take down the worker.
func (d *Dispatcher) runAction(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	action, err := d.registry.Get(rule.ActionType)
	if err != nil {
		return nil, err
	}

	return action.Execute(ctx, rule, data)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, rule *models.AutomationRule, success bool, duration time.Duration) {
	status := "failed"
	if success {
		status = "success"
	}
	metrics.RecordRuleExecution(rule.TenantID.String(), string(rule.ActionType), status, duration.Seconds())

	if err := d.rules.RecordExecution(ctx, rule.ID, success); err != nil {
		d.logger.WithContext(ctx).WithError(err).Errorf("Failed to update counters for rule %s", rule.ID)
	}
}
