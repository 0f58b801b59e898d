package triggers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeRuleRepo struct {
	rules    []models.AutomationRule
	listErr  error
	recorded []recordedExecution
}

type recordedExecution struct {
	ruleID  uuid.UUID
	success bool
}

func (f *fakeRuleRepo) Create(ctx context.Context, rule *models.AutomationRule) error { return nil }
func (f *fakeRuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error) {
	return nil, nil
}
func (f *fakeRuleRepo) List(ctx context.Context) ([]models.AutomationRule, error) { return nil, nil }
func (f *fakeRuleRepo) ListActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]models.AutomationRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rules, nil
}
func (f *fakeRuleRepo) Update(ctx context.Context, rule *models.AutomationRule) error { return nil }
func (f *fakeRuleRepo) Delete(ctx context.Context, id uuid.UUID) error                { return nil }
func (f *fakeRuleRepo) RecordExecution(ctx context.Context, ruleID uuid.UUID, success bool) error {
	f.recorded = append(f.recorded, recordedExecution{ruleID: ruleID, success: success})
	return nil
}
func (f *fakeRuleRepo) ResetCounters(ctx context.Context, ruleID uuid.UUID) error { return nil }

type completedLog struct {
	logID  uuid.UUID
	status models.ExecutionStatus
	errMsg *string
}

type fakeLogRepo struct {
	beginErr  error
	began     []uuid.UUID
	completed []completedLog
}

func (f *fakeLogRepo) Begin(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (*models.ExecutionLog, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	log := &models.ExecutionLog{
		ID:     uuid.New(),
		RuleID: rule.ID,
		Status: models.ExecutionStatusRunning,
	}
	f.began = append(f.began, log.ID)
	return log, nil
}

func (f *fakeLogRepo) Complete(ctx context.Context, logID uuid.UUID, status models.ExecutionStatus, result map[string]any, errMessage *string) error {
	f.completed = append(f.completed, completedLog{logID: logID, status: status, errMsg: errMessage})
	return nil
}

func (f *fakeLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	return nil, nil
}
func (f *fakeLogRepo) List(ctx context.Context, limit, offset int) ([]models.ExecutionLog, error) {
	return nil, nil
}
func (f *fakeLogRepo) ListByRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]models.ExecutionLog, error) {
	return nil, nil
}

type scriptedAction struct {
	actionType models.ActionType
	executed   []uuid.UUID
	fail       map[uuid.UUID]error
	panicOn    map[uuid.UUID]bool
	delay      time.Duration
}

func (s *scriptedAction) Type() models.ActionType { return s.actionType }

func (s *scriptedAction) Execute(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (map[string]any, error) {
	if s.panicOn[rule.ID] {
		panic("boom")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.executed = append(s.executed, rule.ID)
	if err := s.fail[rule.ID]; err != nil {
		return nil, err
	}
	return map[string]any{"rule": rule.Name}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func tenantContext() context.Context {
	return appcontext.SetTenantID(context.Background(), uuid.New().String())
}

func makeRule(name string, priority int) models.AutomationRule {
	return models.AutomationRule{
		ID:           uuid.New(),
		Name:         name,
		TriggerType:  models.TriggerLeadCreated,
		ActionType:   models.ActionSendEmail,
		ActionConfig: database.NewJSONB(map[string]any{}),
		IsActive:     true,
		Priority:     priority,
	}
}

func newTestDispatcher(rules *fakeRuleRepo, logs *fakeLogRepo, action actions.Action) *Dispatcher {
	registry := actions.NewRegistry()
	if action != nil {
		registry.Register(action)
	}
	return NewDispatcher(rules, logs, registry, testLogger())
}

func TestDispatchRunsMatchedRulesInOrder(t *testing.T) {
	first := makeRule("first", 1)
	second := makeRule("second", 2)
	rules := &fakeRuleRepo{rules: []models.AutomationRule{first, second}}
	logs := &fakeLogRepo{}
	action := &scriptedAction{actionType: models.ActionSendEmail, fail: map[uuid.UUID]error{}, panicOn: map[uuid.UUID]bool{}}

	d := newTestDispatcher(rules, logs, action)
	results, err := d.Dispatch(tenantContext(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, action.executed)
	assert.Equal(t, models.ExecutionStatusSuccess, results[0].Status)
	assert.Equal(t, models.ExecutionStatusSuccess, results[1].Status)

	// Every rule got a log row opened and closed
	assert.Len(t, logs.began, 2)
	assert.Len(t, logs.completed, 2)

	// Counters were bumped per rule
	require.Len(t, rules.recorded, 2)
	assert.True(t, rules.recorded[0].success)
	assert.True(t, rules.recorded[1].success)
}

func TestDispatchIsolatesFailingRule(t *testing.T) {
	first := makeRule("first", 1)
	second := makeRule("second", 2)
	rules := &fakeRuleRepo{rules: []models.AutomationRule{first, second}}
	logs := &fakeLogRepo{}
	action := &scriptedAction{
		actionType: models.ActionSendEmail,
		fail:       map[uuid.UUID]error{first.ID: errors.New("smtp timeout")},
		panicOn:    map[uuid.UUID]bool{},
	}

	d := newTestDispatcher(rules, logs, action)
	results, err := d.Dispatch(tenantContext(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.ExecutionStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "smtp timeout")
	assert.Equal(t, models.ExecutionStatusSuccess, results[1].Status)

	// The failed rule's log closed as failed with the error message
	require.Len(t, logs.completed, 2)
	assert.Equal(t, models.ExecutionStatusFailed, logs.completed[0].status)
	require.NotNil(t, logs.completed[0].errMsg)
	assert.Contains(t, *logs.completed[0].errMsg, "smtp timeout")

	require.Len(t, rules.recorded, 2)
	assert.False(t, rules.recorded[0].success)
	assert.True(t, rules.recorded[1].success)
}

func TestDispatchRecoversFromPanickingAction(t *testing.T) {
	first := makeRule("first", 1)
	second := makeRule("second", 2)
	rules := &fakeRuleRepo{rules: []models.AutomationRule{first, second}}
	logs := &fakeLogRepo{}
	action := &scriptedAction{
		actionType: models.ActionSendEmail,
		fail:       map[uuid.UUID]error{},
		panicOn:    map[uuid.UUID]bool{first.ID: true},
	}

	d := newTestDispatcher(rules, logs, action)
	results, err := d.Dispatch(tenantContext(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.ExecutionStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "panicked")
	assert.Equal(t, models.ExecutionStatusSuccess, results[1].Status)
}

func TestDispatchUnknownActionTypeFailsRule(t *testing.T) {
	rule := makeRule("odd one", 1)
	rules := &fakeRuleRepo{rules: []models.AutomationRule{rule}}
	logs := &fakeLogRepo{}

	// Registry is empty, so no action matches the rule
	d := newTestDispatcher(rules, logs, nil)
	results, err := d.Dispatch(tenantContext(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ExecutionStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "unsupported action type")
}

func TestDispatchNoMatchingRules(t *testing.T) {
	rules := &fakeRuleRepo{}
	logs := &fakeLogRepo{}
	d := newTestDispatcher(rules, logs, nil)

	results, err := d.Dispatch(tenantContext(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, logs.began)
}

func TestDispatchRejectsUnknownTriggerType(t *testing.T) {
	d := newTestDispatcher(&fakeRuleRepo{}, &fakeLogRepo{}, nil)

	_, err := d.Dispatch(tenantContext(), models.TriggerType("lead_abducted"), &models.TriggerData{RecordID: "lead-1"})

	assert.Error(t, err)
}

func TestDispatchSkipsActionWhenLogCannotOpen(t *testing.T) {
	rule := makeRule("audited", 1)
	rules := &fakeRuleRepo{rules: []models.AutomationRule{rule}}
	logs := &fakeLogRepo{beginErr: errors.New("db down")}
	action := &scriptedAction{actionType: models.ActionSendEmail, fail: map[uuid.UUID]error{}, panicOn: map[uuid.UUID]bool{}}

	d := newTestDispatcher(rules, logs, action)
	results, err := d.Dispatch(tenantContext(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ExecutionStatusFailed, results[0].Status)
	assert.Empty(t, action.executed)
}

func TestDispatchRequiresTenant(t *testing.T) {
	d := newTestDispatcher(&fakeRuleRepo{}, &fakeLogRepo{}, nil)

	_, err := d.Dispatch(context.Background(), models.TriggerLeadCreated, &models.TriggerData{RecordID: "lead-1"})

	assert.Error(t, err)
}
