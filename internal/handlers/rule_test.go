package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeRuleStore struct {
	rules map[uuid.UUID]*models.AutomationRule
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: map[uuid.UUID]*models.AutomationRule{}}
}

func (f *fakeRuleStore) Create(ctx context.Context, rule *models.AutomationRule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error) {
	if r, ok := f.rules[id]; ok {
		return r, nil
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "rule %s does not exist", id)
}

func (f *fakeRuleStore) List(ctx context.Context) ([]models.AutomationRule, error) {
	out := make([]models.AutomationRule, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRuleStore) ListActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]models.AutomationRule, error) {
	return nil, nil
}

func (f *fakeRuleStore) Update(ctx context.Context, rule *models.AutomationRule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.rules, id)
	return nil
}

func (f *fakeRuleStore) RecordExecution(ctx context.Context, ruleID uuid.UUID, success bool) error {
	return nil
}

func (f *fakeRuleStore) ResetCounters(ctx context.Context, ruleID uuid.UUID) error {
	if r, ok := f.rules[ruleID]; ok {
		r.TriggerCount, r.SuccessCount, r.FailureCount = 0, 0, 0
	}
	return nil
}

type fakeLogStore struct{}

func (f *fakeLogStore) Begin(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (*models.ExecutionLog, error) {
	return &models.ExecutionLog{ID: uuid.New()}, nil
}

func (f *fakeLogStore) Complete(ctx context.Context, logID uuid.UUID, status models.ExecutionStatus, result map[string]any, errMessage *string) error {
	return nil
}

func (f *fakeLogStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	return nil, httperror.NewHTTPError(http.StatusNotFound, "not found")
}

func (f *fakeLogStore) List(ctx context.Context, limit, offset int) ([]models.ExecutionLog, error) {
	return nil, nil
}

func (f *fakeLogStore) ListByRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]models.ExecutionLog, error) {
	return []models.ExecutionLog{}, nil
}

func newRuleTest(store *fakeRuleStore) *echo.Echo {
	h := NewRuleHandler(store, &fakeLogStore{})

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(nopLogger())
	e.Use(tenantMiddleware(uuid.New()))
	h.RegisterRoutes(e.Group("/api/v1"))
	return e
}

func tenantMiddleware(tenantID uuid.UUID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := appcontext.SetTenantID(c.Request().Context(), tenantID.String())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateRule(t *testing.T) {
	store := newFakeRuleStore()
	e := newRuleTest(store)

	rec := doJSON(e, http.MethodPost, "/api/v1/rules", `{
		"name": "Welcome email",
		"trigger_type": "lead_created",
		"action_type": "send_email",
		"action_config": {"template": "welcome"},
		"priority": 10
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var rule models.AutomationRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.NotEqual(t, uuid.Nil, rule.ID)
	assert.Equal(t, models.TriggerLeadCreated, rule.TriggerType)
	assert.True(t, rule.IsActive)
	assert.Len(t, store.rules, 1)
}

func TestCreateRuleRejectsUnknownTrigger(t *testing.T) {
	e := newRuleTest(newFakeRuleStore())

	rec := doJSON(e, http.MethodPost, "/api/v1/rules", `{
		"name": "x",
		"trigger_type": "lead_abducted",
		"action_type": "send_email"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRuleRejectsUnknownActionType(t *testing.T) {
	e := newRuleTest(newFakeRuleStore())

	rec := doJSON(e, http.MethodPost, "/api/v1/rules", `{
		"name": "x",
		"trigger_type": "lead_created",
		"action_type": "launch_rocket"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRuleRejectsBadActionConfig(t *testing.T) {
	e := newRuleTest(newFakeRuleStore())

	rec := doJSON(e, http.MethodPost, "/api/v1/rules", `{
		"name": "x",
		"trigger_type": "lead_created",
		"action_type": "send_email",
		"action_config": {"recipient": "not-an-email"}
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuleEnableDisable(t *testing.T) {
	store := newFakeRuleStore()
	e := newRuleTest(store)

	rec := doJSON(e, http.MethodPost, "/api/v1/rules", `{
		"name": "toggle me",
		"trigger_type": "lead_created",
		"action_type": "send_email"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rule models.AutomationRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))

	rec = doJSON(e, http.MethodPost, "/api/v1/rules/"+rule.ID.String()+"/disable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.rules[rule.ID].IsActive)

	rec = doJSON(e, http.MethodPost, "/api/v1/rules/"+rule.ID.String()+"/enable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.rules[rule.ID].IsActive)
}

func TestGetMissingRuleReturns404(t *testing.T) {
	e := newRuleTest(newFakeRuleStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
