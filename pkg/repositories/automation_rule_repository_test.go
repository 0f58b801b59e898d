package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func getTestContext(tenantID uuid.UUID) context.Context {
	return appcontext.SetTenantID(context.Background(), tenantID.String())
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err), "expected 404, got: %d", httperror.GetStatusCode(err))
}

func TestAutomationRuleRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewAutomationRuleRepository(db, logger)

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)

	rule := &models.AutomationRule{
		Name:        "Welcome email",
		TriggerType: models.TriggerLeadCreated,
		ActionType:  models.ActionSendEmail,
		ActionConfig: database.NewJSONB(map[string]any{
			"template": "welcome",
		}),
		IsActive: true,
		Priority: 10,
	}

	err := repo.Create(ctx, rule)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rule.ID)
	assert.Equal(t, tenantID, rule.TenantID)
	assert.False(t, rule.CreatedAt.IsZero())

	fetched, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, fetched.Name)
	assert.Equal(t, models.TriggerLeadCreated, fetched.TriggerType)
	assert.Equal(t, "welcome", fetched.ActionConfig.GetValue()["template"])

	active, err := repo.ListActiveByTrigger(ctx, models.TriggerLeadCreated)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, rule.ID, active[0].ID)

	rule.Name = "Welcome email v2"
	rule.Priority = 5
	err = repo.Update(ctx, rule)
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome email v2", updated.Name)
	assert.Equal(t, 5, updated.Priority)

	// Counters move only through RecordExecution
	require.NoError(t, repo.RecordExecution(ctx, rule.ID, true))
	require.NoError(t, repo.RecordExecution(ctx, rule.ID, false))

	counted, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counted.TriggerCount)
	assert.Equal(t, int64(1), counted.SuccessCount)
	assert.Equal(t, int64(1), counted.FailureCount)
	assert.NotNil(t, counted.LastTriggeredAt)

	require.NoError(t, repo.ResetCounters(ctx, rule.ID))
	reset, err := repo.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reset.TriggerCount)

	// Tenant isolation: another tenant can't see the rule
	otherCtx := getTestContext(uuid.New())
	_, err = repo.GetByID(otherCtx, rule.ID)
	assertNotFound(t, err)

	err = repo.Delete(ctx, rule.ID)
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, rule.ID)
	assertNotFound(t, err)
}

func TestExecutionLogRepository_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	rules := repositories.NewAutomationRuleRepository(db, logger)
	logs := repositories.NewExecutionLogRepository(db, logger)

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)

	rule := &models.AutomationRule{
		Name:        "Follow up",
		TriggerType: models.TriggerContactCreated,
		ActionType:  models.ActionSendEmail,
		IsActive:    true,
	}
	require.NoError(t, rules.Create(ctx, rule))

	data := &models.TriggerData{RecordID: "contact-1", Email: "jo@example.com"}
	log, err := logs.Begin(ctx, rule, data)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, log.Status)

	err = logs.Complete(ctx, log.ID, models.ExecutionStatusSuccess, map[string]any{"template": "welcome"}, nil)
	require.NoError(t, err)

	completed, err := logs.GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Equal(t, "contact-1", completed.TriggerData.GetValue().RecordID)

	// A closed row stays closed
	errMsg := "late failure"
	err = logs.Complete(ctx, log.ID, models.ExecutionStatusFailed, nil, &errMsg)
	require.NoError(t, err)

	still, err := logs.GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, still.Status)

	byRule, err := logs.ListByRule(ctx, rule.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, byRule, 1)

	require.NoError(t, rules.Delete(ctx, rule.ID))
}
