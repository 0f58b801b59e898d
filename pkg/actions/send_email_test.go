package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeMailer struct {
	sent []*email.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg *email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeActivityPublisher struct {
	published []*kafka.ActivityMessage
	err       error
}

func (f *fakeActivityPublisher) PublishActivity(ctx context.Context, msg *kafka.ActivityMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testRule(config map[string]any) *models.AutomationRule {
	return &models.AutomationRule{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Name:         "Welcome new leads",
		TriggerType:  models.TriggerLeadCreated,
		ActionType:   models.ActionSendEmail,
		ActionConfig: database.NewJSONB(config),
		IsActive:     true,
	}
}

func TestSendEmailUsesRecordEmail(t *testing.T) {
	mailer := &fakeMailer{}
	activities := &fakeActivityPublisher{}
	action := NewSendEmailAction(mailer, activities, testLogger())

	rule := testRule(map[string]any{"template": "welcome"})
	data := &models.TriggerData{RecordID: "lead-1", RecordName: "Ada", Email: "ada@example.com"}

	result, err := action.Execute(context.Background(), rule, data)

	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ada@example.com", mailer.sent[0].To)
	assert.Equal(t, "welcome", mailer.sent[0].Template)
	assert.Equal(t, "Welcome aboard!", mailer.sent[0].Subject)
	assert.Equal(t, "ada@example.com", result["recipient"])

	require.Len(t, activities.published, 1)
	assert.Equal(t, "email_sent", activities.published[0].Type)
	assert.Equal(t, "lead-1", activities.published[0].RecordID)
}

func TestSendEmailDefaultsTemplate(t *testing.T) {
	mailer := &fakeMailer{}
	action := NewSendEmailAction(mailer, &fakeActivityPublisher{}, testLogger())

	rule := testRule(map[string]any{})
	data := &models.TriggerData{RecordID: "lead-1", Email: "ada@example.com"}

	result, err := action.Execute(context.Background(), rule, data)

	require.NoError(t, err)
	assert.Equal(t, "welcome", result["template"])
}

func TestSendEmailConfigOverrides(t *testing.T) {
	mailer := &fakeMailer{}
	action := NewSendEmailAction(mailer, &fakeActivityPublisher{}, testLogger())

	rule := testRule(map[string]any{
		"template":  "follow_up",
		"subject":   "Custom subject",
		"recipient": "sales@example.com",
	})
	data := &models.TriggerData{RecordID: "lead-1", Email: "ada@example.com"}

	_, err := action.Execute(context.Background(), rule, data)

	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "sales@example.com", mailer.sent[0].To)
	assert.Equal(t, "Custom subject", mailer.sent[0].Subject)
	assert.Equal(t, "follow_up", mailer.sent[0].Template)
}

func TestSendEmailFailsWithoutRecipient(t *testing.T) {
	mailer := &fakeMailer{}
	action := NewSendEmailAction(mailer, &fakeActivityPublisher{}, testLogger())

	rule := testRule(map[string]any{})
	data := &models.TriggerData{RecordID: "lead-1"}

	_, err := action.Execute(context.Background(), rule, data)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipient email")
	assert.Empty(t, mailer.sent)
}

func TestSendEmailPropagatesMailerError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("api down")}
	activities := &fakeActivityPublisher{}
	action := NewSendEmailAction(mailer, activities, testLogger())

	rule := testRule(map[string]any{})
	data := &models.TriggerData{RecordID: "lead-1", Email: "ada@example.com"}

	_, err := action.Execute(context.Background(), rule, data)

	require.Error(t, err)
	assert.Empty(t, activities.published)
}

func TestSendEmailActivityFailureIsNotFatal(t *testing.T) {
	mailer := &fakeMailer{}
	activities := &fakeActivityPublisher{err: errors.New("kafka down")}
	action := NewSendEmailAction(mailer, activities, testLogger())

	rule := testRule(map[string]any{})
	data := &models.TriggerData{RecordID: "lead-1", Email: "ada@example.com"}

	_, err := action.Execute(context.Background(), rule, data)

	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
}

func TestValidateConfigRejectsBadRecipient(t *testing.T) {
	err := ValidateConfig(models.ActionSendEmail, map[string]any{"recipient": "not-an-email"})
	assert.Error(t, err)
}

func TestValidateConfigRejectsUnknownAction(t *testing.T) {
	err := ValidateConfig(models.ActionType("launch_rocket"), map[string]any{})
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}
