package actions

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// templateSubjects maps known templates to their default subject line
var templateSubjects = map[string]string{
	"welcome":       "Welcome aboard!",
	"follow_up":     "Just checking in",
	"status_update": "An update on your account",
}

// ActivityPublisher appends activity records to a CRM record's timeline
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, msg *kafka.ActivityMessage) error
}

// SendEmailAction sends a templated email to the record that fired the
// trigger and appends an activity record to its timeline
type SendEmailAction struct {
	mailer     email.Mailer
	activities ActivityPublisher
	logger     ectologger.Logger
}

// NewSendEmailAction creates the send_email action
func NewSendEmailAction(mailer email.Mailer, activities ActivityPublisher, logger ectologger.Logger) *SendEmailAction {
	return &SendEmailAction{
		mailer:     mailer,
		activities: activities,
		logger:     logger,
	}
}

// Type returns the action type this action handles
func (a *SendEmailAction) Type() models.ActionType {
	return models.ActionSendEmail
}

// Execute sends the configured email for a matched rule
func (a *SendEmailAction) Execute(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "Action.SendEmail")
	defer span.End()

	cfg, err := ParseSendEmailConfig(rule.ActionConfig.GetValue())
	if err != nil {
		return nil, err
	}

	recipient := cfg.Recipient
	if recipient == "" {
		recipient = data.Email
	}
	if recipient == "" {
		return nil, fmt.Errorf("rule %s: no recipient email on trigger record %s", rule.ID, data.RecordID)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = templateSubjects[cfg.Template]
		if subject == "" {
			subject = templateSubjects[defaultTemplate]
		}
	}

	msg := &email.Message{
		To:       recipient,
		Subject:  subject,
		Template: cfg.Template,
		Vars: map[string]string{
			"record_name": data.RecordName,
			"record_id":   data.RecordID,
		},
	}

	if err := a.mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send_email failed: %w", err)
	}

	if a.activities != nil {
		activity := &kafka.ActivityMessage{
			TenantID:    rule.TenantID.String(),
			RecordID:    data.RecordID,
			Type:        "email_sent",
			Description: fmt.Sprintf("Automation %q sent %q email to %s", rule.Name, cfg.Template, recipient),
		}
		if err := a.activities.PublishActivity(ctx, activity); err != nil {
			// The email already went out; a missing activity entry is not
			// worth failing the rule over.
			a.logger.WithContext(ctx).WithError(err).Warnf("Failed to record email activity for %s", data.RecordID)
		}
	}

	return map[string]any{
		"template":  cfg.Template,
		"recipient": recipient,
		"subject":   subject,
	}, nil
}
