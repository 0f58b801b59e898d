package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// AutomationRuleRepo defines the interface for automation rule operations
type AutomationRuleRepo interface {
	Create(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error)
	List(ctx context.Context) ([]models.AutomationRule, error)
	ListActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]models.AutomationRule, error)
	Update(ctx context.Context, rule *models.AutomationRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	RecordExecution(ctx context.Context, ruleID uuid.UUID, success bool) error
	ResetCounters(ctx context.Context, ruleID uuid.UUID) error
}

// ExecutionLogRepo defines the interface for execution log operations
type ExecutionLogRepo interface {
	Begin(ctx context.Context, rule *models.AutomationRule, data *models.TriggerData) (*models.ExecutionLog, error)
	Complete(ctx context.Context, logID uuid.UUID, status models.ExecutionStatus, result map[string]any, errMessage *string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error)
	List(ctx context.Context, limit, offset int) ([]models.ExecutionLog, error)
	ListByRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]models.ExecutionLog, error)
}

// WebhookRepo defines the interface for webhook config operations
type WebhookRepo interface {
	Create(ctx context.Context, webhook *models.WebhookConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookConfig, error)
	GetInbound(ctx context.Context, id uuid.UUID) (*models.WebhookConfig, error)
	List(ctx context.Context) ([]models.WebhookConfig, error)
	ListActiveByEvent(ctx context.Context, eventType string) ([]models.WebhookConfig, error)
	Update(ctx context.Context, webhook *models.WebhookConfig) error
	RotateSecret(ctx context.Context, id uuid.UUID) (string, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateLastTriggered(ctx context.Context, id uuid.UUID) error
}

// WebhookDeliveryRepo defines the interface for delivery log operations
type WebhookDeliveryRepo interface {
	Append(ctx context.Context, delivery *models.WebhookDelivery) error
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]models.WebhookDelivery, error)
}
