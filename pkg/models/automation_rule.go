package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// ActionType is the kind of side effect a rule performs when triggered.
type ActionType string

const (
	ActionSendEmail ActionType = "send_email"
)

// AutomationRule is a tenant-defined trigger/action pair. Definition fields
// are edited through the rule API; the counters and last_triggered_at are
// mutated only by the pipeline.
type AutomationRule struct {
	ID              uuid.UUID                      `db:"id" json:"id"`
	TenantID        uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	Name            string                         `db:"name" json:"name"`
	TriggerType     TriggerType                    `db:"trigger_type" json:"trigger_type"`
	ActionType      ActionType                     `db:"action_type" json:"action_type"`
	ActionConfig    database.JSONB[map[string]any] `db:"action_config" json:"action_config"`
	IsActive        bool                           `db:"is_active" json:"is_active"`
	Priority        int                            `db:"priority" json:"priority"`
	TriggerCount    int64                          `db:"trigger_count" json:"trigger_count"`
	SuccessCount    int64                          `db:"success_count" json:"success_count"`
	FailureCount    int64                          `db:"failure_count" json:"failure_count"`
	LastTriggeredAt *time.Time                     `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                      `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (AutomationRule) TableName() string {
	return "automation_rules"
}
