package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// ExecutionStatus represents the status of a rule execution
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ExecutionLog is one row per rule invocation. It is opened as `running`
// before the action executes and closed exactly once; closed rows are
// immutable.
type ExecutionLog struct {
	ID           uuid.UUID                      `db:"id" json:"id"`
	TenantID     uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	RuleID       uuid.UUID                      `db:"rule_id" json:"rule_id"`
	RecordID     string                         `db:"record_id" json:"record_id"`
	Status       ExecutionStatus                `db:"status" json:"status"`
	TriggerData  database.JSONB[TriggerData]    `db:"trigger_data" json:"trigger_data"`
	ActionResult database.JSONB[map[string]any] `db:"action_result" json:"action_result,omitempty"`
	ErrorMessage *string                        `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time                      `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time                     `db:"completed_at" json:"completed_at,omitempty"`
}

// TableName returns the database table name
func (ExecutionLog) TableName() string {
	return "automation_execution_logs"
}

// ExecutionResult summarizes one rule execution within a dispatch.
type ExecutionResult struct {
	RuleID   uuid.UUID       `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	LogID    uuid.UUID       `json:"log_id"`
	Status   ExecutionStatus `json:"status"`
	Result   map[string]any  `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration_ms"`
}
