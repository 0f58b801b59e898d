package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// DeliveryStatus represents the status of one delivery attempt
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// WebhookDelivery is one row per HTTP delivery attempt. Rows for the same
// event share a webhook/event pair and differ by attempt number; together
// they form the delivery's audit trail.
type WebhookDelivery struct {
	ID           uuid.UUID                      `db:"id" json:"id"`
	TenantID     uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	WebhookID    uuid.UUID                      `db:"webhook_id" json:"webhook_id"`
	EventType    string                         `db:"event_type" json:"event_type"`
	Payload      database.JSONB[map[string]any] `db:"payload" json:"payload"`
	Attempt      int                            `db:"attempt" json:"attempt"`
	Status       DeliveryStatus                 `db:"status" json:"status"`
	StatusCode   *int                           `db:"status_code" json:"status_code,omitempty"`
	ResponseBody *string                        `db:"response_body" json:"response_body,omitempty"`
	ErrorMessage *string                        `db:"error_message" json:"error_message,omitempty"`
	DurationMs   int64                          `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time                      `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

// DeliveryResult summarizes a whole attempt sequence for one webhook config,
// independent of the per-attempt audit rows.
type DeliveryResult struct {
	WebhookID  uuid.UUID     `json:"webhook_id"`
	Success    bool          `json:"success"`
	StatusCode *int          `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration_ms"`
}
