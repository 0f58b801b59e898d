package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// WebhookDirection distinguishes endpoints we call from endpoints that call us.
type WebhookDirection string

const (
	WebhookDirectionInbound  WebhookDirection = "inbound"
	WebhookDirectionOutbound WebhookDirection = "outbound"
)

// WebhookConfig is a tenant-owned webhook endpoint. For outbound configs the
// secret signs every delivery; for inbound configs it verifies the caller.
// The secret is generated server-side and returned exactly once on create.
type WebhookConfig struct {
	ID              uuid.UUID                         `db:"id" json:"id"`
	TenantID        uuid.UUID                         `db:"tenant_id" json:"tenant_id"`
	Name            string                            `db:"name" json:"name"`
	Direction       WebhookDirection                  `db:"direction" json:"direction"`
	TargetURL       string                            `db:"target_url" json:"target_url,omitempty"`
	Secret          string                            `db:"secret" json:"-"`
	Events          database.JSONB[[]string]          `db:"events" json:"events"`
	Headers         database.JSONB[map[string]string] `db:"headers" json:"headers,omitempty"`
	RetryCount      int                               `db:"retry_count" json:"retry_count"`
	RetryDelayMs    int                               `db:"retry_delay_ms" json:"retry_delay_ms"`
	AllowedIPs      database.JSONB[[]string]          `db:"allowed_ips" json:"allowed_ips,omitempty"`
	IsActive        bool                              `db:"is_active" json:"is_active"`
	LastTriggeredAt *time.Time                        `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                         `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (WebhookConfig) TableName() string {
	return "webhook_configs"
}

// SubscribedTo reports whether the config's event list contains eventType.
func (w *WebhookConfig) SubscribedTo(eventType string) bool {
	for _, e := range w.Events.GetValue() {
		if e == eventType {
			return true
		}
	}
	return false
}

// AllowsIP reports whether remoteIP passes the config's allowlist. An empty
// allowlist admits everything.
func (w *WebhookConfig) AllowsIP(remoteIP string) bool {
	ips := w.AllowedIPs.GetValue()
	if len(ips) == 0 {
		return true
	}
	for _, ip := range ips {
		if ip == remoteIP {
			return true
		}
	}
	return false
}
