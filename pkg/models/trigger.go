package models

import "strings"

// TriggerType is the category of domain event that can activate automation rules.
type TriggerType string

const (
	TriggerLeadCreated       TriggerType = "lead_created"
	TriggerLeadStatusChanged TriggerType = "lead_status_changed"
	TriggerContactCreated    TriggerType = "contact_created"
	TriggerEmailCaptured     TriggerType = "email_captured"
	TriggerDealStageChanged  TriggerType = "deal_stage_changed"
)

// Valid reports whether the trigger type is one the pipeline knows about.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerLeadCreated, TriggerLeadStatusChanged, TriggerContactCreated,
		TriggerEmailCaptured, TriggerDealStageChanged:
		return true
	}
	return false
}

// Event returns the dotted event name used on the webhook wire
// (lead_created -> lead.created).
func (t TriggerType) Event() string {
	return strings.Replace(string(t), "_", ".", 1)
}

// TriggerData carries the record fields action handlers need. It is not
// persisted as its own entity; the dispatcher embeds a snapshot of it into
// each execution log row.
type TriggerData struct {
	RecordID   string         `json:"record_id"`
	RecordName string         `json:"record_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}
