package actions

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// SendEmailConfig is the typed configuration for the send_email action
type SendEmailConfig struct {
	// Template selects the email template; defaults to "welcome"
	Template string `json:"template" validate:"omitempty,min=1"`
	// Subject overrides the template's default subject
	Subject string `json:"subject" validate:"omitempty,min=1"`
	// Recipient overrides the trigger record's email address
	Recipient string `json:"recipient" validate:"omitempty,email"`
}

const defaultTemplate = "welcome"

// ParseSendEmailConfig parses and validates a rule's raw action config,
// applying defaults. Called both when rules are saved and when they run,
// so a rule that was valid at save time cannot fail config parsing later.
func ParseSendEmailConfig(raw map[string]any) (*SendEmailConfig, error) {
	cfg, err := utils.ValidateArguments[SendEmailConfig](raw)
	if err != nil {
		return nil, fmt.Errorf("invalid send_email config: %w", err)
	}

	if cfg.Template == "" {
		cfg.Template = defaultTemplate
	}

	return &cfg, nil
}

// ValidateConfig checks a rule's action config against its action type
func ValidateConfig(actionType models.ActionType, raw map[string]any) error {
	switch actionType {
	case models.ActionSendEmail:
		_, err := ParseSendEmailConfig(raw)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, actionType)
	}
}
