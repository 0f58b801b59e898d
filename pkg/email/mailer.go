// Package email sends transactional email through an HTTP email API.
package email

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Message is a single transactional email
type Message struct {
	To       string            `json:"to"`
	From     string            `json:"from"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars,omitempty"`
}

// Mailer sends transactional email
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// Config holds email API configuration
type Config struct {
	APIURL      string
	APIToken    string
	FromAddress string
}

// APIMailer sends email through an HTTP transactional email API
type APIMailer struct {
	cfg    Config
	client *httpclient.Client
	logger ectologger.Logger
}

// NewAPIMailer creates a mailer backed by the configured email API
func NewAPIMailer(cfg Config, client *httpclient.Client, logger ectologger.Logger) *APIMailer {
	return &APIMailer{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Send posts the message to the email API
func (m *APIMailer) Send(ctx context.Context, msg *Message) error {
	ctx, span := tracing.StartSpan(ctx, "Email.Send")
	defer span.End()

	if msg.To == "" {
		return fmt.Errorf("email message has no recipient")
	}
	if msg.From == "" {
		msg.From = m.cfg.FromAddress
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + m.cfg.APIToken,
	}

	resp, err := m.client.Post(ctx, m.cfg.APIURL+"/v1/send", body, headers)
	if err != nil {
		return fmt.Errorf("email API request failed: %w", err)
	}

	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		m.logger.WithContext(ctx).Errorf("Email API returned %d for template %s", resp.StatusCode, msg.Template)
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	m.logger.WithContext(ctx).Infof("Sent %s email to %s", msg.Template, msg.To)
	return nil
}
