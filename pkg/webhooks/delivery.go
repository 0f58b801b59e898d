// Package webhooks fans out pipeline events to subscribed outbound
// webhook endpoints, with signing, retries and a per-attempt audit trail.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/signature"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Envelope is the payload delivered to every subscribed endpoint. It is
// serialized once per event so all endpoints see identical bytes.
type Envelope struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Config holds delivery engine tuning
type Config struct {
	// AttemptTimeout bounds each individual HTTP attempt
	AttemptTimeout time.Duration
	// ResponseBodyLimit caps the response body stored in the audit log
	ResponseBodyLimit int
}

// DeliveryEngine delivers one event to every matching webhook config
type DeliveryEngine struct {
	webhooks   repositories.WebhookRepo
	deliveries repositories.WebhookDeliveryRepo
	client     *httpclient.Client
	cfg        Config
	logger     ectologger.Logger
}

// NewDeliveryEngine creates a delivery engine
func NewDeliveryEngine(webhooks repositories.WebhookRepo, deliveries repositories.WebhookDeliveryRepo, client *httpclient.Client, cfg Config, logger ectologger.Logger) *DeliveryEngine {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.ResponseBodyLimit <= 0 {
		cfg.ResponseBodyLimit = 1024
	}
	return &DeliveryEngine{
		webhooks:   webhooks,
		deliveries: deliveries,
		client:     client,
		cfg:        cfg,
		logger:     logger,
	}
}

// Deliver sends eventType with data to every active outbound config
// subscribed to it. Configs are delivered to in parallel; the call returns
// when every config has finished its attempt sequence.
func (e *DeliveryEngine) Deliver(ctx context.Context, eventType string, data map[string]any) ([]models.DeliveryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "DeliveryEngine.Deliver")
	defer span.End()

	span.SetAttributes(attribute.String("event_type", eventType))

	configs, err := e.webhooks.ListActiveByEvent(ctx, eventType)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return []models.DeliveryResult{}, nil
	}

	envelope := Envelope{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook envelope: %w", err)
	}

	results := make([]models.DeliveryResult, len(configs))
	var wg sync.WaitGroup
	for i := range configs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = e.deliverToConfig(ctx, &configs[idx], eventType, envelope.Timestamp, body, data)
		}(i)
	}
	wg.Wait()

	e.logger.WithContext(ctx).Infof("Delivered %s to %d webhooks", eventType, len(configs))
	return results, nil
}

// deliverToConfig runs the attempt sequence for a single config. A 2xx
// ends it successfully, a 4xx ends it immediately, 5xx and transport
// errors retry with exponential backoff up to the config's retry budget.
func (e *DeliveryEngine) deliverToConfig(ctx context.Context, cfg *models.WebhookConfig, eventType string, sentAt time.Time, body []byte, data map[string]any) models.DeliveryResult {
	ctx, span := tracing.StartSpan(ctx, "DeliveryEngine.DeliverToConfig")
	defer span.End()

	span.SetAttributes(attribute.String("webhook_id", cfg.ID.String()))

	start := time.Now()
	result := models.DeliveryResult{WebhookID: cfg.ID}

	// RetryCount is the total attempt budget, not the number of retries
	// after the first attempt.
	maxAttempts := cfg.RetryCount
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// Custom headers go in first so they can never shadow the protocol
	// headers, and a config without a secret sends no signature at all.
	headers := map[string]string{}
	for k, v := range cfg.Headers.GetValue() {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers["X-Webhook-Event"] = eventType
	headers["X-Webhook-ID"] = cfg.ID.String()
	headers["X-Webhook-Timestamp"] = sentAt.Format(time.RFC3339)
	if cfg.Secret != "" {
		headers["X-Webhook-Signature"] = signature.Sign(body, cfg.Secret)
	}

	var lastErr string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		resp, err := e.attempt(ctx, cfg, body, headers)
		if err != nil && resp != nil && httpclient.IsSuccessStatus(resp.StatusCode) {
			// The endpoint accepted the event; an unreadable response body
			// does not undo the delivery.
			err = nil
		}

		switch {
		case err != nil:
			lastErr = err.Error()
			status := models.DeliveryStatusRetrying
			if attempt == maxAttempts {
				status = models.DeliveryStatusFailed
			}
			e.logAttempt(ctx, cfg, eventType, data, attempt, status, nil, nil, &lastErr, resp)
			metrics.RecordDeliveryAttempt(cfg.TenantID.String(), eventType, string(status), attemptSeconds(resp))

		case httpclient.IsSuccessStatus(resp.StatusCode):
			respBody := e.truncate(resp.Body)
			e.logAttempt(ctx, cfg, eventType, data, attempt, models.DeliveryStatusSuccess, &resp.StatusCode, &respBody, nil, resp)
			metrics.RecordDeliveryAttempt(cfg.TenantID.String(), eventType, "success", attemptSeconds(resp))

			if err := e.webhooks.UpdateLastTriggered(ctx, cfg.ID); err != nil {
				e.logger.WithContext(ctx).WithError(err).Warnf("Failed to stamp last_triggered_at for webhook %s", cfg.ID)
			}

			result.Success = true
			result.StatusCode = &resp.StatusCode
			result.Duration = time.Since(start)
			return result

		case httpclient.IsRetryableStatus(resp.StatusCode):
			lastErr = fmt.Sprintf("endpoint returned %d", resp.StatusCode)
			respBody := e.truncate(resp.Body)
			status := models.DeliveryStatusRetrying
			if attempt == maxAttempts {
				status = models.DeliveryStatusFailed
			}
			e.logAttempt(ctx, cfg, eventType, data, attempt, status, &resp.StatusCode, &respBody, &lastErr, resp)
			metrics.RecordDeliveryAttempt(cfg.TenantID.String(), eventType, string(status), attemptSeconds(resp))
			result.StatusCode = &resp.StatusCode

		default:
			// 4xx is the endpoint telling us the request itself is bad;
			// retrying the same bytes cannot change the answer.
			lastErr = fmt.Sprintf("endpoint returned %d", resp.StatusCode)
			respBody := e.truncate(resp.Body)
			e.logAttempt(ctx, cfg, eventType, data, attempt, models.DeliveryStatusFailed, &resp.StatusCode, &respBody, &lastErr, resp)
			metrics.RecordDeliveryAttempt(cfg.TenantID.String(), eventType, "failed", attemptSeconds(resp))

			result.StatusCode = &resp.StatusCode
			result.Error = lastErr
			result.Duration = time.Since(start)
			return result
		}

		if attempt < maxAttempts {
			delay := e.backoff(cfg, attempt)
			select {
			case <-ctx.Done():
				result.Error = ctx.Err().Error()
				result.Duration = time.Since(start)
				return result
			case <-time.After(delay):
			}
		}
	}

	result.Error = lastErr
	result.Duration = time.Since(start)
	e.logger.WithContext(ctx).Warnf("Webhook %s exhausted %d attempts for %s: %s", cfg.ID, maxAttempts, eventType, lastErr)
	return result
}

// attempt performs one HTTP POST bounded by the per-attempt timeout
func (e *DeliveryEngine) attempt(ctx context.Context, cfg *models.WebhookConfig, body []byte, headers map[string]string) (*httpclient.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	return e.client.Post(attemptCtx, cfg.TargetURL, body, headers)
}

// backoff returns the delay before the next attempt, doubling each retry
func (e *DeliveryEngine) backoff(cfg *models.WebhookConfig, attempt int) time.Duration {
	base := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	return base * (1 << (attempt - 1))
}

func (e *DeliveryEngine) truncate(body []byte) string {
	if len(body) > e.cfg.ResponseBodyLimit {
		body = body[:e.cfg.ResponseBodyLimit]
	}
	return string(body)
}

// logAttempt appends one audit row. Logging is best-effort: a failed
// insert never interrupts the delivery sequence.
func (e *DeliveryEngine) logAttempt(ctx context.Context, cfg *models.WebhookConfig, eventType string, data map[string]any, attempt int, status models.DeliveryStatus, statusCode *int, responseBody *string, errMsg *string, resp *httpclient.Response) {
	delivery := &models.WebhookDelivery{
		WebhookID:    cfg.ID,
		EventType:    eventType,
		Payload:      database.NewJSONB(data),
		Attempt:      attempt,
		Status:       status,
		StatusCode:   statusCode,
		ResponseBody: responseBody,
		ErrorMessage: errMsg,
	}
	if resp != nil {
		delivery.DurationMs = resp.Duration.Milliseconds()
	}

	if err := e.deliveries.Append(ctx, delivery); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warnf("Failed to log delivery attempt %d for webhook %s", attempt, cfg.ID)
	}
}

func attemptSeconds(resp *httpclient.Response) float64 {
	if resp == nil {
		return 0
	}
	return resp.Duration.Seconds()
}
