package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const deliveriesTable = "webhook_deliveries"

// WebhookDeliveryRepository handles database operations for delivery logs
type WebhookDeliveryRepository struct {
	*Repository
}

// NewWebhookDeliveryRepository creates a new delivery log repository
func NewWebhookDeliveryRepository(db database.DB, logger ectologger.Logger) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{
		Repository: NewRepository(db, logger),
	}
}

// Append records one delivery attempt. Rows are append-only.
func (r *WebhookDeliveryRepository) Append(ctx context.Context, delivery *models.WebhookDelivery) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookDeliveryRepository.Append")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	delivery.TenantID = tenantID

	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(deliveriesTable).
		Cols(
			"id", "tenant_id", "webhook_id", "event_type", "payload", "attempt",
			"status", "status_code", "response_body", "error_message", "duration_ms", "created_at",
		).
		Values(
			delivery.ID, delivery.TenantID, delivery.WebhookID, delivery.EventType, delivery.Payload, delivery.Attempt,
			delivery.Status, delivery.StatusCode, delivery.ResponseBody, delivery.ErrorMessage, delivery.DurationMs, delivery.CreatedAt,
		)

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": delivery.WebhookID,
		}).Error("failed to append delivery log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append delivery log")
	}

	return nil
}

// ListByWebhook returns delivery attempts for a webhook, newest first
func (r *WebhookDeliveryRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]models.WebhookDelivery, error) {
	ctx, span := tracing.StartSpan(ctx, "WebhookDeliveryRepository.ListByWebhook")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, webhook_id, event_type, payload, attempt,
		       status, status_code, response_body, error_message, duration_ms, created_at
		FROM webhook_deliveries
		WHERE tenant_id = $1 AND webhook_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	deliveries := []models.WebhookDelivery{}
	err = r.DB().SelectContext(ctx, &deliveries, query, tenantID, webhookID, limit, offset)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": webhookID,
		}).Error("failed to list delivery logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list delivery logs")
	}

	return deliveries, nil
}
