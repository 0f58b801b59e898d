package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const webhooksTable = "webhook_configs"

// WebhookRepository handles database operations for webhook configs
type WebhookRepository struct {
	*Repository
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db database.DB, logger ectologger.Logger) *WebhookRepository {
	return &WebhookRepository{
		Repository: NewRepository(db, logger),
	}
}

// GenerateSecret produces a new webhook signing secret
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

// Create creates a new webhook config. The caller is responsible for
// surfacing the generated secret exactly once.
func (r *WebhookRepository) Create(ctx context.Context, webhook *models.WebhookConfig) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	webhook.TenantID = tenantID

	if webhook.ID == uuid.Nil {
		webhook.ID = uuid.New()
	}
	if webhook.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to generate webhook secret")
		}
		webhook.Secret = secret
	}

	now := time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto(webhooksTable).
		Cols(
			"id", "tenant_id", "name", "direction", "target_url", "secret",
			"events", "headers", "retry_count", "retry_delay_ms", "allowed_ips",
			"is_active", "created_at", "updated_at",
		).
		Values(
			webhook.ID, webhook.TenantID, webhook.Name, webhook.Direction, webhook.TargetURL, webhook.Secret,
			webhook.Events, webhook.Headers, webhook.RetryCount, webhook.RetryDelayMs, webhook.AllowedIPs,
			webhook.IsActive, now, now,
		).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&webhook.CreatedAt, &webhook.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": webhook.ID,
		}).Error("failed to create webhook config")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create webhook config")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"webhook_id": webhook.ID,
	}).Debugf("Created %s", webhooksTable)
	return nil
}

// GetByID retrieves a webhook config by ID (tenant-scoped)
func (r *WebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, direction, target_url, secret, events, headers,
		       retry_count, retry_delay_ms, allowed_ips, is_active,
		       last_triggered_at, created_at, updated_at
		FROM webhook_configs
		WHERE tenant_id = $1 AND id = $2
	`

	var webhook models.WebhookConfig
	err = r.DB().GetContext(ctx, &webhook, query, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "webhook %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": id,
		}).Error("failed to get webhook config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get webhook config")
	}

	return &webhook, nil
}

// GetInbound retrieves an active inbound webhook config by ID without tenant
// scoping. Inbound callers are external systems that authenticate with the
// webhook's own secret, not a tenant header.
func (r *WebhookRepository) GetInbound(ctx context.Context, id uuid.UUID) (*models.WebhookConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.GetInbound")
	defer span.End()

	query := `
		SELECT id, tenant_id, name, direction, target_url, secret, events, headers,
		       retry_count, retry_delay_ms, allowed_ips, is_active,
		       last_triggered_at, created_at, updated_at
		FROM webhook_configs
		WHERE id = $1 AND direction = 'inbound' AND is_active = true
	`

	var webhook models.WebhookConfig
	err := r.DB().GetContext(ctx, &webhook, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "webhook %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": id,
		}).Error("failed to get inbound webhook config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get webhook config")
	}

	return &webhook, nil
}

// List retrieves all webhook configs for the tenant
func (r *WebhookRepository) List(ctx context.Context) ([]models.WebhookConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, direction, target_url, secret, events, headers,
		       retry_count, retry_delay_ms, allowed_ips, is_active,
		       last_triggered_at, created_at, updated_at
		FROM webhook_configs
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`

	webhooks := []models.WebhookConfig{}
	err = r.DB().SelectContext(ctx, &webhooks, query, tenantID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list webhook configs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list webhook configs")
	}

	return webhooks, nil
}

// ListActiveByEvent returns the tenant's active outbound configs subscribed
// to eventType. Subscription matching happens in SQL against the stored
// events array.
func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, eventType string) ([]models.WebhookConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.ListActiveByEvent")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, direction, target_url, secret, events, headers,
		       retry_count, retry_delay_ms, allowed_ips, is_active,
		       last_triggered_at, created_at, updated_at
		FROM webhook_configs
		WHERE tenant_id = $1
		  AND direction = 'outbound'
		  AND is_active = true
		  AND events @> to_jsonb(ARRAY[$2::text])
	`

	webhooks := []models.WebhookConfig{}
	err = r.DB().SelectContext(ctx, &webhooks, query, tenantID, eventType)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
		}).Error("failed to list webhooks by event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list webhook configs")
	}

	return webhooks, nil
}

// Update updates a webhook config's definition fields. The secret is not
// touched here; use RotateSecret.
func (r *WebhookRepository) Update(ctx context.Context, webhook *models.WebhookConfig) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.Update")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(webhooksTable).
		Set(
			ub.Assign("name", webhook.Name),
			ub.Assign("target_url", webhook.TargetURL),
			ub.Assign("events", webhook.Events),
			ub.Assign("headers", webhook.Headers),
			ub.Assign("retry_count", webhook.RetryCount),
			ub.Assign("retry_delay_ms", webhook.RetryDelayMs),
			ub.Assign("allowed_ips", webhook.AllowedIPs),
			ub.Assign("is_active", webhook.IsActive),
			ub.Assign("updated_at", time.Now().UTC()),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", webhook.ID),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": webhook.ID,
		}).Error("failed to update webhook config")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update webhook config")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "webhook %s does not exist", webhook.ID)
	}

	return nil
}

// RotateSecret replaces a webhook's signing secret and returns the new value
func (r *WebhookRepository) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.RotateSecret")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return "", err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to generate webhook secret")
	}

	query := `
		UPDATE webhook_configs
		SET secret = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`

	result, err := r.DB().ExecContext(ctx, query, tenantID, id, secret)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": id,
		}).Error("failed to rotate webhook secret")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to rotate webhook secret")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return "", httperror.NewHTTPErrorf(http.StatusNotFound, "webhook %s does not exist", id)
	}

	return secret, nil
}

// Delete removes a webhook config and its delivery history (via cascade)
func (r *WebhookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.Delete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(webhooksTable).
		Where(
			db.Equal("tenant_id", tenantID),
			db.Equal("id", id),
		)

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": id,
		}).Error("failed to delete webhook config")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete webhook config")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "webhook %s does not exist", id)
	}

	return nil
}

// UpdateLastTriggered stamps the config after a successful delivery
func (r *WebhookRepository) UpdateLastTriggered(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "WebhookRepository.UpdateLastTriggered")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE webhook_configs SET last_triggered_at = NOW() WHERE tenant_id = $1 AND id = $2`

	_, err = r.DB().ExecContext(ctx, query, tenantID, id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"webhook_id": id,
		}).Error("failed to update last_triggered_at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update webhook config")
	}

	return nil
}
