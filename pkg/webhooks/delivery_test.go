package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/signature"
)

type fakeWebhookRepo struct {
	configs       []models.WebhookConfig
	lastTriggered []uuid.UUID
	mu            sync.Mutex
}

func (f *fakeWebhookRepo) Create(ctx context.Context, webhook *models.WebhookConfig) error {
	return nil
}
func (f *fakeWebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookConfig, error) {
	return nil, nil
}
func (f *fakeWebhookRepo) GetInbound(ctx context.Context, id uuid.UUID) (*models.WebhookConfig, error) {
	return nil, nil
}
func (f *fakeWebhookRepo) List(ctx context.Context) ([]models.WebhookConfig, error) {
	return nil, nil
}
func (f *fakeWebhookRepo) ListActiveByEvent(ctx context.Context, eventType string) ([]models.WebhookConfig, error) {
	matched := []models.WebhookConfig{}
	for _, cfg := range f.configs {
		if cfg.SubscribedTo(eventType) {
			matched = append(matched, cfg)
		}
	}
	return matched, nil
}
func (f *fakeWebhookRepo) Update(ctx context.Context, webhook *models.WebhookConfig) error {
	return nil
}
func (f *fakeWebhookRepo) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	return "", nil
}
func (f *fakeWebhookRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeWebhookRepo) UpdateLastTriggered(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTriggered = append(f.lastTriggered, id)
	return nil
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries []models.WebhookDelivery
}

func (f *fakeDeliveryRepo) Append(ctx context.Context, delivery *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, *delivery)
	return nil
}

func (f *fakeDeliveryRepo) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]models.WebhookDelivery, error) {
	return nil, nil
}

func (f *fakeDeliveryRepo) forWebhook(id uuid.UUID) []models.WebhookDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.WebhookDelivery{}
	for _, d := range f.deliveries {
		if d.WebhookID == id {
			out = append(out, d)
		}
	}
	return out
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testEngine(repo *fakeWebhookRepo, deliveries *fakeDeliveryRepo) *DeliveryEngine {
	client := httpclient.NewClient(httpclient.DefaultConfig(), testLogger())
	cfg := Config{AttemptTimeout: 500 * time.Millisecond, ResponseBodyLimit: 64}
	return NewDeliveryEngine(repo, deliveries, client, cfg, testLogger())
}

func testConfig(url, secret string, retryCount int) models.WebhookConfig {
	return models.WebhookConfig{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Name:         "test endpoint",
		Direction:    models.WebhookDirectionOutbound,
		TargetURL:    url,
		Secret:       secret,
		Events:       database.NewJSONB([]string{"lead.created"}),
		RetryCount:   retryCount,
		RetryDelayMs: 10,
		IsActive:     true,
	}
}

func tenantContext() context.Context {
	return appcontext.SetTenantID(context.Background(), uuid.New().String())
}

func TestDeliverSignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSig, gotEvent, gotTimestamp string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotTimestamp = r.Header.Get("X-Webhook-Timestamp")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "whsec_test", 3)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, results[0].Attempts)

	// The signature verifies against the exact bytes the endpoint received
	assert.True(t, signature.Verify(gotBody, "whsec_test", gotSig))
	assert.Equal(t, "lead.created", gotEvent)

	_, err = time.Parse(time.RFC3339, gotTimestamp)
	assert.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "lead.created", envelope.Event)
	assert.Equal(t, "lead-1", envelope.Data["id"])

	// Success stamps the config and logs one attempt
	assert.Equal(t, []uuid.UUID{cfg.ID}, repo.lastTriggered)
	attempts := deliveries.forWebhook(cfg.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.DeliveryStatusSuccess, attempts[0].Status)
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// RetryCount is the total attempt budget: 3 means exactly 3 attempts
	cfg := testConfig(server.URL, "s", 3)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 3, hits)
	assert.Empty(t, repo.lastTriggered)

	attempts := deliveries.forWebhook(cfg.ID)
	require.Len(t, attempts, 3)
	assert.Equal(t, models.DeliveryStatusRetrying, attempts[0].Status)
	assert.Equal(t, models.DeliveryStatusRetrying, attempts[1].Status)
	assert.Equal(t, models.DeliveryStatusFailed, attempts[2].Status)
}

func TestDeliverBackoffDoublesBetweenAttempts(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "s", 3)
	cfg.RetryDelayMs = 60
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	engine := testEngine(repo, &fakeDeliveryRepo{})

	_, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})
	require.NoError(t, err)

	require.Len(t, arrivals, 3)
	first := arrivals[1].Sub(arrivals[0])
	second := arrivals[2].Sub(arrivals[1])

	// Delays follow base * 2^(k-1): roughly 60ms then 120ms. Scheduling
	// jitter only ever adds time, so assert lower bounds and the doubling.
	assert.GreaterOrEqual(t, first, 55*time.Millisecond)
	assert.GreaterOrEqual(t, second, 110*time.Millisecond)
	assert.Greater(t, second, first)
}

func TestDeliverOmitsSignatureWithoutSecret(t *testing.T) {
	var mu sync.Mutex
	var sawSignature bool
	var gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_, sawSignature = r.Header[http.CanonicalHeaderKey("X-Webhook-Signature")]
		gotSig = r.Header.Get("X-Webhook-Signature")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "", 1)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	engine := testEngine(repo, &fakeDeliveryRepo{})

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.False(t, sawSignature)
	assert.Empty(t, gotSig)
}

func TestDeliverCustomHeadersCannotShadowProtocolHeaders(t *testing.T) {
	var mu sync.Mutex
	var gotEvent, gotCustom, gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotCustom = r.Header.Get("X-Team")
		gotSig = r.Header.Get("X-Webhook-Signature")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "whsec_test", 1)
	cfg.Headers = database.NewJSONB(map[string]string{
		"X-Team":              "growth",
		"X-Webhook-Event":     "spoofed.event",
		"X-Webhook-Signature": "sha256=forged",
	})
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	engine := testEngine(repo, &fakeDeliveryRepo{})

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "growth", gotCustom)
	assert.Equal(t, "lead.created", gotEvent)
	assert.NotEqual(t, "sha256=forged", gotSig)
}

func TestDeliverClientErrorIsTerminal(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "s", 5)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Equal(t, 1, hits)
	require.NotNil(t, results[0].StatusCode)
	assert.Equal(t, http.StatusNotFound, *results[0].StatusCode)
}

func TestDeliverRecoversAfterTransientFailure(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "s", 2)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 2, results[0].Attempts)
}

func TestDeliverTimesOutSlowEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "s", 0)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 1, results[0].Attempts)
	assert.NotEmpty(t, results[0].Error)
}

func TestDeliverFansOutToAllSubscribers(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[name]++
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}
	serverA := httptest.NewServer(handler("a"))
	defer serverA.Close()
	serverB := httptest.NewServer(handler("b"))
	defer serverB.Close()

	cfgA := testConfig(serverA.URL, "sa", 0)
	cfgB := testConfig(serverB.URL, "sb", 0)
	// Subscribed to a different event; must not be called
	cfgC := testConfig(serverA.URL, "sc", 0)
	cfgC.Events = database.NewJSONB([]string{"deal.stage_changed"})

	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfgA, cfgB, cfgC}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, hits["a"])
	assert.Equal(t, 1, hits["b"])
}

func TestDeliverNoSubscribers(t *testing.T) {
	repo := &fakeWebhookRepo{}
	engine := testEngine(repo, &fakeDeliveryRepo{})

	results, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeliverTruncatesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 100; i++ {
			w.Write([]byte("0123456789"))
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL, "s", 0)
	repo := &fakeWebhookRepo{configs: []models.WebhookConfig{cfg}}
	deliveries := &fakeDeliveryRepo{}
	engine := testEngine(repo, deliveries)

	_, err := engine.Deliver(tenantContext(), "lead.created", map[string]any{"id": "lead-1"})
	require.NoError(t, err)

	attempts := deliveries.forWebhook(cfg.ID)
	require.Len(t, attempts, 1)
	require.NotNil(t, attempts[0].ResponseBody)
	assert.Len(t, *attempts[0].ResponseBody, 64)
}
