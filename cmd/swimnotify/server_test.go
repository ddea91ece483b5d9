package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"swimnotify/internal/database"
	"swimnotify/internal/gateway"
	"swimnotify/internal/models"
	"swimnotify/internal/service"
	"swimnotify/pkg/wablas"
	"swimnotify/pkg/whatsapp"
	"swimnotify/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHostedClient struct {
	mu   sync.Mutex
	sent []string
}

func (c *stubHostedClient) Configured() bool { return true }

func (c *stubHostedClient) SendMessage(ctx context.Context, phone, message string) (*wablas.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, phone)
	return &wablas.SendResult{MessageID: "wb-" + phone, Status: "pending"}, nil
}

func (c *stubHostedClient) SendDocument(ctx context.Context, phone string, doc wablas.Document) (*wablas.SendResult, error) {
	return &wablas.SendResult{MessageID: "doc-" + phone}, nil
}

func (c *stubHostedClient) CheckPhone(ctx context.Context, phone string) (bool, error) {
	return true, nil
}

func (c *stubHostedClient) recipients() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type recordingWebhook struct {
	mu     sync.Mutex
	events []types.WebhookEvent
	err    error
}

func (h *recordingWebhook) HandleWebhook(ctx context.Context, event *types.WebhookEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, *event)
	return h.err
}

type testEnv struct {
	server   *Server
	provider gateway.Provider
	client   *stubHostedClient
	db       *database.Database
	runner   *service.CronRunner
	logger   *logrus.Logger
	hook     *test.Hook
}

func newTestEnv(t *testing.T, webhook WebhookHandler) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	db, err := database.New(filepath.Join(t.TempDir(), "swimnotify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := &stubHostedClient{}
	provider := gateway.New(models.WhatsAppConfig{Provider: "wablas", SendDelayMs: 1}, gateway.Deps{
		Log:    db,
		Logger: logger,
		Hosted: client,
	})

	runner, err := service.NewCronRunner("Asia/Jakarta", logger)
	require.NoError(t, err)

	server := NewServer(ServerDeps{
		Provider:      provider,
		Stats:         db,
		Jobs:          runner,
		Webhook:       webhook,
		WebhookSecret: "shared-secret",
	}, logger)

	return &testEnv{server: server, provider: provider, client: client, db: db, runner: runner, logger: logger, hook: hook}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) logged(message string) bool {
	for _, entry := range e.hook.AllEntries() {
		if entry.Message == message {
			return true
		}
	}
	return false
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	body := decodeBody[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "wablas", body["provider"])
	assert.Equal(t, false, body["ready"])
}

func TestSend_NotReadyIs503(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/whatsapp/send", gateway.OutboundMessage{To: "081234567890", Body: "Halo"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "NOT_READY", body.Error.Code)
	assert.Contains(t, body.Error.Message, "not ready")
	assert.NotEmpty(t, body.RequestID)
	assert.Empty(t, env.client.recipients())
}

func TestInitializeThenSend(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/whatsapp/initialize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[gateway.Status](t, rec)
	assert.Equal(t, gateway.StateConnected, status.State)

	rec = env.do(t, http.MethodPost, "/api/whatsapp/send", gateway.OutboundMessage{To: "0821-400-4677", Body: "Halo Budi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[gateway.DeliveryResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, "6282140044677", result.Recipient)
	assert.Equal(t, "wb-6282140044677", result.TransportID)
	assert.NotEmpty(t, result.LogID)
	assert.Equal(t, []string{"6282140044677"}, env.client.recipients())

	entry, err := env.db.Get(context.Background(), result.LogID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusSent, entry.Status)
	assert.Equal(t, models.CategoryManual, entry.Category)
}

func TestSend_InvalidRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.provider.Initialize(context.Background()))

	rec := env.do(t, http.MethodPost, "/api/whatsapp/send", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/whatsapp/send", gateway.OutboundMessage{To: "081234567890"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody[errorBody](t, rec).Error.Code)

	rec = env.do(t, http.MethodPost, "/api/whatsapp/send", gateway.OutboundMessage{To: "12", Body: "Halo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendBulk(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.provider.Initialize(context.Background()))

	rec := env.do(t, http.MethodPost, "/api/whatsapp/send-bulk", bulkRequest{Messages: []gateway.OutboundMessage{
		{To: "081234567890", Body: "Latihan besok jam 06.00"},
		{To: "abc", Body: "Latihan besok jam 06.00"},
		{To: "+62 812 9999 0000", Body: "Latihan besok jam 06.00"},
	}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[bulkResponse](t, rec)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.NotEmpty(t, resp.Results[1].Error)
	assert.True(t, resp.Results[2].Success)
	assert.Equal(t, []string{"6281234567890", "6281299990000"}, env.client.recipients())
}

func TestSendBulk_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/whatsapp/send-bulk", bulkRequest{})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[],"sent":0,"failed":0}`, rec.Body.String())
	assert.Empty(t, env.client.sent)
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.provider.Initialize(context.Background()))

	rec := env.do(t, http.MethodPost, "/api/whatsapp/disconnect", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gateway.StateDisconnected, decodeBody[gateway.Status](t, rec).State)
	assert.False(t, env.provider.IsReady())
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.provider.Initialize(context.Background()))
	require.NoError(t, env.runner.Register("0 6 * * *", service.NewJob(service.JobDailyReminder,
		func(ctx context.Context) (service.RunSummary, error) { return service.RunSummary{}, nil }, env.logger)))

	rec := env.do(t, http.MethodPost, "/api/whatsapp/send", gateway.OutboundMessage{To: "081234567890", Body: "Halo"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/whatsapp/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, gateway.StateConnected, stats.Provider.State)
	assert.Equal(t, 1, stats.Provider.Stats.TotalSent)
	require.NotNil(t, stats.Messages)
	assert.Equal(t, 1, stats.Messages.Total)
	assert.Equal(t, 1, stats.Messages.ByStatus[models.DeliveryStatusSent])
	require.Len(t, stats.Jobs, 1)
	assert.Equal(t, service.JobDailyReminder, stats.Jobs[0].Name)
}

func TestRunJob(t *testing.T) {
	env := newTestEnv(t, nil)
	release := make(chan struct{})
	done := make(chan struct{})
	job := service.NewJob(service.JobPaymentReminder, func(ctx context.Context) (service.RunSummary, error) {
		<-release
		close(done)
		return service.RunSummary{}, nil
	}, env.logger)
	require.NoError(t, env.runner.Register("0 9 1 * *", job))

	rec := env.do(t, http.MethodPost, "/api/whatsapp/jobs/payment-reminder/run", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/whatsapp/jobs/payment-reminder/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/whatsapp/jobs/unknown/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	close(release)
	<-done
	require.Eventually(t, func() bool { return !job.Running() }, time.Second, time.Millisecond)
}

func TestWebhook_NotAvailableForHostedProvider(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/webhook/waha", `{"event":"session.status"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signedWebhook(t *testing.T, body, secret string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/waha", strings.NewReader(body))
	req.Header.Set(webhookSignatureHeader, sign(body, secret))
	req.Header.Set(webhookTimestampHeader, "1760000000")
	return req
}

func TestWebhook_DispatchesSignedEvent(t *testing.T) {
	hook := &recordingWebhook{}
	env := newTestEnv(t, hook)
	body := `{"event":"session.status","session":"default","payload":{"status":"WORKING"}}`

	rec := httptest.NewRecorder()
	env.server.router.ServeHTTP(rec, signedWebhook(t, body, "shared-secret"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, hook.events, 1)
	assert.Equal(t, "session.status", hook.events[0].Event)
	assert.Equal(t, "default", hook.events[0].Session)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	hook := &recordingWebhook{}
	env := newTestEnv(t, hook)
	body := `{"event":"session.status","session":"default"}`

	rec := httptest.NewRecorder()
	env.server.router.ServeHTTP(rec, signedWebhook(t, body, "wrong-secret"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, hook.events)
}

func TestWebhook_UnhandledEventIsAcknowledged(t *testing.T) {
	hook := &recordingWebhook{err: whatsapp.ErrNoHandler}
	env := newTestEnv(t, hook)
	body := `{"event":"presence.update","session":"default"}`

	rec := httptest.NewRecorder()
	env.server.router.ServeHTTP(rec, signedWebhook(t, body, "shared-secret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeBody[map[string]string](t, rec)["status"])
}

func TestWebhook_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, &recordingWebhook{})

	rec := httptest.NewRecorder()
	env.server.router.ServeHTTP(rec, signedWebhook(t, "{", "shared-secret"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/health", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	body := decodeBody[map[string]interface{}](t, rec)
	assert.Contains(t, body, "counters")

	rec = env.do(t, http.MethodGet, "/metrics?format=prometheus", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	out := rec.Body.String()
	assert.Contains(t, out, "# TYPE http_requests_total counter")
	assert.Contains(t, out, "# TYPE http_request_duration_milliseconds summary")
	assert.Contains(t, out, "go_goroutines")
	assert.Contains(t, out, "swimnotify_uptime_seconds")
}
