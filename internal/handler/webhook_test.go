package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadlink/conversions/internal/clicks"
	"github.com/leadlink/conversions/internal/domain"
	"github.com/leadlink/conversions/internal/eventlog"
	"github.com/leadlink/conversions/internal/leads"
	"github.com/leadlink/conversions/internal/logger"
	"github.com/leadlink/conversions/internal/provider"
	"github.com/leadlink/conversions/internal/reconcile"
	"github.com/leadlink/conversions/internal/scheduler"
	"github.com/leadlink/conversions/internal/store"
	"github.com/leadlink/conversions/internal/telemetry"
)

type stubResolver struct {
	resolveClickFunc func(ctx context.Context, clickID string) (*domain.ClickRecord, error)
	resolveLinkFunc  func(ctx context.Context, linkID string) (*domain.Link, error)
}

func (s *stubResolver) ResolveClick(ctx context.Context, clickID string) (*domain.ClickRecord, error) {
	return s.resolveClickFunc(ctx, clickID)
}

func (s *stubResolver) ResolveLink(ctx context.Context, linkID string) (*domain.Link, error) {
	return s.resolveLinkFunc(ctx, linkID)
}

type stubCreator struct {
	mu      sync.Mutex
	created []leads.CreateRequest
}

func (s *stubCreator) Create(_ context.Context, req leads.CreateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, req)
	return nil
}

func (s *stubCreator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type stubRecorder struct {
	mu      sync.Mutex
	records []eventlog.Record
}

func (s *stubRecorder) Record(rec eventlog.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *stubRecorder) byKind(kind eventlog.Kind) []eventlog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventlog.Record
	for _, rec := range s.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

type webhookFixture struct {
	router   *gin.Engine
	store    *store.MemoryStore
	creator  *stubCreator
	resolver *stubResolver
	registry *provider.Registry
	events   *stubRecorder
}

const testSecret = "whsec_test"

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &webhookFixture{
		store:    store.NewMemoryStore(),
		creator:  &stubCreator{},
		resolver: &stubResolver{},
		registry: provider.DefaultRegistry(),
		events:   &stubRecorder{},
	}

	engine := reconcile.New(reconcile.Config{
		Store:     f.store,
		Clicks:    f.resolver,
		Leads:     f.creator,
		Scheduler: scheduler.NewTimerScheduler(func(context.Context, []byte) {}),
		Events:    f.events,
		Metrics:   telemetry.NewMetricsWith(prometheus.NewRegistry()),
		Logger:    logger.NewNop(),
		Window:    time.Minute,
		Providers: f.registry.Names(),
	})

	h := NewWebhookHandler(
		f.registry,
		engine,
		map[string]string{"calcom": testSecret, "typeform": testSecret, "stripe": testSecret},
		f.events,
		telemetry.NewMetricsWith(prometheus.NewRegistry()),
		logger.NewNop(),
	)

	f.router = gin.New()
	f.router.POST("/webhooks/:provider", h.HandleWebhook)
	return f
}

func signCalcom(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(f *webhookFixture, providerName, workspaceID string, body []byte, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+providerName+"?workspace_id="+workspaceID, bytes.NewReader(body))
	if sign {
		req.Header.Set("X-Cal-Signature-256", signCalcom(body))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWebhookUnknownProvider(t *testing.T) {
	f := newWebhookFixture(t)
	w := postWebhook(f, "zapier", "ws_1", []byte("{}"), false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookMissingWorkspace(t *testing.T) {
	f := newWebhookFixture(t)
	w := postWebhook(f, "calcom", "", []byte("{}"), true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := []byte(`{"triggerEvent": "BOOKING_CREATED", "payload": {"uid": "bk_1"}}`)

	w := postWebhook(f, "calcom", "ws_1", body, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.creator.count())
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newWebhookFixture(t)
	body := []byte("{not json")

	w := postWebhook(f, "calcom", "ws_1", body, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookUnsupportedEventAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	body := []byte(`{"triggerEvent": "BOOKING_CANCELLED", "payload": {"uid": "bk_1"}}`)

	w := postWebhook(f, "calcom", "ws_1", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Zero(t, f.creator.count())
}

func TestWebhookDirectMatch(t *testing.T) {
	f := newWebhookFixture(t)
	f.resolver.resolveClickFunc = func(_ context.Context, clickID string) (*domain.ClickRecord, error) {
		return &domain.ClickRecord{ID: clickID, LinkID: "lnk_1", WorkspaceID: "ws_1"}, nil
	}
	body := []byte(`{
		"triggerEvent": "BOOKING_CREATED",
		"payload": {"uid": "bk_1", "metadata": {"click_id": "clk_1"},
			"attendees": [{"email": "a@b.c", "name": "A"}]}
	}`)

	w := postWebhook(f, "calcom", "ws_1", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "matched")
	assert.Equal(t, 1, f.creator.count())
}

func TestWebhookWorkspaceMismatch(t *testing.T) {
	f := newWebhookFixture(t)
	f.resolver.resolveClickFunc = func(_ context.Context, clickID string) (*domain.ClickRecord, error) {
		return &domain.ClickRecord{ID: clickID, LinkID: "lnk_1", WorkspaceID: "ws_other"}, nil
	}
	body := []byte(`{
		"triggerEvent": "BOOKING_CREATED",
		"payload": {"uid": "bk_1", "metadata": {"click_id": "clk_1"}}
	}`)

	w := postWebhook(f, "calcom", "ws_1", body, true)

	// No lead is created, but the caller only sees a generic
	// acknowledgement; the ownership failure stays in the event log.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "workspace")
	assert.Zero(t, f.creator.count())

	authFailed := f.events.byKind(eventlog.KindAuthFailed)
	require.Len(t, authFailed, 1)
	assert.Equal(t, "ws_1", authFailed[0].WorkspaceID)
}

func TestWebhookUnresolvableIDFallsBackToPending(t *testing.T) {
	f := newWebhookFixture(t)
	f.resolver.resolveClickFunc = func(_ context.Context, _ string) (*domain.ClickRecord, error) {
		return nil, clicks.ErrNotFound
	}
	body := []byte(`{
		"triggerEvent": "BOOKING_CREATED",
		"payload": {"uid": "bk_1", "metadata": {"click_id": "clk_stale"}}
	}`)

	w := postWebhook(f, "calcom", "ws_1", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stored_pending")

	entry, ok, err := f.store.TakePending(context.Background(), "ws_1", "calcom")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, entry, "bk_1")
}

func TestWebhookNoAttributionStoredPending(t *testing.T) {
	f := newWebhookFixture(t)
	body := []byte(`{
		"triggerEvent": "BOOKING_CREATED",
		"payload": {"uid": "bk_1", "attendees": [{"email": "a@b.c", "name": "A"}]}
	}`)

	w := postWebhook(f, "calcom", "ws_1", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stored_pending")
	assert.Zero(t, f.creator.count())
}
