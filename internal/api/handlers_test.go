package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lenslive/internal/dispatch"
	"lenslive/internal/models"
	"lenslive/internal/observability/metrics"
	"lenslive/internal/reconcile"
	"lenslive/internal/session"
	"lenslive/internal/settings"
	"lenslive/internal/stream"
	"lenslive/internal/testsupport"
)

type fixture struct {
	handler   *Handler
	registry  *session.Registry
	transport *testsupport.TransportStub
	store     *settings.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := session.NewRegistry()
	transport := testsupport.NewTransportStub()
	store := settings.NewMemoryStore()
	recorder := metrics.New()
	controller := stream.NewController(stream.ControllerConfig{
		Registry:  registry,
		Transport: transport,
		Metrics:   recorder,
	})
	reconciler := reconcile.NewReconciler(reconcile.ReconcilerConfig{
		Registry: registry,
		Metrics:  recorder,
	})
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Registry:   registry,
		Controller: controller,
		Settings:   store,
		Metrics:    recorder,
	})
	handler := NewHandler(Config{
		Registry:   registry,
		Controller: controller,
		Settings:   store,
		Reconciler: reconciler,
		Dispatcher: dispatcher,
		Transport:  transport,
	})
	return &fixture{handler: handler, registry: registry, transport: transport, store: store}
}

func (f *fixture) connect(t *testing.T, userID string) (*session.Session, *testsupport.HandleStub) {
	t.Helper()
	handle := testsupport.NewHandleStub()
	sess, err := f.registry.Create(userID, handle, stream.DefaultRTMPURL)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess, handle
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStreamInfoRequiresUserID(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	resp := httptest.NewRecorder()
	f.handler.StreamInfo(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStreamInfoDefaultsWithoutSession(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stream?userId=u1", nil)
	resp := httptest.NewRecorder()
	f.handler.StreamInfo(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var info models.StreamInfo
	decodeBody(t, resp, &info)
	if info.RTMPURL != stream.DefaultRTMPURL {
		t.Fatalf("expected default url, got %q", info.RTMPURL)
	}
	if info.DirectStatus.Phase != models.PhaseStopped {
		t.Fatalf("expected stopped phase, got %q", info.DirectStatus.Phase)
	}
	if info.ManagedStatus != nil {
		t.Fatalf("expected no managed status, got %+v", info.ManagedStatus)
	}
}

func TestStreamInfoPrefersPersistedURLWithoutSession(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Set(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "u1", "rtmp://persisted/key"); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stream?userId=u1", nil)
	resp := httptest.NewRecorder()
	f.handler.StreamInfo(resp, req)

	var info models.StreamInfo
	decodeBody(t, resp, &info)
	if info.RTMPURL != "rtmp://persisted/key" {
		t.Fatalf("expected persisted url, got %q", info.RTMPURL)
	}
}

func TestStreamInfoReflectsLiveSession(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.connect(t, "u1")
	sess.SetDirect(models.DirectStatus{Phase: models.PhaseActive})

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set("X-User-Id", "u1")
	resp := httptest.NewRecorder()
	f.handler.StreamInfo(resp, req)

	var info models.StreamInfo
	decodeBody(t, resp, &info)
	if info.DirectStatus.Phase != models.PhaseActive {
		t.Fatalf("expected active phase, got %q", info.DirectStatus.Phase)
	}
}

func TestSetStreamURLValidation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/api/stream/url", strings.NewReader(`{"userId":"u1","url":""}`))
	resp := httptest.NewRecorder()
	f.handler.SetStreamURL(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty url, got %d", resp.Code)
	}

	// A non-rtmp scheme is advisory only; the write still succeeds.
	req = httptest.NewRequest(http.MethodPut, "/api/stream/url", strings.NewReader(`{"userId":"u1","url":"http://not-rtmp"}`))
	resp = httptest.NewRecorder()
	f.handler.SetStreamURL(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for non-rtmp scheme, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSetStreamURLWithoutSettingsStore(t *testing.T) {
	handler := NewHandler(Config{Registry: session.NewRegistry()})

	req := httptest.NewRequest(http.MethodPut, "/api/stream/url", strings.NewReader(`{"userId":"u1","url":"rtmp://a/b"}`))
	resp := httptest.NewRecorder()
	handler.SetStreamURL(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a settings store, got %d", resp.Code)
	}
}

func TestSetStreamURLUpdatesLiveSession(t *testing.T) {
	f := newFixture(t)
	sess, handle := f.connect(t, "u1")

	req := httptest.NewRequest(http.MethodPut, "/api/stream/url", strings.NewReader(`{"userId":"u1","url":"rtmp://new/dest"}`))
	resp := httptest.NewRecorder()
	f.handler.SetStreamURL(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := sess.RTMPURL(); got != "rtmp://new/dest" {
		t.Fatalf("expected session url updated, got %q", got)
	}
	if _, ok := handle.LastNotification(); !ok {
		t.Fatalf("expected live session notified of settings change")
	}
}

func TestStartDirectErrorMapping(t *testing.T) {
	f := newFixture(t)

	// No session -> 404.
	req := httptest.NewRequest(http.MethodPost, "/api/stream/start?userId=ghost", nil)
	resp := httptest.NewRecorder()
	f.handler.StartDirect(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing session, got %d", resp.Code)
	}

	// Transport failure -> 502 with error phase recorded.
	sess, _ := f.connect(t, "u1")
	f.transport.StartDirectErr = errors.New("relay down")
	req = httptest.NewRequest(http.MethodPost, "/api/stream/start?userId=u1", nil)
	resp = httptest.NewRecorder()
	f.handler.StartDirect(resp, req)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for transport failure, got %d", resp.Code)
	}
	if got := sess.Direct().Phase; got != models.PhaseError {
		t.Fatalf("expected error phase, got %q", got)
	}

	// Success -> 202, phase untouched.
	f.transport.StartDirectErr = nil
	sess.SetDirect(models.DirectStatus{Phase: models.PhaseStopped})
	req = httptest.NewRequest(http.MethodPost, "/api/stream/start?userId=u1", nil)
	resp = httptest.NewRecorder()
	f.handler.StartDirect(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if got := sess.Direct().Phase; got != models.PhaseStopped {
		t.Fatalf("expected phase untouched on success, got %q", got)
	}
}

func TestStartDirectWithOverrideBody(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.connect(t, "u1")

	req := httptest.NewRequest(http.MethodPost, "/api/stream/start", strings.NewReader(`{"userId":"u1","url":"rtmp://override/key"}`))
	resp := httptest.NewRecorder()
	f.handler.StartDirect(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := sess.RTMPURL(); got != "rtmp://override/key" {
		t.Fatalf("expected override persisted on session, got %q", got)
	}
	calls := f.transport.StartDirectCalls()
	if len(calls) != 1 || calls[0].URL != "rtmp://override/key" {
		t.Fatalf("expected transport called with override, got %+v", calls)
	}
}

func TestStopDirectIsPermissive(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "u1")

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/stream/stop?userId=u1", nil)
		resp := httptest.NewRecorder()
		f.handler.StopDirect(resp, req)
		if resp.Code != http.StatusAccepted {
			t.Fatalf("stop %d: expected 202, got %d", i+1, resp.Code)
		}
	}
	if got := f.transport.StopDirectCalls(); len(got) != 2 {
		t.Fatalf("expected both stops forwarded to transport, got %d", len(got))
	}
}

func TestStreamOpsAcceptBodyUserID(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "u1")

	stop := httptest.NewRequest(http.MethodPost, "/api/stream/stop", strings.NewReader(`{"userId":"u1"}`))
	resp := httptest.NewRecorder()
	f.handler.StopDirect(resp, stop)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("stop with body userId: expected 202, got %d", resp.Code)
	}
	if got := f.transport.StopDirectCalls(); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("expected stop forwarded for u1, got %v", got)
	}

	start := httptest.NewRequest(http.MethodPost, "/api/stream/managed/start", strings.NewReader(`{"userId":"u1"}`))
	resp = httptest.NewRecorder()
	f.handler.StartManaged(resp, start)
	if resp.Code != http.StatusOK {
		t.Fatalf("managed start with body userId: expected 200, got %d", resp.Code)
	}

	stopManaged := httptest.NewRequest(http.MethodPost, "/api/stream/managed/stop", strings.NewReader(`{"userId":"u1"}`))
	resp = httptest.NewRecorder()
	f.handler.StopManaged(resp, stopManaged)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("managed stop with body userId: expected 202, got %d", resp.Code)
	}

	malformed := httptest.NewRequest(http.MethodPost, "/api/stream/stop", strings.NewReader(`{`))
	resp = httptest.NewRecorder()
	f.handler.StopDirect(resp, malformed)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", resp.Code)
	}
}

func TestStartManagedReturnsURLs(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.connect(t, "u1")
	f.transport.ManagedResult = stream.ManagedStream{
		StreamID: "s-1",
		URLs: models.PlaybackURLs{
			HLS:    "https://cdn/live.m3u8",
			DASH:   "https://cdn/live.mpd",
			WebRTC: "wss://cdn/live",
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/stream/managed/start?userId=u1", nil)
	resp := httptest.NewRecorder()
	f.handler.StartManaged(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var result stream.ManagedStream
	decodeBody(t, resp, &result)
	if result.StreamID != "s-1" || result.URLs.HLS != "https://cdn/live.m3u8" {
		t.Fatalf("unexpected managed result: %+v", result)
	}
	managed := sess.Managed()
	if managed == nil || managed.Phase != models.PhaseInitializing {
		t.Fatalf("expected initializing managed status seeded, got %+v", managed)
	}
}

func TestStopManagedDoesNotClearStatus(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.connect(t, "u1")
	sess.SetManaged(models.ManagedStatus{Phase: models.PhaseActive, StreamID: "s-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/stream/managed/stop?userId=u1", nil)
	resp := httptest.NewRecorder()
	f.handler.StopManaged(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if sess.Managed() == nil {
		t.Fatalf("managed status must persist until a stopped event is observed")
	}
}

func TestSessionsListsConnectedUsers(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "u2")
	f.connect(t, "u1")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	resp := httptest.NewRecorder()
	f.handler.Sessions(resp, req)

	var payload struct {
		Count    int                 `json:"count"`
		Sessions []models.StreamInfo `json:"sessions"`
	}
	decodeBody(t, resp, &payload)
	if payload.Count != 2 || len(payload.Sessions) != 2 {
		t.Fatalf("expected two sessions, got %+v", payload)
	}
	if payload.Sessions[0].UserID != "u1" || payload.Sessions[1].UserID != "u2" {
		t.Fatalf("expected sorted session list, got %+v", payload.Sessions)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/stream", nil)
	resp := httptest.NewRecorder()
	f.handler.StreamInfo(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	if got := resp.Header().Get("Allow"); got != http.MethodGet {
		t.Fatalf("expected Allow header, got %q", got)
	}
}
