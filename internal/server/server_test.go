package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lenslive/internal/api"
	"lenslive/internal/observability/metrics"
	"lenslive/internal/reconcile"
	"lenslive/internal/session"
	"lenslive/internal/settings"
	"lenslive/internal/stream"
	"lenslive/internal/testsupport"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry()
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.New()
		cfg.Metrics = recorder
	}
	controller := stream.NewController(stream.ControllerConfig{
		Registry:  registry,
		Transport: testsupport.NewTransportStub(),
		Metrics:   recorder,
	})
	reconciler := reconcile.NewReconciler(reconcile.ReconcilerConfig{Registry: registry, Metrics: recorder})
	handler := api.NewHandler(api.Config{
		Registry:   registry,
		Controller: controller,
		Settings:   settings.NewMemoryStore(),
		Reconciler: reconciler,
	})
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	return srv, registry
}

func TestServerRoutesStreamInfo(t *testing.T) {
	srv, registry := newTestServer(t, Config{})
	if _, err := registry.Create("u1", testsupport.NewHandleStub(), "rtmp://host/key"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stream?userId=u1", nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "rtmp://host/key") {
		t.Fatalf("expected session url in response, got %s", resp.Body.String())
	}
}

func TestServerSetsRequestIDAndSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	if resp.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", resp.Header().Get("X-Content-Type-Options"))
	}
	if resp.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected frame deny header, got %q", resp.Header().Get("X-Frame-Options"))
	}
	if csp := resp.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Fatalf("expected locked-down CSP for an API response, got %q", csp)
	}
	if pp := resp.Header().Get("Permissions-Policy"); !strings.Contains(pp, "camera=()") {
		t.Fatalf("expected camera disabled in permissions policy, got %q", pp)
	}
}

func TestServerSecurityHeaderOverride(t *testing.T) {
	srv, _ := newTestServer(t, Config{Security: SecurityConfig{ReferrerPolicy: "same-origin"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	if got := resp.Header().Get("Referrer-Policy"); got != "same-origin" {
		t.Fatalf("expected override, got %q", got)
	}
	if got := resp.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("other headers must keep defaults, got %q", got)
	}
}

func TestServerEchoesProvidedRequestID(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-fixed")
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	if got := resp.Header().Get("X-Request-Id"); got != "req-fixed" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestServerServesMetrics(t *testing.T) {
	recorder := metrics.New()
	srv, _ := newTestServer(t, Config{Metrics: recorder})

	// Drive one request through the chain, then scrape.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	scrape := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, scrape)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "lenslive_http_requests_total") {
		t.Fatalf("expected request counter in scrape, got:\n%s", resp.Body.String())
	}
}

func TestServerHookRateLimit(t *testing.T) {
	srv, registry := newTestServer(t, Config{
		RateLimit: RateLimitConfig{HookLimit: 2, HookWindow: time.Minute},
	})
	if _, err := registry.Create("u1", testsupport.NewHandleStub(), ""); err != nil {
		t.Fatalf("create session: %v", err)
	}

	deliver := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/hooks/stream-status", strings.NewReader(`{"userId":"u1","phase":"active"}`))
		req.RemoteAddr = "10.0.0.9:4433"
		resp := httptest.NewRecorder()
		srv.Handler().ServeHTTP(resp, req)
		return resp.Code
	}

	if code := deliver(); code != http.StatusAccepted {
		t.Fatalf("first hook: expected 202, got %d", code)
	}
	if code := deliver(); code != http.StatusAccepted {
		t.Fatalf("second hook: expected 202, got %d", code)
	}
	if code := deliver(); code != http.StatusTooManyRequests {
		t.Fatalf("third hook: expected 429, got %d", code)
	}
}

func TestServerBlocksUnknownOrigin(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://companion.example.com"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", resp.Code)
	}
}

func TestServerAllowsConfiguredOrigin(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://companion.example.com"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Origin", "https://companion.example.com")
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed origin, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://companion.example.com" {
		t.Fatalf("expected allow-origin header, got %q", got)
	}
}

func TestServerGlobalRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request limited, got %d", second.Code)
	}
}
