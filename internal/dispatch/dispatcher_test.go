package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lenslive/internal/models"
	"lenslive/internal/observability/metrics"
	"lenslive/internal/session"
	"lenslive/internal/stream"
	"lenslive/internal/testsupport"
)

type fixture struct {
	dispatcher *Dispatcher
	registry   *session.Registry
	transport  *testsupport.TransportStub
	settings   *testsupport.SettingsStoreStub
	recorder   *metrics.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := session.NewRegistry()
	transport := testsupport.NewTransportStub()
	store := testsupport.NewSettingsStoreStub()
	recorder := metrics.New()
	controller := stream.NewController(stream.ControllerConfig{
		Registry:  registry,
		Transport: transport,
		Metrics:   recorder,
	})
	dispatcher := NewDispatcher(DispatcherConfig{
		Registry:   registry,
		Controller: controller,
		Settings:   store,
		Metrics:    recorder,
	})
	return &fixture{
		dispatcher: dispatcher,
		registry:   registry,
		transport:  transport,
		settings:   store,
		recorder:   recorder,
	}
}

func TestHandleConnectSeedsDefaultAndAutoStarts(t *testing.T) {
	f := newFixture(t)
	handle := testsupport.NewHandleStub()

	if err := f.dispatcher.HandleConnect(context.Background(), "u1", handle); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	sess, ok := f.registry.Get("u1")
	if !ok {
		t.Fatalf("expected session created")
	}
	if got := sess.RTMPURL(); got != stream.DefaultRTMPURL {
		t.Fatalf("expected default url seed, got %q", got)
	}
	if got := sess.Direct().Phase; got != models.PhaseStopped {
		t.Fatalf("expected stopped phase after connect, got %q", got)
	}
	calls := f.transport.StartDirectCalls()
	if len(calls) != 1 || calls[0].URL != stream.DefaultRTMPURL {
		t.Fatalf("expected one auto-start with default url, got %+v", calls)
	}
	if got := f.recorder.ActiveSessions(); got != 1 {
		t.Fatalf("expected active session gauge 1, got %d", got)
	}
}

func TestHandleConnectSeedsFromSettings(t *testing.T) {
	f := newFixture(t)
	f.settings.Seed("u1", "rtmp://host/key")
	handle := testsupport.NewHandleStub()

	if err := f.dispatcher.HandleConnect(context.Background(), "u1", handle); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	sess, _ := f.registry.Get("u1")
	if got := sess.RTMPURL(); got != "rtmp://host/key" {
		t.Fatalf("expected persisted url seed, got %q", got)
	}
}

func TestHandleConnectAutoStartFailureNotifiesOnly(t *testing.T) {
	f := newFixture(t)
	f.transport.StartDirectErr = errors.New("relay unreachable")
	handle := testsupport.NewHandleStub()

	if err := f.dispatcher.HandleConnect(context.Background(), "u1", handle); err != nil {
		t.Fatalf("connect must succeed despite auto-start failure, got %v", err)
	}

	sess, ok := f.registry.Get("u1")
	if !ok {
		t.Fatalf("expected session to survive auto-start failure")
	}
	if got := sess.Direct().Phase; got != models.PhaseError {
		t.Fatalf("expected error phase recorded, got %q", got)
	}
	last, ok := handle.LastNotification()
	if !ok || !strings.Contains(last.Text, "relay unreachable") {
		t.Fatalf("expected failure notification, got %+v", last)
	}
}

func TestHandleConnectReplacesExistingSession(t *testing.T) {
	f := newFixture(t)
	first := testsupport.NewHandleStub()
	second := testsupport.NewHandleStub()

	if err := f.dispatcher.HandleConnect(context.Background(), "u1", first); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	if err := f.dispatcher.HandleConnect(context.Background(), "u1", second); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	sess, ok := f.registry.Get("u1")
	if !ok {
		t.Fatalf("expected session after reconnect")
	}
	if sess.Handle() != session.Handle(second) {
		t.Fatalf("expected reconnect to install the new handle")
	}
	if got := f.recorder.ActiveSessions(); got != 1 {
		t.Fatalf("expected gauge 1 after reconnect, got %d", got)
	}
}

func TestSetURLSurvivesDisconnectReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.settings.Set(ctx, "u1", "rtmp://persisted/key"); err != nil {
		t.Fatalf("set url: %v", err)
	}

	handle := testsupport.NewHandleStub()
	if err := f.dispatcher.HandleConnect(ctx, "u1", handle); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	f.dispatcher.HandleDisconnect("u1", "device sleep")
	if _, ok := f.registry.Get("u1"); ok {
		t.Fatalf("expected session removed on disconnect")
	}

	if err := f.dispatcher.HandleConnect(ctx, "u1", testsupport.NewHandleStub()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	sess, _ := f.registry.Get("u1")
	if got := sess.RTMPURL(); got != "rtmp://persisted/key" {
		t.Fatalf("expected persisted url after reconnect, got %q", got)
	}
}

func TestHandleDisconnectUnknownUserIsNoop(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.HandleDisconnect("ghost", "timeout")
	if got := f.recorder.ActiveSessions(); got != 0 {
		t.Fatalf("expected gauge untouched, got %d", got)
	}
}

func TestHandleTranscriptDispatchesFinalSegments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.dispatcher.HandleConnect(ctx, "u1", testsupport.NewHandleStub()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	startsAfterConnect := len(f.transport.StartDirectCalls())

	if got := f.dispatcher.HandleTranscript(ctx, "u1", "please start streaming", true); got != CommandStart {
		t.Fatalf("expected start command, got %q", got)
	}
	if got := len(f.transport.StartDirectCalls()); got != startsAfterConnect+1 {
		t.Fatalf("expected one additional start, got %d", got-startsAfterConnect)
	}

	if got := f.dispatcher.HandleTranscript(ctx, "u1", "ok stop streaming", true); got != CommandStop {
		t.Fatalf("expected stop command, got %q", got)
	}
	if got := f.transport.StopDirectCalls(); len(got) != 1 {
		t.Fatalf("expected one stop call, got %d", len(got))
	}
}

func TestHandleTranscriptIgnoresNonFinalSegments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.dispatcher.HandleConnect(ctx, "u1", testsupport.NewHandleStub()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if got := f.dispatcher.HandleTranscript(ctx, "u1", "stop streaming", false); got != CommandNone {
		t.Fatalf("expected non-final segment ignored, got %q", got)
	}
	if got := f.transport.StopDirectCalls(); len(got) != 0 {
		t.Fatalf("expected no stop calls for non-final segment, got %d", len(got))
	}
}

func TestHandleTranscriptStopBeforeStartPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.dispatcher.HandleConnect(ctx, "u1", testsupport.NewHandleStub()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	startsAfterConnect := len(f.transport.StartDirectCalls())

	got := f.dispatcher.HandleTranscript(ctx, "u1", "start streaming and then stop streaming", true)
	if got != CommandStop {
		t.Fatalf("expected stop precedence, got %q", got)
	}
	if stops := f.transport.StopDirectCalls(); len(stops) != 1 {
		t.Fatalf("expected exactly one stop call, got %d", len(stops))
	}
	if starts := len(f.transport.StartDirectCalls()); starts != startsAfterConnect {
		t.Fatalf("expected zero additional starts, got %d", starts-startsAfterConnect)
	}
}

func TestHandleTranscriptUnknownSessionDropped(t *testing.T) {
	f := newFixture(t)
	if got := f.dispatcher.HandleTranscript(context.Background(), "ghost", "start streaming", true); got != CommandNone {
		t.Fatalf("expected drop for unknown session, got %q", got)
	}
	if calls := f.transport.StartDirectCalls(); len(calls) != 0 {
		t.Fatalf("expected no transport calls, got %d", len(calls))
	}
}
