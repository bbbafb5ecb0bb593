package stream

import (
	"testing"
	"time"
)

func clearTransportEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LENSLIVE_TRANSPORT_API",
		"LENSLIVE_TRANSPORT_TOKEN",
		"LENSLIVE_TRANSPORT_HEALTH",
		"LENSLIVE_TRANSPORT_TIMEOUT",
		"LENSLIVE_DEFAULT_RTMP_URL",
		"LENSLIVE_VIDEO_WIDTH",
		"LENSLIVE_VIDEO_HEIGHT",
		"LENSLIVE_VIDEO_FPS",
		"LENSLIVE_VIDEO_BITRATE_KBPS",
		"LENSLIVE_AUDIO_SAMPLE_RATE",
		"LENSLIVE_AUDIO_CHANNELS",
		"LENSLIVE_AUDIO_BITRATE_KBPS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	clearTransportEnv(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enabled() {
		t.Fatal("expected transport disabled without base URL")
	}
	if cfg.DefaultRTMPURL != DefaultRTMPURL {
		t.Fatalf("expected default destination, got %q", cfg.DefaultRTMPURL)
	}
	if cfg.HealthEndpoint != "/healthz" {
		t.Fatalf("expected default health endpoint, got %q", cfg.HealthEndpoint)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.Video.Width != 1280 || cfg.Video.Height != 720 || cfg.Video.FPS != 30 {
		t.Fatalf("unexpected video defaults %+v", cfg.Video)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults %+v", cfg.Audio)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("LENSLIVE_TRANSPORT_API", "https://transport.example.com")
	t.Setenv("LENSLIVE_TRANSPORT_TOKEN", "secret")
	t.Setenv("LENSLIVE_TRANSPORT_TIMEOUT", "30s")
	t.Setenv("LENSLIVE_DEFAULT_RTMP_URL", "rtmp://custom.example.com/live")
	t.Setenv("LENSLIVE_VIDEO_WIDTH", "1920")
	t.Setenv("LENSLIVE_VIDEO_HEIGHT", "1080")
	t.Setenv("LENSLIVE_AUDIO_CHANNELS", "2")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Enabled() {
		t.Fatal("expected transport enabled")
	}
	if cfg.Token != "secret" {
		t.Fatalf("unexpected token %q", cfg.Token)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.DefaultRTMPURL != "rtmp://custom.example.com/live" {
		t.Fatalf("unexpected default destination %q", cfg.DefaultRTMPURL)
	}
	if cfg.Video.Width != 1920 || cfg.Video.Height != 1080 {
		t.Fatalf("unexpected video overrides %+v", cfg.Video)
	}
	if cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected audio channels %d", cfg.Audio.Channels)
	}
}

func TestLoadConfigFromEnvRejectsBadValues(t *testing.T) {
	clearTransportEnv(t)
	t.Setenv("LENSLIVE_VIDEO_FPS", "sixty")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric FPS")
	}

	clearTransportEnv(t)
	t.Setenv("LENSLIVE_VIDEO_FPS", "-1")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for non-positive FPS")
	}

	clearTransportEnv(t)
	t.Setenv("LENSLIVE_TRANSPORT_TIMEOUT", "soon")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected error for invalid timeout")
	}
}

func TestNewHTTPTransportRequiresBaseURL(t *testing.T) {
	if _, err := (Config{}).NewHTTPTransport(); err == nil {
		t.Fatal("expected error without base URL")
	}
	transport, err := (Config{BaseURL: "https://transport.example.com"}).NewHTTPTransport()
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if transport == nil {
		t.Fatal("expected transport instance")
	}
}
