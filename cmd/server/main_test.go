package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"lenslive/internal/reconcile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigureStatusQueueMemory(t *testing.T) {
	queue, err := configureStatusQueue("", reconcile.RedisQueueConfig{}, discardLogger())
	if err != nil {
		t.Fatalf("expected memory queue, got error: %v", err)
	}
	if queue == nil {
		t.Fatal("expected queue instance")
	}
}

func TestConfigureStatusQueueRedisMissingAddress(t *testing.T) {
	if _, err := configureStatusQueue("redis", reconcile.RedisQueueConfig{}, discardLogger()); err == nil {
		t.Fatal("expected error when redis addr missing")
	}
}

func TestConfigureStatusQueueUnknownDriver(t *testing.T) {
	if _, err := configureStatusQueue("kafka", reconcile.RedisQueueConfig{}, discardLogger()); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestResolveSettingsDriver(t *testing.T) {
	cases := []struct {
		name      string
		flagValue string
		envValue  string
		dsn       string
		want      string
	}{
		{name: "flag wins", flagValue: "Postgres", envValue: "memory", dsn: "", want: "postgres"},
		{name: "env fallback", envValue: "memory", dsn: "postgres://x", want: "memory"},
		{name: "dsn implies postgres", dsn: "postgres://x", want: "postgres"},
		{name: "defaults to memory", want: "memory"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver, err := resolveSettingsDriver(tc.flagValue, tc.envValue, tc.dsn)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if driver != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, driver)
			}
		})
	}
}

func TestValidateProductionSettingsRejectsMemory(t *testing.T) {
	if err := validateProductionSettings("memory", ""); err == nil {
		t.Fatal("expected error for memory driver in production")
	}
}

func TestValidateProductionSettingsRequiresDSN(t *testing.T) {
	if err := validateProductionSettings("postgres", "  "); err == nil {
		t.Fatal("expected error for missing DSN")
	}
	if err := validateProductionSettings("postgres", "postgres://coordinator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveListenAddr(t *testing.T) {
	if addr := resolveListenAddr(":9999", "production", ":7777"); addr != ":9999" {
		t.Fatalf("flag should win, got %q", addr)
	}
	if addr := resolveListenAddr("", "production", ":7777"); addr != ":7777" {
		t.Fatalf("env should win over mode default, got %q", addr)
	}
	if addr := resolveListenAddr("", "production", ""); addr != ":80" {
		t.Fatalf("production default should be :80, got %q", addr)
	}
	if addr := resolveListenAddr("", "development", ""); addr != ":8080" {
		t.Fatalf("development default should be :8080, got %q", addr)
	}
}

func TestModeValueDefaultsToDevelopment(t *testing.T) {
	if mode := modeValue("", ""); mode != "development" {
		t.Fatalf("expected development, got %q", mode)
	}
	if mode := modeValue("PRODUCTION", ""); mode != "production" {
		t.Fatalf("expected production, got %q", mode)
	}
}

func TestResolveSettingsDSNPriority(t *testing.T) {
	t.Setenv("LENSLIVE_POSTGRES_DSN", "postgres://env")
	t.Setenv("DATABASE_URL", "postgres://database-url")
	if dsn := resolveSettingsDSN("postgres://flag"); dsn != "postgres://flag" {
		t.Fatalf("flag should win, got %q", dsn)
	}
	if dsn := resolveSettingsDSN(""); dsn != "postgres://env" {
		t.Fatalf("env should win over DATABASE_URL, got %q", dsn)
	}
	t.Setenv("LENSLIVE_POSTGRES_DSN", "")
	if dsn := resolveSettingsDSN(""); dsn != "postgres://database-url" {
		t.Fatalf("expected DATABASE_URL fallback, got %q", dsn)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected result %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestResolveHelpersEnvFallback(t *testing.T) {
	t.Setenv("TEST_RPS", "2.5")
	if v := resolveFloat(0, "TEST_RPS"); v != 2.5 {
		t.Fatalf("expected 2.5, got %v", v)
	}
	if v := resolveFloat(4, "TEST_RPS"); v != 4 {
		t.Fatalf("flag should win, got %v", v)
	}
	t.Setenv("TEST_BURST", "7")
	if v := resolveInt(0, "TEST_BURST"); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	t.Setenv("TEST_WINDOW", "90s")
	if v := resolveDuration(0, "TEST_WINDOW", time.Minute); v != 90*time.Second {
		t.Fatalf("expected 90s, got %v", v)
	}
	if v := resolveDuration(0, "TEST_WINDOW_MISSING", time.Minute); v != time.Minute {
		t.Fatalf("expected fallback, got %v", v)
	}
	t.Setenv("TEST_SKIP", "true")
	if !resolveBool(false, "TEST_SKIP") {
		t.Fatal("expected env true")
	}
}
