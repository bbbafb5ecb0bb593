// Command server starts the LensLive coordinator HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lenslive/internal/api"
	"lenslive/internal/dispatch"
	"lenslive/internal/observability/logging"
	"lenslive/internal/observability/metrics"
	"lenslive/internal/reconcile"
	"lenslive/internal/server"
	"lenslive/internal/session"
	"lenslive/internal/settings"
	"lenslive/internal/stream"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	settingsDriver := flag.String("settings-driver", "", "settings store driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string for the settings store")
	transportAPI := flag.String("transport-api", "", "base URL of the streaming transport REST API")
	transportToken := flag.String("transport-token", "", "bearer token for transport API requests")
	defaultRTMPURL := flag.String("default-rtmp-url", "", "fallback RTMP destination for direct streams")
	queueDriver := flag.String("status-queue-driver", "", "status queue driver (memory or redis)")
	queueRedisAddr := flag.String("status-queue-redis-addr", "", "Redis address for status queue transport")
	queueRedisAddrs := flag.String("status-queue-redis-addrs", "", "comma separated Redis addresses for status queue transport")
	queueRedisUsername := flag.String("status-queue-redis-username", "", "Redis username for status queue")
	queueRedisPassword := flag.String("status-queue-redis-password", "", "Redis password for status queue")
	queueRedisStream := flag.String("status-queue-redis-stream", "", "Redis stream key for status events")
	queueRedisGroup := flag.String("status-queue-redis-group", "", "Redis consumer group for status events")
	queueRedisMasterName := flag.String("status-queue-redis-sentinel-master", "", "Redis sentinel master name for status queue")
	queueRedisPoolSize := flag.Int("status-queue-redis-pool-size", 0, "maximum Redis connections for status queue")
	queueRedisTLSCA := flag.String("status-queue-redis-tls-ca", "", "path to Redis TLS CA certificate for status queue")
	queueRedisTLSCert := flag.String("status-queue-redis-tls-cert", "", "path to Redis TLS client certificate for status queue")
	queueRedisTLSKey := flag.String("status-queue-redis-tls-key", "", "path to Redis TLS client key for status queue")
	queueRedisTLSServerName := flag.String("status-queue-redis-tls-server-name", "", "override Redis TLS server name for status queue")
	queueRedisTLSSkipVerify := flag.Bool("status-queue-redis-tls-skip-verify", false, "skip Redis TLS verification for status queue")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	hookLimit := flag.Int("rate-hook-limit", 0, "maximum status webhook deliveries per window for a single IP")
	hookWindow := flag.Duration("rate-hook-window", 0, "window for counting status webhook deliveries")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	sessionMaxIdle := flag.Duration("session-max-idle", 0, "idle duration after which a device session is reaped (0 disables)")
	sessionSweepInterval := flag.Duration("session-sweep-interval", 0, "interval between stale session sweeps")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("LENSLIVE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("LENSLIVE_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("LENSLIVE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("LENSLIVE_ADDR"))

	transportCfg, err := stream.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load transport configuration", "error", err)
		os.Exit(1)
	}
	if v := strings.TrimSpace(*transportAPI); v != "" {
		transportCfg.BaseURL = v
	}
	if v := strings.TrimSpace(*transportToken); v != "" {
		transportCfg.Token = v
	}
	if v := strings.TrimSpace(*defaultRTMPURL); v != "" {
		transportCfg.DefaultRTMPURL = v
	}

	var transport stream.Transport
	if transportCfg.BaseURL != "" {
		httpTransport, err := transportCfg.NewHTTPTransport()
		if err != nil {
			logger.Error("failed to initialise stream transport", "error", err)
			os.Exit(1)
		}
		httpTransport.SetLogger(logging.WithComponent(logger, "transport"))
		transport = httpTransport
	} else {
		logger.Warn("no transport API configured, stream operations will be accepted without effect")
		transport = stream.NoopTransport{}
	}

	settingsDSN := resolveSettingsDSN(*postgresDSN)
	driver, err := resolveSettingsDriver(*settingsDriver, os.Getenv("LENSLIVE_SETTINGS_DRIVER"), settingsDSN)
	if err != nil {
		logger.Error("failed to resolve settings driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionSettings(driver, settingsDSN); err != nil {
			logger.Error("production settings validation failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		settingsStore  settings.Store
		settingsPinger api.Pinger
		settingsCloser func(context.Context) error
	)
	switch driver {
	case "memory":
		settingsStore = settings.NewMemoryStore()
	case "postgres":
		pgStore, err := settings.NewPostgresStore(settingsDSN)
		if err != nil {
			logger.Error("failed to open settings store", "error", err)
			os.Exit(1)
		}
		settingsStore = pgStore
		settingsPinger = pgStore
		settingsCloser = pgStore.Close
	default:
		logger.Error("unsupported settings driver", "driver", driver)
		os.Exit(1)
	}

	registry := session.NewRegistry()
	controller := stream.NewController(stream.ControllerConfig{
		Registry:   registry,
		Transport:  transport,
		DefaultURL: transportCfg.DefaultRTMPURL,
		Video:      transportCfg.Video,
		Audio:      transportCfg.Audio,
		Logger:     logging.WithComponent(logger, "stream"),
		Metrics:    recorder,
	})
	reconciler := reconcile.NewReconciler(reconcile.ReconcilerConfig{
		Registry: registry,
		Logger:   logging.WithComponent(logger, "reconcile"),
		Metrics:  recorder,
	})
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Registry:   registry,
		Controller: controller,
		Settings:   settingsStore,
		DefaultURL: transportCfg.DefaultRTMPURL,
		Logger:     logging.WithComponent(logger, "dispatch"),
		Metrics:    recorder,
	})

	queueCfg := reconcile.RedisQueueConfig{
		Addr:       firstNonEmpty(*queueRedisAddr, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_ADDR")),
		Addrs:      splitAndTrim(firstNonEmpty(*queueRedisAddrs, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_ADDRS"))),
		Username:   firstNonEmpty(*queueRedisUsername, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_USERNAME")),
		Password:   firstNonEmpty(*queueRedisPassword, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_PASSWORD")),
		Stream:     firstNonEmpty(*queueRedisStream, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_STREAM")),
		Group:      firstNonEmpty(*queueRedisGroup, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_GROUP")),
		MasterName: firstNonEmpty(*queueRedisMasterName, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_SENTINEL_MASTER")),
		PoolSize:   resolveInt(*queueRedisPoolSize, "LENSLIVE_STATUS_QUEUE_REDIS_POOL_SIZE"),
		TLS: reconcile.RedisTLSConfig{
			CAFile:             firstNonEmpty(*queueRedisTLSCA, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_TLS_CA")),
			CertFile:           firstNonEmpty(*queueRedisTLSCert, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_TLS_CERT")),
			KeyFile:            firstNonEmpty(*queueRedisTLSKey, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_TLS_KEY")),
			ServerName:         firstNonEmpty(*queueRedisTLSServerName, os.Getenv("LENSLIVE_STATUS_QUEUE_REDIS_TLS_SERVER_NAME")),
			InsecureSkipVerify: resolveBool(*queueRedisTLSSkipVerify, "LENSLIVE_STATUS_QUEUE_REDIS_TLS_SKIP_VERIFY"),
		},
	}
	queue, err := configureStatusQueue(firstNonEmpty(*queueDriver, os.Getenv("LENSLIVE_STATUS_QUEUE_DRIVER")), queueCfg, logger)
	if err != nil {
		logger.Error("failed to configure status queue", "error", err)
		os.Exit(1)
	}
	worker := reconcile.NewWorker(queue, reconciler, logging.WithComponent(logger, "status-worker"))

	handler := api.NewHandler(api.Config{
		Registry:       registry,
		Controller:     controller,
		Settings:       settingsStore,
		Reconciler:     reconciler,
		Dispatcher:     dispatcher,
		Transport:      transport,
		SettingsPinger: settingsPinger,
		DefaultURL:     transportCfg.DefaultRTMPURL,
		Logger:         logging.WithComponent(logger, "api"),
	})

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("LENSLIVE_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("LENSLIVE_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:   resolveFloat(*globalRPS, "LENSLIVE_RATE_GLOBAL_RPS"),
			GlobalBurst: resolveInt(*globalBurst, "LENSLIVE_RATE_GLOBAL_BURST"),
			HookLimit:   resolveInt(*hookLimit, "LENSLIVE_RATE_HOOK_LIMIT"),
			HookWindow:  resolveDuration(*hookWindow, "LENSLIVE_RATE_HOOK_WINDOW", time.Minute),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("LENSLIVE_CORS_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	maxIdle := resolveDuration(*sessionMaxIdle, "LENSLIVE_SESSION_MAX_IDLE", 0)
	sweepInterval := resolveDuration(*sessionSweepInterval, "LENSLIVE_SESSION_SWEEP_INTERVAL", 5*time.Minute)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		logger.Info("LensLive coordinator listening", "addr", listenAddr, "mode", serverMode)
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", "error", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := runSessionSweeper(groupCtx, logging.WithComponent(logger, "session-sweeper"), registry, recorder, maxIdle, sweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close status queue", "error", err)
		}
	}
	if settingsCloser != nil {
		if err := settingsCloser(closeCtx); err != nil {
			logger.Warn("failed to close settings store", "error", err)
		}
	}

	logger.Info("server stopped")
}

func configureStatusQueue(driver string, cfg reconcile.RedisQueueConfig, logger *slog.Logger) (reconcile.Queue, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "redis":
		if len(cfg.Addrs) == 0 && strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("redis addr is required for status queue")
		}
		cfg.Logger = logging.WithComponent(logger, "status-queue")
		return reconcile.NewRedisQueue(cfg)
	case "", "memory":
		return reconcile.NewMemoryQueue(128), nil
	default:
		return nil, fmt.Errorf("unsupported status queue driver %q", driver)
	}
}

func resolveSettingsDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "memory", nil
}

func validateProductionSettings(driver, dsn string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres settings driver, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("postgres settings store selected without DSN")
	}
	return nil
}

func resolveSettingsDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("LENSLIVE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
