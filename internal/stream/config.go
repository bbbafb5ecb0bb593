package stream

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"lenslive/internal/models"
)

// DefaultRTMPURL is the process-wide fallback destination used when neither
// persistent settings nor the session supplies one.
const DefaultRTMPURL = "rtmp://localhost/live/stream"

// Config stores connectivity information for the HTTP transport plus the
// encode parameters attached to direct starts.
type Config struct {
	BaseURL        string
	Token          string
	DefaultRTMPURL string
	Video          models.VideoConfig
	Audio          models.AudioConfig
	HTTPClient     *http.Client
	HealthEndpoint string
	RequestTimeout time.Duration
}

// LoadConfigFromEnv initialises a Config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:        strings.TrimSpace(os.Getenv("LENSLIVE_TRANSPORT_API")),
		Token:          strings.TrimSpace(os.Getenv("LENSLIVE_TRANSPORT_TOKEN")),
		DefaultRTMPURL: strings.TrimSpace(os.Getenv("LENSLIVE_DEFAULT_RTMP_URL")),
		HealthEndpoint: strings.TrimSpace(os.Getenv("LENSLIVE_TRANSPORT_HEALTH")),
		RequestTimeout: 10 * time.Second,
		Video:          models.VideoConfig{Width: 1280, Height: 720, FPS: 30, BitrateK: 2500},
		Audio:          models.AudioConfig{SampleRate: 48000, Channels: 1, BitrateK: 128},
	}

	if cfg.DefaultRTMPURL == "" {
		cfg.DefaultRTMPURL = DefaultRTMPURL
	}
	if cfg.HealthEndpoint == "" {
		cfg.HealthEndpoint = "/healthz"
	}

	if timeout := strings.TrimSpace(os.Getenv("LENSLIVE_TRANSPORT_TIMEOUT")); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse LENSLIVE_TRANSPORT_TIMEOUT: %w", err)
		}
		if parsed > 0 {
			cfg.RequestTimeout = parsed
		}
	}

	var err error
	if cfg.Video.Width, err = envInt("LENSLIVE_VIDEO_WIDTH", cfg.Video.Width); err != nil {
		return Config{}, err
	}
	if cfg.Video.Height, err = envInt("LENSLIVE_VIDEO_HEIGHT", cfg.Video.Height); err != nil {
		return Config{}, err
	}
	if cfg.Video.FPS, err = envInt("LENSLIVE_VIDEO_FPS", cfg.Video.FPS); err != nil {
		return Config{}, err
	}
	if cfg.Video.BitrateK, err = envInt("LENSLIVE_VIDEO_BITRATE_KBPS", cfg.Video.BitrateK); err != nil {
		return Config{}, err
	}
	if cfg.Audio.SampleRate, err = envInt("LENSLIVE_AUDIO_SAMPLE_RATE", cfg.Audio.SampleRate); err != nil {
		return Config{}, err
	}
	if cfg.Audio.Channels, err = envInt("LENSLIVE_AUDIO_CHANNELS", cfg.Audio.Channels); err != nil {
		return Config{}, err
	}
	if cfg.Audio.BitrateK, err = envInt("LENSLIVE_AUDIO_BITRATE_KBPS", cfg.Audio.BitrateK); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return parsed, nil
}

// Enabled reports whether enough configuration exists to talk to an external
// streaming transport.
func (c Config) Enabled() bool {
	return c.BaseURL != ""
}

// NewHTTPTransport constructs a Transport backed by the transport's REST API.
func (c Config) NewHTTPTransport() (*HTTPTransport, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("transport base URL is required")
	}
	transport := &HTTPTransport{config: c}
	if transport.config.HTTPClient == nil {
		transport.config.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
	return transport, nil
}
