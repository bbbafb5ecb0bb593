package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lenslive/internal/observability/metrics"
	"lenslive/internal/session"
	"lenslive/internal/settings"
	"lenslive/internal/stream"
)

const failureNotifyDuration = 5 * time.Second

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Registry   *session.Registry
	Controller *stream.Controller
	Settings   settings.Store
	DefaultURL string
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// Dispatcher maps external triggers — device connects, finalized transcript
// segments, disconnects — onto stream controller calls. Trigger paths swallow
// controller failures into device notifications: a failed auto-start must not
// fail session setup, and a voice command has no caller to report back to.
type Dispatcher struct {
	registry   *session.Registry
	controller *stream.Controller
	settings   settings.Store
	defaultURL string
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// NewDispatcher constructs a Dispatcher from the provided configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		registry:   cfg.Registry,
		controller: cfg.Controller,
		settings:   cfg.Settings,
		defaultURL: strings.TrimSpace(cfg.DefaultURL),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if d.defaultURL == "" {
		d.defaultURL = stream.DefaultRTMPURL
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.metrics == nil {
		d.metrics = metrics.Default()
	}
	return d
}

// HandleConnect registers a session for the user and auto-starts the direct
// relay. The seed destination comes from the persisted settings when present,
// otherwise the process default. A prior live entry for the same user is torn
// down first, so a device reconnecting after a missed disconnect still gets a
// fresh session. Auto-start failures become a device notification; the
// connect itself still succeeds.
func (d *Dispatcher) HandleConnect(ctx context.Context, userID string, handle session.Handle) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	if _, exists := d.registry.Get(userID); exists {
		d.logger.Warn("replacing live session on reconnect", "user_id", userID)
		d.registry.Remove(userID)
		d.metrics.SessionDisconnected()
	}

	seedURL := d.defaultURL
	if d.settings != nil {
		if stored, ok, err := d.settings.Get(ctx, userID); err != nil {
			d.logger.Error("settings lookup failed, using default url", "user_id", userID, "error", err)
		} else if ok {
			seedURL = stored
		}
	}

	if _, err := d.registry.Create(userID, handle, seedURL); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	d.metrics.SessionConnected()
	d.logger.Info("session connected", "user_id", userID, "rtmp_url", seedURL)

	if err := d.controller.StartDirect(ctx, userID, ""); err != nil {
		d.logger.Warn("auto-start failed on connect", "user_id", userID, "error", err)
		d.notify(handle, fmt.Sprintf("Stream failed to start: %s", err))
	}
	return nil
}

// HandleDisconnect removes the user's session. Persisted settings are left
// untouched so the next connect reuses them. Removing an unknown user is a
// no-op.
func (d *Dispatcher) HandleDisconnect(userID, reason string) {
	if _, exists := d.registry.Get(userID); !exists {
		return
	}
	d.registry.Remove(userID)
	d.metrics.SessionDisconnected()
	d.logger.Info("session disconnected", "user_id", userID, "reason", reason)
}

// HandleTranscript evaluates one transcript segment. Non-final segments only
// refresh session activity; they are never dispatched. A finalized segment
// triggers at most one controller call, with the stop phrase taking
// precedence over start when both appear. The matched command is returned so
// the session layer can surface it.
func (d *Dispatcher) HandleTranscript(ctx context.Context, userID, text string, isFinal bool) Command {
	sess, ok := d.registry.Get(userID)
	if !ok {
		d.logger.Warn("transcript for unknown session dropped", "user_id", userID)
		return CommandNone
	}
	sess.Touch()
	if !isFinal {
		return CommandNone
	}

	command := MatchTranscript(text)
	switch command {
	case CommandStop:
		d.metrics.ObserveVoiceCommand(string(CommandStop))
		if err := d.controller.StopDirect(ctx, userID); err != nil {
			d.logger.Warn("voice stop failed", "user_id", userID, "error", err)
			d.notify(sess.Handle(), fmt.Sprintf("Stream failed to stop: %s", err))
		}
	case CommandStart:
		d.metrics.ObserveVoiceCommand(string(CommandStart))
		if err := d.controller.StartDirect(ctx, userID, ""); err != nil {
			d.logger.Warn("voice start failed", "user_id", userID, "error", err)
			d.notify(sess.Handle(), fmt.Sprintf("Stream failed to start: %s", err))
		}
	}
	return command
}

func (d *Dispatcher) notify(handle session.Handle, text string) {
	if handle == nil {
		return
	}
	handle.Notify(text, failureNotifyDuration)
	d.metrics.ObserveNotification()
}
