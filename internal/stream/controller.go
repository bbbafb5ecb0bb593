package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lenslive/internal/models"
	"lenslive/internal/observability/metrics"
	"lenslive/internal/session"
)

// ControllerConfig wires the collaborators a Controller needs.
type ControllerConfig struct {
	Registry   *session.Registry
	Transport  Transport
	DefaultURL string
	Video      models.VideoConfig
	Audio      models.AudioConfig
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// Controller executes start/stop operations against the streaming transport
// and records the resulting intent on the user's session. Every operation is a
// single attempt: failures are mapped to an error phase on the session and
// returned to the caller, never retried here.
type Controller struct {
	registry   *session.Registry
	transport  Transport
	defaultURL string
	video      models.VideoConfig
	audio      models.AudioConfig
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// NewController constructs a Controller from the provided configuration.
func NewController(cfg ControllerConfig) *Controller {
	controller := &Controller{
		registry:   cfg.Registry,
		transport:  cfg.Transport,
		defaultURL: strings.TrimSpace(cfg.DefaultURL),
		video:      cfg.Video,
		audio:      cfg.Audio,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if controller.transport == nil {
		controller.transport = NoopTransport{}
	}
	if controller.defaultURL == "" {
		controller.defaultURL = DefaultRTMPURL
	}
	if controller.logger == nil {
		controller.logger = slog.Default()
	}
	if controller.metrics == nil {
		controller.metrics = metrics.Default()
	}
	return controller
}

// DefaultURL exposes the process-wide fallback destination.
func (c *Controller) DefaultURL() string {
	return c.defaultURL
}

// StartDirect resolves the effective destination (override, then session URL,
// then process default), persists it on the session, and issues a start
// request. The session's direct phase is left untouched on success: the
// authoritative transition arrives later on the status channel.
func (c *Controller) StartDirect(ctx context.Context, userID, urlOverride string) error {
	sess, ok := c.registry.Get(userID)
	if !ok {
		return fmt.Errorf("user %s: %w", userID, session.ErrNoSession)
	}

	resolved := strings.TrimSpace(urlOverride)
	if resolved == "" {
		resolved = sess.RTMPURL()
	}
	if resolved == "" {
		resolved = c.defaultURL
	}
	sess.SetRTMPURL(resolved)

	c.metrics.ObserveStreamOp("direct_start")
	err := c.transport.StartDirect(ctx, StartDirectParams{
		UserID: userID,
		URL:    resolved,
		Video:  c.video,
		Audio:  c.audio,
	})
	if err != nil {
		c.metrics.ObserveStreamOpFailure("direct_start")
		sess.SetDirect(models.DirectStatus{Phase: models.PhaseError, ErrorDetail: err.Error()})
		return fmt.Errorf("start direct stream: %w", err)
	}
	c.logger.Info("direct stream start requested", "user_id", userID, "rtmp_url", resolved)
	return nil
}

// StopDirect issues a stop request. Stopping an already stopped stream is not
// rejected locally; the transport decides whether anything needs tearing down,
// which keeps orphaned relays cleanable after a status desynchronization.
func (c *Controller) StopDirect(ctx context.Context, userID string) error {
	sess, ok := c.registry.Get(userID)
	if !ok {
		return fmt.Errorf("user %s: %w", userID, session.ErrNoSession)
	}

	c.metrics.ObserveStreamOp("direct_stop")
	if err := c.transport.StopDirect(ctx, userID); err != nil {
		c.metrics.ObserveStreamOpFailure("direct_stop")
		sess.SetDirect(models.DirectStatus{Phase: models.PhaseError, ErrorDetail: err.Error()})
		return fmt.Errorf("stop direct stream: %w", err)
	}
	c.logger.Info("direct stream stop requested", "user_id", userID)
	return nil
}

// StartManaged provisions a managed stream. Unlike StartDirect, the managed
// status is seeded eagerly on success because the caller needs the playback
// URLs synchronously.
func (c *Controller) StartManaged(ctx context.Context, userID string) (ManagedStream, error) {
	sess, ok := c.registry.Get(userID)
	if !ok {
		return ManagedStream{}, fmt.Errorf("user %s: %w", userID, session.ErrNoSession)
	}

	c.metrics.ObserveStreamOp("managed_start")
	result, err := c.transport.StartManaged(ctx, userID)
	if err != nil {
		c.metrics.ObserveStreamOpFailure("managed_start")
		sess.SetManaged(models.ManagedStatus{Phase: models.PhaseError, Message: err.Error()})
		return ManagedStream{}, fmt.Errorf("start managed stream: %w", err)
	}
	sess.SetManaged(models.ManagedStatus{
		Phase:    models.PhaseInitializing,
		StreamID: result.StreamID,
		URLs:     result.URLs,
	})
	c.logger.Info("managed stream start requested", "user_id", userID, "stream_id", result.StreamID)
	return result, nil
}

// StopManaged issues a managed stop request. The managed status is NOT
// cleared here: only an observed stopped event clears it, so a stray late
// status event cannot resurrect a stream the caller believes is gone.
func (c *Controller) StopManaged(ctx context.Context, userID string) error {
	sess, ok := c.registry.Get(userID)
	if !ok {
		return fmt.Errorf("user %s: %w", userID, session.ErrNoSession)
	}

	c.metrics.ObserveStreamOp("managed_stop")
	if err := c.transport.StopManaged(ctx, userID); err != nil {
		c.metrics.ObserveStreamOpFailure("managed_stop")
		if current := sess.Managed(); current != nil {
			current.Phase = models.PhaseError
			current.Message = err.Error()
			sess.SetManaged(*current)
		}
		return fmt.Errorf("stop managed stream: %w", err)
	}
	c.logger.Info("managed stream stop requested", "user_id", userID)
	return nil
}
