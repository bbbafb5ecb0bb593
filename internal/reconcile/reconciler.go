package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"lenslive/internal/models"
	"lenslive/internal/observability/metrics"
	"lenslive/internal/session"
)

const notifyDuration = 3 * time.Second

// ReconcilerConfig wires the reconciler's collaborators.
type ReconcilerConfig struct {
	Registry *session.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Reconciler merges transport-delivered status events into per-user session
// state and derives the user-facing notification for each transition. It never
// calls back into the stream controller; it is a state merge plus a side
// effect on the device session handle.
type Reconciler struct {
	registry *session.Registry
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// NewReconciler constructs a Reconciler, defaulting the logger and metrics
// recorder when not supplied.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		registry: cfg.Registry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = metrics.Default()
	}
	return r
}

// Apply routes a queue-delivered event to the matching status handler.
func (r *Reconciler) Apply(event Event) {
	switch event.Kind {
	case EventKindManaged:
		r.OnManagedStatus(event.UserID, event.ManagedStatus())
	case EventKindDirect:
		r.OnDirectStatus(event.UserID, event.DirectStatus())
	default:
		r.logger.Warn("status event with unknown kind dropped", "kind", string(event.Kind), "user_id", event.UserID)
		r.metrics.ObserveDroppedEvent(string(event.Kind))
	}
}

// OnDirectStatus merges a direct-relay status report into the user's session.
// Events for users with no live session are dropped with a warning; that is
// the expected outcome of a disconnect race, not an error. A stopped report
// is normalized so the session always lands in the quiescent terminal phase
// regardless of what the raw event carried.
func (r *Reconciler) OnDirectStatus(userID string, status models.DirectStatus) {
	sess, ok := r.registry.Get(userID)
	if !ok {
		r.logger.Warn("direct status event dropped, no live session", "user_id", userID, "phase", string(status.Phase))
		r.metrics.ObserveDroppedEvent(string(EventKindDirect))
		return
	}
	r.metrics.ObserveStatusEvent(string(EventKindDirect), string(status.Phase))

	if status.Phase == models.PhaseStopped {
		status = models.DirectStatus{Phase: models.PhaseStopped}
	}
	sess.SetDirect(status)
	r.notify(sess, directNotification(status))
}

// OnManagedStatus merges a managed-stream status report into the user's
// session. A stopped report clears the managed record entirely; no other path
// does. An error report keeps the existing record (stream ID and playback
// URLs included) and marks it failed with the message.
func (r *Reconciler) OnManagedStatus(userID string, status models.ManagedStatus) {
	sess, ok := r.registry.Get(userID)
	if !ok {
		r.logger.Warn("managed status event dropped, no live session", "user_id", userID, "phase", string(status.Phase))
		r.metrics.ObserveDroppedEvent(string(EventKindManaged))
		return
	}
	r.metrics.ObserveStatusEvent(string(EventKindManaged), string(status.Phase))

	switch status.Phase {
	case models.PhaseStopped:
		sess.ClearManaged()
		r.notify(sess, "Managed stream stopped")
	case models.PhaseError:
		merged := status
		if current := sess.Managed(); current != nil {
			merged = *current
			merged.Phase = models.PhaseError
			merged.Message = status.Message
		}
		sess.SetManaged(merged)
		text := "Managed stream error"
		if merged.Message != "" {
			text = fmt.Sprintf("Managed stream error: %s", merged.Message)
		}
		r.notify(sess, text)
	default:
		sess.SetManaged(status)
		r.notify(sess, fmt.Sprintf("Managed stream %s", status.Phase))
	}
}

func directNotification(status models.DirectStatus) string {
	switch status.Phase {
	case models.PhaseInitializing:
		return "Stream initializing"
	case models.PhaseActive:
		return "Stream active"
	case models.PhaseStopped:
		return "Stream stopped"
	default:
		if status.ErrorDetail != "" {
			return fmt.Sprintf("Stream error: %s", status.ErrorDetail)
		}
		return "Stream error"
	}
}

func (r *Reconciler) notify(sess *session.Session, text string) {
	handle := sess.Handle()
	if handle == nil {
		return
	}
	handle.Notify(text, notifyDuration)
	r.metrics.ObserveNotification()
}
