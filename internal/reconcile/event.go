package reconcile

import (
	"time"

	"lenslive/internal/models"
)

// EventKind distinguishes the two status channels the transport reports on.
type EventKind string

const (
	// EventKindDirect carries lifecycle updates for a direct RTMP relay.
	EventKindDirect EventKind = "direct"
	// EventKindManaged carries lifecycle updates for a managed stream.
	EventKindManaged EventKind = "managed"
)

// Event is the wire representation of a transport status report flowing
// through the status queue.
type Event struct {
	Kind        EventKind            `json:"kind"`
	UserID      string               `json:"userId"`
	Phase       string               `json:"phase"`
	ErrorDetail string               `json:"errorDetail,omitempty"`
	StreamID    string               `json:"streamId,omitempty"`
	URLs        *models.PlaybackURLs `json:"urls,omitempty"`
	Message     string               `json:"message,omitempty"`
	OccurredAt  time.Time            `json:"occurredAt"`
}

// DirectStatus converts the event into the session-facing direct status.
func (e Event) DirectStatus() models.DirectStatus {
	return models.DirectStatus{
		Phase:       models.ParsePhase(e.Phase),
		ErrorDetail: e.ErrorDetail,
	}
}

// ManagedStatus converts the event into the session-facing managed status.
func (e Event) ManagedStatus() models.ManagedStatus {
	status := models.ManagedStatus{
		Phase:    models.ParsePhase(e.Phase),
		StreamID: e.StreamID,
		Message:  e.Message,
	}
	if e.URLs != nil {
		status.URLs = *e.URLs
	}
	return status
}
