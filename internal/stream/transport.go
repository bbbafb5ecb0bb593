package stream

import (
	"context"

	"lenslive/internal/models"
)

// StartDirectParams captures everything the transport needs to begin relaying
// a user's live feed to a single RTMP endpoint.
type StartDirectParams struct {
	UserID string             `json:"userId"`
	URL    string             `json:"rtmpUrl"`
	Video  models.VideoConfig `json:"video"`
	Audio  models.AudioConfig `json:"audio"`
}

// ManagedStream summarizes the resources provisioned by a successful managed
// start: a transport-assigned stream ID plus ready-made playback endpoints.
type ManagedStream struct {
	StreamID string              `json:"streamId"`
	URLs     models.PlaybackURLs `json:"urls"`
}

// HealthStatus captures the availability of an external dependency involved
// in stream coordination.
type HealthStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// Transport is the streaming collaborator contract. Calls are single-attempt
// requests: completion means the transport accepted the request, not that the
// stream reached its target phase — phase changes arrive later on the status
// channel.
//
// Implementations should be safe for concurrent use.
type Transport interface {
	// StartDirect asks the transport to begin relaying to the given endpoint.
	StartDirect(ctx context.Context, params StartDirectParams) error

	// StopDirect asks the transport to stop any relay for the user. Stopping
	// a stream that is not running is the transport's call to make; callers
	// stay permissive so orphaned streams can be cleaned up.
	StopDirect(ctx context.Context, userID string) error

	// StartManaged provisions a managed stream and returns its playback URLs.
	StartManaged(ctx context.Context, userID string) (ManagedStream, error)

	// StopManaged asks the transport to tear down the user's managed stream.
	StopManaged(ctx context.Context, userID string) error

	// IsManagedActive reports whether the transport believes a managed stream
	// is currently running for the user.
	IsManagedActive(ctx context.Context, userID string) (bool, error)

	// HealthChecks returns a snapshot of transport dependency health.
	HealthChecks(ctx context.Context) []HealthStatus
}

// NoopTransport is a Transport used in tests and in deployments where the
// streaming backend is not configured. It performs no external calls and
// returns benign defaults.
type NoopTransport struct{}

// StartDirect implements Transport by accepting every request.
func (NoopTransport) StartDirect(ctx context.Context, params StartDirectParams) error {
	return nil
}

// StopDirect implements Transport by performing no work.
func (NoopTransport) StopDirect(ctx context.Context, userID string) error {
	return nil
}

// StartManaged implements Transport by returning an empty ManagedStream.
func (NoopTransport) StartManaged(ctx context.Context, userID string) (ManagedStream, error) {
	return ManagedStream{}, nil
}

// StopManaged implements Transport by performing no work.
func (NoopTransport) StopManaged(ctx context.Context, userID string) error {
	return nil
}

// IsManagedActive implements Transport by reporting no active stream.
func (NoopTransport) IsManagedActive(ctx context.Context, userID string) (bool, error) {
	return false, nil
}

// HealthChecks reports that stream coordination is disabled.
func (NoopTransport) HealthChecks(ctx context.Context) []HealthStatus {
	return []HealthStatus{{Component: "transport", Status: "disabled"}}
}
