package testsupport

import (
	"context"
	"sync"

	"lenslive/internal/stream"
)

// TransportStub is a scriptable stream.Transport implementation for tests. It
// records every call and returns the errors and results configured on its
// fields.
type TransportStub struct {
	mu sync.Mutex

	StartDirectErr  error
	StopDirectErr   error
	StartManagedErr error
	StopManagedErr  error
	ManagedResult   stream.ManagedStream
	ManagedActive   bool
	Health          []stream.HealthStatus

	startDirectCalls  []stream.StartDirectParams
	stopDirectCalls   []string
	startManagedCalls []string
	stopManagedCalls  []string
}

// NewTransportStub constructs a TransportStub that accepts every call.
func NewTransportStub() *TransportStub {
	return &TransportStub{}
}

// StartDirect records the call and returns the scripted error.
func (t *TransportStub) StartDirect(ctx context.Context, params stream.StartDirectParams) error {
	t.mu.Lock()
	t.startDirectCalls = append(t.startDirectCalls, params)
	t.mu.Unlock()
	return t.StartDirectErr
}

// StopDirect records the call and returns the scripted error.
func (t *TransportStub) StopDirect(ctx context.Context, userID string) error {
	t.mu.Lock()
	t.stopDirectCalls = append(t.stopDirectCalls, userID)
	t.mu.Unlock()
	return t.StopDirectErr
}

// StartManaged records the call and returns the scripted result or error.
func (t *TransportStub) StartManaged(ctx context.Context, userID string) (stream.ManagedStream, error) {
	t.mu.Lock()
	t.startManagedCalls = append(t.startManagedCalls, userID)
	t.mu.Unlock()
	if t.StartManagedErr != nil {
		return stream.ManagedStream{}, t.StartManagedErr
	}
	return t.ManagedResult, nil
}

// StopManaged records the call and returns the scripted error.
func (t *TransportStub) StopManaged(ctx context.Context, userID string) error {
	t.mu.Lock()
	t.stopManagedCalls = append(t.stopManagedCalls, userID)
	t.mu.Unlock()
	return t.StopManagedErr
}

// IsManagedActive reports the scripted active flag.
func (t *TransportStub) IsManagedActive(ctx context.Context, userID string) (bool, error) {
	return t.ManagedActive, nil
}

// HealthChecks returns the scripted health snapshot.
func (t *TransportStub) HealthChecks(ctx context.Context) []stream.HealthStatus {
	if t.Health != nil {
		return t.Health
	}
	return []stream.HealthStatus{{Component: "transport", Status: "ok"}}
}

// StartDirectCalls returns the recorded direct-start parameters in order.
func (t *TransportStub) StartDirectCalls() []stream.StartDirectParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]stream.StartDirectParams, len(t.startDirectCalls))
	copy(out, t.startDirectCalls)
	return out
}

// StopDirectCalls returns the user IDs passed to StopDirect in order.
func (t *TransportStub) StopDirectCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.stopDirectCalls))
	copy(out, t.stopDirectCalls)
	return out
}

// StartManagedCalls returns the user IDs passed to StartManaged in order.
func (t *TransportStub) StartManagedCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.startManagedCalls))
	copy(out, t.startManagedCalls)
	return out
}

// StopManagedCalls returns the user IDs passed to StopManaged in order.
func (t *TransportStub) StopManagedCalls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.stopManagedCalls))
	copy(out, t.stopManagedCalls)
	return out
}
