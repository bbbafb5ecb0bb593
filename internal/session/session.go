package session

import (
	"sync"
	"time"

	"lenslive/internal/models"
)

// Handle is the non-owning reference to the live device-session collaborator.
// Implementations deliver short user-visible notifications on the device
// display; they must tolerate being called from multiple goroutines.
type Handle interface {
	Notify(text string, duration time.Duration)
}

// Session is the connection-scoped stream state for one user. All field
// access goes through the session's own mutex so overlapping triggers (a web
// stop racing a voice start) cannot interleave partial updates.
type Session struct {
	userID string
	handle Handle

	mu         sync.RWMutex
	rtmpURL    string
	direct     models.DirectStatus
	managed    *models.ManagedStatus
	lastActive time.Time
}

func newSession(userID string, handle Handle, seedURL string) *Session {
	now := time.Now().UTC()
	return &Session{
		userID:     userID,
		handle:     handle,
		rtmpURL:    seedURL,
		direct:     models.DirectStatus{Phase: models.PhaseStopped, UpdatedAt: now},
		lastActive: now,
	}
}

// UserID returns the stable identifier the session is keyed by.
func (s *Session) UserID() string { return s.userID }

// Handle returns the device-session collaborator used for notifications.
func (s *Session) Handle() Handle { return s.handle }

// RTMPURL returns the effective destination for this session.
func (s *Session) RTMPURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rtmpURL
}

// SetRTMPURL records the resolved destination so subsequent starts within the
// same connection reuse it.
func (s *Session) SetRTMPURL(url string) {
	s.mu.Lock()
	s.rtmpURL = url
	s.mu.Unlock()
}

// Direct returns the current direct-relay status.
func (s *Session) Direct() models.DirectStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct
}

// SetDirect overwrites the direct-relay status, stamping the update time.
func (s *Session) SetDirect(status models.DirectStatus) {
	status.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.direct = status
	s.mu.Unlock()
}

// Managed returns a copy of the managed stream status, or nil when no managed
// stream is in progress.
func (s *Session) Managed() *models.ManagedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.managed == nil {
		return nil
	}
	copied := *s.managed
	return &copied
}

// SetManaged overwrites the managed stream status, stamping the update time.
func (s *Session) SetManaged(status models.ManagedStatus) {
	status.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.managed = &status
	s.mu.Unlock()
}

// ClearManaged marks the managed stream as fully finished. Only the
// reconciler's stopped-event path calls this.
func (s *Session) ClearManaged() {
	s.mu.Lock()
	s.managed = nil
	s.mu.Unlock()
}

// Touch refreshes the session's activity timestamp. Dispatcher entry points
// call it so the stale-session sweeper only reaps genuinely silent sessions.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// LastActive reports when the session last saw device activity.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Info assembles the boundary-facing snapshot of the session's stream state.
func (s *Session) Info() models.StreamInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := models.StreamInfo{
		UserID:       s.userID,
		RTMPURL:      s.rtmpURL,
		DirectStatus: s.direct,
	}
	if s.managed != nil {
		copied := *s.managed
		info.ManagedStatus = &copied
	}
	return info
}
