package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrAlreadyConnected is returned when creating a session for a user who
	// already has a live entry. Callers must tear the prior entry down first.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrNoSession is returned by operations that require a connected user.
	ErrNoSession = errors.New("no active session")
)

// Registry is the live table of connected users. The table itself is guarded
// by a RWMutex; per-entry mutation happens behind each Session's own lock, so
// registry callers never hold the table lock while touching session state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create inserts a session for the user, seeded with the provided destination.
// The new session reports a stopped direct stream and no managed stream.
func (r *Registry) Create(userID string, handle Handle, seedURL string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[userID]; exists {
		return nil, ErrAlreadyConnected
	}
	sess := newSession(userID, handle, seedURL)
	r.sessions[userID] = sess
	return sess, nil
}

// Get returns the live session for the user when present.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[userID]
	r.mu.RUnlock()
	return sess, ok
}

// Remove deletes the user's session. Removing a missing entry is a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()
}

// List returns the connected sessions ordered by user ID for stable output.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID() < sessions[j].UserID()
	})
	return sessions
}

// Len reports the number of connected users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PurgeStale removes sessions with no activity since the cutoff and returns
// the user IDs that were reaped. It backstops disconnect events that never
// arrived, so a dead device cannot pin registry state forever.
func (r *Registry) PurgeStale(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	var reaped []string
	for userID, sess := range r.sessions {
		if sess.LastActive().Before(cutoff) {
			delete(r.sessions, userID)
			reaped = append(reaped, userID)
		}
	}
	sort.Strings(reaped)
	return reaped
}
