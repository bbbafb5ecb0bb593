package testsupport

import (
	"context"
	"sync"
)

// SettingsStoreStub is an in-memory settings.Store implementation intended
// for tests. Unlike the production memory store it performs no validation and
// can be scripted to fail, so handler error paths can be exercised directly.
type SettingsStoreStub struct {
	mu      sync.RWMutex
	entries map[string]string

	SetErr    error
	GetErr    error
	DeleteErr error
}

// NewSettingsStoreStub constructs a SettingsStoreStub with empty state.
func NewSettingsStoreStub() *SettingsStoreStub {
	return &SettingsStoreStub{entries: make(map[string]string)}
}

// Set records the destination for the user, or returns the scripted error.
func (s *SettingsStoreStub) Set(_ context.Context, userID, rtmpURL string) error {
	if s.SetErr != nil {
		return s.SetErr
	}
	s.mu.Lock()
	s.entries[userID] = rtmpURL
	s.mu.Unlock()
	return nil
}

// Get returns the stored destination, or the scripted error.
func (s *SettingsStoreStub) Get(_ context.Context, userID string) (string, bool, error) {
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	s.mu.RLock()
	value, ok := s.entries[userID]
	s.mu.RUnlock()
	return value, ok, nil
}

// Delete removes the user's entry, or returns the scripted error.
func (s *SettingsStoreStub) Delete(_ context.Context, userID string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
	return nil
}

// Seed inserts an entry without going through Set.
func (s *SettingsStoreStub) Seed(userID, rtmpURL string) {
	s.mu.Lock()
	s.entries[userID] = rtmpURL
	s.mu.Unlock()
}
