package settings

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps per-user destinations in process memory. It is the
// default store for single-instance deployments and tests; entries live until
// restart, matching the durability the coordinator requires.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Set stores or overwrites the destination for the user.
func (s *MemoryStore) Set(_ context.Context, userID, rtmpURL string) error {
	if _, err := ValidateURL(rtmpURL); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[userID] = strings.TrimSpace(rtmpURL)
	s.mu.Unlock()
	return nil
}

// Get returns the stored destination for the user when present.
func (s *MemoryStore) Get(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	value, ok := s.entries[userID]
	s.mu.RUnlock()
	return value, ok, nil
}

// Delete removes the user's entry. Deleting a missing entry is a no-op.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
	return nil
}
