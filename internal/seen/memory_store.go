package seen

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when Redis is not configured.
// The window does not survive a restart, which matches the weakest guarantee
// the queue contract requires.
type MemoryStore struct {
	window time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryStore creates an in-memory delivery window.
func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = time.Hour
	}
	return &MemoryStore{window: window, entries: map[string]time.Time{}}
}

// Mark records an identifier as delivered.
func (s *MemoryStore) Mark(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[itemID] = time.Now().Add(s.window)
	s.sweepLocked()
	return nil
}

// Seen reports whether an identifier is still inside the window.
func (s *MemoryStore) Seen(_ context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.entries[itemID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expires) {
		delete(s.entries, itemID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) sweepLocked() {
	if len(s.entries) < 4096 {
		return
	}
	now := time.Now()
	for id, expires := range s.entries {
		if now.After(expires) {
			delete(s.entries, id)
		}
	}
}
