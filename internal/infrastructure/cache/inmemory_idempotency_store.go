package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value  []byte
	expiry time.Time
}

// InMemoryIdempotencyStore is a process-local fallback used in tests and
// when Redis is not configured
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewInMemoryIdempotencyStore creates an empty store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{entries: make(map[string]memoryEntry)}
}

// Put stores a value without overwriting; false when already present
func (s *InMemoryIdempotencyStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict()
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiry: time.Now().Add(ttl)}
	return true, nil
}

// Get returns the stored value and whether the key is present
func (s *InMemoryIdempotencyStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Close is a no-op for the in-memory store
func (s *InMemoryIdempotencyStore) Close() error {
	return nil
}

// evict drops expired entries; callers hold the lock
func (s *InMemoryIdempotencyStore) evict() {
	now := time.Now()
	for k, entry := range s.entries {
		if now.After(entry.expiry) {
			delete(s.entries, k)
		}
	}
}
