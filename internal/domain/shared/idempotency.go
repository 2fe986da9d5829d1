package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers the result recorded for a key so a duplicate
// attempt can be detected and answered with the original result.
type IdempotencyStore interface {
	// Put stores the value for a key with a TTL, without overwriting.
	// Returns false when the key was already present.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the stored value and whether the key is present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Close releases resources held by the store.
	Close() error
}
