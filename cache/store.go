package cache

import (
	"context"
	"time"
)

// Store is a key/value cache with per-key expiry. It accelerates reads and
// is never the source of truth.
type Store interface {
	// Get returns the raw value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Stater is implemented by stores that can describe their contents.
type Stater interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}
