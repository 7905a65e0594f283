package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Typed stores JSON-encoded values of type T. An entry that fails to decode
// is logged and reported as a miss so a poisoned key never reaches callers.
type Typed[T any] struct {
	store Store
	log   *slog.Logger
}

func NewTyped[T any](store Store, log *slog.Logger) *Typed[T] {
	return &Typed[T]{store: store, log: log}
}

func (c *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return zero, false, nil
	}
	return v, true, nil
}

func (c *Typed[T]) Set(ctx context.Context, key string, v T, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.store.Set(ctx, key, b, ttl)
}

func (c *Typed[T]) Delete(ctx context.Context, keys ...string) error {
	return c.store.Delete(ctx, keys...)
}
