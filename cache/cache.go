package cache

import (
	"context"
	"sync"
	"time"

	"telemetry-server/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store used when no redis URL is configured
// and in tests. Expiry follows the injected clock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   c,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if e.expired(m.clock.Now()) {
		m.mu.Lock()
		// re-check: a concurrent Set may have replaced it
		if cur, ok := m.entries[key]; ok && cur.expired(m.clock.Now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// PurgeExpired drops expired entries and returns how many were removed.
func (m *MemoryStore) PurgeExpired() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns statistics about the current cache
func (m *MemoryStore) Stats(_ context.Context) (map[string]interface{}, error) {
	purged := m.PurgeExpired()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"backend":      "memory",
		"total_keys":   len(m.entries),
		"purged_stale": purged,
	}, nil
}
