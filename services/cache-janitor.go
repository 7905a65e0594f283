package services

import (
	"context"
	"log/slog"
	"time"
)

// Purger drops expired cache entries and reports how many went.
type Purger interface {
	PurgeExpired() int
}

// CacheJanitor periodically sweeps an in-process cache so expired entries
// that are never read again do not pile up.
type CacheJanitor struct {
	cache    Purger
	interval time.Duration
	log      *slog.Logger
}

func NewCacheJanitor(cache Purger, interval time.Duration, log *slog.Logger) *CacheJanitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CacheJanitor{
		cache:    cache,
		interval: interval,
		log:      log,
	}
}

// Start sweeps every interval until ctx is cancelled.
func (j *CacheJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep()
			}
		}
	}()
}

func (j *CacheJanitor) Sweep() int {
	n := j.cache.PurgeExpired()
	if n > 0 {
		j.log.Debug("purged expired cache entries", "count", n)
	}
	return n
}
