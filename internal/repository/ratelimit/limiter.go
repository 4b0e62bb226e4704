// Package ratelimit implements a fixed-window request limiter over the shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/domain"
)

// DefaultPerMinute is the request allowance per principal per minute.
const DefaultPerMinute = 10

// windowTTL outlives the window so a late increment never resurrects a stale key.
const windowTTL = 2 * time.Minute

// store is the consumer interface for window counters (ISP).
type store interface {
	IncrWithExpiry(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// Limiter counts requests per principal in one-minute windows.
type Limiter struct {
	store store
	scope string
	limit int64
	now   func() time.Time
}

// New creates a Limiter. scope namespaces the keys, e.g. "chat".
func New(s store, scope string, perMinute int64, now func() time.Time) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: s, scope: scope, limit: perMinute, now: now}
}

func (l *Limiter) key(principal string, t time.Time) string {
	return "ratelimit:" + l.scope + ":" + principal + ":" + strconv.FormatInt(t.Unix()/60, 10)
}

// Allow counts one request and returns ErrRateLimited once the window is full.
func (l *Limiter) Allow(ctx context.Context, principal string) error {
	key := l.key(principal, l.now())
	n, err := l.store.IncrWithExpiry(ctx, key, 1, windowTTL)
	if err != nil {
		return fmt.Errorf("%w: ratelimit %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	if n > l.limit {
		return fmt.Errorf("%w: %d requests in window, limit %d", domain.ErrRateLimited, n, l.limit)
	}
	return nil
}
