// Package ipquota counts anonymous traffic per client address per UTC day.
package ipquota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/db"
	"github.com/kailas-cloud/tokenguard/internal/domain"
)

// DefaultLimit is the daily request allowance per address.
const DefaultLimit = 1000

const (
	keyPrefix = "anon_usage:"
	dayTTL    = 24 * time.Hour
)

// store is the consumer interface for per-address counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrWithExpiry(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// Store implements the per-address daily counter on top of DB (INCRBY + EXPIRE NX, GET).
type Store struct {
	store store
	limit int64
	now   func() time.Time
}

// New creates an ipquota store.
func New(s store, limit int64, now func() time.Time) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if now == nil {
		now = time.Now
	}
	return &Store{store: s, limit: limit, now: now}
}

// Key returns the counter key for addr on the day containing t.
func Key(addr string, t time.Time) string {
	return keyPrefix + t.UTC().Format(time.DateOnly) + ":" + addr
}

// Limit returns the configured daily allowance.
func (s *Store) Limit() int64 { return s.limit }

// Check rejects the address once today's count has reached the limit.
func (s *Store) Check(ctx context.Context, addr string) error {
	used, err := s.Get(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if used >= s.limit {
		return domain.NewQuotaExceeded(domain.ScopeIPDaily, used, s.limit)
	}
	return nil
}

// Record atomically increments today's count. The first write of the day sets the TTL.
func (s *Store) Record(ctx context.Context, addr string, n int64) (int64, error) {
	key := Key(addr, s.now())
	cur, err := s.store.IncrWithExpiry(ctx, key, n, dayTTL)
	if err != nil {
		return 0, fmt.Errorf("ipquota record %s: %w", key, err)
	}
	return cur, nil
}

// Get returns today's count. Returns 0 if the key does not exist.
func (s *Store) Get(ctx context.Context, addr string) (int64, error) {
	key := Key(addr, s.now())
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("ipquota GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ipquota GET %s parse: %w", key, err)
	}
	return val, nil
}

// Remaining returns what is left of today's allowance, never negative.
func (s *Store) Remaining(ctx context.Context, addr string) (int64, error) {
	used, err := s.Get(ctx, addr)
	if err != nil {
		return 0, err
	}
	return max(s.limit-used, 0), nil
}
