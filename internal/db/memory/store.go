// Package memory is an in-process db.Store for single-node deployments and tests.
// It honours key expiry lazily on access.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	value     string
	hash      map[string]string
	expiresAt time.Time // zero means no expiry
}

// Store keeps all keys in a mutex-guarded map.
type Store struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{data: make(map[string]*entry), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close drops all keys.
func (s *Store) Close() {
	s.mu.Lock()
	s.data = make(map[string]*entry)
	s.mu.Unlock()
}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// lookup returns a live entry, purging it if expired. Caller holds mu.
func (s *Store) lookup(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

// HSetWithTTL sets hash fields and the key expiry.
func (s *Store) HSetWithTTL(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.hsetLocked(key, fields)
	e.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *Store) hsetLocked(key string, fields map[string]string) *entry {
	e := s.lookup(key)
	if e == nil {
		e = &entry{}
		s.data[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return e
}

// HGetAll returns a copy of the hash. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if e := s.lookup(key); e != nil {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

// Get retrieves a string value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil || e.hash != nil {
		return nil, db.ErrKeyNotFound
	}
	return []byte(e.value), nil
}

// IncrWithExpiry increments an integer string value and returns the new value.
// The expiry is set only when the key has none.
func (s *Store) IncrWithExpiry(_ context.Context, key string, val int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{value: "0"}
		s.data[key] = e
	}
	if e.hash != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: strconv.ErrSyntax}
	}
	cur, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	}
	cur += val
	e.value = strconv.FormatInt(cur, 10)
	if e.expiresAt.IsZero() {
		e.expiresAt = s.now().Add(ttl)
	}
	return cur, nil
}

// DecrFieldFloor decrements a hash field under the store lock, clamped at zero.
func (s *Store) DecrFieldFloor(_ context.Context, key, field string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil || e.hash == nil {
		return 0, db.ErrKeyNotFound
	}
	cur, err := strconv.ParseInt(e.hash[field], 10, 64)
	if err != nil {
		cur = 0
	}
	if cur <= 0 {
		return 0, db.ErrExhausted
	}
	next := max(cur-amount, 0)
	e.hash[field] = strconv.FormatInt(next, 10)
	return next, nil
}
