// Package anonymous keeps anonymous session quotas in the shared key-value store.
package anonymous

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/tokenguard/internal/db"
	"github.com/kailas-cloud/tokenguard/internal/domain"
	domanon "github.com/kailas-cloud/tokenguard/internal/domain/anonymous"
)

// Key layout shared with other service instances.
const (
	KeyPrefix      = "anonymous:"
	FieldRemaining = "quota_remaining"
	FieldResetAt   = "quota_reset_at"
)

// Defaults for newly issued tokens.
const (
	DefaultQuota = 1000
	DefaultTTL   = 24 * time.Hour
)

// store is the consumer interface for anonymous token operations (ISP).
type store interface {
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	DecrFieldFloor(ctx context.Context, key, field string, amount int64) (int64, error)
}

// Config holds token issuance parameters.
type Config struct {
	Quota int64
	TTL   time.Duration
}

// Store holds no local state; the key-value store owns token lifetime.
type Store struct {
	db    store
	cfg   Config
	now   func() time.Time
	newID func() string
}

// New creates a Store.
func New(s store, cfg Config, now func() time.Time) *Store {
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultQuota
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Store{db: s, cfg: cfg, now: now, newID: uuid.NewString}
}

func key(id string) string { return KeyPrefix + id }

// Issue creates a fresh token with the full quota and a TTL on the whole record.
func (s *Store) Issue(ctx context.Context) (domanon.Token, error) {
	now := s.now().UTC()
	tok := domanon.Token{
		ID:             s.newID(),
		QuotaRemaining: s.cfg.Quota,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.cfg.TTL),
	}
	err := s.db.HSetWithTTL(ctx, key(tok.ID), map[string]string{
		FieldRemaining: strconv.FormatInt(tok.QuotaRemaining, 10),
		FieldResetAt:   tok.ExpiresAt.Format(time.RFC3339),
	}, s.cfg.TTL)
	if err != nil {
		return domanon.Token{}, fmt.Errorf("%w: issue token: %w", domain.ErrStoreUnavailable, err)
	}
	return tok, nil
}

// Consume atomically takes amount from the token and returns what is left.
// A token that is already at zero is rejected before any decrement.
func (s *Store) Consume(ctx context.Context, id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: consume amount must be positive, got %d", domain.ErrInvalidUsage, amount)
	}
	if _, err := uuid.Parse(id); err != nil {
		return 0, domain.ErrNoSuchToken
	}

	left, err := s.db.DecrFieldFloor(ctx, key(id), FieldRemaining, amount)
	switch {
	case err == nil:
		return left, nil
	case errors.Is(err, db.ErrKeyNotFound):
		return 0, domain.ErrNoSuchToken
	case errors.Is(err, db.ErrExhausted):
		return 0, domain.NewQuotaExceeded(domain.ScopeAnonymous, 0, 0)
	default:
		return 0, fmt.Errorf("%w: consume token: %w", domain.ErrStoreUnavailable, err)
	}
}

// Lookup reads a token record.
func (s *Store) Lookup(ctx context.Context, id string) (domanon.Token, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domanon.Token{}, domain.ErrNoSuchToken
	}
	m, err := s.db.HGetAll(ctx, key(id))
	if err != nil {
		return domanon.Token{}, fmt.Errorf("%w: lookup token: %w", domain.ErrStoreUnavailable, err)
	}
	if len(m) == 0 {
		return domanon.Token{}, domain.ErrNoSuchToken
	}

	remaining, err := strconv.ParseInt(m[FieldRemaining], 10, 64)
	if err != nil {
		return domanon.Token{}, fmt.Errorf("parse %s: %w", FieldRemaining, err)
	}
	tok := domanon.Token{ID: id, QuotaRemaining: remaining}
	if exp, err := time.Parse(time.RFC3339, m[FieldResetAt]); err == nil {
		tok.ExpiresAt = exp
		tok.IssuedAt = exp.Add(-s.cfg.TTL)
	}
	return tok, nil
}
