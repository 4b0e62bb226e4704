package db

import (
	"context"
	"time"
)

// Store is the shared quota store: anonymous token hashes plus windowed counters.
type Store interface {
	Pinger
	HashStore
	KVStore
	CounterStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore holds records that expire as a whole.
type HashStore interface {
	// HSetWithTTL writes the fields and sets the key expiry in one round-trip.
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// KVStore holds integer counters keyed by window.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// IncrWithExpiry adds val to key and returns the new value. The expiry is set
	// only when the key has none, so the first write of a window fixes its end.
	IncrWithExpiry(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// CounterStore provides server-side atomic counter operations on hash fields.
type CounterStore interface {
	// DecrFieldFloor atomically subtracts amount from an integer hash field,
	// clamping the result at zero. It returns ErrKeyNotFound when the hash
	// does not exist and ErrExhausted when the field is already <= 0.
	DecrFieldFloor(ctx context.Context, key, field string, amount int64) (int64, error)
}
