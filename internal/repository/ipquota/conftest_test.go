package ipquota

import (
	"context"
	"time"
)

type mockStore struct {
	getFn  func(ctx context.Context, key string) ([]byte, error)
	incrFn func(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) IncrWithExpiry(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error) {
	if m.incrFn != nil {
		return m.incrFn(ctx, key, val, ttl)
	}
	return val, nil
}
