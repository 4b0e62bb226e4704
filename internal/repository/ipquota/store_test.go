package ipquota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/tokenguard/internal/db"
	"github.com/kailas-cloud/tokenguard/internal/db/memory"
	"github.com/kailas-cloud/tokenguard/internal/domain"
)

var day = time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

func TestKey(t *testing.T) {
	if got := Key("10.0.0.1", day); got != "anon_usage:2026-03-09:10.0.0.1" {
		t.Errorf("Key() = %q", got)
	}
}

func TestRecord_SetsDayTTL(t *testing.T) {
	var gotKey string
	var gotTTL time.Duration
	ms := &mockStore{
		incrFn: func(_ context.Context, key string, val int64, ttl time.Duration) (int64, error) {
			gotKey, gotTTL = key, ttl
			return val, nil
		},
	}
	s := New(ms, 0, func() time.Time { return day })

	n, err := s.Record(context.Background(), "10.0.0.1", 1)
	if err != nil || n != 1 {
		t.Fatalf("Record() = %d, %v", n, err)
	}
	if gotKey != "anon_usage:2026-03-09:10.0.0.1" || gotTTL != 24*time.Hour {
		t.Errorf("incr(%q, ttl=%v)", gotKey, gotTTL)
	}
}

func TestRecord_IncrError(t *testing.T) {
	ms := &mockStore{incrFn: func(context.Context, string, int64, time.Duration) (int64, error) {
		return 0, errors.New("down")
	}}
	s := New(ms, 0, nil)
	if _, err := s.Record(context.Background(), "a", 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestGet_MissingKeyIsZero(t *testing.T) {
	ms := &mockStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}}
	s := New(ms, 0, nil)
	n, err := s.Get(context.Background(), "a")
	if err != nil || n != 0 {
		t.Errorf("Get() = %d, %v", n, err)
	}
}

func TestGet_ParseError(t *testing.T) {
	ms := &mockStore{getFn: func(context.Context, string) ([]byte, error) {
		return []byte("abc"), nil
	}}
	s := New(ms, 0, nil)
	if _, err := s.Get(context.Background(), "a"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCheck_RejectsAtLimit(t *testing.T) {
	s := New(memory.NewStore(), 3, func() time.Time { return day })
	ctx := context.Background()

	for i := range 3 {
		if err := s.Check(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if _, err := s.Record(ctx, "1.2.3.4", 1); err != nil {
			t.Fatal(err)
		}
	}

	err := s.Check(ctx, "1.2.3.4")
	if !errors.Is(err, domain.ErrQuotaExceeded) || domain.ScopeOf(err) != domain.ScopeIPDaily {
		t.Fatalf("expected ip_daily quota error, got %v", err)
	}
	if err := s.Check(ctx, "5.6.7.8"); err != nil {
		t.Errorf("other address rejected: %v", err)
	}
}

func TestCheck_NewDayStartsFresh(t *testing.T) {
	now := day
	s := New(memory.NewStore(), 1, func() time.Time { return now })
	ctx := context.Background()
	_, _ = s.Record(ctx, "a", 1)
	if err := s.Check(ctx, "a"); err == nil {
		t.Fatal("expected rejection")
	}
	now = day.Add(2 * time.Minute)
	if err := s.Check(ctx, "a"); err != nil {
		t.Errorf("next day rejected: %v", err)
	}
}

func TestCheck_StoreFailure(t *testing.T) {
	ms := &mockStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, errors.New("timeout")
	}}
	s := New(ms, 0, nil)
	if err := s.Check(context.Background(), "a"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRemaining(t *testing.T) {
	s := New(memory.NewStore(), 5, func() time.Time { return day })
	ctx := context.Background()
	_, _ = s.Record(ctx, "a", 7)
	if n, err := s.Remaining(ctx, "a"); err != nil || n != 0 {
		t.Errorf("Remaining() = %d, %v", n, err)
	}
	if n, _ := s.Remaining(ctx, "b"); n != 5 {
		t.Errorf("Remaining(b) = %d", n)
	}
}
