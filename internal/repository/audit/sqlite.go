// Package audit persists metered requests to a local SQLite file.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/tokenguard/internal/domain/money"
	"github.com/kailas-cloud/tokenguard/internal/domain/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	at_unix_ns    INTEGER NOT NULL,
	day           TEXT NOT NULL,
	principal     TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cache_hit     INTEGER NOT NULL,
	cost_pico     INTEGER NOT NULL,
	discounted    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_records_day ON usage_records(day);
`

// Store is the SQLite-backed audit log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create audit directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect audit db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Append writes one record.
func (s *Store) Append(ctx context.Context, r usage.Record) error {
	at := r.At.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records
			(id, at_unix_ns, day, principal, input_tokens, output_tokens, cache_hit, cost_pico, discounted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, at.UnixNano(), at.Format(time.DateOnly), r.Principal,
		r.InputTokens, r.OutputTokens, boolInt(r.CacheHit), int64(r.Cost), boolInt(r.Discounted),
	)
	if err != nil {
		return fmt.Errorf("insert usage record %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at_unix_ns, principal, input_tokens, output_tokens, cache_hit, cost_pico, discounted
		FROM usage_records
		ORDER BY at_unix_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []usage.Record
	for rows.Next() {
		var (
			r                    usage.Record
			atNS, cost           int64
			cacheHit, discounted int
		)
		if err := rows.Scan(&r.ID, &atNS, &r.Principal, &r.InputTokens, &r.OutputTokens,
			&cacheHit, &cost, &discounted); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.At = time.Unix(0, atNS).UTC()
		r.CacheHit = cacheHit != 0
		r.Discounted = discounted != 0
		r.Cost = money.Amount(cost)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary aggregates records per UTC day for days on or after since, oldest first.
func (s *Store) Summary(ctx context.Context, since time.Time) ([]usage.DaySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cost_pico)
		FROM usage_records
		WHERE day >= ?
		GROUP BY day
		ORDER BY day ASC`, since.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query day summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []usage.DaySummary
	for rows.Next() {
		var (
			day  string
			d    usage.DaySummary
			cost int64
		)
		if err := rows.Scan(&day, &d.Requests, &d.InputTokens, &d.OutputTokens, &cost); err != nil {
			return nil, fmt.Errorf("scan day summary: %w", err)
		}
		t, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fmt.Errorf("parse day %q: %w", day, err)
		}
		d.Day = t
		d.Cost = money.Amount(cost)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune deletes records older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_records WHERE at_unix_ns < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune usage records: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
