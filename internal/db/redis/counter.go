package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/tokenguard/internal/db"
)

// Script return codes for the non-numeric outcomes.
const (
	codeMissing   = -1
	codeExhausted = -2
)

// decrFieldFloorScript runs as a single server-side step, so no other client
// can observe the field between the check and the write.
const decrFieldFloorScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if cur <= 0 then
  return -2
end
local next = cur - tonumber(ARGV[2])
if next < 0 then
  next = 0
end
redis.call('HSET', KEYS[1], ARGV[1], next)
return next
`

// DecrFieldFloor atomically decrements a hash field, clamped at zero.
func (s *Store) DecrFieldFloor(ctx context.Context, key, field string, amount int64) (int64, error) {
	n, err := s.decr.Exec(ctx, s.client,
		[]string{key},
		[]string{field, strconv.FormatInt(amount, 10)},
	).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpEval, Err: err}
	}
	switch n {
	case codeMissing:
		return 0, db.ErrKeyNotFound
	case codeExhausted:
		return 0, db.ErrExhausted
	}
	return n, nil
}
