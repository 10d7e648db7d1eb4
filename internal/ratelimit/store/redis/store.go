// Package redis implements the sliding-log window store on Redis sorted sets so
// that every gatekeeper instance shares one admission count per key.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"gatekeeper/internal/ratelimit/store"
)

// admitScript prunes, counts and conditionally records in one atomic step.
// Scores are unix microseconds so they stay exact in a Lua double.
//
// KEYS[1] log key
// ARGV[1] now (µs), ARGV[2] window (µs), ARGV[3] limit, ARGV[4] member, ARGV[5] ttl (ms)
//
// Returns {allowed, count, oldestScore}.
var admitScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, ARGV[5])
  count = count + 1
  allowed = 1
end

local oldest = ''
if count > 0 then
  local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  oldest = first[2]
end
return {allowed, count, oldest}
`)

// Store implements store.WindowStore against a Redis client.
type Store struct {
	client goredis.UniversalClient
}

// New wraps an existing client. The caller owns the client's lifecycle.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// Admit runs the admission script for key.
func (s *Store) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (store.Admission, error) {
	// A unique member keeps concurrent admissions at the same microsecond distinct.
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	ttl := max(window.Milliseconds(), 1)

	raw, err := admitScript.Run(ctx, s.client, []string{key},
		now.UnixMicro(), window.Microseconds(), limit, member, ttl,
	).Slice()
	if err != nil {
		return store.Admission{}, fmt.Errorf("redis admit %s: %w", key, err)
	}
	return parseAdmission(raw)
}

// Reset deletes the log for key.
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis reset %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseAdmission(raw []any) (store.Admission, error) {
	if len(raw) != 3 {
		return store.Admission{}, fmt.Errorf("redis admit: unexpected reply length %d", len(raw))
	}
	allowed, ok := raw[0].(int64)
	if !ok {
		return store.Admission{}, fmt.Errorf("redis admit: unexpected allowed type %T", raw[0])
	}
	count, ok := raw[1].(int64)
	if !ok {
		return store.Admission{}, fmt.Errorf("redis admit: unexpected count type %T", raw[1])
	}

	res := store.Admission{Allowed: allowed == 1, Count: int(count)}
	if score, _ := raw[2].(string); score != "" {
		micros, err := strconv.ParseFloat(score, 64)
		if err != nil {
			return store.Admission{}, fmt.Errorf("redis admit: parse oldest score: %w", err)
		}
		res.Oldest = time.UnixMicro(int64(micros)).UTC()
	}
	return res, nil
}

var _ store.WindowStore = (*Store)(nil)
