package progressive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gatekeeper/internal/ratelimit/models"
)

// RedisStore shares escalation records between instances. Records expire
// after ttl so abandoned identities need no sweeping; ttl should cover the
// longest ban plus the quiet period.
type RedisStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

type redisState struct {
	Violations int   `json:"v"`
	LastAt     int64 `json:"l,omitempty"` // unix ms
	BannedTo   int64 `json:"b,omitempty"` // unix ms
}

func NewRedisStore(client goredis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, key string) (models.ProgressiveState, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return models.ProgressiveState{}, nil
	}
	if err != nil {
		return models.ProgressiveState{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rs redisState
	if err := json.Unmarshal(raw, &rs); err != nil {
		return models.ProgressiveState{}, fmt.Errorf("decode progressive state: %w", err)
	}
	st := models.ProgressiveState{ViolationCount: rs.Violations}
	if rs.LastAt > 0 {
		st.LastViolationAt = time.UnixMilli(rs.LastAt).UTC()
	}
	if rs.BannedTo > 0 {
		st.BannedUntil = time.UnixMilli(rs.BannedTo).UTC()
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, state models.ProgressiveState) error {
	if state.IsZero() {
		return s.Delete(ctx, key)
	}
	rs := redisState{Violations: state.ViolationCount}
	if !state.LastViolationAt.IsZero() {
		rs.LastAt = state.LastViolationAt.UnixMilli()
	}
	if !state.BannedUntil.IsZero() {
		rs.BannedTo = state.BannedUntil.UnixMilli()
	}
	payload, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

var _ StateStore = (*RedisStore)(nil)
