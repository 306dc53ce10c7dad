package reminders

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarker claims keys with SET NX and a TTL long enough to outlive the
// reminder's day.
type RedisMarker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisMarker(rdb redis.Cmdable, ttl time.Duration) *RedisMarker {
	return &RedisMarker{rdb: rdb, ttl: ttl}
}

func (m *RedisMarker) Claim(ctx context.Context, key string) error {
	ok, err := m.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}

func (m *RedisMarker) Release(ctx context.Context, key string) error {
	return m.rdb.Del(ctx, key).Err()
}
