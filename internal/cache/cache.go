// Package cache provides the read-through stats cache and its invalidation
// signal. The client is constructed once at startup and injected into the
// services; correctness never depends on cache state.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/loopcard/backend/internal/models"
)

// Key scheme for cached snapshots.
func CardStatsKey(cardID string) string { return "stats:card:" + cardID }
func UserStatsKey(userID string) string { return "stats:user:" + userID }

// Client is the injected cache boundary. Implementations must be safe for
// concurrent use.
type Client interface {
	// GetStats returns the cached snapshot for key, or ok=false on a miss.
	GetStats(ctx context.Context, key string) (models.StatsSnapshot, bool, error)
	SetStats(ctx context.Context, key string, stats models.StatsSnapshot, ttl time.Duration) error
	// Invalidate drops the given keys. Issued after every stats write.
	Invalidate(ctx context.Context, keys ...string) error
}

// RedisClient caches snapshots as JSON values in Redis.
type RedisClient struct {
	rdb *redis.Client
}

func NewRedisClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) GetStats(ctx context.Context, key string) (models.StatsSnapshot, bool, error) {
	var stats models.StatsSnapshot
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return stats, false, nil
	}
	if err != nil {
		return stats, false, err
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, false, err
	}
	return stats, true, nil
}

func (c *RedisClient) SetStats(ctx context.Context, key string, stats models.StatsSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *RedisClient) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Noop is used when Redis is unavailable; every read is a miss.
type Noop struct{}

func (Noop) GetStats(ctx context.Context, key string) (models.StatsSnapshot, bool, error) {
	return models.StatsSnapshot{}, false, nil
}

func (Noop) SetStats(ctx context.Context, key string, stats models.StatsSnapshot, ttl time.Duration) error {
	return nil
}

func (Noop) Invalidate(ctx context.Context, keys ...string) error {
	return nil
}
