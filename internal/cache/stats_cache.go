// internal/cache/stats_cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/pushleopard-backend/internal/config"
)

const statsKeyPrefix = "campaign:stats:"

// StatsCache keeps reporting snapshots of finished campaigns in Redis.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func statsKey(campaignID string) string {
	return statsKeyPrefix + campaignID
}

// Ping tests the Redis connection
func (c *StatsCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get decodes the cached snapshot into dest. It reports false on a miss.
func (c *StatsCache) Get(ctx context.Context, campaignID string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, statsKey(campaignID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached stats: %w", err)
	}
	return true, nil
}

func (c *StatsCache) Set(ctx context.Context, campaignID string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return c.client.Set(ctx, statsKey(campaignID), raw, c.ttl).Err()
}

func (c *StatsCache) Invalidate(ctx context.Context, campaignID string) error {
	return c.client.Del(ctx, statsKey(campaignID)).Err()
}

// Close closes the Redis connection
func (c *StatsCache) Close() error {
	return c.client.Close()
}
