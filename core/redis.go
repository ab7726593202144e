package core

import (
	"context"
	"encoding/json"
	"time"

	"argus/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache provides a Redis-backed cache for components that opt into
// shared state across processes, such as the API rate limiter. The event
// pipeline itself never uses it: per-process buffers and baselines are a
// deliberate scope boundary.
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance.
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	return &RedisCache{client: client, logger: logger}
}

// Ping tests the Redis connection.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Set stores a value with expiration.
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Errorf("Failed to marshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return err
	}
	if err := rc.client.Set(ctx, key, data, expiration).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		return err
	}
	return nil
}

// Get retrieves a value into dest, reporting whether the key existed.
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return false, err
	}
	return true, nil
}
