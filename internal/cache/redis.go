package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/pkg/logger"
)

const keyPrefix = "search:"

// RedisLayer is the fast path in front of sqlite. Entries are JSON
// blobs keyed by the normalized query hash with a popularity-driven TTL.
type RedisLayer struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisLayer(host string, port int, password string, db int) (*RedisLayer, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLayer{
		rdb: rdb,
		log: logger.GetLogger().With(zap.String("component", "redis_cache")),
	}, nil
}

func (r *RedisLayer) Close() error {
	return r.rdb.Close()
}

func (r *RedisLayer) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Get returns (nil, nil) on a miss.
func (r *RedisLayer) Get(ctx context.Context, key string) (*catalog.CachedResult, error) {
	data, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var result catalog.CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		// corrupt entry, drop it
		r.rdb.Del(ctx, keyPrefix+key)
		return nil, fmt.Errorf("redis entry decode: %w", err)
	}
	return &result, nil
}

func (r *RedisLayer) Set(ctx context.Context, key string, result *catalog.CachedResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis entry encode: %w", err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisLayer) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, keyPrefix+key).Err()
}
