package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/pkg/config"
	"github.com/gemfinder/backend/pkg/logger"
)

// DurableStore is the sqlite-backed layer behind redis.
type DurableStore interface {
	GetCachedResult(ctx context.Context, key string) (*catalog.CachedResult, error)
	StoreResult(ctx context.Context, originalQuery, category string, result *catalog.CachedResult) error
	RecordHit(ctx context.Context, key string) error
}

// HotLayer is the fast cache tier in front of the durable store.
type HotLayer interface {
	Get(ctx context.Context, key string) (*catalog.CachedResult, error)
	Set(ctx context.Context, key string, result *catalog.CachedResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Adapter layers redis over sqlite. Every operation is fail-soft: a
// broken cache degrades to a miss, it never fails the request.
type Adapter struct {
	redis HotLayer // nil when redis is unavailable
	store DurableStore
	cfg   config.CacheConfig
	log   *zap.Logger
}

func NewAdapter(redisLayer *RedisLayer, store DurableStore, cfg config.CacheConfig) *Adapter {
	a := &Adapter{
		store: store,
		cfg:   cfg,
		log:   logger.GetLogger().With(zap.String("component", "cache")),
	}
	if redisLayer != nil {
		a.redis = redisLayer
	}
	return a
}

// TTL maps an access count onto a freshness window. Heavily searched
// terms stay cached longer; niche terms expire after a day.
func (a *Adapter) TTL(accessCount int) time.Duration {
	switch {
	case accessCount >= a.cfg.PopularThreshold:
		return time.Duration(a.cfg.PopularTTLHours) * time.Hour
	case accessCount >= a.cfg.NicheThreshold:
		return time.Duration(a.cfg.NicheTTLHours) * time.Hour
	default:
		return time.Duration(a.cfg.BaseTTLHours) * time.Hour
	}
}

// Lookup returns the cached result for key, or nil on a miss. Entries
// older than their popularity window are treated as expired. Storage
// errors are logged and reported as misses.
func (a *Adapter) Lookup(ctx context.Context, key string) *catalog.CachedResult {
	if !a.cfg.Enabled {
		return nil
	}

	if a.redis != nil {
		result, err := a.redis.Get(ctx, key)
		if err != nil {
			a.log.Warn("redis lookup failed, falling through to sqlite",
				zap.String("key", key), zap.Error(err))
		} else if result != nil && !a.expired(result) {
			return result
		}
	}

	result, err := a.store.GetCachedResult(ctx, key)
	if err != nil {
		a.log.Warn("sqlite lookup failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	if result == nil {
		return nil
	}
	if a.expired(result) {
		a.log.Debug("cached result expired",
			zap.String("key", key),
			zap.Int("access_count", result.AccessCount),
			zap.Time("created_at", result.CreatedAt))
		return nil
	}

	// repopulate the fast path
	if a.redis != nil {
		if err := a.redis.Set(ctx, key, result, a.TTL(result.AccessCount)); err != nil {
			a.log.Debug("redis repopulate failed", zap.Error(err))
		}
	}
	return result
}

func (a *Adapter) expired(result *catalog.CachedResult) bool {
	return time.Since(result.CreatedAt) > a.TTL(result.AccessCount)
}

// RecordHit bumps the access counter and carries the new count into
// the redis copy so its TTL tracks popularity. Best effort.
func (a *Adapter) RecordHit(ctx context.Context, key string) {
	if err := a.store.RecordHit(ctx, key); err != nil {
		a.log.Warn("failed to record cache hit", zap.String("key", key), zap.Error(err))
		return
	}
	if a.redis == nil {
		return
	}
	cached, err := a.redis.Get(ctx, key)
	if err != nil || cached == nil {
		return
	}
	cached.AccessCount++
	if err := a.redis.Set(ctx, key, cached, a.TTL(cached.AccessCount)); err != nil {
		a.log.Debug("redis ttl refresh failed", zap.String("key", key), zap.Error(err))
	}
}

// Store persists a fresh research result in both layers. Best effort:
// the caller already has the result in hand, a write failure only
// means the next identical query researches again.
func (a *Adapter) Store(ctx context.Context, originalQuery, category string, result *catalog.CachedResult) {
	if !a.cfg.Enabled {
		return
	}

	if err := a.store.StoreResult(ctx, originalQuery, category, result); err != nil {
		a.log.Error("failed to persist research result",
			zap.String("key", result.NormalizedKey), zap.Error(err))
	}
	if a.redis != nil {
		if err := a.redis.Set(ctx, result.NormalizedKey, result, a.TTL(result.AccessCount)); err != nil {
			a.log.Warn("failed to cache result in redis",
				zap.String("key", result.NormalizedKey), zap.Error(err))
		}
	}
}
