package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/pkg/logger"
)

// Config controls the per-client token bucket.
type Config struct {
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 30,
		Burst:             10,
		CleanupInterval:   5 * time.Minute,
	}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter is a token-bucket rate limiter keyed by client IP. Research
// requests are expensive, so the default budget is deliberately small.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	log     *zap.Logger
}

func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		log:     logger.GetLogger().With(zap.String("component", "ratelimit")),
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) allow(ip string) bool {
	now := time.Now()
	refillPerSec := float64(l.cfg.RequestsPerMinute) / 60.0

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastSeen: now}
		l.buckets[ip] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * refillPerSec
	if b.tokens > float64(l.cfg.Burst) {
		b.tokens = float64(l.cfg.Burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-l.cfg.CleanupInterval)
		l.mu.Lock()
		for ip, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects clients that exceed their budget with 429.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if !l.allow(ip) {
			l.log.Warn("rate limit exceeded", zap.String("ip", ip))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded, slow down",
			})
		}
		return c.Next()
	}
}
