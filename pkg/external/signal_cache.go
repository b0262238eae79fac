package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
)

// NewRedisClient connects to Redis using the cache configuration.
func NewRedisClient(config domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// cachedSignal is a provider signal with expiry metadata.
type cachedSignal struct {
	Signal    *domain.RawSourceSignal `json:"signal"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// SignalCacheStats reports provider signal cache effectiveness.
type SignalCacheStats struct {
	MemoryHits  int64 `json:"memory_hits"`
	RedisHits   int64 `json:"redis_hits"`
	Misses      int64 `json:"misses"`
	RedisErrors int64 `json:"redis_errors"`
}

// SignalCache is a two tier cache of provider signals: an in-memory LRU for
// hot pairs and an optional Redis tier shared between instances.
type SignalCache struct {
	memory *lru.Cache
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	memoryHits  atomic.Int64
	redisHits   atomic.Int64
	misses      atomic.Int64
	redisErrors atomic.Int64
}

// NewSignalCache creates a signal cache; redisClient may be nil for memory only.
func NewSignalCache(config domain.CacheConfig, redisClient *redis.Client, logger *logrus.Logger) (*SignalCache, error) {
	if config.MemoryEntries <= 0 {
		config.MemoryEntries = 2048
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 24 * time.Hour
	}

	memory, err := lru.New(config.MemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &SignalCache{
		memory: memory,
		redis:  redisClient,
		ttl:    config.DefaultTTL,
		logger: logger,
	}, nil
}

// SignalKey builds the cache key of a provider signal for a pair.
func SignalKey(provider, med1, med2 string) string {
	pair := domain.PairKey(nil, med1, med2)
	hash := sha256.Sum256([]byte(pair))
	return fmt.Sprintf("signal:%s:%x", provider, hash[:8])
}

// Get returns a cached signal. Redis errors degrade to a miss.
func (c *SignalCache) Get(ctx context.Context, key string) (*domain.RawSourceSignal, bool) {
	now := time.Now()
	if v, ok := c.memory.Get(key); ok {
		entry := v.(cachedSignal)
		if now.Before(entry.ExpiresAt) {
			c.memoryHits.Add(1)
			return entry.Signal, true
		}
		c.memory.Remove(key)
	}

	if c.redis == nil {
		c.misses.Add(1)
		return nil, false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.redisErrors.Add(1)
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Debug("Redis signal cache read failed")
		return nil, false
	}

	var entry cachedSignal
	if err := json.Unmarshal([]byte(val), &entry); err != nil || now.After(entry.ExpiresAt) {
		// Remove corrupted or expired entry
		c.redis.Del(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.memory.Add(key, entry)
	c.redisHits.Add(1)
	return entry.Signal, true
}

// Set stores a signal in both tiers.
func (c *SignalCache) Set(ctx context.Context, key string, signal *domain.RawSourceSignal) error {
	now := time.Now()
	entry := cachedSignal{Signal: signal, CachedAt: now, ExpiresAt: now.Add(c.ttl)}
	c.memory.Add(key, entry)

	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal signal cache entry: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.redisErrors.Add(1)
		return fmt.Errorf("failed to write signal cache: %w", err)
	}
	return nil
}

// Purge clears the memory tier. Redis entries expire on their own.
func (c *SignalCache) Purge() {
	c.memory.Purge()
}

// Ping checks the Redis tier; a memory-only cache is always reachable.
func (c *SignalCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Stats returns a snapshot of the cache counters.
func (c *SignalCache) Stats() SignalCacheStats {
	return SignalCacheStats{
		MemoryHits:  c.memoryHits.Load(),
		RedisHits:   c.redisHits.Load(),
		Misses:      c.misses.Load(),
		RedisErrors: c.redisErrors.Load(),
	}
}

// CachedProvider serves provider signals from a SignalCache before calling upstream.
type CachedProvider struct {
	provider domain.SignalProvider
	cache    *SignalCache
	logger   *logrus.Logger
}

// NewCachedProvider wraps provider with cache
func NewCachedProvider(provider domain.SignalProvider, cache *SignalCache, logger *logrus.Logger) *CachedProvider {
	return &CachedProvider{provider: provider, cache: cache, logger: logger}
}

// Name returns the wrapped provider's name.
func (p *CachedProvider) Name() string { return p.provider.Name() }

// Timeout returns the wrapped provider's timeout.
func (p *CachedProvider) Timeout() time.Duration { return p.provider.Timeout() }

// FetchSignal returns a cached signal or fetches and caches a fresh one.
// Absent signals are not cached.
func (p *CachedProvider) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	key := SignalKey(p.provider.Name(), med1, med2)
	if signal, ok := p.cache.Get(ctx, key); ok {
		return signal, nil
	}

	signal, err := p.provider.FetchSignal(ctx, med1, med2)
	if err != nil || signal == nil {
		return signal, err
	}
	if err := p.cache.Set(ctx, key, signal); err != nil {
		p.logger.WithFields(logrus.Fields{
			"provider": p.provider.Name(),
			"error":    err.Error(),
		}).Warn("Failed to cache provider signal")
	}
	return signal, nil
}
