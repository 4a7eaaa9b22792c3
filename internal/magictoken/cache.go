package magictoken

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/google/magic-github-proxy/internal/core"
)

// Decoder turns a magic token into its verified content.
type Decoder interface {
	Decode(token string) (*core.DecodeResult, error)
}

var (
	_ Decoder = (*Codec)(nil)
	_ Decoder = (*Cache)(nil)
)

type CacheConfig struct {
	// TTL is the longest time a decoded token is kept.
	TTL time.Duration

	// MaxCost is the maximum number of cached tokens.
	MaxCost int64

	// NumCounters is the number of keys to track frequency for.
	NumCounters int64
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:         5 * time.Minute,
		MaxCost:     10_000,
		NumCounters: 100_000,
	}
}

// Cache remembers successful decodes so repeated requests with the same token
// skip signature verification and RSA decryption. Failures are never cached.
type Cache struct {
	codec *Codec
	cfg   CacheConfig
	cache *ristretto.Cache[string, *core.DecodeResult]
}

func NewCache(codec *Codec, cfg CacheConfig) (*Cache, error) {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = DefaultCacheConfig().MaxCost
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = cfg.MaxCost * 10
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *core.DecodeResult]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize decode cache: %w", err)
	}
	return &Cache{
		codec: codec,
		cfg:   cfg,
		cache: cache,
	}, nil
}

func (c *Cache) Decode(token string) (*core.DecodeResult, error) {
	key := cacheKey(token)
	now := c.codec.now()

	if cached, ok := c.cache.Get(key); ok {
		if now.Before(cached.ExpiresAt) {
			result := *cached
			return &result, nil
		}
		c.cache.Del(key)
	}

	result, err := c.codec.Decode(token)
	if err != nil {
		return nil, err
	}

	ttl := c.cfg.TTL
	if remaining := result.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		cached := *result
		c.cache.SetWithTTL(key, &cached, 1, ttl)
	}
	return result, nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cache) Wait() {
	c.cache.Wait()
}

func (c *Cache) Close() {
	c.cache.Close()
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
