package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sigilum/chainrisk/internal/models"
)

// RedisQuoteCache is the durable tier behind the oracle's in-process quote
// map. It survives restarts and is shared across instances; a miss here is
// never an error, just a fall-through to the providers.
type RedisQuoteCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string

	mu     sync.Mutex
	hits   int64
	misses int64
	sets   int64
}

// QuoteCacheStats reports cache effectiveness for the health endpoint.
type QuoteCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisQuoteCache{
		redis:  client,
		ttl:    ttl,
		prefix: "price_quote:",
	}
}

func (c *RedisQuoteCache) key(cacheKey string) string {
	return c.prefix + cacheKey
}

// Get returns the cached quote for the key, or ok=false on miss or error.
func (c *RedisQuoteCache) Get(ctx context.Context, cacheKey string) (models.PriceQuote, bool) {
	var quote models.PriceQuote

	data, err := c.redis.Get(ctx, c.key(cacheKey)).Result()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).WithField("key", cacheKey).Debug("price cache read failed")
		}
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return quote, false
	}
	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		logrus.WithError(err).WithField("key", cacheKey).Warn("corrupt price cache entry, ignoring")
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return quote, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return quote, true
}

// Set stores a quote under the key. Failures are logged and swallowed; the
// in-process tier still holds the value for this run.
func (c *RedisQuoteCache) Set(ctx context.Context, cacheKey string, quote models.PriceQuote) {
	data, err := json.Marshal(quote)
	if err != nil {
		logrus.WithError(err).WithField("key", cacheKey).Warn("failed to marshal price quote")
		return
	}
	if err := c.redis.Set(ctx, c.key(cacheKey), data, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", cacheKey).Debug("price cache write failed")
		return
	}
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
}

// Dump returns every cached quote, for state persistence.
func (c *RedisQuoteCache) Dump(ctx context.Context) (map[string]models.PriceQuote, error) {
	keys, err := c.redis.Keys(ctx, c.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list price cache keys: %w", err)
	}
	out := make(map[string]models.PriceQuote, len(keys))
	for _, k := range keys {
		data, err := c.redis.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		var quote models.PriceQuote
		if err := json.Unmarshal([]byte(data), &quote); err != nil {
			continue
		}
		out[k[len(c.prefix):]] = quote
	}
	return out, nil
}

// Restore loads previously dumped quotes back into redis.
func (c *RedisQuoteCache) Restore(ctx context.Context, quotes map[string]models.PriceQuote) {
	for k, q := range quotes {
		c.Set(ctx, k, q)
	}
}

// Stats returns a copy of the hit/miss counters.
func (c *RedisQuoteCache) Stats() QuoteCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return QuoteCacheStats{Hits: c.hits, Misses: c.misses, Sets: c.sets}
}
