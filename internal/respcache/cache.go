// Package respcache caches completed retrieval answers so repeated angle
// queries (common when fallback angles fire) skip the slow poll loop. It is a
// TTL cache, not a durable store: Redis down degrades to a miss, never to an
// error.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/config"
	"github.com/luma-insights/prism/internal/metrics"
	"github.com/luma-insights/prism/internal/retrieval"
)

const keyPrefix = "prism:answer:"

// Cache wraps a retrieval.Client with a Redis-backed answer cache and a small
// local cache in front of it.
type Cache struct {
	inner    retrieval.Client
	rdb      *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
	mu       sync.RWMutex
	local    map[string]localEntry
	maxLocal int
}

type localEntry struct {
	answer  *retrieval.Answer
	expires time.Time
}

// Wrap decorates inner with caching. A nil rdb keeps only the local cache.
func Wrap(inner retrieval.Client, rdb *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *Cache {
	return &Cache{
		inner:    inner,
		rdb:      rdb,
		ttl:      cfg.TTL,
		logger:   logger,
		local:    make(map[string]localEntry),
		maxLocal: 256,
	}
}

// Query serves from cache when possible, otherwise delegates and stores.
func (c *Cache) Query(ctx context.Context, text string) (*retrieval.Answer, error) {
	key := cacheKey(text)

	if answer := c.lookup(ctx, key); answer != nil {
		metrics.CacheHits.Inc()
		return answer, nil
	}
	metrics.CacheMisses.Inc()

	answer, err := c.inner.Query(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, answer)
	return answer, nil
}

// Followup bypasses the cache; follow-ups are conversation-state dependent.
func (c *Cache) Followup(ctx context.Context, conversationID, text string) (*retrieval.Answer, error) {
	return c.inner.Followup(ctx, conversationID, text)
}

// Feedback passes through.
func (c *Cache) Feedback(ctx context.Context, messageID, verdict string) error {
	return c.inner.Feedback(ctx, messageID, verdict)
}

func (c *Cache) lookup(ctx context.Context, key string) *retrieval.Answer {
	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.answer
	}

	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Answer cache read failed", zap.Error(err))
		}
		return nil
	}
	var answer retrieval.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		c.logger.Warn("Answer cache entry corrupt, discarding", zap.Error(err))
		return nil
	}
	c.putLocal(key, &answer)
	return &answer
}

func (c *Cache) store(ctx context.Context, key string, answer *retrieval.Answer) {
	c.putLocal(key, answer)

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Answer cache write failed", zap.Error(err))
	}
}

func (c *Cache) putLocal(key string, answer *retrieval.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.local) >= c.maxLocal {
		// Evict whatever is already expired; if nothing is, drop the map.
		// A precise LRU is not worth the bookkeeping at this size.
		now := time.Now()
		for k, e := range c.local {
			if now.After(e.expires) {
				delete(c.local, k)
			}
		}
		if len(c.local) >= c.maxLocal {
			c.local = make(map[string]localEntry)
		}
	}
	c.local[key] = localEntry{answer: answer, expires: time.Now().Add(c.ttl)}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
