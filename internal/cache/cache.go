// Package cache provides a TTL-bounded response cache keyed by prompt
// fingerprint. The in-memory map is authoritative; when a redis client is
// supplied it acts as a best-effort write-through second level so that a
// restarted worker can still serve previously generated responses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type entry struct {
	response  string
	timestamp time.Time
}

type Config struct {
	TTL      time.Duration
	Capacity int
}

type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string // insertion order, oldest first
	cfg     Config
	rdb     *redis.Client // optional second level, may be nil
	clock   func() time.Time
}

// New creates a ResponseCache. rdb may be nil for a purely in-memory cache.
func New(cfg Config, rdb *redis.Client) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 500
	}
	return &ResponseCache{
		entries: make(map[string]entry),
		cfg:     cfg,
		rdb:     rdb,
		clock:   time.Now,
	}
}

// Key computes the deterministic cache key for a prompt within a namespace.
func Key(namespace, prompt string) string {
	sum := sha256.Sum256([]byte(namespace + "\x00" + prompt))
	return "ai_response:" + hex.EncodeToString(sum[:])
}

// Get returns a fresh entry. An expired entry behaves as a miss and is
// removed. On an in-memory miss the redis level is consulted when configured.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.clock().Sub(e.timestamp) > c.cfg.TTL {
		c.removeLocked(key)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		return e.response, true
	}

	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			// Re-adopt into memory so subsequent lookups are local.
			c.Set(ctx, key, val)
			return val, true
		}
		if err != redis.Nil {
			slog.DebugContext(ctx, "redis cache read failed", "error", err)
		}
	}

	return "", false
}

// Lookup returns an entry regardless of freshness without removing it.
// The second return reports whether the entry is still within TTL. Callers
// that can degrade to stale data (cost ceiling, all providers down) use this.
func (c *ResponseCache) Lookup(key string) (response string, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return "", false, false
	}
	return e.response, c.clock().Sub(e.timestamp) <= c.cfg.TTL, true
}

// Set stores a response. When the entry count exceeds the capacity bound the
// single oldest entry is evicted first (FIFO, not recency-based).
func (c *ResponseCache) Set(ctx context.Context, key, response string) {
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.cfg.Capacity {
			oldest := c.order[0]
			c.removeLocked(oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{response: response, timestamp: c.clock()}
	c.mu.Unlock()

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, response, c.cfg.TTL).Err(); err != nil {
			slog.DebugContext(ctx, "redis cache write failed", "error", err)
		}
	}
}

// Len reports the number of in-memory entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// SetClock overrides the time source. Test hook.
func (c *ResponseCache) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}
