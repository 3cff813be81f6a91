package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry is a cached verification result.
type cacheEntry struct {
	result   CheckResult
	cachedAt time.Time
	expires  time.Time
	hitCount int
}

// ResultCache caches verification results keyed by a digest of the license
// text, so repeated verifications of the same blob skip the RSA work.
type ResultCache struct {
	mu        sync.Mutex
	entries   map[string]cacheEntry
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	metrics   *Metrics
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewResultCache creates a cache with the given entry TTL and size bound.
// A background goroutine evicts expired entries until Stop is called.
func NewResultCache(ttl time.Duration, maxSize int, metrics *Metrics) *ResultCache {
	c := &ResultCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		metrics:  metrics,
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CacheKey digests license text into a stable cache key.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for key, if present and fresh.
func (c *ResultCache) Get(ctx context.Context, key string) (CheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		c.missCount++
		if c.metrics != nil {
			c.metrics.CacheMisses.Add(ctx, 1)
		}
		return CheckResult{}, false
	}

	entry.hitCount++
	c.entries[key] = entry
	c.hitCount++
	if c.metrics != nil {
		c.metrics.CacheHits.Add(ctx, 1)
	}
	return entry.result, true
}

// Set stores a result under key, evicting the oldest entry at capacity.
func (c *ResultCache) Set(key string, result CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize <= 0 {
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[key] = cacheEntry{
		result:   result,
		cachedAt: now,
		expires:  now.Add(c.ttl),
	}
}

// Invalidate drops the entry for key.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats reports cache effectiveness counters.
func (c *ResultCache) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}
	return map[string]any{
		"entries":     len(c.entries),
		"max_size":    c.maxSize,
		"hit_count":   c.hitCount,
		"miss_count":  c.missCount,
		"hit_ratio":   ratio,
		"ttl_seconds": c.ttl.Seconds(),
	}
}

// Stop terminates the background eviction goroutine.
func (c *ResultCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *ResultCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.cachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ResultCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expires) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
