// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// ResponseCacheConfig configures caching of idempotent remote responses.
type ResponseCacheConfig struct {
	// TTL is how long a cached response stays valid. Zero disables caching.
	TTL time.Duration
	// MaxEntries bounds the cache; the oldest entry is evicted past it.
	MaxEntries int
}

type respEntry struct {
	body      []byte
	createdAt time.Time
}

// responseCache holds raw response bodies for idempotent calls, keyed by
// method+path+params digest. Mutating calls bypass it entirely and
// invalidate affected path prefixes.
type responseCache struct {
	mu      sync.Mutex
	cfg     ResponseCacheConfig
	entries map[string]respEntry
	order   []string
	nowFunc func() time.Time
}

func newResponseCache(cfg ResponseCacheConfig) *responseCache {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 512
	}
	return &responseCache{
		cfg:     cfg,
		entries: make(map[string]respEntry),
		nowFunc: time.Now,
	}
}

// cacheKey derives the content-addressed key for a call.
func cacheKey(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return method + " " + path + " " + hex.EncodeToString(h.Sum(nil)[:8])
}

// get returns the cached body for key, or nil on miss or expiry.
// Expired entries are lazily evicted.
func (c *responseCache) get(key string) []byte {
	if c.cfg.TTL <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.nowFunc().Sub(e.createdAt) > c.cfg.TTL {
		delete(c.entries, key)
		return nil
	}
	return e.body
}

func (c *responseCache) set(key string, body []byte) {
	if c.cfg.TTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = respEntry{body: body, createdAt: c.nowFunc()}

	for len(c.entries) > c.cfg.MaxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// invalidate drops every cached response whose key contains pathPrefix.
// Called after mutating requests so stale reads are not served.
func (c *responseCache) invalidate(pathPrefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.Contains(key, pathPrefix) {
			delete(c.entries, key)
		}
	}
}

// clear empties the cache. Intended for test isolation.
func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]respEntry)
	c.order = c.order[:0]
}
