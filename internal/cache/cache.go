package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// TokenCache is the process-wide LRU+TTL cache of fetch results, keyed by
// (chain, lowercased token address). The LRU core handles eviction at the
// size cap; TTL is enforced per entry on read. The outer mutex makes the
// freshness check and the LRU promotion a single atomic step.
type TokenCache struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
}

type entry struct {
	value   *models.TokenData
	addedAt time.Time
}

// New creates a cache holding at most maxItems entries, each valid for ttl.
func New(maxItems int, ttl time.Duration) (*TokenCache, error) {
	core, err := lru.New(maxItems)
	if err != nil {
		return nil, fmt.Errorf("cache init: %w", err)
	}
	return &TokenCache{lru: core, ttl: ttl}, nil
}

// Key builds the canonical cache key for a (chain, token) pair.
func Key(chain, tokenAddress string) string {
	return chain + ":" + strings.ToLower(tokenAddress)
}

// Get returns the cached token data if present and fresh. Expired entries
// are removed and reported as a miss. A cached result with zero fetched
// transfers is also a miss, forcing a refresh for tokens that previously
// returned nothing.
func (c *TokenCache) Get(key string) (*models.TokenData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key) // Get promotes the entry to most-recently-used
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if time.Since(e.addedAt) > c.ttl {
		c.lru.Remove(key)
		return nil, false
	}
	if e.value == nil || e.value.TotalTransfersFetched == 0 {
		return nil, false
	}
	return e.value, true
}

// Set inserts or refreshes an entry, resetting its TTL.
func (c *TokenCache) Set(key string, value *models.TokenData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: value, addedAt: time.Now()})
}

// Len reports the number of live entries, expired or not.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
