// Package cache keeps the last fresh balance read per chain, address and
// token so callers can show a stale value on request.
package cache

import (
	"math/big"
	"strings"
	"sync"
	"time"
)

// DefaultStaleness is the default duration after which cache entries are considered stale.
const DefaultStaleness = 5 * time.Minute

// BalanceCache stores cached balance information.
type BalanceCache struct {
	mu      sync.RWMutex
	entries map[string]BalanceCacheEntry
	now     func() time.Time
}

// BalanceCacheEntry represents a single cached balance.
type BalanceCacheEntry struct {
	ChainID   string    `json:"chain_id"`
	Address   string    `json:"address"`
	Token     string    `json:"token,omitempty"`
	Balance   *big.Int  `json:"balance"`
	Symbol    string    `json:"symbol"`
	Decimals  int32     `json:"decimals"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBalanceCache creates a new empty balance cache.
func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		entries: make(map[string]BalanceCacheEntry),
		now:     time.Now,
	}
}

// Key generates a cache key for an address and optional token. Addresses
// are compared case-insensitively.
func Key(chainID *big.Int, address, token string) string {
	id := "0"
	if chainID != nil {
		id = chainID.String()
	}
	key := id + ":" + strings.ToLower(address)
	if token != "" {
		key += ":" + strings.ToLower(token)
	}
	return key
}

// Get retrieves a cached balance entry.
// Returns the entry, whether it exists, and its age.
func (c *BalanceCache) Get(chainID *big.Int, address, token string) (*BalanceCacheEntry, bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[Key(chainID, address, token)]
	if !exists {
		return nil, false, 0
	}

	entry.Balance = new(big.Int).Set(entry.Balance)
	return &entry, true, c.now().Sub(entry.UpdatedAt)
}

// Set stores a balance entry in the cache, stamping it with the current time.
func (c *BalanceCache) Set(entry BalanceCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.UpdatedAt = c.now()
	if entry.Balance == nil {
		entry.Balance = new(big.Int)
	} else {
		entry.Balance = new(big.Int).Set(entry.Balance)
	}

	id, _ := new(big.Int).SetString(entry.ChainID, 10)
	c.entries[Key(id, entry.Address, entry.Token)] = entry
}

// IsStale checks if a cache entry is stale based on the default staleness duration.
func (c *BalanceCache) IsStale(chainID *big.Int, address, token string) bool {
	return c.IsStaleWithDuration(chainID, address, token, DefaultStaleness)
}

// IsStaleWithDuration checks if a cache entry is stale based on a custom duration.
func (c *BalanceCache) IsStaleWithDuration(chainID *big.Int, address, token string, staleness time.Duration) bool {
	_, exists, age := c.Get(chainID, address, token)
	if !exists {
		return true
	}
	return age > staleness
}

// Clear removes all cache entries.
func (c *BalanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]BalanceCacheEntry)
}

// Size returns the number of cache entries.
func (c *BalanceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Prune removes entries older than maxAge and returns how many were removed.
func (c *BalanceCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-maxAge)

	for key, entry := range c.entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}
