package price

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Static is a fixed mint-to-price table. Useful for stablecoin pinning and
// for tests.
type Static map[string]float64

// USDPrice implements the lookup used by the spam filter.
func (s Static) USDPrice(mint string) (float64, bool) {
	v, ok := s[mint]
	return v, ok
}

type cacheEntry struct {
	price     float64
	known     bool
	fetchedAt time.Time
}

// CachedLookup wraps a Client with a TTL cache and a synchronous lookup
// surface. Misses fetch through the client with a bounded timeout;
// concurrent misses for the same mint are collapsed into one request.
// Fetch failures and unknown mints are cached too, so a dead endpoint does
// not turn every classification into a network round trip.
type CachedLookup struct {
	client       *Client
	ttl          time.Duration
	fetchTimeout time.Duration

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCachedLookup wraps the client. Zero ttl defaults to 5 minutes.
func NewCachedLookup(client *Client, ttl time.Duration) *CachedLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{
		client:       client,
		ttl:          ttl,
		fetchTimeout: 5 * time.Second,
		entries:      make(map[string]cacheEntry),
	}
}

// USDPrice returns the cached USD price for a mint, fetching on a miss.
// The boolean is false when the mint has no known price.
func (c *CachedLookup) USDPrice(mint string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[mint]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.price, entry.known
	}

	result, _, _ := c.group.Do(mint, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()

		price, known, err := c.client.Price(ctx, mint)
		fresh := cacheEntry{price: price, known: known && err == nil, fetchedAt: time.Now()}
		c.mu.Lock()
		c.entries[mint] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	fresh := result.(cacheEntry)
	return fresh.price, fresh.known
}

// Warm prefetches prices for a batch of mints in one request. Errors are
// swallowed; lookups fall back to per-mint fetches.
func (c *CachedLookup) Warm(ctx context.Context, mints []string) {
	todo := make([]string, 0, len(mints))
	c.mu.RLock()
	for _, m := range mints {
		if entry, ok := c.entries[m]; !ok || time.Since(entry.fetchedAt) >= c.ttl {
			todo = append(todo, m)
		}
	}
	c.mu.RUnlock()
	if len(todo) == 0 {
		return
	}

	prices, err := c.client.Prices(ctx, todo)
	if err != nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	for _, m := range todo {
		v, known := prices[m]
		c.entries[m] = cacheEntry{price: v, known: known, fetchedAt: now}
	}
	c.mu.Unlock()
}
