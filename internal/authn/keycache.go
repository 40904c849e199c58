package authn

import (
	"context"
	"crypto"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/athenax/reviewd/internal/errs"
)

// DefaultMaxCachedKeys bounds the cache when no explicit limit is configured.
const DefaultMaxCachedKeys = 5

// KeySetFetcher fetches the full remote key set. Implemented by *KeySetClient.
type KeySetFetcher interface {
	Fetch(ctx context.Context) (map[string]crypto.PublicKey, error)
}

type cachedKey struct {
	key       crypto.PublicKey
	fetchedAt time.Time
}

// KeyCache caches verification keys by kid. Hits never touch the network;
// a miss refreshes the whole set exactly once, with concurrent misses for the
// same kid coalesced into a single outstanding fetch. Entries carry no TTL;
// rotation is handled by the refresh-on-miss path. The cache never holds more
// than maxKeys entries, evicting oldest-fetched first.
type KeyCache struct {
	fetcher KeySetFetcher
	maxKeys int

	mu   sync.RWMutex
	keys map[string]cachedKey

	group singleflight.Group
	now   func() time.Time
}

// NewKeyCache constructs a bounded key cache over the given fetcher.
func NewKeyCache(fetcher KeySetFetcher, maxKeys int) *KeyCache {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxCachedKeys
	}
	return &KeyCache{
		fetcher: fetcher,
		maxKeys: maxKeys,
		keys:    make(map[string]cachedKey),
		now:     time.Now,
	}
}

// Key resolves kid to a verification key, fetching the remote set on a miss.
// Fails ErrUnknownKey when the refreshed set still lacks kid, and
// ErrKeySetUnavailable when the set cannot be fetched at all.
func (c *KeyCache) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: empty kid", errs.ErrUnknownKey)
	}

	c.mu.RLock()
	if e, ok := c.keys[kid]; ok {
		c.mu.RUnlock()
		return e.key, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(kid, func() (any, error) {
		// A concurrent flight for another kid may have populated us meanwhile.
		c.mu.RLock()
		if e, ok := c.keys[kid]; ok {
			c.mu.RUnlock()
			return e.key, nil
		}
		c.mu.RUnlock()

		set, err := c.fetcher.Fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		for id, k := range set {
			c.put(id, k)
		}
		// Re-put the requested kid so eviction of the fresh batch cannot
		// drop the one key this caller is waiting on.
		if k, ok := set[kid]; ok {
			c.put(kid, k)
		}
		c.mu.Unlock()

		k, ok := set[kid]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownKey, kid)
		}
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(crypto.PublicKey), nil
}

// Len reports the current number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// put inserts under c.mu, evicting oldest-fetched entries to stay within maxKeys.
func (c *KeyCache) put(kid string, key crypto.PublicKey) {
	if _, exists := c.keys[kid]; !exists {
		for len(c.keys) >= c.maxKeys {
			var oldest string
			var oldestAt time.Time
			for id, e := range c.keys {
				if oldest == "" || e.fetchedAt.Before(oldestAt) {
					oldest, oldestAt = id, e.fetchedAt
				}
			}
			delete(c.keys, oldest)
		}
	}
	c.keys[kid] = cachedKey{key: key, fetchedAt: c.now()}
}
