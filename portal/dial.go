package portal

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nurseryrun/nursery/arbiter"
	"github.com/nurseryrun/nursery/uid"
	"github.com/nurseryrun/nursery/wire"
)

// addrCacheTTL bounds how long a resolved find_actor address is trusted
// before a fresh lookup is forced — actors can die and restart under the
// same name, so this is deliberately short.
const addrCacheTTL = 10 * time.Second

// AddressCache memoizes arbiter.FindActor lookups so a hot path of
// portal.Open calls for the same name doesn't round-trip the arbiter every
// time (spec leaves find_actor's caching policy unspecified; this is a
// pure performance addition, never the sole source of truth — a cache miss
// always falls through to a live lookup).
type AddressCache struct {
	c *gocache.Cache
}

// NewAddressCache returns an empty cache.
func NewAddressCache() *AddressCache {
	return &AddressCache{c: gocache.New(addrCacheTTL, 2*addrCacheTTL)}
}

type addrEntry struct {
	uid   uid.UID
	addrs []string
}

// Open resolves name via arbiter (consulting the cache first) and returns a
// Portal bound to a freshly dialed, handshaken channel to its first
// reachable address.
func Open(cache *AddressCache, arbiterAddr string, self uid.UID, name string) (*Portal, error) {
	var (
		target uid.UID
		addrs  []string
	)
	if cache != nil {
		if v, ok := cache.c.Get(name); ok {
			entry := v.(addrEntry)
			target, addrs = entry.uid, entry.addrs
		}
	}
	if len(addrs) == 0 {
		u, a, err := arbiter.FindActor(arbiterAddr, self, name)
		if err != nil {
			return nil, err
		}
		target, addrs = u, a
		if cache != nil {
			cache.c.Set(name, addrEntry{uid: u, addrs: a}, gocache.DefaultExpiration)
		}
	}

	var lastErr error
	for _, addr := range addrs {
		ch, err := wire.Dial(addr)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := wire.Handshake(ch, self, true); err != nil {
			ch.Close()
			lastErr = err
			continue
		}
		return New(ch), nil
	}
	if cache != nil {
		cache.c.Delete(name)
	}
	return nil, fmt.Errorf("portal: no reachable address for %s (%s): %w", name, target.String(), lastErr)
}
