// Package arbiter implements the distinguished actor that maps actor UIDs
// to listen addresses (spec §4.5): register/unregister/find/get_registry.
package arbiter

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/nurseryrun/nursery/uid"
)

// Registry is the in-memory uid -> listen-address-list mapping. A Registry
// from NewRegistry starts empty; Server.Start seeds the arbiter's own entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[uid.UID][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uid.UID][]string)}
}

// Register appends addr to uid's address list, a no-op if already present.
func (r *Registry) Register(u uid.UID, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.entries[u] {
		if a == addr {
			return
		}
	}
	r.entries[u] = append(r.entries[u], addr)
}

// Unregister removes addr from uid's address list.
func (r *Registry) Unregister(u uid.UID, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addrs := r.entries[u]
	for i, a := range addrs {
		if a == addr {
			r.entries[u] = append(addrs[:i], addrs[i+1:]...)
			break
		}
	}
	if len(r.entries[u]) == 0 {
		delete(r.entries, u)
	}
}

// UnregisterAll drops every address for uid — used when the registration
// channel closes, since there is no explicit unregister RPC for that case.
func (r *Registry) UnregisterAll(u uid.UID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, u)
}

// Find returns the address list for a registered UID whose Name matches,
// plus that UID and whether a match was found. When several UIDs share the
// name, which of them is returned is not defined; registration order is not
// tracked.
func (r *Registry) Find(name string) (uid.UID, []string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for u, addrs := range r.entries {
		if u.Name == name {
			out := make([]string, len(addrs))
			copy(out, addrs)
			return u, out, true
		}
	}
	return uid.UID{}, nil, false
}

// UIDs returns every currently registered UID, in no particular order.
func (r *Registry) UIDs() []uid.UID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Keys(r.entries)
}

// Dump returns a snapshot of the full registry, for tests and diagnostics.
func (r *Registry) Dump() map[uid.UID][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uid.UID][]string, len(r.entries))
	for u, addrs := range r.entries {
		cp := make([]string, len(addrs))
		copy(cp, addrs)
		out[u] = cp
	}
	return out
}
