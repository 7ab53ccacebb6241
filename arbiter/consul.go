package arbiter

import (
	"log/slog"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/nurseryrun/nursery/uid"
)

const consulKeyPrefix = "nursery/registry/"

// ConsulMirror best-effort mirrors registry mutations into a Consul KV
// prefix for external observability (spec §4.5 addition). It never
// participates in find/get_registry — the in-memory Registry stays
// authoritative — and failures are logged, never propagated.
type ConsulMirror struct {
	client *consulapi.Client
}

// NewConsulMirror wraps an already-configured Consul client.
func NewConsulMirror(client *consulapi.Client) *ConsulMirror {
	return &ConsulMirror{client: client}
}

func consulKey(u uid.UID) string {
	return consulKeyPrefix + strings.ReplaceAll(u.String(), "/", "_")
}

// Put writes uid -> addr into Consul's KV store.
func (m *ConsulMirror) Put(u uid.UID, addr string) {
	kv := m.client.KV()
	_, err := kv.Put(&consulapi.KVPair{Key: consulKey(u), Value: []byte(addr)}, nil)
	if err != nil {
		slog.Error("arbiter consul mirror put failed", "uid", u.String(), "err", err)
	}
}

// Remove deletes uid's Consul KV entry.
func (m *ConsulMirror) Remove(u uid.UID) {
	kv := m.client.KV()
	_, err := kv.Delete(consulKey(u), nil)
	if err != nil {
		slog.Error("arbiter consul mirror delete failed", "uid", u.String(), "err", err)
	}
}
