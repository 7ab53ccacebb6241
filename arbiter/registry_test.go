package arbiter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nurseryrun/nursery/uid"
)

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	u := uid.New("donny")

	r.Register(u, "127.0.0.1:9001")
	r.Register(u, "127.0.0.1:9001")

	_, addrs, ok := r.Find("donny")
	require.True(t, ok)
	require.Equal(t, []string{"127.0.0.1:9001"}, addrs)
}

func TestUnregisterRemovesSingleAddress(t *testing.T) {
	r := NewRegistry()
	u := uid.New("gretchen")
	r.Register(u, "127.0.0.1:9001")
	r.Register(u, "127.0.0.1:9002")

	r.Unregister(u, "127.0.0.1:9001")

	_, addrs, ok := r.Find("gretchen")
	require.True(t, ok)
	require.Equal(t, []string{"127.0.0.1:9002"}, addrs)
}

func TestUnregisterAllDropsEntryEntirely(t *testing.T) {
	r := NewRegistry()
	u := uid.New("donny")
	r.Register(u, "127.0.0.1:9001")

	r.UnregisterAll(u)

	_, _, ok := r.Find("donny")
	require.False(t, ok)
}

func TestFindMatchesByNameOnly(t *testing.T) {
	r := NewRegistry()
	r.Register(uid.New("arbiter"), "127.0.0.1:9000")
	r.Register(uid.New("donny"), "127.0.0.1:9001")

	found, addrs, ok := r.Find("donny")
	require.True(t, ok)
	require.Equal(t, "donny", found.Name)
	require.Equal(t, []string{"127.0.0.1:9001"}, addrs)
}

func TestFindNoMatch(t *testing.T) {
	r := NewRegistry()
	_, _, ok := r.Find("nobody")
	require.False(t, ok)
}

func TestDumpIsAnIndependentSnapshot(t *testing.T) {
	r := NewRegistry()
	u := uid.New("donny")
	r.Register(u, "127.0.0.1:9001")

	snap := r.Dump()
	require.Len(t, snap, 1)

	r.Register(u, "127.0.0.1:9002")
	require.Len(t, snap[u], 1, "snapshot must not observe later mutations")
}
