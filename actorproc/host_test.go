package actorproc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nurseryrun/nursery/rpcreg"
	"github.com/nurseryrun/nursery/uid"
	"github.com/nurseryrun/nursery/wire"
)

func newTestHost(t *testing.T, registry *rpcreg.Registry, modules []string) *Host {
	t.Helper()
	h, err := New(Config{Name: "test", RPCModules: modules}, registry)
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)
	return h
}

func TestDispatchCallReturnsUnaryResult(t *testing.T) {
	registry := rpcreg.NewRegistry()
	registry.RegisterFunc("demo", "hi", func(call *rpcreg.Call) (any, error) {
		return "hi " + call.Kwargs["name"].(string), nil
	})
	h := newTestHost(t, registry, []string{"demo"})

	a, b := wire.Pipe()
	defer a.Close()
	defer b.Close()

	go h.serveChannel(b, uid.New("caller"))

	require.NoError(t, a.Send(wire.Message{Tag: wire.TagRPCCall, CID: "c1", Module: "demo", Function: "hi", Kwargs: map[string]any{"name": "x"}}))

	reply, err := recvWithin(t, a, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.TagRPCReturn, reply.Tag)
	require.Equal(t, "hi x", reply.Value)
}

func TestDispatchCallStreamsYieldsThenStop(t *testing.T) {
	registry := rpcreg.NewRegistry()
	registry.RegisterGen("demo", "count", func(call *rpcreg.Call, yield rpcreg.Yield) error {
		for i := 0; i < 3; i++ {
			if err := yield(i); err != nil {
				return err
			}
		}
		return nil
	})
	h := newTestHost(t, registry, []string{"demo"})

	a, b := wire.Pipe()
	defer a.Close()
	defer b.Close()

	go h.serveChannel(b, uid.New("caller"))
	require.NoError(t, a.Send(wire.Message{Tag: wire.TagRPCCall, CID: "c1", Module: "demo", Function: "count"}))

	for i := 0; i < 3; i++ {
		reply, err := recvWithin(t, a, time.Second)
		require.NoError(t, err)
		require.Equal(t, wire.TagRPCYield, reply.Tag)
		require.Equal(t, i, reply.Value)
	}
	reply, err := recvWithin(t, a, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.TagRPCStop, reply.Tag)
}

func TestDispatchCallRejectsModuleOutsideAllowList(t *testing.T) {
	registry := rpcreg.NewRegistry()
	registry.RegisterFunc("demo", "hi", func(call *rpcreg.Call) (any, error) { return nil, nil })
	h := newTestHost(t, registry, []string{"other"})

	a, b := wire.Pipe()
	defer a.Close()
	defer b.Close()

	go h.serveChannel(b, uid.New("caller"))
	require.NoError(t, a.Send(wire.Message{Tag: wire.TagRPCCall, CID: "c1", Module: "demo", Function: "hi"}))

	reply, err := recvWithin(t, a, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.TagRPCError, reply.Tag)
	require.Equal(t, "NotAllowed", reply.ErrKind)
}

// TestDispatchCallPanicIsRecoveredAndSurvives exercises the actor.Engine
// wiring: each RPC call runs as its own supervised task, so a handler panic
// is caught and restarted instead of taking the whole connection (and the
// whole process, if it were a bare goroutine) down with it.
func TestDispatchCallPanicIsRecoveredAndSurvives(t *testing.T) {
	registry := rpcreg.NewRegistry()
	registry.RegisterFunc("demo", "boom", func(call *rpcreg.Call) (any, error) {
		panic("boom")
	})
	registry.RegisterFunc("demo", "hi", func(call *rpcreg.Call) (any, error) {
		return "ok", nil
	})
	h := newTestHost(t, registry, []string{"demo"})

	a, b := wire.Pipe()
	defer a.Close()
	defer b.Close()

	go h.serveChannel(b, uid.New("caller"))

	require.NoError(t, a.Send(wire.Message{Tag: wire.TagRPCCall, CID: "c1", Module: "demo", Function: "boom"}))
	require.NoError(t, a.Send(wire.Message{Tag: wire.TagRPCCall, CID: "c2", Module: "demo", Function: "hi"}))

	reply, err := recvWithin(t, a, time.Second)
	require.NoError(t, err)
	require.Equal(t, "c2", reply.CID)
	require.Equal(t, wire.TagRPCReturn, reply.Tag)
	require.Equal(t, "ok", reply.Value)
}

func TestServeChannelStopsOnCancelActor(t *testing.T) {
	registry := rpcreg.NewRegistry()
	h := newTestHost(t, registry, nil)

	a, b := wire.Pipe()
	defer a.Close()

	done := make(chan struct{})
	go func() {
		h.serveChannel(b, uid.New("caller"))
		close(done)
	}()

	require.NoError(t, a.Send(wire.Message{Tag: wire.TagCancelActor}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serveChannel never returned after cancel-actor")
	}

	select {
	case <-h.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("host context was never cancelled")
	}
}

func TestAwaitPeerFiresOnceOnFirePeer(t *testing.T) {
	h := newTestHost(t, rpcreg.NewRegistry(), nil)
	peer := uid.New("child")
	a, _ := wire.Pipe()
	defer a.Close()

	waiter := h.AwaitPeer(peer)
	h.firePeer(peer, a)

	select {
	case ch := <-waiter:
		require.Equal(t, a, ch)
	case <-time.After(time.Second):
		t.Fatal("AwaitPeer never fired")
	}
}

func TestCancelPendingPeerUnblocksWithoutChannel(t *testing.T) {
	h := newTestHost(t, rpcreg.NewRegistry(), nil)
	peer := uid.New("child")

	waiter := h.AwaitPeer(peer)
	h.CancelPendingPeer(peer)

	select {
	case ch, ok := <-waiter:
		require.False(t, ok)
		require.Nil(t, ch)
	case <-time.After(time.Second):
		t.Fatal("CancelPendingPeer never unblocked the waiter")
	}
}

func recvWithin(t *testing.T, ch wire.Channel, d time.Duration) (wire.Message, error) {
	t.Helper()
	type result struct {
		msg wire.Message
		err error
	}
	out := make(chan result, 1)
	go func() {
		msg, err := ch.Recv()
		out <- result{msg, err}
	}()
	select {
	case r := <-out:
		return r.msg, r.err
	case <-time.After(d):
		t.Fatal("recv timed out")
		return wire.Message{}, nil
	}
}
