package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nurseryrun/nursery/nurseryerr"
	"github.com/nurseryrun/nursery/wire"
)

// fakeServer answers one rpc-call on ch as a minimal stand-in for
// actorproc's dispatch loop, for tests that only need the client side.
func fakeServer(t *testing.T, ch wire.Channel, respond func(wire.Message) []wire.Message) {
	t.Helper()
	go func() {
		msg, err := ch.Recv()
		if err != nil {
			return
		}
		for _, reply := range respond(msg) {
			if err := ch.Send(reply); err != nil {
				return
			}
		}
	}()
}

func TestRunReturnsSingleValue(t *testing.T) {
	a, b := wire.Pipe()
	defer a.Close()
	fakeServer(t, b, func(call wire.Message) []wire.Message {
		return []wire.Message{{Tag: wire.TagRPCReturn, CID: call.CID, Value: 42}}
	})

	p := New(a)
	result, err := p.Run("demo", "answer", nil)
	require.NoError(t, err)
	require.False(t, result.Stream)
	require.Equal(t, 42, result.Value)
}

func TestRunDrainsStreamedSequence(t *testing.T) {
	a, b := wire.Pipe()
	defer a.Close()
	fakeServer(t, b, func(call wire.Message) []wire.Message {
		return []wire.Message{
			{Tag: wire.TagRPCYield, CID: call.CID, Value: 0},
			{Tag: wire.TagRPCYield, CID: call.CID, Value: 1},
			{Tag: wire.TagRPCStop, CID: call.CID},
		}
	})

	p := New(a)
	result, err := p.Run("demo", "counter", nil)
	require.NoError(t, err)
	require.True(t, result.Stream)
	require.Equal(t, []any{0, 1}, result.Values)
}

func TestRunSurfacesRemoteError(t *testing.T) {
	a, b := wire.Pipe()
	defer a.Close()
	fakeServer(t, b, func(call wire.Message) []wire.Message {
		return []wire.Message{{Tag: wire.TagRPCError, CID: call.CID, ErrKind: "ZeroDivisionError", ErrMessage: "division by zero"}}
	})

	p := New(a)
	_, err := p.Run("demo", "divide", nil)
	require.Error(t, err)
	var remoteErr *nurseryerr.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "ZeroDivisionError", remoteErr.Kind)
}

func TestResultFailsWithChannelClosedWhenPeerGoesAway(t *testing.T) {
	a, b := wire.Pipe()
	p := New(a)

	cid, err := p.SubmitForResult("demo", "slow", nil)
	require.NoError(t, err)

	require.NoError(t, b.Close())

	_, err = p.Result(cid)
	require.Error(t, err)
	var closed *nurseryerr.ChannelClosed
	require.ErrorAs(t, err, &closed)
}

func TestStreamPullIteratorYieldsThenStops(t *testing.T) {
	a, b := wire.Pipe()
	defer a.Close()
	fakeServer(t, b, func(call wire.Message) []wire.Message {
		return []wire.Message{
			{Tag: wire.TagRPCYield, CID: call.CID, Value: "a"},
			{Tag: wire.TagRPCYield, CID: call.CID, Value: "b"},
			{Tag: wire.TagRPCStop, CID: call.CID},
		}
	})

	p := New(a)
	cid, err := p.SubmitForResult("demo", "letters", nil)
	require.NoError(t, err)

	next := p.Stream(cid)

	v, ok, err := next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", v)

	v, ok, err = next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok, err = next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCancelActorSendsDirectiveAndWaitsForClose(t *testing.T) {
	a, b := wire.Pipe()
	go func() {
		msg, err := b.Recv()
		if err != nil {
			return
		}
		if msg.Tag == wire.TagCancelActor {
			b.Close()
			a.Close()
		}
	}()

	p := New(a)
	err := p.CancelActor(200 * time.Millisecond)
	require.NoError(t, err)
}
