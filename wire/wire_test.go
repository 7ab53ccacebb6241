package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nurseryrun/nursery/uid"
)

func TestPipeHandshakeExchangesUID(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	initiator := uid.New("parent")
	acceptor := uid.New("child")

	done := make(chan uid.UID, 1)
	go func() {
		peer, err := Handshake(b, acceptor, false)
		require.NoError(t, err)
		done <- peer
	}()

	peer, err := Handshake(a, initiator, true)
	require.NoError(t, err)
	require.True(t, peer.Equals(acceptor))
	require.True(t, (<-done).Equals(initiator))
}

func TestPipeSendRecvPreservesOrder(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send(Message{Tag: TagRPCYield, CID: "c1", Value: 1}))
	require.NoError(t, a.Send(Message{Tag: TagRPCYield, CID: "c1", Value: 2}))
	require.NoError(t, a.Send(Message{Tag: TagRPCStop, CID: "c1"}))

	m1, err := b.Recv()
	require.NoError(t, err)
	require.Equal(t, 1, m1.Value)

	m2, err := b.Recv()
	require.NoError(t, err)
	require.Equal(t, 2, m2.Value)

	m3, err := b.Recv()
	require.NoError(t, err)
	require.Equal(t, TagRPCStop, m3.Tag)
}

func TestPipeRecvAfterCloseReturnsErrClosed(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, a.Close())

	_, err := b.Recv()
	require.ErrorIs(t, err, ErrClosed)
}
