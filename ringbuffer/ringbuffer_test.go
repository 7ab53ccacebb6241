package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopPreservesOrder(t *testing.T) {
	rb := New[int](2)
	rb.Push(1)
	rb.Push(2) // a size-2 ring holds one item, so this push already grows it
	rb.Push(3)

	require.EqualValues(t, 3, rb.Len())
	for _, want := range []int{1, 2, 3} {
		got, ok := rb.Pop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := rb.Pop()
	require.False(t, ok)
}

func TestPopNReturnsAtMostLen(t *testing.T) {
	rb := New[string](4)
	rb.Push("a")
	rb.Push("b")

	items, ok := rb.PopN(10)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, items)
	require.EqualValues(t, 0, rb.Len())

	_, ok = rb.PopN(1)
	require.False(t, ok)
}
