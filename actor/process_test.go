package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessRestartsAfterPanicUntilBudgetExhausted(t *testing.T) {
	e := newTestEngine(t)
	var starts int
	exceeded := make(chan struct{})

	sub := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(ActorMaxRestartsExceededEvent); ok {
			close(exceeded)
		}
	}, "sub")
	e.Subscribe(sub)

	pid := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(string); ok {
			starts++
			panic("boom")
		}
	}, "flaky", WithMaxRestarts(2), WithRestartDelay(time.Millisecond))

	// The message that panicked is not re-delivered after a restart, so
	// each panic needs its own message: the third exhausts MaxRestarts(2).
	for i := 0; i < 3; i++ {
		e.Send(pid, "go")
	}

	select {
	case <-exceeded:
	case <-time.After(2 * time.Second):
		t.Fatal("process never exhausted its restart budget")
	}
	require.GreaterOrEqual(t, starts, 1)
}

func TestGracefulPoisonDrainsRemainingBatch(t *testing.T) {
	e := newTestEngine(t)
	seen := make(chan string, 2)

	pid := e.SpawnFunc(func(c *Context) {
		if s, ok := c.Message().(string); ok {
			seen <- s
		}
	}, "drainer")

	e.SendWithSender(pid, "one", nil)
	<-e.Poison(pid).Done()

	select {
	case s := <-seen:
		require.Equal(t, "one", s)
	case <-time.After(time.Second):
		t.Fatal("graceful poison did not deliver the pending message")
	}
}
