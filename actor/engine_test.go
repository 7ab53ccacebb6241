package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(NewEngineConfig())
	require.NoError(t, err)
	return e
}

func TestSendDeliversToSpawnedReceiver(t *testing.T) {
	e := newTestEngine(t)
	received := make(chan any, 1)

	pid := e.SpawnFunc(func(c *Context) {
		switch c.Message().(type) {
		case Started, Initialized, Stopped:
			return
		}
		received <- c.Message()
	}, "echo")

	e.Send(pid, "hello")

	select {
	case msg := <-received:
		require.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestSendToUnknownPIDBroadcastsDeadLetter(t *testing.T) {
	e := newTestEngine(t)
	events := make(chan any, 4)
	sub := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(DeadLetterEvent); ok {
			events <- c.Message()
		}
	}, "sub")
	e.Subscribe(sub)

	ghost := NewPID(e.Address(), "ghost/1")
	e.Send(ghost, "nobody home")

	select {
	case msg := <-events:
		dl := msg.(DeadLetterEvent)
		require.True(t, dl.Target.Equals(ghost))
	case <-time.After(time.Second):
		t.Fatal("dead letter event never broadcast")
	}
}

func TestRequestResolvesWithReply(t *testing.T) {
	e := newTestEngine(t)
	pid := e.SpawnFunc(func(c *Context) {
		if c.Message() == "ping" {
			c.Respond("pong")
		}
	}, "ponger")

	resp := e.Request(pid, "ping", time.Second)
	result, err := resp.Result()
	require.NoError(t, err)
	require.Equal(t, "pong", result)
}

func TestRequestTimesOutWithoutReply(t *testing.T) {
	e := newTestEngine(t)
	pid := e.SpawnFunc(func(c *Context) {}, "silent")

	resp := e.Request(pid, "ping", 20*time.Millisecond)
	_, err := resp.Result()
	require.Error(t, err)
}

func TestDuplicateSpawnIDBroadcastsDuplicateEvent(t *testing.T) {
	e := newTestEngine(t)
	events := make(chan any, 4)
	sub := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(ActorDuplicateIdEvent); ok {
			events <- c.Message()
		}
	}, "sub")
	e.Subscribe(sub)

	e.SpawnFunc(func(c *Context) {}, "dup", WithID("fixed"))
	e.SpawnFunc(func(c *Context) {}, "dup", WithID("fixed"))

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("duplicate id event never broadcast")
	}
}

func TestStopAwaitsCleanup(t *testing.T) {
	e := newTestEngine(t)
	stopped := make(chan struct{})
	pid := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(Stopped); ok {
			close(stopped)
		}
	}, "stoppable")

	<-e.Stop(pid).Done()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stopped message never delivered during cleanup")
	}
}
