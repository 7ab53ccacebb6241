package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnChildTracksParentAndChildren(t *testing.T) {
	e := newTestEngine(t)
	var childPID, parentPID, childParent *PID
	var tracked []*PID
	ready := make(chan struct{})

	e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(Started); ok {
			parentPID = c.PID()
			childPID = c.SpawnChildFunc(func(cc *Context) {
				if _, ok := cc.Message().(Started); ok {
					childParent = cc.Parent()
				}
			}, "child")
			tracked = c.Children()
			close(ready)
		}
	}, "parent")

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("parent never spawned its child")
	}
	require.NotNil(t, childPID)
	require.Len(t, tracked, 1)
	require.True(t, tracked[0].Equals(childPID))
	require.NotNil(t, childParent)
	require.True(t, childParent.Equals(parentPID))
}

func TestForwardPreservesOriginalSender(t *testing.T) {
	e := newTestEngine(t)
	received := make(chan *PID, 1)

	target := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(string); ok {
			received <- c.Sender()
		}
	}, "target")

	forwarder := e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(string); ok {
			c.Forward(target)
		}
	}, "forwarder")

	origin := NewPID(e.Address(), "origin/1")
	e.SendWithSender(forwarder, "relay me", origin)

	select {
	case sender := <-received:
		require.True(t, sender.Equals(origin))
	case <-time.After(time.Second):
		t.Fatal("forwarded message never arrived")
	}
}

func TestChildPoisonedWhenParentStops(t *testing.T) {
	e := newTestEngine(t)
	childStopped := make(chan struct{})
	parentReady := make(chan *PID, 1)

	e.SpawnFunc(func(c *Context) {
		if _, ok := c.Message().(Started); ok {
			child := c.SpawnChildFunc(func(cc *Context) {
				if _, ok := cc.Message().(Stopped); ok {
					close(childStopped)
				}
			}, "child")
			parentReady <- c.PID()
			_ = child
		}
	}, "parent")

	var parentPID *PID
	select {
	case parentPID = <-parentReady:
	case <-time.After(time.Second):
		t.Fatal("parent never started")
	}

	<-e.Stop(parentPID).Done()
	select {
	case <-childStopped:
	case <-time.After(time.Second):
		t.Fatal("child was never poisoned alongside its parent")
	}
}
