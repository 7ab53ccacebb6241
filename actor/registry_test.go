package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetPIDFindsRegisteredProcess(t *testing.T) {
	e := newTestEngine(t)
	pid := e.SpawnFunc(func(c *Context) {}, "named", WithID("alpha"))

	found := e.Registry.GetPID("named", "alpha")
	require.NotNil(t, found)
	require.True(t, found.Equals(pid))
}

func TestGetPIDReturnsNilForUnknown(t *testing.T) {
	e := newTestEngine(t)
	require.Nil(t, e.Registry.GetPID("nope", "nope"))
}

func TestRegistryRemovesProcessAfterStop(t *testing.T) {
	e := newTestEngine(t)
	pid := e.SpawnFunc(func(c *Context) {}, "transient", WithID("one"))
	require.NotNil(t, e.Registry.GetPID("transient", "one"))

	<-e.Stop(pid).Done()

	deadline := time.After(time.Second)
	for e.Registry.GetPID("transient", "one") != nil {
		select {
		case <-deadline:
			t.Fatal("process was never removed from the registry")
		default:
		}
	}
}
