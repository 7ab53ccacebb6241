package actor

import (
	"context"
	"time"
)

// Context is handed to a Receiver on every call to Receive: it carries the
// message being processed plus everything the Receiver needs to act on it
// (reply, forward, spawn children, talk to the engine).
type Context struct {
	engine    *Engine
	pid       *PID
	parentCtx *Context
	children  *PIDSet
	receiver  Receiver

	message any
	sender  *PID

	goCtx context.Context
}

func newContext(goCtx context.Context, e *Engine, pid *PID) *Context {
	if goCtx == nil {
		goCtx = context.Background()
	}
	return &Context{
		engine:   e,
		pid:      pid,
		children: NewPIDSet(),
		goCtx:    goCtx,
	}
}

// Context returns the Go context this process was spawned with.
func (c *Context) Context() context.Context { return c.goCtx }

// Message returns the message currently being processed.
func (c *Context) Message() any { return c.message }

// Sender returns the PID the current message was sent with, or nil if it
// was sent anonymously.
func (c *Context) Sender() *PID { return c.sender }

// PID returns this process's own PID.
func (c *Context) PID() *PID { return c.pid }

// Engine returns the Engine this process is hosted on.
func (c *Context) Engine() *Engine { return c.engine }

// Parent returns the PID of the process that spawned this one via
// SpawnChildFunc, or nil for a top-level process.
func (c *Context) Parent() *PID {
	if c.parentCtx == nil {
		return nil
	}
	return c.parentCtx.pid
}

// Children returns the PIDs of processes spawned from this one via
// SpawnChildFunc.
func (c *Context) Children() []*PID {
	return c.children.Values()
}

// Send delivers msg to pid without attaching a sender.
func (c *Context) Send(pid *PID, msg any) {
	c.engine.Send(pid, msg)
}

// Respond sends msg back to whoever sent the message currently being
// processed; a no-op if it was sent anonymously.
func (c *Context) Respond(msg any) {
	if c.sender == nil {
		return
	}
	c.engine.SendWithSender(c.sender, msg, c.pid)
}

// Forward resends the message currently being processed to pid, preserving
// the original sender.
func (c *Context) Forward(pid *PID) {
	c.engine.SendWithSender(pid, c.message, c.sender)
}

// SpawnChildFunc spawns a stateless function Receiver as a child of this
// process: the child is tracked in c.Children() and poisoned automatically
// when this process stops.
func (c *Context) SpawnChildFunc(f func(*Context), kind string, opts ...OptFunc) *PID {
	return c.spawnChild(newFuncReceiver(f), kind, opts...)
}

// SpawnChild spawns p as a child of this process.
func (c *Context) SpawnChild(p Producer, kind string, opts ...OptFunc) *PID {
	return c.spawnChild(p, kind, opts...)
}

func (c *Context) spawnChild(p Producer, kind string, opts ...OptFunc) *PID {
	options := DefaultOpts(p)
	options.Kind = kind
	for _, opt := range opts {
		opt(&options)
	}
	if len(options.ID) == 0 {
		options.ID = c.pid.ID
	}
	child := newProcess(c.engine, options)
	child.context.parentCtx = c
	c.children.Add(child.PID())
	return c.engine.SpawnProc(child)
}

// SendRepeat sends msg to pid on a fixed interval until the returned
// SendRepeater's Stop is called.
func (c *Context) SendRepeat(pid *PID, msg any, interval time.Duration) SendRepeater {
	return c.engine.SendRepeat(pid, msg, interval)
}
