package actor

import (
	"context"
	"log/slog"
)

// eventSub subscribes a PID to the event stream.
type eventSub struct {
	pid *PID
}

// eventUnsub removes a PID's subscription.
type eventUnsub struct {
	pid *PID
}

// eventStream is the well-known process every engine spawns at startup;
// Engine.Subscribe/Unsubscribe/BroadcastEvent all talk to it.
type eventStream struct {
	subs map[*PID]bool
}

func newEventStream() Producer {
	return func() Receiver {
		return &eventStream{
			subs: make(map[*PID]bool),
		}
	}
}

// Receive handles subscription control messages directly and forwards
// everything else to current subscribers. Every event that implements
// EventLogger is also logged through slog, whether or not it has subscribers.
func (e *eventStream) Receive(c *Context) {
	switch msg := c.Message().(type) {
	case eventSub:
		e.subs[msg.pid] = true
	case eventUnsub:
		delete(e.subs, msg.pid)
	default:
		if logMsg, ok := c.Message().(EventLogger); ok {
			level, text, attrs := logMsg.Log()
			slog.Log(context.Background(), level, text, attrs...)
		}
		for sub := range e.subs {
			c.Forward(sub)
		}
	}
}
