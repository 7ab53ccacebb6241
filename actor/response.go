package actor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Response is a one-shot Processer used to receive the reply to a single
// Engine.Request call.
type Response struct {
	engine  *Engine
	pid     *PID
	result  chan any
	timeout time.Duration
}

// NewResponse returns a Response registered under a fresh PID.
func NewResponse(e *Engine, timeout time.Duration) *Response {
	return &Response{
		engine:  e,
		result:  make(chan any, 1),
		timeout: timeout,
		pid:     NewPID(e.address, "response"+pidSeparator+uuid.NewString()),
	}
}

// Result blocks until a reply arrives or timeout elapses.
func (r *Response) Result() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer func() {
		cancel()
		r.engine.Registry.Remove(r.pid)
	}()

	select {
	case resp := <-r.result:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send implements Processer: it delivers the reply.
func (r *Response) Send(_ *PID, msg any, _ *PID) {
	r.result <- msg
}

func (r *Response) PID() *PID { return r.pid }

func (r *Response) Shutdown() {}

func (r *Response) Start() {}

func (r *Response) Invoke([]Envelope) {}
