// Package portal implements the caller-side handle bound to one channel: it
// issues RPCs, awaits results (single values or streamed sequences), and
// cancels or closes the remote actor (spec §4.2).
package portal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nurseryrun/nursery/nurseryerr"
	"github.com/nurseryrun/nursery/wire"
)

// CallResult is the tagged Single(value) | Stream(values) result shape
// described in the design notes: a remote call returns either one
// terminal value or a sequence of yielded values.
type CallResult struct {
	Value  any
	Values []any
	Stream bool
}

type pendingCall struct {
	msgs chan wire.Message
}

// Portal is bound to one wire.Channel; it has no independent lifecycle —
// Close/channel closure ends it, but Portal itself owns no transport.
type Portal struct {
	ch wire.Channel

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool
	closeCh chan struct{}
}

// New wraps an established, already-handshaken channel as a Portal.
func New(ch wire.Channel) *Portal {
	p := &Portal{
		ch:      ch,
		pending: make(map[string]*pendingCall),
		closeCh: make(chan struct{}),
	}
	go p.demux()
	return p
}

func (p *Portal) demux() {
	for {
		msg, err := p.ch.Recv()
		if err != nil {
			p.failAll(err)
			return
		}
		if msg.CID == "" {
			continue
		}
		p.mu.Lock()
		pc, ok := p.pending[msg.CID]
		p.mu.Unlock()
		if !ok {
			continue
		}
		pc.msgs <- msg
	}
}

func (p *Portal) failAll(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.closeCh)
	for cid, pc := range p.pending {
		close(pc.msgs)
		delete(p.pending, cid)
	}
	_ = cause
}

func (p *Portal) register(cid string) *pendingCall {
	pc := &pendingCall{msgs: make(chan wire.Message, 16)}
	p.mu.Lock()
	p.pending[cid] = pc
	p.mu.Unlock()
	return pc
}

func (p *Portal) unregister(cid string) {
	p.mu.Lock()
	delete(p.pending, cid)
	p.mu.Unlock()
}

// SubmitForResult sends an rpc-call without waiting for a reply and returns
// its call-id; Result (or Stream) later harvests it. Used directly by
// nursery.RunInActor so the caller can record the portal before the
// result arrives.
func (p *Portal) SubmitForResult(module, function string, kwargs map[string]any) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", &nurseryerr.ChannelClosed{Peer: p.ch.RemoteAddr()}
	}
	p.mu.Unlock()

	cid := uuid.NewString()
	p.register(cid)
	err := p.ch.Send(wire.Message{
		Tag:      wire.TagRPCCall,
		CID:      cid,
		Module:   module,
		Function: function,
		Kwargs:   kwargs,
	})
	if err != nil {
		p.unregister(cid)
		return "", fmt.Errorf("portal: submit %s.%s: %w", module, function, err)
	}
	return cid, nil
}

// Result awaits the outcome of the call identified by cid: a single value
// (rpc-return), a fully drained stream (rpc-yield* then rpc-stop), or an
// error (ChannelClosed, RemoteError).
func (p *Portal) Result(cid string) (CallResult, error) {
	p.mu.Lock()
	pc, ok := p.pending[cid]
	p.mu.Unlock()
	if !ok {
		return CallResult{}, fmt.Errorf("portal: unknown call %s", cid)
	}
	defer p.unregister(cid)

	var values []any
	for {
		msg, open := <-pc.msgs
		if !open {
			return CallResult{}, &nurseryerr.ChannelClosed{Peer: p.ch.RemoteAddr()}
		}
		switch msg.Tag {
		case wire.TagRPCReturn:
			return CallResult{Value: msg.Value}, nil
		case wire.TagRPCYield:
			values = append(values, msg.Value)
		case wire.TagRPCStop:
			return CallResult{Values: values, Stream: true}, nil
		case wire.TagRPCError:
			return CallResult{}, &nurseryerr.RemoteError{
				Kind:      msg.ErrKind,
				Message:   msg.ErrMessage,
				Traceback: msg.Traceback,
			}
		}
	}
}

// Run is the common case: submit and await in one call.
func (p *Portal) Run(module, function string, kwargs map[string]any) (CallResult, error) {
	cid, err := p.SubmitForResult(module, function, kwargs)
	if err != nil {
		return CallResult{}, err
	}
	return p.Result(cid)
}

// Stream returns a pull iterator over the call identified by cid, yielding
// one value at a time instead of buffering the whole sequence the way
// Result does. ok is false once the stream (or a single-value call) is
// exhausted; err is non-nil on ChannelClosed or RemoteError, or when cid
// names no pending call.
func (p *Portal) Stream(cid string) func() (value any, ok bool, err error) {
	p.mu.Lock()
	pc, exists := p.pending[cid]
	p.mu.Unlock()
	if !exists {
		return func() (any, bool, error) {
			return nil, false, fmt.Errorf("portal: unknown call %s", cid)
		}
	}

	done := false
	return func() (any, bool, error) {
		if done {
			return nil, false, nil
		}
		msg, open := <-pc.msgs
		if !open {
			done = true
			p.unregister(cid)
			return nil, false, &nurseryerr.ChannelClosed{Peer: p.ch.RemoteAddr()}
		}
		switch msg.Tag {
		case wire.TagRPCYield:
			return msg.Value, true, nil
		case wire.TagRPCStop:
			done = true
			p.unregister(cid)
			return nil, false, nil
		case wire.TagRPCReturn:
			done = true
			p.unregister(cid)
			return msg.Value, true, nil
		case wire.TagRPCError:
			done = true
			p.unregister(cid)
			return nil, false, &nurseryerr.RemoteError{
				Kind:      msg.ErrKind,
				Message:   msg.ErrMessage,
				Traceback: msg.Traceback,
			}
		}
		return nil, false, nil
	}
}

// CancelActor sends a graceful cancel directive and waits for the channel
// to close, or for grace to elapse, whichever comes first.
func (p *Portal) CancelActor(grace time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.ch.Send(wire.Message{Tag: wire.TagCancelActor}); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("portal: cancel_actor: %w", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.closeCh:
		return nil
	case <-timer.C:
		return &nurseryerr.TimeoutExceeded{Op: "cancel_actor"}
	}
}

// Close closes the underlying channel without notifying the remote side.
func (p *Portal) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.mu.Unlock()
	return p.ch.Close()
}

// RemoteAddr returns the address of the actor this portal talks to.
func (p *Portal) RemoteAddr() string { return p.ch.RemoteAddr() }
