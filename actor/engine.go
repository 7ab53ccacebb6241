package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Remoter abstracts the transport plugged into an Engine so it can address
// processes hosted by other engines (other actor processes, in this
// runtime's terms). Nothing in this module implements it; actorproc builds
// its engine without one.
type Remoter interface {
	Address() string
	Send(*PID, any, *PID)
	Start(*Engine) error
	Stop() *sync.WaitGroup
}

// Producer returns a fresh Receiver; Spawn calls it once per process so the
// same Producer can be reused to create many independent instances.
type Producer func() Receiver

// Receiver processes messages delivered to one process.
type Receiver interface {
	Receive(*Context)
}

// Engine is one actor process's local message-dispatch core: every actor
// process embeds exactly one Engine and uses it to host its connection and
// RPC-handler tasks as lightweight in-process receivers. actorproc attaches
// no Remoter, so its engine only addresses processes on the same engine.
type Engine struct {
	Registry    *Registry
	address     string
	remote      Remoter
	eventStream *PID
}

// EngineConfig holds engine construction options.
type EngineConfig struct {
	remote Remoter
}

// NewEngineConfig returns a new default EngineConfig.
func NewEngineConfig() EngineConfig {
	return EngineConfig{}
}

// WithRemote attaches a transport, letting the engine send to and receive
// from processes hosted by other engines.
func (config EngineConfig) WithRemote(remote Remoter) EngineConfig {
	config.remote = remote
	return config
}

// NewEngine returns a new Engine built from config.
func NewEngine(config EngineConfig) (*Engine, error) {
	e := &Engine{}
	e.Registry = newRegistry(e)
	e.address = LocalLookupAddr
	if config.remote != nil {
		e.remote = config.remote
		e.address = config.remote.Address()
		if err := config.remote.Start(e); err != nil {
			return nil, fmt.Errorf("starting remote transport: %w", err)
		}
	}
	e.eventStream = e.Spawn(newEventStream(), "eventstream")
	return e, nil
}

// Spawn creates a process from the given Producer, configured by opts.
func (e *Engine) Spawn(p Producer, kind string, opts ...OptFunc) *PID {
	options := DefaultOpts(p)
	options.Kind = kind
	for _, opt := range opts {
		opt(&options)
	}
	if len(options.ID) == 0 {
		options.ID = uuid.NewString()
	}
	proc := newProcess(e, options)
	return e.SpawnProc(proc)
}

// SpawnFunc spawns a stateless function as a Receiver.
func (e *Engine) SpawnFunc(f func(*Context), kind string, opts ...OptFunc) *PID {
	return e.Spawn(newFuncReceiver(f), kind, opts...)
}

// SpawnProc registers and starts a caller-constructed Processer. Useful when
// a component needs process-table membership without going through the
// normal Producer/Receiver path.
func (e *Engine) SpawnProc(p Processer) *PID {
	e.Registry.add(p)
	return p.PID()
}

// Address returns the engine's address: "local" when no transport is
// attached, otherwise the transport's listen address.
func (e *Engine) Address() string {
	return e.address
}

// Request sends msg to pid as a request, returning a Response that resolves
// once a reply arrives or timeout elapses.
func (e *Engine) Request(pid *PID, msg any, timeout time.Duration) *Response {
	resp := NewResponse(e, timeout)
	e.Registry.add(resp)
	e.SendWithSender(pid, msg, resp.PID())
	return resp
}

// SendWithSender sends msg to pid, attaching sender so the Receiver can
// reply via Context.Sender().
func (e *Engine) SendWithSender(pid *PID, msg any, sender *PID) {
	e.send(pid, msg, sender)
}

// Send delivers msg to pid; if pid isn't registered the message goes to the
// dead-letter event instead.
func (e *Engine) Send(pid *PID, msg any) {
	e.send(pid, msg, nil)
}

// BroadcastEvent publishes msg to every subscriber of the event stream.
func (e *Engine) BroadcastEvent(msg any) {
	if e.eventStream != nil {
		e.send(e.eventStream, msg, nil)
	}
}

func (e *Engine) send(pid *PID, msg any, sender *PID) {
	if pid == nil {
		return
	}
	if e.isLocalMessage(pid) {
		e.SendLocal(pid, msg, sender)
		return
	}
	if e.remote == nil {
		e.BroadcastEvent(EngineRemoteMissingEvent{Target: pid, Sender: sender, Message: msg})
		return
	}
	e.remote.Send(pid, msg, sender)
}

// SendRepeater sends a message to a target PID on a fixed interval until
// stopped.
type SendRepeater struct {
	engine   *Engine
	self     *PID
	target   *PID
	msg      any
	interval time.Duration
	cancelch chan struct{}
}

func (sr SendRepeater) start() {
	ticker := time.NewTicker(sr.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				sr.engine.SendWithSender(sr.target, sr.msg, sr.self)
			case <-sr.cancelch:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the repeated send.
func (sr SendRepeater) Stop() {
	close(sr.cancelch)
}

// SendRepeat sends msg to pid every interval until the returned
// SendRepeater's Stop is called.
func (e *Engine) SendRepeat(pid *PID, msg any, interval time.Duration) SendRepeater {
	clonedPID := *pid.Clone()
	sr := SendRepeater{
		engine:   e,
		target:   &clonedPID,
		interval: interval,
		msg:      msg,
		cancelch: make(chan struct{}, 1),
	}
	sr.start()
	return sr
}

// Stop sends a non-graceful poison pill to the process at pid: it shuts
// down immediately. Returns a context that completes once the process has
// stopped.
func (e *Engine) Stop(pid *PID) context.Context {
	return e.sendPoisonPill(context.Background(), false, pid)
}

// Poison sends a graceful poison pill: the process drains its inbox before
// stopping. Returns a context that completes once the process has stopped.
func (e *Engine) Poison(pid *PID) context.Context {
	return e.sendPoisonPill(context.Background(), true, pid)
}

// PoisonCtx behaves like Poison but accepts a context for a custom timeout
// or manual cancellation.
func (e *Engine) PoisonCtx(ctx context.Context, pid *PID) context.Context {
	return e.sendPoisonPill(ctx, true, pid)
}

func (e *Engine) sendPoisonPill(ctx context.Context, graceful bool, pid *PID) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	pill := poisonPill{cancel: cancel, graceful: graceful}
	if e.Registry.get(pid) == nil {
		e.BroadcastEvent(DeadLetterEvent{Target: pid, Message: pill, Sender: nil})
		cancel()
		return ctx
	}
	e.SendLocal(pid, pill, nil)
	return ctx
}

// SendLocal delivers msg to the process registered under pid on this
// engine, falling back to the dead-letter event if none is registered.
func (e *Engine) SendLocal(pid *PID, msg any, sender *PID) {
	proc := e.Registry.get(pid)
	if proc == nil {
		e.BroadcastEvent(DeadLetterEvent{Target: pid, Message: msg, Sender: sender})
		return
	}
	proc.Send(pid, msg, sender)
}

// Subscribe subscribes pid to the event stream.
func (e *Engine) Subscribe(pid *PID) {
	e.Send(e.eventStream, eventSub{pid: pid})
}

// Unsubscribe removes pid from the event stream.
func (e *Engine) Unsubscribe(pid *PID) {
	e.Send(e.eventStream, eventUnsub{pid: pid})
}

func (e *Engine) isLocalMessage(pid *PID) bool {
	if pid == nil {
		return false
	}
	return e.address == pid.Address
}

type funcReceiver struct {
	f func(*Context)
}

func newFuncReceiver(f func(*Context)) Producer {
	return func() Receiver {
		return &funcReceiver{f: f}
	}
}

func (r *funcReceiver) Receive(c *Context) {
	r.f(c)
}
