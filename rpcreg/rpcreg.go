// Package rpcreg is the static substitute for tractor's dynamic
// "(module, function)" resolution by runtime import (spec §9 Design Notes,
// "Dynamic dispatch of RPC targets"). Go has no runtime import, so targets
// are instead populated by declarative registration at process startup; the
// set of registered module tags an actor is willing to expose becomes its
// RPC allow-list.
package rpcreg

import (
	"context"
	"fmt"
	"sync"
)

// Target names one callable RPC endpoint.
type Target struct {
	Module   string
	Function string
}

func (t Target) String() string { return t.Module + "." + t.Function }

// Call carries one inbound invocation's arguments plus anything a handler
// needs to cooperate with the surrounding runtime (cancellation, streaming).
type Call struct {
	Ctx    context.Context
	Kwargs map[string]any
}

// Func is a unary RPC handler: call in, single value or error out.
type Func func(call *Call) (any, error)

// Yield is called by a streaming handler once per produced value; a
// non-nil error means the subscriber/caller went away and the handler
// should stop.
type Yield func(value any) error

// GenFunc is a streaming RPC handler: it drives yield until done, returning
// nil on a clean finish or an error that becomes a RemoteError.
type GenFunc func(call *Call, yield Yield) error

type entry struct {
	fn     Func
	gen    GenFunc
	stream bool
}

// Registry is a process-wide table of (module, function) -> handler. One
// Registry is typically shared by every actor in a program; each actor's
// configured allow-list (RPCModules) restricts which modules it will
// actually resolve against at runtime.
type Registry struct {
	mu      sync.RWMutex
	entries map[Target]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Target]entry)}
}

// RegisterFunc registers a unary handler under (module, function).
func (r *Registry) RegisterFunc(module, function string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[Target{Module: module, Function: function}] = entry{fn: fn}
}

// RegisterGen registers a streaming handler under (module, function).
func (r *Registry) RegisterGen(module, function string, fn GenFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[Target{Module: module, Function: function}] = entry{gen: fn, stream: true}
}

// ErrNotAllowed reports a resolution against a module outside the caller's
// allow-list.
type ErrNotAllowed struct{ Module string }

func (e *ErrNotAllowed) Error() string {
	return fmt.Sprintf("rpcreg: module %q is not in the allow-list", e.Module)
}

// ErrNotFound reports that no handler is registered for a target at all.
type ErrNotFound struct{ Target Target }

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("rpcreg: no handler registered for %s", e.Target)
}

// Resolve looks up (module, function), first checking it against allowList
// (nil or empty means nothing is allowed, matching the spec's "allow-list
// of module identifiers" being explicit and opt-in).
func (r *Registry) Resolve(allowList []string, module, function string) (Func, GenFunc, error) {
	allowed := false
	for _, m := range allowList {
		if m == module {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil, &ErrNotAllowed{Module: module}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Target{Module: module, Function: function}]
	if !ok {
		return nil, nil, &ErrNotFound{Target: Target{Module: module, Function: function}}
	}
	if e.stream {
		return nil, e.gen, nil
	}
	return e.fn, nil, nil
}
