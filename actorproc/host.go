// Package actorproc is the runtime a spawned child process boots into: it
// binds a listen socket, registers with the arbiter, handshakes with its
// parent, serves inbound RPCs, and hosts the per-actor pub/sub state space
// (spec §4.1 steps 1-4, §6 spawn interface).
package actorproc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nurseryrun/nursery/actor"
	"github.com/nurseryrun/nursery/arbiter"
	"github.com/nurseryrun/nursery/rpcreg"
	"github.com/nurseryrun/nursery/safemap"
	"github.com/nurseryrun/nursery/uid"
	"github.com/nurseryrun/nursery/wire"
)

// Config configures a Host (spec §6 configuration surface: arbiter_addr,
// bind_addr, rpc_modules, loglevel, statespace, plus the [ADD] discovery
// flag).
type Config struct {
	Name        string
	InstanceID  string // if set, reuses this instance id instead of minting one (spec §4.3: the nursery allocates the UID before spawn)
	BindAddr    string
	ArbiterAddr string
	ParentAddr  string
	RPCModules  []string
	StateSpace  map[string]any
	Discovery   bool
}

// Host is the running actor: one per process.
type Host struct {
	self     uid.UID
	config   Config
	registry *rpcreg.Registry
	state    *safemap.SafeMap[string, any]
	logger   *slog.Logger
	listener *wire.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	// engine supervises this actor's tasks: every inbound connection and
	// every RPC call runs as its own lightweight in-process receiver hosted
	// on engine, so panics are caught and restarted instead of taking the
	// process down. Tasks run concurrently on separate goroutines; they are
	// not scheduled cooperatively on a single thread.
	engine *actor.Engine

	arbiterChan wire.Channel

	peersMu      sync.Mutex
	pendingPeers map[uid.UID]chan wire.Channel
	peers        map[uid.UID][]wire.Channel
}

// New constructs a Host bound to nothing yet; call Serve to bind and run.
func New(config Config, registry *rpcreg.Registry) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())
	state := safemap.New[string, any]()
	for k, v := range config.StateSpace {
		state.Set(k, v)
	}
	self := uid.New(config.Name)
	if config.InstanceID != "" {
		self.InstanceID = config.InstanceID
	}
	engine, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("actorproc: starting task scheduler: %w", err)
	}
	return &Host{
		self:         self,
		config:       config,
		registry:     registry,
		state:        state,
		logger:       slog.With("actor", config.Name),
		ctx:          ctx,
		cancel:       cancel,
		engine:       engine,
		pendingPeers: make(map[uid.UID]chan wire.Channel),
		peers:        make(map[uid.UID][]wire.Channel),
	}, nil
}

// spawnTask runs fn as a one-shot receiver on the host's engine, spawned from
// a goroutine of its own so the caller does not wait for fn: fn executes once
// the process sees Started, then the process stops itself. This replaces a
// bare `go fn()` with a supervised task — a panic inside fn is recovered and
// fn is re-run (up to the process's restart budget) instead of crashing the
// actor.
func (h *Host) spawnTask(kind string, fn func()) {
	go h.engine.SpawnFunc(func(c *actor.Context) {
		if _, ok := c.Message().(actor.Started); ok {
			fn()
			c.Engine().Stop(c.PID())
		}
	}, kind)
}

// UID returns this actor's identity.
func (h *Host) UID() uid.UID { return h.self }

// StateSpace returns the actor-local state map, seeded from
// Config.StateSpace. The pub/sub fan-out does not use it: each
// pubsub.Publisher keeps its slot mutexes and topic tables itself.
func (h *Host) StateSpace() *safemap.SafeMap[string, any] { return h.state }

// ListenAddr returns the bound listen address; valid only after Serve has
// started.
func (h *Host) ListenAddr() string {
	if h.listener == nil {
		return h.config.BindAddr
	}
	return h.listener.Addr()
}

// Serve binds the listen socket, registers with the arbiter, connects back
// to the parent if one was configured, and blocks accepting inbound
// connections until ctx is cancelled.
func (h *Host) Serve(ctx context.Context) error {
	ln, err := wire.Listen(h.config.BindAddr)
	if err != nil {
		return fmt.Errorf("actorproc: listen %s: %w", h.config.BindAddr, err)
	}
	h.listener = ln
	h.logger.Debug("listening", "addr", ln.Addr())

	arbiterAddr := h.config.ArbiterAddr
	if arbiterAddr == "" && h.config.Discovery {
		addr, err := arbiter.Discover()
		if err != nil {
			return fmt.Errorf("actorproc: arbiter discovery: %w", err)
		}
		arbiterAddr = addr
	}
	if arbiterAddr != "" && arbiterAddr != ln.Addr() {
		achan, err := arbiter.Register(arbiterAddr, h.self, ln.Addr())
		if err != nil {
			return fmt.Errorf("actorproc: register with arbiter: %w", err)
		}
		h.arbiterChan = achan
		h.logger.Debug("registered with arbiter", "arbiter", arbiterAddr)
	}

	if h.config.ParentAddr != "" {
		if err := h.connectParent(); err != nil {
			return fmt.Errorf("actorproc: connect to parent: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		h.Shutdown()
	}()

	return h.acceptLoop()
}

func (h *Host) connectParent() error {
	ch, err := wire.Dial(h.config.ParentAddr)
	if err != nil {
		return err
	}
	peerUID, err := wire.Handshake(ch, h.self, true)
	if err != nil {
		ch.Close()
		return err
	}
	h.addPeer(peerUID, ch)
	h.spawnTask("peer-serve", func() { h.serveChannel(ch, peerUID) })
	return nil
}

func (h *Host) acceptLoop() error {
	for {
		ch, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.ctx.Done():
				return nil
			default:
				return fmt.Errorf("actorproc: accept: %w", err)
			}
		}
		h.spawnTask("peer-accept", func() { h.handleInbound(ch) })
	}
}

func (h *Host) handleInbound(ch wire.Channel) {
	peerUID, err := wire.Handshake(ch, h.self, false)
	if err != nil {
		h.logger.Error("handshake failed", "err", err)
		ch.Close()
		return
	}
	h.addPeer(peerUID, ch)
	h.firePeer(peerUID, ch)
	h.serveChannel(ch, peerUID)
}

func (h *Host) addPeer(peerUID uid.UID, ch wire.Channel) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	h.peers[peerUID] = append(h.peers[peerUID], ch)
}

// AwaitPeer returns the channel a nursery blocks on for its pending-peer
// event: it fires exactly once, the first time peerUID connects.
func (h *Host) AwaitPeer(peerUID uid.UID) <-chan wire.Channel {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	c, ok := h.pendingPeers[peerUID]
	if !ok {
		c = make(chan wire.Channel, 1)
		h.pendingPeers[peerUID] = c
	}
	return c
}

func (h *Host) firePeer(peerUID uid.UID, ch wire.Channel) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	c, ok := h.pendingPeers[peerUID]
	if !ok {
		c = make(chan wire.Channel, 1)
		h.pendingPeers[peerUID] = c
	}
	select {
	case c <- ch:
	default:
	}
}

// CancelPendingPeer unblocks any AwaitPeer waiter for peerUID without ever
// delivering a channel — used when a nursery gives up on a still-spawning
// child (spec §4.3 cancel, pending-spawn branch).
func (h *Host) CancelPendingPeer(peerUID uid.UID) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	if c, ok := h.pendingPeers[peerUID]; ok {
		close(c)
		delete(h.pendingPeers, peerUID)
	}
}

// Shutdown closes the listener, the arbiter registration channel (which
// signals the arbiter to unregister this UID), and cancels the host's root
// context.
func (h *Host) Shutdown() {
	h.cancel()
	if h.listener != nil {
		_ = h.listener.Close()
	}
	if h.arbiterChan != nil {
		_ = h.arbiterChan.Close()
	}
}
