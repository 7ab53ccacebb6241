package arbiter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nurseryrun/nursery/uid"
	"github.com/nurseryrun/nursery/wire"
)

const (
	stateInvalid uint32 = iota
	stateInitialized
	stateRunning
	stateStopped
)

// Config configures an arbiter Server.
type Config struct {
	addr   string
	consul *ConsulMirror
}

// NewConfig returns the default Server config bound to addr.
func NewConfig(addr string) Config {
	return Config{addr: addr}
}

// WithConsulMirror makes every registry mutation additionally write to a
// Consul KV prefix, best-effort (spec §4.5 addition). The in-memory
// Registry stays authoritative; Consul failures are logged, never raised.
func (c Config) WithConsulMirror(m *ConsulMirror) Config {
	c.consul = m
	return c
}

// Server is the arbiter actor: it listens for registration channels and
// transient find requests, and maintains the authoritative Registry.
type Server struct {
	self     uid.UID
	config   Config
	registry *Registry
	listener *wire.Listener
	state    atomic.Uint32
	stopWg   sync.WaitGroup
}

// New returns a Server bound to config.addr, not yet listening.
func New(self uid.UID, config Config) *Server {
	s := &Server{self: self, config: config, registry: NewRegistry()}
	s.state.Store(stateInitialized)
	return s
}

// Registry exposes the server's registry for diagnostics and tests
// (spec's get_registry — local-only, since the wire taxonomy has no
// dedicated message for it).
func (s *Server) Registry() *Registry { return s.registry }

// Start binds the listen socket and begins serving connections in the
// background; it returns once the socket is bound.
func (s *Server) Start() error {
	if !s.state.CompareAndSwap(stateInitialized, stateRunning) {
		return fmt.Errorf("arbiter: server already started")
	}
	ln, err := wire.Listen(s.config.addr)
	if err != nil {
		return fmt.Errorf("arbiter: listen: %w", err)
	}
	s.listener = ln
	s.registry.Register(s.self, ln.Addr())
	slog.Debug("arbiter listening", "addr", ln.Addr())

	s.stopWg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.addr
	}
	return s.listener.Addr()
}

// Stop closes the listener; in-flight connections are abandoned.
func (s *Server) Stop() {
	if !s.state.CompareAndSwap(stateRunning, stateStopped) {
		return
	}
	_ = s.listener.Close()
	s.stopWg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.stopWg.Done()
	for {
		ch, err := s.listener.Accept()
		if err != nil {
			if s.state.Load() == stateStopped {
				return
			}
			slog.Error("arbiter accept failed", "err", err)
			return
		}
		go s.handleConn(ch)
	}
}

func (s *Server) handleConn(ch wire.Channel) {
	defer ch.Close()

	peer, err := wire.Handshake(ch, s.self, false)
	if err != nil {
		slog.Error("arbiter handshake failed", "err", err)
		return
	}

	var registered *uid.UID
	defer func() {
		if registered != nil {
			s.registry.UnregisterAll(*registered)
			if s.config.consul != nil {
				s.config.consul.Remove(*registered)
			}
			slog.Debug("arbiter unregistered on close", "uid", registered.String())
		}
	}()

	for {
		msg, err := ch.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("arbiter connection closed", "peer", peer.String(), "err", err)
			}
			return
		}
		switch msg.Tag {
		case wire.TagRegister:
			s.registry.Register(msg.UID, msg.Addr)
			if s.config.consul != nil {
				s.config.consul.Put(msg.UID, msg.Addr)
			}
			u := msg.UID
			registered = &u
			slog.Debug("arbiter registered", "uid", msg.UID.String(), "addr", msg.Addr)
		case wire.TagUnregister:
			s.registry.Unregister(msg.UID, msg.Addr)
			if s.config.consul != nil {
				s.config.consul.Remove(msg.UID)
			}
		case wire.TagFind:
			foundUID, addrs, ok := s.registry.Find(msg.Name)
			reply := wire.Message{Tag: wire.TagFindResult, CID: msg.CID}
			if ok {
				reply.UID = foundUID
				reply.Addrs = addrs
			}
			if err := ch.Send(reply); err != nil {
				slog.Debug("arbiter find reply failed", "err", err)
				return
			}
		default:
			slog.Warn("arbiter received unexpected tag", "tag", msg.Tag)
		}
	}
}
