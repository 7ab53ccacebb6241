// Package nursery implements the scoped supervisor that spawns child actor
// processes, tracks their portals, and guarantees that no child outlives the
// scope (spec §4.3).
package nursery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/nurseryrun/nursery/actorproc"
	"github.com/nurseryrun/nursery/metrics"
	"github.com/nurseryrun/nursery/nurseryerr"
	"github.com/nurseryrun/nursery/portal"
	"github.com/nurseryrun/nursery/uid"
)

const (
	defaultCancelDeadline      = 3 * time.Second
	defaultStreamDrainDeadline = 1 * time.Second
)

// Config configures a Nursery (teacher-style functional-options struct, per
// actor.EngineConfig).
type Config struct {
	ParentHost          *actorproc.Host
	ArbiterAddr         string
	SpawnBinary         string
	CancelDeadline      time.Duration
	StreamDrainDeadline time.Duration
}

// NewConfig returns the default config: the current binary re-exec'd with
// the actorproc subcommand, a 3s cancel deadline, a 1s stream drain
// deadline (spec §5 default timeouts).
func NewConfig(parentHost *actorproc.Host, arbiterAddr string) Config {
	return Config{
		ParentHost:          parentHost,
		ArbiterAddr:         arbiterAddr,
		CancelDeadline:      defaultCancelDeadline,
		StreamDrainDeadline: defaultStreamDrainDeadline,
	}
}

// WithSpawnBinary overrides the child process binary; default is
// os.Executable() re-exec'd into the actorproc subcommand.
func (c Config) WithSpawnBinary(path string) Config {
	c.SpawnBinary = path
	return c
}

type childState int

const (
	statePendingSpawn childState = iota
	stateConnected
	stateRunning
	stateCancelling
	stateJoined
)

type child struct {
	name   string
	uid    uid.UID
	cmd    *exec.Cmd
	portal *portal.Portal
	state  childState

	exitCh chan error // fed exactly once by the process-sentinel goroutine

	cancelAfterResult bool
	pendingCID        string
}

// Nursery is a scoped supervisor, destroyed on scope exit after every child
// has terminated. It is not confined to the owning actor's goroutine: Wait
// and Cancel update the children map from one goroutine per child, under mu.
type Nursery struct {
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	children  map[uid.UID]*child
	cancelled bool
}

// Open creates a nursery bound to config. Callers normally use Run instead
// of calling Open directly, to get the structured-exit protocol for free.
func Open(config Config) *Nursery {
	if config.CancelDeadline == 0 {
		config.CancelDeadline = defaultCancelDeadline
	}
	if config.StreamDrainDeadline == 0 {
		config.StreamDrainDeadline = defaultStreamDrainDeadline
	}
	return &Nursery{
		config:   config,
		logger:   slog.With("component", "nursery"),
		children: make(map[uid.UID]*child),
	}
}

// StartActor spawns a child actor process and blocks until it has
// connected back and a portal has been constructed around the connection
// (spec §4.3 start_actor).
func (n *Nursery) StartActor(name, bindAddr string, rpcModules []string, statespace map[string]any, loglevel string) (*portal.Portal, error) {
	childUID := uid.New(name)

	n.mu.Lock()
	if n.cancelled {
		n.mu.Unlock()
		return nil, &nurseryerr.Cancelled{Reason: "nursery already cancelled"}
	}
	c := &child{name: name, uid: childUID, state: statePendingSpawn, exitCh: make(chan error, 1)}
	n.children[childUID] = c
	n.mu.Unlock()

	peerWait := n.config.ParentHost.AwaitPeer(childUID)

	cmd, err := n.buildSpawnCommand(childUID, bindAddr, rpcModules, statespace, loglevel)
	if err != nil {
		n.removeChild(childUID)
		return nil, &nurseryerr.SpawnFailure{Name: name, Err: err}
	}
	if err := cmd.Start(); err != nil {
		n.removeChild(childUID)
		return nil, &nurseryerr.SpawnFailure{Name: name, Err: err}
	}

	n.mu.Lock()
	c.cmd = cmd
	n.mu.Unlock()

	go func() {
		c.exitCh <- cmd.Wait()
	}()

	select {
	case ch, ok := <-peerWait:
		if !ok {
			n.removeChild(childUID)
			return nil, &nurseryerr.SpawnFailure{Name: name, Err: fmt.Errorf("pending-peer event cancelled before connect")}
		}
		p := portal.New(ch)
		n.mu.Lock()
		c.portal = p
		c.state = stateConnected
		n.mu.Unlock()
		n.logger.Debug("child connected", "name", name, "uid", childUID.String())
		metrics.IncChildrenRunning()
		return p, nil
	case err := <-c.exitCh:
		n.removeChild(childUID)
		return nil, &nurseryerr.SpawnFailure{Name: name, Err: fmt.Errorf("process exited before connecting: %w", err)}
	}
}

// RunInActor starts an actor whose allow-list includes target's module,
// submits one call, and records the portal for auto-cancellation once its
// result is harvested (spec §4.3 run_in_actor).
func (n *Nursery) RunInActor(name, module, function string, kwargs map[string]any, bindAddr string, statespace map[string]any, loglevel string) (*portal.Portal, error) {
	p, err := n.StartActor(name, bindAddr, []string{module}, statespace, loglevel)
	if err != nil {
		return nil, err
	}
	cid, err := p.SubmitForResult(module, function, kwargs)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	c := n.childByUIDLocked(p)
	if c != nil {
		c.cancelAfterResult = true
		c.pendingCID = cid
	}
	n.mu.Unlock()
	return p, nil
}

func (n *Nursery) childByUIDLocked(p *portal.Portal) *child {
	for _, c := range n.children {
		if c.portal == p {
			return c
		}
	}
	return nil
}

func (n *Nursery) removeChild(u uid.UID) {
	n.mu.Lock()
	delete(n.children, u)
	n.mu.Unlock()
	n.config.ParentHost.CancelPendingPeer(u)
}

// Wait joins every child: for each, waits for the process sentinel, and if
// the child was started via RunInActor, first harvests its result and
// issues cancel_actor (spec §4.3 wait).
func (n *Nursery) Wait() error {
	n.mu.Lock()
	children := make([]*child, 0, len(n.children))
	for _, c := range n.children {
		children = append(children, c)
	}
	n.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *child) {
			defer wg.Done()
			n.joinChild(c)
		}(c)
	}
	wg.Wait()

	metrics.SetChildrenPending(0)
	metrics.SetChildrenRunning(0)
	return nil
}

func (n *Nursery) joinChild(c *child) {
	if c.cancelAfterResult && c.portal != nil {
		if _, err := c.portal.Result(c.pendingCID); err != nil {
			n.logger.Warn("run_in_actor result not clean", "name", c.name, "err", err)
		}
		if err := c.portal.CancelActor(n.config.CancelDeadline); err != nil {
			n.logger.Warn("cancel_actor during wait failed", "name", c.name, "err", err)
		}
	}
	<-c.exitCh
	n.removeChild(c.uid)
	n.logger.Debug("child joined", "name", c.name)
}

// Cancel tears down every child under a bounded deadline. hardKill
// terminates every process directly; otherwise a graceful cancel_actor is
// issued, falling back to hard kill for children still mid-spawn whose
// pending-peer event never fires (spec §4.3 cancel).
func (n *Nursery) Cancel(hardKill bool) error {
	n.mu.Lock()
	if n.cancelled {
		n.mu.Unlock()
		return nil
	}
	n.cancelled = true
	children := make([]*child, 0, len(n.children))
	for _, c := range n.children {
		children = append(children, c)
		c.state = stateCancelling
	}
	n.mu.Unlock()

	metrics.SetChildrenPending(len(children))

	ctx, cancel := context.WithTimeout(context.Background(), n.config.CancelDeadline)
	defer cancel()

	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *child) {
			defer wg.Done()
			n.cancelChild(ctx, c, hardKill)
		}(c)
	}
	wg.Wait()

	return n.Wait()
}

func (n *Nursery) cancelChild(ctx context.Context, c *child, hardKill bool) {
	if hardKill {
		n.hardKill(c)
		return
	}
	if c.portal == nil {
		peerWait := n.config.ParentHost.AwaitPeer(c.uid)
		select {
		case ch, ok := <-peerWait:
			if !ok {
				n.hardKill(c)
				return
			}
			c.portal = portal.New(ch)
		case <-ctx.Done():
			n.hardKill(c)
			return
		}
	}
	if err := c.portal.CancelActor(n.config.CancelDeadline); err != nil {
		n.logger.Warn("graceful cancel failed, hard killing", "name", c.name, "err", err)
		n.hardKill(c)
	}
}

func (n *Nursery) hardKill(c *child) {
	n.mu.Lock()
	cmd := c.cmd
	n.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		n.logger.Debug("hard kill failed (likely already exited)", "name", c.name, "err", err)
	}
}

// Run implements the structured exit protocol (spec §4.3): on cancellation
// it calls Cancel under a shielded path, on any other error it cancels and
// re-raises, and on a normal return it calls Wait — escalating to Cancel if
// Wait itself fails.
func Run(config Config, body func(*Nursery) error) (err error) {
	n := Open(config)
	bodyErr := body(n)

	switch e := bodyErr.(type) {
	case *nurseryerr.Cancelled:
		n.logger.Info("nursery body cancelled, tearing down", "reason", e.Reason)
		_ = n.Cancel(false)
		return nil
	case nil:
		if waitErr := n.Wait(); waitErr != nil {
			n.logger.Error("wait failed, escalating to cancel", "err", waitErr)
			_ = n.Cancel(false)
			return waitErr
		}
		return nil
	default:
		n.logger.Error("nursery body failed", "err", bodyErr)
		_ = n.Cancel(false)
		return bodyErr
	}
}

func (n *Nursery) buildSpawnCommand(childUID uid.UID, bindAddr string, rpcModules []string, statespace map[string]any, loglevel string) (*exec.Cmd, error) {
	bin := n.config.SpawnBinary
	if bin == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve self binary: %w", err)
		}
		bin = self
	}

	stateJSON, err := json.Marshal(statespace)
	if err != nil {
		return nil, fmt.Errorf("marshal statespace: %w", err)
	}

	args := []string{
		"actorproc",
		"--bind", bindAddr,
		"--parent", n.config.ParentHost.ListenAddr(),
		"--name", childUID.Name,
		"--instance", childUID.InstanceID,
		"--arbiter", n.config.ArbiterAddr,
		"--modules", joinComma(rpcModules),
		"--loglevel", loglevel,
		"--statespace", string(stateJSON),
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
