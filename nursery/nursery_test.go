package nursery

import (
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nurseryrun/nursery/actorproc"
	"github.com/nurseryrun/nursery/rpcreg"
)

func newTestParentHost(t *testing.T) *actorproc.Host {
	t.Helper()
	h, err := actorproc.New(actorproc.Config{Name: "parent", BindAddr: "127.0.0.1:4000"}, rpcreg.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)
	return h
}

func TestBuildSpawnCommandCarriesChildIdentityAndArbiter(t *testing.T) {
	parent := newTestParentHost(t)
	n := Open(NewConfig(parent, "127.0.0.1:5000").WithSpawnBinary("/bin/true"))

	childUID := parent.UID() // any uid works here, only the arg wiring is under test
	cmd, err := n.buildSpawnCommand(childUID, "127.0.0.1:0", []string{"demo", "other"}, map[string]any{"k": "v"}, "debug")
	require.NoError(t, err)

	args := strings.Join(cmd.Args, " ")
	require.Contains(t, args, "actorproc")
	require.Contains(t, args, "--bind 127.0.0.1:0")
	require.Contains(t, args, "--parent "+parent.ListenAddr())
	require.Contains(t, args, "--name "+childUID.Name)
	require.Contains(t, args, "--instance "+childUID.InstanceID)
	require.Contains(t, args, "--arbiter 127.0.0.1:5000")
	require.Contains(t, args, "--modules demo,other")
	require.Contains(t, args, "--loglevel debug")
}

func TestJoinCommaEmptyAndMultiple(t *testing.T) {
	require.Equal(t, "", joinComma(nil))
	require.Equal(t, "a", joinComma([]string{"a"}))
	require.Equal(t, "a,b,c", joinComma([]string{"a", "b", "c"}))
}

func TestStartActorReturnsSpawnFailureWhenBinaryMissing(t *testing.T) {
	parent := newTestParentHost(t)
	n := Open(NewConfig(parent, "").WithSpawnBinary("/no/such/binary/exists"))

	_, err := n.StartActor("child", "127.0.0.1:0", []string{"demo"}, nil, "info")
	require.Error(t, err)

	n.mu.Lock()
	count := len(n.children)
	n.mu.Unlock()
	require.Zero(t, count, "a failed spawn must not leave a child entry behind")
}

func TestHardKillTerminatesRunningProcess(t *testing.T) {
	parent := newTestParentHost(t)
	n := Open(NewConfig(parent, ""))

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	c := &child{name: "sleepy", cmd: cmd, exitCh: exitCh}
	n.hardKill(c)

	select {
	case err := <-exitCh:
		require.Error(t, err, "killed process should report a non-nil exit error")
	case <-time.After(2 * time.Second):
		t.Fatal("hard-killed process never exited")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	parent := newTestParentHost(t)
	n := Open(NewConfig(parent, ""))

	require.NoError(t, n.Cancel(false))
	require.NoError(t, n.Cancel(false))
}
