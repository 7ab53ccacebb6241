// Package nurseryerr defines the typed error kinds from spec §7, so callers
// can use errors.As/errors.Is instead of matching on strings.
package nurseryerr

import "fmt"

// SpawnFailure means a subprocess did not come up. Fatal for the spawning
// call; the nursery continues with its remaining children.
type SpawnFailure struct {
	Name string
	Err  error
}

func (e *SpawnFailure) Error() string {
	return fmt.Sprintf("nursery: failed to spawn actor %q: %v", e.Name, e.Err)
}
func (e *SpawnFailure) Unwrap() error { return e.Err }

// ChannelClosed means the peer disappeared; pending calls on that channel
// fail with this kind and the owning portal becomes unusable.
type ChannelClosed struct {
	Peer string
	Err  error
}

func (e *ChannelClosed) Error() string {
	return fmt.Sprintf("nursery: channel to %s closed: %v", e.Peer, e.Err)
}
func (e *ChannelClosed) Unwrap() error { return e.Err }

// RemoteError carries a structured failure reported by the remote side.
type RemoteError struct {
	Kind       string
	Message    string
	Traceback  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("nursery: remote error (%s): %s", e.Kind, e.Message)
}

// NotFound means find_actor located no registration for the requested name.
type NotFound struct {
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("nursery: no actor registered under name %q", e.Name)
}

// Cancelled means the enclosing scope was cancelled; it should propagate
// upward until a scope handles it and is never treated as an error during
// nursery teardown.
type Cancelled struct {
	Reason string
}

func (e *Cancelled) Error() string { return "nursery: cancelled: " + e.Reason }

// TimeoutExceeded means a bounded operation (cancel deadline, drain
// deadline) ran out. Logged by the caller, then escalated to a hard kill of
// the offending child.
type TimeoutExceeded struct {
	Op string
}

func (e *TimeoutExceeded) Error() string {
	return fmt.Sprintf("nursery: timeout exceeded during %s", e.Op)
}
