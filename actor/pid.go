package actor

import (
	"github.com/zeebo/xxh3"
)

// pidSeparator separates address from id in a PID's string form.
const pidSeparator = "/"

// PID addresses one process hosted by an Engine: Address identifies which
// engine (its listen address, or LocalLookupAddr for an engine with no
// remote transport attached), ID identifies the process within that engine.
type PID struct {
	Address string
	ID      string
}

// NewPID returns a new process id for the given address and id.
func NewPID(address, id string) *PID {
	return &PID{Address: address, ID: id}
}

// String returns the "address/id" form of the PID.
func (pid *PID) String() string {
	return pid.Address + pidSeparator + pid.ID
}

// GetID returns the ID portion, tolerating a nil receiver.
func (pid *PID) GetID() string {
	if pid == nil {
		return ""
	}
	return pid.ID
}

// Equals reports whether two PIDs address the same process.
func (pid *PID) Equals(other *PID) bool {
	if pid == nil || other == nil {
		return pid == other
	}
	return pid.Address == other.Address && pid.ID == other.ID
}

// Child returns a PID for a child process nested under this one.
func (pid *PID) Child(id string) *PID {
	childID := pid.ID + pidSeparator + id
	return NewPID(pid.Address, childID)
}

// Clone returns a value copy of the PID, safe to retain past the lifetime
// of the pointer it was copied from.
func (pid *PID) Clone() *PID {
	cp := *pid
	return &cp
}

// LookupKey returns a hash suitable for use as a fast map key.
func (pid *PID) LookupKey() uint64 {
	key := []byte(pid.Address)
	key = append(key, pid.ID...)
	return xxh3.Hash(key)
}
