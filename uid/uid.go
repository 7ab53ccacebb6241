// Package uid defines actor identity: a (name, instance_id) pair stable for
// the lifetime of one actor process.
package uid

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// UID identifies one actor process. Name is the logical/kind name given at
// spawn time (not necessarily unique cluster-wide); InstanceID is a freshly
// generated opaque token created once per process and never reused.
type UID struct {
	Name       string
	InstanceID string
	// Region is a free-form diagnostic label. It plays no part in routing
	// or registry lookups.
	Region string
}

// New returns a fresh UID for an actor named name. InstanceID is a random
// UUID, matching the "opaque token per process" requirement without
// depending on any particular entropy source being available at call sites.
func New(name string) UID {
	return UID{Name: name, InstanceID: uuid.NewString(), Region: "default"}
}

// WithRegion returns a copy of the UID tagged with the given region.
func (u UID) WithRegion(region string) UID {
	u.Region = region
	return u
}

// String renders the UID in "name/instance_id" form.
func (u UID) String() string {
	return u.Name + "/" + u.InstanceID
}

// Equals reports whether two UIDs name the same actor instance.
func (u UID) Equals(other UID) bool {
	return u.Name == other.Name && u.InstanceID == other.InstanceID
}

// IsZero reports whether u is the zero value.
func (u UID) IsZero() bool {
	return u.Name == "" && u.InstanceID == ""
}

// LookupKey returns a hash suitable for use as a fast map key, mirroring the
// actor package's PID.LookupKey.
func (u UID) LookupKey() uint64 {
	key := []byte(u.Name)
	key = append(key, '/')
	key = append(key, u.InstanceID...)
	return xxh3.Hash(key)
}

// Parse parses the "name/instance_id" form produced by String.
func Parse(s string) (UID, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return UID{Name: s[:i], InstanceID: s[i+1:], Region: "default"}, nil
		}
	}
	return UID{}, fmt.Errorf("uid: malformed identity %q", s)
}
