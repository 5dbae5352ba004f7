package reconcile

import "errors"

var (
	// ErrNodeNotPresent distinguishes "not yet registered" from other
	// faults so callers can fall back to registration.
	ErrNodeNotPresent = errors.New("reconcile: node not present in membership document")
	// ErrOutOfOrder reports a pnn assignment that would leave or create
	// a gap in the nodes list. Structural, not transient.
	ErrOutOfOrder = errors.New("reconcile: pnn out of order for nodes list")
	// ErrDuplicatePNN reports a registration collision: the claimed pnn
	// is already held by a different address.
	ErrDuplicatePNN = errors.New("reconcile: duplicate pnn")
)
