// Package comm defines the collective process-group contract consumed by
// the checkpoint backends.
//
// The subsystem never bootstraps a process group itself; it is handed a
// Communicator by the caller. Every method is collective and blocking:
// all ranks of the group must invoke the same methods in the same order,
// or the group deadlocks. There is no cancellation; a stalled rank stalls
// its peers.
package comm

import "errors"

var ErrSizeMismatch = errors.New("comm: broadcast buffer size mismatch")

// Communicator is one rank's view of a cooperating worker group.
type Communicator interface {
	// Rank returns this worker's 0-based rank within the group.
	Rank() int
	// Size returns the number of workers in the group.
	Size() int
	// Barrier blocks until every rank of the group has entered it.
	Barrier()
	// Bcast distributes root's buf to all ranks. Every rank must pass a
	// buffer of identical length; the call blocks until the whole group
	// has participated.
	Bcast(root int, buf []byte) error
}

// single is the trivial one-worker group used by serial runs.
type single struct{}

func (single) Rank() int               { return 0 }
func (single) Size() int               { return 1 }
func (single) Barrier()                {}
func (single) Bcast(int, []byte) error { return nil }

// Single returns a Communicator for a lone worker. All collective
// operations complete immediately.
func Single() Communicator {
	return single{}
}
