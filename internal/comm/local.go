package comm

import "sync"

// group is shared state for an in-process worker group. Ranks are
// goroutines; collective calls synchronize through a generation-counted
// barrier.
type group struct {
	mu   sync.Mutex
	cond *sync.Cond
	size int

	arrived    int
	generation uint64

	payload []byte
}

func (g *group) barrier() {
	g.mu.Lock()
	gen := g.generation
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
	} else {
		for gen == g.generation {
			g.cond.Wait()
		}
	}
	g.mu.Unlock()
}

// local is one rank of an in-process group.
type local struct {
	g    *group
	rank int
}

func (l *local) Rank() int { return l.rank }
func (l *local) Size() int { return l.g.size }

func (l *local) Barrier() { l.g.barrier() }

func (l *local) Bcast(root int, buf []byte) error {
	g := l.g
	if l.rank == root {
		g.mu.Lock()
		g.payload = append(g.payload[:0], buf...)
		g.mu.Unlock()
	}

	// Publish, copy, release. The second barrier keeps the payload slot
	// stable until every rank has read it.
	g.barrier()

	var err error
	if l.rank != root {
		g.mu.Lock()
		if len(g.payload) != len(buf) {
			err = ErrSizeMismatch
		}
		copy(buf, g.payload)
		g.mu.Unlock()
	}

	g.barrier()
	return err
}

// Local returns n Communicators sharing one in-process group, one per
// rank in rank order. Intended for tests and single-host multi-worker
// runs; each returned value must be driven by its own goroutine.
func Local(n int) []Communicator {
	g := &group{size: n}
	g.cond = sync.NewCond(&g.mu)

	out := make([]Communicator, n)
	for i := range out {
		out[i] = &local{g: g, rank: i}
	}
	return out
}
