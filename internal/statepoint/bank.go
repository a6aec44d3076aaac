package statepoint

import (
	"fmt"
	"time"

	"github.com/statemesh/statemesh-go/internal/container"
)

// Partition describes one worker's share of the distributed source bank,
// as produced by the load balancer. Records are assigned in contiguous
// global index order: this worker owns [BankFirst, BankFirst+Work).
type Partition struct {
	Rank    int
	Workers int

	BankFirst int64 // global index of this worker's first record
	Work      int64 // records owned by this worker
	Total     int64 // global record count across all workers
	MaxWork   int64 // largest Work of any worker; sets the stream slot stride
}

// WriteSourceBank persists this worker's bank records. The hierarchical
// backend writes them into a shared dataset spanning the global count;
// the collective stream writes them into a per-worker slot strided by
// MaxWork; the sequential backend appends them at the cursor. local must
// hold exactly Work records of recordSize bytes.
func (f *File) WriteSourceBank(req Request, part Partition, recordSize int64, local []byte) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	if int64(len(local)) != part.Work*recordSize {
		return fmt.Errorf("statepoint: bank %s: %d bytes for %d records of %d bytes",
			req.Name, len(local), part.Work, recordSize)
	}
	start := time.Now()
	if err := f.b.writeBank(f.ds(req, container.Opaque), part, recordSize, local); err != nil {
		return err
	}
	f.metrics.ObserveWrite(len(local), time.Since(start))
	f.metrics.ObserveBank(part.Work)
	return nil
}

// ReadSourceBank restores this worker's bank records into local, which
// must hold exactly Work records of recordSize bytes. The partition does
// not have to match the one used at write time on the hierarchical
// backend; stream backends require the same worker count and MaxWork.
func (f *File) ReadSourceBank(req Request, part Partition, recordSize int64, local []byte) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	if int64(len(local)) != part.Work*recordSize {
		return fmt.Errorf("statepoint: bank %s: %d bytes for %d records of %d bytes",
			req.Name, len(local), part.Work, recordSize)
	}
	return f.b.readBank(f.ds(req, container.Opaque), part, recordSize, local)
}
