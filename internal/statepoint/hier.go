package statepoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/statemesh/statemesh-go/internal/comm"
	"github.com/statemesh/statemesh-go/internal/container"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
)

// hierBackend stores named, grouped, typed datasets in a container file.
// The owner rank holds the metadata plane (TOC, allocation, attributes);
// in collective write mode every other rank holds a raw data-plane
// handle and writes its partitioned sub-ranges at offsets the owner
// allocates and broadcasts. Replicated values and all metadata are
// written once, by the owner.
type hierBackend struct {
	comm  comm.Communicator
	owner int
	log   logger.Logger

	cf  *container.File // owner, write mode
	raw *container.Raw  // non-owner, collective write mode
	rf  *container.File // every rank, read mode
}

func createHier(path string, cfg Config) (*hierBackend, error) {
	c := cfg.Comm
	b := &hierBackend{comm: c, owner: cfg.Owner, log: cfg.Logger}

	var err error
	if c.Rank() == cfg.Owner {
		b.cf, err = container.Create(path)
	}
	// The owner reaches the barrier even on error so a failed create
	// does not hang the group; the other ranks then fail their raw open.
	c.Barrier()
	if c.Rank() != cfg.Owner {
		b.raw, err = container.OpenRaw(path)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, openErr("create", err)
		}
		return nil, err
	}
	return b, nil
}

func openHier(path string, access Access, cfg Config) (*hierBackend, error) {
	if access == AccessWrite {
		// A closed container is finalized: its TOC and checksum trailer
		// would be stale after any append.
		return nil, fmt.Errorf("statepoint: hierarchical files cannot be reopened for writing")
	}
	rf, err := container.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, openErr("open", err)
		}
		return nil, err
	}
	return &hierBackend{
		comm:  cfg.Comm,
		owner: cfg.Owner,
		log:   cfg.Logger,
		rf:    rf,
	}, nil
}

func (b *hierBackend) maxDims() int { return 3 }

func (b *hierBackend) writeDataset(ds dataset, data []byte) error {
	if b.rf != nil {
		return ErrReadOnly
	}
	if b.cf == nil {
		return nil // data plane rank; replicated values are owner-only
	}
	_, err := b.cf.WriteDataset(ds.path(), ds.kind, ds.dims, data)
	return err
}

func (b *hierBackend) readDataset(ds dataset, transfer Transfer, dst []byte) error {
	if b.rf == nil {
		return ErrWriteOnly
	}
	e, data, err := b.rf.ReadDataset(ds.path())
	if err != nil {
		return err
	}
	if int64(len(dst)) != e.Length {
		return fmt.Errorf("statepoint: %s holds %d bytes, caller expects %d", ds.path(), e.Length, len(dst))
	}
	copy(dst, data)
	if transfer == Collective {
		b.comm.Barrier()
	}
	return nil
}

func (b *hierBackend) writeAttr(ds dataset, attr, value string) error {
	if b.rf != nil {
		return ErrReadOnly
	}
	if b.cf == nil {
		return nil
	}
	return b.cf.SetAttr(ds.path(), attr, value)
}

// writeBank persists the distributed source bank as one dataset whose
// extent is the global particle count. The owner allocates the extent
// and broadcasts its absolute payload offset; every rank then writes its
// contiguous record range positionally through its own handle.
func (b *hierBackend) writeBank(ds dataset, part Partition, recordSize int64, local []byte) error {
	if b.rf != nil {
		return ErrReadOnly
	}

	var entry *container.Entry
	off := make([]byte, 8)
	if b.cf != nil {
		e, err := b.cf.Alloc(ds.path(), container.Opaque, []int64{part.Total, recordSize})
		if err != nil {
			return err
		}
		entry = e
		binary.LittleEndian.PutUint64(off, uint64(e.Offset))
	}
	if err := b.comm.Bcast(b.owner, off); err != nil {
		return fmt.Errorf("statepoint: broadcast bank offset: %w", err)
	}

	var err error
	if b.cf != nil {
		err = b.cf.WriteSlice(entry, part.BankFirst*recordSize, local)
	} else {
		abs := int64(binary.LittleEndian.Uint64(off)) + part.BankFirst*recordSize
		err = b.raw.WriteAt(local, abs)
	}
	b.comm.Barrier()
	return err
}

func (b *hierBackend) readBank(ds dataset, part Partition, recordSize int64, local []byte) error {
	if b.rf == nil {
		return ErrWriteOnly
	}
	e, ok := b.rf.Lookup(ds.path())
	if !ok {
		return fmt.Errorf("%w: %s", container.ErrNotFound, ds.path())
	}
	return b.rf.ReadSlice(e, part.BankFirst*recordSize, local)
}

func (b *hierBackend) writeTally(ds dataset, n1, n2 int64, results []TallyResult) error {
	if b.rf != nil {
		return ErrReadOnly
	}
	if b.cf == nil {
		return nil
	}
	_, err := b.cf.WriteDataset(ds.path(), container.Tally, []int64{n1, n2}, packTally(results))
	return err
}

func (b *hierBackend) readTally(ds dataset, n1, n2 int64, results []TallyResult) error {
	buf := make([]byte, 16*n1*n2)
	if err := b.readDataset(dataset{name: ds.name, group: ds.group, kind: container.Tally}, Independent, buf); err != nil {
		return err
	}
	unpackTally(buf, results)
	return nil
}

// close finalizes the file. Data-plane handles sync before the owner
// computes the checksum trailer, so slab bytes written by other ranks
// are covered by it.
func (b *hierBackend) close() error {
	if b.rf != nil {
		return b.rf.Close()
	}

	var err error
	if b.raw != nil {
		if serr := b.raw.Sync(); serr != nil {
			err = serr
		}
		if cerr := b.raw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	b.comm.Barrier()
	if b.cf != nil {
		if cerr := b.cf.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	b.comm.Barrier()
	return err
}
