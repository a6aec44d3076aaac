package statepoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"golang.org/x/time/rate"

	"github.com/statemesh/statemesh-go/internal/comm"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
	"github.com/statemesh/statemesh-go/pkg/slab"
)

// streamBackend is the collective flavor of the flat positional stream.
// Every worker holds a handle on the same file and mirrors one shared
// write position by advancing it identically on every collective call.
// Replicated values are written once, by the owner; partitioned payloads
// (the source bank) are written by every worker into its own slot.
type streamBackend struct {
	f        *os.File
	comm     comm.Communicator
	owner    int
	pos      int64 // mirrored on every worker
	width    int   // broadcast offset width in bits: 32 or 64
	writable bool
	limiter  *rate.Limiter
	log      logger.Logger
}

func createStream(path string, cfg Config) (*streamBackend, error) {
	c := cfg.Comm
	var f *os.File
	var err error
	if c.Rank() == cfg.Owner {
		f, err = os.Create(path)
		if err == nil {
			if _, werr := f.Write([]byte(streamMagic)); werr != nil {
				f.Close()
				os.Remove(path)
				err = fmt.Errorf("statepoint: write magic: %w", werr)
			}
		} else {
			err = openErr("create", err)
		}
	}
	// Everyone waits for the owner to lay down the header before
	// opening; create failures on the owner would otherwise hang the
	// group, so the owner reaches the barrier even on error.
	c.Barrier()
	if c.Rank() != cfg.Owner {
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			err = openErr("open", err)
		}
	}
	if err != nil {
		return nil, err
	}
	return &streamBackend{
		f:        f,
		comm:     c,
		owner:    cfg.Owner,
		pos:      streamMagicSize,
		width:    cfg.OffsetWidth,
		writable: true,
		limiter:  newLimiter(cfg.MaxWriteRate),
		log:      cfg.Logger,
	}, nil
}

func openStream(path string, access Access, cfg Config) (*streamBackend, error) {
	flag := os.O_RDONLY
	if access == AccessWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, openErr("open", err)
	}
	if err := verifyStreamMagic(f); err != nil {
		f.Close()
		return nil, err
	}

	pos := int64(streamMagicSize)
	if access == AccessWrite {
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("statepoint: stat: %w", err)
		}
		pos = stat.Size()
	}
	return &streamBackend{
		f:        f,
		comm:     cfg.Comm,
		owner:    cfg.Owner,
		pos:      pos,
		width:    cfg.OffsetWidth,
		writable: access == AccessWrite,
		limiter:  newLimiter(cfg.MaxWriteRate),
		log:      cfg.Logger,
	}, nil
}

func (b *streamBackend) maxDims() int { return 1 }

// writeDataset writes a replicated value: the owner persists it, every
// worker advances the mirrored position, and the group synchronizes so
// the bytes are visible before anyone moves past them.
func (b *streamBackend) writeDataset(ds dataset, data []byte) error {
	if !b.writable {
		return ErrReadOnly
	}
	var err error
	if b.comm.Rank() == b.owner {
		throttle(b.limiter, len(data))
		if _, werr := b.f.WriteAt(data, b.pos); werr != nil {
			err = fmt.Errorf("statepoint: write at %d: %w", b.pos, werr)
		}
	}
	b.pos += int64(len(data))
	b.comm.Barrier()
	return err
}

// readDataset reads the replicated value independently on each worker.
func (b *streamBackend) readDataset(ds dataset, transfer Transfer, dst []byte) error {
	if _, err := b.f.ReadAt(dst, b.pos); err != nil {
		return fmt.Errorf("statepoint: read at %d: %w", b.pos, err)
	}
	b.pos += int64(len(dst))
	return nil
}

func (b *streamBackend) writeAttr(ds dataset, attr, value string) error { return nil }

// bankBase agrees on the bank's base offset across the group. The owner
// broadcasts its mirrored position tagged with the offset width it was
// encoded at; a worker configured for a different width must stop rather
// than seek to a garbage offset.
func (b *streamBackend) bankBase() (int64, error) {
	buf := make([]byte, 1+b.width/8)
	if b.comm.Rank() == b.owner {
		buf[0] = byte(b.width)
		switch b.width {
		case 32:
			if b.pos > math.MaxUint32 {
				return 0, fmt.Errorf("statepoint: stream offset %d overflows 32-bit width", b.pos)
			}
			binary.LittleEndian.PutUint32(buf[1:], uint32(b.pos))
		default:
			binary.LittleEndian.PutUint64(buf[1:], uint64(b.pos))
		}
	}
	if err := b.comm.Bcast(b.owner, buf); err != nil {
		if errors.Is(err, comm.ErrSizeMismatch) {
			return 0, fmt.Errorf("%w: broadcast payload width disagrees", ErrOffsetWidthMismatch)
		}
		return 0, fmt.Errorf("statepoint: broadcast offset: %w", err)
	}
	if int(buf[0]) != b.width {
		return 0, fmt.Errorf("%w: owner sent %d-bit offsets, this worker expects %d-bit", ErrOffsetWidthMismatch, buf[0], b.width)
	}
	if b.width == 32 {
		return int64(binary.LittleEndian.Uint32(buf[1:])), nil
	}
	return int64(binary.LittleEndian.Uint64(buf[1:])), nil
}

// writeBank writes each worker's local records into its slot of the
// shared bank region. Slots are strided by the group-wide maximum work
// count, so the region reserves slack after workers with below-maximum
// load; the mirrored position jumps over the whole region.
func (b *streamBackend) writeBank(ds dataset, part Partition, recordSize int64, local []byte) error {
	if !b.writable {
		return ErrReadOnly
	}
	base, err := b.bankBase()
	if err != nil {
		// Match the trailing barrier of the healthy ranks so a local
		// width fault does not strand the rest of the group.
		b.comm.Barrier()
		return err
	}
	off := slab.SlotOffset(base, recordSize, part.MaxWork, part.Rank)
	throttle(b.limiter, len(local))
	if _, err := b.f.WriteAt(local, off); err != nil {
		return fmt.Errorf("statepoint: write bank slot at %d: %w", off, err)
	}
	b.pos = base + recordSize*part.MaxWork*int64(part.Workers)
	b.comm.Barrier()
	return nil
}

func (b *streamBackend) readBank(ds dataset, part Partition, recordSize int64, local []byte) error {
	base, err := b.bankBase()
	if err != nil {
		return err
	}
	off := slab.SlotOffset(base, recordSize, part.MaxWork, part.Rank)
	if _, err := b.f.ReadAt(local, off); err != nil {
		return fmt.Errorf("statepoint: read bank slot at %d: %w", off, err)
	}
	b.pos = base + recordSize*part.MaxWork*int64(part.Workers)
	return nil
}

// writeTally persists the whole accumulator block as one aggregate
// write by the owner.
func (b *streamBackend) writeTally(ds dataset, n1, n2 int64, results []TallyResult) error {
	return b.writeDataset(ds, packTally(results))
}

func (b *streamBackend) readTally(ds dataset, n1, n2 int64, results []TallyResult) error {
	buf := make([]byte, 16*n1*n2)
	if err := b.readDataset(ds, Collective, buf); err != nil {
		return err
	}
	unpackTally(buf, results)
	return nil
}

func (b *streamBackend) close() error {
	var err error
	if b.writable {
		if serr := b.f.Sync(); serr != nil {
			err = fmt.Errorf("statepoint: sync: %w", serr)
		}
	}
	b.comm.Barrier()
	if cerr := b.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
