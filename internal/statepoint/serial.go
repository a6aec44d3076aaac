package statepoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
)

// Stream files (sequential and collective-stream backends) are flat
// positional streams of little-endian values behind a shared magic
// header. A value written by one stream backend reads back bit-identical
// through the other.
const (
	streamMagic     = "SMSTATE\x01"
	streamMagicSize = 8
)

var errNotStream = errors.New("statepoint: invalid stream magic bytes")

func openErr(op string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, op, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrAccessDenied, op, err)
	default:
		return fmt.Errorf("statepoint: %s: %w", op, err)
	}
}

func verifyStreamMagic(f *os.File) error {
	head := make([]byte, streamMagicSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, streamMagicSize), head); err != nil {
		return fmt.Errorf("statepoint: read magic: %w", err)
	}
	if string(head) != streamMagic {
		return errNotStream
	}
	return nil
}

// serialBackend appends and consumes raw values at a single cursor. It
// keeps no names, no shapes and no checksums; layout is defined entirely
// by the order of operations.
type serialBackend struct {
	f        *os.File
	pos      int64
	writable bool
	limiter  *rate.Limiter
	log      logger.Logger
}

func createSerial(path string, cfg Config) (*serialBackend, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, openErr("create", err)
	}
	if _, err := f.Write([]byte(streamMagic)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("statepoint: write magic: %w", err)
	}
	return &serialBackend{
		f:        f,
		pos:      streamMagicSize,
		writable: true,
		limiter:  newLimiter(cfg.MaxWriteRate),
		log:      cfg.Logger,
	}, nil
}

func openSerial(path string, access Access, cfg Config) (*serialBackend, error) {
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
		// Write-opens append after the existing stream.
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("statepoint: stat: %w", err)
		}
		pos = stat.Size()
	}
	return &serialBackend{
		f:        f,
		pos:      pos,
		writable: access == AccessWrite,
		limiter:  newLimiter(cfg.MaxWriteRate),
		log:      cfg.Logger,
	}, nil
}

func (b *serialBackend) maxDims() int { return 1 }

func (b *serialBackend) writeRaw(data []byte) error {
	if !b.writable {
		return ErrReadOnly
	}
	throttle(b.limiter, len(data))
	if _, err := b.f.WriteAt(data, b.pos); err != nil {
		return fmt.Errorf("statepoint: write at %d: %w", b.pos, err)
	}
	b.pos += int64(len(data))
	return nil
}

func (b *serialBackend) readRaw(dst []byte) error {
	if _, err := b.f.ReadAt(dst, b.pos); err != nil {
		return fmt.Errorf("statepoint: read at %d: %w", b.pos, err)
	}
	b.pos += int64(len(dst))
	return nil
}

func (b *serialBackend) writeDataset(ds dataset, data []byte) error {
	return b.writeRaw(data)
}

func (b *serialBackend) readDataset(ds dataset, transfer Transfer, dst []byte) error {
	return b.readRaw(dst)
}

// Stream files carry no metadata; attribute writes land nowhere.
func (b *serialBackend) writeAttr(ds dataset, attr, value string) error { return nil }

func (b *serialBackend) writeBank(ds dataset, part Partition, recordSize int64, local []byte) error {
	return b.writeRaw(local)
}

func (b *serialBackend) readBank(ds dataset, part Partition, recordSize int64, local []byte) error {
	return b.readRaw(local)
}

// writeTally appends each accumulator's two fields individually, in
// nested row-major order. The loop, not the caller, defines the on-disk
// layout of tally blocks in sequential streams.
func (b *serialBackend) writeTally(ds dataset, n1, n2 int64, results []TallyResult) error {
	buf := make([]byte, 0, 16*n1*n2)
	for j := int64(0); j < n1; j++ {
		for k := int64(0); k < n2; k++ {
			r := results[j*n2+k]
			buf = append(buf, packFloat64s([]float64{r.Sum})...)
			buf = append(buf, packFloat64s([]float64{r.SumSq})...)
		}
	}
	return b.writeRaw(buf)
}

func (b *serialBackend) readTally(ds dataset, n1, n2 int64, results []TallyResult) error {
	buf := make([]byte, 16*n1*n2)
	if err := b.readRaw(buf); err != nil {
		return err
	}
	for j := int64(0); j < n1; j++ {
		for k := int64(0); k < n2; k++ {
			i := j*n2 + k
			pair := make([]float64, 2)
			unpackFloat64s(buf[i*16:(i+1)*16], pair)
			results[i] = TallyResult{Sum: pair[0], SumSq: pair[1]}
		}
	}
	return nil
}

func (b *serialBackend) close() error {
	if b.writable {
		if err := b.f.Sync(); err != nil {
			b.f.Close()
			return fmt.Errorf("statepoint: sync: %w", err)
		}
	}
	return b.f.Close()
}
