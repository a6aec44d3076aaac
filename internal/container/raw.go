package container

import (
	"fmt"
	"io"
	"os"
)

func writeSliceAt(w io.WriterAt, e *Entry, start int64, data []byte) error {
	elem := e.Kind.ElemSize()
	off := start * elem
	if off < 0 || off+int64(len(data)) > e.Length {
		return fmt.Errorf("%w: slice [%d,+%d) of %s exceeds extent %d", ErrShortData, off, len(data), e.Path, e.Length)
	}
	if _, err := w.WriteAt(data, e.Offset+off); err != nil {
		return fmt.Errorf("container: write slice of %s: %w", e.Path, err)
	}
	return nil
}

// Raw is a data-plane-only handle used by non-coordinator workers during
// collective writes. It carries no TOC; the coordinator allocates extents
// and broadcasts absolute payload offsets, and raw handles write their
// disjoint sub-ranges positionally.
type Raw struct {
	f *os.File
}

// OpenRaw opens the container for positional data writes only.
func OpenRaw(path string) (*Raw, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("container: open raw: %w", err)
	}
	return &Raw{f: f}, nil
}

// WriteAt writes data at the given absolute file offset.
func (r *Raw) WriteAt(data []byte, off int64) error {
	if _, err := r.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("container: raw write at %d: %w", off, err)
	}
	return nil
}

// Sync flushes written data to the underlying medium.
func (r *Raw) Sync() error { return r.f.Sync() }

// Close releases the handle.
func (r *Raw) Close() error { return r.f.Close() }
