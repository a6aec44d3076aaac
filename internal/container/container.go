// Package container implements the hierarchical self-describing file
// engine behind the hierarchical checkpoint backend.
//
// A container is a single file holding named, grouped, typed datasets:
//
//	magic (8 bytes) | dataset payloads ... | TOC (JSON) | footer | sha256
//
// Payloads are contiguous little-endian blocks appended in allocation
// order. The table of contents maps each dataset path ("/group/name") to
// its kind, shape, payload offset and string attributes; it is written at
// close, followed by a fixed footer locating it and a sha256 checksum of
// everything before the trailer.
//
// Payload offsets are absolute file positions, so disjoint sub-ranges of
// one dataset can be written positionally through independent file
// handles. This is the mechanism used for collective hyperslab writes.
package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	magic     = "SMCONTR\x01"
	magicSize = 8

	footerSize   = 12 // TOC offset (8) + TOC length (4)
	checksumSize = 32
)

var (
	ErrNotContainer     = errors.New("container: invalid magic bytes")
	ErrChecksumMismatch = errors.New("container: checksum mismatch")
	ErrNotFound         = errors.New("container: dataset not found")
	ErrExists           = errors.New("container: dataset already exists")
	ErrClosed           = errors.New("container: file is closed")
	ErrReadOnly         = errors.New("container: file is read-only")
	ErrShortData        = errors.New("container: data length does not match extent")
)

// Entry describes one dataset: its path, element kind, shape and the
// absolute file offset of its payload.
type Entry struct {
	Path   string            `json:"path"`
	Kind   Kind              `json:"kind"`
	Dims   []int64           `json:"dims,omitempty"` // nil means scalar
	Offset int64             `json:"offset"`
	Length int64             `json:"length"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Elems returns the number of elements in the dataset extent.
func (e *Entry) Elems() int64 {
	n := int64(1)
	for _, d := range e.Dims {
		n *= d
	}
	return n
}

// File is an open container. A writable File appends datasets and
// finalizes the TOC and checksum at Close; a read-only File verifies the
// checksum at Open and serves lookups and reads.
type File struct {
	path     string
	f        *os.File
	writable bool
	closed   bool

	size    int64 // allocation cursor: end of the data section
	entries []*Entry
	index   map[string]*Entry
}

// Create creates a new container at path, truncating any existing file.
func Create(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("container: create: %w", err)
	}
	if _, err := f.Write([]byte(magic)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("container: write magic: %w", err)
	}
	return &File{
		path:     path,
		f:        f,
		writable: true,
		size:     magicSize,
		index:    make(map[string]*Entry),
	}, nil
}

// Open opens an existing container read-only. It verifies the checksum
// trailer and loads the TOC before returning.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open: %w", err)
	}

	entries, err := readTOC(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	index := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		index[e.Path] = e
	}
	return &File{
		path:    path,
		f:       f,
		entries: entries,
		index:   index,
	}, nil
}

func readTOC(f *os.File) ([]*Entry, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("container: stat: %w", err)
	}
	size := stat.Size()
	if size < magicSize+footerSize+checksumSize {
		return nil, ErrNotContainer
	}

	head := make([]byte, magicSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, magicSize), head); err != nil {
		return nil, fmt.Errorf("container: read magic: %w", err)
	}
	if string(head) != magic {
		return nil, ErrNotContainer
	}

	// Verify the sha256 trailer over everything preceding it.
	hashed := size - checksumSize
	want := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, hashed, checksumSize), want); err != nil {
		return nil, fmt.Errorf("container: read checksum: %w", err)
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, hashed), hashed); err != nil {
		return nil, fmt.Errorf("container: hash: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), want) {
		return nil, ErrChecksumMismatch
	}

	footer := make([]byte, footerSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, hashed-footerSize, footerSize), footer); err != nil {
		return nil, fmt.Errorf("container: read footer: %w", err)
	}
	tocOff := int64(binary.LittleEndian.Uint64(footer[0:8]))
	tocLen := int64(binary.LittleEndian.Uint32(footer[8:12]))
	if tocOff < magicSize || tocOff+tocLen > hashed-footerSize {
		return nil, ErrNotContainer
	}

	raw := make([]byte, tocLen)
	if _, err := io.ReadFull(io.NewSectionReader(f, tocOff, tocLen), raw); err != nil {
		return nil, fmt.Errorf("container: read toc: %w", err)
	}
	var entries []*Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("container: decode toc: %w", err)
	}
	return entries, nil
}

// Sniff reports whether the file at path starts with the container
// magic. It does not verify the checksum trailer.
func Sniff(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("container: open: %w", err)
	}
	defer f.Close()

	head := make([]byte, magicSize)
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("container: read magic: %w", err)
	}
	return string(head) == magic, nil
}

// Path returns the container's file path.
func (f *File) Path() string { return f.path }

// Entries returns the TOC in allocation order.
func (f *File) Entries() []*Entry { return f.entries }

// Lookup finds a dataset entry by its normalized path.
func (f *File) Lookup(path string) (*Entry, bool) {
	e, ok := f.index[path]
	return e, ok
}

// Close finalizes a writable container (TOC, footer, checksum trailer)
// and releases the handle. Closing a read-only container just releases
// the handle. Close is idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if !f.writable {
		return f.f.Close()
	}

	raw, err := json.Marshal(f.entries)
	if err != nil {
		f.f.Close()
		return fmt.Errorf("container: encode toc: %w", err)
	}

	tocOff := f.size
	if _, err := f.f.WriteAt(raw, tocOff); err != nil {
		f.f.Close()
		return fmt.Errorf("container: write toc: %w", err)
	}

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(footer[0:8], uint64(tocOff))
	binary.LittleEndian.PutUint32(footer[8:12], uint32(len(raw)))
	if _, err := f.f.WriteAt(footer, tocOff+int64(len(raw))); err != nil {
		f.f.Close()
		return fmt.Errorf("container: write footer: %w", err)
	}

	// The checksum covers slab regions written through other handles, so
	// hash the file as persisted rather than any in-memory view.
	hashed := tocOff + int64(len(raw)) + footerSize
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f.f, 0, hashed), hashed); err != nil {
		f.f.Close()
		return fmt.Errorf("container: hash: %w", err)
	}
	if _, err := f.f.WriteAt(h.Sum(nil), hashed); err != nil {
		f.f.Close()
		return fmt.Errorf("container: write checksum: %w", err)
	}

	if err := f.f.Sync(); err != nil {
		f.f.Close()
		return fmt.Errorf("container: sync: %w", err)
	}
	return f.f.Close()
}
