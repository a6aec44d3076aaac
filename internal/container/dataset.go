package container

import (
	"fmt"
	"path"
)

// Normalize joins an optional group and a dataset name into the
// canonical TOC path. An empty group addresses the file root.
func Normalize(group, name string) string {
	if group == "" {
		return "/" + name
	}
	return path.Join("/", group, name)
}

// Alloc reserves the extent for a new dataset and records its TOC entry.
// The payload region is uninitialized until written; its absolute file
// offset is available through the returned entry so sub-ranges can be
// written positionally by any handle on the same file.
func (f *File) Alloc(dsPath string, kind Kind, dims []int64) (*Entry, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if !f.writable {
		return nil, ErrReadOnly
	}
	if _, ok := f.index[dsPath]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, dsPath)
	}
	elems := int64(1)
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("container: invalid dimension %d in %s", d, dsPath)
		}
		elems *= d
	}

	e := &Entry{
		Path:   dsPath,
		Kind:   kind,
		Dims:   dims,
		Offset: f.size,
		Length: elems * kind.ElemSize(),
	}
	f.size += e.Length
	f.entries = append(f.entries, e)
	f.index[dsPath] = e
	return e, nil
}

// WriteDataset allocates a dataset and writes its full payload.
func (f *File) WriteDataset(dsPath string, kind Kind, dims []int64, data []byte) (*Entry, error) {
	e, err := f.Alloc(dsPath, kind, dims)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != e.Length {
		return nil, fmt.Errorf("%w: %s has %d bytes, extent is %d", ErrShortData, dsPath, len(data), e.Length)
	}
	if _, err := f.f.WriteAt(data, e.Offset); err != nil {
		return nil, fmt.Errorf("container: write %s: %w", dsPath, err)
	}
	return e, nil
}

// WriteSlice writes data into the dataset starting at element index
// start. The caller owns correctness of disjointness across handles.
func (f *File) WriteSlice(e *Entry, start int64, data []byte) error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return ErrReadOnly
	}
	return writeSliceAt(f.f, e, start, data)
}

// ReadDataset returns the full payload of the named dataset.
func (f *File) ReadDataset(dsPath string) (*Entry, []byte, error) {
	if f.closed {
		return nil, nil, ErrClosed
	}
	e, ok := f.index[dsPath]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, dsPath)
	}
	data := make([]byte, e.Length)
	if _, err := f.f.ReadAt(data, e.Offset); err != nil {
		return nil, nil, fmt.Errorf("container: read %s: %w", dsPath, err)
	}
	return e, data, nil
}

// ReadSlice fills dst with the dataset payload starting at element index
// start. len(dst) must be a multiple of the element size and fit within
// the extent.
func (f *File) ReadSlice(e *Entry, start int64, dst []byte) error {
	if f.closed {
		return ErrClosed
	}
	elem := e.Kind.ElemSize()
	off := start * elem
	if off < 0 || off+int64(len(dst)) > e.Length {
		return fmt.Errorf("%w: slice [%d,+%d) of %s exceeds extent %d", ErrShortData, off, len(dst), e.Path, e.Length)
	}
	if _, err := f.f.ReadAt(dst, e.Offset+off); err != nil {
		return fmt.Errorf("container: read slice of %s: %w", e.Path, err)
	}
	return nil
}

// SetAttr attaches a string attribute to an existing dataset.
func (f *File) SetAttr(dsPath, name, value string) error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return ErrReadOnly
	}
	e, ok := f.index[dsPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, dsPath)
	}
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
	return nil
}

// Attr returns a dataset's string attribute, if present.
func (f *File) Attr(dsPath, name string) (string, bool) {
	e, ok := f.index[dsPath]
	if !ok || e.Attrs == nil {
		return "", false
	}
	v, ok := e.Attrs[name]
	return v, ok
}
