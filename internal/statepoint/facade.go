// Package statepoint persists and restores simulation run state: tally
// accumulators, run metadata and the distributed particle source bank.
//
// A File is bound at creation to one of three storage backends (the
// hierarchical container, the collective positional stream, or the
// sequential positional stream) and exposes one typed read/write
// surface across all of them. Callers choose per file whether a single
// owner rank performs the I/O or every rank participates collectively,
// and per call whether a transfer is independent or collective.
package statepoint

import (
	"fmt"
	"time"

	"github.com/statemesh/statemesh-go/internal/comm"
	"github.com/statemesh/statemesh-go/internal/container"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
	"github.com/statemesh/statemesh-go/internal/telemetry/metric"
)

// File is an open checkpoint file. On ranks excluded by ModeSingle the
// handle is inert: every operation returns immediately without touching
// storage or blocking on the group.
type File struct {
	b       backend
	path    string
	log     logger.Logger
	metrics *metric.Checkpoint
	closed  bool
}

func build(path string, mode Mode, cfg Config, open func(Config) (backend, error)) (*File, error) {
	cfg = cfg.withDefaults()
	f := &File{path: path, log: cfg.Logger, metrics: cfg.Metrics}

	if mode == ModeSingle {
		if cfg.Comm.Rank() != cfg.Owner {
			return f, nil
		}
		// The owner acts alone; group synchronization inside the
		// backend must not wait on ranks that will never arrive.
		cfg.Comm = comm.Single()
	}

	b, err := open(cfg)
	if err != nil {
		return nil, err
	}
	f.b = b
	return f, nil
}

// Create creates a checkpoint file bound to cfg.Backend. In ModeSingle
// only cfg.Owner touches the file system; in ModeCollective every rank
// of cfg.Comm must call Create.
func Create(path string, mode Mode, cfg Config) (*File, error) {
	f, err := build(path, mode, cfg, func(c Config) (backend, error) {
		switch c.Backend {
		case Hierarchical:
			return createHier(path, c)
		case CollectiveStream:
			return createStream(path, c)
		case Sequential:
			return createSerial(path, c)
		default:
			return nil, fmt.Errorf("statepoint: unknown backend %d", c.Backend)
		}
	})
	if err != nil {
		return nil, err
	}
	if f.b != nil {
		f.log.Info("checkpoint file created", "path", path, "backend", cfg.Backend.String())
	}
	return f, nil
}

// Open opens an existing checkpoint file for reading or appending.
func Open(path string, mode Mode, access Access, cfg Config) (*File, error) {
	return build(path, mode, cfg, func(c Config) (backend, error) {
		switch c.Backend {
		case Hierarchical:
			return openHier(path, access, c)
		case CollectiveStream:
			return openStream(path, access, c)
		case Sequential:
			return openSerial(path, access, c)
		default:
			return nil, fmt.Errorf("statepoint: unknown backend %d", c.Backend)
		}
	})
}

// Path returns the file path the handle was created with.
func (f *File) Path() string { return f.path }

// Close flushes and releases the file. In ModeCollective every rank must
// call Close; the hierarchical backend finalizes its table of contents
// and checksum trailer here. Any use after Close fails with ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	if f.b == nil {
		return nil
	}
	return f.b.close()
}

func (f *File) ds(req Request, kind container.Kind, dims ...int64) dataset {
	return dataset{name: req.Name, group: req.Group, kind: kind, dims: dims}
}

// writeValue routes one dataset write through the backend, enforcing the
// backend's shape ceiling. An unsupported shape is skipped, not failed:
// the call emits one diagnostic, counts the skip and writes nothing.
func (f *File) writeValue(req Request, kind container.Kind, dims []int64, data []byte) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	if len(dims) > f.b.maxDims() {
		f.log.Warn("array shape not supported by backend, skipping write",
			"dataset", req.Name, "rank", len(dims), "error", ErrUnsupportedShape)
		f.metrics.ObserveSkip()
		return nil
	}
	start := time.Now()
	if err := f.b.writeDataset(f.ds(req, kind, dims...), data); err != nil {
		return err
	}
	f.metrics.ObserveWrite(len(data), time.Since(start))
	return nil
}

func (f *File) readValue(req Request, kind container.Kind, dims []int64, dst []byte) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	if len(dims) > f.b.maxDims() {
		f.log.Warn("array shape not supported by backend, skipping read",
			"dataset", req.Name, "rank", len(dims), "error", ErrUnsupportedShape)
		f.metrics.ObserveSkip()
		return nil
	}
	return f.b.readDataset(f.ds(req, kind, dims...), req.Transfer, dst)
}

// WriteFloat64 writes one float64 scalar.
func (f *File) WriteFloat64(req Request, v float64) error {
	return f.writeValue(req, container.Float64, nil, packFloat64s([]float64{v}))
}

// ReadFloat64 reads one float64 scalar.
func (f *File) ReadFloat64(req Request) (float64, error) {
	buf := make([]byte, 8)
	if err := f.readValue(req, container.Float64, nil, buf); err != nil {
		return 0, err
	}
	out := make([]float64, 1)
	unpackFloat64s(buf, out)
	return out[0], nil
}

// WriteFloat64Array writes the first n elements of vals as a 1-D array.
func (f *File) WriteFloat64Array(req Request, vals []float64, n int64) error {
	if n > int64(len(vals)) {
		return fmt.Errorf("statepoint: %s: n=%d exceeds %d values", req.Name, n, len(vals))
	}
	return f.writeValue(req, container.Float64, []int64{n}, packFloat64s(vals[:n]))
}

// ReadFloat64Array reads an n-element 1-D array into dst.
func (f *File) ReadFloat64Array(req Request, dst []float64, n int64) error {
	if n > int64(len(dst)) {
		return fmt.Errorf("statepoint: %s: n=%d exceeds %d slots", req.Name, n, len(dst))
	}
	buf := make([]byte, 8*n)
	if err := f.readValue(req, container.Float64, []int64{n}, buf); err != nil {
		return err
	}
	unpackFloat64s(buf, dst[:n])
	return nil
}

// WriteFloat64Matrix writes a row-major n1-by-n2 array. Only the
// hierarchical backend persists shapes above rank 1; elsewhere the call
// is diagnosed and skipped.
func (f *File) WriteFloat64Matrix(req Request, vals []float64, n1, n2 int64) error {
	if int64(len(vals)) < n1*n2 {
		return fmt.Errorf("statepoint: %s: %d values for %dx%d shape", req.Name, len(vals), n1, n2)
	}
	return f.writeValue(req, container.Float64, []int64{n1, n2}, packFloat64s(vals[:n1*n2]))
}

// ReadFloat64Matrix reads a row-major n1-by-n2 array into dst.
func (f *File) ReadFloat64Matrix(req Request, dst []float64, n1, n2 int64) error {
	if int64(len(dst)) < n1*n2 {
		return fmt.Errorf("statepoint: %s: %d slots for %dx%d shape", req.Name, len(dst), n1, n2)
	}
	buf := make([]byte, 8*n1*n2)
	if err := f.readValue(req, container.Float64, []int64{n1, n2}, buf); err != nil {
		return err
	}
	unpackFloat64s(buf, dst[:n1*n2])
	return nil
}

// WriteFloat64Cube writes a row-major n1-by-n2-by-n3 array.
func (f *File) WriteFloat64Cube(req Request, vals []float64, n1, n2, n3 int64) error {
	if int64(len(vals)) < n1*n2*n3 {
		return fmt.Errorf("statepoint: %s: %d values for %dx%dx%d shape", req.Name, len(vals), n1, n2, n3)
	}
	return f.writeValue(req, container.Float64, []int64{n1, n2, n3}, packFloat64s(vals[:n1*n2*n3]))
}

// ReadFloat64Cube reads a row-major n1-by-n2-by-n3 array into dst.
func (f *File) ReadFloat64Cube(req Request, dst []float64, n1, n2, n3 int64) error {
	if int64(len(dst)) < n1*n2*n3 {
		return fmt.Errorf("statepoint: %s: %d slots for %dx%dx%d shape", req.Name, len(dst), n1, n2, n3)
	}
	buf := make([]byte, 8*n1*n2*n3)
	if err := f.readValue(req, container.Float64, []int64{n1, n2, n3}, buf); err != nil {
		return err
	}
	unpackFloat64s(buf, dst[:n1*n2*n3])
	return nil
}

// WriteInt32 writes one int32 scalar.
func (f *File) WriteInt32(req Request, v int32) error {
	return f.writeValue(req, container.Int32, nil, packInt32s([]int32{v}))
}

// ReadInt32 reads one int32 scalar.
func (f *File) ReadInt32(req Request) (int32, error) {
	buf := make([]byte, 4)
	if err := f.readValue(req, container.Int32, nil, buf); err != nil {
		return 0, err
	}
	out := make([]int32, 1)
	unpackInt32s(buf, out)
	return out[0], nil
}

// WriteInt32Array writes the first n elements of vals as a 1-D array.
func (f *File) WriteInt32Array(req Request, vals []int32, n int64) error {
	if n > int64(len(vals)) {
		return fmt.Errorf("statepoint: %s: n=%d exceeds %d values", req.Name, n, len(vals))
	}
	return f.writeValue(req, container.Int32, []int64{n}, packInt32s(vals[:n]))
}

// ReadInt32Array reads an n-element 1-D array into dst.
func (f *File) ReadInt32Array(req Request, dst []int32, n int64) error {
	if n > int64(len(dst)) {
		return fmt.Errorf("statepoint: %s: n=%d exceeds %d slots", req.Name, n, len(dst))
	}
	buf := make([]byte, 4*n)
	if err := f.readValue(req, container.Int32, []int64{n}, buf); err != nil {
		return err
	}
	unpackInt32s(buf, dst[:n])
	return nil
}

// WriteInt32Matrix writes a row-major n1-by-n2 array.
func (f *File) WriteInt32Matrix(req Request, vals []int32, n1, n2 int64) error {
	if int64(len(vals)) < n1*n2 {
		return fmt.Errorf("statepoint: %s: %d values for %dx%d shape", req.Name, len(vals), n1, n2)
	}
	return f.writeValue(req, container.Int32, []int64{n1, n2}, packInt32s(vals[:n1*n2]))
}

// ReadInt32Matrix reads a row-major n1-by-n2 array into dst.
func (f *File) ReadInt32Matrix(req Request, dst []int32, n1, n2 int64) error {
	if int64(len(dst)) < n1*n2 {
		return fmt.Errorf("statepoint: %s: %d slots for %dx%d shape", req.Name, len(dst), n1, n2)
	}
	buf := make([]byte, 4*n1*n2)
	if err := f.readValue(req, container.Int32, []int64{n1, n2}, buf); err != nil {
		return err
	}
	unpackInt32s(buf, dst[:n1*n2])
	return nil
}

// WriteInt32Cube writes a row-major n1-by-n2-by-n3 array.
func (f *File) WriteInt32Cube(req Request, vals []int32, n1, n2, n3 int64) error {
	if int64(len(vals)) < n1*n2*n3 {
		return fmt.Errorf("statepoint: %s: %d values for %dx%dx%d shape", req.Name, len(vals), n1, n2, n3)
	}
	return f.writeValue(req, container.Int32, []int64{n1, n2, n3}, packInt32s(vals[:n1*n2*n3]))
}

// ReadInt32Cube reads a row-major n1-by-n2-by-n3 array into dst.
func (f *File) ReadInt32Cube(req Request, dst []int32, n1, n2, n3 int64) error {
	if int64(len(dst)) < n1*n2*n3 {
		return fmt.Errorf("statepoint: %s: %d slots for %dx%dx%d shape", req.Name, len(dst), n1, n2, n3)
	}
	buf := make([]byte, 4*n1*n2*n3)
	if err := f.readValue(req, container.Int32, []int64{n1, n2, n3}, buf); err != nil {
		return err
	}
	unpackInt32s(buf, dst[:n1*n2*n3])
	return nil
}

// WriteInt64 writes one int64 scalar.
func (f *File) WriteInt64(req Request, v int64) error {
	return f.writeValue(req, container.Int64, nil, packInt64(v))
}

// ReadInt64 reads one int64 scalar.
func (f *File) ReadInt64(req Request) (int64, error) {
	buf := make([]byte, 8)
	if err := f.readValue(req, container.Int64, nil, buf); err != nil {
		return 0, err
	}
	return unpackInt64(buf), nil
}

// WriteString writes s into a fixed-length field of the declared length,
// zero-padded or truncated as needed.
func (f *File) WriteString(req Request, s string, length int64) error {
	return f.writeValue(req, container.String, []int64{length}, packString(s, length))
}

// ReadString reads a fixed-length string field, stripping zero padding.
func (f *File) ReadString(req Request, length int64) (string, error) {
	buf := make([]byte, length)
	if err := f.readValue(req, container.String, []int64{length}, buf); err != nil {
		return "", err
	}
	return unpackString(buf), nil
}

// WriteAttrString tags the named dataset with a string attribute. Only
// the hierarchical backend stores metadata; elsewhere this is a no-op.
func (f *File) WriteAttrString(req Request, attr, value string) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	return f.b.writeAttr(f.ds(req, container.String), attr, value)
}
