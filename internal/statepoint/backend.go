package statepoint

import (
	"github.com/statemesh/statemesh-go/internal/comm"
	"github.com/statemesh/statemesh-go/internal/container"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
	"github.com/statemesh/statemesh-go/internal/telemetry/metric"
)

// BackendKind selects the storage engine a checkpoint file is bound to.
// The choice is made once, at Create or Open, and never changes for the
// lifetime of the handle.
type BackendKind int

const (
	// Hierarchical stores named, grouped, typed datasets in a
	// self-describing container with a checksum trailer.
	Hierarchical BackendKind = iota
	// CollectiveStream stores raw values in a flat positional stream
	// shared by all workers, with a mirrored write position.
	CollectiveStream
	// Sequential stores raw values in a flat positional stream owned by
	// a single process.
	Sequential
)

func (b BackendKind) String() string {
	switch b {
	case Hierarchical:
		return "hierarchical"
	case CollectiveStream:
		return "collective-stream"
	case Sequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// Mode declares which workers participate in a file operation.
type Mode int

const (
	// ModeSingle means only the owner rank touches the file; handles
	// returned to other ranks are inert and never block.
	ModeSingle Mode = iota
	// ModeCollective means every rank participates and data-plane
	// operations may synchronize across the communicator.
	ModeCollective
)

// Access declares the intent of an Open call.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

// Transfer selects independent or collective semantics for a single
// data-plane call on an already-open collective file.
type Transfer int

const (
	Independent Transfer = iota
	Collective
)

// Request carries the per-call options of a dataset operation: the
// dataset name, an optional group scope, and the transfer mode. Backends
// that have no notion of names or groups ignore those fields.
type Request struct {
	Name     string
	Group    string
	Transfer Transfer
}

// Config binds a checkpoint file to its backend, communicator and
// ambient plumbing. The zero value selects the hierarchical backend with
// a single-process communicator.
type Config struct {
	Backend BackendKind

	// Comm is the worker communicator. nil means single-process.
	Comm comm.Communicator

	// Owner is the coordinator rank for single-owner operations and for
	// metadata writes on collective files.
	Owner int

	// OffsetWidth is the width in bits (32 or 64) of broadcast stream
	// offsets. All workers must agree; a mismatch is fatal.
	OffsetWidth int

	// MaxWriteRate caps backend write throughput in bytes per second.
	// Zero means unlimited.
	MaxWriteRate int64

	Logger  logger.Logger
	Metrics *metric.Checkpoint
}

func (c Config) withDefaults() Config {
	if c.Comm == nil {
		c.Comm = comm.Single()
	}
	if c.OffsetWidth == 0 {
		c.OffsetWidth = 64
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}
	return c
}

// dataset is the backend-internal description of one dataset operation.
type dataset struct {
	name  string
	group string
	kind  container.Kind
	dims  []int64 // nil means scalar
}

func (d dataset) path() string { return container.Normalize(d.group, d.name) }

// backend is the storage engine contract behind a File. The facade owns
// shape dispatch, diagnostics and metrics; backends own bytes.
type backend interface {
	// maxDims reports the highest array rank the backend persists.
	maxDims() int

	writeDataset(ds dataset, data []byte) error
	readDataset(ds dataset, transfer Transfer, dst []byte) error
	writeAttr(ds dataset, attr, value string) error

	writeBank(ds dataset, part Partition, recordSize int64, local []byte) error
	readBank(ds dataset, part Partition, recordSize int64, local []byte) error

	writeTally(ds dataset, n1, n2 int64, results []TallyResult) error
	readTally(ds dataset, n1, n2 int64, results []TallyResult) error

	close() error
}
