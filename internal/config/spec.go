// Package config defines the checkpoint subsystem configuration.
package config

import (
	"fmt"

	"github.com/statemesh/statemesh-go/internal/statepoint"
)

// Config is the root configuration for statemesh tooling.
type Config struct {
	Checkpoint CheckpointSection `koanf:"checkpoint"`
	Catalog    CatalogSection    `koanf:"catalog"`
	Log        LogSection        `koanf:"log"`
}

// CheckpointSection configures how statepoint files are written.
type CheckpointSection struct {
	// Backend selects the storage engine: "hierarchical",
	// "collective-stream" or "sequential".
	Backend string `koanf:"backend"`

	// Dir is the directory statepoint files are written to.
	Dir string `koanf:"dir"`

	// OwnerRank is the coordinator rank for single-owner operations.
	OwnerRank int `koanf:"owner_rank"`

	// OffsetWidth is the width in bits of broadcast stream offsets,
	// 32 or 64. Every worker in a run must use the same value.
	OffsetWidth int `koanf:"offset_width"`

	// MaxWriteRateMBps caps checkpoint write throughput per worker.
	// Zero means unlimited.
	MaxWriteRateMBps int `koanf:"max_write_rate_mbps"`
}

// CatalogSection configures the checkpoint catalog.
type CatalogSection struct {
	// Dir is the catalog database directory.
	Dir string `koanf:"dir"`

	// Keep is how many checkpoints retention pruning preserves.
	Keep int `koanf:"keep"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ParseBackend maps a configured backend name to its kind.
func ParseBackend(name string) (statepoint.BackendKind, error) {
	switch name {
	case "hierarchical":
		return statepoint.Hierarchical, nil
	case "collective-stream":
		return statepoint.CollectiveStream, nil
	case "sequential":
		return statepoint.Sequential, nil
	default:
		return 0, fmt.Errorf("config: unknown checkpoint backend %q", name)
	}
}

// MaxWriteRate returns the configured throughput cap in bytes per second.
func (c CheckpointSection) MaxWriteRate() int64 {
	return int64(c.MaxWriteRateMBps) << 20
}
