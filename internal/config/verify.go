package config

import (
	"errors"
	"fmt"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyCheckpoint(&cfg.Checkpoint); err != nil {
		return err
	}
	return verifyCatalog(&cfg.Catalog)
}

func verifyCheckpoint(cfg *CheckpointSection) error {
	if _, err := ParseBackend(cfg.Backend); err != nil {
		return err
	}
	if cfg.Dir == "" {
		return errors.New("checkpoint.dir is required")
	}
	if cfg.OwnerRank < 0 {
		return fmt.Errorf("checkpoint.owner_rank must not be negative, got %d", cfg.OwnerRank)
	}
	if cfg.OffsetWidth != 32 && cfg.OffsetWidth != 64 {
		return fmt.Errorf("checkpoint.offset_width must be 32 or 64, got %d", cfg.OffsetWidth)
	}
	if cfg.MaxWriteRateMBps < 0 {
		return fmt.Errorf("checkpoint.max_write_rate_mbps must not be negative, got %d", cfg.MaxWriteRateMBps)
	}
	return nil
}

func verifyCatalog(cfg *CatalogSection) error {
	if cfg.Dir == "" {
		return errors.New("catalog.dir is required")
	}
	if cfg.Keep < 1 {
		return errors.New("catalog.keep must be at least 1")
	}
	return nil
}
