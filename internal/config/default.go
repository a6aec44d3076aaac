package config

// Default configuration values.
const (
	DefaultBackend     = "hierarchical"
	DefaultDir         = "/var/lib/statemesh/checkpoints"
	DefaultOwnerRank   = 0
	DefaultOffsetWidth = 64

	DefaultCatalogDir  = "/var/lib/statemesh/catalog"
	DefaultCatalogKeep = 3

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Checkpoint: CheckpointSection{
			Backend:     DefaultBackend,
			Dir:         DefaultDir,
			OwnerRank:   DefaultOwnerRank,
			OffsetWidth: DefaultOffsetWidth,
		},
		Catalog: CatalogSection{
			Dir:  DefaultCatalogDir,
			Keep: DefaultCatalogKeep,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
