package config

import (
	"strings"

	"github.com/marmos91/srmeta/pkg/lock"
	"github.com/marmos91/srmeta/pkg/store/journal/badger"
	"github.com/marmos91/srmeta/pkg/store/metadata/volume"
)

// Default locations used when nothing else is configured.
const (
	DefaultMetadataPath    = "/var/lib/srmeta/sr-metadata"
	DefaultJournalDir      = "/var/lib/srmeta/journal"
	DefaultJournalBadgerDB = "/var/lib/srmeta/journal.db"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults the backends apply themselves are still
//     written out so generated config files show them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetadataDefaults(&cfg.Metadata)
	applyJournalDefaults(&cfg.Journal)
	applyLockDefaults(&cfg.Lock)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyMetadataDefaults sets metadata volume defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultMetadataPath
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = volume.DefaultBlockSize
	}
	// CapacityBytes 0 means "free space on the hosting filesystem"
	// Create defaults to false
}

// applyJournalDefaults sets journal backend defaults.
func applyJournalDefaults(cfg *JournalConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	// Apply defaults for all backend types (for config file generation)
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultJournalDir
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = DefaultJournalBadgerDB
	}
	if _, ok := cfg.Badger["max_name_len"]; !ok {
		cfg.Badger["max_name_len"] = badger.DefaultMaxNameLen
	}
}

// applyLockDefaults sets lock defaults.
func applyLockDefaults(cfg *LockConfig) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = lock.DefaultBaseDir
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
