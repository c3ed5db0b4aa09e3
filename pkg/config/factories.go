package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/backing"
	"github.com/marmos91/srmeta/pkg/lock"
	"github.com/marmos91/srmeta/pkg/metrics"
	"github.com/marmos91/srmeta/pkg/store/journal"
	"github.com/marmos91/srmeta/pkg/store/journal/badger"
	journalfs "github.com/marmos91/srmeta/pkg/store/journal/fs"
	"github.com/marmos91/srmeta/pkg/store/journal/memory"
	"github.com/marmos91/srmeta/pkg/store/metadata/volume"
)

// ConfigureLogging applies the logging section to internal/logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if err := logger.SetOutput(cfg.Output); err != nil {
		return fmt.Errorf("failed to set log output: %w", err)
	}
	return nil
}

// CreateVolume opens the metadata volume.
func CreateVolume(cfg *MetadataConfig) (*backing.File, error) {
	vol, err := backing.OpenFile(backing.FileConfig{
		Path:          cfg.Path,
		CapacityBytes: cfg.CapacityBytes,
		Create:        cfg.Create,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata volume: %w", err)
	}
	return vol, nil
}

// CreateMetadataStore opens the metadata volume and builds a store on it.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Metadata volume configuration
//   - m: Optional metrics, nil for none
//
// Returns:
//   - *volume.VolumeMetadataStore: Store owning the opened volume
//   - error: Configuration or initialization error
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig, m metrics.StoreMetrics) (*volume.VolumeMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vol, err := CreateVolume(cfg)
	if err != nil {
		return nil, err
	}

	s, err := volume.New(ctx, vol, volume.Config{BlockSize: cfg.BlockSize}, m)
	if err != nil {
		_ = vol.Close()
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}

	logger.Debug("metadata store on %s (block size %d)", cfg.Path, cfg.BlockSize)
	return s, nil
}

// CreateObjectStore creates a journal object store based on configuration.
//
// This factory function uses the Type field to determine which backend to
// create, then decodes the type-specific configuration from the corresponding
// map and passes it to the backend's constructor.
//
// Supported types:
//   - "filesystem": one file per entry under a directory
//   - "badger": BadgerDB key-value store
//   - "memory": in-memory, ephemeral
func CreateObjectStore(ctx context.Context, cfg *JournalConfig) (journal.ObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "filesystem":
		return createFilesystemObjectStore(cfg.Filesystem)
	case "badger":
		return createBadgerObjectStore(ctx, cfg.Badger)
	case "memory":
		return createMemoryObjectStore(cfg.Memory)
	default:
		return nil, fmt.Errorf("unknown journal type: %q (supported: filesystem, badger, memory)", cfg.Type)
	}
}

// decodeOptions decodes a backend section, accepting strings for numbers
// and booleans (environment variables arrive as strings).
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

func createFilesystemObjectStore(options map[string]any) (journal.ObjectStore, error) {
	var storeCfg journalfs.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem journal config: %w", err)
	}
	if err := validateBackend("journal.filesystem", &storeCfg); err != nil {
		return nil, err
	}

	s, err := journalfs.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem journal: %w", err)
	}
	return s, nil
}

func createBadgerObjectStore(ctx context.Context, options map[string]any) (journal.ObjectStore, error) {
	var storeCfg badger.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger journal config: %w", err)
	}
	if err := validateBackend("journal.badger", &storeCfg); err != nil {
		return nil, err
	}

	s, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger journal: %w", err)
	}
	return s, nil
}

func createMemoryObjectStore(options map[string]any) (journal.ObjectStore, error) {
	type MemoryJournalConfig struct {
		MaxNameLen int `mapstructure:"max_name_len" validate:"omitempty,gte=32"`
	}

	var storeCfg MemoryJournalConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory journal config: %w", err)
	}
	if err := validateBackend("journal.memory", &storeCfg); err != nil {
		return nil, err
	}

	return memory.New(storeCfg.MaxNameLen), nil
}

// CreateJournal builds a Journal over the configured object store.
func CreateJournal(ctx context.Context, cfg *JournalConfig, m metrics.StoreMetrics) (*journal.Journal, error) {
	objects, err := CreateObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return journal.New(objects, m), nil
}

// ConfigureLocks points the process-wide lock registry at the configured
// directory.
func ConfigureLocks(cfg *LockConfig, m metrics.LockMetrics) {
	lock.Default.Configure(cfg.BaseDir, m)
}
