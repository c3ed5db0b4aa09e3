package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete srmeta configuration.
//
// This structure captures all configurable aspects of srmeta including:
//   - Logging configuration
//   - The metadata volume and its write granularity
//   - Journal backend selection and configuration (backend-specific)
//   - Lock file location
//   - Metrics output
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SRMETA_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Backend Configuration Pattern:
// Each journal backend defines its own configuration type. The Config struct
// contains type-specific sections (e.g., journal.filesystem, journal.badger)
// and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Metadata describes the volume holding the SR metadata
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Journal specifies the journal backend and its configuration
	Journal JournalConfig `mapstructure:"journal"`

	// Lock configures lock file placement
	Lock LockConfig `mapstructure:"lock"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// MetadataConfig describes the metadata volume.
type MetadataConfig struct {
	// Path is the block device or regular file holding the metadata
	Path string `mapstructure:"path" validate:"required"`

	// BlockSize is the write granularity in bytes, a multiple of 512.
	// Use 4096 for 4K-native devices.
	BlockSize int64 `mapstructure:"block_size" validate:"required,gte=512,lte=1048576"`

	// CapacityBytes caps the usable size of a regular file (0 = free space)
	CapacityBytes int64 `mapstructure:"capacity_bytes" validate:"gte=0"`

	// Create creates a missing regular file
	Create bool `mapstructure:"create"`
}

// JournalConfig specifies the journal backend.
//
// The Type field determines which backend is used.
// Only the corresponding type-specific configuration section is used.
type JournalConfig struct {
	// Type specifies which journal backend to use
	// Valid values: filesystem, badger, memory
	Type string `mapstructure:"type" validate:"required,oneof=filesystem badger memory"`

	// Filesystem contains directory-backend configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// LockConfig configures lock files.
type LockConfig struct {
	// BaseDir is the directory holding <namespace>/<name> lock files
	BaseDir string `mapstructure:"base_dir" validate:"required"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled turns on Prometheus metrics collection
	Enabled bool `mapstructure:"enabled"`

	// Textfile is where metrics are written on exit, in the node_exporter
	// textfile collector format. Empty disables the dump.
	Textfile string `mapstructure:"textfile"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SRMETA_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so environment variables work without a
// config file mentioning the key.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"metadata.path",
	"metadata.block_size",
	"metadata.capacity_bytes",
	"metadata.create",
	"journal.type",
	"lock.base_dir",
	"metrics.enabled",
	"metrics.textfile",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use SRMETA_ prefix and underscores
	// Example: SRMETA_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SRMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/srmeta/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is also acceptable
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "srmeta")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "srmeta")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
