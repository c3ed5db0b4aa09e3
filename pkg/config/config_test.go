package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

metadata:
  path: "/dev/VG_XenStorage-1/MGT"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Metadata.Path != "/dev/VG_XenStorage-1/MGT" {
		t.Errorf("Expected metadata path from file, got %q", cfg.Metadata.Path)
	}
	if cfg.Metadata.BlockSize != 512 {
		t.Errorf("Expected default block size 512, got %d", cfg.Metadata.BlockSize)
	}
	if cfg.Journal.Type != "filesystem" {
		t.Errorf("Expected default journal type 'filesystem', got %q", cfg.Journal.Type)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A non-existent explicit path keeps the user's own config out of the test
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Lock.BaseDir != "/var/lock/sm" {
		t.Errorf("Expected default lock dir '/var/lock/sm', got %q", cfg.Lock.BaseDir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[metadata]
path = "/srv/sr/metadata.img"
block_size = 4096

[journal]
type = "badger"

[journal.badger]
db_path = "/srv/sr/journal.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Metadata.BlockSize != 4096 {
		t.Errorf("Expected block size 4096, got %d", cfg.Metadata.BlockSize)
	}
	if cfg.Journal.Type != "badger" {
		t.Errorf("Expected journal type 'badger', got %q", cfg.Journal.Type)
	}
	if cfg.Journal.Badger["db_path"] != "/srv/sr/journal.db" {
		t.Errorf("Expected badger db_path from file, got %v", cfg.Journal.Badger["db_path"])
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
metadata:
  block_size: 1000
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for block size 1000, got nil")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := GetConfigDir(); dir != filepath.Join(xdg, "srmeta") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "srmeta"), dir)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in an empty directory")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("SRMETA_LOGGING_LEVEL", "ERROR")
	t.Setenv("SRMETA_METADATA_BLOCK_SIZE", "4096")
	t.Setenv("SRMETA_LOCK_BASE_DIR", "/run/srmeta/lock")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

metadata:
  block_size: 512
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Metadata.BlockSize != 4096 {
		t.Errorf("Expected block size 4096 from env var, got %d", cfg.Metadata.BlockSize)
	}
	// Not present in the file at all
	if cfg.Lock.BaseDir != "/run/srmeta/lock" {
		t.Errorf("Expected lock dir from env var, got %q", cfg.Lock.BaseDir)
	}
}
