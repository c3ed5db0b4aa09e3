package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a commented default configuration to the default
// location and returns its path.
//
// An existing file is only replaced when force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a commented default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

type yamlSection struct {
	key     string
	comment string
	value   any
}

// generateYAMLWithComments renders cfg as YAML with a comment above every
// section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []yamlSection{
		{
			key:     "logging",
			comment: "# Logging: level DEBUG|INFO|WARN|ERROR, format text|json, output stdout|stderr|<path>",
			value: map[string]any{
				"level":  cfg.Logging.Level,
				"format": cfg.Logging.Format,
				"output": cfg.Logging.Output,
			},
		},
		{
			key:     "metadata",
			comment: "# Metadata volume: a block device or regular file.\n# block_size is the write granularity (512, or 4096 for 4K-native devices).\n# capacity_bytes 0 means the free space of the hosting filesystem.",
			value: map[string]any{
				"path":           cfg.Metadata.Path,
				"block_size":     cfg.Metadata.BlockSize,
				"capacity_bytes": cfg.Metadata.CapacityBytes,
				"create":         cfg.Metadata.Create,
			},
		},
		{
			key:     "journal",
			comment: "# Journal backend: filesystem, badger or memory.\n# Only the section matching type is used.",
			value: map[string]any{
				"type":       cfg.Journal.Type,
				"filesystem": cfg.Journal.Filesystem,
				"badger":     cfg.Journal.Badger,
				"memory":     cfg.Journal.Memory,
			},
		},
		{
			key:     "lock",
			comment: "# Lock files live at <base_dir>/<namespace>/<name>",
			value: map[string]any{
				"base_dir": cfg.Lock.BaseDir,
			},
		},
		{
			key:     "metrics",
			comment: "# Prometheus metrics, dumped to a node_exporter textfile on exit",
			value: map[string]any{
				"enabled":  cfg.Metrics.Enabled,
				"textfile": cfg.Metrics.Textfile,
			},
		},
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range sections {
		var value yaml.Node
		if err := value.Encode(s.value); err != nil {
			return "", fmt.Errorf("failed to encode %s section: %w", s.key, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: s.key, HeadComment: s.comment}
		root.Content = append(root.Content, key, &value)
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "# srmeta Configuration File\n# Environment variables SRMETA_<SECTION>_<KEY> override these values.",
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}
