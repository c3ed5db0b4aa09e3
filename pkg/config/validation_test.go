package config

import "testing"

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Fatalf("Expected valid config, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"InvalidLogLevel", func(cfg *Config) { cfg.Logging.Level = "VERBOSE" }},
		{"InvalidLogFormat", func(cfg *Config) { cfg.Logging.Format = "xml" }},
		{"EmptyMetadataPath", func(cfg *Config) { cfg.Metadata.Path = "" }},
		{"BlockSizeTooSmall", func(cfg *Config) { cfg.Metadata.BlockSize = 256 }},
		{"BlockSizeNotMultiple", func(cfg *Config) { cfg.Metadata.BlockSize = 1000 }},
		{"NegativeCapacity", func(cfg *Config) { cfg.Metadata.CapacityBytes = -1 }},
		{"CapacityTooSmall", func(cfg *Config) { cfg.Metadata.CapacityBytes = 1024 }},
		{"InvalidJournalType", func(cfg *Config) { cfg.Journal.Type = "lvm" }},
		{"EmptyLockDir", func(cfg *Config) { cfg.Lock.BaseDir = "" }},
		{"TextfileWithoutMetrics", func(cfg *Config) { cfg.Metrics.Textfile = "/tmp/srmeta.prom" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Expected validation error, got nil")
			}
		})
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level
		if err := Validate(cfg); err != nil {
			t.Errorf("Expected lowercase level %q to be valid, got: %v", level, err)
		}
	}
}

func TestValidate_MetricsTextfile(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Textfile = "/var/lib/node_exporter/srmeta.prom"

	if err := Validate(cfg); err != nil {
		t.Fatalf("Expected valid metrics config, got: %v", err)
	}
}
