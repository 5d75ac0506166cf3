package config

import (
	"path/filepath"
	"strings"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyPartitionDefaults(&cfg.Partition)
	applyMetricsDefaults(&cfg.Metrics)
	applyBackupDefaults(&cfg.Backup)
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
		cfg.Output = "stdout"
	}
}

// applyPartitionDefaults sets partition defaults.
func applyPartitionDefaults(cfg *PartitionConfig) {
	if cfg.ID == "" {
		cfg.ID = "userRoot"
	}
	if cfg.Suffix == "" {
		cfg.Suffix = "dc=example,dc=com"
	}
	if len(cfg.SuffixObjectClasses) == 0 {
		cfg.SuffixObjectClasses = []string{"top", "extensibleObject"}
	}

	// ReplicaID defaults to 0
	// CreateSuffix defaults to false

	applyStoreDefaults(&cfg.Store, cfg.ID)
}

// applyStoreDefaults sets backing store defaults.
func applyStoreDefaults(cfg *StoreConfig, id string) {
	if cfg.Type == "" {
		cfg.Type = "dirtree"
	}

	// Initialize maps if nil
	if cfg.DirTree == nil {
		cfg.DirTree = make(map[string]any)
	}
	if cfg.SingleFile == nil {
		cfg.SingleFile = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.DirTree["path"]; !ok {
		cfg.DirTree["path"] = filepath.Join("/var/lib/dittodir", id)
	}
	if _, ok := cfg.SingleFile["path"]; !ok {
		cfg.SingleFile["path"] = filepath.Join("/var/lib/dittodir", id+".ldif")
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyBackupDefaults sets backup target defaults.
func applyBackupDefaults(cfg *BackupConfig) {
	if cfg.Type == "" {
		cfg.Type = "file"
	}

	// Initialize maps if nil
	if cfg.File == nil {
		cfg.File = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.File["dir"]; !ok {
		cfg.File["dir"] = "/var/backups/dittodir"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Partition: PartitionConfig{
			// A fresh partition gets its suffix entry so it is usable right away
			CreateSuffix: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
