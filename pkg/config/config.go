package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete dittodir configuration.
//
// This structure captures all configurable aspects of a partition including:
//   - Logging configuration
//   - The partition: suffix, replica and backing store selection (store-specific)
//   - Metrics collection
//   - Backup target selection and configuration (target-specific)
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTODIR_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct contains type-specific sections (e.g., partition.store.dirtree,
// partition.store.singlefile) and only the section matching the selected
// type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Partition describes the naming context and its backing store
	Partition PartitionConfig `mapstructure:"partition" yaml:"partition"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Backup specifies the backup target type and type-specific configuration
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// PartitionConfig describes one partition.
type PartitionConfig struct {
	// ID names the partition in logs, metrics and backup object names
	ID string `mapstructure:"id" validate:"required,excludesall=/\\" yaml:"id"`

	// Suffix is the DN of the naming context root (e.g., "dc=example,dc=com")
	Suffix string `mapstructure:"suffix" validate:"required" yaml:"suffix"`

	// ReplicaID is embedded in every entryCSN
	ReplicaID int `mapstructure:"replica_id" validate:"gte=0,lte=4095" yaml:"replica_id"`

	// CreateSuffix adds the suffix entry at startup when the store is empty
	CreateSuffix bool `mapstructure:"create_suffix" yaml:"create_suffix"`

	// SuffixObjectClasses are the object classes of a created suffix entry
	SuffixObjectClasses []string `mapstructure:"suffix_object_classes" yaml:"suffix_object_classes"`

	// Store specifies the backing store type and type-specific configuration
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// StoreConfig specifies backing store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: dirtree, singlefile
	Type string `mapstructure:"type" validate:"required,oneof=dirtree singlefile" yaml:"type"`

	// DirTree contains directory-tree store configuration
	// Only used when Type = "dirtree"
	DirTree map[string]any `mapstructure:"dirtree" yaml:"dirtree"`

	// SingleFile contains single-file store configuration
	// Only used when Type = "singlefile"
	SingleFile map[string]any `mapstructure:"singlefile" yaml:"singlefile"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled turns on Prometheus metrics
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port of the HTTP server exposing /metrics
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// BackupConfig specifies backup target configuration.
//
// The Type field determines which target implementation is used.
// Only the corresponding type-specific configuration section is used.
type BackupConfig struct {
	// Type specifies which backup target to use
	// Valid values: file, s3
	Type string `mapstructure:"type" validate:"required,oneof=file s3" yaml:"type"`

	// File contains local directory target configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file" yaml:"file"`

	// S3 contains S3 target configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTODIR_*)
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

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use DITTODIR_ prefix and underscores
	// Example: DITTODIR_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTODIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/dittodir/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// An explicit path that does not exist yet is treated the same way
		if configPath != "" && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittodir")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "dittodir")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
