package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a default configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists and force is false, or on write failure
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// configSection is one top-level block of the generated file.
type configSection struct {
	key     string
	comment []string
	value   any
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// block above every top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []configSection{
		{
			key: "logging",
			comment: []string{
				"Logging: level is DEBUG, INFO, WARN or ERROR; format is text or json;",
				"output is stdout, stderr or a file path.",
			},
			value: cfg.Logging,
		},
		{
			key: "partition",
			comment: []string{
				"Partition: the naming context served from this configuration.",
				"store.type selects the backing store: dirtree (one LDIF file per entry)",
				"or singlefile (every entry in one LDIF file). Only the section matching",
				"the type is used.",
			},
			value: cfg.Partition,
		},
		{
			key: "metrics",
			comment: []string{
				"Metrics: Prometheus metrics served on http://0.0.0.0:<port>/metrics.",
			},
			value: cfg.Metrics,
		},
		{
			key: "backup",
			comment: []string{
				"Backup: where 'dittodir backup' stores LDIF snapshots.",
				"type is file (local directory) or s3 (region and bucket required,",
				"endpoint for S3-compatible services).",
			},
			value: cfg.Backup,
		},
	}

	var b strings.Builder
	b.WriteString("# dittodir Configuration File\n")
	b.WriteString("#\n")
	b.WriteString("# Values may be overridden with DITTODIR_* environment variables,\n")
	b.WriteString("# e.g. DITTODIR_LOGGING_LEVEL=DEBUG.\n")

	for _, section := range sections {
		out, err := yaml.Marshal(map[string]any{section.key: section.value})
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s section: %w", section.key, err)
		}

		b.WriteString("\n")
		for _, line := range section.comment {
			b.WriteString("# " + line + "\n")
		}
		b.Write(out)
	}

	return b.String(), nil
}
