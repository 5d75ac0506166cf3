package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittodir/pkg/dn"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The suffix must be a well-formed, non-empty DN
	suffix, err := dn.Parse(cfg.Partition.Suffix)
	if err != nil {
		return fmt.Errorf("partition.suffix: %w", err)
	}
	if suffix.IsZero() {
		return fmt.Errorf("partition.suffix: the root DSE cannot be a partition suffix")
	}

	// The selected store needs a path
	var storeOptions map[string]any
	switch cfg.Partition.Store.Type {
	case "dirtree":
		storeOptions = cfg.Partition.Store.DirTree
	case "singlefile":
		storeOptions = cfg.Partition.Store.SingleFile
	}
	if path, _ := storeOptions["path"].(string); path == "" {
		return fmt.Errorf("partition.store.%s.path: a path is required", cfg.Partition.Store.Type)
	}

	// Metrics need somewhere to listen
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics.port: required when metrics are enabled")
	}

	// The selected backup target needs its destination
	switch cfg.Backup.Type {
	case "file":
		if dir, _ := cfg.Backup.File["dir"].(string); dir == "" {
			return fmt.Errorf("backup.file.dir: a directory is required")
		}
	case "s3":
		if bucket, _ := cfg.Backup.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("backup.s3.bucket: a bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
