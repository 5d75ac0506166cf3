package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/backup"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/metrics"
	"github.com/marmos91/dittodir/pkg/partition"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/marmos91/dittodir/pkg/store/dirtree"
	"github.com/marmos91/dittodir/pkg/store/singlefile"
	"github.com/mitchellh/mapstructure"
)

// CreateStore creates the backing store of a partition based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "dirtree": Uses pkg/store/dirtree (one LDIF file per entry)
//   - "singlefile": Uses pkg/store/singlefile (all entries in one LDIF file)
//
// Parameters:
//   - cfg: Partition configuration (suffix and store section)
//
// Returns:
//   - store.Store: The store, not yet opened
//   - error: Configuration error
func CreateStore(cfg *PartitionConfig) (store.Store, error) {
	suffix, err := dn.Parse(cfg.Suffix)
	if err != nil {
		return nil, fmt.Errorf("invalid partition suffix %q: %w", cfg.Suffix, err)
	}

	switch cfg.Store.Type {
	case "dirtree":
		return createDirTreeStore(cfg.Store.DirTree, suffix)
	case "singlefile":
		return createSingleFileStore(cfg.Store.SingleFile, suffix)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: dirtree, singlefile)", cfg.Store.Type)
	}
}

// createDirTreeStore creates a directory-tree store.
func createDirTreeStore(options map[string]any, suffix dn.DN) (store.Store, error) {
	var storeCfg dirtree.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode dirtree store config: %w", err)
	}
	if err := validate.Struct(&storeCfg); err != nil {
		return nil, fmt.Errorf("dirtree store: %w", formatValidationError(err))
	}

	s, err := dirtree.New(storeCfg, suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create dirtree store: %w", err)
	}
	return s, nil
}

// createSingleFileStore creates a single-file store.
func createSingleFileStore(options map[string]any, suffix dn.DN) (store.Store, error) {
	var storeCfg singlefile.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode singlefile store config: %w", err)
	}
	if err := validate.Struct(&storeCfg); err != nil {
		return nil, fmt.Errorf("singlefile store: %w", formatValidationError(err))
	}

	s, err := singlefile.New(storeCfg, suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create singlefile store: %w", err)
	}
	return s, nil
}

// decodeOptions decodes a type-specific options map. Values coming from YAML
// or the environment may be strings, so weak typing is enabled.
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

// CreatePartition creates the partition engine and its backing store.
//
// The engine is returned uninitialized; callers run Initialize to open the
// store and run recovery.
//
// Parameters:
//   - cfg: Partition configuration
//   - m: Partition metrics (nil for none)
//
// Returns:
//   - *partition.Engine: The partition
//   - error: Configuration error
func CreatePartition(cfg *PartitionConfig, m metrics.PartitionMetrics) (*partition.Engine, error) {
	st, err := CreateStore(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := partition.New(partition.Config{
		ID:                  cfg.ID,
		ReplicaID:           cfg.ReplicaID,
		CreateSuffix:        cfg.CreateSuffix,
		SuffixObjectClasses: cfg.SuffixObjectClasses,
	}, st, partition.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to create partition %s: %w", cfg.ID, err)
	}

	logger.Debug("Partition %s configured: suffix=%s, store=%s", cfg.ID, cfg.Suffix, cfg.Store.Type)
	return engine, nil
}

// CreateBackupTarget creates a backup target based on configuration.
//
// Supported types:
//   - "file": Writes backups into a local directory
//   - "s3": Uploads backups to Amazon S3 or compatible storage
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Backup configuration
//
// Returns:
//   - backup.Target: Initialized backup target
//   - error: Configuration or initialization error
func CreateBackupTarget(ctx context.Context, cfg *BackupConfig) (backup.Target, error) {
	switch cfg.Type {
	case "file":
		return createFileBackupTarget(cfg.File)
	case "s3":
		return createS3BackupTarget(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown backup target type: %q (supported: file, s3)", cfg.Type)
	}
}

// createFileBackupTarget creates a local directory backup target.
func createFileBackupTarget(options map[string]any) (backup.Target, error) {
	type FileBackupTargetConfig struct {
		Dir      string      `mapstructure:"dir"`
		FileMode os.FileMode `mapstructure:"file_mode"`
	}

	var targetCfg FileBackupTargetConfig
	if err := decodeOptions(options, &targetCfg); err != nil {
		return nil, fmt.Errorf("failed to decode file backup target config: %w", err)
	}

	target, err := backup.NewFileTarget(targetCfg.Dir, targetCfg.FileMode)
	if err != nil {
		return nil, err
	}
	return target, nil
}

// S3BackupTargetConfig holds the options of the "s3" backup target.
type S3BackupTargetConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// createS3BackupTarget creates an S3-based backup target.
func createS3BackupTarget(ctx context.Context, options map[string]any) (backup.Target, error) {
	var targetCfg S3BackupTargetConfig
	if err := decodeOptions(options, &targetCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 backup target config: %w", err)
	}

	// Validate required fields
	if targetCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 backup target: bucket is required")
	}

	if targetCfg.Region == "" {
		return nil, fmt.Errorf("S3 backup target: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	awsCfg, err := loadAWSConfig(ctx, &targetCfg)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Force path-style addressing for compatibility with MinIO/Localstack
		if targetCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Backup Target
	// ========================================================================

	target, err := backup.NewS3Target(backup.S3TargetConfig{
		Client:    client,
		Bucket:    targetCfg.Bucket,
		KeyPrefix: targetCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 backup target: %w", err)
	}

	logger.Info("S3 backup target initialized: bucket=%s, region=%s, prefix=%s",
		targetCfg.Bucket, targetCfg.Region, targetCfg.KeyPrefix)

	return target, nil
}

// loadAWSConfig builds the AWS configuration of an S3 backup target.
func loadAWSConfig(ctx context.Context, targetCfg *S3BackupTargetConfig) (aws.Config, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	// Set region
	configOptions = append(configOptions, awsConfig.WithRegion(targetCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if targetCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               targetCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if targetCfg.AccessKeyID != "" && targetCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			targetCfg.AccessKeyID,
			targetCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Backups are single uploads; retry transient failures more than the SDK default
	maxRetries := targetCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}
