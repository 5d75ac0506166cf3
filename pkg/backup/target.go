package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Target stores backup objects.
type Target interface {
	// Type names the target kind ("file", "s3") for logs and metrics
	Type() string

	// Put stores size bytes read from body under name, replacing any
	// object of the same name.
	Put(ctx context.Context, name string, body io.Reader, size int64) error
}

// FileTarget writes backups into a local directory.
type FileTarget struct {
	// Dir is created on first use
	Dir string

	// FileMode of written backups (default 0600)
	FileMode os.FileMode
}

// NewFileTarget creates a FileTarget.
func NewFileTarget(dir string, mode os.FileMode) (*FileTarget, error) {
	if dir == "" {
		return nil, fmt.Errorf("file backup target: dir is required")
	}
	if mode == 0 {
		mode = 0600
	}
	return &FileTarget{Dir: dir, FileMode: mode}, nil
}

// Type implements Target.
func (t *FileTarget) Type() string {
	return "file"
}

// Put writes the object through a temporary file renamed into place.
func (t *FileTarget) Put(ctx context.Context, name string, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid backup name %q", name)
	}
	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(t.Dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary backup file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	written, err := io.Copy(tmp, body)
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short backup body: wrote %d of %d bytes", written, size)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if err == nil {
		err = tmp.Chmod(t.FileMode)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write backup %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(t.Dir, name)); err != nil {
		return fmt.Errorf("failed to publish backup %s: %w", name, err)
	}
	return nil
}

// S3API is the subset of the S3 client used by S3Target.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Target uploads backups to an S3 bucket (or an S3-compatible service).
type S3Target struct {
	client    S3API
	bucket    string
	keyPrefix string // Optional prefix for all keys
}

// S3TargetConfig contains configuration for an S3 backup target.
type S3TargetConfig struct {
	// Client is the configured S3 client
	Client S3API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "dittodir/backups/" results in keys like "dittodir/backups/userRoot-20240101T000000Z.ldif"
	KeyPrefix string
}

// NewS3Target creates an S3 backup target. The bucket must already exist.
func NewS3Target(cfg S3TargetConfig) (*S3Target, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &S3Target{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// Type implements Target.
func (t *S3Target) Type() string {
	return "s3"
}

// Put uploads the object with a single PutObject call.
func (t *S3Target) Put(ctx context.Context, name string, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(t.objectKey(name)),
		Body:        body,
		ContentType: aws.String("text/plain; charset=utf-8"),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := t.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload backup to S3: %w", err)
	}
	return nil
}

func (t *S3Target) objectKey(name string) string {
	return t.keyPrefix + name
}
