package metrics

import "time"

// BackupMetrics provides observability for backup uploads.
//
// This interface is optional - if not provided to a backup target, uploads
// proceed without metrics collection.
type BackupMetrics interface {
	// ObserveUpload records a completed upload.
	//
	// Parameters:
	//   - target: Target type (e.g., "file", "s3")
	//   - duration: Time taken by the upload
	//   - bytes: Bytes written
	//   - err: Error if the upload failed, nil if successful
	ObserveUpload(target string, duration time.Duration, bytes int64, err error)
}

// NewNoopBackupMetrics returns a BackupMetrics that discards everything.
func NewNoopBackupMetrics() BackupMetrics {
	return noopBackupMetrics{}
}

type noopBackupMetrics struct{}

func (noopBackupMetrics) ObserveUpload(target string, duration time.Duration, bytes int64, err error) {
}
