package metrics

import "time"

// PartitionMetrics provides observability for partition operations.
//
// Implementations collect per-operation counts and latencies together with
// the size of the partition. This interface is optional - if not provided to
// the partition engine, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewPartitionMetrics("userRoot", "singlefile")
//	engine, err := partition.New(cfg, store, partition.WithMetrics(m))
type PartitionMetrics interface {
	// RecordOperation records a completed partition operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "Add", "Rename", "Search")
	//   - duration: Time taken to complete the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// SetEntries updates the number of entries held by the partition.
	SetEntries(count int)

	// SetStoreBytes updates the number of bytes of persisted records.
	SetStoreBytes(bytes int64)
}

// NewNoopPartitionMetrics returns a PartitionMetrics that discards everything.
func NewNoopPartitionMetrics() PartitionMetrics {
	return noopPartitionMetrics{}
}

// noopPartitionMetrics is a no-op implementation of PartitionMetrics with zero overhead.
type noopPartitionMetrics struct{}

func (noopPartitionMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopPartitionMetrics) SetEntries(count int)                                                {}
func (noopPartitionMetrics) SetStoreBytes(bytes int64)                                           {}
