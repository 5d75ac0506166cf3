package prometheus

import (
	"time"

	"github.com/marmos91/dittodir/pkg/metrics"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// partitionMetrics is the Prometheus implementation of metrics.PartitionMetrics.
type partitionMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	entries           prometheus.Gauge
	storeBytes        prometheus.Gauge
}

// NewPartitionMetrics creates a new Prometheus-backed PartitionMetrics instance.
//
// Parameters:
//   - partitionID: Partition identifier, attached as the "partition" label
//   - storeType: Backing store variant ("dirtree" or "singlefile")
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewPartitionMetrics(partitionID, storeType string) metrics.PartitionMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopPartitionMetrics()
	}
	return newPartitionMetrics(metrics.GetRegistry(), partitionID, storeType)
}

func newPartitionMetrics(reg prometheus.Registerer, partitionID, storeType string) *partitionMetrics {
	labels := prometheus.Labels{
		"partition":  partitionID,
		"store_type": storeType,
	}

	return &partitionMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "dittodir_partition_operations_total",
				Help:        "Total number of partition operations by operation, status and error code",
				ConstLabels: labels,
			},
			[]string{"operation", "status", "error_code"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "dittodir_partition_operation_duration_milliseconds",
				Help:        "Duration of partition operations in milliseconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.1,  // 100µs
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"operation"},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name:        "dittodir_partition_entries",
				Help:        "Current number of entries in the partition",
				ConstLabels: labels,
			},
		),
		storeBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name:        "dittodir_partition_store_bytes",
				Help:        "Current number of bytes of persisted records",
				ConstLabels: labels,
			},
		),
	}
}

func (m *partitionMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	errorCode := ""
	if err != nil {
		status = "error"
		errorCode = store.CodeOf(err).String()
	}

	m.operationsTotal.WithLabelValues(operation, status, errorCode).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *partitionMetrics) SetEntries(count int) {
	m.entries.Set(float64(count))
}

func (m *partitionMetrics) SetStoreBytes(bytes int64) {
	m.storeBytes.Set(float64(bytes))
}
