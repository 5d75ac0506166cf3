package prometheus

import (
	"time"

	"github.com/marmos91/dittodir/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// backupMetrics is the Prometheus implementation of metrics.BackupMetrics.
type backupMetrics struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadedBytes  *prometheus.CounterVec
}

// NewBackupMetrics creates a new Prometheus-backed BackupMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewBackupMetrics() metrics.BackupMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopBackupMetrics()
	}
	return newBackupMetrics(metrics.GetRegistry())
}

func newBackupMetrics(reg prometheus.Registerer) *backupMetrics {
	return &backupMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodir_backup_uploads_total",
				Help: "Total number of backup uploads by target and status",
			},
			[]string{"target", "status"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittodir_backup_upload_duration_seconds",
				Help: "Duration of backup uploads in seconds",
				Buckets: []float64{
					0.1, // 100ms
					1,   // 1s
					10,  // 10s
					60,  // 1m
					600, // 10m
				},
			},
			[]string{"target"},
		),
		uploadedBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittodir_backup_bytes_total",
				Help: "Total bytes uploaded by backups",
			},
			[]string{"target"},
		),
	}
}

func (m *backupMetrics) ObserveUpload(target string, duration time.Duration, bytes int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.uploadsTotal.WithLabelValues(target, status).Inc()
	m.uploadDuration.WithLabelValues(target).Observe(duration.Seconds())
	if err == nil {
		m.uploadedBytes.WithLabelValues(target).Add(float64(bytes))
	}
}
