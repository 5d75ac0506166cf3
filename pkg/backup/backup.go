package backup

import (
	"bytes"
	"context"
	"time"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/metrics"
)

// timestampLayout is the UTC timestamp embedded in backup object names.
const timestampLayout = "20060102T150405Z"

// Result describes a completed backup.
type Result struct {
	Name    string
	Entries int
	Bytes   int64
}

// Run exports the whole partition and stores it on target as
// "<id>-<UTC timestamp>.ldif".
//
// Parameters:
//   - ctx: Context for cancellation
//   - src: The partition to export
//   - id: The partition identifier
//   - target: Where to store the snapshot
//   - m: Upload metrics, nil for none
//   - now: Backup time
func Run(ctx context.Context, src Source, id string, target Target, m metrics.BackupMetrics, now time.Time) (*Result, error) {
	if m == nil {
		m = metrics.NewNoopBackupMetrics()
	}

	var buf bytes.Buffer
	n, err := Export(ctx, src, dn.DN{}, &buf)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Name:    ObjectName(id, now),
		Entries: n,
		Bytes:   int64(buf.Len()),
	}

	start := time.Now()
	err = target.Put(ctx, res.Name, &buf, res.Bytes)
	m.ObserveUpload(target.Type(), time.Since(start), res.Bytes, err)
	if err != nil {
		return nil, err
	}

	logger.Info("backup: stored %s on %s target (%d entries, %d bytes)", res.Name, target.Type(), res.Entries, res.Bytes)
	return res, nil
}

// ObjectName returns the name of the backup of partition id taken at t.
func ObjectName(id string, t time.Time) string {
	return id + "-" + t.UTC().Format(timestampLayout) + ".ldif"
}
