// Package partition implements the partition engine: the entry point of the
// directory server into one naming context.
//
// An Engine owns one backing store (directory tree or single file, chosen by
// configuration) and translates DN-qualified requests into store operations.
// It maintains the server-managed attributes (entryUUID, entryCSN), derives
// the naming-attribute edits of a rename, attaches the entryDN attribute to
// returned entries, and serializes writers against readers with one
// readers-writer lock per partition.
package partition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/metrics"
	"github.com/marmos91/dittodir/pkg/store"
)

// Config holds partition options.
type Config struct {
	// ID names the partition in logs, metrics and backup object names
	ID string

	// ReplicaID is embedded in every entryCSN (0-4095)
	ReplicaID int

	// CreateSuffix adds the suffix entry on Initialize when the store is empty
	CreateSuffix bool

	// SuffixObjectClasses are the object classes of a created suffix entry
	SuffixObjectClasses []string
}

var defaultSuffixObjectClasses = []string{"top", "extensibleObject"}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a metrics collector. A nil collector disables metrics.
func WithMetrics(m metrics.PartitionMetrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock replaces the clock used for entryCSN timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine is a partition: one suffix backed by one store.
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	store   store.Store
	csn     *CSNGenerator
	metrics metrics.PartitionMetrics
	now     func() time.Time

	// opened is set once Initialize succeeds and cleared by Close
	opened bool
}

// New creates an engine over st. Initialize must be called before use.
//
// Parameters:
//   - cfg: Partition options
//   - st: The backing store, not yet opened
//   - opts: Optional metrics and clock
//
// Returns:
//   - *Engine: The partition
//   - error: If the store is nil or the replica ID is out of range
func New(cfg Config, st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("partition: store is required")
	}
	if cfg.ReplicaID < 0 || cfg.ReplicaID > 0xfff {
		return nil, fmt.Errorf("partition: replica id %d out of range [0, 4095]", cfg.ReplicaID)
	}
	if cfg.ID == "" {
		cfg.ID = st.Suffix().String()
	}
	if len(cfg.SuffixObjectClasses) == 0 {
		cfg.SuffixObjectClasses = defaultSuffixObjectClasses
	}

	e := &Engine{
		cfg:     cfg,
		store:   st,
		metrics: metrics.NewNoopPartitionMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.csn = NewCSNGenerator(cfg.ReplicaID, e.now)
	return e, nil
}

// ID returns the partition identifier.
func (e *Engine) ID() string {
	return e.cfg.ID
}

// Suffix returns the naming context root.
func (e *Engine) Suffix() dn.DN {
	return e.store.Suffix()
}

// Store returns the backing store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Initialize opens the store, which rebuilds the index from what is on disk,
// and creates the suffix entry when configured to and absent.
func (e *Engine) Initialize(ctx context.Context) (err error) {
	defer e.observe("Initialize", time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Open(ctx); err != nil {
		return err
	}

	suffix := e.store.Suffix()
	if e.cfg.CreateSuffix {
		exists, err := e.store.Exists(ctx, suffix)
		if err != nil {
			return err
		}
		if !exists {
			root := entry.New(suffix)
			root.Put(entry.AttrObjectClass, e.cfg.SuffixObjectClasses...)
			if err := e.prepareAdd(root); err != nil {
				return err
			}
			if err := e.store.Add(ctx, root); err != nil {
				return err
			}
			logger.Info("partition %s: created suffix entry %s", e.cfg.ID, suffix)
		}
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		return err
	}
	e.updateGauges(ctx)
	e.opened = true
	logger.Info("partition %s: initialized %s with %d entries", e.cfg.ID, suffix, count)
	return nil
}

// Close closes the store.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opened = false
	return e.store.Close(ctx)
}

// Status reports whether the partition is open and, when it is, its size.
func (e *Engine) Status(ctx context.Context) (metrics.PartitionStatus, error) {
	st := metrics.PartitionStatus{
		ID:     e.cfg.ID,
		Suffix: e.store.Suffix().String(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.opened {
		return st, nil
	}
	st.Open = true

	var err error
	if st.Entries, err = e.store.Count(ctx); err != nil {
		return st, err
	}
	if st.StoreBytes, err = e.store.Size(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// SetRewriting toggles deferred physical writes on stores that support it.
// Disabling is meant for bulk loads; enabling flushes every deferred change.
//
// Returns ErrNotSupported when the store always writes through.
func (e *Engine) SetRewriting(ctx context.Context, enabled bool) (err error) {
	defer e.observe("SetRewriting", time.Now(), &err)

	rw, ok := e.store.(store.Rewriter)
	if !ok {
		return store.NewError(store.ErrNotSupported, e.store.Suffix(), "store does not support deferred rewriting")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := rw.SetRewriting(ctx, enabled); err != nil {
		return err
	}
	e.updateGauges(ctx)
	return nil
}

// Count returns the number of entries in the partition.
func (e *Engine) Count(ctx context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.store.Count(ctx)
}

// Size returns the number of bytes of persisted records.
func (e *Engine) Size(ctx context.Context) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.store.Size(ctx)
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	e.metrics.RecordOperation(op, time.Since(start), *err)
}

// updateGauges refreshes the size gauges. Callers hold the lock.
func (e *Engine) updateGauges(ctx context.Context) {
	if count, err := e.store.Count(ctx); err == nil {
		e.metrics.SetEntries(count)
	}
	if size, err := e.store.Size(ctx); err == nil {
		e.metrics.SetStoreBytes(size)
	}
}
