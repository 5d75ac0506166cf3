// Package singlefile implements the single-file backing store.
//
// Every entry of the partition is one LDIF record in a single file, records
// back-to-back with no padding. The PathIndex maps each DN to the byte range
// [offset, offset+length) of its record. Records are appended on add and
// patched in place on modify, shifting the tail of the file when their size
// changes; the recorded offsets of every later record follow the shift.
//
// Invariant: the file length always equals the sum of the record lengths.
package singlefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
)

// Config holds single-file store options.
type Config struct {
	// Path is the partition file
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// SyncWrites fsyncs the file after every mutation
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// FileMode is the permission of the partition file (default 0644)
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode"`

	// CopyBufferSize is the buffer used to shift the file tail (default 64KiB)
	CopyBufferSize int `mapstructure:"copy_buffer_size" validate:"omitempty,min=512" yaml:"copy_buffer_size"`
}

const defaultCopyBufferSize = 64 * 1024

func (c *Config) applyDefaults() {
	if c.FileMode == 0 {
		c.FileMode = 0644
	}
	if c.CopyBufferSize == 0 {
		c.CopyBufferSize = defaultCopyBufferSize
	}
}

// Store is the single-file implementation of store.Store and store.Rewriter.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	suffix dn.DN
	index  *store.PathIndex

	file *os.File

	// size is the logical file length: the sum of all record lengths
	size int64

	// rewriting is false during bulk loads; dirty is set when the file lags
	// behind the index
	rewriting bool
	dirty     bool
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Rewriter = (*Store)(nil)
)

// New creates a single-file store for the naming context suffix.
// Open must be called before use.
func New(cfg Config, suffix dn.DN) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("singlefile: path is required")
	}
	if suffix.IsZero() {
		return nil, fmt.Errorf("singlefile: suffix is required")
	}
	cfg.applyDefaults()
	return &Store{
		cfg:       cfg,
		suffix:    suffix,
		index:     store.NewPathIndex(suffix),
		rewriting: true,
	}, nil
}

// Suffix returns the naming context root.
func (s *Store) Suffix() dn.DN {
	return s.suffix
}

// Path returns the partition file.
func (s *Store) Path() string {
	return s.cfg.Path
}

// Open opens (or creates) the partition file and rebuilds the index by
// parsing it from offset 0.
func (s *Store) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return store.NewError(store.ErrInvalidArgument, s.suffix, "store is already open")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0755); err != nil {
		return store.NewIOError(s.suffix, "create partition directory", err)
	}
	f, err := os.OpenFile(s.cfg.Path, os.O_RDWR|os.O_CREATE, s.cfg.FileMode)
	if err != nil {
		return store.NewIOError(s.suffix, "open partition file", err)
	}

	s.file = f
	s.index.Clear()
	s.size = 0
	s.rewriting = true
	s.dirty = false

	if err := s.recover(ctx); err != nil {
		_ = f.Close()
		s.file = nil
		s.index.Clear()
		return err
	}

	logger.Info("singlefile: opened %s with %d entries (%d bytes)", s.cfg.Path, s.index.Len(), s.size)
	return nil
}

// Close flushes deferred rewrites and closes the file.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	var flushErr error
	if s.dirty {
		flushErr = s.flush()
	}
	closeErr := s.file.Close()
	s.file = nil
	s.index.Clear()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return store.NewIOError(s.suffix, "close partition file", closeErr)
	}
	return nil
}

// Lookup returns a copy of the entry named d.
func (s *Store) Lookup(ctx context.Context, d dn.DN) (*entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.index.Record(d)
	if err != nil {
		return nil, err
	}
	return rec.Entry.Clone(), nil
}

// Exists reports whether d is present.
func (s *Store) Exists(ctx context.Context, d dn.DN) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index.Get(d)
	return ok, nil
}

// HasChildren reports whether d has children.
func (s *Store) HasChildren(ctx context.Context, d dn.DN) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.index.Record(d)
	if err != nil {
		return false, err
	}
	return !rec.IsLeaf(), nil
}

// Walk visits the entries selected by base and scope.
func (s *Store) Walk(ctx context.Context, base dn.DN, scope store.Scope, fn func(*entry.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.Walk(base, scope, func(rec *store.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(rec.Entry)
	})
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.Len(), nil
}

// Size returns the sum of all record lengths, which is the file length
// whenever rewriting is enabled.
func (s *Store) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.size, nil
}

// Rewriting reports whether mutations are written to the file immediately.
func (s *Store) Rewriting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rewriting
}

// SetRewriting enables or disables physical rewrites. Enabling flushes every
// live entry, in file order, into a fresh file.
func (s *Store) SetRewriting(ctx context.Context, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if enabled == s.rewriting {
		return nil
	}
	if !enabled {
		s.rewriting = false
		logger.Info("singlefile: rewriting disabled for %s", s.cfg.Path)
		return nil
	}
	if s.dirty {
		logger.Info("singlefile: rewriting enabled, flushing %d entries to %s", s.index.Len(), s.cfg.Path)
		if err := s.flush(); err != nil {
			return err
		}
	}
	s.rewriting = true
	return nil
}

func (s *Store) checkOpen() error {
	if s.file == nil {
		return store.NewError(store.ErrInvalidArgument, s.suffix, "store is not open")
	}
	return nil
}
