// Package dirtree implements the directory-tree backing store.
//
// Every entry is one LDIF record file named after its encoded RDN. The
// children of an entry live in a directory with the same name, minus the
// extension, next to the record file:
//
//	<path>/dc=example,dc=com.ldif
//	<path>/dc=example,dc=com/ou=people.ldif
//	<path>/dc=example,dc=com/ou=people/uid=alice.ldif
//
// A directory only exists while its entry has children, so leaf entries cost
// a single file.
package dirtree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/namecodec"
	"github.com/marmos91/dittodir/pkg/store"
)

// Config holds directory-tree store options.
type Config struct {
	// Path is the directory holding the partition
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// SyncWrites fsyncs every record file before it is renamed into place
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// FileMode is the permission of record files (default 0644)
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode"`

	// DirMode is the permission of directories (default 0755)
	DirMode os.FileMode `mapstructure:"dir_mode" yaml:"dir_mode"`
}

func (c *Config) applyDefaults() {
	if c.FileMode == 0 {
		c.FileMode = 0644
	}
	if c.DirMode == 0 {
		c.DirMode = 0755
	}
}

// Store is the directory-tree implementation of store.Store.
//
// Entries are cached in the PathIndex; the files on disk are the durable
// copy and the only input of recovery.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	suffix dn.DN
	index  *store.PathIndex
	opened bool
}

var _ store.Store = (*Store)(nil)

// New creates a directory-tree store for the naming context suffix.
// Open must be called before use.
func New(cfg Config, suffix dn.DN) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("dirtree: path is required")
	}
	if suffix.IsZero() {
		return nil, fmt.Errorf("dirtree: suffix is required")
	}
	cfg.applyDefaults()
	return &Store{
		cfg:    cfg,
		suffix: suffix,
		index:  store.NewPathIndex(suffix),
	}, nil
}

// Suffix returns the naming context root.
func (s *Store) Suffix() dn.DN {
	return s.suffix
}

// Path returns the directory holding the partition.
func (s *Store) Path() string {
	return s.cfg.Path
}

// Open creates the partition directory if needed and rebuilds the index by
// walking it.
func (s *Store) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.Path, s.cfg.DirMode); err != nil {
		return store.NewIOError(s.suffix, "create partition directory", err)
	}
	s.index.Clear()
	if err := s.recover(ctx); err != nil {
		s.index.Clear()
		return err
	}
	s.opened = true

	logger.Info("dirtree: opened %s with %d entries", s.cfg.Path, s.index.Len())
	return nil
}

// Close releases the store. Every mutation is already on disk.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opened = false
	s.index.Clear()
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

// Size returns the total size of all record files.
func (s *Store) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, rec := range s.index.Records() {
		total += rec.Loc.Length
	}
	return total, nil
}

// locate computes the location of the entry d whose parent record is parent
// (nil for the suffix).
func (s *Store) locate(parent *store.Record, d dn.DN) store.Location {
	var base, segment string
	if parent == nil {
		base = s.cfg.Path
		segment = namecodec.EncodeDN(d)
	} else {
		base = parent.Loc.Dir
		segment = namecodec.Encode(d.RDN())
	}
	return store.Location{
		File: filepath.Join(base, segment+namecodec.Extension),
		Dir:  filepath.Join(base, segment),
	}
}

func (s *Store) checkOpen(d dn.DN) error {
	if !s.opened {
		return store.NewError(store.ErrInvalidArgument, d, "store is not open")
	}
	return nil
}
