// Package store defines the backing-store capability of a directory partition
// and the PathIndex shared by its variants.
//
// Two variants implement Store:
//   - dirtree: one record file per entry, directories mirror the DN tree
//   - singlefile: every record back-to-back in one file
//
// The partition engine depends only on this package; the variant is chosen
// once, at configuration time.
package store

import (
	"context"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
)

// Scope selects the entries visited by a subtree walk.
type Scope int

const (
	// ScopeBase visits only the base entry.
	ScopeBase Scope = iota

	// ScopeOneLevel visits the immediate children of the base entry.
	ScopeOneLevel

	// ScopeSubtree visits the base entry and all its descendants.
	ScopeSubtree
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// Location is where an entry lives on disk.
//
// The directory-tree variant fills File, Dir and Leaf: File always exists,
// Dir exists only while the entry has children. The single-file variant fills
// Offset and Length, the byte range of the record in the partition file.
type Location struct {
	File string
	Dir  string
	Leaf bool

	Offset int64
	Length int64
}

// Store is the backing-store capability of a partition.
//
// Entries handed to Add, Modify and the relocation methods are owned by the
// store afterwards; callers pass clones. Entries returned by Lookup are
// clones. Entries passed to a Walk callback are the store's own copies and
// must not be modified.
//
// All mutation methods return *StoreError values for directory errors and
// ErrIOFailure-coded StoreErrors for filesystem errors.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Open rebuilds the index from what is on disk. It must be called once
	// before any other method. A corrupt record aborts Open.
	Open(ctx context.Context) error

	// Close flushes pending state and releases resources.
	Close(ctx context.Context) error

	// Suffix returns the naming context root of the partition.
	Suffix() dn.DN

	// Lookup returns a copy of the entry named d.
	//
	// Returns:
	//   - error: ErrNotFound if no such entry exists
	Lookup(ctx context.Context, d dn.DN) (*entry.Entry, error)

	// Exists reports whether an entry named d exists.
	Exists(ctx context.Context, d dn.DN) (bool, error)

	// HasChildren reports whether the entry named d has at least one child.
	//
	// Returns:
	//   - error: ErrNotFound if no such entry exists
	HasChildren(ctx context.Context, d dn.DN) (bool, error)

	// Walk visits the entries selected by base and scope, parents before
	// children and siblings in normalized RDN order. Returning an error from
	// fn stops the walk and returns that error.
	//
	// Returns:
	//   - error: ErrNotFound if base does not exist
	Walk(ctx context.Context, base dn.DN, scope Scope, fn func(*entry.Entry) error) error

	// Count returns the number of live entries.
	Count(ctx context.Context) (int, error)

	// Size returns the number of bytes the partition occupies on disk.
	Size(ctx context.Context) (int64, error)

	// Add persists a new entry.
	//
	// Returns:
	//   - error: ErrAlreadyExists if the DN (or entryUUID) is taken,
	//     ErrNoSuchParent if the parent is absent, ErrIOFailure
	Add(ctx context.Context, e *entry.Entry) error

	// Delete removes a leaf entry.
	//
	// Returns:
	//   - error: ErrNotFound, ErrNotAllowedOnNonLeaf, ErrIOFailure
	Delete(ctx context.Context, d dn.DN) error

	// Modify replaces the stored attributes of e.DN with those of e.
	//
	// Returns:
	//   - error: ErrNotFound, ErrIOFailure
	Modify(ctx context.Context, e *entry.Entry) error

	// Rename gives the entry named oldDN the DN renamed.DN, which must have
	// the same parent, and persists the attributes of renamed. Descendants
	// follow under the new DN.
	//
	// Returns:
	//   - error: ErrNotFound, ErrAlreadyExists, ErrInvalidArgument, ErrIOFailure
	Rename(ctx context.Context, oldDN dn.DN, renamed *entry.Entry) error

	// Move relocates the subtree rooted at oldDN under a new parent. moved.DN
	// keeps the RDN of oldDN.
	//
	// Returns:
	//   - error: ErrNotFound, ErrAlreadyExists, ErrNoSuchParent,
	//     ErrInvalidArgument, ErrIOFailure
	Move(ctx context.Context, oldDN dn.DN, moved *entry.Entry) error

	// MoveAndRename relocates the subtree rooted at oldDN to moved.DN, which
	// may change both parent and RDN.
	//
	// Returns:
	//   - error: same as Move
	MoveAndRename(ctx context.Context, oldDN dn.DN, moved *entry.Entry) error
}

// Rewriter is implemented by stores that can defer physical rewrites.
//
// With rewriting disabled, mutations only update the in-memory index and
// entry cache. Enabling it again flushes every live entry to disk. Bulk loads
// use this to avoid shifting file contents on every add.
type Rewriter interface {
	SetRewriting(ctx context.Context, enabled bool) error
	Rewriting() bool
}

// Relocation describes a validated subtree relocation.
type Relocation struct {
	// Root is the index record of the relocated entry, still under its old DN.
	Root *Record

	// OldDN and NewDN name the relocated entry before and after.
	OldDN dn.DN
	NewDN dn.DN

	// NewParent is the index record of the destination parent.
	NewParent *Record
}

// StripDerived removes attributes that are computed on read and must never
// be persisted.
func StripDerived(e *entry.Entry) {
	e.Remove(entry.AttrEntryDN)
}
