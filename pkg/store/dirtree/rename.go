package dirtree

import (
	"context"
	"os"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/store"
)

type relocationKind int

const (
	kindRename relocationKind = iota
	kindMove
	kindMoveAndRename
)

// Rename renames the record file and the children directory of oldDN in
// place and rewrites the records of the whole subtree.
func (s *Store) Rename(ctx context.Context, oldDN dn.DN, renamed *entry.Entry) error {
	return s.relocate(ctx, oldDN, renamed, kindRename)
}

// Move moves the record file and the children directory of oldDN under the
// directory of the new parent.
func (s *Store) Move(ctx context.Context, oldDN dn.DN, moved *entry.Entry) error {
	return s.relocate(ctx, oldDN, moved, kindMove)
}

// MoveAndRename moves and renames the subtree in a single step.
func (s *Store) MoveAndRename(ctx context.Context, oldDN dn.DN, moved *entry.Entry) error {
	return s.relocate(ctx, oldDN, moved, kindMoveAndRename)
}

// relocate moves the subtree rooted at oldDN to updated.DN.
//
// The record file and the children directory are each renamed with a single
// rename(2); the descendants travel with the directory. Afterwards every
// record of the subtree is rewritten so its dn line matches its new position.
// If that rewrite is interrupted, recovery repairs the remaining dn lines
// from the directory layout.
func (s *Store) relocate(ctx context.Context, oldDN dn.DN, updated *entry.Entry, kind relocationKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(oldDN); err != nil {
		return err
	}

	// ========================================================================
	// Step 1: Validate
	// ========================================================================

	newDN := updated.DN
	switch kind {
	case kindRename:
		if !newDN.Parent().Equal(oldDN.Parent()) {
			return store.NewError(store.ErrInvalidArgument, newDN, "rename cannot change the parent")
		}
	case kindMove:
		if !newDN.RDN().Equal(oldDN.RDN()) {
			return store.NewError(store.ErrInvalidArgument, newDN, "move cannot change the RDN")
		}
	}

	rel, err := s.index.CheckRelocation(oldDN, newDN)
	if err != nil {
		return err
	}
	root := rel.Root
	uuid := updated.First(entry.AttrEntryUUID)
	if other, taken := s.index.ByUUID(uuid); uuid != "" && taken && other != root {
		return store.NewError(store.ErrAlreadyExists, newDN, "entryUUID "+uuid+" is already in use")
	}

	oldLoc := root.Loc
	newLoc := s.locate(rel.NewParent, newDN)
	sameFile := newLoc.File == oldLoc.File
	if !sameFile && (exists(newLoc.File) || exists(newLoc.Dir)) {
		return store.NewError(store.ErrAlreadyExists, newDN, "target path already exists: "+newLoc.File)
	}

	// ========================================================================
	// Step 2: Move the record file and the children directory
	// ========================================================================

	newParentWasLeaf := rel.NewParent.IsLeaf()
	if newParentWasLeaf {
		if err := os.Mkdir(rel.NewParent.Loc.Dir, s.cfg.DirMode); err != nil && !os.IsExist(err) {
			return store.NewIOError(newDN, "create parent directory", err)
		}
	}

	if !sameFile {
		if err := os.Rename(oldLoc.File, newLoc.File); err != nil {
			if newParentWasLeaf {
				_ = removeIfExists(rel.NewParent.Loc.Dir)
			}
			return store.NewIOError(oldDN, "rename record", err)
		}
		if !root.IsLeaf() {
			if err := os.Rename(oldLoc.Dir, newLoc.Dir); err != nil {
				if rbErr := os.Rename(newLoc.File, oldLoc.File); rbErr != nil {
					logger.Error("dirtree: rollback of %s failed: %v", newLoc.File, rbErr)
				}
				return store.NewIOError(oldDN, "rename children directory", err)
			}
		}
	}

	// ========================================================================
	// Step 3: Update the index
	// ========================================================================

	oldParent := root.Parent()
	store.StripDerived(updated)
	updated.DN = root.DN
	root.Entry = updated
	if err := s.index.SetUUID(root, uuid); err != nil {
		return err
	}
	if err := s.index.RelocateSubtree(oldDN, newDN, nil); err != nil {
		return err
	}

	if oldParent != rel.NewParent && oldParent.IsLeaf() {
		if err := removeIfExists(oldParent.Loc.Dir); err != nil {
			logger.Warn("dirtree: could not remove empty directory %s: %v", oldParent.Loc.Dir, err)
		}
	}

	// ========================================================================
	// Step 4: Rewrite the records of the subtree
	// ========================================================================

	var subtree []*store.Record
	_ = s.index.Walk(newDN, store.ScopeSubtree, func(rec *store.Record) error {
		loc := s.locate(rec.Parent(), rec.DN)
		rec.Loc.File = loc.File
		rec.Loc.Dir = loc.Dir
		subtree = append(subtree, rec)
		return nil
	})

	if n, err := s.rewriteRecords(ctx, subtree); err != nil {
		logger.Warn("dirtree: relocated %s to %s but rewrote only %d of %d records (%v); recovery repairs the stale dn lines",
			oldDN, newDN, n, len(subtree), err)
		return err
	}

	logger.Debug("dirtree: relocated %s to %s (%d entries)", oldDN, newDN, len(subtree))
	return nil
}

// rewriteRecords writes the records in order and returns how many were
// written. It stops at the first failure or when ctx is done.
func (s *Store) rewriteRecords(ctx context.Context, records []*store.Record) (int, error) {
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		data := ldif.Marshal(rec.Entry)
		if err := s.writeFile(rec.Loc.File, data); err != nil {
			return i, store.NewIOError(rec.DN, "rewrite record", err)
		}
		rec.Loc.Length = int64(len(data))
	}
	return len(records), nil
}
