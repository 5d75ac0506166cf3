package singlefile

import (
	"context"

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

// Rename gives oldDN a new RDN under the same parent.
func (s *Store) Rename(ctx context.Context, oldDN dn.DN, renamed *entry.Entry) error {
	return s.relocate(ctx, oldDN, renamed, kindRename)
}

// Move places the subtree rooted at oldDN under a new parent.
func (s *Store) Move(ctx context.Context, oldDN dn.DN, moved *entry.Entry) error {
	return s.relocate(ctx, oldDN, moved, kindMove)
}

// MoveAndRename changes both the parent and the RDN of oldDN.
func (s *Store) MoveAndRename(ctx context.Context, oldDN dn.DN, moved *entry.Entry) error {
	return s.relocate(ctx, oldDN, moved, kindMoveAndRename)
}

// relocate re-keys the subtree rooted at oldDN in the index. Physical order
// is untouched: the records stay where they are and only their text changes,
// since every record carries its full DN.
//
// A lone entry is patched in place. A subtree is written through a full
// flush into a temporary file renamed over the partition file, so either
// every record of the subtree carries its new DN or none does.
func (s *Store) relocate(ctx context.Context, oldDN dn.DN, updated *entry.Entry, kind relocationKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
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
	store.StripDerived(updated)

	// ========================================================================
	// Step 2a: A lone entry is patched in place
	// ========================================================================

	if root.IsLeaf() {
		if err := s.patch(root, updated); err != nil {
			return err
		}
		updated.DN = root.DN
		root.Entry = updated
		if err := s.index.SetUUID(root, uuid); err != nil {
			return err
		}
		if err := s.index.RelocateSubtree(oldDN, newDN, nil); err != nil {
			return err
		}
		logger.Debug("singlefile: relocated %s to %s in place", oldDN, newDN)
		return nil
	}

	// ========================================================================
	// Step 2b: A subtree is re-keyed, then flushed as a whole
	// ========================================================================

	prevEntry, prevUUID := root.Entry, root.UUID
	updated.DN = root.DN
	root.Entry = updated
	if err := s.index.SetUUID(root, uuid); err != nil {
		root.Entry = prevEntry
		return err
	}
	if err := s.index.RelocateSubtree(oldDN, newDN, nil); err != nil {
		root.Entry = prevEntry
		_ = s.index.SetUUID(root, prevUUID)
		return err
	}

	if !s.rewriting {
		s.dirty = true
		s.resize()
		return nil
	}
	if err := s.flush(); err != nil {
		if rbErr := s.index.RelocateSubtree(newDN, oldDN, nil); rbErr != nil {
			logger.Error("singlefile: rollback of %s failed: %v", newDN, rbErr)
		}
		root.Entry = prevEntry
		_ = s.index.SetUUID(root, prevUUID)
		return err
	}

	logger.Debug("singlefile: relocated subtree %s to %s", oldDN, newDN)
	return nil
}

// resize recomputes record lengths after an in-memory relocation, keeping
// file order, so Size stays the length the next flush will produce.
func (s *Store) resize() {
	records := s.index.Records()
	sortByOffset(records)
	var off int64
	for _, rec := range records {
		rec.Loc.Offset = off
		rec.Loc.Length = ldif.MarshalledLen(rec.Entry)
		off += rec.Loc.Length
	}
	s.size = off
}
