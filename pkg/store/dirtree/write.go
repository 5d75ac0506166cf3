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

// Add writes the record file of a new entry.
//
// The parent's children directory is created when the parent gets its first
// child.
//
// Parameters:
//   - ctx: Context for cancellation
//   - e: The entry to add; owned by the store afterwards
//
// Returns:
//   - error: ErrAlreadyExists, ErrNoSuchParent, ErrInvalidArgument or ErrIOFailure
func (s *Store) Add(ctx context.Context, e *entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(e.DN); err != nil {
		return err
	}

	// ========================================================================
	// Step 1: Validate against the index
	// ========================================================================

	store.StripDerived(e)
	parent, err := s.index.CheckInsert(e.DN, e.First(entry.AttrEntryUUID))
	if err != nil {
		return err
	}
	loc := s.locate(parent, e.DN)
	if exists(loc.File) {
		return store.NewError(store.ErrAlreadyExists, e.DN, "record file already exists: "+loc.File)
	}

	// ========================================================================
	// Step 2: Create the parent's children directory on its first child
	// ========================================================================

	createdDir := false
	if parent != nil && parent.IsLeaf() {
		if err := os.Mkdir(parent.Loc.Dir, s.cfg.DirMode); err != nil && !os.IsExist(err) {
			return store.NewIOError(e.DN, "create parent directory", err)
		}
		createdDir = true
	}

	// ========================================================================
	// Step 3: Write the record and register it
	// ========================================================================

	data := ldif.Marshal(e)
	if err := s.writeFile(loc.File, data); err != nil {
		if createdDir {
			_ = removeIfExists(parent.Loc.Dir)
		}
		return store.NewIOError(e.DN, "write record", err)
	}
	loc.Length = int64(len(data))

	if _, err := s.index.Insert(e, loc); err != nil {
		return err
	}

	logger.Debug("dirtree: added %s", e.DN)
	return nil
}

// Delete removes the record file of a leaf entry, and the parent's children
// directory when it becomes empty.
//
// Parameters:
//   - ctx: Context for cancellation
//   - d: The entry to delete
//
// Returns:
//   - error: ErrNotFound, ErrNotAllowedOnNonLeaf or ErrIOFailure
func (s *Store) Delete(ctx context.Context, d dn.DN) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(d); err != nil {
		return err
	}

	rec, err := s.index.CheckRemove(d)
	if err != nil {
		return err
	}

	if err := os.Remove(rec.Loc.File); err != nil && !os.IsNotExist(err) {
		return store.NewIOError(d, "remove record", err)
	}
	// A leaf has no children directory; a stale empty one may remain after a crash.
	if err := removeIfExists(rec.Loc.Dir); err != nil {
		logger.Warn("dirtree: could not remove directory %s: %v", rec.Loc.Dir, err)
	}

	parent := rec.Parent()
	if _, err := s.index.Remove(d); err != nil {
		return err
	}

	if parent != nil && parent.IsLeaf() {
		if err := removeIfExists(parent.Loc.Dir); err != nil {
			return store.NewIOError(parent.DN, "remove empty directory", err)
		}
	}

	logger.Debug("dirtree: deleted %s", d)
	return nil
}

// Modify rewrites the record file of e.DN with the attributes of e.
//
// Parameters:
//   - ctx: Context for cancellation
//   - e: The new content; owned by the store afterwards
//
// Returns:
//   - error: ErrNotFound, ErrAlreadyExists (entryUUID collision) or ErrIOFailure
func (s *Store) Modify(ctx context.Context, e *entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(e.DN); err != nil {
		return err
	}

	rec, err := s.index.Record(e.DN)
	if err != nil {
		return err
	}
	uuid := e.First(entry.AttrEntryUUID)
	if other, taken := s.index.ByUUID(uuid); uuid != "" && taken && other != rec {
		return store.NewError(store.ErrAlreadyExists, e.DN, "entryUUID "+uuid+" is already in use")
	}

	store.StripDerived(e)
	e.DN = rec.DN
	data := ldif.Marshal(e)
	if err := s.writeFile(rec.Loc.File, data); err != nil {
		return store.NewIOError(e.DN, "rewrite record", err)
	}

	if err := s.index.SetUUID(rec, uuid); err != nil {
		return err
	}
	rec.Entry = e
	rec.Loc.Length = int64(len(data))

	logger.Debug("dirtree: modified %s", e.DN)
	return nil
}
