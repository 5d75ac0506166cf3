package singlefile

import (
	"context"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/store"
)

// Add appends the record of a new entry to the end of the file.
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

	if err := s.checkOpen(); err != nil {
		return err
	}

	store.StripDerived(e)
	if _, err := s.index.CheckInsert(e.DN, e.First(entry.AttrEntryUUID)); err != nil {
		return err
	}

	data := ldif.Marshal(e)
	off := s.size
	if err := s.replaceRange(off, 0, data); err != nil {
		return store.NewIOError(e.DN, "append record", err)
	}
	if _, err := s.index.Insert(e, store.Location{Offset: off, Length: int64(len(data))}); err != nil {
		return err
	}

	logger.Debug("singlefile: added %s at [%d,+%d)", e.DN, off, len(data))
	return nil
}

// Delete removes the record of a leaf entry and shifts the rest of the file
// left over it.
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

	if err := s.checkOpen(); err != nil {
		return err
	}

	rec, err := s.index.CheckRemove(d)
	if err != nil {
		return err
	}
	loc := rec.Loc
	if err := s.replaceRange(loc.Offset, loc.Length, nil); err != nil {
		return store.NewIOError(d, "remove record", err)
	}
	if _, err := s.index.Remove(d); err != nil {
		return err
	}

	logger.Debug("singlefile: deleted %s from [%d,+%d)", d, loc.Offset, loc.Length)
	return nil
}

// Modify re-serializes e.DN with the attributes of e. A record of unchanged
// length is overwritten in place; otherwise the tail of the file shifts by
// the difference first.
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

	if err := s.checkOpen(); err != nil {
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
	if err := s.patch(rec, e); err != nil {
		return err
	}
	if err := s.index.SetUUID(rec, uuid); err != nil {
		return err
	}
	rec.Entry = e

	logger.Debug("singlefile: modified %s at [%d,+%d)", e.DN, rec.Loc.Offset, rec.Loc.Length)
	return nil
}

// patch rewrites the byte range of rec with the serialization of e.
func (s *Store) patch(rec *store.Record, e *entry.Entry) error {
	data := ldif.Marshal(e)
	if err := s.replaceRange(rec.Loc.Offset, rec.Loc.Length, data); err != nil {
		return store.NewIOError(e.DN, "patch record", err)
	}
	rec.Loc.Length = int64(len(data))
	return nil
}
