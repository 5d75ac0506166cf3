package partition

import (
	"context"
	"time"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
)

// Rename changes the RDN of an entry, keeping its parent. Every descendant
// follows under the new DN.
//
// The values of newRDN are added to the entry. With deleteOldRDN the values
// of the old RDN that are not part of newRDN are removed; otherwise they
// remain as ordinary attribute values.
//
// Returns:
//   - error: ErrNotFound, ErrAlreadyExists, ErrInvalidArgument or ErrIOFailure
func (e *Engine) Rename(ctx context.Context, d dn.DN, newRDN dn.RDN, deleteOldRDN bool) (err error) {
	defer e.observe("Rename", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if d.IsZero() {
		return store.NewError(store.ErrInvalidArgument, d, "cannot rename the root DSE")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	renamed, err := e.relocated(ctx, d, d.Parent().Child(newRDN), deleteOldRDN)
	if err != nil {
		return err
	}
	if err := e.store.Rename(ctx, d, renamed); err != nil {
		return err
	}

	e.updateGauges(ctx)
	logger.Debug("partition %s: renamed %s to %s", e.cfg.ID, d, renamed.DN)
	return nil
}

// Move places an entry and its subtree under newParent, keeping its RDN.
//
// Returns:
//   - error: ErrNotFound, ErrNoSuchParent, ErrAlreadyExists, ErrInvalidArgument
//     (the target is the entry itself or one of its descendants) or ErrIOFailure
func (e *Engine) Move(ctx context.Context, d dn.DN, newParent dn.DN) (err error) {
	defer e.observe("Move", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if d.IsZero() {
		return store.NewError(store.ErrInvalidArgument, d, "cannot move the root DSE")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	moved, err := e.relocated(ctx, d, newParent.Child(d.RDN()), false)
	if err != nil {
		return err
	}
	if err := e.store.Move(ctx, d, moved); err != nil {
		return err
	}

	e.updateGauges(ctx)
	logger.Debug("partition %s: moved %s to %s", e.cfg.ID, d, moved.DN)
	return nil
}

// MoveAndRename places an entry under newParent with a new RDN in one step.
// Naming values are edited as by Rename.
//
// Returns:
//   - error: as Move
func (e *Engine) MoveAndRename(ctx context.Context, d dn.DN, newParent dn.DN, newRDN dn.RDN, deleteOldRDN bool) (err error) {
	defer e.observe("MoveAndRename", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if d.IsZero() {
		return store.NewError(store.ErrInvalidArgument, d, "cannot move the root DSE")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	moved, err := e.relocated(ctx, d, newParent.Child(newRDN), deleteOldRDN)
	if err != nil {
		return err
	}
	if err := e.store.MoveAndRename(ctx, d, moved); err != nil {
		return err
	}

	e.updateGauges(ctx)
	logger.Debug("partition %s: moved and renamed %s to %s", e.cfg.ID, d, moved.DN)
	return nil
}

// relocated returns the entry at d as it must be stored under newDN: naming
// values edited and a fresh entryCSN. Callers hold the write lock.
func (e *Engine) relocated(ctx context.Context, d, newDN dn.DN, deleteOldRDN bool) (*entry.Entry, error) {
	if len(newDN.RDN()) == 0 {
		return nil, store.NewError(store.ErrInvalidArgument, d, "new RDN is empty")
	}
	if !newDN.IsWithin(e.store.Suffix()) {
		return nil, store.NewOutsideSuffixError(newDN, e.store.Suffix())
	}

	current, err := e.store.Lookup(ctx, d)
	if err != nil {
		return nil, err
	}
	updated := current.Clone()
	updated.DN = newDN
	applyNamingEdits(updated, d.RDN(), newDN.RDN(), deleteOldRDN)
	updated.Put(entry.AttrEntryCSN, e.csn.Next())
	return updated, nil
}

// applyNamingEdits adds the values of newRDN to ent and, with deleteOld,
// removes the values of oldRDN that newRDN does not carry.
func applyNamingEdits(ent *entry.Entry, oldRDN, newRDN dn.RDN, deleteOld bool) {
	for _, ava := range newRDN {
		if !ent.HasNamingValue(ava) {
			ent.Add(ava.Type, ava.Value)
		}
	}
	if !deleteOld {
		return
	}
	for _, old := range oldRDN {
		kept := false
		for _, ava := range newRDN {
			if old.Equal(ava) {
				kept = true
				break
			}
		}
		if !kept {
			ent.RemoveNamingValue(old)
		}
	}
}
