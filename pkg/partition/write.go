package partition

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
)

// serverManaged lists the attributes clients cannot modify.
var serverManaged = []string{entry.AttrEntryUUID, entry.AttrEntryCSN, entry.AttrEntryDN}

// Add stores a new entry.
//
// The entry is copied. Missing naming values are added, an entryUUID is
// assigned when absent and a fresh entryCSN is always set.
//
// Returns:
//   - error: ErrInvalidArgument (empty DN, malformed entryUUID),
//     ErrAlreadyExists, ErrNoSuchParent (also outside the suffix) or ErrIOFailure
func (e *Engine) Add(ctx context.Context, ent *entry.Entry) (err error) {
	defer e.observe("Add", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	suffix := e.store.Suffix()
	if ent.DN.IsZero() {
		return store.NewError(store.ErrInvalidArgument, ent.DN, "empty DN")
	}
	if !ent.DN.IsWithin(suffix) {
		return store.NewOutsideSuffixError(ent.DN, suffix)
	}
	exists, err := e.store.Exists(ctx, ent.DN)
	if err != nil {
		return err
	}
	if exists {
		return store.NewAlreadyExistsError(ent.DN)
	}
	if !ent.DN.Equal(suffix) {
		parentExists, err := e.store.Exists(ctx, ent.DN.Parent())
		if err != nil {
			return err
		}
		if !parentExists {
			return store.NewNoSuchParentError(ent.DN)
		}
	}

	added := ent.Clone()
	if err := e.prepareAdd(added); err != nil {
		return err
	}
	if err := e.store.Add(ctx, added); err != nil {
		return err
	}

	e.updateGauges(ctx)
	logger.Debug("partition %s: added %s", e.cfg.ID, ent.DN)
	return nil
}

// prepareAdd fills in the naming values and the server-managed attributes.
func (e *Engine) prepareAdd(ent *entry.Entry) error {
	for _, ava := range ent.DN.RDN() {
		if !ent.HasNamingValue(ava) {
			ent.Add(ava.Type, ava.Value)
		}
	}

	switch values := ent.Get(entry.AttrEntryUUID); len(values) {
	case 0:
		ent.Put(entry.AttrEntryUUID, uuid.NewString())
	case 1:
		if _, err := uuid.Parse(values[0]); err != nil {
			return &store.StoreError{
				Code:    store.ErrInvalidArgument,
				Message: "malformed entryUUID",
				DN:      ent.DN.String(),
				Err:     err,
			}
		}
	default:
		return store.NewError(store.ErrInvalidArgument, ent.DN, "entryUUID is single-valued")
	}

	ent.Put(entry.AttrEntryCSN, e.csn.Next())
	store.StripDerived(ent)
	return nil
}

// Delete removes a leaf entry.
//
// Returns:
//   - error: ErrNotFound, ErrNotAllowedOnNonLeaf or ErrIOFailure
func (e *Engine) Delete(ctx context.Context, d dn.DN) (err error) {
	defer e.observe("Delete", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Delete(ctx, d); err != nil {
		return err
	}

	e.updateGauges(ctx)
	logger.Debug("partition %s: deleted %s", e.cfg.ID, d)
	return nil
}

// Modify applies attribute modifications to an entry, all or nothing.
//
// Returns:
//   - error: ErrNotFound, ErrNoSuchAttribute, ErrAttributeOrValueExists,
//     ErrInvalidArgument (malformed or server-managed modification),
//     ErrNotAllowedOnRDN (a naming value removed) or ErrIOFailure
func (e *Engine) Modify(ctx context.Context, d dn.DN, mods []entry.Modification) (err error) {
	defer e.observe("Modify", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, m := range mods {
		for _, name := range serverManaged {
			if strings.EqualFold(m.Attribute, name) {
				return store.NewError(store.ErrInvalidArgument, d, name+" is managed by the server")
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := e.store.Lookup(ctx, d)
	if err != nil {
		return err
	}
	if err := updated.Apply(mods...); err != nil {
		return modificationError(d, err)
	}
	if !updated.NamingValuesPresent() {
		return store.NewError(store.ErrNotAllowedOnRDN, d, "modification removes a naming value")
	}
	updated.Put(entry.AttrEntryCSN, e.csn.Next())

	if err := e.store.Modify(ctx, updated); err != nil {
		return err
	}

	e.updateGauges(ctx)
	logger.Debug("partition %s: modified %s (%d changes)", e.cfg.ID, d, len(mods))
	return nil
}

// modificationError maps an entry.Apply failure to a store error code.
func modificationError(d dn.DN, err error) error {
	code := store.ErrInvalidArgument
	switch {
	case errors.Is(err, entry.ErrNoSuchAttribute):
		code = store.ErrNoSuchAttribute
	case errors.Is(err, entry.ErrAttributeOrValueExists):
		code = store.ErrAttributeOrValueExists
	}
	return &store.StoreError{
		Code:    code,
		Message: "modification rejected",
		DN:      d.String(),
		Err:     err,
	}
}
