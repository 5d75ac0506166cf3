package partition

import (
	"context"
	"time"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
)

// Lookup returns a copy of the entry named d with its entryDN attached.
//
// Returns:
//   - error: ErrNotFound
func (e *Engine) Lookup(ctx context.Context, d dn.DN) (_ *entry.Entry, err error) {
	defer e.observe("Lookup", time.Now(), &err)

	e.mu.RLock()
	defer e.mu.RUnlock()

	found, err := e.store.Lookup(ctx, d)
	if err != nil {
		return nil, err
	}
	withEntryDN(found)
	return found, nil
}

// Search returns a cursor over the entries selected by base and scope, in
// hierarchical order (every entry after its parent, siblings sorted).
//
// The result is a snapshot taken under the read lock: later mutations are
// not visible through the cursor.
//
// Returns:
//   - error: ErrNotFound when base does not exist
func (e *Engine) Search(ctx context.Context, base dn.DN, scope store.Scope) (_ *Cursor, err error) {
	defer e.observe("Search", time.Now(), &err)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var entries []*entry.Entry
	err = e.store.Walk(ctx, base, scope, func(found *entry.Entry) error {
		c := found.Clone()
		withEntryDN(c)
		entries = append(entries, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Cursor{entries: entries, pos: -1}, nil
}

// Cursor iterates over search results.
//
//	cur, err := p.Search(ctx, base, store.ScopeSubtree)
//	for cur.Next() {
//		e := cur.Entry()
//	}
type Cursor struct {
	entries []*entry.Entry
	pos     int
}

// Next advances to the next entry and reports whether there is one.
func (c *Cursor) Next() bool {
	if c.pos+1 >= len(c.entries) {
		c.pos = len(c.entries)
		return false
	}
	c.pos++
	return true
}

// Entry returns the current entry. It is owned by the caller.
func (c *Cursor) Entry() *entry.Entry {
	if c.pos < 0 || c.pos >= len(c.entries) {
		return nil
	}
	return c.entries[c.pos]
}

// Len returns the total number of results.
func (c *Cursor) Len() int {
	return len(c.entries)
}

// Close releases the results.
func (c *Cursor) Close() {
	c.entries = nil
	c.pos = 0
}

// All drains the cursor.
func (c *Cursor) All() []*entry.Entry {
	var out []*entry.Entry
	for c.Next() {
		out = append(out, c.Entry())
	}
	return out
}

func withEntryDN(e *entry.Entry) {
	e.Put(entry.AttrEntryDN, e.DN.String())
}
