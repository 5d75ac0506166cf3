package testing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewEntry builds an entry named s carrying its naming values, an object
// class and a fresh entryUUID. Extra attributes are given as name/value pairs.
func NewEntry(t *testing.T, s string, attrs ...string) *entry.Entry {
	t.Helper()
	d, err := dn.Parse(s)
	require.NoError(t, err)
	require.True(t, len(attrs)%2 == 0, "attributes must be name/value pairs")

	e := entry.New(d)
	e.Put(entry.AttrObjectClass, "top", "extensibleObject")
	for _, ava := range d.RDN() {
		e.Add(ava.Type, ava.Value)
	}
	for i := 0; i < len(attrs); i += 2 {
		e.Add(attrs[i], attrs[i+1])
	}
	e.Put(entry.AttrEntryUUID, uuid.NewString())
	e.Put(entry.AttrEntryCSN, "20240101000000.000000Z#000000#000#000000")
	return e
}

// Renamed returns a copy of e named d.
func Renamed(e *entry.Entry, d dn.DN) *entry.Entry {
	c := e.Clone()
	c.DN = d
	return c
}

// Tree is the fixture used by most tests:
//
//	dc=example,dc=com
//	├── ou=people
//	│   ├── uid=alice
//	│   └── uid=bob
//	│       └── cn=laptop
//	└── ou=groups
//	    └── cn=admins
var Tree = []string{
	"dc=example,dc=com",
	"ou=people,dc=example,dc=com",
	"ou=groups,dc=example,dc=com",
	"uid=alice,ou=people,dc=example,dc=com",
	"uid=bob,ou=people,dc=example,dc=com",
	"cn=laptop,uid=bob,ou=people,dc=example,dc=com",
	"cn=admins,ou=groups,dc=example,dc=com",
}

func (h *harness) populate() map[string]*entry.Entry {
	h.t.Helper()
	added := make(map[string]*entry.Entry, len(Tree))
	for _, s := range Tree {
		e := NewEntry(h.t, s, "description", "entry "+s)
		require.NoError(h.t, h.Store.Add(h.ctx, e.Clone()), s)
		added[e.DN.Normalized()] = e
	}
	return added
}

func (h *harness) add(s string, attrs ...string) *entry.Entry {
	h.t.Helper()
	e := NewEntry(h.t, s, attrs...)
	require.NoError(h.t, h.Store.Add(h.ctx, e.Clone()), s)
	return e
}

func (h *harness) lookup(s string) *entry.Entry {
	h.t.Helper()
	e, err := h.Store.Lookup(h.ctx, dn.MustParse(s))
	require.NoError(h.t, err, s)
	return e
}

func (h *harness) assertMissing(s string) {
	h.t.Helper()
	ok, err := h.Store.Exists(h.ctx, dn.MustParse(s))
	require.NoError(h.t, err)
	assert.False(h.t, ok, "%s should not exist", s)
}

func (h *harness) count() int {
	h.t.Helper()
	n, err := h.Store.Count(h.ctx)
	require.NoError(h.t, err)
	return n
}

func (h *harness) size() int64 {
	h.t.Helper()
	n, err := h.Store.Size(h.ctx)
	require.NoError(h.t, err)
	return n
}

// snapshot returns every entry of the store keyed by normalized DN.
func (h *harness) snapshot() map[string]*entry.Entry {
	h.t.Helper()
	out := make(map[string]*entry.Entry)
	root, err := h.Store.Exists(h.ctx, h.Store.Suffix())
	require.NoError(h.t, err)
	if !root {
		return out
	}
	err = h.Store.Walk(h.ctx, h.Store.Suffix(), store.ScopeSubtree, func(e *entry.Entry) error {
		out[e.DN.Normalized()] = e.Clone()
		return nil
	})
	require.NoError(h.t, err)
	return out
}

func assertSameEntries(t *testing.T, want, got map[string]*entry.Entry) {
	t.Helper()
	require.Len(t, got, len(want))
	for k, w := range want {
		g, ok := got[k]
		if assert.True(t, ok, "missing %s", k) {
			assert.True(t, w.Equal(g, entry.AttrEntryDN), "entry %s differs:\nwant %v\ngot  %v", k, w.Attributes(), g.Attributes())
		}
	}
}
