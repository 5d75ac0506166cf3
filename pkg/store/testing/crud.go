package testing

import (
	"testing"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAddTests runs the Add tests.
func (suite *StoreTestSuite) RunAddTests(t *testing.T) {
	t.Run("AddAndLookup", func(t *testing.T) {
		h := suite.open(t)
		added := h.populate()

		assert.Equal(t, len(Tree), h.count())
		for _, s := range Tree {
			got := h.lookup(s)
			assert.True(t, added[dn.MustParse(s).Normalized()].Equal(got), s)
		}
	})

	t.Run("LookupReturnsCopy", func(t *testing.T) {
		h := suite.open(t)
		h.add("dc=example,dc=com")

		got := h.lookup("dc=example,dc=com")
		got.Put("description", "changed")

		again := h.lookup("dc=example,dc=com")
		assert.False(t, again.Has("description"))
	})

	t.Run("DerivedEntryDNIsNotStored", func(t *testing.T) {
		h := suite.open(t)
		e := NewEntry(t, "dc=example,dc=com")
		e.Put(entry.AttrEntryDN, "dc=example,dc=com")
		require.NoError(t, h.Store.Add(h.ctx, e.Clone()))

		assert.False(t, h.lookup("dc=example,dc=com").Has(entry.AttrEntryDN))
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		err := h.Store.Add(h.ctx, NewEntry(t, "UID=Alice,ou=People,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)
		assert.Equal(t, len(Tree), h.count())
	})

	t.Run("DuplicateUUID", func(t *testing.T) {
		h := suite.open(t)
		h.add("dc=example,dc=com")
		first := h.add("ou=a,dc=example,dc=com")

		second := NewEntry(t, "ou=b,dc=example,dc=com")
		second.Put(entry.AttrEntryUUID, first.First(entry.AttrEntryUUID))
		err := h.Store.Add(h.ctx, second)
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)
	})

	t.Run("NoSuchParent", func(t *testing.T) {
		h := suite.open(t)
		h.add("dc=example,dc=com")

		err := h.Store.Add(h.ctx, NewEntry(t, "uid=x,ou=missing,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNoSuchParent), "got %v", err)
		h.assertMissing("uid=x,ou=missing,dc=example,dc=com")
	})

	t.Run("OutsideSuffix", func(t *testing.T) {
		h := suite.open(t)
		err := h.Store.Add(h.ctx, NewEntry(t, "dc=other,dc=org"))
		assert.True(t, store.IsCode(err, store.ErrNoSuchParent), "got %v", err)
	})

	t.Run("SpecialCharactersInNames", func(t *testing.T) {
		h := suite.open(t)
		h.add("dc=example,dc=com")
		names := []string{
			`cn=Smith\, John,dc=example,dc=com`,
			`cn=a/b\\c:d*e?f|g,dc=example,dc=com`,
			`cn=x\0ay\00z,dc=example,dc=com`,
			`cn=multi+sn=valued,dc=example,dc=com`,
			`cn=100%,dc=example,dc=com`,
			`cn=\#hash\ ,dc=example,dc=com`,
		}
		for _, s := range names {
			h.add(s)
		}
		for _, s := range names {
			got := h.lookup(s)
			assert.True(t, got.DN.Equal(dn.MustParse(s)))
		}

		h.restart()
		for _, s := range names {
			got := h.lookup(s)
			assert.True(t, got.NamingValuesPresent(), s)
		}
	})

	t.Run("SiblingsSharingAPathSegment", func(t *testing.T) {
		h := suite.open(t)
		h.add("dc=example,dc=com")
		h.add("cn=x+sn=y,dc=example,dc=com")

		err := h.Store.Add(h.ctx, NewEntry(t, `cn=x\+sn=y,dc=example,dc=com`))
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)
		h.assertMissing(`cn=x\+sn=y,dc=example,dc=com`)

		single := h.add("cn=z,dc=example,dc=com")
		err = h.Store.Rename(h.ctx, single.DN, Renamed(single, dn.MustParse(`cn=x\+sn=y,dc=example,dc=com`)))
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)

		require.NoError(t, h.Store.Delete(h.ctx, dn.MustParse("cn=x+sn=y,dc=example,dc=com")))
		h.add(`cn=x\+sn=y,dc=example,dc=com`)

		h.restart()
		h.lookup(`cn=x\+sn=y,dc=example,dc=com`)
		assert.Equal(t, 3, h.count())
	})
}

// RunDeleteTests runs the Delete tests.
func (suite *StoreTestSuite) RunDeleteTests(t *testing.T) {
	t.Run("DeleteLeaf", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		require.NoError(t, h.Store.Delete(h.ctx, dn.MustParse("uid=alice,ou=people,dc=example,dc=com")))
		h.assertMissing("uid=alice,ou=people,dc=example,dc=com")
		assert.Equal(t, len(Tree)-1, h.count())

		_, err := h.Store.Lookup(h.ctx, dn.MustParse("uid=alice,ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotFound))
	})

	t.Run("NotAllowedOnNonLeaf", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		err := h.Store.Delete(h.ctx, dn.MustParse("ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotAllowedOnNonLeaf), "got %v", err)
		assert.Equal(t, len(Tree), h.count())
	})

	t.Run("NotFound", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		err := h.Store.Delete(h.ctx, dn.MustParse("uid=nobody,ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("DeleteEverythingBottomUp", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		// The last entry of a pre-order walk is always a leaf.
		for h.count() > 0 {
			var last dn.DN
			require.NoError(t, h.Store.Walk(h.ctx, Suffix, store.ScopeSubtree, func(e *entry.Entry) error {
				last = e.DN
				return nil
			}))
			require.NoError(t, h.Store.Delete(h.ctx, last), last.String())
		}

		h.restart()
		assert.Equal(t, 0, h.count())
		assert.Equal(t, int64(0), h.size())
	})

	t.Run("AddDeleteLoopIsInvariant", func(t *testing.T) {
		h := suite.open(t)
		h.populate()
		count, size := h.count(), h.size()

		for i := 0; i < 25; i++ {
			h.add("uid=temp,ou=people,dc=example,dc=com", "description", "iteration")
			require.NoError(t, h.Store.Delete(h.ctx, dn.MustParse("uid=temp,ou=people,dc=example,dc=com")))
		}
		assert.Equal(t, count, h.count())
		assert.Equal(t, size, h.size())

		h.restart()
		assert.Equal(t, count, h.count())
		assert.Equal(t, size, h.size())
	})
}

// RunModifyTests runs the Modify tests.
func (suite *StoreTestSuite) RunModifyTests(t *testing.T) {
	t.Run("ReplaceContent", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		bob := h.lookup("uid=bob,ou=people,dc=example,dc=com")
		bob.Put("description", "a much longer description than before, to change the record size")
		bob.Add("mail", "bob@example.com")
		require.NoError(t, h.Store.Modify(h.ctx, bob.Clone()))

		alice := h.lookup("uid=alice,ou=people,dc=example,dc=com")
		alice.Put("description", "x")
		require.NoError(t, h.Store.Modify(h.ctx, alice.Clone()))

		assert.True(t, bob.Equal(h.lookup("uid=bob,ou=people,dc=example,dc=com")))
		assert.True(t, alice.Equal(h.lookup("uid=alice,ou=people,dc=example,dc=com")))

		before := h.snapshot()
		h.restart()
		assertSameEntries(t, before, h.snapshot())
	})

	t.Run("NotFound", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		err := h.Store.Modify(h.ctx, NewEntry(t, "uid=nobody,ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotFound), "got %v", err)
	})
}
