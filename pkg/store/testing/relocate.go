package testing

import (
	"strings"
	"testing"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rebased maps every entry of a snapshot under oldBase to newBase.
func rebased(t *testing.T, snap map[string]*entry.Entry, oldBase, newBase dn.DN) map[string]*entry.Entry {
	t.Helper()
	out := make(map[string]*entry.Entry, len(snap))
	for _, e := range snap {
		c := e.Clone()
		if c.DN.IsWithin(oldBase) {
			moved, err := c.DN.Rebase(oldBase, newBase)
			require.NoError(t, err)
			c.DN = moved
		}
		out[c.DN.Normalized()] = c
	}
	return out
}

// RunRenameTests runs the Rename tests.
func (suite *StoreTestSuite) RunRenameTests(t *testing.T) {
	t.Run("RenameSubtree", func(t *testing.T) {
		h := suite.open(t)
		h.populate()
		before := h.snapshot()

		oldDN := dn.MustParse("uid=bob,ou=people,dc=example,dc=com")
		newDN := dn.MustParse("uid=robert,ou=people,dc=example,dc=com")

		bob := h.lookup(oldDN.String())
		renamed := Renamed(bob, newDN)
		renamed.Remove("uid", "bob")
		renamed.Add("uid", "robert")
		require.NoError(t, h.Store.Rename(h.ctx, oldDN, renamed.Clone()))

		h.assertMissing(oldDN.String())
		h.assertMissing("cn=laptop,uid=bob,ou=people,dc=example,dc=com")

		got := h.lookup(newDN.String())
		assert.Equal(t, []string{"robert"}, got.Get("uid"))
		assert.Equal(t, bob.First(entry.AttrEntryUUID), got.First(entry.AttrEntryUUID))

		laptop := h.lookup("cn=laptop,uid=robert,ou=people,dc=example,dc=com")
		assert.True(t, laptop.DN.Equal(dn.MustParse("cn=laptop,uid=robert,ou=people,dc=example,dc=com")))
		assert.Equal(t, len(Tree), h.count())

		want := rebased(t, before, oldDN, newDN)
		want[newDN.Normalized()] = renamed
		assertSameEntries(t, want, h.snapshot())

		h.restart()
		assertSameEntries(t, want, h.snapshot())
	})

	t.Run("KeepOldNamingValue", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		oldDN := dn.MustParse("uid=alice,ou=people,dc=example,dc=com")
		newDN := dn.MustParse("uid=alicia,ou=people,dc=example,dc=com")
		renamed := Renamed(h.lookup(oldDN.String()), newDN)
		renamed.Add("uid", "alicia")
		require.NoError(t, h.Store.Rename(h.ctx, oldDN, renamed))

		h.restart()
		got := h.lookup(newDN.String())
		assert.ElementsMatch(t, []string{"alice", "alicia"}, got.Get("uid"))
	})

	t.Run("CaseOnlyRename", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		oldDN := dn.MustParse("ou=people,dc=example,dc=com")
		newDN := dn.MustParse("ou=People,dc=example,dc=com")
		renamed := Renamed(h.lookup(oldDN.String()), newDN)
		renamed.Put("ou", "People")
		require.NoError(t, h.Store.Rename(h.ctx, oldDN, renamed))

		assert.Equal(t, "ou=People,dc=example,dc=com", h.lookup(oldDN.String()).DN.String())
		assert.Equal(t, len(Tree), h.count())

		h.restart()
		assert.Equal(t, []string{"People"}, h.lookup(newDN.String()).Get("ou"))
		assert.Equal(t, len(Tree), h.count())
	})

	t.Run("Errors", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		alice := h.lookup("uid=alice,ou=people,dc=example,dc=com")

		err := h.Store.Rename(h.ctx, alice.DN, Renamed(alice, dn.MustParse("uid=bob,ou=people,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)

		err = h.Store.Rename(h.ctx, alice.DN, Renamed(alice, dn.MustParse("uid=alice,ou=groups,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrInvalidArgument), "rename cannot change the parent, got %v", err)

		missing := dn.MustParse("uid=nobody,ou=people,dc=example,dc=com")
		err = h.Store.Rename(h.ctx, missing, Renamed(alice, dn.MustParse("uid=x,ou=people,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrNotFound), "got %v", err)

		suffix := h.lookup(Suffix.String())
		err = h.Store.Rename(h.ctx, Suffix, Renamed(suffix, dn.MustParse("dc=other,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrInvalidArgument), "got %v", err)

		assert.True(t, alice.Equal(h.lookup(alice.DN.String())))
	})
}

// RunMoveTests runs the Move and MoveAndRename tests.
func (suite *StoreTestSuite) RunMoveTests(t *testing.T) {
	t.Run("MoveSubtree", func(t *testing.T) {
		h := suite.open(t)
		h.populate()
		before := h.snapshot()

		oldDN := dn.MustParse("uid=bob,ou=people,dc=example,dc=com")
		newDN := dn.MustParse("uid=bob,cn=admins,ou=groups,dc=example,dc=com")
		require.NoError(t, h.Store.Move(h.ctx, oldDN, Renamed(h.lookup(oldDN.String()), newDN)))

		h.assertMissing(oldDN.String())
		h.assertMissing("cn=laptop,uid=bob,ou=people,dc=example,dc=com")
		h.lookup("cn=laptop,uid=bob,cn=admins,ou=groups,dc=example,dc=com")

		hasChildren, err := h.Store.HasChildren(h.ctx, dn.MustParse("cn=admins,ou=groups,dc=example,dc=com"))
		require.NoError(t, err)
		assert.True(t, hasChildren)

		want := rebased(t, before, oldDN, newDN)
		assertSameEntries(t, want, h.snapshot())

		h.restart()
		assertSameEntries(t, want, h.snapshot())
	})

	t.Run("MoveLastChildAway", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		oldDN := dn.MustParse("cn=admins,ou=groups,dc=example,dc=com")
		newDN := dn.MustParse("cn=admins,ou=people,dc=example,dc=com")
		require.NoError(t, h.Store.Move(h.ctx, oldDN, Renamed(h.lookup(oldDN.String()), newDN)))

		hasChildren, err := h.Store.HasChildren(h.ctx, dn.MustParse("ou=groups,dc=example,dc=com"))
		require.NoError(t, err)
		assert.False(t, hasChildren)

		require.NoError(t, h.Store.Delete(h.ctx, dn.MustParse("ou=groups,dc=example,dc=com")))
		h.restart()
		assert.Equal(t, len(Tree)-1, h.count())
	})

	t.Run("MoveAndRename", func(t *testing.T) {
		h := suite.open(t)
		h.populate()
		before := h.snapshot()

		oldDN := dn.MustParse("ou=people,dc=example,dc=com")
		newDN := dn.MustParse("ou=staff,ou=groups,dc=example,dc=com")
		moved := Renamed(h.lookup(oldDN.String()), newDN)
		moved.Remove("ou", "people")
		moved.Add("ou", "staff")
		require.NoError(t, h.Store.MoveAndRename(h.ctx, oldDN, moved.Clone()))

		for _, s := range Tree {
			if strings.Contains(s, "ou=people") {
				h.assertMissing(s)
			}
		}

		want := rebased(t, before, oldDN, newDN)
		want[newDN.Normalized()] = moved
		assertSameEntries(t, want, h.snapshot())

		h.restart()
		assertSameEntries(t, want, h.snapshot())
	})

	t.Run("Errors", func(t *testing.T) {
		h := suite.open(t)
		h.populate()

		people := h.lookup("ou=people,dc=example,dc=com")

		err := h.Store.Move(h.ctx, people.DN, Renamed(people, dn.MustParse("ou=people,uid=bob,ou=people,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrInvalidArgument), "beneath itself, got %v", err)

		err = h.Store.Move(h.ctx, people.DN, Renamed(people, dn.MustParse("ou=people,ou=missing,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrNoSuchParent), "got %v", err)

		err = h.Store.Move(h.ctx, people.DN, Renamed(people, dn.MustParse("ou=other,ou=groups,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrInvalidArgument), "move cannot change the RDN, got %v", err)

		h.add("ou=people,ou=groups,dc=example,dc=com")
		err = h.Store.Move(h.ctx, people.DN, Renamed(people, dn.MustParse("ou=people,ou=groups,dc=example,dc=com")))
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists), "got %v", err)

		assert.Equal(t, len(Tree)+1, h.count())
		h.lookup("cn=laptop,uid=bob,ou=people,dc=example,dc=com")
	})
}
