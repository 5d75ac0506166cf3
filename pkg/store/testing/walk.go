package testing

import (
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWalkTests runs the Walk tests.
func (suite *StoreTestSuite) RunWalkTests(t *testing.T) {
	h := suite.open(t)
	h.populate()

	walk := func(base string, scope store.Scope) []string {
		var out []string
		err := h.Store.Walk(h.ctx, dn.MustParse(base), scope, func(e *entry.Entry) error {
			out = append(out, e.DN.String())
			return nil
		})
		require.NoError(t, err)
		return out
	}

	t.Run("Subtree", func(t *testing.T) {
		assert.Equal(t, []string{
			"dc=example,dc=com",
			"ou=groups,dc=example,dc=com",
			"cn=admins,ou=groups,dc=example,dc=com",
			"ou=people,dc=example,dc=com",
			"uid=alice,ou=people,dc=example,dc=com",
			"uid=bob,ou=people,dc=example,dc=com",
			"cn=laptop,uid=bob,ou=people,dc=example,dc=com",
		}, walk("dc=example,dc=com", store.ScopeSubtree))
	})

	t.Run("OneLevel", func(t *testing.T) {
		assert.Equal(t, []string{
			"uid=alice,ou=people,dc=example,dc=com",
			"uid=bob,ou=people,dc=example,dc=com",
		}, walk("ou=people,dc=example,dc=com", store.ScopeOneLevel))
	})

	t.Run("Base", func(t *testing.T) {
		assert.Equal(t, []string{"uid=bob,ou=people,dc=example,dc=com"}, walk("UID=Bob,ou=people,dc=example,dc=com", store.ScopeBase))
	})

	t.Run("MissingBase", func(t *testing.T) {
		err := h.Store.Walk(h.ctx, dn.MustParse("ou=none,dc=example,dc=com"), store.ScopeSubtree, func(*entry.Entry) error { return nil })
		assert.True(t, store.IsCode(err, store.ErrNotFound), "got %v", err)
	})

	t.Run("StopsOnError", func(t *testing.T) {
		stop := errors.New("stop")
		visited := 0
		err := h.Store.Walk(h.ctx, Suffix, store.ScopeSubtree, func(*entry.Entry) error {
			visited++
			if visited == 2 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 2, visited)
	})

	t.Run("HasChildren", func(t *testing.T) {
		yes, err := h.Store.HasChildren(h.ctx, dn.MustParse("uid=bob,ou=people,dc=example,dc=com"))
		require.NoError(t, err)
		assert.True(t, yes)

		no, err := h.Store.HasChildren(h.ctx, dn.MustParse("uid=alice,ou=people,dc=example,dc=com"))
		require.NoError(t, err)
		assert.False(t, no)

		_, err = h.Store.HasChildren(h.ctx, dn.MustParse("uid=nobody,ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotFound))
	})
}

// RunRecoveryTests runs the restart tests.
func (suite *StoreTestSuite) RunRecoveryTests(t *testing.T) {
	t.Run("EmptyStore", func(t *testing.T) {
		h := suite.open(t)
		h.restart()
		assert.Equal(t, 0, h.count())
	})

	t.Run("AddRestartLookup", func(t *testing.T) {
		h := suite.open(t)
		added := h.populate()
		extra := h.add("cn=printer,ou=groups,dc=example,dc=com",
			"description", " leading and trailing ",
			"jpegPhoto", "\x00\x01\x02\xff",
			"displayName", "Ünïcödé")
		added[extra.DN.Normalized()] = extra

		h.restart()
		assertSameEntries(t, added, h.snapshot())
		assert.Equal(t, len(Tree)+1, h.count())
	})

	t.Run("ValuesDifferingOnlyByCase", func(t *testing.T) {
		h := suite.open(t)
		h.populate()
		e := h.add("uid=carol,ou=people,dc=example,dc=com",
			"userPassword", "Secret",
			"userPassword", "secret",
			"mail", "Carol@Example.com",
			"mail", "carol@example.com")

		h.restart()
		got := h.lookup("uid=carol,ou=people,dc=example,dc=com")
		assert.Equal(t, []string{"Secret", "secret"}, got.Get("userPassword"))
		assert.Equal(t, []string{"Carol@Example.com", "carol@example.com"}, got.Get("mail"))
		assert.True(t, e.Equal(got, entry.AttrEntryDN))
	})

	t.Run("SizeSurvivesRestart", func(t *testing.T) {
		h := suite.open(t)
		h.populate()
		size := h.size()
		assert.Greater(t, size, int64(0))

		h.restart()
		assert.Equal(t, size, h.size())
	})
}

// RunConcurrencyTests checks that readers and writers can run in parallel.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	h := suite.open(t)
	h.populate()

	const writers = 4
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				e := NewEntry(t, "cn=w"+string(rune('a'+w))+string(rune('a'+i))+",ou=groups,dc=example,dc=com")
				assert.NoError(t, h.Store.Add(h.ctx, e))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := h.Store.Lookup(h.ctx, dn.MustParse("uid=alice,ou=people,dc=example,dc=com"))
				assert.NoError(t, err)
				_ = h.Store.Walk(h.ctx, Suffix, store.ScopeSubtree, func(*entry.Entry) error { return nil })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(Tree)+writers*perWriter, h.count())
	h.restart()
	assert.Equal(t, len(Tree)+writers*perWriter, h.count())
}
