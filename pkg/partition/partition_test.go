package partition

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/marmos91/dittodir/pkg/store/dirtree"
	"github.com/marmos91/dittodir/pkg/store/singlefile"
	storetesting "github.com/marmos91/dittodir/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T, dir string) store.Store

var factories = map[string]storeFactory{
	"dirtree": func(t *testing.T, dir string) store.Store {
		s, err := dirtree.New(dirtree.Config{Path: dir}, storetesting.Suffix)
		require.NoError(t, err)
		return s
	},
	"singlefile": func(t *testing.T, dir string) store.Store {
		s, err := singlefile.New(singlefile.Config{Path: filepath.Join(dir, "userRoot.ldif")}, storetesting.Suffix)
		require.NoError(t, err)
		return s
	},
}

// forEachStore runs fn once per backing store variant.
func forEachStore(t *testing.T, fn func(t *testing.T, newStore func(dir string) store.Store)) {
	for name, factory := range factories {
		factory := factory
		t.Run(name, func(t *testing.T) {
			fn(t, func(dir string) store.Store { return factory(t, dir) })
		})
	}
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	dir      string
	newStore func(dir string) store.Store
	cfg      Config
	opts     []Option
	*Engine
}

func newFixture(t *testing.T, newStore func(dir string) store.Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		dir:      t.TempDir(),
		newStore: newStore,
		cfg:      Config{ID: "userRoot", ReplicaID: 7, CreateSuffix: true},
		opts:     opts,
	}
	f.start()
	t.Cleanup(func() { _ = f.Close(f.ctx) })
	return f
}

func (f *fixture) start() {
	f.t.Helper()
	engine, err := New(f.cfg, f.newStore(f.dir), f.opts...)
	require.NoError(f.t, err)
	require.NoError(f.t, engine.Initialize(f.ctx))
	f.Engine = engine
}

func (f *fixture) restart() {
	f.t.Helper()
	require.NoError(f.t, f.Close(f.ctx))
	f.start()
}

func (f *fixture) populate() {
	f.t.Helper()
	for _, d := range storetesting.Tree[1:] {
		require.NoError(f.t, f.Add(f.ctx, newEntry(d)))
	}
}

func (f *fixture) lookup(s string) *entry.Entry {
	f.t.Helper()
	e, err := f.Lookup(f.ctx, dn.MustParse(s))
	require.NoError(f.t, err, "lookup %s", s)
	return e
}

func (f *fixture) assertMissing(s string) {
	f.t.Helper()
	_, err := f.Lookup(f.ctx, dn.MustParse(s))
	assert.True(f.t, store.IsCode(err, store.ErrNotFound), "%s should be gone, got %v", s, err)
}

func newEntry(s string, attrs ...string) *entry.Entry {
	e := entry.New(dn.MustParse(s))
	e.Put(entry.AttrObjectClass, "top", "extensibleObject")
	for i := 0; i+1 < len(attrs); i += 2 {
		e.Add(attrs[i], attrs[i+1])
	}
	return e
}

func rdn(s string) dn.RDN {
	r, err := dn.ParseRDN(s)
	if err != nil {
		panic(err)
	}
	return r
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	s := factories["dirtree"](t, t.TempDir())
	_, err = New(Config{ReplicaID: 4096}, s)
	assert.Error(t, err)

	engine, err := New(Config{}, s)
	require.NoError(t, err)
	assert.Equal(t, "dc=example,dc=com", engine.ID())
	assert.Equal(t, defaultSuffixObjectClasses, engine.cfg.SuffixObjectClasses)
}

func TestInitialize(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)

		root := f.lookup("dc=example,dc=com")
		assert.True(t, root.HasValue("dc", "example"))
		assert.True(t, root.HasValue(entry.AttrObjectClass, "extensibleObject"))
		assert.NotEmpty(t, root.First(entry.AttrEntryUUID))

		f.restart()
		again := f.lookup("dc=example,dc=com")
		assert.Equal(t, root.First(entry.AttrEntryUUID), again.First(entry.AttrEntryUUID), "suffix is created once")

		count, err := f.Count(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestInitializeWithoutSuffix(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		engine, err := New(Config{}, newStore(t.TempDir()))
		require.NoError(t, err)
		require.NoError(t, engine.Initialize(context.Background()))
		defer engine.Close(context.Background())

		count, err := engine.Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count)

		err = engine.Add(context.Background(), newEntry("ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNoSuchParent))
	})
}

func TestAdd(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)

		t.Run("server attributes", func(t *testing.T) {
			in := entry.New(dn.MustParse("ou=people,dc=example,dc=com"))
			in.Put(entry.AttrObjectClass, "organizationalUnit")
			require.NoError(t, f.Add(f.ctx, in))
			assert.False(t, in.Has(entry.AttrEntryUUID), "the caller's entry is not modified")

			got := f.lookup("ou=people,dc=example,dc=com")
			assert.True(t, got.HasValue("ou", "people"), "naming value added")
			assert.Regexp(t, `^[0-9a-f-]{36}$`, got.First(entry.AttrEntryUUID))
			assert.Regexp(t, csnPattern, got.First(entry.AttrEntryCSN))
			assert.Equal(t, "ou=people,dc=example,dc=com", got.First(entry.AttrEntryDN))
		})

		t.Run("keeps a supplied entryUUID", func(t *testing.T) {
			in := newEntry("ou=groups,dc=example,dc=com", entry.AttrEntryUUID, "9f6c1b1e-5a0f-4f7e-8d4b-3b0b2e5d6f70")
			require.NoError(t, f.Add(f.ctx, in))
			got := f.lookup("ou=groups,dc=example,dc=com")
			assert.Equal(t, "9f6c1b1e-5a0f-4f7e-8d4b-3b0b2e5d6f70", got.First(entry.AttrEntryUUID))
		})

		tests := []struct {
			name string
			e    *entry.Entry
			code store.ErrorCode
		}{
			{"duplicate", newEntry("ou=people,dc=example,dc=com"), store.ErrAlreadyExists},
			{"duplicate ignoring case", newEntry("OU=People,DC=Example,DC=com"), store.ErrAlreadyExists},
			{"missing parent", newEntry("uid=x,ou=nowhere,dc=example,dc=com"), store.ErrNoSuchParent},
			{"outside suffix", newEntry("dc=example,dc=org"), store.ErrNoSuchParent},
			{"malformed uuid", newEntry("ou=x,dc=example,dc=com", entry.AttrEntryUUID, "not-a-uuid"), store.ErrInvalidArgument},
			{"uuid in use", newEntry("ou=y,dc=example,dc=com", entry.AttrEntryUUID, "9f6c1b1e-5a0f-4f7e-8d4b-3b0b2e5d6f70"), store.ErrAlreadyExists},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.Add(f.ctx, tt.e)
				assert.Equal(t, tt.code, store.CodeOf(err), "got %v", err)
			})
		}
	})
}

func TestDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		err := f.Delete(f.ctx, dn.MustParse("uid=bob,ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotAllowedOnNonLeaf))

		require.NoError(t, f.Delete(f.ctx, dn.MustParse("cn=laptop,uid=bob,ou=people,dc=example,dc=com")))
		require.NoError(t, f.Delete(f.ctx, dn.MustParse("uid=bob,ou=people,dc=example,dc=com")))
		f.assertMissing("uid=bob,ou=people,dc=example,dc=com")

		err = f.Delete(f.ctx, dn.MustParse("uid=bob,ou=people,dc=example,dc=com"))
		assert.True(t, store.IsCode(err, store.ErrNotFound))

		f.restart()
		f.assertMissing("uid=bob,ou=people,dc=example,dc=com")
		f.lookup("uid=alice,ou=people,dc=example,dc=com")
	})
}

func TestModify(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()
		alice := dn.MustParse("uid=alice,ou=people,dc=example,dc=com")
		before := f.lookup(alice.String())

		require.NoError(t, f.Modify(f.ctx, alice, []entry.Modification{
			{Op: entry.ModAdd, Attribute: "mail", Values: []string{"alice@example.com", "a@example.com"}},
			{Op: entry.ModReplace, Attribute: "description", Values: []string{"first"}},
			{Op: entry.ModDelete, Attribute: "mail", Values: []string{"a@example.com"}},
		}))

		after := f.lookup(alice.String())
		assert.Equal(t, []string{"alice@example.com"}, after.Get("mail"))
		assert.Equal(t, "first", after.First("description"))
		assert.Equal(t, before.First(entry.AttrEntryUUID), after.First(entry.AttrEntryUUID))
		assert.Greater(t, after.First(entry.AttrEntryCSN), before.First(entry.AttrEntryCSN))

		tests := []struct {
			name string
			mods []entry.Modification
			code store.ErrorCode
		}{
			{"missing value", []entry.Modification{{Op: entry.ModDelete, Attribute: "mail", Values: []string{"nobody@example.com"}}}, store.ErrNoSuchAttribute},
			{"missing attribute", []entry.Modification{{Op: entry.ModDelete, Attribute: "telephoneNumber"}}, store.ErrNoSuchAttribute},
			{"existing value", []entry.Modification{{Op: entry.ModAdd, Attribute: "mail", Values: []string{"ALICE@example.com"}}}, store.ErrAttributeOrValueExists},
			{"naming value", []entry.Modification{{Op: entry.ModDelete, Attribute: "uid"}}, store.ErrNotAllowedOnRDN},
			{"naming value replaced", []entry.Modification{{Op: entry.ModReplace, Attribute: "uid", Values: []string{"alicia"}}}, store.ErrNotAllowedOnRDN},
			{"entryUUID", []entry.Modification{{Op: entry.ModReplace, Attribute: "entryuuid", Values: []string{"9f6c1b1e-5a0f-4f7e-8d4b-3b0b2e5d6f70"}}}, store.ErrInvalidArgument},
			{"entryDN", []entry.Modification{{Op: entry.ModAdd, Attribute: "entryDN", Values: []string{"cn=x"}}}, store.ErrInvalidArgument},
			{"empty add", []entry.Modification{{Op: entry.ModAdd, Attribute: "mail"}}, store.ErrInvalidArgument},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.Modify(f.ctx, alice, tt.mods)
				assert.Equal(t, tt.code, store.CodeOf(err), "got %v", err)
			})
		}

		t.Run("all or nothing", func(t *testing.T) {
			err := f.Modify(f.ctx, alice, []entry.Modification{
				{Op: entry.ModReplace, Attribute: "description", Values: []string{"second"}},
				{Op: entry.ModDelete, Attribute: "pager"},
			})
			require.Error(t, err)
			assert.Equal(t, "first", f.lookup(alice.String()).First("description"))
		})

		err := f.Modify(f.ctx, dn.MustParse("uid=nobody,ou=people,dc=example,dc=com"), nil)
		assert.True(t, store.IsCode(err, store.ErrNotFound))

		f.restart()
		assert.Equal(t, "first", f.lookup(alice.String()).First("description"))
		assert.False(t, f.lookup(alice.String()).HasValue("mail", "a@example.com"))
	})
}

func TestRename(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		bob := f.lookup("uid=bob,ou=people,dc=example,dc=com")
		require.NoError(t, f.Rename(f.ctx, bob.DN, rdn("uid=robert"), true))

		got := f.lookup("uid=robert,ou=people,dc=example,dc=com")
		assert.Equal(t, []string{"robert"}, got.Get("uid"))
		assert.Equal(t, bob.First(entry.AttrEntryUUID), got.First(entry.AttrEntryUUID))
		assert.Greater(t, got.First(entry.AttrEntryCSN), bob.First(entry.AttrEntryCSN))
		f.assertMissing("uid=bob,ou=people,dc=example,dc=com")
		f.lookup("cn=laptop,uid=robert,ou=people,dc=example,dc=com")

		require.NoError(t, f.Rename(f.ctx, got.DN, rdn("cn=Robert Smith"), false))
		kept := f.lookup("cn=Robert Smith,ou=people,dc=example,dc=com")
		assert.True(t, kept.HasValue("uid", "robert"), "old naming value kept")
		assert.True(t, kept.HasValue("cn", "Robert Smith"))

		f.restart()
		kept = f.lookup("cn=robert smith,ou=people,dc=example,dc=com")
		assert.True(t, kept.HasValue("uid", "robert"))
		f.lookup("cn=laptop,cn=Robert Smith,ou=people,dc=example,dc=com")

		err := f.Rename(f.ctx, dn.MustParse("uid=alice,ou=people,dc=example,dc=com"), rdn("cn=robert smith"), true)
		assert.True(t, store.IsCode(err, store.ErrAlreadyExists))
		err = f.Rename(f.ctx, dn.MustParse("uid=nobody,ou=people,dc=example,dc=com"), rdn("uid=somebody"), true)
		assert.True(t, store.IsCode(err, store.ErrNotFound))
	})
}

func TestRenameMultiValued(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		alice := dn.MustParse("uid=alice,ou=people,dc=example,dc=com")
		require.NoError(t, f.Rename(f.ctx, alice, rdn("uid=alice+sn=liddell"), true))
		got := f.lookup("sn=liddell+uid=alice,ou=people,dc=example,dc=com")
		assert.True(t, got.HasValue("uid", "alice"), "shared value survives deleteOldRDN")
		assert.True(t, got.HasValue("sn", "liddell"))

		require.NoError(t, f.Rename(f.ctx, got.DN, rdn("cn=alice"), true))
		got = f.lookup("cn=alice,ou=people,dc=example,dc=com")
		assert.False(t, got.Has("uid"))
		assert.False(t, got.Has("sn"))
	})
}

func TestMove(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		bob := dn.MustParse("uid=bob,ou=people,dc=example,dc=com")
		groups := dn.MustParse("ou=groups,dc=example,dc=com")
		require.NoError(t, f.Move(f.ctx, bob, groups))

		f.lookup("uid=bob,ou=groups,dc=example,dc=com")
		f.lookup("cn=laptop,uid=bob,ou=groups,dc=example,dc=com")
		f.assertMissing("uid=bob,ou=people,dc=example,dc=com")
		f.assertMissing("cn=laptop,uid=bob,ou=people,dc=example,dc=com")

		tests := []struct {
			name      string
			d, parent string
			code      store.ErrorCode
		}{
			{"missing parent", "uid=alice,ou=people,dc=example,dc=com", "ou=nowhere,dc=example,dc=com", store.ErrNoSuchParent},
			{"beneath itself", "ou=groups,dc=example,dc=com", "uid=bob,ou=groups,dc=example,dc=com", store.ErrInvalidArgument},
			{"suffix", "dc=example,dc=com", "ou=people,dc=example,dc=com", store.ErrInvalidArgument},
			{"missing entry", "uid=nobody,ou=people,dc=example,dc=com", "ou=groups,dc=example,dc=com", store.ErrNotFound},
			{"outside suffix", "uid=alice,ou=people,dc=example,dc=com", "dc=example,dc=org", store.ErrNoSuchParent},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.Move(f.ctx, dn.MustParse(tt.d), dn.MustParse(tt.parent))
				assert.Equal(t, tt.code, store.CodeOf(err), "got %v", err)
			})
		}

		f.restart()
		f.lookup("cn=laptop,uid=bob,ou=groups,dc=example,dc=com")
		count, err := f.Count(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, len(storetesting.Tree), count)
	})
}

func TestMoveAndRename(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		require.NoError(t, f.MoveAndRename(f.ctx,
			dn.MustParse("ou=people,dc=example,dc=com"),
			dn.MustParse("ou=groups,dc=example,dc=com"),
			rdn("ou=staff"), true))

		staff := f.lookup("ou=staff,ou=groups,dc=example,dc=com")
		assert.Equal(t, []string{"staff"}, staff.Get("ou"))
		for _, d := range []string{
			"uid=alice,ou=staff,ou=groups,dc=example,dc=com",
			"uid=bob,ou=staff,ou=groups,dc=example,dc=com",
			"cn=laptop,uid=bob,ou=staff,ou=groups,dc=example,dc=com",
		} {
			got := f.lookup(d)
			assert.Equal(t, d, got.First(entry.AttrEntryDN))
		}
		f.assertMissing("ou=people,dc=example,dc=com")

		f.restart()
		cur, err := f.Search(f.ctx, dn.MustParse("ou=staff,ou=groups,dc=example,dc=com"), store.ScopeSubtree)
		require.NoError(t, err)
		assert.Equal(t, 4, cur.Len())
	})
}

func TestSearch(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		names := func(scope store.Scope, base string) []string {
			cur, err := f.Search(f.ctx, dn.MustParse(base), scope)
			require.NoError(t, err)
			defer cur.Close()
			var out []string
			for _, e := range cur.All() {
				out = append(out, e.First(entry.AttrEntryDN))
			}
			return out
		}

		assert.Equal(t, []string{"ou=people,dc=example,dc=com"}, names(store.ScopeBase, "ou=people,dc=example,dc=com"))
		assert.ElementsMatch(t, []string{
			"uid=alice,ou=people,dc=example,dc=com",
			"uid=bob,ou=people,dc=example,dc=com",
		}, names(store.ScopeOneLevel, "ou=people,dc=example,dc=com"))

		all := names(store.ScopeSubtree, "dc=example,dc=com")
		assert.Len(t, all, len(storetesting.Tree))
		pos := map[string]int{}
		for i, d := range all {
			pos[d] = i
		}
		for _, d := range all[1:] {
			parent := dn.MustParse(d).Parent().String()
			assert.Less(t, pos[parent], pos[d], "%s listed after its parent", d)
		}

		_, err := f.Search(f.ctx, dn.MustParse("ou=nowhere,dc=example,dc=com"), store.ScopeSubtree)
		assert.True(t, store.IsCode(err, store.ErrNotFound))
	})
}

func TestSearchResultsAreSnapshots(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		cur, err := f.Search(f.ctx, dn.MustParse("ou=people,dc=example,dc=com"), store.ScopeSubtree)
		require.NoError(t, err)
		require.NoError(t, f.Delete(f.ctx, dn.MustParse("uid=alice,ou=people,dc=example,dc=com")))
		assert.Equal(t, 4, cur.Len())

		require.True(t, cur.Next())
		cur.Entry().Put("description", "changed by the caller")
		assert.False(t, f.lookup("ou=people,dc=example,dc=com").Has("description"))
	})
}

func TestSetRewriting(t *testing.T) {
	ctx := context.Background()

	dt, err := New(Config{CreateSuffix: true}, factories["dirtree"](t, t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, dt.Initialize(ctx))
	defer dt.Close(ctx)
	err = dt.SetRewriting(ctx, false)
	assert.True(t, store.IsCode(err, store.ErrNotSupported))

	dir := t.TempDir()
	sf, err := New(Config{CreateSuffix: true}, factories["singlefile"](t, dir))
	require.NoError(t, err)
	require.NoError(t, sf.Initialize(ctx))
	require.NoError(t, sf.SetRewriting(ctx, false))
	for _, d := range storetesting.Tree[1:] {
		require.NoError(t, sf.Add(ctx, newEntry(d)))
	}
	require.NoError(t, sf.SetRewriting(ctx, true))
	require.NoError(t, sf.Close(ctx))

	reopened, err := New(Config{}, factories["singlefile"](t, dir))
	require.NoError(t, err)
	require.NoError(t, reopened.Initialize(ctx))
	defer reopened.Close(ctx)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(storetesting.Tree), count)
}

type recordingMetrics struct {
	mu      sync.Mutex
	ops     map[string]int
	errs    map[string]int
	entries int
	bytes   int64
}

func (m *recordingMetrics) RecordOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.errs[op]++
	}
}

func (m *recordingMetrics) SetEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = n
}

func (m *recordingMetrics) SetStoreBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes = n
}

func TestMetrics(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		m := &recordingMetrics{ops: map[string]int{}, errs: map[string]int{}}
		f := newFixture(t, newStore, WithMetrics(m))
		f.populate()

		_ = f.Delete(f.ctx, dn.MustParse("uid=nobody,ou=people,dc=example,dc=com"))

		m.mu.Lock()
		defer m.mu.Unlock()
		assert.Equal(t, 1, m.ops["Initialize"])
		assert.Equal(t, len(storetesting.Tree)-1, m.ops["Add"])
		assert.Equal(t, 1, m.errs["Delete"])
		assert.Equal(t, len(storetesting.Tree), m.entries)

		size, err := f.store.Size(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, size, m.bytes)
	})
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()
		people := dn.MustParse("ou=people,dc=example,dc=com")

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				d := people.Child(dn.NewRDN("uid", "worker"+string(rune('a'+i))))
				for n := 0; n < 25; n++ {
					if err := f.Add(f.ctx, newEntry(d.String())); err != nil {
						t.Errorf("add %s: %v", d, err)
						return
					}
					if err := f.Delete(f.ctx, d); err != nil {
						t.Errorf("delete %s: %v", d, err)
						return
					}
				}
			}(i)
		}
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 50; n++ {
					cur, err := f.Search(f.ctx, people, store.ScopeSubtree)
					if err != nil {
						t.Errorf("search: %v", err)
						return
					}
					for cur.Next() {
						if !cur.Entry().NamingValuesPresent() {
							t.Errorf("inconsistent entry %s", cur.Entry().DN)
						}
					}
				}
			}()
		}
		wg.Wait()

		count, err := f.Count(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, len(storetesting.Tree), count)
	})
}

func TestStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		dir := t.TempDir()
		engine, err := New(Config{ID: "userRoot", CreateSuffix: true}, newStore(dir))
		require.NoError(t, err)

		st, err := engine.Status(context.Background())
		require.NoError(t, err)
		assert.False(t, st.Open)
		assert.Equal(t, "userRoot", st.ID)
		assert.Equal(t, "dc=example,dc=com", st.Suffix)
		assert.Zero(t, st.Entries)

		require.NoError(t, engine.Initialize(context.Background()))
		require.NoError(t, engine.Add(context.Background(), newEntry("ou=people,dc=example,dc=com")))

		st, err = engine.Status(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Open)
		assert.Equal(t, 2, st.Entries)
		size, err := engine.Size(context.Background())
		require.NoError(t, err)
		assert.Equal(t, size, st.StoreBytes)

		require.NoError(t, engine.Close(context.Background()))
		st, err = engine.Status(context.Background())
		require.NoError(t, err)
		assert.False(t, st.Open)
	})
}

func TestValuesDifferingByCaseSurviveRestart(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func(string) store.Store) {
		f := newFixture(t, newStore)
		f.populate()

		carol := newEntry("uid=Carol,ou=people,dc=example,dc=com",
			"uid", "carol",
			"userPassword", "Secret",
			"userPassword", "secret")
		require.NoError(t, f.Add(f.ctx, carol))

		before := f.lookup("uid=carol,ou=people,dc=example,dc=com")
		assert.Equal(t, []string{"carol"}, before.Get("uid"), "matching naming value is not duplicated")
		assert.Equal(t, []string{"Secret", "secret"}, before.Get("userPassword"))

		f.restart()
		after := f.lookup("uid=carol,ou=people,dc=example,dc=com")
		assert.Equal(t, []string{"Secret", "secret"}, after.Get("userPassword"))
		assert.True(t, before.Equal(after))

		require.NoError(t, f.Modify(f.ctx, after.DN, []entry.Modification{
			{Op: entry.ModDelete, Attribute: "userPassword", Values: []string{"secret"}},
		}))
		assert.Equal(t, []string{"Secret"}, f.lookup(after.DN.String()).Get("userPassword"))
	})
}
