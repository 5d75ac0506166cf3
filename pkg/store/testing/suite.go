// Package testing provides a conformance suite for store.Store
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/store"
	"github.com/stretchr/testify/require"
)

// Suffix is the naming context used by the suite.
var Suffix = dn.MustParse("dc=example,dc=com")

// StoreTestSuite is a test suite for store.Store implementations. It tests
// the interface contract, not implementation details, so both backing-store
// variants run the same tests.
type StoreTestSuite struct {
	// NewStore creates an unopened store for Suffix rooted at dir. Calling it
	// again with the same dir must yield a store over the same data; the
	// suite uses that to simulate a process restart.
	NewStore func(t *testing.T, dir string) store.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Add", suite.RunAddTests)
	t.Run("Delete", suite.RunDeleteTests)
	t.Run("Modify", suite.RunModifyTests)
	t.Run("Rename", suite.RunRenameTests)
	t.Run("Move", suite.RunMoveTests)
	t.Run("Walk", suite.RunWalkTests)
	t.Run("Recovery", suite.RunRecoveryTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

// harness bundles an open store with the directory behind it.
type harness struct {
	t     *testing.T
	suite *StoreTestSuite
	dir   string
	ctx   context.Context
	Store store.Store
}

func (suite *StoreTestSuite) open(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		suite: suite,
		dir:   t.TempDir(),
		ctx:   context.Background(),
	}
	h.Store = suite.NewStore(t, h.dir)
	require.NoError(t, h.Store.Open(h.ctx))
	t.Cleanup(func() {
		if h.Store != nil {
			_ = h.Store.Close(context.Background())
		}
	})
	return h
}

// restart closes the store and opens a new one over the same directory.
func (h *harness) restart() {
	h.t.Helper()
	require.NoError(h.t, h.Store.Close(h.ctx))
	h.Store = h.suite.NewStore(h.t, h.dir)
	require.NoError(h.t, h.Store.Open(h.ctx))
}
