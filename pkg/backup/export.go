// Package backup moves partition content in and out of LDIF streams and
// ships LDIF snapshots to backup targets (a local directory or an S3 bucket).
package backup

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/partition"
	"github.com/marmos91/dittodir/pkg/store"
)

// Source is a partition that can be exported.
type Source interface {
	Suffix() dn.DN
	Search(ctx context.Context, base dn.DN, scope store.Scope) (*partition.Cursor, error)
}

// Export writes every entry of the subtree rooted at base as LDIF, each
// entry after its parent. A zero base exports the whole partition.
//
// Returns the number of entries written.
func Export(ctx context.Context, src Source, base dn.DN, w io.Writer) (int, error) {
	if base.IsZero() {
		base = src.Suffix()
	}

	cur, err := src.Search(ctx, base, store.ScopeSubtree)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, "version: 1\n\n"); err != nil {
		return 0, fmt.Errorf("failed to write LDIF header: %w", err)
	}

	n := 0
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := ldif.Encode(bw, cur.Entry()); err != nil {
			return n, fmt.Errorf("failed to write %s: %w", cur.Entry().DN, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush LDIF output: %w", err)
	}
	return n, nil
}
