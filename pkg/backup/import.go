package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/internal/ratelimiter"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/store"
)

// Sink is a partition that can be loaded.
type Sink interface {
	Add(ctx context.Context, e *entry.Entry) error
	SetRewriting(ctx context.Context, enabled bool) error
}

// ImportOptions tunes Import.
type ImportOptions struct {
	// SkipExisting ignores entries whose DN is already present
	SkipExisting bool

	// RatePerSecond caps the number of entries added per second (0 = unlimited)
	RatePerSecond uint
}

// ImportResult reports what Import did.
type ImportResult struct {
	Added   int
	Skipped int
}

// Import bulk-loads the LDIF records read from r.
//
// Records are added parents first whatever their order in the input. When
// the sink supports deferred rewriting, physical writes are suspended for
// the duration of the load and flushed once at the end, also on failure.
func Import(ctx context.Context, dst Sink, r io.Reader, opts ImportOptions) (res ImportResult, err error) {
	entries, err := ldif.ReadAll(r)
	if err != nil {
		return res, fmt.Errorf("failed to parse LDIF input: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DN.Depth() < entries[j].DN.Depth()
	})

	deferred := true
	if err := dst.SetRewriting(ctx, false); err != nil {
		if !store.IsCode(err, store.ErrNotSupported) {
			return res, err
		}
		deferred = false
	}
	if deferred {
		defer func() {
			if flushErr := dst.SetRewriting(context.WithoutCancel(ctx), true); flushErr != nil {
				err = errors.Join(err, flushErr)
			}
		}()
	}

	limiter := ratelimiter.New(opts.RatePerSecond, 0)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}
		store.StripDerived(e)
		if err := dst.Add(ctx, e); err != nil {
			if opts.SkipExisting && store.IsCode(err, store.ErrAlreadyExists) {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("failed to import %s: %w", e.DN, err)
		}
		res.Added++
	}

	logger.Info("backup: imported %d entries (%d skipped)", res.Added, res.Skipped)
	return res, nil
}
