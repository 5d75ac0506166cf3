package dirtree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/namecodec"
	"github.com/marmos91/dittodir/pkg/store"
)

// recover rebuilds the index from the directory layout.
//
// The walk is depth-first with an explicit stack. The DN of a record is its
// parent's DN (known from the directory it sits in) plus the RDN read from the
// record itself, so a record whose dn line went stale during an interrupted
// relocation is repaired, and a record file whose name does not match its RDN
// is renamed. Records that cannot be parsed abort recovery.
func (s *Store) recover(ctx context.Context) error {
	suffixSeg := namecodec.EncodeDN(s.suffix)
	suffixLoc := store.Location{
		File: filepath.Join(s.cfg.Path, suffixSeg+namecodec.Extension),
		Dir:  filepath.Join(s.cfg.Path, suffixSeg),
	}

	if !exists(suffixLoc.File) {
		if exists(suffixLoc.Dir) {
			logger.Warn("dirtree: orphan directory %s has no suffix record", suffixLoc.Dir)
		}
		return nil
	}

	e, size, err := readRecord(suffixLoc.File)
	if err != nil {
		return err
	}
	if !e.DN.Equal(s.suffix) {
		logger.Warn("dirtree: repairing dn of %s: %q -> %q", suffixLoc.File, e.DN, s.suffix)
		e.DN = s.suffix
		if size, err = s.rewrite(suffixLoc.File, e); err != nil {
			return err
		}
	}
	suffixLoc.Length = size

	root, err := s.index.Insert(e, suffixLoc)
	if err != nil {
		return store.NewIOError(e.DN, "register "+suffixLoc.File, err)
	}

	stack := []*store.Record{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		withChildren, err := s.scanChildren(parent)
		if err != nil {
			return err
		}
		stack = append(stack, withChildren...)
	}
	return nil
}

// scanChildren registers the records in the children directory of parent and
// returns those that have a children directory of their own.
func (s *Store) scanChildren(parent *store.Record) ([]*store.Record, error) {
	dir := parent.Loc.Dir
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, store.NewIOError(parent.DN, "read directory "+dir, err)
	}

	var (
		records []*store.Record
		subdirs []string
		others  int
	)
	claimed := make(map[string]bool)

	for _, de := range dirEntries {
		name := de.Name()
		path := filepath.Join(dir, name)

		switch {
		case de.IsDir():
			subdirs = append(subdirs, name)
			continue
		case isTempFile(name):
			logger.Warn("dirtree: removing leftover temporary file %s", path)
			if err := os.Remove(path); err != nil {
				return nil, store.NewIOError(parent.DN, "remove "+path, err)
			}
			continue
		case !strings.HasSuffix(name, namecodec.Extension):
			logger.Warn("dirtree: ignoring unexpected file %s", path)
			others++
			continue
		}

		rec, err := s.registerChild(parent, path, claimed)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	for _, name := range subdirs {
		if !claimed[name] {
			logger.Warn("dirtree: orphan directory %s has no record file", filepath.Join(dir, name))
			others++
		}
	}

	if len(records) == 0 && others == 0 {
		logger.Warn("dirtree: removing empty directory %s of leaf entry %s", dir, parent.DN)
		if err := removeIfExists(dir); err != nil {
			return nil, store.NewIOError(parent.DN, "remove "+dir, err)
		}
		return nil, nil
	}

	var withChildren []*store.Record
	for _, rec := range records {
		if exists(rec.Loc.Dir) {
			withChildren = append(withChildren, rec)
		}
	}
	return withChildren, nil
}

// registerChild parses the record at path, repairs its name and dn line if
// needed, and inserts it into the index.
func (s *Store) registerChild(parent *store.Record, path string, claimed map[string]bool) (*store.Record, error) {
	dir := parent.Loc.Dir
	e, size, err := readRecord(path)
	if err != nil {
		return nil, err
	}
	rdn := e.DN.RDN()
	if rdn == nil {
		return nil, store.NewIOError(parent.DN, "recover "+path, fmt.Errorf("record has an empty dn"))
	}

	expected := parent.DN.Child(rdn)
	stale := !e.DN.Equal(expected)
	if stale {
		logger.Warn("dirtree: repairing dn of %s: %q -> %q", path, e.DN, expected)
		e.DN = expected
	}

	seg := namecodec.Encode(rdn)
	oldSeg := strings.TrimSuffix(filepath.Base(path), namecodec.Extension)
	loc := store.Location{
		File:   filepath.Join(dir, seg+namecodec.Extension),
		Dir:    filepath.Join(dir, seg),
		Length: size,
	}
	claimed[oldSeg] = true
	claimed[seg] = true

	if seg != oldSeg {
		if exists(loc.File) {
			return nil, store.NewIOError(e.DN, "recover "+path, fmt.Errorf("conflicts with %s", loc.File))
		}
		logger.Warn("dirtree: renaming misplaced record %s to %s", path, loc.File)
		if err := os.Rename(path, loc.File); err != nil {
			return nil, store.NewIOError(e.DN, "rename "+path, err)
		}
		oldDir := filepath.Join(dir, oldSeg)
		if exists(oldDir) {
			if exists(loc.Dir) {
				return nil, store.NewIOError(e.DN, "recover "+oldDir, fmt.Errorf("conflicts with %s", loc.Dir))
			}
			if err := os.Rename(oldDir, loc.Dir); err != nil {
				return nil, store.NewIOError(e.DN, "rename "+oldDir, err)
			}
		}
	}

	if stale {
		if loc.Length, err = s.rewrite(loc.File, e); err != nil {
			return nil, err
		}
	}

	rec, err := s.index.Insert(e, loc)
	if err != nil {
		return nil, store.NewIOError(e.DN, "register "+loc.File, err)
	}
	return rec, nil
}

func (s *Store) rewrite(path string, e *entry.Entry) (int64, error) {
	data := ldif.Marshal(e)
	if err := s.writeFile(path, data); err != nil {
		return 0, store.NewIOError(e.DN, "rewrite "+path, err)
	}
	return int64(len(data)), nil
}

func readRecord(path string) (*entry.Entry, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, store.NewIOError(dn.DN{}, "read "+path, err)
	}
	e, err := ldif.Unmarshal(data)
	if err != nil {
		return nil, 0, store.NewIOError(dn.DN{}, "parse "+path, err)
	}
	return e, int64(len(data)), nil
}
