package singlefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/store"
)

// replaceRange replaces the oldLen bytes at off with data, shifting the tail
// of the file by the length difference, and moves the recorded offset of
// every record located after off by the same amount.
//
// With rewriting disabled only the offsets change.
func (s *Store) replaceRange(off, oldLen int64, data []byte) error {
	newLen := int64(len(data))
	delta := newLen - oldLen

	if s.rewriting {
		if delta != 0 {
			if err := s.moveTail(off+oldLen, off+newLen); err != nil {
				return err
			}
		}
		if newLen > 0 {
			if _, err := s.file.WriteAt(data, off); err != nil {
				return fmt.Errorf("write at %d: %w", off, err)
			}
		}
		if delta < 0 {
			if err := s.file.Truncate(s.size + delta); err != nil {
				return fmt.Errorf("truncate to %d: %w", s.size+delta, err)
			}
		}
		if s.cfg.SyncWrites {
			if err := s.file.Sync(); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
		}
	} else {
		s.dirty = true
	}

	if delta != 0 {
		for _, rec := range s.index.Records() {
			if rec.Loc.Offset > off {
				rec.Loc.Offset += delta
			}
		}
	}
	s.size += delta
	return nil
}

// moveTail copies the bytes in [from, size) so they start at to. Left shifts
// copy front to back, right shifts back to front, so the source is never
// overwritten before it is read.
func (s *Store) moveTail(from, to int64) error {
	n := s.size - from
	if n <= 0 || from == to {
		return nil
	}
	buf := make([]byte, min(int64(s.cfg.CopyBufferSize), n))

	copyChunk := func(pos int64, k int64) error {
		chunk := buf[:k]
		got, err := s.file.ReadAt(chunk, from+pos)
		if err != nil && !(err == io.EOF && int64(got) == k) {
			return fmt.Errorf("read at %d: %w", from+pos, err)
		}
		if _, err := s.file.WriteAt(chunk, to+pos); err != nil {
			return fmt.Errorf("write at %d: %w", to+pos, err)
		}
		return nil
	}

	if to < from {
		for pos := int64(0); pos < n; {
			k := min(int64(len(buf)), n-pos)
			if err := copyChunk(pos, k); err != nil {
				return err
			}
			pos += k
		}
		return nil
	}

	for pos := n; pos > 0; {
		k := min(int64(len(buf)), pos)
		pos -= k
		if err := copyChunk(pos, k); err != nil {
			return err
		}
	}
	return nil
}

// flush serializes every live entry, in file order, into a temporary file
// that replaces the partition file and becomes the open handle. Offsets and
// lengths are recomputed. On failure the partition file and the index are
// left untouched.
func (s *Store) flush() error {
	records := s.index.Records()
	sortByOffset(records)

	dir, base := filepath.Split(s.cfg.Path)
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return store.NewIOError(s.suffix, "create temporary file", err)
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return store.NewIOError(s.suffix, op, err)
	}

	w := bufio.NewWriterSize(tmp, s.cfg.CopyBufferSize)
	locs := make([]store.Location, len(records))
	var off int64
	for i, rec := range records {
		data := ldif.Marshal(rec.Entry)
		if _, err := w.Write(data); err != nil {
			return fail("write temporary file", err)
		}
		locs[i] = rec.Loc
		locs[i].Offset = off
		locs[i].Length = int64(len(data))
		off += int64(len(data))
	}
	if err := w.Flush(); err != nil {
		return fail("write temporary file", err)
	}
	if s.cfg.SyncWrites {
		if err := tmp.Sync(); err != nil {
			return fail("sync temporary file", err)
		}
	}
	if err := tmp.Chmod(s.cfg.FileMode); err != nil {
		return fail("chmod temporary file", err)
	}
	// The temporary file was created read-write and becomes the partition
	// file handle, so nothing can fail once it has been renamed into place.
	if err := os.Rename(tmpName, s.cfg.Path); err != nil {
		return fail("replace partition file", err)
	}
	_ = s.file.Close()
	s.file = tmp

	for i, rec := range records {
		rec.Loc = locs[i]
	}
	s.size = off
	s.dirty = false
	return nil
}

// sortByOffset orders records by their position in the file.
func sortByOffset(records []*store.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Loc.Offset < records[j].Loc.Offset
	})
}
