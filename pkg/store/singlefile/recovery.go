package singlefile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/ldif"
	"github.com/marmos91/dittodir/pkg/store"
)

// recover parses the partition file from offset 0. Each record's start
// offset and byte length become its location, and its DN is taken from the
// record itself. Records are registered parents first regardless of their
// position in the file.
//
// Bytes after the last record (blank lines, comments) are truncated and a
// final record missing its blank-line terminator gets one, so that the file
// length equals the sum of the record lengths afterwards.
func (s *Store) recover(ctx context.Context) error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return store.NewIOError(s.suffix, "seek partition file", err)
	}
	info, err := s.file.Stat()
	if err != nil {
		return store.NewIOError(s.suffix, "stat partition file", err)
	}
	fileSize := info.Size()

	// ========================================================================
	// Step 1: Scan records sequentially
	// ========================================================================

	r := ldif.NewReader(bufio.NewReaderSize(s.file, s.cfg.CopyBufferSize))
	var records []*ldif.Record
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return store.NewIOError(s.suffix, "parse "+s.cfg.Path, err)
		}
		records = append(records, rec)
	}

	var end int64
	if n := len(records); n > 0 {
		end = records[n-1].Offset + records[n-1].Length
	}

	// ========================================================================
	// Step 2: Normalize the end of the file
	// ========================================================================

	if end < fileSize {
		logger.Warn("singlefile: truncating %d trailing bytes of %s", fileSize-end, s.cfg.Path)
		if err := s.file.Truncate(end); err != nil {
			return store.NewIOError(s.suffix, "truncate partition file", err)
		}
	}
	if n := len(records); n > 0 && !records[n-1].Terminated {
		last := records[n-1]
		terminator, err := s.terminatorFor(end)
		if err != nil {
			return err
		}
		logger.Warn("singlefile: terminating last record %s of %s", last.Entry.DN, s.cfg.Path)
		if _, err := s.file.WriteAt(terminator, end); err != nil {
			return store.NewIOError(last.Entry.DN, "terminate last record", err)
		}
		last.Length += int64(len(terminator))
		end += int64(len(terminator))
	}
	s.size = end

	// ========================================================================
	// Step 3: Register records, parents first
	// ========================================================================

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Entry.DN.Depth() < records[j].Entry.DN.Depth()
	})
	for _, rec := range records {
		loc := store.Location{Offset: rec.Offset, Length: rec.Length}
		if _, err := s.index.Insert(rec.Entry, loc); err != nil {
			return store.NewIOError(rec.Entry.DN, fmt.Sprintf("register record at offset %d", rec.Offset), err)
		}
	}
	return nil
}

// terminatorFor returns the bytes that close a record ending at end: a blank
// line, preceded by a newline when the last line itself is unterminated.
func (s *Store) terminatorFor(end int64) ([]byte, error) {
	if end == 0 {
		return nil, nil
	}
	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, end-1); err != nil && err != io.EOF {
		return nil, store.NewIOError(dn.DN{}, "read partition file", err)
	}
	if last[0] == '\n' {
		return []byte("\n"), nil
	}
	return []byte("\n\n"), nil
}
