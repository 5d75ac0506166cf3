// Package ldif serializes entries to and from LDIF content records
// (RFC 2849).
//
// Marshal writes a record as a "dn:" line, one "attr: value" line per value
// and a terminating blank line. Values that are not SAFE-STRINGs are written
// base64 encoded. The derived entryDN attribute is never written.
//
// Reader scans a stream of records and reports the byte range each record
// occupies, which is what the single-file store indexes.
package ldif

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
)

// LDIF errors.
var (
	ErrInvalidLDIF   = errors.New("invalid LDIF")
	ErrMissingDN     = errors.New("missing dn line")
	ErrInvalidBase64 = errors.New("invalid base64 value")
	ErrNoRecord      = errors.New("no LDIF record")
)

// Marshal serializes e as one LDIF record terminated by a blank line.
// The output depends only on the entry's DN and attributes, so equal entries
// with the same attribute order always produce the same bytes.
func Marshal(e *entry.Entry) []byte {
	var buf bytes.Buffer
	writeLine(&buf, "dn", e.DN.String())
	for _, attr := range e.Attributes() {
		if strings.EqualFold(attr.Name, entry.AttrEntryDN) {
			continue
		}
		for _, v := range attr.Values {
			writeLine(&buf, attr.Name, v)
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Encode writes the LDIF record of e to w.
func Encode(w io.Writer, e *entry.Entry) (int, error) {
	return w.Write(Marshal(e))
}

// MarshalledLen returns len(Marshal(e)).
func MarshalledLen(e *entry.Entry) int64 {
	return int64(len(Marshal(e)))
}

func writeLine(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	if needsBase64Encoding(value) {
		buf.WriteString(":: ")
		buf.WriteString(base64.StdEncoding.EncodeToString([]byte(value)))
	} else {
		buf.WriteString(": ")
		buf.WriteString(value)
	}
	buf.WriteByte('\n')
}

// needsBase64Encoding reports whether v is not a SAFE-STRING: it starts with
// a space, colon or less-than sign, ends with a space, or contains NUL, CR,
// LF or any byte outside printable ASCII.
func needsBase64Encoding(v string) bool {
	if v == "" {
		return false
	}
	switch v[0] {
	case ' ', ':', '<':
		return true
	}
	if v[len(v)-1] == ' ' {
		return true
	}
	for i := 0; i < len(v); i++ {
		if c := v[i]; c < 0x20 || c > 0x7e {
			return true
		}
	}
	return false
}

// Unmarshal parses exactly one LDIF record. Leading comments, blank lines
// and a version line are accepted.
func Unmarshal(data []byte) (*entry.Entry, error) {
	r := NewReader(bytes.NewReader(data))
	rec, err := r.Next()
	if err == io.EOF {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	if _, err := r.Next(); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%w: more than one record", ErrInvalidLDIF)
		}
		return nil, err
	}
	return rec.Entry, nil
}

// ReadAll parses every record of r.
func ReadAll(r io.Reader) ([]*entry.Entry, error) {
	lr := NewReader(r)
	var entries []*entry.Entry
	for {
		rec, err := lr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, rec.Entry)
	}
}

// Record is one parsed record and the byte range it occupies in the stream.
//
// The range starts right after the previous record and ends after the blank
// line that terminates this one, so leading comments and blank lines belong
// to the record that follows them. Terminated is false when the stream ended
// before the terminating blank line.
type Record struct {
	Entry      *entry.Entry
	Offset     int64
	Length     int64
	Terminated bool
}

// Reader reads LDIF records sequentially, tracking byte offsets.
type Reader struct {
	br     *bufio.Reader
	offset int64
	line   int
}

// NewReader creates a Reader starting at offset 0.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next record, or io.EOF when no further record exists.
// Trailing blank lines and comments after the last record are consumed
// without producing a record.
func (r *Reader) Next() (*Record, error) {
	start := r.offset
	var lines []string
	inComment := false

	finish := func(terminated bool) (*Record, error) {
		e, err := parseRecord(lines)
		if err != nil {
			return nil, fmt.Errorf("record at offset %d (line %d): %w", start, r.line, err)
		}
		return &Record{
			Entry:      e,
			Offset:     start,
			Length:     r.offset - start,
			Terminated: terminated,
		}, nil
	}

	for {
		raw, err := r.br.ReadString('\n')
		if len(raw) > 0 {
			r.offset += int64(len(raw))
			r.line++
			line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")

			switch {
			case line == "":
				inComment = false
				if len(lines) == 0 {
					break
				}
				if len(lines) == 1 && isVersionLine(lines[0]) {
					lines = nil
					break
				}
				return finish(true)
			case line[0] == '#':
				inComment = true
			case line[0] == ' ':
				if inComment {
					break
				}
				if len(lines) == 0 {
					return nil, fmt.Errorf("%w: continuation line without a preceding line at line %d", ErrInvalidLDIF, r.line)
				}
				lines[len(lines)-1] += line[1:]
			default:
				inComment = false
				lines = append(lines, line)
			}
		}

		if err == io.EOF {
			if len(lines) == 0 || (len(lines) == 1 && isVersionLine(lines[0])) {
				return nil, io.EOF
			}
			return finish(false)
		}
		if err != nil {
			return nil, err
		}
	}
}

func isVersionLine(line string) bool {
	return len(line) >= 8 && strings.EqualFold(line[:8], "version:")
}

func parseRecord(lines []string) (*entry.Entry, error) {
	if len(lines) > 1 && isVersionLine(lines[0]) {
		lines = lines[1:]
	}

	name, value, err := splitLine(lines[0])
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(name, "dn") {
		return nil, fmt.Errorf("%w: first line is %q", ErrMissingDN, name)
	}
	d, err := dn.Parse(value)
	if err != nil {
		return nil, err
	}

	e := entry.New(d)
	for _, line := range lines[1:] {
		name, value, err := splitLine(line)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(name, "changetype") {
			return nil, fmt.Errorf("%w: change records are not supported", ErrInvalidLDIF)
		}
		e.Add(name, value)
	}
	return e, nil
}

func splitLine(line string) (string, string, error) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", fmt.Errorf("%w: missing attribute separator in %q", ErrInvalidLDIF, line)
	}
	name := strings.TrimSpace(line[:i])
	rest := line[i+1:]

	switch {
	case strings.HasPrefix(rest, ":"):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[1:]))
		if err != nil {
			return "", "", fmt.Errorf("%w: %s: %v", ErrInvalidBase64, name, err)
		}
		return name, string(decoded), nil
	case strings.HasPrefix(rest, "<"):
		return "", "", fmt.Errorf("%w: URL values are not supported (%s)", ErrInvalidLDIF, name)
	default:
		return name, strings.TrimLeft(rest, " "), nil
	}
}
