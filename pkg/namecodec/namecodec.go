// Package namecodec maps naming components to file-system safe path segments.
//
// A segment is the lower-cased text of an RDN in which every character that
// is unsafe in a path or in the record text is percent-encoded as '%' followed
// by two lowercase hex digits. The '+' joining the AVAs of a multi-valued RDN
// is encoded too, so a segment never contains a path-hostile character.
//
// Encoding is one-way in normal operation: stores resolve DN to path by
// encoding forward. DecodeString exists for diagnostics.
package namecodec

import (
	"strings"

	"github.com/marmos91/dittodir/pkg/dn"
)

// Extension is the file extension of entry records in the directory tree.
const Extension = ".ldif"

const hexDigits = "0123456789abcdef"

// mustEscape reports whether b is percent-encoded.
func mustEscape(b byte) bool {
	if b < 0x20 || b == 0x7f {
		return true
	}
	switch b {
	case ' ', '"', '%', '&', '(', ')', '*', '+', '/', ':', ';', '<', '>', '?', '[', '\\', ']', '|':
		return true
	}
	return false
}

// EncodeString lower-cases s and percent-encodes the unsafe characters.
func EncodeString(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if mustEscape(c) {
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Encode returns the path segment of an RDN. AVAs are written in normalized
// order so equal RDNs always map to the same segment.
func Encode(rdn dn.RDN) string {
	avas := rdn.Sorted()
	parts := make([]string, len(avas))
	for i, ava := range avas {
		parts[i] = EncodeString(ava.NormType()) + "=" + EncodeString(ava.Value)
	}
	return strings.Join(parts, "%2b")
}

// EncodeDN returns a single segment for a whole DN, RDNs joined by ','.
// It names the directory of a partition suffix.
func EncodeDN(d dn.DN) string {
	rdns := d.RDNs()
	parts := make([]string, len(rdns))
	for i, rdn := range rdns {
		parts[i] = Encode(rdn)
	}
	return strings.Join(parts, ",")
}

// FileName returns the record file name of an RDN.
func FileName(rdn dn.RDN) string {
	return Encode(rdn) + Extension
}

// DecodeString reverses the percent escapes of a segment. Case is not
// restored. Malformed escapes are kept verbatim.
func DecodeString(segment string) string {
	if !strings.Contains(segment, "%") {
		return segment
	}
	var b strings.Builder
	b.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c == '%' && i+2 < len(segment) && isHex(segment[i+1]) && isHex(segment[i+2]) {
			b.WriteByte(unhex(segment[i+1])<<4 | unhex(segment[i+2]))
			i += 2
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
