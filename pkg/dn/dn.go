// Package dn implements distinguished names: the naming hierarchy of a
// directory partition.
//
// A DN is an ordered list of RDNs. The string form (RFC 4514) lists the
// leaf-most RDN first and the naming context root last, e.g.
// "uid=alice,ou=people,dc=example,dc=com"; the same order is used internally.
//
// Comparison never uses the string form directly. Normalized renders the
// comparison key: attribute types lower-cased, values lower-cased with
// insignificant spaces collapsed, and the AVAs of a multi-valued RDN sorted.
package dn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidDN is returned (wrapped) for any DN or RDN that fails to parse.
var ErrInvalidDN = errors.New("invalid DN")

// AVA is one attribute type and value pair of an RDN.
// Value holds the unescaped value.
type AVA struct {
	Type  string
	Value string
}

// String renders the AVA with its value escaped.
func (a AVA) String() string {
	return a.Type + "=" + EscapeValue(a.Value)
}

// NormType returns the lower-cased attribute type.
func (a AVA) NormType() string {
	return strings.ToLower(strings.TrimSpace(a.Type))
}

// Equal reports whether both AVAs name the same type with equivalent values.
func (a AVA) Equal(b AVA) bool {
	return a.NormType() == b.NormType() && NormalizeValue(a.Value) == NormalizeValue(b.Value)
}

func (a AVA) normalized() string {
	return a.NormType() + "=" + EscapeValue(NormalizeValue(a.Value))
}

// NormalizeValue lower-cases a value, trims leading and trailing spaces and
// collapses inner runs of spaces to a single space.
func NormalizeValue(v string) string {
	v = strings.ToLower(v)
	var b strings.Builder
	b.Grow(len(v))
	pendingSpace := false
	for _, r := range v {
		if r == ' ' {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RDN is a relative distinguished name: one AVA, or several joined by '+'.
type RDN []AVA

// NewRDN builds a single-valued RDN.
func NewRDN(attrType, value string) RDN {
	return RDN{{Type: attrType, Value: value}}
}

// IsMultiValued reports whether the RDN has more than one AVA.
func (r RDN) IsMultiValued() bool {
	return len(r) > 1
}

// String renders the RDN in RFC 4514 form, AVAs in their original order.
func (r RDN) String() string {
	parts := make([]string, len(r))
	for i, ava := range r {
		parts[i] = ava.String()
	}
	return strings.Join(parts, "+")
}

// Sorted returns a copy of the AVAs in normalized order.
func (r RDN) Sorted() []AVA {
	avas := make([]AVA, len(r))
	copy(avas, r)
	sort.SliceStable(avas, func(i, j int) bool {
		return avas[i].normalized() < avas[j].normalized()
	})
	return avas
}

// Normalized returns the comparison key of the RDN.
func (r RDN) Normalized() string {
	sorted := r.Sorted()
	parts := make([]string, len(sorted))
	for i, ava := range sorted {
		parts[i] = ava.normalized()
	}
	return strings.Join(parts, "+")
}

// Equal compares two RDNs regardless of AVA order, case and insignificant spaces.
func (r RDN) Equal(o RDN) bool {
	if len(r) != len(o) {
		return false
	}
	return r.Normalized() == o.Normalized()
}

// Values returns the values the RDN carries for the given attribute type.
func (r RDN) Values(attrType string) []string {
	want := strings.ToLower(attrType)
	var values []string
	for _, ava := range r {
		if ava.NormType() == want {
			values = append(values, ava.Value)
		}
	}
	return values
}

// DN is a distinguished name. The zero value is the empty (root) DN.
type DN struct {
	rdns []RDN
}

// New builds a DN from RDNs given leaf first.
func New(rdns ...RDN) DN {
	if len(rdns) == 0 {
		return DN{}
	}
	cp := make([]RDN, len(rdns))
	copy(cp, rdns)
	return DN{rdns: cp}
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) DN {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RDNs returns a copy of the RDNs, leaf first.
func (d DN) RDNs() []RDN {
	cp := make([]RDN, len(d.rdns))
	copy(cp, d.rdns)
	return cp
}

// Depth returns the number of RDNs.
func (d DN) Depth() int {
	return len(d.rdns)
}

// IsZero reports whether d is the empty DN.
func (d DN) IsZero() bool {
	return len(d.rdns) == 0
}

// RDN returns the leaf-most RDN, or nil for the empty DN.
func (d DN) RDN() RDN {
	if d.IsZero() {
		return nil
	}
	return d.rdns[0]
}

// Parent returns the DN without its leaf-most RDN.
func (d DN) Parent() DN {
	if len(d.rdns) <= 1 {
		return DN{}
	}
	return DN{rdns: d.rdns[1:]}
}

// Child returns the DN of the entry named rdn directly beneath d.
func (d DN) Child(rdn RDN) DN {
	rdns := make([]RDN, 0, len(d.rdns)+1)
	rdns = append(rdns, rdn)
	rdns = append(rdns, d.rdns...)
	return DN{rdns: rdns}
}

// String renders the DN in RFC 4514 form.
func (d DN) String() string {
	parts := make([]string, len(d.rdns))
	for i, rdn := range d.rdns {
		parts[i] = rdn.String()
	}
	return strings.Join(parts, ",")
}

// Normalized returns the comparison key of the DN.
func (d DN) Normalized() string {
	parts := make([]string, len(d.rdns))
	for i, rdn := range d.rdns {
		parts[i] = rdn.Normalized()
	}
	return strings.Join(parts, ",")
}

// Equal reports whether both DNs name the same entry.
func (d DN) Equal(o DN) bool {
	if len(d.rdns) != len(o.rdns) {
		return false
	}
	for i := range d.rdns {
		if !d.rdns[i].Equal(o.rdns[i]) {
			return false
		}
	}
	return true
}

// IsWithin reports whether d equals base or lies beneath it.
func (d DN) IsWithin(base DN) bool {
	offset := len(d.rdns) - len(base.rdns)
	if offset < 0 {
		return false
	}
	for i := range base.rdns {
		if !d.rdns[offset+i].Equal(base.rdns[i]) {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether d lies strictly beneath ancestor.
func (d DN) IsDescendantOf(ancestor DN) bool {
	return len(d.rdns) > len(ancestor.rdns) && d.IsWithin(ancestor)
}

// Rebase replaces the oldBase suffix of d with newBase, keeping the RDNs
// relative to oldBase unchanged.
func (d DN) Rebase(oldBase, newBase DN) (DN, error) {
	if !d.IsWithin(oldBase) {
		return DN{}, fmt.Errorf("%w: %q is not within %q", ErrInvalidDN, d.String(), oldBase.String())
	}
	rel := d.rdns[:len(d.rdns)-len(oldBase.rdns)]
	rdns := make([]RDN, 0, len(rel)+len(newBase.rdns))
	rdns = append(rdns, rel...)
	rdns = append(rdns, newBase.rdns...)
	return DN{rdns: rdns}, nil
}

// EscapeValue escapes an attribute value for use in a DN string (RFC 4514).
// Control characters are written as \xx hex pairs.
func EscapeValue(v string) string {
	if v == "" {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 4)
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '"' || c == '+' || c == ',' || c == ';' || c == '<' || c == '>' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case i == 0 && (c == '#' || c == ' '):
			b.WriteByte('\\')
			b.WriteByte(c)
		case i == len(v)-1 && c == ' ':
			b.WriteString(`\ `)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\%02x", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
