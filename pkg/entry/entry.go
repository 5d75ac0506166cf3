// Package entry defines the directory entry model: a DN plus a set of
// multi-valued attributes.
package entry

import (
	"sort"
	"strings"

	"github.com/marmos91/dittodir/pkg/dn"
)

// Server-assigned and derived attribute names.
const (
	// AttrEntryUUID is the immutable identifier assigned when the entry is created.
	AttrEntryUUID = "entryUUID"

	// AttrEntryCSN is the change sequence number advanced on every mutation.
	AttrEntryCSN = "entryCSN"

	// AttrEntryDN is derived on lookup and never persisted.
	AttrEntryDN = "entryDN"

	// AttrObjectClass lists the object classes of the entry.
	AttrObjectClass = "objectClass"
)

// Attribute is one named attribute with its values.
type Attribute struct {
	Name   string
	Values []string
}

// Entry is a directory entry.
//
// Attribute names are matched case-insensitively; the spelling used when an
// attribute was first set is kept. Values are compared exactly, except for
// naming values which follow DN matching rules. Attributes keep their
// insertion order so serialization is deterministic.
type Entry struct {
	DN dn.DN

	attrs map[string]*Attribute
	order []string
}

// New creates an empty entry named d.
func New(d dn.DN) *Entry {
	return &Entry{
		DN:    d,
		attrs: make(map[string]*Attribute),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Len returns the number of attributes.
func (e *Entry) Len() int {
	return len(e.order)
}

// Has reports whether the attribute is present with at least one value.
func (e *Entry) Has(name string) bool {
	a, ok := e.attrs[key(name)]
	return ok && len(a.Values) > 0
}

// Get returns the values of an attribute, or nil. The slice must not be modified.
func (e *Entry) Get(name string) []string {
	if a, ok := e.attrs[key(name)]; ok {
		return a.Values
	}
	return nil
}

// First returns the first value of an attribute, or "".
func (e *Entry) First(name string) string {
	values := e.Get(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HasValue reports whether the attribute holds exactly the value v.
func (e *Entry) HasValue(name, v string) bool {
	return indexOf(e.Get(name), v) >= 0
}

// HasNamingValue reports whether the entry holds a value matching ava under
// DN matching rules (case and redundant spaces ignored).
func (e *Entry) HasNamingValue(ava dn.AVA) bool {
	return namingIndex(e.Get(ava.Type), ava.Value) >= 0
}

// RemoveNamingValue removes the values matching ava under DN matching rules
// and returns how many were removed.
func (e *Entry) RemoveNamingValue(ava dn.AVA) int {
	k := key(ava.Type)
	a, ok := e.attrs[k]
	if !ok {
		return 0
	}
	removed := 0
	for i := namingIndex(a.Values, ava.Value); i >= 0; i = namingIndex(a.Values, ava.Value) {
		a.Values = append(a.Values[:i], a.Values[i+1:]...)
		removed++
	}
	if len(a.Values) == 0 {
		e.drop(k)
	}
	return removed
}

// Put replaces all values of an attribute. Repeated values are kept once.
// Putting no values removes it.
func (e *Entry) Put(name string, values ...string) {
	k := key(name)
	if len(values) == 0 {
		e.drop(k)
		return
	}
	cp := make([]string, 0, len(values))
	for _, v := range values {
		if indexOf(cp, v) < 0 {
			cp = append(cp, v)
		}
	}
	if a, ok := e.attrs[k]; ok {
		a.Values = cp
		return
	}
	e.ensure()
	e.attrs[k] = &Attribute{Name: strings.TrimSpace(name), Values: cp}
	e.order = append(e.order, k)
}

// Add appends values that are not already present and returns how many were added.
func (e *Entry) Add(name string, values ...string) int {
	if len(values) == 0 {
		return 0
	}
	k := key(name)
	a, ok := e.attrs[k]
	if !ok {
		e.ensure()
		a = &Attribute{Name: strings.TrimSpace(name)}
		e.attrs[k] = a
		e.order = append(e.order, k)
	}
	added := 0
	for _, v := range values {
		if indexOf(a.Values, v) >= 0 {
			continue
		}
		a.Values = append(a.Values, v)
		added++
	}
	if len(a.Values) == 0 {
		e.drop(k)
	}
	return added
}

// Remove deletes the given values of an attribute, or the whole attribute when
// no values are given. It returns how many values were removed. An attribute
// left without values is dropped.
func (e *Entry) Remove(name string, values ...string) int {
	k := key(name)
	a, ok := e.attrs[k]
	if !ok {
		return 0
	}
	if len(values) == 0 {
		n := len(a.Values)
		e.drop(k)
		return n
	}
	removed := 0
	for _, v := range values {
		if i := indexOf(a.Values, v); i >= 0 {
			a.Values = append(a.Values[:i], a.Values[i+1:]...)
			removed++
		}
	}
	if len(a.Values) == 0 {
		e.drop(k)
	}
	return removed
}

// Attributes returns a copy of all attributes in insertion order.
func (e *Entry) Attributes() []Attribute {
	out := make([]Attribute, 0, len(e.order))
	for _, k := range e.order {
		a := e.attrs[k]
		values := make([]string, len(a.Values))
		copy(values, a.Values)
		out = append(out, Attribute{Name: a.Name, Values: values})
	}
	return out
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := &Entry{
		DN:    e.DN,
		attrs: make(map[string]*Attribute, len(e.attrs)),
		order: make([]string, len(e.order)),
	}
	copy(c.order, e.order)
	for k, a := range e.attrs {
		values := make([]string, len(a.Values))
		copy(values, a.Values)
		c.attrs[k] = &Attribute{Name: a.Name, Values: values}
	}
	return c
}

// Equal reports whether both entries have the same DN and the same attribute
// values, ignoring value order and the listed attribute names.
func (e *Entry) Equal(o *Entry, ignore ...string) bool {
	if e == nil || o == nil {
		return e == o
	}
	if !e.DN.Equal(o.DN) {
		return false
	}
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[key(name)] = true
	}
	count := func(x *Entry) int {
		n := 0
		for k := range x.attrs {
			if !skip[k] {
				n++
			}
		}
		return n
	}
	if count(e) != count(o) {
		return false
	}
	for k, a := range e.attrs {
		if skip[k] {
			continue
		}
		b, ok := o.attrs[k]
		if !ok || !sameValues(a.Values, b.Values) {
			return false
		}
	}
	return true
}

// NamingValuesPresent reports whether every AVA of the entry's RDN is present
// as an attribute value.
func (e *Entry) NamingValuesPresent() bool {
	for _, ava := range e.DN.RDN() {
		if !e.HasNamingValue(ava) {
			return false
		}
	}
	return true
}

func (e *Entry) ensure() {
	if e.attrs == nil {
		e.attrs = make(map[string]*Attribute)
	}
}

func (e *Entry) drop(k string) {
	if _, ok := e.attrs[k]; !ok {
		return
	}
	delete(e.attrs, k)
	for i, name := range e.order {
		if name == k {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func indexOf(values []string, v string) int {
	for i, existing := range values {
		if existing == v {
			return i
		}
	}
	return -1
}

func namingIndex(values []string, v string) int {
	norm := dn.NormalizeValue(v)
	for i, existing := range values {
		if dn.NormalizeValue(existing) == norm {
			return i
		}
	}
	return -1
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
