package store

import (
	"sort"

	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/namecodec"
)

// Record is one live entry in the PathIndex.
type Record struct {
	// DN is the current name of the entry
	DN dn.DN

	// UUID is the entryUUID of the entry, empty when the entry has none
	UUID string

	// Entry is the cached entry content. Its DN always equals DN.
	Entry *entry.Entry

	// Loc is where the entry lives on disk
	Loc Location

	key      string
	parent   *Record
	children map[string]*Record

	// segments maps the path segment of each child RDN to the child
	segments map[string]*Record
}

// Key returns the normalized DN of the record.
func (r *Record) Key() string {
	return r.key
}

// Parent returns the parent record, or nil for the suffix entry.
func (r *Record) Parent() *Record {
	return r.parent
}

// IsLeaf reports whether the record has no children.
func (r *Record) IsLeaf() bool {
	return len(r.children) == 0
}

// NumChildren returns the number of direct children.
func (r *Record) NumChildren() int {
	return len(r.children)
}

// sortedChildren returns the children ordered by normalized RDN.
func (r *Record) sortedChildren() []*Record {
	if len(r.children) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.children))
	for k := range r.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Record, len(keys))
	for i, k := range keys {
		out[i] = r.children[k]
	}
	return out
}

// PathIndex maps the DNs of a partition to their on-disk locations and keeps
// the parent/child structure needed for subtree operations.
//
// Every live entry has exactly one record, reachable from the suffix record.
// Entries can only be inserted under an existing parent and only leaves can
// be removed, so the structure never holds orphans.
//
// Siblings must also have distinct path segments (see namecodec.Encode): two
// RDNs such as cn=x+sn=y and cn=x\+sn=y are different names but share a
// segment, so the second is refused with ErrAlreadyExists whatever the store.
//
// PathIndex is not safe for concurrent use; stores guard it with their lock.
type PathIndex struct {
	suffix dn.DN
	root   *Record
	byDN   map[string]*Record
	byUUID map[string]*Record
}

// NewPathIndex creates an empty index for the naming context suffix.
func NewPathIndex(suffix dn.DN) *PathIndex {
	return &PathIndex{
		suffix: suffix,
		byDN:   make(map[string]*Record),
		byUUID: make(map[string]*Record),
	}
}

// Suffix returns the naming context root.
func (x *PathIndex) Suffix() dn.DN {
	return x.suffix
}

// Root returns the suffix record, or nil when the partition is empty.
func (x *PathIndex) Root() *Record {
	return x.root
}

// Len returns the number of live entries.
func (x *PathIndex) Len() int {
	return len(x.byDN)
}

// Clear drops every record.
func (x *PathIndex) Clear() {
	x.root = nil
	x.byDN = make(map[string]*Record)
	x.byUUID = make(map[string]*Record)
}

// Get returns the record of d.
func (x *PathIndex) Get(d dn.DN) (*Record, bool) {
	rec, ok := x.byDN[d.Normalized()]
	return rec, ok
}

// Record returns the record of d or an ErrNotFound StoreError.
func (x *PathIndex) Record(d dn.DN) (*Record, error) {
	rec, ok := x.Get(d)
	if !ok {
		return nil, NewNotFoundError(d)
	}
	return rec, nil
}

// Resolve returns the location of d.
func (x *PathIndex) Resolve(d dn.DN) (Location, error) {
	rec, err := x.Record(d)
	if err != nil {
		return Location{}, err
	}
	return rec.Loc, nil
}

// ByUUID returns the record carrying the given entryUUID.
func (x *PathIndex) ByUUID(uuid string) (*Record, bool) {
	rec, ok := x.byUUID[uuid]
	return rec, ok
}

// CheckInsert validates that an entry named d with the given entryUUID can be
// inserted, and returns its parent record (nil for the suffix).
func (x *PathIndex) CheckInsert(d dn.DN, uuid string) (*Record, error) {
	if d.IsZero() {
		return nil, NewError(ErrInvalidArgument, d, "empty DN")
	}
	if !d.IsWithin(x.suffix) {
		return nil, NewOutsideSuffixError(d, x.suffix)
	}
	if _, exists := x.Get(d); exists {
		return nil, NewAlreadyExistsError(d)
	}
	if uuid != "" {
		if _, taken := x.byUUID[uuid]; taken {
			return nil, NewError(ErrAlreadyExists, d, "entryUUID "+uuid+" is already in use")
		}
	}
	if d.Equal(x.suffix) {
		return nil, nil
	}
	parent, ok := x.Get(d.Parent())
	if !ok {
		return nil, NewNoSuchParentError(d)
	}
	if err := parent.checkSegment(d, nil); err != nil {
		return nil, err
	}
	return parent, nil
}

// checkSegment fails when a child of r other than self already uses the path
// segment of d's RDN.
func (r *Record) checkSegment(d dn.DN, self *Record) error {
	other, taken := r.segments[namecodec.Encode(d.RDN())]
	if !taken || other == self {
		return nil
	}
	return NewError(ErrAlreadyExists, d, "name collides with sibling "+other.DN.String())
}

func (r *Record) linkChild(child *Record) {
	if r.children == nil {
		r.children = make(map[string]*Record)
		r.segments = make(map[string]*Record)
	}
	r.children[child.DN.RDN().Normalized()] = child
	r.segments[namecodec.Encode(child.DN.RDN())] = child
	r.Loc.Leaf = false
}

func (r *Record) unlinkChild(child *Record) {
	delete(r.children, child.DN.RDN().Normalized())
	delete(r.segments, namecodec.Encode(child.DN.RDN()))
	r.Loc.Leaf = r.IsLeaf()
}

// Insert registers e at loc. The record takes ownership of e.
func (x *PathIndex) Insert(e *entry.Entry, loc Location) (*Record, error) {
	uuid := e.First(entry.AttrEntryUUID)
	parent, err := x.CheckInsert(e.DN, uuid)
	if err != nil {
		return nil, err
	}

	loc.Leaf = true
	rec := &Record{
		DN:     e.DN,
		UUID:   uuid,
		Entry:  e,
		Loc:    loc,
		key:    e.DN.Normalized(),
		parent: parent,
	}
	if parent == nil {
		x.root = rec
	} else {
		parent.linkChild(rec)
	}
	x.byDN[rec.key] = rec
	if uuid != "" {
		x.byUUID[uuid] = rec
	}
	return rec, nil
}

// CheckRemove validates that d can be removed and returns its record.
func (x *PathIndex) CheckRemove(d dn.DN) (*Record, error) {
	rec, err := x.Record(d)
	if err != nil {
		return nil, err
	}
	if !rec.IsLeaf() {
		return nil, NewError(ErrNotAllowedOnNonLeaf, d, "entry has children")
	}
	return rec, nil
}

// Remove unregisters the leaf entry d and returns its former record.
func (x *PathIndex) Remove(d dn.DN) (*Record, error) {
	rec, err := x.CheckRemove(d)
	if err != nil {
		return nil, err
	}
	if rec.parent == nil {
		x.root = nil
	} else {
		rec.parent.unlinkChild(rec)
	}
	delete(x.byDN, rec.key)
	if rec.UUID != "" {
		delete(x.byUUID, rec.UUID)
	}
	rec.parent = nil
	return rec, nil
}

// SetUUID re-registers rec under a new entryUUID.
func (x *PathIndex) SetUUID(rec *Record, uuid string) error {
	if uuid == rec.UUID {
		return nil
	}
	if uuid != "" {
		if other, taken := x.byUUID[uuid]; taken && other != rec {
			return NewError(ErrAlreadyExists, rec.DN, "entryUUID "+uuid+" is already in use")
		}
	}
	if rec.UUID != "" {
		delete(x.byUUID, rec.UUID)
	}
	rec.UUID = uuid
	if uuid != "" {
		x.byUUID[uuid] = rec
	}
	return nil
}

// CheckRelocation validates moving the subtree rooted at oldDN to newDN.
//
// newDN may differ from oldDN in its RDN, its parent or both. A newDN equal
// to oldDN (for instance a change of case) is accepted.
func (x *PathIndex) CheckRelocation(oldDN, newDN dn.DN) (*Relocation, error) {
	root, err := x.Record(oldDN)
	if err != nil {
		return nil, err
	}
	if root.parent == nil {
		return nil, NewError(ErrInvalidArgument, oldDN, "the suffix entry cannot be renamed or moved")
	}
	switch {
	case newDN.IsZero():
		return nil, NewError(ErrInvalidArgument, newDN, "empty DN")
	case newDN.Equal(x.suffix):
		return nil, NewAlreadyExistsError(newDN)
	case !newDN.IsDescendantOf(x.suffix):
		return nil, NewOutsideSuffixError(newDN, x.suffix)
	}

	same := newDN.Equal(oldDN)
	if !same && newDN.IsWithin(oldDN) {
		return nil, NewError(ErrInvalidArgument, newDN, "an entry cannot be moved beneath itself")
	}
	parent, ok := x.Get(newDN.Parent())
	if !ok {
		return nil, NewNoSuchParentError(newDN)
	}
	if !same {
		if _, exists := x.Get(newDN); exists {
			return nil, NewAlreadyExistsError(newDN)
		}
	}
	if err := parent.checkSegment(newDN, root); err != nil {
		return nil, err
	}
	return &Relocation{Root: root, OldDN: root.DN, NewDN: newDN, NewParent: parent}, nil
}

// RelocateSubtree renames oldDN to newDN and every descendant by substituting
// the oldDN prefix with newDN. fn, when not nil, is called for each relocated
// record, parents first, after the record has been re-keyed.
func (x *PathIndex) RelocateSubtree(oldDN, newDN dn.DN, fn func(rec *Record, oldDN dn.DN)) error {
	rel, err := x.CheckRelocation(oldDN, newDN)
	if err != nil {
		return err
	}

	var nodes []*Record
	x.walkRecords(rel.Root, ScopeSubtree, func(rec *Record) error {
		nodes = append(nodes, rec)
		return nil
	})

	rel.Root.parent.unlinkChild(rel.Root)
	for _, rec := range nodes {
		delete(x.byDN, rec.key)
	}

	for _, rec := range nodes {
		prev := rec.DN
		moved, err := prev.Rebase(rel.OldDN, rel.NewDN)
		if err != nil {
			// Unreachable: every node lies within the relocated root.
			panic(err)
		}
		rec.DN = moved
		rec.key = moved.Normalized()
		rec.Entry.DN = moved
		x.byDN[rec.key] = rec
		if fn != nil {
			fn(rec, prev)
		}
	}

	rel.NewParent.linkChild(rel.Root)
	rel.Root.parent = rel.NewParent
	return nil
}

// Children returns the direct children of d ordered by normalized RDN.
func (x *PathIndex) Children(d dn.DN) ([]*Record, error) {
	rec, err := x.Record(d)
	if err != nil {
		return nil, err
	}
	return rec.sortedChildren(), nil
}

// Walk visits the records selected by base and scope, parents first.
func (x *PathIndex) Walk(base dn.DN, scope Scope, fn func(*Record) error) error {
	rec, err := x.Record(base)
	if err != nil {
		return err
	}
	return x.walkRecords(rec, scope, fn)
}

// Records returns every record, parents first.
func (x *PathIndex) Records() []*Record {
	out := make([]*Record, 0, len(x.byDN))
	if x.root == nil {
		return out
	}
	x.walkRecords(x.root, ScopeSubtree, func(rec *Record) error {
		out = append(out, rec)
		return nil
	})
	return out
}

// walkRecords is an iterative pre-order traversal with an explicit stack.
func (x *PathIndex) walkRecords(base *Record, scope Scope, fn func(*Record) error) error {
	switch scope {
	case ScopeBase:
		return fn(base)
	case ScopeOneLevel:
		for _, child := range base.sortedChildren() {
			if err := fn(child); err != nil {
				return err
			}
		}
		return nil
	}

	stack := []*Record{base}
	for len(stack) > 0 {
		rec := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(rec); err != nil {
			return err
		}
		children := rec.sortedChildren()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}
