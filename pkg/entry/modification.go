package entry

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchAttribute is returned when a delete targets a missing attribute or value.
	ErrNoSuchAttribute = errors.New("no such attribute")

	// ErrAttributeOrValueExists is returned when an add repeats an existing value.
	ErrAttributeOrValueExists = errors.New("attribute or value exists")

	// ErrInvalidModification is returned for malformed modifications.
	ErrInvalidModification = errors.New("invalid modification")
)

// ModOp is the kind of an attribute modification.
type ModOp int

const (
	// ModAdd adds values to an attribute, creating it if needed.
	ModAdd ModOp = iota

	// ModDelete removes the given values, or the whole attribute when none are given.
	ModDelete

	// ModReplace replaces all values; with no values it removes the attribute.
	ModReplace
)

func (op ModOp) String() string {
	switch op {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return fmt.Sprintf("ModOp(%d)", int(op))
	}
}

// Modification is a single attribute change.
type Modification struct {
	Op        ModOp
	Attribute string
	Values    []string
}

// Apply applies the modifications in order. On error the entry may be
// partially modified; callers apply to a clone.
func (e *Entry) Apply(mods ...Modification) error {
	for _, m := range mods {
		if key(m.Attribute) == "" {
			return fmt.Errorf("%w: empty attribute name", ErrInvalidModification)
		}
		switch m.Op {
		case ModAdd:
			if len(m.Values) == 0 {
				return fmt.Errorf("%w: add of %s without values", ErrInvalidModification, m.Attribute)
			}
			for _, v := range m.Values {
				if e.HasValue(m.Attribute, v) {
					return fmt.Errorf("%w: %s: %s", ErrAttributeOrValueExists, m.Attribute, v)
				}
			}
			e.Add(m.Attribute, m.Values...)
		case ModDelete:
			if !e.Has(m.Attribute) {
				return fmt.Errorf("%w: %s", ErrNoSuchAttribute, m.Attribute)
			}
			for _, v := range m.Values {
				if !e.HasValue(m.Attribute, v) {
					return fmt.Errorf("%w: %s: %s", ErrNoSuchAttribute, m.Attribute, v)
				}
			}
			e.Remove(m.Attribute, m.Values...)
		case ModReplace:
			e.Put(m.Attribute, m.Values...)
		default:
			return fmt.Errorf("%w: unknown operation %v", ErrInvalidModification, m.Op)
		}
	}
	return nil
}
