// Package tree holds the in-memory snapshot of a store subtree.
//
// A Node mirrors one key of the store: an ordered list of named, kind-tagged
// values and an ordered list of named child keys. Value names and subkey
// names live in independent namespaces, so a value and a subkey may share a
// name. Snapshots are built fresh on every read and are never mutated once
// handed to another component.
package tree

import (
	"errors"
	"fmt"
)

// ErrDuplicateName is returned by Validate when a node holds two values or
// two subkeys with the same name.
var ErrDuplicateName = errors.New("duplicate name")

// Value is a named, kind-tagged datum in its serialized form.
type Value struct {
	// Name is empty for the key's default value.
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
	// Data is the codec representation; nil means the datum is absent.
	Data *string `json:"value" yaml:"value"`
}

// Node is one key of the store.
type Node struct {
	// Name is the key's name relative to its parent. For the root it is the
	// last segment of the store path and is informational only.
	Name    string  `json:"name" yaml:"name"`
	Values  []Value `json:"values" yaml:"values"`
	SubKeys []*Node `json:"subKeys" yaml:"subKeys"`
}

// NewNode returns an empty node with non-nil slices, so that it encodes as
// empty arrays rather than nulls.
func NewNode(name string) *Node {
	return &Node{
		Name:    name,
		Values:  []Value{},
		SubKeys: []*Node{},
	}
}

// Value returns the value with the given name.
func (n *Node) Value(name string) (Value, bool) {
	for _, v := range n.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// SubKey returns the child node with the given name.
func (n *Node) SubKey(name string) (*Node, bool) {
	for _, c := range n.SubKeys {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ValueNames returns the set of value names held by n.
func (n *Node) ValueNames() map[string]bool {
	names := make(map[string]bool, len(n.Values))
	for _, v := range n.Values {
		names[v.Name] = true
	}
	return names
}

// SubKeyNames returns the set of subkey names held by n.
func (n *Node) SubKeyNames() map[string]bool {
	names := make(map[string]bool, len(n.SubKeys))
	for _, c := range n.SubKeys {
		names[c.Name] = true
	}
	return names
}

// Validate checks the uniqueness invariants of n and all of its descendants.
func (n *Node) Validate() error {
	return n.validate(n.Name)
}

func (n *Node) validate(path string) error {
	seen := make(map[string]bool, len(n.Values))
	for _, v := range n.Values {
		if seen[v.Name] {
			return fmt.Errorf("%w: value %q under %q", ErrDuplicateName, v.Name, path)
		}
		if !v.Kind.Valid() {
			return fmt.Errorf("value %q under %q has invalid kind %d", v.Name, path, int(v.Kind))
		}
		seen[v.Name] = true
	}

	seen = make(map[string]bool, len(n.SubKeys))
	for _, c := range n.SubKeys {
		if c == nil {
			return fmt.Errorf("nil subkey under %q", path)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: subkey %q under %q", ErrDuplicateName, c.Name, path)
		}
		seen[c.Name] = true
		if err := c.validate(path + `\` + c.Name); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of keys (including n) and values in the tree.
func (n *Node) Count() (keys, values int) {
	keys, values = 1, len(n.Values)
	for _, c := range n.SubKeys {
		k, v := c.Count()
		keys += k
		values += v
	}
	return keys, values
}

// Equal reports whether a and b hold the same values and subkeys, compared
// by name at every level. Ordering is ignored and so are the root names,
// which carry no addressing meaning.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Values) != len(b.Values) || len(a.SubKeys) != len(b.SubKeys) {
		return false
	}
	for _, va := range a.Values {
		vb, ok := b.Value(va.Name)
		if !ok || !valueEqual(va, vb) {
			return false
		}
	}
	for _, ca := range a.SubKeys {
		cb, ok := b.SubKey(ca.Name)
		if !ok || !Equal(ca, cb) {
			return false
		}
	}
	return true
}

func valueEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Data == nil || b.Data == nil {
		return a.Data == b.Data
	}
	return *a.Data == *b.Data
}

// StringPtr returns a pointer to s. It is a convenience for building values
// by hand.
func StringPtr(s string) *string {
	return &s
}
