package sync

import (
	"fmt"

	"github.com/regsync/regsync/internal/codec"
	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

// Read returns a snapshot of the subtree rooted at k. The root node is named
// after the last segment of k's path.
func Read(k store.Key) (*tree.Node, error) {
	segments := store.Split(k.Path())
	name := ""
	if len(segments) > 0 {
		name = segments[len(segments)-1]
	}
	return readKey(k, name)
}

func readKey(k store.Key, name string) (*tree.Node, error) {
	node := tree.NewNode(name)

	valueNames, err := k.ValueNames()
	if err != nil {
		return nil, fmt.Errorf("failed to list values of %s: %w", k.Path(), err)
	}
	for _, vn := range valueNames {
		v, kind, err := k.GetValue(vn)
		if err != nil {
			return nil, fmt.Errorf("failed to get value %q of %s: %w", vn, k.Path(), err)
		}
		rep, err := codec.Serialize(kind, v)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize value %q of %s: %w", vn, k.Path(), err)
		}
		node.Values = append(node.Values, tree.Value{Name: vn, Kind: kind, Data: rep})
	}

	subKeyNames, err := k.SubKeyNames()
	if err != nil {
		return nil, fmt.Errorf("failed to list subkeys of %s: %w", k.Path(), err)
	}
	for _, sn := range subKeyNames {
		child, err := readSubKey(k, sn)
		if err != nil {
			return nil, err
		}
		node.SubKeys = append(node.SubKeys, child)
	}

	return node, nil
}

func readSubKey(parent store.Key, name string) (*tree.Node, error) {
	child, err := parent.OpenSubKey(name, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open subkey %q of %s: %w", name, parent.Path(), err)
	}
	defer child.Close()

	return readKey(child, name)
}
