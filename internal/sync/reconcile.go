package sync

import (
	"errors"
	"fmt"

	"github.com/regsync/regsync/internal/codec"
	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

// Stats counts the changes made by one Apply call.
type Stats struct {
	ValuesSet      int
	KeysCreated    int
	ValuesDeleted  int
	SubKeysDeleted int
}

// String returns a one-line summary for logs.
func (s Stats) String() string {
	return fmt.Sprintf("values set=%d, keys created=%d, values deleted=%d, subtrees deleted=%d",
		s.ValuesSet, s.KeysCreated, s.ValuesDeleted, s.SubKeysDeleted)
}

// Apply writes model onto k. In strict mode values and subkeys of k that
// model does not name are deleted once everything else at that level has
// been written. stats may be nil.
func Apply(model *tree.Node, k store.Key, strict bool, stats *Stats) error {
	if stats == nil {
		stats = &Stats{}
	}
	return applyKey(model, k, strict, stats)
}

func applyKey(model *tree.Node, k store.Key, strict bool, stats *Stats) error {
	for _, v := range model.Values {
		typed, err := codec.Deserialize(v.Kind, v.Data)
		if err != nil {
			return fmt.Errorf("failed to decode value %q for %s: %w", v.Name, k.Path(), err)
		}
		if err := k.SetValue(v.Name, v.Kind, typed); err != nil {
			return fmt.Errorf("failed to set value %q on %s: %w", v.Name, k.Path(), err)
		}
		stats.ValuesSet++
	}

	for _, child := range model.SubKeys {
		if err := applySubKey(child, k, strict, stats); err != nil {
			return err
		}
	}

	if !strict {
		return nil
	}

	if err := pruneValues(model, k, stats); err != nil {
		return err
	}
	return pruneSubKeys(model, k, stats)
}

func applySubKey(model *tree.Node, parent store.Key, strict bool, stats *Stats) error {
	child, err := parent.OpenSubKey(model.Name, true)
	if errors.Is(err, store.ErrNotExist) {
		child, err = parent.CreateSubKey(model.Name)
		if err == nil {
			stats.KeysCreated++
		}
	}
	if err != nil {
		return fmt.Errorf("failed to open or create subkey %q of %s: %w", model.Name, parent.Path(), err)
	}
	defer child.Close()

	return applyKey(model, child, strict, stats)
}

func pruneValues(model *tree.Node, k store.Key, stats *Stats) error {
	live, err := k.ValueNames()
	if err != nil {
		return fmt.Errorf("failed to list values of %s: %w", k.Path(), err)
	}
	keep := model.ValueNames()
	for _, name := range live {
		if keep[name] {
			continue
		}
		if err := k.DeleteValue(name); err != nil {
			return fmt.Errorf("failed to delete value %q from %s: %w", name, k.Path(), err)
		}
		stats.ValuesDeleted++
	}
	return nil
}

func pruneSubKeys(model *tree.Node, k store.Key, stats *Stats) error {
	live, err := k.SubKeyNames()
	if err != nil {
		return fmt.Errorf("failed to list subkeys of %s: %w", k.Path(), err)
	}
	keep := model.SubKeyNames()
	for _, name := range live {
		if keep[name] {
			continue
		}
		if err := k.DeleteSubKeyTree(name); err != nil {
			return fmt.Errorf("failed to delete subkey tree %q from %s: %w", name, k.Path(), err)
		}
		stats.SubKeysDeleted++
	}
	return nil
}
