package memstore

import (
	"fmt"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

type key struct {
	s        *Store
	n        *node
	path     string
	writable bool
	closed   bool
}

var _ store.Key = (*key)(nil)

func (k *key) Path() string {
	return k.path
}

// check validates the handle. Callers hold k.s.mu.
func (k *key) check(write bool) error {
	if k.closed {
		return fmt.Errorf("%s: %w", k.path, store.ErrClosed)
	}
	if k.n.deleted {
		return fmt.Errorf("%s: %w", k.path, store.ErrNotExist)
	}
	if write && !k.writable {
		return fmt.Errorf("%w: %s is open read-only", store.ErrAccess, k.path)
	}
	return nil
}

func (k *key) ValueNames() ([]string, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()

	if err := k.check(false); err != nil {
		return nil, err
	}
	if err := k.s.checkFault(OpEnumerate, k.path, ""); err != nil {
		return nil, err
	}
	return append([]string(nil), k.n.valueOrder...), nil
}

func (k *key) SubKeyNames() ([]string, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()

	if err := k.check(false); err != nil {
		return nil, err
	}
	if err := k.s.checkFault(OpEnumerate, k.path, ""); err != nil {
		return nil, err
	}
	return append([]string(nil), k.n.childOrder...), nil
}

func (k *key) GetValue(name string) (any, tree.Kind, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()

	if err := k.check(false); err != nil {
		return nil, tree.KindNone, err
	}
	if err := k.s.checkFault(OpGet, k.path, name); err != nil {
		return nil, tree.KindNone, err
	}
	e, ok := k.n.values[name]
	if !ok {
		return nil, tree.KindNone, fmt.Errorf("value %q under %s: %w", name, k.path, store.ErrNotExist)
	}
	return copyValue(e.data), e.kind, nil
}

func (k *key) SetValue(name string, kind tree.Kind, v any) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if err := k.check(true); err != nil {
		return err
	}
	if err := k.s.checkFault(OpSet, k.path, name); err != nil {
		return err
	}
	data, err := typedValue(kind, v)
	if err != nil {
		return fmt.Errorf("%w: value %q under %s: %v", store.ErrAccess, name, k.path, err)
	}

	if _, exists := k.n.values[name]; !exists {
		k.n.valueOrder = append(k.n.valueOrder, name)
	}
	k.n.values[name] = entry{kind: kind, data: data}
	k.s.notifyLocked(k.n)
	return nil
}

func (k *key) DeleteValue(name string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if err := k.check(true); err != nil {
		return err
	}
	if err := k.s.checkFault(OpDeleteValue, k.path, name); err != nil {
		return err
	}
	if _, exists := k.n.values[name]; !exists {
		return fmt.Errorf("value %q under %s: %w", name, k.path, store.ErrNotExist)
	}
	delete(k.n.values, name)
	k.n.valueOrder = removeName(k.n.valueOrder, name)
	k.s.notifyLocked(k.n)
	return nil
}

func (k *key) OpenSubKey(name string, writable bool) (store.Key, error) {
	k.s.mu.RLock()
	defer k.s.mu.RUnlock()

	if err := k.check(false); err != nil {
		return nil, err
	}
	if writable && !k.writable {
		return nil, fmt.Errorf("%w: %s is open read-only", store.ErrAccess, k.path)
	}
	if err := k.s.checkFault(OpOpen, k.path, name); err != nil {
		return nil, err
	}
	child, ok := k.n.children[name]
	if !ok {
		return nil, fmt.Errorf("subkey %q under %s: %w", name, k.path, store.ErrNotExist)
	}
	return k.s.newKey(child, store.Join(k.path, name), writable), nil
}

func (k *key) CreateSubKey(name string) (store.Key, error) {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if err := k.check(true); err != nil {
		return nil, err
	}
	if err := k.s.checkFault(OpCreate, k.path, name); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty subkey name under %s", store.ErrAccess, k.path)
	}
	child, ok := k.n.children[name]
	if !ok {
		child = k.n.addChild(name)
		k.s.notifyLocked(k.n)
	}
	return k.s.newKey(child, store.Join(k.path, name), true), nil
}

func (k *key) DeleteSubKeyTree(name string) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if err := k.check(true); err != nil {
		return err
	}
	if err := k.s.checkFault(OpDeleteTree, k.path, name); err != nil {
		return err
	}
	child, ok := k.n.children[name]
	if !ok {
		return fmt.Errorf("subkey %q under %s: %w", name, k.path, store.ErrNotExist)
	}
	child.markDeleted()
	delete(k.n.children, name)
	k.n.childOrder = removeName(k.n.childOrder, name)
	k.s.notifyLocked(k.n)
	return nil
}

func (k *key) Close() error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	k.s.openHandles.Add(-1)
	return nil
}
