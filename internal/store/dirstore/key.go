package dirstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/regsync/regsync/internal/codec"
	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

type key struct {
	s        *Store
	dir      string
	path     string
	writable bool
	closed   bool
}

func (k *key) Path() string { return k.path }

func (k *key) check(write bool) error {
	if k.closed {
		return fmt.Errorf("%s: %w", k.path, store.ErrClosed)
	}
	if write && !k.writable {
		return fmt.Errorf("%w: %s is open read-only", store.ErrAccess, k.path)
	}
	return nil
}

func (k *key) ValueNames() ([]string, error) {
	if err := k.check(false); err != nil {
		return nil, err
	}
	records, err := readValues(k.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate values of %s: %w", k.path, err)
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	return names, nil
}

func (k *key) SubKeyNames() ([]string, error) {
	if err := k.check(false); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(k.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to enumerate subkeys of %s: %w", k.path, store.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate subkeys of %s: %v", store.ErrAccess, k.path, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, err := unescapeName(e.Name())
		if err != nil {
			// Not created by this store.
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (k *key) GetValue(name string) (any, tree.Kind, error) {
	if err := k.check(false); err != nil {
		return nil, tree.KindNone, err
	}
	records, err := readValues(k.dir)
	if err != nil {
		return nil, tree.KindNone, fmt.Errorf("failed to read %s: %w", k.path, err)
	}
	for _, r := range records {
		if r.Name != name {
			continue
		}
		v, err := codec.Deserialize(r.Kind, r.Value)
		if err != nil {
			return nil, r.Kind, fmt.Errorf("%w: value %q of %s: %v", store.ErrAccess, name, k.path, err)
		}
		return v, r.Kind, nil
	}
	return nil, tree.KindNone, fmt.Errorf("value %q of %s: %w", name, k.path, store.ErrNotExist)
}

func (k *key) SetValue(name string, kind tree.Kind, v any) error {
	if err := k.check(true); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: invalid kind %d for value %q", store.ErrAccess, int(kind), name)
	}
	rep, err := codec.Serialize(kind, v)
	if err != nil {
		return fmt.Errorf("%w: value %q of %s: %v", store.ErrAccess, name, k.path, err)
	}

	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	records, err := readValues(k.dir)
	if err != nil {
		return fmt.Errorf("failed to set %q in %s: %w", name, k.path, err)
	}
	rec := record{Name: name, Kind: kind, Value: rep}
	replaced := false
	for i := range records {
		if records[i].Name == name {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	if err := writeValues(k.dir, records); err != nil {
		return fmt.Errorf("failed to set %q in %s: %w", name, k.path, err)
	}
	return nil
}

func (k *key) DeleteValue(name string) error {
	if err := k.check(true); err != nil {
		return err
	}

	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	records, err := readValues(k.dir)
	if err != nil {
		return fmt.Errorf("failed to delete %q in %s: %w", name, k.path, err)
	}
	for i := range records {
		if records[i].Name == name {
			records = append(records[:i], records[i+1:]...)
			if err := writeValues(k.dir, records); err != nil {
				return fmt.Errorf("failed to delete %q in %s: %w", name, k.path, err)
			}
			return nil
		}
	}
	return fmt.Errorf("value %q of %s: %w", name, k.path, store.ErrNotExist)
}

func (k *key) OpenSubKey(name string, writable bool) (store.Key, error) {
	if err := k.check(writable); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty subkey name under %s", store.ErrAccess, k.path)
	}
	dir := filepath.Join(k.dir, escapeName(name))
	path := store.Join(k.path, name)
	if err := isDir(dir); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &key{s: k.s, dir: dir, path: path, writable: writable}, nil
}

func (k *key) CreateSubKey(name string) (store.Key, error) {
	if err := k.check(true); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty subkey name under %s", store.ErrAccess, k.path)
	}
	if err := isDir(k.dir); err != nil {
		return nil, fmt.Errorf("failed to create subkey under %s: %w", k.path, err)
	}
	dir := filepath.Join(k.dir, escapeName(name))
	path := store.Join(k.path, name)
	if err := os.Mkdir(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: failed to create %s: %v", store.ErrAccess, path, err)
	}
	return &key{s: k.s, dir: dir, path: path, writable: true}, nil
}

func (k *key) DeleteSubKeyTree(name string) error {
	if err := k.check(true); err != nil {
		return err
	}
	dir := filepath.Join(k.dir, escapeName(name))
	path := store.Join(k.path, name)
	if err := isDir(dir); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: failed to delete %s: %v", store.ErrAccess, path, err)
	}
	return nil
}

func (k *key) Close() error {
	k.closed = true
	return nil
}
