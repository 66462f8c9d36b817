package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/regsync/regsync/internal/codec"
	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

type key struct {
	s        *Store
	id       int64
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
	if err := k.s.keyExists(context.Background(), k.id); err != nil {
		return fmt.Errorf("%s: %w", k.path, err)
	}
	return nil
}

func (k *key) names(query string) ([]string, error) {
	rows, err := k.s.db.Query(query, k.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrAccess, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	return names, nil
}

func (k *key) ValueNames() ([]string, error) {
	if err := k.check(false); err != nil {
		return nil, err
	}
	names, err := k.names(`SELECT name FROM key_values WHERE key_id = ? ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate values of %s: %w", k.path, err)
	}
	return names, nil
}

func (k *key) SubKeyNames() ([]string, error) {
	if err := k.check(false); err != nil {
		return nil, err
	}
	names, err := k.names(`SELECT name FROM keys WHERE parent_id = ? ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate subkeys of %s: %w", k.path, err)
	}
	return names, nil
}

func (k *key) GetValue(name string) (any, tree.Kind, error) {
	if err := k.check(false); err != nil {
		return nil, tree.KindNone, err
	}

	var kindName string
	var rep sql.NullString
	err := k.s.db.QueryRow(`SELECT kind, value FROM key_values WHERE key_id = ? AND name = ?`, k.id, name).Scan(&kindName, &rep)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tree.KindNone, fmt.Errorf("value %q of %s: %w", name, k.path, store.ErrNotExist)
	}
	if err != nil {
		return nil, tree.KindNone, fmt.Errorf("%w: failed to read %q of %s: %v", store.ErrAccess, name, k.path, err)
	}

	kind := tree.ParseKind(kindName)
	var p *string
	if rep.Valid {
		p = &rep.String
	}
	v, err := codec.Deserialize(kind, p)
	if err != nil {
		return nil, kind, fmt.Errorf("%w: value %q of %s: %v", store.ErrAccess, name, k.path, err)
	}
	return v, kind, nil
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

	var text sql.NullString
	if rep != nil {
		text = sql.NullString{String: *rep, Valid: true}
	}
	_, err = k.s.db.Exec(`
		INSERT INTO key_values (key_id, name, kind, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (key_id, name) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
		k.id, name, kind.String(), text)
	if err != nil {
		return fmt.Errorf("%w: failed to set %q in %s: %v", store.ErrAccess, name, k.path, err)
	}
	return nil
}

func (k *key) DeleteValue(name string) error {
	if err := k.check(true); err != nil {
		return err
	}
	res, err := k.s.db.Exec(`DELETE FROM key_values WHERE key_id = ? AND name = ?`, k.id, name)
	if err != nil {
		return fmt.Errorf("%w: failed to delete %q in %s: %v", store.ErrAccess, name, k.path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("value %q of %s: %w", name, k.path, store.ErrNotExist)
	}
	return nil
}

func (k *key) OpenSubKey(name string, writable bool) (store.Key, error) {
	if err := k.check(writable); err != nil {
		return nil, err
	}
	path := store.Join(k.path, name)
	id, err := childID(context.Background(), k.s.db, k.id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &key{s: k.s, id: id, path: path, writable: writable}, nil
}

func (k *key) CreateSubKey(name string) (store.Key, error) {
	if err := k.check(true); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty subkey name under %s", store.ErrAccess, k.path)
	}
	ctx := context.Background()
	path := store.Join(k.path, name)

	id, err := childID(ctx, k.s.db, k.id, name)
	if errors.Is(err, store.ErrNotExist) {
		id, err = insertKey(ctx, k.s.db, k.id, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &key{s: k.s, id: id, path: path, writable: true}, nil
}

func (k *key) DeleteSubKeyTree(name string) error {
	if err := k.check(true); err != nil {
		return err
	}
	// Descendants and their values go with it through ON DELETE CASCADE.
	res, err := k.s.db.Exec(`DELETE FROM keys WHERE parent_id = ? AND name = ?`, k.id, name)
	if err != nil {
		return fmt.Errorf("%w: failed to delete %s: %v", store.ErrAccess, store.Join(k.path, name), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to delete %s: %w", store.Join(k.path, name), store.ErrNotExist)
	}
	return nil
}

func (k *key) Close() error {
	k.closed = true
	return nil
}
