// Package dirstore is a store backend that keeps the key forest in a
// directory tree.
//
// Every key is a directory. Its values live in a ".values.json" file inside
// the directory, as canonical name/kind/value records in insertion order.
// Subkeys are child directories whose names are path-escaped key names, so
// any key name maps to a single portable path segment. Enumeration of subkeys
// follows directory order, which os.ReadDir sorts by file name.
//
// The backend is selected with --store=dir and takes the base directory as
// its DSN.
package dirstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

// valuesFile holds the values of the key whose directory contains it.
const valuesFile = ".values.json"

func init() {
	store.Register("dir", func(dsn string) (store.Backend, error) {
		return Open(dsn)
	})
}

// record is the on-disk form of one value.
type record struct {
	Name  string    `json:"name"`
	Kind  tree.Kind `json:"kind"`
	Value *string   `json:"value"`
}

// Store is a directory-backed store rooted at a base directory.
type Store struct {
	base   string
	logger *log.Logger

	// mu serializes read-modify-write cycles on values files.
	mu sync.Mutex
}

// Open returns a store rooted at base, creating the directory if needed.
func Open(base string) (*Store, error) {
	if base == "" {
		return nil, fmt.Errorf("dirstore: base directory cannot be empty")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", abs, err)
	}
	return &Store{
		base:   abs,
		logger: log.New(os.Stderr, "[dirstore] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the logger used for watcher diagnostics.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Base returns the absolute base directory.
func (s *Store) Base() string {
	return s.base
}

// Open implements store.Backend.
func (s *Store) Open(root store.RootPath, writable bool) (store.Key, error) {
	known := false
	for _, h := range store.Hives() {
		if h == root.Hive {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedRoot, root.Hive)
	}

	dir := filepath.Join(s.base, escapeName(string(root.Hive)))
	path := string(root.Hive)
	for _, seg := range root.Segments() {
		dir = filepath.Join(dir, escapeName(seg))
		path = store.Join(path, seg)
	}

	if writable {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create %s: %v", store.ErrAccess, path, err)
		}
	} else if err := isDir(dir); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &key{s: s, dir: dir, path: path, writable: writable}, nil
}

// Close implements store.Backend.
func (s *Store) Close() error {
	return nil
}

// escapeName maps a key name to a directory name. A leading dot is escaped
// so no subkey can collide with the values file or with "." and "..".
func escapeName(name string) string {
	esc := url.PathEscape(name)
	if strings.HasPrefix(esc, ".") {
		esc = "%2E" + esc[1:]
	}
	return esc
}

func unescapeName(esc string) (string, error) {
	return url.PathUnescape(esc)
}

func isDir(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return store.ErrNotExist
	}
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", store.ErrAccess, dir)
	}
	return nil
}

// readValues loads the records of the key at dir. A missing values file
// means the key has no values.
func readValues(dir string) ([]record, error) {
	data, err := os.ReadFile(filepath.Join(dir, valuesFile))
	if errors.Is(err, fs.ErrNotExist) {
		if err := isDir(dir); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: corrupt values file in %s: %v", store.ErrAccess, dir, err)
	}
	return records, nil
}

// writeValues replaces the values file of dir with records using a temp
// file and rename, so readers never see a partial file.
func writeValues(dir string, records []record) error {
	if err := isDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}

	tmp, err := os.CreateTemp(dir, valuesFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, valuesFile)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
	return nil
}
