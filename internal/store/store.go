// Package store defines the capability interfaces the sync engine needs from
// a hierarchical key-value store, and the registry of concrete backends.
//
// A store is a forest of keys rooted at a fixed set of hives. Each key holds
// named, kind-tagged values and named subkeys. Backends register themselves
// from init functions in their own packages:
//
//	func init() {
//	    store.Register("dir", Open)
//	}
//
// and the CLI opens them by name with OpenBackend.
package store

import (
	"errors"

	"github.com/regsync/regsync/internal/tree"
)

// Errors returned by backends. Backends wrap these with context, so check
// them with errors.Is.
var (
	// ErrAccess is returned when the store rejects an open, create,
	// enumerate, get, set or delete.
	ErrAccess = errors.New("store access denied or failed")

	// ErrNotExist is returned when a key or value does not exist.
	ErrNotExist = errors.New("key or value does not exist")

	// ErrUnsupportedRoot is returned when a path names a hive that is not
	// in the recognised set.
	ErrUnsupportedRoot = errors.New("unsupported root hive")

	// ErrUnknownBackend is returned by OpenBackend for unregistered names.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrClosed is returned when a key handle is used after Close.
	ErrClosed = errors.New("key handle is closed")
)

// Key is an open handle on one key of the store.
//
// Enumeration order is defined by the backend and must be stable while the
// store does not change. Callers own every Key they open and must Close it.
type Key interface {
	// Path returns the full path of the key, for diagnostics.
	Path() string

	// ValueNames returns the names of the values held by the key.
	ValueNames() ([]string, error)

	// SubKeyNames returns the relative names of the key's children.
	SubKeyNames() ([]string, error)

	// GetValue returns the typed value stored under name and its kind.
	// The typed value uses the Go types documented in package codec.
	GetValue(name string) (any, tree.Kind, error)

	// SetValue creates or overwrites the value stored under name.
	SetValue(name string, kind tree.Kind, v any) error

	// DeleteValue removes the value stored under name.
	DeleteValue(name string) error

	// OpenSubKey opens an existing child. It returns an error wrapping
	// ErrNotExist if there is no such child.
	OpenSubKey(name string, writable bool) (Key, error)

	// CreateSubKey opens the named child for writing, creating it if it
	// does not exist.
	CreateSubKey(name string) (Key, error)

	// DeleteSubKeyTree removes the named child and all of its descendants.
	DeleteSubKeyTree(name string) error

	// Close releases the handle.
	Close() error
}

// Subscription delivers change notifications for one key subtree.
type Subscription interface {
	// Start begins delivering notifications.
	Start() error
	// Stop ends delivery and blocks until no callback is running or will
	// run. It is safe to call more than once.
	Stop() error
}

// Backend is a concrete store implementation.
type Backend interface {
	// Open opens the key at root, creating it when writable is true and it
	// does not exist yet.
	Open(root RootPath, writable bool) (Key, error)

	// Subscribe returns a subscription that calls onChange whenever a value
	// or subkey anywhere under k changes. Notifications carry no payload.
	// onChange may be called from any goroutine.
	Subscribe(k Key, onChange func()) (Subscription, error)

	// Close releases backend-wide resources.
	Close() error
}
