package store

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor opens a backend. dsn is backend-specific: a directory for the
// dir backend, a database file for sqlite, ignored by the registry backend.
type Constructor func(dsn string) (Backend, error)

var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register makes a backend available under name. It is called from init()
// functions in backend packages and panics on a nil constructor or a
// duplicate name.
func Register(name string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("store: Register constructor is nil for backend %s", name))
	}
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("store: Register called twice for backend %s", name))
	}

	registry[name] = constructor
}

// OpenBackend opens the backend registered under name.
func OpenBackend(name, dsn string) (Backend, error) {
	registryMutex.RLock()
	constructor := registry[name]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, RegisteredBackends())
	}
	return constructor(dsn)
}

// IsRegistered returns true if a backend is registered under name.
func IsRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[name]
	return exists
}

// RegisteredBackends returns the registered backend names, sorted.
func RegisteredBackends() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnregisterAll clears all registered backends.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[string]Constructor)
}
