// Package memstore is an in-process store backend.
//
// It keeps the whole forest in memory and delivers change notifications from a
// goroutine per subscription. Besides serving as the "memory" backend it is
// the reference store for tests: it counts open handles and can inject faults
// into individual operations.
package memstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

func init() {
	store.Register("memory", func(string) (store.Backend, error) {
		return New(), nil
	})
}

// Op names an operation for fault injection.
type Op string

const (
	OpEnumerate   Op = "enumerate"
	OpGet         Op = "get"
	OpSet         Op = "set"
	OpDeleteValue Op = "delete-value"
	OpOpen        Op = "open"
	OpCreate      Op = "create"
	OpDeleteTree  Op = "delete-tree"
)

// FaultFunc decides whether an operation fails. path is the key path and
// name the value or subkey name the operation targets.
type FaultFunc func(op Op, path, name string) error

type entry struct {
	kind tree.Kind
	data any
}

type node struct {
	name       string
	parent     *node
	valueOrder []string
	values     map[string]entry
	childOrder []string
	children   map[string]*node
	deleted    bool
}

func newNode(name string, parent *node) *node {
	return &node{
		name:     name,
		parent:   parent,
		values:   make(map[string]entry),
		children: make(map[string]*node),
	}
}

// Store is an in-memory store. The zero value is not usable; use New.
type Store struct {
	mu    sync.RWMutex
	hives map[store.Hive]*node
	subs  map[*subscription]struct{}
	fault FaultFunc

	openHandles atomic.Int64
}

// New returns an empty store with every recognised hive present.
func New() *Store {
	s := &Store{
		hives: make(map[store.Hive]*node),
		subs:  make(map[*subscription]struct{}),
	}
	for _, h := range store.Hives() {
		s.hives[h] = newNode(string(h), nil)
	}
	return s
}

// SetFault installs f as the fault injector. A nil f disables injection.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// OpenHandles returns the number of key handles not yet closed.
func (s *Store) OpenHandles() int64 {
	return s.openHandles.Load()
}

// Open implements store.Backend.
func (s *Store) Open(root store.RootPath, writable bool) (store.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.hives[root.Hive]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedRoot, root.Hive)
	}

	path := string(root.Hive)
	for _, seg := range root.Segments() {
		child, ok := n.children[seg]
		if !ok {
			if !writable {
				return nil, fmt.Errorf("failed to open %s: %w", root, store.ErrNotExist)
			}
			child = n.addChild(seg)
			s.notifyLocked(n)
		}
		n = child
		path = store.Join(path, seg)
	}

	return s.newKey(n, path, writable), nil
}

// Close implements store.Backend.
func (s *Store) Close() error {
	return nil
}

func (s *Store) newKey(n *node, path string, writable bool) *key {
	s.openHandles.Add(1)
	return &key{s: s, n: n, path: path, writable: writable}
}

func (s *Store) checkFault(op Op, path, name string) error {
	if s.fault == nil {
		return nil
	}
	if err := s.fault(op, path, name); err != nil {
		return fmt.Errorf("%w: %s %s %q: %v", store.ErrAccess, op, path, name, err)
	}
	return nil
}

func (n *node) addChild(name string) *node {
	child := newNode(name, n)
	n.children[name] = child
	n.childOrder = append(n.childOrder, name)
	return child
}

func (n *node) markDeleted() {
	n.deleted = true
	for _, c := range n.children {
		c.markDeleted()
	}
}

func removeName(order []string, name string) []string {
	for i, n := range order {
		if n == name {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

// copyValue detaches mutable typed values from the caller's memory.
func copyValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return append([]byte(nil), x...)
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

// typedValue normalizes v to the Go type the codec expects for kind.
func typedValue(kind tree.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case tree.KindNone:
		return nil, nil
	case tree.KindBinary:
		if _, ok := v.([]byte); !ok {
			return nil, fmt.Errorf("%s value must be []byte, got %T", kind, v)
		}
	case tree.KindInt32:
		if _, ok := v.(int32); !ok {
			return nil, fmt.Errorf("%s value must be int32, got %T", kind, v)
		}
	case tree.KindInt64:
		if _, ok := v.(int64); !ok {
			return nil, fmt.Errorf("%s value must be int64, got %T", kind, v)
		}
	case tree.KindString, tree.KindExpandableString:
		if _, ok := v.(string); !ok {
			return nil, fmt.Errorf("%s value must be string, got %T", kind, v)
		}
	case tree.KindMultiString:
		if _, ok := v.([]string); !ok {
			return nil, fmt.Errorf("%s value must be []string, got %T", kind, v)
		}
	}
	return copyValue(v), nil
}
