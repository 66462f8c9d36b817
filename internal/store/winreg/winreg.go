//go:build windows

package winreg

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

func init() {
	store.Register("registry", func(string) (store.Backend, error) {
		return New(), nil
	})
}

var (
	modadvapi32        = windows.NewLazySystemDLL("advapi32.dll")
	procRegSetValueExW = modadvapi32.NewProc("RegSetValueExW")
	procRegDeleteTreeW = modadvapi32.NewProc("RegDeleteTreeW")
)

var hives = map[store.Hive]registry.Key{
	store.HiveLocalMachine:  registry.LOCAL_MACHINE,
	store.HiveCurrentUser:   registry.CURRENT_USER,
	store.HiveClassesRoot:   registry.CLASSES_ROOT,
	store.HiveUsers:         registry.USERS,
	store.HiveCurrentConfig: registry.CURRENT_CONFIG,
}

const (
	readAccess  = registry.READ
	writeAccess = registry.ALL_ACCESS
)

// Store is the Windows registry.
type Store struct{}

// New returns the registry backend.
func New() *Store {
	return &Store{}
}

// Open implements store.Backend.
func (s *Store) Open(root store.RootPath, writable bool) (store.Key, error) {
	hive, ok := hives[root.Hive]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedRoot, root.Hive)
	}

	var (
		k   registry.Key
		err error
	)
	if writable {
		k, _, err = registry.CreateKey(hive, root.SubPath, writeAccess)
	} else {
		k, err = registry.OpenKey(hive, root.SubPath, readAccess)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", root, mapErr(err))
	}
	return &key{k: k, path: root.String(), writable: writable}, nil
}

// Close implements store.Backend.
func (s *Store) Close() error {
	return nil
}

type key struct {
	k        registry.Key
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
	names, err := k.k.ReadValueNames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate values of %s: %w", k.path, mapErr(err))
	}
	return names, nil
}

func (k *key) SubKeyNames() ([]string, error) {
	if err := k.check(false); err != nil {
		return nil, err
	}
	names, err := k.k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate subkeys of %s: %w", k.path, mapErr(err))
	}
	return names, nil
}

func (k *key) GetValue(name string) (any, tree.Kind, error) {
	if err := k.check(false); err != nil {
		return nil, tree.KindNone, err
	}
	v, kind, err := k.getValue(name)
	if err != nil {
		return nil, kind, fmt.Errorf("failed to read %q of %s: %w", name, k.path, mapErr(err))
	}
	return v, kind, nil
}

func (k *key) getValue(name string) (any, tree.Kind, error) {
	size, typ, err := k.k.GetValue(name, nil)
	if err != nil {
		return nil, tree.KindNone, err
	}

	switch typ {
	case registry.NONE:
		return nil, tree.KindNone, nil
	case registry.BINARY:
		b, _, err := k.k.GetBinaryValue(name)
		return b, tree.KindBinary, err
	case registry.DWORD:
		n, _, err := k.k.GetIntegerValue(name)
		return int32(uint32(n)), tree.KindInt32, err
	case registry.QWORD:
		n, _, err := k.k.GetIntegerValue(name)
		return int64(n), tree.KindInt64, err
	case registry.SZ:
		str, _, err := k.k.GetStringValue(name)
		return str, tree.KindString, err
	case registry.EXPAND_SZ:
		str, _, err := k.k.GetStringValue(name)
		return str, tree.KindExpandableString, err
	case registry.MULTI_SZ:
		strs, _, err := k.k.GetStringsValue(name)
		if strs == nil && err == nil {
			strs = []string{}
		}
		return strs, tree.KindMultiString, err
	default:
		buf := make([]byte, size)
		n, _, err := k.k.GetValue(name, buf)
		if err != nil {
			return nil, tree.KindUnknown, err
		}
		return buf[:n], tree.KindUnknown, nil
	}
}

func (k *key) SetValue(name string, kind tree.Kind, v any) error {
	if err := k.check(true); err != nil {
		return err
	}
	if err := k.setValue(name, kind, v); err != nil {
		return fmt.Errorf("failed to set %q in %s: %w", name, k.path, mapErr(err))
	}
	return nil
}

func (k *key) setValue(name string, kind tree.Kind, v any) error {
	if v == nil || kind == tree.KindNone {
		return setRaw(k.k, name, registry.NONE, nil)
	}

	mismatch := fmt.Errorf("%w: %s value cannot hold %T", store.ErrAccess, kind, v)
	switch kind {
	case tree.KindBinary:
		b, ok := v.([]byte)
		if !ok {
			return mismatch
		}
		return k.k.SetBinaryValue(name, b)
	case tree.KindInt32:
		n, ok := v.(int32)
		if !ok {
			return mismatch
		}
		return k.k.SetDWordValue(name, uint32(n))
	case tree.KindInt64:
		n, ok := v.(int64)
		if !ok {
			return mismatch
		}
		return k.k.SetQWordValue(name, uint64(n))
	case tree.KindString:
		s, ok := v.(string)
		if !ok {
			return mismatch
		}
		return k.k.SetStringValue(name, s)
	case tree.KindExpandableString:
		s, ok := v.(string)
		if !ok {
			return mismatch
		}
		return k.k.SetExpandStringValue(name, s)
	case tree.KindMultiString:
		strs, ok := v.([]string)
		if !ok {
			return mismatch
		}
		return k.k.SetStringsValue(name, strs)
	default:
		b, err := unknownBytes(v)
		if err != nil {
			return err
		}
		return k.k.SetBinaryValue(name, b)
	}
}

// unknownBytes recovers raw bytes from a value of unknown kind. Raw bytes
// read from the registry come back from a document as their base64 text.
func unknownBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		if b, err := base64.StdEncoding.DecodeString(x); err == nil {
			return b, nil
		}
		return []byte(x), nil
	default:
		return json.Marshal(x)
	}
}

func (k *key) DeleteValue(name string) error {
	if err := k.check(true); err != nil {
		return err
	}
	if err := k.k.DeleteValue(name); err != nil {
		return fmt.Errorf("failed to delete %q in %s: %w", name, k.path, mapErr(err))
	}
	return nil
}

func (k *key) OpenSubKey(name string, writable bool) (store.Key, error) {
	if err := k.check(writable); err != nil {
		return nil, err
	}
	access := uint32(readAccess)
	if writable {
		access = writeAccess
	}
	path := store.Join(k.path, name)
	child, err := registry.OpenKey(k.k, name, access)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, mapErr(err))
	}
	return &key{k: child, path: path, writable: writable}, nil
}

func (k *key) CreateSubKey(name string) (store.Key, error) {
	if err := k.check(true); err != nil {
		return nil, err
	}
	path := store.Join(k.path, name)
	child, _, err := registry.CreateKey(k.k, name, writeAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, mapErr(err))
	}
	return &key{k: child, path: path, writable: true}, nil
}

func (k *key) DeleteSubKeyTree(name string) error {
	if err := k.check(true); err != nil {
		return err
	}
	if err := deleteTree(k.k, name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", store.Join(k.path, name), mapErr(err))
	}
	return nil
}

func (k *key) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	return k.k.Close()
}

// setRaw writes a value with an explicit type code. The registry package
// only exposes typed setters.
func setRaw(k registry.Key, name string, typ uint32, data []byte) error {
	p, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	var buf *byte
	if len(data) > 0 {
		buf = &data[0]
	}
	r, _, _ := procRegSetValueExW.Call(
		uintptr(k),
		uintptr(unsafe.Pointer(p)),
		0,
		uintptr(typ),
		uintptr(unsafe.Pointer(buf)),
		uintptr(len(data)),
	)
	if r != 0 {
		return syscall.Errno(r)
	}
	return nil
}

func deleteTree(k registry.Key, name string) error {
	p, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	r, _, _ := procRegDeleteTreeW.Call(uintptr(k), uintptr(unsafe.Pointer(p)))
	if r != 0 {
		return syscall.Errno(r)
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, store.ErrAccess), errors.Is(err, store.ErrNotExist):
		return err
	case errors.Is(err, registry.ErrNotExist):
		return fmt.Errorf("%w: %v", store.ErrNotExist, err)
	default:
		return fmt.Errorf("%w: %v", store.ErrAccess, err)
	}
}
