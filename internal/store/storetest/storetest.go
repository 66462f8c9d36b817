// Package storetest checks that a store.Backend behaves the way the sync
// engine expects. Backend packages call Run from their own tests.
package storetest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/tree"
)

// Root is the path every check opens.
var Root = store.RootPath{Hive: store.HiveCurrentUser, SubPath: `Software\StoreTest`}

// Run runs the conformance checks against backends returned by open. Each
// check gets a fresh, empty backend.
func Run(t *testing.T, open func(t *testing.T) store.Backend) {
	t.Run("OpenMissingReadOnly", func(t *testing.T) { testOpenMissing(t, open(t)) })
	t.Run("UnsupportedRoot", func(t *testing.T) { testUnsupportedRoot(t, open(t)) })
	t.Run("TypedValues", func(t *testing.T) { testTypedValues(t, open(t)) })
	t.Run("OverwriteAndDelete", func(t *testing.T) { testOverwriteAndDelete(t, open(t)) })
	t.Run("SubKeys", func(t *testing.T) { testSubKeys(t, open(t)) })
	t.Run("ReadOnlyHandle", func(t *testing.T) { testReadOnly(t, open(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, open(t)) })
}

func openRoot(t *testing.T, b store.Backend) store.Key {
	t.Helper()
	k, err := b.Open(Root, true)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", Root, err)
	}
	t.Cleanup(func() { k.Close() })
	return k
}

func testOpenMissing(t *testing.T, b store.Backend) {
	_, err := b.Open(store.RootPath{Hive: store.HiveLocalMachine, SubPath: "Nope"}, false)
	if !errors.Is(err, store.ErrNotExist) {
		t.Errorf("Open(missing, read-only) error = %v, want ErrNotExist", err)
	}
}

func testUnsupportedRoot(t *testing.T, b store.Backend) {
	_, err := b.Open(store.RootPath{Hive: "HKEY_NOWHERE"}, true)
	if !errors.Is(err, store.ErrUnsupportedRoot) {
		t.Errorf("Open(bogus hive) error = %v, want ErrUnsupportedRoot", err)
	}
}

func testTypedValues(t *testing.T, b store.Backend) {
	k := openRoot(t, b)

	tests := []struct {
		name string
		kind tree.Kind
		v    any
	}{
		{"str", tree.KindString, "hello"},
		{"exp", tree.KindExpandableString, `%PATH%;x`},
		{"i32", tree.KindInt32, int32(-7)},
		{"i64", tree.KindInt64, int64(1) << 40},
		{"bin", tree.KindBinary, []byte{0, 1, 254}},
		{"multi", tree.KindMultiString, []string{"a", "b"}},
		{"", tree.KindString, "default value"},
	}

	for _, tt := range tests {
		if err := k.SetValue(tt.name, tt.kind, tt.v); err != nil {
			t.Fatalf("SetValue(%q) failed: %v", tt.name, err)
		}
	}
	for _, tt := range tests {
		v, kind, err := k.GetValue(tt.name)
		if err != nil {
			t.Errorf("GetValue(%q) failed: %v", tt.name, err)
			continue
		}
		if kind != tt.kind {
			t.Errorf("GetValue(%q) kind = %v, want %v", tt.name, kind, tt.kind)
		}
		if diff := cmp.Diff(tt.v, v); diff != "" {
			t.Errorf("GetValue(%q) mismatch (-want +got):\n%s", tt.name, diff)
		}
	}

	names, err := k.ValueNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != len(tests) {
		t.Errorf("ValueNames() = %v, want %d names", names, len(tests))
	}
}

func testOverwriteAndDelete(t *testing.T, b store.Backend) {
	k := openRoot(t, b)

	if err := k.SetValue("v", tree.KindString, "one"); err != nil {
		t.Fatal(err)
	}
	if err := k.SetValue("v", tree.KindInt32, int32(2)); err != nil {
		t.Fatal(err)
	}
	v, kind, err := k.GetValue("v")
	if err != nil || kind != tree.KindInt32 || v != int32(2) {
		t.Errorf("GetValue after overwrite = (%v, %v, %v)", v, kind, err)
	}
	if names, _ := k.ValueNames(); len(names) != 1 {
		t.Errorf("overwrite duplicated the value: %v", names)
	}

	if err := k.DeleteValue("v"); err != nil {
		t.Fatalf("DeleteValue() failed: %v", err)
	}
	if _, _, err := k.GetValue("v"); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("GetValue after delete error = %v, want ErrNotExist", err)
	}
	if err := k.DeleteValue("v"); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("second DeleteValue error = %v, want ErrNotExist", err)
	}
}

func testSubKeys(t *testing.T, b store.Backend) {
	k := openRoot(t, b)

	names := []string{"Plain", "with space", ".dotted", "per%cent", "slash/inside"}
	for _, name := range names {
		child, err := k.CreateSubKey(name)
		if err != nil {
			t.Fatalf("CreateSubKey(%q) failed: %v", name, err)
		}
		if err := child.SetValue("marker", tree.KindString, name); err != nil {
			t.Fatalf("SetValue under %q failed: %v", name, err)
		}
		child.Close()
	}

	got, err := k.SubKeyNames()
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, n := range got {
		seen[n] = true
	}
	for _, name := range names {
		if !seen[name] {
			t.Errorf("SubKeyNames() = %q, missing %q", got, name)
		}
	}

	child, err := k.OpenSubKey("with space", false)
	if err != nil {
		t.Fatalf("OpenSubKey() failed: %v", err)
	}
	if v, _, _ := child.GetValue("marker"); v != "with space" {
		t.Errorf("marker = %v", v)
	}
	child.Close()

	deep, err := k.CreateSubKey("Plain")
	if err != nil {
		t.Fatalf("CreateSubKey on existing key failed: %v", err)
	}
	grand, err := deep.CreateSubKey("Grand")
	if err != nil {
		t.Fatal(err)
	}
	grand.Close()
	deep.Close()

	if err := k.DeleteSubKeyTree("Plain"); err != nil {
		t.Fatalf("DeleteSubKeyTree() failed: %v", err)
	}
	if _, err := k.OpenSubKey("Plain", false); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("OpenSubKey(deleted) error = %v, want ErrNotExist", err)
	}
	if err := k.DeleteSubKeyTree("Plain"); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("DeleteSubKeyTree(missing) error = %v, want ErrNotExist", err)
	}
}

func testReadOnly(t *testing.T, b store.Backend) {
	openRoot(t, b)
	ro, err := b.Open(Root, false)
	if err != nil {
		t.Fatalf("Open(read-only) failed: %v", err)
	}
	defer ro.Close()

	if err := ro.SetValue("x", tree.KindString, "y"); !errors.Is(err, store.ErrAccess) {
		t.Errorf("SetValue on read-only key error = %v, want ErrAccess", err)
	}
	if _, err := ro.CreateSubKey("x"); !errors.Is(err, store.ErrAccess) {
		t.Errorf("CreateSubKey on read-only key error = %v, want ErrAccess", err)
	}
}

func testSubscribe(t *testing.T, b store.Backend) {
	k := openRoot(t, b)
	child, err := k.CreateSubKey("Watched")
	if err != nil {
		t.Fatal(err)
	}
	defer child.Close()

	notified := make(chan struct{}, 1)
	sub, err := b.Subscribe(k, func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if err := sub.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer sub.Stop()

	// Drain anything caused by setup.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-notified:
	default:
	}

	if err := child.SetValue("changed", tree.KindInt32, int32(1)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("no notification for a nested value change")
	}

	if err := sub.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := sub.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}
