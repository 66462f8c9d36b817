package dirstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/store/storetest"
	"github.com/regsync/regsync/internal/tree"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return newStore(t) })
}

func TestEscapeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Plain", "Plain"},
		{"with space", "with%20space"},
		{".hidden", "%2Ehidden"},
		{"..", "%2E."},
		{".values.json", "%2Evalues.json"},
		{`a/b`, "a%2Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeName(tt.name)
			if got != tt.want {
				t.Errorf("escapeName(%q) = %q, want %q", tt.name, got, tt.want)
			}
			back, err := unescapeName(got)
			if err != nil || back != tt.name {
				t.Errorf("unescapeName(%q) = (%q, %v), want %q", got, back, err, tt.name)
			}
		})
	}
}

func TestLayoutOnDisk(t *testing.T) {
	s := newStore(t)
	k, err := s.Open(store.RootPath{Hive: store.HiveCurrentUser, SubPath: `Software\App`}, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	if err := k.SetValue("Color", tree.KindString, "Blue"); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(s.Base(), "HKEY_CURRENT_USER", "Software", "App")
	data, err := os.ReadFile(filepath.Join(dir, valuesFile))
	if err != nil {
		t.Fatalf("values file missing: %v", err)
	}
	if !strings.Contains(string(data), `"kind": "String"`) || !strings.Contains(string(data), `"value": "Blue"`) {
		t.Errorf("unexpected values file:\n%s", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("key directory holds %d entries, want only the values file", len(entries))
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	base := t.TempDir()
	root := store.RootPath{Hive: store.HiveLocalMachine, SubPath: "Persist"}

	s1, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	k, err := s1.Open(root, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := k.SetValue("n", tree.KindInt64, int64(42)); err != nil {
		t.Fatal(err)
	}
	k.Close()

	s2, err := Open(base)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := s2.Open(root, false)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer k2.Close()
	if v, kind, err := k2.GetValue("n"); err != nil || kind != tree.KindInt64 || v != int64(42) {
		t.Errorf("GetValue = (%v, %v, %v)", v, kind, err)
	}
}

func TestCorruptValuesFile(t *testing.T) {
	s := newStore(t)
	k, err := s.Open(store.RootPath{Hive: store.HiveUsers, SubPath: "X"}, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	dir := filepath.Join(s.Base(), "HKEY_USERS", "X")
	if err := os.WriteFile(filepath.Join(dir, valuesFile), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := k.ValueNames(); err == nil {
		t.Error("ValueNames() should fail on a corrupt values file")
	}
}

func TestSubscribe_NewDirectoriesWatched(t *testing.T) {
	s := newStore(t)
	k, err := s.Open(store.RootPath{Hive: store.HiveCurrentUser, SubPath: "W"}, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	notified := make(chan struct{}, 1)
	sub, err := s.Subscribe(k, func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Start(); err != nil {
		t.Fatal(err)
	}
	defer sub.Stop()

	child, err := k.CreateSubKey("new")
	if err != nil {
		t.Fatal(err)
	}
	defer child.Close()
	waitNotified(t, notified)

	// Give the watcher time to add the new directory before writing in it.
	time.Sleep(100 * time.Millisecond)
	drain(notified)

	if err := child.SetValue("v", tree.KindString, "x"); err != nil {
		t.Fatal(err)
	}
	waitNotified(t, notified)
}

func waitNotified(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func drain(ch <-chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
