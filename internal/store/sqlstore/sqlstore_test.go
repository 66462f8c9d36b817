package sqlstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/store/storetest"
	"github.com/regsync/regsync/internal/tree"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.SetPollInterval(10 * time.Millisecond)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return newStore(t) })
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	root := store.RootPath{Hive: store.HiveLocalMachine, SubPath: `Software\Vendor`}

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	k, err := s.Open(root, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := k.SetValue("none", tree.KindNone, nil); err != nil {
		t.Fatal(err)
	}
	if err := k.SetValue("n", tree.KindInt32, int32(5)); err != nil {
		t.Fatal(err)
	}
	k.Close()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Reopening applies the schema again without losing data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()
	k2, err := s2.Open(root, false)
	if err != nil {
		t.Fatal(err)
	}
	defer k2.Close()

	names, _ := k2.ValueNames()
	if len(names) != 2 || names[0] != "none" || names[1] != "n" {
		t.Errorf("ValueNames() = %v, want [none n]", names)
	}
	v, kind, err := k2.GetValue("none")
	if err != nil || kind != tree.KindNone || v != nil {
		t.Errorf("GetValue(none) = (%v, %v, %v)", v, kind, err)
	}
}

func TestDeleteSubKeyTree_Cascades(t *testing.T) {
	s := newStore(t)
	k, err := s.Open(storetest.Root, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	child, _ := k.CreateSubKey("child")
	grand, _ := child.CreateSubKey("grand")
	if err := grand.SetValue("v", tree.KindString, "x"); err != nil {
		t.Fatal(err)
	}

	if err := k.DeleteSubKeyTree("child"); err != nil {
		t.Fatalf("DeleteSubKeyTree() failed: %v", err)
	}
	if _, err := grand.ValueNames(); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("handle on deleted descendant: got %v, want ErrNotExist", err)
	}

	var rows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM key_values`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 0 {
		t.Errorf("%d orphaned values left after cascade", rows)
	}
}

func TestPoller_SeesOtherConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	watcherStore, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer watcherStore.Close()
	watcherStore.SetPollInterval(10 * time.Millisecond)

	k, err := watcherStore.Open(storetest.Root, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	notified := make(chan struct{}, 1)
	sub, err := watcherStore.Subscribe(k, func() {
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

	writer, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	wk, err := writer.Open(storetest.Root, true)
	if err != nil {
		t.Fatal(err)
	}
	defer wk.Close()
	if err := wk.SetValue("from", tree.KindString, "elsewhere"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("poller missed a write from another connection")
	}
}
