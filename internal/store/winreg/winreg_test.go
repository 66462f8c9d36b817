//go:build windows

package winreg

import (
	"testing"

	"golang.org/x/sys/windows/registry"

	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/store/storetest"
	"github.com/regsync/regsync/internal/tree"
)

func cleanup(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = deleteTree(registry.CURRENT_USER, storetest.Root.SubPath)
	})
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		_ = deleteTree(registry.CURRENT_USER, storetest.Root.SubPath)
		cleanup(t)
		return New()
	})
}

func TestNoneAndUnknown(t *testing.T) {
	cleanup(t)
	k, err := New().Open(storetest.Root, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	if err := k.SetValue("none", tree.KindNone, nil); err != nil {
		t.Fatalf("SetValue(None) failed: %v", err)
	}
	v, kind, err := k.GetValue("none")
	if err != nil || kind != tree.KindNone || v != nil {
		t.Errorf("GetValue(none) = (%v, %v, %v)", v, kind, err)
	}

	rk := k.(*key).k
	if err := setRaw(rk, "link", registry.LINK, []byte{1, 0, 2, 0}); err != nil {
		t.Fatal(err)
	}
	v, kind, err = k.GetValue("link")
	if err != nil || kind != tree.KindUnknown {
		t.Fatalf("GetValue(link) = (%v, %v, %v)", v, kind, err)
	}
	if b, ok := v.([]byte); !ok || len(b) != 4 {
		t.Errorf("unknown value = %#v, want 4 raw bytes", v)
	}
}

func TestInt32Reinterpretation(t *testing.T) {
	cleanup(t)
	k, err := New().Open(storetest.Root, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	rk := k.(*key).k
	if err := rk.SetDWordValue("big", 0xFFFFFFFF); err != nil {
		t.Fatal(err)
	}
	v, _, err := k.GetValue("big")
	if err != nil || v != int32(-1) {
		t.Errorf("GetValue(big) = (%v, %v), want -1", v, err)
	}
}
