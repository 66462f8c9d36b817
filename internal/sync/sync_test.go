package sync

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/store/memstore"
	"github.com/regsync/regsync/internal/tree"
)

// setupStore creates an in-memory store and opens a writable root key.
func setupStore(t *testing.T) (*memstore.Store, store.Key) {
	t.Helper()

	s := memstore.New()
	root, err := s.Open(store.RootPath{Hive: store.HiveCurrentUser, SubPath: `Software\MyApp`}, true)
	if err != nil {
		t.Fatalf("failed to open root: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return s, root
}

// mustSet sets a value or fails the test.
func mustSet(t *testing.T, k store.Key, name string, kind tree.Kind, v any) {
	t.Helper()
	if err := k.SetValue(name, kind, v); err != nil {
		t.Fatalf("SetValue(%q) failed: %v", name, err)
	}
}

// mustCreate creates a subkey and returns it; the handle is closed at cleanup.
func mustCreate(t *testing.T, k store.Key, name string) store.Key {
	t.Helper()
	child, err := k.CreateSubKey(name)
	if err != nil {
		t.Fatalf("CreateSubKey(%q) failed: %v", name, err)
	}
	t.Cleanup(func() { child.Close() })
	return child
}

// mustRead reads k or fails the test.
func mustRead(t *testing.T, k store.Key) *tree.Node {
	t.Helper()
	n, err := Read(k)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	return n
}

func value(name string, kind tree.Kind, data string) tree.Value {
	return tree.Value{Name: name, Kind: kind, Data: tree.StringPtr(data)}
}

// modelTree builds a two-level model with every kind.
func modelTree() *tree.Node {
	root := tree.NewNode("MyApp")
	root.Values = []tree.Value{
		value("Color", tree.KindString, "Blue"),
		value("Count", tree.KindInt32, "-3"),
		value("Big", tree.KindInt64, "9000000000"),
		value("Blob", tree.KindBinary, "AAEC"),
		value("Path", tree.KindExpandableString, `%TEMP%\x`),
		value("List", tree.KindMultiString, `["x","y","z"]`),
		{Name: "", Kind: tree.KindNone},
	}
	child := tree.NewNode("Window")
	child.Values = []tree.Value{value("Width", tree.KindInt32, "800")}
	grand := tree.NewNode("Recent")
	grand.Values = []tree.Value{value("0", tree.KindString, "a.txt")}
	child.SubKeys = []*tree.Node{grand}
	root.SubKeys = []*tree.Node{child}
	return root
}

func TestScenarioA_MergeIntoEmpty(t *testing.T) {
	_, root := setupStore(t)

	var model tree.Node
	doc := `{"name":"MyApp","values":[{"name":"Color","kind":"String","value":"Blue"}],"subKeys":[]}`
	if err := json.Unmarshal([]byte(doc), &model); err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}

	if err := Apply(&model, root, false, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	names, _ := root.ValueNames()
	if len(names) != 1 || names[0] != "Color" {
		t.Fatalf("value names = %v, want [Color]", names)
	}
	v, kind, err := root.GetValue("Color")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if kind != tree.KindString || v != "Blue" {
		t.Errorf("Color = (%v, %v), want (Blue, String)", v, kind)
	}
}

func TestScenarioB_StrictVersusMerge(t *testing.T) {
	model := tree.NewNode("MyApp")
	model.Values = []tree.Value{value("A", tree.KindInt32, "1")}

	tests := []struct {
		name   string
		strict bool
		want   []string
	}{
		{"strict removes B", true, []string{"A"}},
		{"merge keeps B", false, []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, root := setupStore(t)
			mustSet(t, root, "A", tree.KindInt32, int32(1))
			mustSet(t, root, "B", tree.KindInt32, int32(2))

			if err := Apply(model, root, tt.strict, nil); err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}

			names, _ := root.ValueNames()
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("value names mismatch (-want +got):\n%s", diff)
			}
			if v, _, _ := root.GetValue("A"); v != int32(1) {
				t.Errorf("A = %v, want 1", v)
			}
		})
	}
}

func TestReadApplyRoundTrip(t *testing.T) {
	_, root := setupStore(t)

	model := modelTree()
	if err := Apply(model, root, false, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got := mustRead(t, root)
	if got.Name != "MyApp" {
		t.Errorf("root name = %q, want MyApp", got.Name)
	}
	if !tree.Equal(model, got) {
		t.Errorf("read tree differs from applied model (-want +got):\n%s", cmp.Diff(model, got))
	}

	// The reader keeps store order, which for memstore is insertion order.
	var names []string
	for _, v := range got.Values {
		names = append(names, v.Name)
	}
	want := []string{"Color", "Count", "Big", "Blob", "Path", "List", ""}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("value order mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeApplyIsIdempotent(t *testing.T) {
	_, root1 := setupStore(t)
	_, root2 := setupStore(t)

	for _, root := range []store.Key{root1, root2} {
		mustSet(t, root, "Extra", tree.KindString, "keep")
		mustCreate(t, root, "Other")
	}

	model := modelTree()
	if err := Apply(model, root1, false, nil); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}
	if err := Apply(model, root2, false, nil); err != nil {
		t.Fatalf("Apply() on second store failed: %v", err)
	}
	if err := Apply(model, root2, false, nil); err != nil {
		t.Fatalf("repeated Apply() failed: %v", err)
	}

	once, twice := mustRead(t, root1), mustRead(t, root2)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("applying twice differs from applying once (-once +twice):\n%s", diff)
	}
}

func TestStrictApplyConverges(t *testing.T) {
	_, root := setupStore(t)

	// Live state with extras and conflicting data at every level.
	mustSet(t, root, "Color", tree.KindInt32, int32(7))
	mustSet(t, root, "Stale", tree.KindString, "x")
	window := mustCreate(t, root, "Window")
	mustSet(t, window, "Height", tree.KindInt32, int32(600))
	deep := mustCreate(t, mustCreate(t, window, "Gone"), "Deeper")
	mustSet(t, deep, "v", tree.KindString, "deep")
	mustCreate(t, root, "Obsolete")

	model := modelTree()
	var stats Stats
	if err := Apply(model, root, true, &stats); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got := mustRead(t, root)
	if !tree.Equal(model, got) {
		t.Errorf("strict apply did not converge (-want +got):\n%s", cmp.Diff(model, got))
	}
	if stats.ValuesDeleted != 2 || stats.SubKeysDeleted != 2 {
		t.Errorf("stats = %+v, want 2 values and 2 subtrees deleted", stats)
	}
	if _, err := window.OpenSubKey("Gone", false); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("Gone subtree should be deleted, got %v", err)
	}
}

func TestMergeNeverDeletes(t *testing.T) {
	_, root := setupStore(t)

	mustSet(t, root, "Extra", tree.KindString, "x")
	window := mustCreate(t, root, "Window")
	mustSet(t, window, "Height", tree.KindInt32, int32(600))
	mustCreate(t, root, "Other")

	if err := Apply(modelTree(), root, false, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got := mustRead(t, root)
	if _, ok := got.Value("Extra"); !ok {
		t.Error("merge apply deleted value Extra")
	}
	if _, ok := got.SubKey("Other"); !ok {
		t.Error("merge apply deleted subkey Other")
	}
	w, _ := got.SubKey("Window")
	if _, ok := w.Value("Height"); !ok {
		t.Error("merge apply deleted nested value Height")
	}
}

func TestValueAndSubKeyMayShareName(t *testing.T) {
	_, root := setupStore(t)

	model := tree.NewNode("MyApp")
	model.Values = []tree.Value{value("Shared", tree.KindString, "value")}
	model.SubKeys = []*tree.Node{tree.NewNode("Shared")}

	if err := Apply(model, root, true, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	got := mustRead(t, root)
	if _, ok := got.Value("Shared"); !ok {
		t.Error("value Shared missing")
	}
	if _, ok := got.SubKey("Shared"); !ok {
		t.Error("subkey Shared missing")
	}
}

func TestApply_FailureDoesNotPrune(t *testing.T) {
	s, root := setupStore(t)
	mustSet(t, root, "Stale", tree.KindString, "x")

	s.SetFault(func(op memstore.Op, path, name string) error {
		if op == memstore.OpSet && name == "Width" {
			return errors.New("injected")
		}
		return nil
	})

	err := Apply(modelTree(), root, true, nil)
	if !errors.Is(err, store.ErrAccess) {
		t.Fatalf("Apply() error = %v, want ErrAccess", err)
	}

	s.SetFault(nil)
	if _, _, err := root.GetValue("Stale"); err != nil {
		t.Errorf("Stale was deleted although the apply failed: %v", err)
	}
}

func TestApply_FormatErrorAborts(t *testing.T) {
	_, root := setupStore(t)

	model := tree.NewNode("MyApp")
	model.Values = []tree.Value{
		value("Good", tree.KindString, "ok"),
		value("Bad", tree.KindInt32, "not-a-number"),
	}

	if err := Apply(model, root, false, nil); err == nil {
		t.Fatal("Apply() should fail on a malformed Int32")
	}
}

func TestHandlesReleased(t *testing.T) {
	s, root := setupStore(t)

	if err := Apply(modelTree(), root, true, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	mustRead(t, root)
	if got := s.OpenHandles(); got != 1 {
		t.Errorf("open handles after success = %d, want 1 (the root)", got)
	}

	s.SetFault(func(op memstore.Op, path, name string) error {
		if op == memstore.OpGet && name == "0" {
			return errors.New("injected")
		}
		return nil
	})
	if _, err := Read(root); err == nil {
		t.Fatal("Read() should fail")
	}
	if got := s.OpenHandles(); got != 1 {
		t.Errorf("open handles after failed read = %d, want 1", got)
	}
}

func TestSyncer(t *testing.T) {
	_, root := setupStore(t)
	syncer := New(log.New(io.Discard, "", 0))

	stats, err := syncer.Apply(modelTree(), root, false)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if stats.ValuesSet != 9 || stats.KeysCreated != 2 {
		t.Errorf("stats = %+v, want 9 values set and 2 keys created", stats)
	}

	n, err := syncer.Read(root)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if keys, values := n.Count(); keys != 3 || values != 9 {
		t.Errorf("Count() = (%d, %d), want (3, 9)", keys, values)
	}
}
