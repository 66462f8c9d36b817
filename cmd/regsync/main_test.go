package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/viper"

	"github.com/regsync/regsync/internal/config"
	"github.com/regsync/regsync/internal/document"
	"github.com/regsync/regsync/internal/tree"
	"github.com/regsync/regsync/internal/ui"
)

func init() {
	color.NoColor = true
	ui.SetColor(false)
}

func sample() *tree.Node {
	n := tree.NewNode("MyApp")
	n.Values = []tree.Value{
		{Name: "Color", Kind: tree.KindString, Data: tree.StringPtr("Blue")},
		{Name: "Count", Kind: tree.KindInt32, Data: tree.StringPtr("1")},
	}
	return n
}

func TestPrintDiff_InSync(t *testing.T) {
	live := sample()
	live.Name = "OtherName"

	var buf bytes.Buffer
	if err := printDiff(&buf, sample(), live); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "in sync") {
		t.Errorf("output = %q, want in sync", buf.String())
	}
}

func TestPrintDiff_Lines(t *testing.T) {
	live := sample()
	live.Values[0].Data = tree.StringPtr("Red")

	var buf bytes.Buffer
	if err := printDiff(&buf, sample(), live); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"--- document", "+++ store", `-      "value": "Blue"`, `+      "value": "Red"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintDiff_MergePatch(t *testing.T) {
	mergePatch = true
	t.Cleanup(func() { mergePatch = false })

	live := sample()
	live.SubKeys = []*tree.Node{tree.NewNode("Added")}

	var buf bytes.Buffer
	if err := printDiff(&buf, sample(), live); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), `{"subKeys":[`) {
		t.Errorf("merge patch = %s", buf.String())
	}
}

func TestVisibleLines(t *testing.T) {
	lines := make([]document.DiffLine, 12)
	lines[6].Op = document.DiffInsert

	shown := visibleLines(lines, 2)
	for i, s := range shown {
		want := i >= 4 && i <= 8
		if s != want {
			t.Errorf("line %d shown = %v, want %v", i, s, want)
		}
	}
}

func TestRootCommand_Help(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "regsync [flags] DOCUMENT ROOT") {
		t.Errorf("help output = %q", buf.String())
	}
}

func TestRootCommand_WrongArgCount(t *testing.T) {
	rootCmd.SetArgs([]string{"only-one"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err == nil {
		t.Error("Execute() should reject a single argument")
	}
}

func TestExitCodeFor_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		root     string
		want     int
	}{
		{"unsupported hive", nil, `HKEY_BOGUS\Software`, exitSetup},
		{"unknown backend", map[string]any{config.KeyStore: "nope"}, `HKCU\Software\App`, exitSetup},
		{"conflicting modes", map[string]any{config.KeyRestore: true, config.KeyBackup: true}, `HKCU\Software\App`, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := viper.New()
			for k, val := range tt.settings {
				cv.Set(k, val)
			}
			_, err := config.Load(cv, "doc.json", tt.root)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if got := exitCodeFor(err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", err, got, tt.want)
			}
		})
	}
}
