package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/regsync/regsync/internal/logging"
	"github.com/regsync/regsync/internal/store"
	_ "github.com/regsync/regsync/internal/store/dirstore"
	_ "github.com/regsync/regsync/internal/store/memstore"
	_ "github.com/regsync/regsync/internal/store/winreg"
)

// setup parses args into a fresh flag set bound to a fresh viper.
func setup(t *testing.T, args ...string) *viper.Viper {
	t.Helper()

	fs := pflag.NewFlagSet("regsync", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	v := viper.New()
	Init(v)
	if err := Bind(v, fs); err != nil {
		t.Fatalf("Bind() failed: %v", err)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := setup(t)

	cfg, err := Load(v, "doc.json", `HKCU\Software\App`)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Mode != ModeSync || cfg.Strict || cfg.Yes {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Root.Hive != store.HiveCurrentUser || cfg.Root.SubPath != `Software\App` {
		t.Errorf("Root = %+v", cfg.Root)
	}
	if !filepath.IsAbs(cfg.Document) {
		t.Errorf("Document = %q, want an absolute path", cfg.Document)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.Store != DefaultStore() || cfg.StoreDSN != DefaultDSN(DefaultStore()) {
		t.Errorf("store = %q at %q", cfg.Store, cfg.StoreDSN)
	}
}

func TestLoad_Modes(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Mode
		strict  bool
		wantErr error
	}{
		{"restore", []string{"--restore"}, ModeRestore, false, nil},
		{"backup", []string{"--backup"}, ModeBackup, false, nil},
		{"explicit sync full", []string{"--sync", "--full"}, ModeSync, true, nil},
		{"restore full", []string{"--restore", "--full"}, ModeRestore, true, nil},
		{"conflict", []string{"--restore", "--backup"}, "", false, ErrConflictingModes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := setup(t, append(tt.args, "--store", "memory")...)
			cfg, err := Load(v, "doc.json", "HKLM")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if cfg.Mode != tt.want || cfg.Strict != tt.strict {
				t.Errorf("mode = %s strict = %t, want %s %t", cfg.Mode, cfg.Strict, tt.want, tt.strict)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		root    string
		wantErr error
	}{
		{"bad hive", nil, `HKEY_NOWHERE\x`, store.ErrUnsupportedRoot},
		{"unknown backend", []string{"--store", "carrier-pigeon"}, "HKLM", store.ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := setup(t, tt.args...)
			if _, err := Load(v, "doc.json", tt.root); !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	v := setup(t, "--log-level", "chatty")
	if _, err := Load(v, "doc.json", "HKLM"); err == nil {
		t.Error("Load() should reject an invalid log level")
	}
}

func TestLoad_EnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("REGSYNC_STORE", "memory")
	t.Setenv("REGSYNC_LOG_LEVEL", "debug")

	v := setup(t)
	cfg, err := Load(v, "doc.json", "HKCU")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store != "memory" || cfg.LogLevel != logging.LevelDebug {
		t.Errorf("store = %q level = %v, want memory/debug from the environment", cfg.Store, cfg.LogLevel)
	}
}

func TestLoad_FlagBeatsEnvironment(t *testing.T) {
	t.Setenv("REGSYNC_STORE", "memory")

	v := setup(t, "--store", "dir", "--store-dsn", "/tmp/x")
	cfg, err := Load(v, "doc.json", "HKCU")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store != "dir" || cfg.StoreDSN != "/tmp/x" {
		t.Errorf("store = %q at %q, want dir at /tmp/x", cfg.Store, cfg.StoreDSN)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regsync.yaml")
	content := "store: memory\nfull: true\nmetrics-file: /tmp/metrics.prom\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	v := setup(t, "--config", path)
	cfg, err := Load(v, "doc.json", "HKCU")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store != "memory" || !cfg.Strict || cfg.MetricsFile != "/tmp/metrics.prom" {
		t.Errorf("config file not applied: %+v", cfg)
	}
}

func TestConfig_String(t *testing.T) {
	v := setup(t, "--store", "memory")
	cfg, err := Load(v, "doc.json", "HKCU")
	if err != nil {
		t.Fatal(err)
	}
	s := cfg.String()
	for _, want := range []string{"root:         HKEY_CURRENT_USER", "store:        memory", "mode:         sync"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}
