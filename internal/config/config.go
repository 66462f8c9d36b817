// Package config resolves regsync's settings from flags, environment
// variables, .env files and an optional config file.
//
// Precedence, highest first: command-line flags, REGSYNC_* environment
// variables (after .env and .env.local are loaded), the config file, flag
// defaults. Flag names map to environment variables by upper-casing and
// replacing "-" with "_", so --store-dsn is REGSYNC_STORE_DSN.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/regsync/regsync/internal/logging"
	"github.com/regsync/regsync/internal/store"
)

// EnvPrefix is prepended to environment variable names.
const EnvPrefix = "regsync"

// Keys shared by flags, environment and config file.
const (
	KeySync        = "sync"
	KeyRestore     = "restore"
	KeyBackup      = "backup"
	KeyFull        = "full"
	KeyStore       = "store"
	KeyStoreDSN    = "store-dsn"
	KeyYes         = "yes"
	KeyLogFile     = "log-file"
	KeyLogLevel    = "log-level"
	KeyMetricsFile = "metrics-file"
	KeyConfig      = "config"
)

// ErrConflictingModes is returned when more than one of --sync, --restore
// and --backup is set.
var ErrConflictingModes = errors.New("only one of --sync, --restore, --backup may be given")

// Mode names the steps a run performs.
type Mode string

const (
	ModeSync    Mode = "sync"
	ModeRestore Mode = "restore"
	ModeBackup  Mode = "backup"
)

// Config is the resolved configuration of one run.
type Config struct {
	Document    string
	Root        store.RootPath
	Mode        Mode
	Strict      bool
	Store       string
	StoreDSN    string
	Yes         bool
	LogFile     string
	LogLevel    logging.Level
	MetricsFile string
}

// DefaultStore returns the backend used when --store is not given.
func DefaultStore() string {
	if runtime.GOOS == "windows" {
		return "registry"
	}
	return "dir"
}

// DefaultDSN returns the default location for a backend, or "" when the
// backend takes none.
func DefaultDSN(backend string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	switch backend {
	case "dir":
		return filepath.Join(base, "regsync", "store")
	case "sqlite":
		return filepath.Join(base, "regsync", "store.db")
	default:
		return ""
	}
}

// AddFlags registers the flags of the root command on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.Bool(KeySync, false, "Restore, dump, then keep the document in sync (default)")
	fs.Bool(KeyRestore, false, "Restore the store from the document and exit")
	fs.Bool(KeyBackup, false, "Dump the store to the document once and exit")
	fs.Bool(KeyFull, false, "Strict restore: delete values and keys the document does not name")
	fs.String(KeyStore, DefaultStore(), "Store backend ("+strings.Join(store.RegisteredBackends(), ", ")+")")
	fs.String(KeyStoreDSN, "", "Backend location (directory for dir, database file for sqlite)")
	fs.BoolP(KeyYes, "y", false, "Do not ask before a strict restore")
	fs.String(KeyLogFile, "", "Write logs to this file, rotated by size")
	fs.String(KeyLogLevel, "info", "Log level: debug, info, warn, error")
	fs.String(KeyMetricsFile, "", "Write metrics in Prometheus text format to this file on exit")
	fs.String(KeyConfig, "", "Config file (yaml, json, toml, ...)")
}

// Init loads .env files and configures environment lookup on v.
func Init(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Bind binds fs to v and reads the config file named by --config, if any.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return nil
}

// Load resolves and validates the configuration for document and root.
func Load(v *viper.Viper, document, root string) (*Config, error) {
	if document == "" {
		return nil, fmt.Errorf("document path cannot be empty")
	}
	rootPath, err := store.ParsePath(root)
	if err != nil {
		return nil, err
	}

	mode, err := resolveMode(v.GetBool(KeySync), v.GetBool(KeyRestore), v.GetBool(KeyBackup))
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}

	backend := v.GetString(KeyStore)
	if backend == "" {
		backend = DefaultStore()
	}
	if !store.IsRegistered(backend) {
		return nil, fmt.Errorf("%w: %q (available: %s)", store.ErrUnknownBackend, backend,
			strings.Join(store.RegisteredBackends(), ", "))
	}
	dsn := v.GetString(KeyStoreDSN)
	if dsn == "" {
		dsn = DefaultDSN(backend)
	}

	abs, err := filepath.Abs(document)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document path: %w", err)
	}

	return &Config{
		Document:    abs,
		Root:        rootPath,
		Mode:        mode,
		Strict:      v.GetBool(KeyFull),
		Store:       backend,
		StoreDSN:    dsn,
		Yes:         v.GetBool(KeyYes),
		LogFile:     v.GetString(KeyLogFile),
		LogLevel:    level,
		MetricsFile: v.GetString(KeyMetricsFile),
	}, nil
}

func resolveMode(sync, restore, backup bool) (Mode, error) {
	n := 0
	mode := ModeSync
	if sync {
		n++
	}
	if restore {
		n++
		mode = ModeRestore
	}
	if backup {
		n++
		mode = ModeBackup
	}
	if n > 1 {
		return "", ErrConflictingModes
	}
	return mode, nil
}

// String returns a multi-line dump for debug logging.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "document:     %s\n", c.Document)
	fmt.Fprintf(&b, "root:         %s\n", c.Root)
	fmt.Fprintf(&b, "mode:         %s\n", c.Mode)
	fmt.Fprintf(&b, "strict:       %t\n", c.Strict)
	fmt.Fprintf(&b, "store:        %s\n", c.Store)
	fmt.Fprintf(&b, "store-dsn:    %s\n", c.StoreDSN)
	fmt.Fprintf(&b, "log-file:     %s\n", c.LogFile)
	fmt.Fprintf(&b, "log-level:    %s\n", c.LogLevel)
	fmt.Fprintf(&b, "metrics-file: %s", c.MetricsFile)
	return b.String()
}
