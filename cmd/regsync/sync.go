package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/VictoriaMetrics/metrics"

	"github.com/regsync/regsync/internal/config"
	"github.com/regsync/regsync/internal/daemon"
	"github.com/regsync/regsync/internal/document"
	"github.com/regsync/regsync/internal/logging"
	"github.com/regsync/regsync/internal/store"
	"github.com/regsync/regsync/internal/sync"
	"github.com/regsync/regsync/internal/ui"
)

// loggerSetter is implemented by backends that log on their own.
type loggerSetter interface {
	SetLogger(*log.Logger)
}

// openStore opens the configured backend and the root key. Callers close
// both, root first.
func openStore(cfg *config.Config, writable bool, logs *logging.Factory) (store.Backend, store.Key, error) {
	backend, err := store.OpenBackend(cfg.Store, cfg.StoreDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open %s store: %w", daemon.ErrSetup, cfg.Store, err)
	}
	if ls, ok := backend.(loggerSetter); ok && logs != nil {
		ls.SetLogger(logs.Logger("store").Std())
	}

	root, err := backend.Open(cfg.Root, writable)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("%w: failed to open %s: %w", daemon.ErrSetup, cfg.Root, err)
	}
	return backend, root, nil
}

func daemonMode(m config.Mode) daemon.Mode {
	switch m {
	case config.ModeRestore:
		return daemon.ModeRestore
	case config.ModeBackup:
		return daemon.ModeBackup
	default:
		return daemon.ModeSync
	}
}

func runSync(cfg *config.Config) error {
	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	opts.File = cfg.LogFile
	logs, err := logging.Open(opts)
	if err != nil {
		return err
	}
	defer logs.Close()

	logger := logs.Logger("regsync")
	logger.Debugf("configuration:\n%s", cfg)

	// Surface permission problems on the document before touching the store.
	if err := document.Touch(cfg.Document); err != nil {
		return fmt.Errorf("%w: %w", daemon.ErrSetup, err)
	}

	mode := daemonMode(cfg.Mode)
	backend, root, err := openStore(cfg, mode != daemon.ModeBackup, logs)
	if err != nil {
		return err
	}
	defer backend.Close()
	defer root.Close()

	if cfg.Strict && mode != daemon.ModeBackup && !cfg.Yes && ui.IsInteractive() {
		ok, err := ui.Confirm(
			fmt.Sprintf("Strict restore of %s?", cfg.Root),
			"Values and keys not named in "+filepath.Base(cfg.Document)+" will be deleted.",
		)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s Aborted\n", ui.RenderWarn("⚠"))
			return nil
		}
	}

	set := metrics.NewSet()
	d, err := daemon.NewWithConfig(backend, root, cfg.Document, &daemon.Config{
		Mode:    mode,
		Strict:  cfg.Strict,
		Logger:  logs.Logger("daemon").Std(),
		Syncer:  sync.New(logs.Logger("sync").Std()),
		Metrics: set,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == daemon.ModeSync {
		fmt.Printf("%s Syncing %s with %s\n", ui.RenderAccent("→"), cfg.Root, cfg.Document)
		fmt.Printf("\n%s\n\n", ui.RenderMuted("Press Ctrl+C to stop"))
	}

	runErr := d.Run(ctx)

	if cfg.MetricsFile != "" {
		if err := writeMetrics(cfg.MetricsFile, d); err != nil {
			logger.Warnf("failed to write metrics: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	switch mode {
	case daemon.ModeRestore:
		fmt.Printf("%s Restored %s from %s\n", ui.RenderPass("✓"), cfg.Root, cfg.Document)
	case daemon.ModeBackup:
		fmt.Printf("%s Saved %s to %s\n", ui.RenderPass("✓"), cfg.Root, cfg.Document)
	default:
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	}
	return nil
}

func writeMetrics(path string, d *daemon.Daemon) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	d.WriteMetrics(f)
	return f.Close()
}
