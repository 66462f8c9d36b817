package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/regsync/regsync/internal/document"
	"github.com/regsync/regsync/internal/store"
	treesync "github.com/regsync/regsync/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// Mode selects restore, backup, or the full sync loop.
	Mode Mode

	// Strict deletes values and subkeys the document does not name during
	// restore.
	Strict bool

	// Logger for daemon activity
	Logger *log.Logger

	// Syncer moves snapshots between the store and trees. Defaults to a
	// syncer logging with the "[sync] " prefix.
	Syncer treesync.Syncer

	// Metrics receives the daemon's counters. A private set is created
	// when nil.
	Metrics *metrics.Set
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:   ModeSync,
		Logger: log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon synchronizes one store subtree with one document.
type Daemon struct {
	backend store.Backend
	root    store.Key
	docPath string
	config  *Config
	syncer  treesync.Syncer
	metrics *daemonMetrics

	state atomic.Int32

	// dirty is the single-slot change signal. A full slot means a dump is
	// already pending.
	dirty chan struct{}
}

// New creates a new Daemon for the subtree at root, which must be open for
// writing on backend. The caller owns root and closes it after Run returns.
func New(backend store.Backend, root store.Key, docPath string) (*Daemon, error) {
	return NewWithConfig(backend, root, docPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(backend store.Backend, root store.Key, docPath string, config *Config) (*Daemon, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if root == nil {
		return nil, fmt.Errorf("root cannot be nil")
	}
	if docPath == "" {
		return nil, fmt.Errorf("docPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	syncer := config.Syncer
	if syncer == nil {
		syncer = treesync.New(nil)
	}

	return &Daemon{
		backend: backend,
		root:    root,
		docPath: docPath,
		config:  config,
		syncer:  syncer,
		metrics: newMetrics(config.Metrics),
		dirty:   make(chan struct{}, 1),
	}, nil
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

func (d *Daemon) setState(s State) {
	d.state.Store(int32(s))
}

// WriteMetrics writes the daemon's metrics in Prometheus text format.
func (d *Daemon) WriteMetrics(w io.Writer) {
	d.metrics.set.WritePrometheus(w)
}

// Run performs the steps selected by the mode. In ModeSync it blocks until
// ctx is cancelled; the other modes return when their single step is done.
//
// A failed restore is logged and skipped in ModeSync but returned in
// ModeRestore. A failed initial dump is returned in ModeBackup only.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.setState(StateStopped)

	logger := d.config.Logger
	logger.Printf("Starting %s of %s with %s", d.config.Mode, d.root.Path(), d.docPath)

	if d.config.Mode.restores() {
		d.setState(StateRestoreInProgress)
		if err := d.Restore(); err != nil {
			if d.config.Mode == ModeRestore {
				return err
			}
			logger.Printf("Error: restore failed, continuing with live state: %v", err)
		}
	}

	if d.config.Mode.dumps() {
		if err := d.Dump(); err != nil {
			if d.config.Mode == ModeBackup {
				return err
			}
			logger.Printf("Error: initial dump failed: %v", err)
		}
	}

	if !d.config.Mode.watches() {
		logger.Printf("Done")
		return nil
	}
	return d.watch(ctx)
}

// Restore applies the document to the store. A missing or empty document
// is not an error: there is nothing to restore.
func (d *Daemon) Restore() error {
	ok, err := document.Exists(d.docPath)
	if err != nil {
		return err
	}
	if !ok {
		d.config.Logger.Printf("No document at %s, nothing to restore", d.docPath)
		return nil
	}

	d.metrics.restores.Inc()
	model, err := document.Load(d.docPath)
	if err != nil {
		d.metrics.restoreFailures.Inc()
		return fmt.Errorf("failed to load %s: %w", d.docPath, err)
	}
	if _, err := d.syncer.Apply(model, d.root, d.config.Strict); err != nil {
		d.metrics.restoreFailures.Inc()
		return fmt.Errorf("failed to restore %s: %w", d.root.Path(), err)
	}
	return nil
}

// Dump reads the store and saves the snapshot to the document.
func (d *Daemon) Dump() error {
	watching := d.State() == StateWatching
	d.setState(StateBackupInProgress)
	if watching {
		defer d.setState(StateWatching)
	}

	start := time.Now()
	d.metrics.dumps.Inc()

	node, err := d.syncer.Read(d.root)
	if err == nil {
		err = document.Save(d.docPath, node)
	}
	d.metrics.dumpDuration.UpdateDuration(start)
	if err != nil {
		d.metrics.dumpFailures.Inc()
		return fmt.Errorf("failed to dump %s: %w", d.root.Path(), err)
	}
	return nil
}

// markDirty is the notification callback. It never blocks.
func (d *Daemon) markDirty() {
	d.metrics.notifications.Inc()
	select {
	case d.dirty <- struct{}{}:
	default:
		d.metrics.dumpsCoalesced.Inc()
	}
}

func (d *Daemon) watch(ctx context.Context) error {
	logger := d.config.Logger

	sub, err := d.backend.Subscribe(d.root, d.markDirty)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", d.root.Path(), err)
	}
	if err := sub.Start(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.root.Path(), err)
	}
	d.setState(StateWatching)
	logger.Printf("Watching %s", d.root.Path())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go d.worker(stop, &wg)

	<-ctx.Done()
	logger.Println("Shutdown signal received")

	// No callback runs once Stop returns, so nothing refills the slot.
	if err := sub.Stop(); err != nil {
		logger.Printf("Error stopping subscription: %v", err)
	}
	close(stop)
	wg.Wait()

	logger.Println("Daemon stopped")
	return nil
}

// worker performs one dump per drained signal until stop is closed. A dump
// that has started always runs to completion. stop is closed only after the
// subscription has stopped, so a signal still in the slot at that point is
// the last change the store reported and gets one final dump.
func (d *Daemon) worker(stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-stop:
			select {
			case <-d.dirty:
				d.dumpAndLog()
			default:
			}
			return
		case <-d.dirty:
			d.dumpAndLog()
		}
	}
}

// dumpAndLog runs one dump from the watch loop. Failures are logged and
// the loop keeps watching.
func (d *Daemon) dumpAndLog() {
	err := d.Dump()
	if err == nil {
		return
	}
	if IsRetryable(err) {
		d.config.Logger.Printf("Error: %v (retrying on next change)", err)
		return
	}
	d.config.Logger.Printf("Error: %v", err)
}
