package dirstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/regsync/regsync/internal/store"
)

// watcher delivers change notifications for a key directory and everything
// below it. fsnotify watches single directories, so the watcher adds every
// directory in the subtree on Start and each new one as it appears.
type watcher struct {
	s        *Store
	root     string
	onChange func()

	fsw    *fsnotify.Watcher
	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// Subscribe implements store.Backend.
func (s *Store) Subscribe(k store.Key, onChange func()) (store.Subscription, error) {
	dk, ok := k.(*key)
	if !ok || dk.s != s {
		return nil, fmt.Errorf("%w: key %s does not belong to this store", store.ErrAccess, k.Path())
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &watcher{
		s:        s,
		root:     dk.dir,
		onChange: onChange,
		fsw:      fsw,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

func (w *watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	if err := w.addTree(w.root); err != nil {
		w.fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	w.running = true
	w.wg.Add(2)
	go w.processEvents()
	go w.deliver()
	return nil
}

func (w *watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		if !w.stopped {
			w.stopped = true
			w.fsw.Close()
		}
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// addTree watches dir and every directory below it.
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.s.logger.Printf("failed to watch new directory %s: %v", event.Name, err)
					}
				}
			}
			w.notify()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// An overflow means events were dropped; report a change so the
			// subscriber rereads the store.
			w.s.logger.Printf("watch error: %v", err)
			w.notify()
		}
	}
}

// relevant filters out chmod events and the temp files of values writes.
func (w *watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), valuesFile+".tmp-")
}

func (w *watcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) deliver() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
			select {
			case <-w.done:
				return
			default:
			}
			w.onChange()
		}
	}
}
