//go:build windows

package winreg

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/regsync/regsync/internal/store"
)

const notifyFilter = windows.REG_NOTIFY_CHANGE_NAME |
	windows.REG_NOTIFY_CHANGE_LAST_SET |
	windows.REG_NOTIFY_THREAD_AGNOSTIC

// notifier waits on RegNotifyChangeKeyValue for a subtree. The registration
// is re-armed after every signal, and changes made in between collapse into
// the next signal.
type notifier struct {
	path     string
	k        registry.Key
	onChange func()

	changed windows.Handle
	stop    windows.Handle
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// Subscribe implements store.Backend. It opens a private handle on the key
// so the subscription outlives the caller's handle.
func (s *Store) Subscribe(k store.Key, onChange func()) (store.Subscription, error) {
	rk, ok := k.(*key)
	if !ok {
		return nil, fmt.Errorf("%w: key %s does not belong to the registry", store.ErrAccess, k.Path())
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}

	h, err := registry.OpenKey(rk.k, "", registry.NOTIFY)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for notification: %w", rk.path, mapErr(err))
	}
	return &notifier{path: rk.path, k: h, onChange: onChange}, nil
}

func (n *notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("notifier already running")
	}
	if n.stopped {
		return fmt.Errorf("notifier already stopped")
	}

	changed, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return fmt.Errorf("failed to create change event: %w", err)
	}
	stop, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		windows.CloseHandle(changed)
		return fmt.Errorf("failed to create stop event: %w", err)
	}
	if err := n.arm(changed); err != nil {
		windows.CloseHandle(changed)
		windows.CloseHandle(stop)
		return fmt.Errorf("failed to watch %s: %w", n.path, err)
	}

	n.changed = changed
	n.stop = stop
	n.running = true
	n.wg.Add(1)
	go n.wait()
	return nil
}

func (n *notifier) Stop() error {
	n.mu.Lock()
	if !n.running {
		if !n.stopped {
			n.stopped = true
			n.k.Close()
		}
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.stopped = true
	n.mu.Unlock()

	windows.SetEvent(n.stop)
	n.wg.Wait()

	windows.CloseHandle(n.changed)
	windows.CloseHandle(n.stop)
	return n.k.Close()
}

func (n *notifier) arm(event windows.Handle) error {
	return windows.RegNotifyChangeKeyValue(windows.Handle(n.k), true, notifyFilter, event, true)
}

func (n *notifier) wait() {
	defer n.wg.Done()

	handles := []windows.Handle{n.changed, n.stop}
	for {
		ev, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)
		if err != nil || ev != windows.WAIT_OBJECT_0 {
			return
		}
		// Re-arm before the callback so a change made while it runs is
		// not lost.
		if err := n.arm(n.changed); err != nil {
			return
		}
		n.onChange()
	}
}
