package memstore

import (
	"fmt"
	"sync"

	"github.com/regsync/regsync/internal/store"
)

type subscription struct {
	s        *Store
	n        *node
	onChange func()

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// Subscribe implements store.Backend. Notifications are delivered from a
// goroutine owned by the subscription; changes made while a callback runs
// collapse into a single further call.
func (s *Store) Subscribe(k store.Key, onChange func()) (store.Subscription, error) {
	mk, ok := k.(*key)
	if !ok || mk.s != s {
		return nil, fmt.Errorf("%w: key %s does not belong to this store", store.ErrAccess, k.Path())
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	return &subscription{
		s:        s,
		n:        mk.n,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

func (sub *subscription) Start() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.running {
		return fmt.Errorf("subscription already running")
	}
	if sub.stopped {
		return fmt.Errorf("subscription already stopped")
	}

	sub.s.mu.Lock()
	sub.s.subs[sub] = struct{}{}
	sub.s.mu.Unlock()

	sub.running = true
	sub.wg.Add(1)
	go sub.deliver()
	return nil
}

func (sub *subscription) Stop() error {
	sub.mu.Lock()
	if !sub.running {
		sub.stopped = true
		sub.mu.Unlock()
		return nil
	}
	sub.running = false
	sub.stopped = true
	sub.mu.Unlock()

	sub.s.mu.Lock()
	delete(sub.s.subs, sub)
	sub.s.mu.Unlock()

	close(sub.done)
	sub.wg.Wait()
	return nil
}

func (sub *subscription) deliver() {
	defer sub.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case <-sub.signal:
			select {
			case <-sub.done:
				return
			default:
			}
			sub.onChange()
		}
	}
}

// notifyLocked signals every subscription watching n or one of its
// ancestors. Callers hold s.mu.
func (s *Store) notifyLocked(n *node) {
	for sub := range s.subs {
		if !sub.covers(n) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (sub *subscription) covers(n *node) bool {
	for m := n; m != nil; m = m.parent {
		if m == sub.n {
			return true
		}
	}
	return false
}
