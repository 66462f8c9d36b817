package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/regsync/regsync/internal/store"
)

// poller watches the change counter. The counter is store-wide, so a change
// outside the subscribed subtree also produces a notification.
type poller struct {
	s        *Store
	interval time.Duration
	onChange func()

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// Subscribe implements store.Backend.
func (s *Store) Subscribe(k store.Key, onChange func()) (store.Subscription, error) {
	sk, ok := k.(*key)
	if !ok || sk.s != s {
		return nil, fmt.Errorf("%w: key %s does not belong to this store", store.ErrAccess, k.Path())
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	return &poller{s: s, interval: s.pollInterval, onChange: onChange}, nil
}

func (p *poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}
	if p.stopped {
		return fmt.Errorf("poller already stopped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	last, err := p.s.changeCounter(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to read change counter: %w", err)
	}

	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.poll(ctx, last)
	return nil
}

func (p *poller) Stop() error {
	p.mu.Lock()
	p.stopped = true
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	return nil
}

func (p *poller) poll(ctx context.Context, last int64) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := p.s.changeCounter(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Log error but keep polling
				p.s.logger.Printf("failed to read change counter: %v", err)
				continue
			}
			if n == last {
				continue
			}
			last = n
			if ctx.Err() != nil {
				return
			}
			p.onChange()
		}
	}
}
