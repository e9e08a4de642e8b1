package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPoolInterval is the pool snapshot refresh period.
	DefaultPoolInterval = 15 * time.Second
	// DefaultBalanceInterval is the wallet balance refresh period.
	DefaultBalanceInterval = 8 * time.Second
)

// FetchFunc produces a fresh snapshot.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Snapshot is one fetched value with its fetch time.
type Snapshot[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Poller refreshes one resource on a fixed interval. It is the only writer of
// its snapshot; readers get the latest immutable value.
type Poller[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	logger   *zap.Logger

	latest  atomic.Pointer[Snapshot[T]]
	lastErr atomic.Pointer[error]
	updates chan Snapshot[T]

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func New[T any](name string, interval time.Duration, fetch FetchFunc[T], logger *zap.Logger) (*Poller[T], error) {
	if fetch == nil {
		return nil, fmt.Errorf("poller %s: fetch func is nil", name)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("poller %s: interval must be positive", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger.With(zap.String("poller", name)),
		updates:  make(chan Snapshot[T], 1),
	}, nil
}

// Start fetches once immediately, then every interval until ctx is done or
// Stop is called. Starting twice is an error.
func (p *Poller[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return fmt.Errorf("poller %s: already stopped", p.name)
	}
	if p.cancel != nil {
		return fmt.Errorf("poller %s: already started", p.name)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller[T]) refresh(ctx context.Context) {
	value, err := p.fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.lastErr.Store(&err)
		p.logger.Warn("poll failed", zap.Error(err))
		return
	}
	p.lastErr.Store(nil)

	snap := &Snapshot[T]{Value: value, FetchedAt: time.Now().UTC()}
	p.latest.Store(snap)

	// latest wins: drop an unread update before publishing
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- *snap:
	default:
	}
}

// Latest returns the most recent snapshot.
func (p *Poller[T]) Latest() (Snapshot[T], bool) {
	snap := p.latest.Load()
	if snap == nil {
		return Snapshot[T]{}, false
	}
	return *snap, true
}

// Err returns the error of the last poll, nil after a success.
func (p *Poller[T]) Err() error {
	if err := p.lastErr.Load(); err != nil {
		return *err
	}
	return nil
}

// Updates delivers new snapshots. Only the newest unread one is kept.
func (p *Poller[T]) Updates() <-chan Snapshot[T] {
	return p.updates
}

// Stop clears the ticker and waits for the loop to exit.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
