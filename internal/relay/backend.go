package relay

import (
	"context"
	"sync"
)

// Backend is one delivery path for events. Subscribe returns a channel that
// is closed once ctx is done or the backend is closed.
type Backend interface {
	Name() string
	Available(ctx context.Context) bool
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

const subscriberBuffer = 64

// LocalBus fans events out to subscribers in the same process.
type LocalBus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[chan Event]struct{})}
}

func (b *LocalBus) Name() string { return "local" }

func (b *LocalBus) Available(context.Context) bool { return true }

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

// Handle calls fn for every event published on the bus, including events from
// this process, until ctx is done or the bus is closed.
func (b *LocalBus) Handle(ctx context.Context, fn func(Event)) error {
	ch, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()
	return nil
}

func (b *LocalBus) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
