package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const seenCapacity = 512

// Relay publishes local changes on every backend and turns foreign events
// into a debounced refresh.
type Relay struct {
	origin   string
	debounce time.Duration
	backends []Backend

	mu       sync.Mutex
	seen     map[string]struct{}
	seenRing []string
	seenPos  int
	timer    *time.Timer
}

// New creates a relay with a fresh origin id.
func New(debounce time.Duration, backends ...Backend) *Relay {
	return &Relay{
		origin:   uuid.NewString(),
		debounce: debounce,
		backends: backends,
		seen:     make(map[string]struct{}, seenCapacity),
		seenRing: make([]string, seenCapacity),
	}
}

func (r *Relay) Origin() string {
	return r.origin
}

// Broadcast never fails the caller; delivery errors are logged.
func (r *Relay) Broadcast(ctx context.Context, action Action, data interface{}) {
	ev, err := NewEvent(r.origin, action, data)
	if err != nil {
		log.Printf("relay: %v", err)
		return
	}
	for _, b := range r.backends {
		if err := b.Publish(ctx, ev); err != nil {
			log.Printf("relay: publish %s on %s failed: %v", action, b.Name(), err)
		}
	}
}

// Listen subscribes to every available backend and calls refresh, debounced,
// after foreign events. Each event id is handled once even when it arrives on
// several backends. It returns once the subscriptions are set up.
func (r *Relay) Listen(ctx context.Context, refresh func(Event)) error {
	var streams []<-chan Event
	for _, b := range r.backends {
		if !b.Available(ctx) {
			log.Printf("relay: backend %s unavailable, skipping", b.Name())
			continue
		}
		ch, err := b.Subscribe(ctx)
		if err != nil {
			log.Printf("relay: subscribe on %s failed: %v", b.Name(), err)
			continue
		}
		streams = append(streams, ch)
	}

	for _, ch := range streams {
		go func(ch <-chan Event) {
			for ev := range ch {
				r.handle(ev, refresh)
			}
		}(ch)
	}

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		if r.timer != nil {
			r.timer.Stop()
		}
		r.mu.Unlock()
	}()
	return nil
}

func (r *Relay) handle(ev Event, refresh func(Event)) {
	if ev.Origin == r.origin {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[ev.ID]; dup {
		return
	}
	r.remember(ev.ID)

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() { refresh(ev) })
}

// remember keeps the last seenCapacity ids.
func (r *Relay) remember(id string) {
	if old := r.seenRing[r.seenPos]; old != "" {
		delete(r.seen, old)
	}
	r.seenRing[r.seenPos] = id
	r.seen[id] = struct{}{}
	r.seenPos = (r.seenPos + 1) % len(r.seenRing)
}

func (r *Relay) Close() error {
	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			log.Printf("relay: closing %s: %v", b.Name(), err)
		}
	}
	return nil
}
