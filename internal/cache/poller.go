package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"conveniencia/internal/models"

	"golang.org/x/sync/singleflight"
)

// ErrTimeout is returned when a fetch exceeds its deadline.
var ErrTimeout = errors.New("fetch timed out")

// Source is where the poller reads from.
type Source interface {
	LoadOpenSet(ctx context.Context) ([]models.Tab, []models.OrderLine, error)
	LoadProducts(ctx context.Context) ([]models.Product, error)
}

type PollerConfig struct {
	Interval         time.Duration
	LoadTimeout      time.Duration
	RefreshTimeout   time.Duration
	FailureThreshold int
	MaxSkipCycles    int
}

type Status struct {
	LastSuccess time.Time `json:"last_success"`
	Failures    int       `json:"consecutive_failures"`
	LastError   string    `json:"last_error,omitempty"`
	Stale       bool      `json:"stale"`
}

// Poller refreshes the store on an interval and on demand. Refreshes never
// overlap; after FailureThreshold consecutive failures it skips a growing
// number of ticks until a fetch succeeds again.
type Poller struct {
	store  *Store
	source Source
	cfg    PollerConfig

	group   singleflight.Group
	trigger chan struct{}

	mu          sync.Mutex
	failures    int
	skip        int
	lastSuccess time.Time
	lastErr     error
}

func NewPoller(store *Store, source Source, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.MaxSkipCycles <= 0 {
		cfg.MaxSkipCycles = 8
	}
	return &Poller{
		store:   store,
		source:  source,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}
}

const openSetKey = "open-set"

// Load fetches the catalog and the open set.
func (p *Poller) Load(ctx context.Context) error {
	_, err, _ := p.group.Do("products", func() (interface{}, error) {
		return nil, p.fetchProducts(ctx)
	})
	if err != nil {
		return p.fail(err)
	}
	return p.fetchOpenSet(ctx, p.cfg.LoadTimeout)
}

// Refresh re-reads the open set. Concurrent callers, Load included, share
// one fetch.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.fetchOpenSet(ctx, p.cfg.RefreshTimeout)
}

// RefreshProducts re-reads the catalog only.
func (p *Poller) RefreshProducts(ctx context.Context) error {
	_, err, _ := p.group.Do("products", func() (interface{}, error) {
		return nil, p.fetchProducts(ctx)
	})
	return err
}

func (p *Poller) fetchProducts(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, p.cfg.LoadTimeout)
	defer cancel()
	products, err := p.source.LoadProducts(ctx)
	if err != nil {
		return wrapTimeout(ctx, err)
	}
	p.store.Dispatch(ReplaceProducts{Products: products})
	return nil
}

func (p *Poller) fetchOpenSet(ctx context.Context, timeout time.Duration) error {
	_, err, _ := p.group.Do(openSetKey, func() (interface{}, error) {
		return nil, p.fetch(ctx, timeout)
	})
	return err
}

func (p *Poller) fetch(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	tabs, lines, err := p.source.LoadOpenSet(ctx)
	if err != nil {
		return p.fail(wrapTimeout(ctx, err))
	}

	now := time.Now()
	p.store.Dispatch(ReplaceOpenSet{Tabs: tabs, Lines: lines, At: now})

	p.mu.Lock()
	p.failures = 0
	p.skip = 0
	p.lastSuccess = now
	p.lastErr = nil
	p.mu.Unlock()
	return nil
}

func (p *Poller) fail(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	p.lastErr = err
	if p.failures >= p.cfg.FailureThreshold {
		shift := p.failures - p.cfg.FailureThreshold
		p.skip = p.cfg.MaxSkipCycles
		if shift < 31 && 1<<shift < p.cfg.MaxSkipCycles {
			p.skip = 1 << shift
		}
		log.Printf("cache: %d consecutive refresh failures, skipping %d cycles: %v", p.failures, p.skip, err)
	} else {
		log.Printf("cache: refresh failed (%d): %v", p.failures, err)
	}
	return err
}

// Trigger asks Run for an immediate refresh, ignoring any backoff. Used on
// focus or visibility changes and after relay events.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.shouldSkip() {
				continue
			}
			p.Refresh(ctx)
		case <-p.trigger:
			p.Refresh(ctx)
		}
	}
}

func (p *Poller) shouldSkip() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.skip > 0 {
		p.skip--
		return true
	}
	return false
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		LastSuccess: p.lastSuccess,
		Failures:    p.failures,
		Stale:       p.lastSuccess.IsZero() || p.failures >= p.cfg.FailureThreshold,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func wrapTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
