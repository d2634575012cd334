// Package cache keeps the in-memory mirror of open tabs, their active lines
// and the product catalog.
package cache

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"conveniencia/internal/models"

	"github.com/shopspring/decimal"
)

type Snapshot struct {
	Tabs        []models.Tab       `json:"comandas"`
	Lines       []models.OrderLine `json:"pedidos"`
	Products    []models.Product   `json:"produtos"`
	RefreshedAt time.Time          `json:"refreshed_at"`
	Version     uint64             `json:"version"`
}

// Command is one state transition. Apply reports whether anything changed.
type Command interface {
	Apply(s *Snapshot) bool
}

// Store serializes commands against the snapshot and notifies subscribers
// with the new version after every effective change.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]chan uint64
	nextID int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]chan uint64)}
}

func (s *Store) Dispatch(cmd Command) bool {
	s.mu.Lock()
	changed := cmd.Apply(&s.snap)
	if changed {
		s.snap.Version++
	}
	version := s.snap.Version
	subs := make([]chan uint64, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	if changed {
		for _, ch := range subs {
			select {
			case ch <- version:
			default:
			}
		}
	}
	return changed
}

// Subscribe returns a channel of versions. Slow readers miss intermediate
// versions, never the fact that something changed.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot returns a copy safe to read without holding the lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Tabs:        append([]models.Tab(nil), s.snap.Tabs...),
		Lines:       append([]models.OrderLine(nil), s.snap.Lines...),
		Products:    append([]models.Product(nil), s.snap.Products...),
		RefreshedAt: s.snap.RefreshedAt,
		Version:     s.snap.Version,
	}
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Version
}

func (s *Store) Tab(id string) (models.Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.snap.Tabs {
		if t.ID == id {
			return t, true
		}
	}
	return models.Tab{}, false
}

// Lines returns the loaded lines of a tab in entry order.
func (s *Store) Lines(tabID string) []models.OrderLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lines []models.OrderLine
	for _, l := range s.snap.Lines {
		if l.TabID == tabID {
			lines = append(lines, l)
		}
	}
	return lines
}

// LinesTotal sums the subtotals of the loaded lines of a tab.
func (s *Store) LinesTotal(tabID string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines(tabID) {
		total = total.Add(l.Subtotal)
	}
	return total
}

func (s *Store) Product(id string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.snap.Products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}

// ReplaceOpenSet swaps tabs and lines only when the fetched payload differs
// from what is held.
type ReplaceOpenSet struct {
	Tabs  []models.Tab
	Lines []models.OrderLine
	At    time.Time
}

func (c ReplaceOpenSet) Apply(s *Snapshot) bool {
	if !c.At.IsZero() {
		s.RefreshedAt = c.At
	}
	if sameJSON(s.Tabs, c.Tabs) && sameJSON(s.Lines, c.Lines) {
		return false
	}
	s.Tabs = c.Tabs
	s.Lines = c.Lines
	return true
}

type ReplaceProducts struct {
	Products []models.Product
}

func (c ReplaceProducts) Apply(s *Snapshot) bool {
	if sameJSON(s.Products, c.Products) {
		return false
	}
	s.Products = c.Products
	return true
}

type UpsertTab struct {
	Tab models.Tab
}

func (c UpsertTab) Apply(s *Snapshot) bool {
	if !c.Tab.IsOpen() {
		return RemoveTab{ID: c.Tab.ID}.Apply(s)
	}
	for i := range s.Tabs {
		if s.Tabs[i].ID == c.Tab.ID {
			s.Tabs[i] = c.Tab
			return true
		}
	}
	s.Tabs = append(s.Tabs, c.Tab)
	return true
}

// RemoveTab drops the tab and its lines.
type RemoveTab struct {
	ID string
}

func (c RemoveTab) Apply(s *Snapshot) bool {
	changed := false
	tabs := s.Tabs[:0:0]
	for _, t := range s.Tabs {
		if t.ID == c.ID {
			changed = true
			continue
		}
		tabs = append(tabs, t)
	}
	lines := s.Lines[:0:0]
	for _, l := range s.Lines {
		if l.TabID == c.ID {
			changed = true
			continue
		}
		lines = append(lines, l)
	}
	s.Tabs, s.Lines = tabs, lines
	return changed
}

type AppendLines struct {
	Lines []models.OrderLine
}

func (c AppendLines) Apply(s *Snapshot) bool {
	if len(c.Lines) == 0 {
		return false
	}
	s.Lines = append(s.Lines, c.Lines...)
	return true
}

type RemoveLine struct {
	ID string
}

func (c RemoveLine) Apply(s *Snapshot) bool {
	for i, l := range s.Lines {
		if l.ID == c.ID {
			s.Lines = append(s.Lines[:i:i], s.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateLine replaces a loaded line; delivered lines leave the active set.
type UpdateLine struct {
	Line models.OrderLine
}

func (c UpdateLine) Apply(s *Snapshot) bool {
	if c.Line.IsDelivered() {
		return RemoveLine{ID: c.Line.ID}.Apply(s)
	}
	for i := range s.Lines {
		if s.Lines[i].ID == c.Line.ID {
			s.Lines[i] = c.Line
			return true
		}
	}
	return false
}

type SetTabTotal struct {
	ID         string
	Total      decimal.Decimal
	PaidAmount *decimal.Decimal
}

func (c SetTabTotal) Apply(s *Snapshot) bool {
	for i := range s.Tabs {
		if s.Tabs[i].ID == c.ID {
			s.Tabs[i].Total = c.Total
			if c.PaidAmount != nil {
				s.Tabs[i].PaidAmount = *c.PaidAmount
			}
			return true
		}
	}
	return false
}

func sameJSON(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
