package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps the book in process memory. Used by backtests.
type MemoryStore struct {
	mu       sync.Mutex
	trades   []TradeLogEntry
	capitals []CapitalsLogEntry
	index    map[Kind]map[string]int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: map[Kind]map[string]int{
			Opening: {},
			Closing: {},
		},
	}
}

func (m *MemoryStore) AppendTrade(_ context.Context, e TradeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, e)
	return nil
}

func (m *MemoryStore) InsertOpening(_ context.Context, e CapitalsLogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[Opening][e.Date]; ok {
		return false, nil
	}
	e.Kind = Opening
	m.index[Opening][e.Date] = len(m.capitals)
	m.capitals = append(m.capitals, e)
	return true, nil
}

func (m *MemoryStore) UpsertClosing(_ context.Context, e CapitalsLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Kind = Closing
	if i, ok := m.index[Closing][e.Date]; ok {
		m.capitals[i] = e
		return nil
	}
	m.index[Closing][e.Date] = len(m.capitals)
	m.capitals = append(m.capitals, e)
	return nil
}

func (m *MemoryStore) Trades(_ context.Context, r Range) ([]TradeLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TradeLogEntry, 0, len(m.trades))
	for _, e := range m.trades {
		if r.Contains(e.Time) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *MemoryStore) Capitals(_ context.Context, kind Kind, r Range) ([]CapitalsLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CapitalsLogEntry, 0, len(m.capitals))
	for _, e := range m.capitals {
		if e.Kind == kind && r.Contains(e.Time) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *MemoryStore) Opening(_ context.Context, date string) (CapitalsLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[Opening][date]
	if !ok {
		return CapitalsLogEntry{}, fmt.Errorf("opening capitals %s: %w", date, ErrNotFound)
	}
	return m.capitals[i], nil
}

func (m *MemoryStore) Close() error { return nil }
