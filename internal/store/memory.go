package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bourse/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. It backs tests and small CSV-driven
// runs that do not need persistence.
type MemoryStore struct {
	mu           sync.RWMutex
	bars         map[string]map[string]domain.Bar // symbol -> day -> bar
	constituents []domain.Constituent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bars: make(map[string]map[string]domain.Bar)}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// WriteBars adds bars, keeping any existing bar for the same day.
func (m *MemoryStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		b.Symbol = strings.ToUpper(b.Symbol)
		b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
		days, ok := m.bars[b.Symbol]
		if !ok {
			days = make(map[string]domain.Bar)
			m.bars[b.Symbol] = days
		}
		if _, dup := days[dayKey(b.Date)]; !dup {
			days[dayKey(b.Date)] = b
		}
	}
	return nil
}

// ReadBars returns bars for symbol within [start, end], oldest first.
func (m *MemoryStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo, hi := dayKey(start), dayKey(end)
	var out []domain.Bar
	for k, b := range m.bars[strings.ToUpper(symbol)] {
		if k >= lo && k <= hi {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ListSymbols returns all symbols with bars, sorted.
func (m *MemoryStore) ListSymbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bars))
	for sym, days := range m.bars {
		if len(days) > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out, nil
}

// TrimFrom deletes bars dated on or after day.
func (m *MemoryStore) TrimFrom(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cut := dayKey(day)
	var n int64
	for _, days := range m.bars {
		for k := range days {
			if k >= cut {
				delete(days, k)
				n++
			}
		}
	}
	return n, nil
}

// PriceOn returns the bar of symbol dated exactly day.
func (m *MemoryStore) PriceOn(_ context.Context, symbol string, day time.Time) (domain.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bars[strings.ToUpper(symbol)][dayKey(day)]
	if !ok {
		return domain.PricePoint{}, ErrNotFound
	}
	return b.PricePoint(), nil
}

// SeriesBounds returns the first and last dates with data for symbol.
func (m *MemoryStore) SeriesBounds(_ context.Context, symbol string) (time.Time, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first, last time.Time
	for _, b := range m.bars[strings.ToUpper(symbol)] {
		if first.IsZero() || b.Date.Before(first) {
			first = b.Date
		}
		if last.IsZero() || b.Date.After(last) {
			last = b.Date
		}
	}
	if first.IsZero() {
		return time.Time{}, time.Time{}, ErrEmptySeries
	}
	return first, last, nil
}

// WriteConstituents adds composition rows, ignoring duplicates.
func (m *MemoryStore) WriteConstituents(_ context.Context, rows []domain.Constituent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constituents = mergeConstituents(m.constituents, rows)
	return nil
}

// ListConstituents returns the most recent composition of index.
func (m *MemoryStore) ListConstituents(_ context.Context, index string) ([]domain.Constituent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return latestComposition(m.constituents, index), nil
}

// ---------------------------------------------------------------------------
// Composition helpers shared by the file-based backends
// ---------------------------------------------------------------------------

// mergeConstituents appends incoming rows whose (index, date, mnemonic) key
// is not already present.
func mergeConstituents(existing, incoming []domain.Constituent) []domain.Constituent {
	type key struct{ index, day, mnemonic string }
	seen := make(map[key]struct{}, len(existing))
	for _, c := range existing {
		seen[key{c.IndexName, dayKey(c.UpdatedOn), c.Mnemonic}] = struct{}{}
	}
	out := existing
	for _, c := range incoming {
		k := key{c.IndexName, dayKey(c.UpdatedOn), c.Mnemonic}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// latestComposition filters rows to index at its most recent date, ordered
// by ticker.
func latestComposition(rows []domain.Constituent, index string) []domain.Constituent {
	var latest time.Time
	for _, c := range rows {
		if c.IndexName == index && c.UpdatedOn.After(latest) {
			latest = c.UpdatedOn
		}
	}
	var out []domain.Constituent
	for _, c := range rows {
		if c.IndexName == index && c.UpdatedOn.Equal(latest) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
