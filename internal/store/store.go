// Package store defines storage interfaces for daily price bars and index
// compositions, with SQLite, PostgreSQL, Parquet and in-memory backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bourse/internal/domain"
)

var (
	// ErrNotFound is returned by PriceOn when no bar exists for the day.
	ErrNotFound = errors.New("store: price not found")

	// ErrEmptySeries is returned by SeriesBounds for a symbol without bars.
	ErrEmptySeries = errors.New("store: empty price series")
)

// PriceSource answers exact-day price lookups for the simulation.
type PriceSource interface {
	// PriceOn returns the bar of symbol dated exactly day, or ErrNotFound.
	PriceOn(ctx context.Context, symbol string, day time.Time) (domain.PricePoint, error)

	// SeriesBounds returns the first and last dates with data for symbol, or
	// ErrEmptySeries.
	SeriesBounds(ctx context.Context, symbol string) (first, last time.Time, err error)
}

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars. Existing (symbol, date) rows win.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with at least one bar.
	ListSymbols(ctx context.Context) ([]string, error)
}

// ConstituentStore persists published index compositions.
type ConstituentStore interface {
	// WriteConstituents persists composition rows. Existing
	// (index, date, mnemonic) rows win.
	WriteConstituents(ctx context.Context, rows []domain.Constituent) error

	// ListConstituents returns the rows of the most recent composition of
	// the named index, ordered by ticker.
	ListConstituents(ctx context.Context, index string) ([]domain.Constituent, error)
}

// Store is the full surface every backend provides.
type Store interface {
	PriceSource
	BarStore
	ConstituentStore

	// TrimFrom deletes bars dated on or after day and returns how many went.
	TrimFrom(ctx context.Context, day time.Time) (int64, error)

	Close() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Driver      string // sqlite, postgres or parquet
	SQLitePath  string
	DataDir     string
	PostgresDSN string
}

// Open returns the backend named by opts.Driver with its schema in place.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		s, err := NewSQLiteStore(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "parquet":
		return NewParquetStore(opts.DataDir), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}

const dateLayout = "2006-01-02"

func dayKey(t time.Time) string { return t.Format(dateLayout) }

func parseDay(s string) (time.Time, error) {
	// Some writers append a time component; only the date matters.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}
