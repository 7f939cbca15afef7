package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bourse/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps daily bars and index compositions in a SQLite database.
// Dates are stored as YYYY-MM-DD text so they sort and compare lexically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath. Call
// Migrate before first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// The driver serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prices (
	symbol TEXT    NOT NULL,
	date   TEXT    NOT NULL,
	open   REAL    NOT NULL,
	high   REAL    NOT NULL,
	low    REAL    NOT NULL,
	close  REAL    NOT NULL,
	volume INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, date)
);
CREATE TABLE IF NOT EXISTS index_composition (
	index_name TEXT NOT NULL,
	updated_on TEXT NOT NULL,
	company    TEXT NOT NULL DEFAULT '',
	mnemonic   TEXT NOT NULL,
	sector     TEXT NOT NULL DEFAULT '',
	weight_pct REAL NOT NULL DEFAULT 0,
	ticker     TEXT NOT NULL,
	UNIQUE (updated_on, mnemonic, index_name)
);`

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars inserts bars in one transaction. Rows already present for a
// (symbol, date) are kept.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO prices
		(symbol, date, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, strings.ToUpper(b.Symbol), dayKey(b.Date),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("sqlite: insert %s %s: %w", b.Symbol, dayKey(b.Date), err)
		}
	}
	return tx.Commit()
}

// ReadBars returns bars for symbol within [start, end], oldest first.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, date, open, high, low, close, volume
		FROM prices WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date`,
		strings.ToUpper(symbol), dayKey(start), dayKey(end))
	if err != nil {
		return nil, fmt.Errorf("sqlite: read bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b   domain.Bar
			day string
		)
		if err := rows.Scan(&b.Symbol, &day, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		if b.Date, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("sqlite: bad date %q for %s: %w", day, b.Symbol, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSymbols returns all distinct symbols, sorted.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// TrimFrom deletes bars dated on or after day. Bars for the current session
// are incomplete until the close, so gatherers trim them before writing.
func (s *SQLiteStore) TrimFrom(ctx context.Context, day time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prices WHERE date >= ?`, dayKey(day))
	if err != nil {
		return 0, fmt.Errorf("sqlite: trim: %w", err)
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// PriceSource implementation
// ---------------------------------------------------------------------------

// PriceOn returns the bar of symbol dated exactly day.
func (s *SQLiteStore) PriceOn(ctx context.Context, symbol string, day time.Time) (domain.PricePoint, error) {
	p := domain.PricePoint{Symbol: strings.ToUpper(symbol)}
	err := s.db.QueryRowContext(ctx, `SELECT open, close FROM prices WHERE symbol = ? AND date = ?`,
		p.Symbol, dayKey(day)).Scan(&p.Open, &p.Close)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PricePoint{}, ErrNotFound
	}
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("sqlite: price %s %s: %w", symbol, dayKey(day), err)
	}
	p.Date = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return p, nil
}

// SeriesBounds returns the first and last dates with data for symbol.
func (s *SQLiteStore) SeriesBounds(ctx context.Context, symbol string) (time.Time, time.Time, error) {
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM prices WHERE symbol = ?`,
		strings.ToUpper(symbol)).Scan(&first, &last)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sqlite: bounds %s: %w", symbol, err)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, ErrEmptySeries
	}
	f, err := parseDay(first.String)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	l, err := parseDay(last.String)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return f, l, nil
}

// ---------------------------------------------------------------------------
// ConstituentStore implementation
// ---------------------------------------------------------------------------

// WriteConstituents inserts composition rows, ignoring duplicates.
func (s *SQLiteStore) WriteConstituents(ctx context.Context, rows []domain.Constituent) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	for _, c := range rows {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO index_composition
			(index_name, updated_on, company, mnemonic, sector, weight_pct, ticker)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.IndexName, dayKey(c.UpdatedOn), c.Company, c.Mnemonic, c.Sector, c.WeightPct, c.Ticker); err != nil {
			return fmt.Errorf("sqlite: insert constituent %s: %w", c.Mnemonic, err)
		}
	}
	return tx.Commit()
}

// ListConstituents returns the most recent composition of index.
func (s *SQLiteStore) ListConstituents(ctx context.Context, index string) ([]domain.Constituent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT index_name, updated_on, company, mnemonic, sector, weight_pct, ticker
		FROM index_composition
		WHERE index_name = ? AND updated_on = (SELECT MAX(updated_on) FROM index_composition WHERE index_name = ?)
		ORDER BY ticker`, index, index)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list constituents %s: %w", index, err)
	}
	defer rows.Close()

	var out []domain.Constituent
	for rows.Next() {
		var (
			c   domain.Constituent
			day string
		)
		if err := rows.Scan(&c.IndexName, &day, &c.Company, &c.Mnemonic, &c.Sector, &c.WeightPct, &c.Ticker); err != nil {
			return nil, err
		}
		if c.UpdatedOn, err = parseDay(day); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
