package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bourse/internal/domain"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps daily bars and index compositions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT             NOT NULL,
		date   DATE             NOT NULL,
		open   DOUBLE PRECISION NOT NULL,
		high   DOUBLE PRECISION NOT NULL,
		low    DOUBLE PRECISION NOT NULL,
		close  DOUBLE PRECISION NOT NULL,
		volume BIGINT           NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, date)
	)`,
	`CREATE TABLE IF NOT EXISTS index_composition (
		index_name TEXT             NOT NULL,
		updated_on DATE             NOT NULL,
		company    TEXT             NOT NULL DEFAULT '',
		mnemonic   TEXT             NOT NULL,
		sector     TEXT             NOT NULL DEFAULT '',
		weight_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		ticker     TEXT             NOT NULL,
		UNIQUE (updated_on, mnemonic, index_name)
	)`,
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// WriteBars inserts bars in a single batch, keeping existing rows.
func (s *PostgresStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	const query = `
		INSERT INTO prices (symbol, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, date) DO NOTHING`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, strings.ToUpper(b.Symbol), b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: write bars: %w", err)
	}
	return nil
}

// ReadBars returns bars for symbol within [start, end], oldest first.
func (s *PostgresStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, date, open, high, low, close, volume
		FROM prices WHERE symbol = $1 AND date BETWEEN $2 AND $3
		ORDER BY date`, strings.ToUpper(symbol), start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: read bars %s: %w", symbol, err)
	}
	bars, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Bar, error) {
		var b domain.Bar
		err := row.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bars %s: %w", symbol, err)
	}
	return bars, nil
}

// ListSymbols returns all distinct symbols, sorted.
func (s *PostgresStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbols: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// TrimFrom deletes bars dated on or after day.
func (s *PostgresStore) TrimFrom(ctx context.Context, day time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prices WHERE date >= $1`, day)
	if err != nil {
		return 0, fmt.Errorf("postgres: trim: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PriceOn returns the bar of symbol dated exactly day.
func (s *PostgresStore) PriceOn(ctx context.Context, symbol string, day time.Time) (domain.PricePoint, error) {
	p := domain.PricePoint{Symbol: strings.ToUpper(symbol)}
	err := s.pool.QueryRow(ctx, `SELECT date, open, close FROM prices WHERE symbol = $1 AND date = $2`,
		p.Symbol, day).Scan(&p.Date, &p.Open, &p.Close)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PricePoint{}, ErrNotFound
	}
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("postgres: price %s %s: %w", symbol, dayKey(day), err)
	}
	return p, nil
}

// SeriesBounds returns the first and last dates with data for symbol.
func (s *PostgresStore) SeriesBounds(ctx context.Context, symbol string) (time.Time, time.Time, error) {
	var first, last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MIN(date), MAX(date) FROM prices WHERE symbol = $1`,
		strings.ToUpper(symbol)).Scan(&first, &last)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("postgres: bounds %s: %w", symbol, err)
	}
	if first == nil || last == nil {
		return time.Time{}, time.Time{}, ErrEmptySeries
	}
	return *first, *last, nil
}

// WriteConstituents inserts composition rows, ignoring duplicates.
func (s *PostgresStore) WriteConstituents(ctx context.Context, rows []domain.Constituent) error {
	if len(rows) == 0 {
		return nil
	}
	const query = `
		INSERT INTO index_composition (index_name, updated_on, company, mnemonic, sector, weight_pct, ticker)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (updated_on, mnemonic, index_name) DO NOTHING`

	batch := &pgx.Batch{}
	for _, c := range rows {
		batch.Queue(query, c.IndexName, c.UpdatedOn, c.Company, c.Mnemonic, c.Sector, c.WeightPct, c.Ticker)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: write constituents: %w", err)
	}
	return nil
}

// ListConstituents returns the most recent composition of index.
func (s *PostgresStore) ListConstituents(ctx context.Context, index string) ([]domain.Constituent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT index_name, updated_on, company, mnemonic, sector, weight_pct, ticker
		FROM index_composition
		WHERE index_name = $1
		  AND updated_on = (SELECT MAX(updated_on) FROM index_composition WHERE index_name = $1)
		ORDER BY ticker`, index)
	if err != nil {
		return nil, fmt.Errorf("postgres: list constituents %s: %w", index, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Constituent, error) {
		var c domain.Constituent
		err := row.Scan(&c.IndexName, &c.UpdatedOn, &c.Company, &c.Mnemonic, &c.Sector, &c.WeightPct, &c.Ticker)
		return c, err
	})
}
