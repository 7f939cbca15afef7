package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"bourse/internal/domain"
)

// Compile-time interface checks.
var _ Store = (*ParquetStore)(nil)

// ParquetStore keeps bars and compositions as Parquet files on disk. Year
// files are cached after the first read so repeated day lookups stay cheap.
type ParquetStore struct {
	DataDir string

	mu    sync.Mutex
	cache map[string][]BarRecord
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, cache: make(map[string][]BarRecord)}
}

// Close drops the read cache.
func (s *ParquetStore) Close() error {
	s.mu.Lock()
	s.cache = make(map[string][]BarRecord)
	s.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ConstituentRecord is the Parquet schema for index composition rows.
type ConstituentRecord struct {
	IndexName string  `parquet:"index_name"`
	UpdatedOn int64   `parquet:"updated_on,timestamp(millisecond)"`
	Company   string  `parquet:"company"`
	Mnemonic  string  `parquet:"mnemonic"`
	Sector    string  `parquet:"sector"`
	WeightPct float64 `parquet:"weight_pct"`
	Ticker    string  `parquet:"ticker"`
}

func (r BarRecord) bar() domain.Bar {
	return domain.Bar{
		Symbol: r.Symbol,
		Date:   time.UnixMilli(r.Timestamp).UTC(),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
//
// Bars already on disk for the same day are kept.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		day := time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
		k := key{symbol: sym, year: day.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    sym,
			Timestamp: day.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		s.cache[path] = merged
	}
	return nil
}

// ReadBars reads bar data for the given symbol within [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	lo, hi := dayStart(start).UnixMilli(), dayStart(end).UnixMilli()
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := s.yearRecords(symbol, year)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				bars = append(bars, r.bar())
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have a bar directory.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// TrimFrom deletes bars dated on or after day, rewriting affected year files.
func (s *ParquetStore) TrimFrom(ctx context.Context, day time.Time) (int64, error) {
	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		return 0, err
	}
	cut := dayStart(day).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, sym := range symbols {
		years, err := s.years(sym)
		if err != nil {
			return removed, err
		}
		for _, year := range years {
			if year < day.Year() {
				continue
			}
			path := s.barPath(sym, year)
			records, err := readParquetFile[BarRecord](path)
			if err != nil {
				return removed, fmt.Errorf("reading %s: %w", path, err)
			}
			kept := records[:0]
			for _, r := range records {
				if r.Timestamp < cut {
					kept = append(kept, r)
				}
			}
			removed += int64(len(records) - len(kept))
			delete(s.cache, path)
			if len(kept) == 0 {
				if err := os.Remove(path); err != nil {
					return removed, err
				}
				continue
			}
			if err := writeParquetFile(path, kept); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// ---------------------------------------------------------------------------
// PriceSource implementation
// ---------------------------------------------------------------------------

// PriceOn returns the bar of symbol dated exactly day.
func (s *ParquetStore) PriceOn(_ context.Context, symbol string, day time.Time) (domain.PricePoint, error) {
	records, err := s.yearRecords(symbol, day.Year())
	if err != nil {
		return domain.PricePoint{}, err
	}
	ts := dayStart(day).UnixMilli()
	i := sort.Search(len(records), func(i int) bool { return records[i].Timestamp >= ts })
	if i == len(records) || records[i].Timestamp != ts {
		return domain.PricePoint{}, ErrNotFound
	}
	return records[i].bar().PricePoint(), nil
}

// SeriesBounds returns the first and last dates with data for symbol.
func (s *ParquetStore) SeriesBounds(_ context.Context, symbol string) (time.Time, time.Time, error) {
	s.mu.Lock()
	years, err := s.years(symbol)
	s.mu.Unlock()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	var first, last time.Time
	for _, y := range years {
		records, err := s.yearRecords(symbol, y)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if len(records) == 0 {
			continue
		}
		if first.IsZero() {
			first = records[0].bar().Date
		}
		last = records[len(records)-1].bar().Date
	}
	if first.IsZero() {
		return time.Time{}, time.Time{}, ErrEmptySeries
	}
	return first, last, nil
}

// ---------------------------------------------------------------------------
// ConstituentStore implementation
// ---------------------------------------------------------------------------

// WriteConstituents merges rows into <DataDir>/composition/<INDEX>.parquet.
func (s *ParquetStore) WriteConstituents(_ context.Context, rows []domain.Constituent) error {
	byIndex := make(map[string][]domain.Constituent)
	for _, c := range rows {
		byIndex[c.IndexName] = append(byIndex[c.IndexName], c)
	}
	for index, incoming := range byIndex {
		existing, err := s.readConstituents(index)
		if err != nil {
			return err
		}
		merged := mergeConstituents(existing, incoming)
		records := make([]ConstituentRecord, len(merged))
		for i, c := range merged {
			records[i] = ConstituentRecord{
				IndexName: c.IndexName,
				UpdatedOn: dayStart(c.UpdatedOn).UnixMilli(),
				Company:   c.Company,
				Mnemonic:  c.Mnemonic,
				Sector:    c.Sector,
				WeightPct: c.WeightPct,
				Ticker:    c.Ticker,
			}
		}
		if err := writeParquetFile(s.compositionPath(index), records); err != nil {
			return fmt.Errorf("writing composition %s: %w", index, err)
		}
	}
	return nil
}

// ListConstituents returns the most recent composition of index.
func (s *ParquetStore) ListConstituents(_ context.Context, index string) ([]domain.Constituent, error) {
	rows, err := s.readConstituents(index)
	if err != nil {
		return nil, err
	}
	return latestComposition(rows, index), nil
}

func (s *ParquetStore) readConstituents(index string) ([]domain.Constituent, error) {
	records, err := readParquetFile[ConstituentRecord](s.compositionPath(index))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.Constituent, len(records))
	for i, r := range records {
		out[i] = domain.Constituent{
			IndexName: r.IndexName,
			UpdatedOn: time.UnixMilli(r.UpdatedOn).UTC(),
			Company:   r.Company,
			Mnemonic:  r.Mnemonic,
			Sector:    r.Sector,
			WeightPct: r.WeightPct,
			Ticker:    r.Ticker,
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// compositionPath returns the file holding every composition of an index.
// Layout: <dataDir>/composition/<INDEX>.parquet
func (s *ParquetStore) compositionPath(index string) string {
	return filepath.Join(s.DataDir, "composition", index+".parquet")
}

// years lists the year files present for symbol, ascending. Caller holds mu.
func (s *ParquetStore) years(symbol string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "daily", strings.ToUpper(symbol)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if !ok || e.IsDir() {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// yearRecords returns the sorted records of one year file, or nil when the
// file does not exist.
func (s *ParquetStore) yearRecords(symbol string, year int) ([]BarRecord, error) {
	path := s.barPath(symbol, year)

	s.mu.Lock()
	defer s.mu.Unlock()
	if records, ok := s.cache[path]; ok {
		return records, nil
	}
	records, err := readParquetFile[BarRecord](path)
	if errors.Is(err, os.ErrNotExist) {
		records, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })
	s.cache[path] = records
	return records, nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp). Existing
// records win, matching the insert-or-ignore behaviour of the SQL backends.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
