package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bourse/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleBars() []domain.Bar {
	return []domain.Bar{
		{Symbol: "air.pa", Date: day(2019, 12, 30), Open: 130, High: 132, Low: 129, Close: 131, Volume: 1000},
		{Symbol: "AIR.PA", Date: day(2020, 1, 2), Open: 132, High: 134, Low: 131, Close: 133, Volume: 1100},
		{Symbol: "AIR.PA", Date: day(2020, 1, 3), Open: 133, High: 135, Low: 132, Close: 134, Volume: 1200},
		{Symbol: "MC.PA", Date: day(2020, 1, 2), Open: 420, High: 425, Low: 418, Close: 424, Volume: 500},
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.WriteBars(ctx, sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	// Re-writing an existing day must not replace the stored row.
	if err := s.WriteBars(ctx, []domain.Bar{{Symbol: "AIR.PA", Date: day(2020, 1, 2), Open: 1, Close: 1}}); err != nil {
		t.Fatalf("WriteBars (duplicate): %v", err)
	}

	p, err := s.PriceOn(ctx, "AIR.PA", day(2020, 1, 2))
	if err != nil {
		t.Fatalf("PriceOn: %v", err)
	}
	if p.Open != 132 || p.Close != 133 {
		t.Errorf("PriceOn = %+v, want open 132 close 133", p)
	}
	if !p.Date.Equal(day(2020, 1, 2)) {
		t.Errorf("PriceOn date = %s, want 2020-01-02", p.Date)
	}

	if _, err := s.PriceOn(ctx, "AIR.PA", day(2020, 1, 1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("PriceOn(holiday) err = %v, want ErrNotFound", err)
	}

	first, last, err := s.SeriesBounds(ctx, "AIR.PA")
	if err != nil {
		t.Fatalf("SeriesBounds: %v", err)
	}
	if !first.Equal(day(2019, 12, 30)) || !last.Equal(day(2020, 1, 3)) {
		t.Errorf("SeriesBounds = %s..%s, want 2019-12-30..2020-01-03", first, last)
	}
	if _, _, err := s.SeriesBounds(ctx, "NOPE"); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("SeriesBounds(NOPE) err = %v, want ErrEmptySeries", err)
	}

	bars, err := s.ReadBars(ctx, "AIR.PA", day(2020, 1, 1), day(2020, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(bars))
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Errorf("ReadBars not ordered: %s then %s", bars[0].Date, bars[1].Date)
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AIR.PA" || symbols[1] != "MC.PA" {
		t.Errorf("ListSymbols = %v, want [AIR.PA MC.PA]", symbols)
	}

	n, err := s.TrimFrom(ctx, day(2020, 1, 3))
	if err != nil {
		t.Fatalf("TrimFrom: %v", err)
	}
	if n != 1 {
		t.Errorf("TrimFrom removed %d rows, want 1", n)
	}
	if _, last, _ := s.SeriesBounds(ctx, "AIR.PA"); !last.Equal(day(2020, 1, 2)) {
		t.Errorf("last date after trim = %s, want 2020-01-02", last)
	}

	rows := []domain.Constituent{
		{IndexName: "CAC_40", UpdatedOn: day(2024, 1, 1), Mnemonic: "AIR", Ticker: "AIR.PA", WeightPct: 5},
		{IndexName: "CAC_40", UpdatedOn: day(2024, 1, 1), Mnemonic: "OLD", Ticker: "OLD.PA", WeightPct: 1},
		{IndexName: "CAC_40", UpdatedOn: day(2024, 6, 1), Mnemonic: "MC", Ticker: "MC.PA", WeightPct: 10},
		{IndexName: "CAC_40", UpdatedOn: day(2024, 6, 1), Mnemonic: "AIR", Ticker: "AIR.PA", WeightPct: 6},
		{IndexName: "SBF_120", UpdatedOn: day(2024, 9, 1), Mnemonic: "X", Ticker: "X.PA"},
	}
	if err := s.WriteConstituents(ctx, rows); err != nil {
		t.Fatalf("WriteConstituents: %v", err)
	}
	if err := s.WriteConstituents(ctx, rows[2:3]); err != nil {
		t.Fatalf("WriteConstituents (duplicate): %v", err)
	}
	latest, err := s.ListConstituents(ctx, "CAC_40")
	if err != nil {
		t.Fatalf("ListConstituents: %v", err)
	}
	if len(latest) != 2 || latest[0].Ticker != "AIR.PA" || latest[1].Ticker != "MC.PA" {
		t.Errorf("ListConstituents = %+v, want AIR.PA and MC.PA from 2024-06-01", latest)
	}
	if latest[0].WeightPct != 6 {
		t.Errorf("AIR.PA weight = %v, want 6", latest[0].WeightPct)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()
	exerciseStore(t, s)
}

func TestParquetStore(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: "parquet", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open(parquet): %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

// TestPostgresStore needs an empty database named by BOURSE_TEST_POSTGRES_DSN.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BOURSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOURSE_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), Options{Driver: "postgres", PostgresDSN: dsn})
	if err != nil {
		t.Fatalf("Open(postgres): %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mongo"}); err == nil {
		t.Error("Open(mongo) should fail")
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("air.pa", 2024)
	want := filepath.Join("/data", "daily", "AIR.PA", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}

	cp := ps.compositionPath("CAC_40")
	want = filepath.Join("/data", "composition", "CAC_40.parquet")
	if cp != want {
		t.Errorf("compositionPath mismatch:\n  got  %s\n  want %s", cp, want)
	}
}

func TestParquetStoreReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if err := NewParquetStore(dir).WriteBars(ctx, sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// A fresh store has an empty cache and must read from disk.
	ps := NewParquetStore(dir)
	p, err := ps.PriceOn(ctx, "MC.PA", day(2020, 1, 2))
	if err != nil {
		t.Fatalf("PriceOn: %v", err)
	}
	if p.Reference() != 422 {
		t.Errorf("Reference() = %v, want 422", p.Reference())
	}
	first, last, err := ps.SeriesBounds(ctx, "AIR.PA")
	if err != nil {
		t.Fatalf("SeriesBounds: %v", err)
	}
	if first.Year() != 2019 || last.Year() != 2020 {
		t.Errorf("SeriesBounds spans %d..%d, want 2019..2020", first.Year(), last.Year())
	}
}

func TestMergeBarRecordsKeepsExisting(t *testing.T) {
	existing := []BarRecord{{Symbol: "A", Timestamp: 2, Close: 10}}
	incoming := []BarRecord{{Symbol: "A", Timestamp: 2, Close: 99}, {Symbol: "A", Timestamp: 1, Close: 5}}

	merged := mergeBarRecords(existing, incoming)
	if len(merged) != 2 {
		t.Fatalf("merged %d records, want 2", len(merged))
	}
	if merged[0].Timestamp != 1 || merged[1].Close != 10 {
		t.Errorf("merged = %+v, want sorted with existing close 10 kept", merged)
	}
}
