package gather

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"bourse/internal/domain"
	"bourse/internal/store"
	"bourse/internal/util"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeClient serves bars from a fixed table and records every request.
type fakeClient struct {
	mu       sync.Mutex
	bars     map[string][]marketdata.Bar
	calls    []marketdata.GetBarsRequest
	symbols  [][]string
	failures int // number of leading calls that fail
}

func (f *fakeClient) GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.symbols = append(f.symbols, append([]string(nil), symbols...))
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 service unavailable")
	}
	out := make(map[string][]marketdata.Bar)
	for _, s := range symbols {
		for _, b := range f.bars[s] {
			if !b.Timestamp.Before(req.Start) && b.Timestamp.Before(req.End) {
				out[s] = append(out[s], b)
			}
		}
	}
	return out, nil
}

// alpacaBar stamps a daily bar the way the API does: midnight New York time.
func alpacaBar(d time.Time, price float64) marketdata.Bar {
	return marketdata.Bar{
		Timestamp: d.Add(5 * time.Hour),
		Open:      price,
		High:      price + 1,
		Low:       price - 1,
		Close:     price,
		Volume:    1000,
	}
}

func newTestGatherer(client BarsClient, sink BarSink, symbols []string, stateDir string, now time.Time) *DailyBarGatherer {
	g := newDailyBarGatherer(client, AlpacaOptions{
		Start:      day(2024, 1, 1),
		BatchSize:  2,
		MaxRetries: 1,
		StateDir:   stateDir,
	}, sink, symbols, util.Discard())
	g.now = func() time.Time { return now }
	return g
}

func TestDailyBarGathererFetchesMissingDays(t *testing.T) {
	ctx := context.Background()
	sink := store.NewMemoryStore()
	// AAA already has history up to Jan 3.
	if err := sink.WriteBars(ctx, []domain.Bar{
		{Symbol: "AAA", Date: day(2024, 1, 2), Open: 1, Close: 1},
		{Symbol: "AAA", Date: day(2024, 1, 3), Open: 1, Close: 1},
	}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{bars: map[string][]marketdata.Bar{
		"AAA": {alpacaBar(day(2024, 1, 3), 99), alpacaBar(day(2024, 1, 4), 10), alpacaBar(day(2024, 1, 5), 11)},
		"BBB": {alpacaBar(day(2024, 1, 2), 20), alpacaBar(day(2024, 1, 5), 21)},
	}}
	g := newTestGatherer(client, sink, []string{"aaa", "BBB", "CCC"}, "", day(2024, 1, 8).Add(15*time.Hour))

	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// AAA resumes on Jan 4; BBB and CCC start from the configured date.
	if len(client.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(client.calls))
	}
	starts := map[time.Time]bool{}
	for _, c := range client.calls {
		starts[c.Start] = true
		if !c.End.Equal(day(2024, 1, 8)) {
			t.Errorf("End = %v, want 2024-01-08", c.End)
		}
		if c.TimeFrame != marketdata.OneDay {
			t.Errorf("TimeFrame = %v, want one day", c.TimeFrame)
		}
	}
	if !starts[day(2024, 1, 4)] || !starts[day(2024, 1, 1)] {
		t.Errorf("request starts = %v", starts)
	}

	first, last, err := sink.SeriesBounds(ctx, "AAA")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(day(2024, 1, 2)) || !last.Equal(day(2024, 1, 5)) {
		t.Errorf("AAA bounds = %v..%v", first, last)
	}
	p, err := sink.PriceOn(ctx, "AAA", day(2024, 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	if p.Open != 1 {
		t.Errorf("existing bar was overwritten: open = %v", p.Open)
	}

	bbb, err := sink.ReadBars(ctx, "BBB", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(bbb) != 2 || !bbb[0].Date.Equal(day(2024, 1, 2)) || bbb[1].High != 22 {
		t.Errorf("BBB bars = %+v", bbb)
	}
}

func TestDailyBarGathererTrimsToday(t *testing.T) {
	ctx := context.Background()
	sink := store.NewMemoryStore()
	today := day(2024, 3, 6)
	if err := sink.WriteBars(ctx, []domain.Bar{
		{Symbol: "AAA", Date: day(2024, 3, 5), Open: 1, Close: 1},
		{Symbol: "AAA", Date: today, Open: 2, Close: 2},
	}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{}
	g := newTestGatherer(client, sink, []string{"AAA"}, "", today.Add(10*time.Hour))
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("up-to-date symbol should not be fetched, got %d calls", len(client.calls))
	}
	if _, err := sink.PriceOn(ctx, "AAA", today); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("today's bar should be trimmed, err = %v", err)
	}
}

func TestDailyBarGathererIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	state := t.TempDir()
	now := day(2024, 1, 8).Add(20 * time.Hour)
	client := &fakeClient{bars: map[string][]marketdata.Bar{
		"AAA": {alpacaBar(day(2024, 1, 2), 10)},
	}}
	sink := store.NewMemoryStore()

	g := newTestGatherer(client, sink, []string{"AAA", "ZZZ"}, state, now)
	if err := g.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	calls := len(client.calls)

	g = newTestGatherer(client, sink, []string{"AAA", "ZZZ"}, state, now)
	if err := g.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(client.calls) != calls {
		t.Errorf("second run on the same day made %d extra calls", len(client.calls)-calls)
	}

	// Next day: ZZZ is asked again since the empty list belongs to yesterday.
	g = newTestGatherer(client, sink, []string{"ZZZ"}, state, now.Add(24*time.Hour))
	if err := g.Run(ctx); err != nil {
		t.Fatalf("next-day Run: %v", err)
	}
	if len(client.calls) != calls+1 {
		t.Errorf("next-day calls = %d, want %d", len(client.calls), calls+1)
	}
}

func TestDailyBarGathererRetriesAndReportsFailures(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		bars:     map[string][]marketdata.Bar{"AAA": {alpacaBar(day(2024, 1, 2), 10)}},
		failures: 1,
	}
	sink := store.NewMemoryStore()
	g := newTestGatherer(client, sink, []string{"AAA"}, "", day(2024, 1, 8))
	g.opts.MaxRetries = 2
	// Keep the backoff out of the test's way.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run with one transient failure: %v", err)
	}
	if len(client.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(client.calls))
	}

	client = &fakeClient{failures: 10}
	g = newTestGatherer(client, store.NewMemoryStore(), []string{"AAA"}, "", day(2024, 1, 8))
	err := g.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "1 of 1 batches failed") {
		t.Errorf("Run err = %v, want batch failure", err)
	}
}

func TestBatches(t *testing.T) {
	got := batches([]string{"A", "B", "C", "D", "E"}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != "E" {
		t.Errorf("batches = %v", got)
	}
	if got := batches(nil, 10); len(got) != 0 {
		t.Errorf("batches(nil) = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Progress
// ---------------------------------------------------------------------------

func TestProgressEmptySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	today := day(2025, 2, 10)

	p, err := openProgress(dir, today)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.MarkEmpty([]string{"AAAA", "BBBB"}); err != nil {
		t.Fatal(err)
	}
	p.Close()

	p, err = openProgress(dir, today)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if !p.IsEmpty("AAAA") || !p.IsEmpty("BBBB") {
		t.Error("empty symbols should survive a reopen on the same day")
	}
	if p.IsEmpty("CCCC") {
		t.Error("CCCC should not be empty")
	}
}

func TestProgressResetsOnNewDay(t *testing.T) {
	dir := t.TempDir()
	p, err := openProgress(dir, day(2025, 2, 10))
	if err != nil {
		t.Fatal(err)
	}
	if p.IsCompleted(day(2025, 2, 10)) {
		t.Error("should not be completed before marking")
	}
	if err := p.MarkEmpty([]string{"AAAA"}); err != nil {
		t.Fatal(err)
	}
	if err := p.MarkCompleted(day(2025, 2, 10)); err != nil {
		t.Fatal(err)
	}
	if !p.IsCompleted(day(2025, 2, 10)) {
		t.Error("should be completed after marking")
	}
	p.Close()

	p, err = openProgress(dir, day(2025, 2, 11))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.IsEmpty("AAAA") {
		t.Error("empty list from a previous day should be discarded")
	}
	if p.IsCompleted(day(2025, 2, 11)) {
		t.Error("new day should not be completed")
	}
}

// ---------------------------------------------------------------------------
// CSV import
// ---------------------------------------------------------------------------

func TestImportBarsYahooExport(t *testing.T) {
	ctx := context.Background()
	sink := store.NewMemoryStore()
	csv := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2020-01-02 00:00:00+01:00,50.0,51,49,52.0,48.1,1200\n" +
		"2020-01-03,60,61,59,62,57,1300\n"

	n, err := ImportBars(ctx, strings.NewReader(csv), "air.pa", ',', sink)
	if err != nil {
		t.Fatalf("ImportBars: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
	p, err := sink.PriceOn(ctx, "AIR.PA", day(2020, 1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if p.Reference() != 51 {
		t.Errorf("reference = %v, want 51", p.Reference())
	}
}

func TestImportBarsDecimalComma(t *testing.T) {
	ctx := context.Background()
	sink := store.NewMemoryStore()
	csv := "date;open;close;volume\n02/01/2020;10,5;11,5;1 000\n"

	if _, err := ImportBars(ctx, strings.NewReader(csv), "MC.PA", ';', sink); err != nil {
		t.Fatalf("ImportBars: %v", err)
	}
	bars, err := sink.ReadBars(ctx, "MC.PA", day(2020, 1, 1), day(2020, 1, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Open != 10.5 || bars[0].Close != 11.5 || bars[0].Volume != 1000 {
		t.Errorf("bars = %+v", bars)
	}
}

func TestImportBarsErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		csv  string
	}{
		{"missing close", "date,open\n2020-01-02,1\n"},
		{"bad date", "date,open,close\nyesterday,1,1\n"},
		{"bad price", "date,open,close\n2020-01-02,abc,1\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ImportBars(ctx, strings.NewReader(tt.csv), "X", ',', store.NewMemoryStore()); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := ImportBars(ctx, strings.NewReader("date,open\n"), "X", ',', store.NewMemoryStore())
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn", err)
	}
}

func TestImportComposition(t *testing.T) {
	ctx := context.Background()
	sink := store.NewMemoryStore()
	csv := "Company;MNEMO;Sector (ICB);Weight (%)\n" +
		"AIRBUS;AIR;Industrials;12,34%\n" +
		"TOUR EIFFEL;TOUP;Real Estate;0,5%\n" +
		"SOLVAY;SOLB;Chemicals;1,1\n"

	n, err := ImportComposition(ctx, strings.NewReader(csv), "CAC_40", day(2025, 11, 10), ';', sink)
	if err != nil {
		t.Fatalf("ImportComposition: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}

	rows, err := sink.ListConstituents(ctx, "CAC_40")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]domain.Constituent{}
	for _, r := range rows {
		got[r.Ticker] = r
	}
	if c, ok := got["AIR.PA"]; !ok || c.WeightPct != 12.34 || c.Sector != "Industrials" {
		t.Errorf("AIR.PA = %+v", c)
	}
	if c, ok := got["ALTOU.PA"]; !ok || c.Mnemonic != "ALTOU" {
		t.Errorf("ALTOU.PA = %+v", c)
	}
	if _, ok := got["SOLB.BR"]; !ok {
		t.Errorf("SOLB.BR missing from %v", got)
	}
}

func TestImportCompositionMissingColumn(t *testing.T) {
	csv := "Company;MNEMO\nAIRBUS;AIR\n"
	_, err := ImportComposition(context.Background(), strings.NewReader(csv), "CAC_40", day(2025, 1, 1), ';', store.NewMemoryStore())
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn", err)
	}
}

func TestTickerFor(t *testing.T) {
	tests := map[string]string{
		"air":  "AIR.PA",
		"MT":   "MT.AS",
		"APAM": "APAM.AS",
		"CGM":  "ALCGM.PA",
	}
	for in, want := range tests {
		if got := TickerFor(in); got != want {
			t.Errorf("TickerFor(%q) = %q, want %q", in, got, want)
		}
	}
}
