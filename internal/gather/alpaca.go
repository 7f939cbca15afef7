package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"bourse/internal/domain"
	"bourse/internal/store"
	"bourse/internal/util"
)

var _ Gatherer = (*DailyBarGatherer)(nil)

// BarsClient is the subset of the Alpaca market data client the gatherer
// needs.
type BarsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// BarSink is where gathered bars go. It must know each series' bounds so a
// run only asks for the days it is missing.
type BarSink interface {
	store.BarStore
	SeriesBounds(ctx context.Context, symbol string) (first, last time.Time, err error)
	TrimFrom(ctx context.Context, day time.Time) (int64, error)
}

// AlpacaOptions configures a DailyBarGatherer.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	DataURL   string
	Feed      string

	Start           time.Time
	BatchSize       int // symbols per API call
	RateLimitPerMin int
	MaxRetries      int

	// StateDir holds the per-day progress files. Empty disables them.
	StateDir string
}

// DailyBarGatherer downloads daily bars for a fixed list of symbols. Each
// symbol resumes the day after its last stored bar, so repeated runs only
// fetch what is new. Bars dated today are dropped after the pass since the
// session is not over.
type DailyBarGatherer struct {
	client  BarsClient
	sink    BarSink
	symbols []string
	opts    AlpacaOptions
	limiter *util.RateLimiter
	now     func() time.Time
	log     *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer backed by the Alpaca market
// data API.
func NewDailyBarGatherer(opts AlpacaOptions, sink BarSink, symbols []string, log *slog.Logger) *DailyBarGatherer {
	copts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		copts.BaseURL = opts.DataURL
	}
	return newDailyBarGatherer(marketdata.NewClient(copts), opts, sink, symbols, log)
}

func newDailyBarGatherer(client BarsClient, opts AlpacaOptions, sink BarSink, symbols []string, log *slog.Logger) *DailyBarGatherer {
	if log == nil {
		log = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	norm := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			norm = append(norm, s)
		}
	}
	return &DailyBarGatherer{
		client:  client,
		sink:    sink,
		symbols: norm,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		now:     time.Now,
		log:     log.With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "alpaca-daily" }

// Run fetches the missing bars of every symbol and writes them to the sink.
// Failed batches are logged and reported together at the end; the others
// are kept.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	today := util.DateOnly(g.now().UTC())

	var prog *progress
	if g.opts.StateDir != "" {
		p, err := openProgress(g.opts.StateDir, today)
		if err != nil {
			return fmt.Errorf("opening progress: %w", err)
		}
		defer p.Close()
		if p.IsCompleted(today) {
			g.log.Info("already completed", "day", today.Format(time.DateOnly))
			return nil
		}
		prog = p
	}

	// Group symbols by resume date so each API call asks for one range.
	ranges := make(map[time.Time][]string)
	var order []time.Time
	for _, sym := range g.symbols {
		if prog != nil && prog.IsEmpty(sym) {
			continue
		}
		r, err := g.missingRange(ctx, sym, today)
		if err != nil {
			return err
		}
		if r.Empty() {
			continue
		}
		if _, ok := ranges[r.Start]; !ok {
			order = append(order, r.Start)
		}
		ranges[r.Start] = append(ranges[r.Start], sym)
	}

	var (
		runStart = time.Now()
		written  int
		failed   []error
		total    int
	)
	for _, start := range order {
		for _, batch := range batches(ranges[start], g.opts.BatchSize) {
			total++
			n, empty, err := g.gatherBatch(ctx, batch, DateRange{Start: start, End: today})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				g.log.Error("batch failed", "symbols", len(batch), "from", start.Format(time.DateOnly), "err", err)
				failed = append(failed, err)
				continue
			}
			written += n
			if prog != nil && len(empty) > 0 {
				if err := prog.MarkEmpty(empty); err != nil {
					g.log.Error("marking empty symbols failed", "err", err)
				}
			}
			g.log.Info("batch done",
				"batch", total,
				"symbols", len(batch),
				"bars", n,
				"empty", len(empty),
				"elapsed", time.Since(runStart).Round(time.Second),
			)
		}
	}

	trimmed, err := g.sink.TrimFrom(ctx, today)
	if err != nil {
		return fmt.Errorf("trimming incomplete bars: %w", err)
	}

	g.log.Info("complete",
		"bars", written,
		"trimmed", trimmed,
		"batches", total,
		"failed", len(failed),
		"elapsed", time.Since(runStart).Round(time.Second),
	)

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d batches failed: %w", len(failed), total, errors.Join(failed...))
	}
	if prog != nil {
		if err := prog.MarkCompleted(today); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
	}
	return nil
}

// missingRange returns the days symbol still needs. The range ends at
// midnight today, which the API treats as exclusive of today's session.
func (g *DailyBarGatherer) missingRange(ctx context.Context, symbol string, today time.Time) (DateRange, error) {
	start := util.DateOnly(g.opts.Start)
	_, last, err := g.sink.SeriesBounds(ctx, symbol)
	switch {
	case errors.Is(err, store.ErrEmptySeries):
	case err != nil:
		return DateRange{}, fmt.Errorf("series bounds %s: %w", symbol, err)
	default:
		if next := util.DateOnly(last).AddDate(0, 0, 1); next.After(start) {
			start = next
		}
	}
	return DateRange{Start: start, End: today}, nil
}

// gatherBatch fetches and stores one batch. It returns the number of bars
// written and the symbols that came back empty.
func (g *DailyBarGatherer) gatherBatch(ctx context.Context, symbols []string, r DateRange) (int, []string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	var multi map[string][]marketdata.Bar
	err := util.Retry(ctx, max(g.opts.MaxRetries, 1), time.Second, func() error {
		var err error
		multi, err = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      r.Start,
			End:        r.End,
			Adjustment: marketdata.Split,
			Feed:       marketdata.Feed(g.opts.Feed),
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		return 0, nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	bars := toBars(multi)
	hit := make(map[string]struct{}, len(multi))
	for _, b := range bars {
		hit[b.Symbol] = struct{}{}
	}
	var empty []string
	for _, sym := range symbols {
		if _, ok := hit[sym]; !ok {
			empty = append(empty, sym)
		}
	}

	if len(bars) > 0 {
		if err := g.sink.WriteBars(ctx, bars); err != nil {
			return 0, nil, fmt.Errorf("writing bars: %w", err)
		}
	}
	return len(bars), empty, nil
}

func toBars(multi map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, abs := range multi {
		for _, ab := range abs {
			bars = append(bars, domain.Bar{
				Symbol: strings.ToUpper(symbol),
				Date:   util.DateOnly(ab.Timestamp),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: int64(ab.Volume),
			})
		}
	}
	return bars
}
