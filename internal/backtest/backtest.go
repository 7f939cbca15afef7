// Package backtest simulates a monthly dollar-cost-averaging strategy: each
// instrument is bought once a month with a fixed budget and every lot is sold
// a fixed number of months later.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bourse/internal/analytics"
	"bourse/internal/domain"
	"bourse/internal/store"
)

// Result holds everything a backtest run produced.
type Result struct {
	RunID     string
	Params    Params
	Symbols   []string
	Portfolio *domain.Portfolio

	// Reports has one entry per symbol, in Symbols order.
	Reports []analytics.Report
	Pooled  analytics.Report

	Acquisition AcquisitionStats
	Liquidation LiquidationStats
	Elapsed     time.Duration
}

// PeriodReport summarises the run for holding-period comparison.
func (r *Result) PeriodReport() analytics.PeriodReport {
	return analytics.PeriodReport{
		HoldingMonths: r.Params.HoldingMonths,
		Pooled:        r.Pooled,
		Instruments:   r.Reports,
	}
}

// Backtester replays historical prices through the acquisition and
// liquidation rules and computes performance reports.
type Backtester struct {
	params   Params
	resolver *Resolver
	log      *slog.Logger
}

// NewBacktester creates a Backtester reading prices from src. Invalid params
// are rejected with an error wrapping ErrInvalidParams.
func NewBacktester(src store.PriceSource, params Params, log *slog.Logger) (*Backtester, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		params:   params,
		resolver: NewResolver(src, params.ExtrapolatePastEnd),
		log:      log,
	}, nil
}

// Run simulates symbols with the configured holding period.
func (bt *Backtester) Run(ctx context.Context, symbols []string) (*Result, error) {
	acq, err := bt.acquire(ctx, normalizeSymbols(symbols))
	if err != nil {
		return nil, err
	}
	return bt.liquidate(ctx, acq, bt.params)
}

// Sweep simulates symbols once per holding period. Purchases do not depend
// on the holding period, so they are computed once and each period sells
// its own copy of the lots. Results follow the order of periods.
func (bt *Backtester) Sweep(ctx context.Context, symbols []string, periods []int) ([]*Result, error) {
	for _, months := range periods {
		if err := bt.params.WithHolding(months).Validate(); err != nil {
			return nil, err
		}
	}
	acq, err := bt.acquire(ctx, normalizeSymbols(symbols))
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(periods))
	for _, months := range periods {
		res, err := bt.liquidate(ctx, acq, bt.params.WithHolding(months))
		if err != nil {
			return nil, fmt.Errorf("holding %d months: %w", months, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Per-instrument fan-out
// ---------------------------------------------------------------------------

type acquisition struct {
	symbols []string
	lots    [][]domain.Lot // indexed like symbols
	stats   AcquisitionStats
	elapsed time.Duration
}

func (bt *Backtester) acquire(ctx context.Context, symbols []string) (*acquisition, error) {
	start := time.Now()
	sched := NewScheduler(bt.resolver, bt.params, bt.log)

	lots := make([][]domain.Lot, len(symbols))
	stats := make([]AcquisitionStats, len(symbols))
	err := bt.forEach(ctx, len(symbols), func(ctx context.Context, i int) error {
		l, s, err := sched.Acquire(ctx, symbols[i])
		if err != nil {
			return fmt.Errorf("acquire %s: %w", symbols[i], err)
		}
		lots[i], stats[i] = l, s
		return nil
	})
	if err != nil {
		return nil, err
	}

	acq := &acquisition{symbols: symbols, lots: lots}
	for _, s := range stats {
		acq.stats.Add(s)
	}
	acq.elapsed = time.Since(start)
	return acq, nil
}

func (bt *Backtester) liquidate(ctx context.Context, acq *acquisition, params Params) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := bt.log.With("run_id", runID)
	liq := NewLiquidator(bt.resolver, params, log)

	subs := make([]*domain.Portfolio, len(acq.symbols))
	stats := make([]LiquidationStats, len(acq.symbols))
	err := bt.forEach(ctx, len(acq.symbols), func(ctx context.Context, i int) error {
		pf := domain.NewPortfolio()
		pf.Append(acq.lots[i]...)
		s, err := liq.Liquidate(ctx, pf)
		if err != nil {
			return fmt.Errorf("liquidate %s: %w", acq.symbols[i], err)
		}
		subs[i], stats[i] = pf, s
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:       runID,
		Params:      params,
		Symbols:     acq.symbols,
		Portfolio:   domain.NewPortfolio(),
		Acquisition: acq.stats,
	}
	opts := analytics.Options{RiskFreeRatePct: params.RiskFreeRatePct}
	for i, sym := range acq.symbols {
		res.Portfolio.Extend(subs[i])
		res.Liquidation.Add(stats[i])
		res.Reports = append(res.Reports, analytics.Compute(sym, subs[i].Lots(), opts))
	}
	res.Pooled = analytics.Pooled(res.Portfolio.Lots(), opts)
	res.Elapsed = acq.elapsed + time.Since(start)

	log.Info("backtest complete",
		"symbols", len(acq.symbols),
		"holding_months", params.HoldingMonths,
		"lots", res.Portfolio.Len(),
		"closed", res.Liquidation.Closed,
		"unmatured", res.Liquidation.Unmatured,
		"skipped_no_price", res.Acquisition.NoPrice,
		"skipped_budget", res.Acquisition.Insufficient,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return res, nil
}

// forEach runs fn for 0..n-1 on at most params.Workers goroutines. The first
// error cancels the rest.
func (bt *Backtester) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	sem := make(chan struct{}, max(bt.params.Workers, 1))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// normalizeSymbols upper-cases, de-duplicates and sorts symbols so results
// are ordered the same whatever the worker count.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
