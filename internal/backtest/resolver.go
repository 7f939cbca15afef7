package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bourse/internal/store"
	"bourse/internal/util"
)

// ErrPriceUnavailable means no tradable price could be resolved for the
// requested month. Callers skip the transaction.
var ErrPriceUnavailable = errors.New("price unavailable")

// Quote is a resolved transaction price.
type Quote struct {
	Symbol string
	Date   time.Time // trading date actually used
	Price  float64   // (open + close) / 2

	// Extrapolated is set when the request fell after the series end and
	// the last known price was reused.
	Extrapolated bool
}

// Resolver maps a requested calendar date to the trading day and reference
// price used for a transaction. Series bounds are looked up once per symbol.
// It is safe for concurrent use.
type Resolver struct {
	src         store.PriceSource
	extrapolate bool

	mu     sync.Mutex
	bounds map[string]bounds
}

type bounds struct {
	first, last time.Time
	empty       bool
}

// NewResolver creates a Resolver reading from src. With extrapolate set,
// requests on or after the last known date use that date's price.
func NewResolver(src store.PriceSource, extrapolate bool) *Resolver {
	return &Resolver{
		src:         src,
		extrapolate: extrapolate,
		bounds:      make(map[string]bounds),
	}
}

// ResolveMonth resolves the first day of the month plus offsetDays.
func (r *Resolver) ResolveMonth(ctx context.Context, symbol string, year int, month time.Month, offsetDays int) (Quote, error) {
	return r.Resolve(ctx, symbol, util.FirstOfMonth(year, month).AddDate(0, 0, offsetDays))
}

// Resolve returns the quote for the first trading day on or after requested
// within requested's calendar month.
func (r *Resolver) Resolve(ctx context.Context, symbol string, requested time.Time) (Quote, error) {
	requested = util.DateOnly(requested)
	b, err := r.seriesBounds(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	if b.empty {
		return Quote{}, fmt.Errorf("%s: %w: %w", symbol, ErrPriceUnavailable, store.ErrEmptySeries)
	}

	if !requested.Before(b.last) {
		if requested.After(b.last) && !r.extrapolate {
			return Quote{}, fmt.Errorf("%s %s after series end %s: %w",
				symbol, requested.Format(time.DateOnly), b.last.Format(time.DateOnly), ErrPriceUnavailable)
		}
		q, err := r.quote(ctx, symbol, b.last)
		if err != nil {
			return Quote{}, err
		}
		q.Extrapolated = requested.After(b.last)
		return q, nil
	}

	if requested.Before(b.first) {
		return Quote{}, fmt.Errorf("%s %s before series start %s: %w",
			symbol, requested.Format(time.DateOnly), b.first.Format(time.DateOnly), ErrPriceUnavailable)
	}

	end := util.LastOfMonth(requested)
	for d := requested; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return Quote{}, err
		}
		q, err := r.quote(ctx, symbol, d)
		if errors.Is(err, ErrPriceUnavailable) {
			continue
		}
		return q, err
	}
	return Quote{}, fmt.Errorf("%s no trading day from %s to %s: %w",
		symbol, requested.Format(time.DateOnly), end.Format(time.DateOnly), ErrPriceUnavailable)
}

// quote looks up one exact day.
func (r *Resolver) quote(ctx context.Context, symbol string, day time.Time) (Quote, error) {
	p, err := r.src.PriceOn(ctx, symbol, day)
	if errors.Is(err, store.ErrNotFound) {
		return Quote{}, fmt.Errorf("%s %s: %w", symbol, day.Format(time.DateOnly), ErrPriceUnavailable)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("price lookup %s %s: %w", symbol, day.Format(time.DateOnly), err)
	}
	return Quote{Symbol: symbol, Date: day, Price: p.Reference()}, nil
}

func (r *Resolver) seriesBounds(ctx context.Context, symbol string) (bounds, error) {
	r.mu.Lock()
	b, ok := r.bounds[symbol]
	r.mu.Unlock()
	if ok {
		return b, nil
	}

	first, last, err := r.src.SeriesBounds(ctx, symbol)
	switch {
	case errors.Is(err, store.ErrEmptySeries):
		b = bounds{empty: true}
	case err != nil:
		return bounds{}, fmt.Errorf("series bounds %s: %w", symbol, err)
	default:
		b = bounds{first: util.DateOnly(first), last: util.DateOnly(last)}
	}

	r.mu.Lock()
	r.bounds[symbol] = b
	r.mu.Unlock()
	return b, nil
}
