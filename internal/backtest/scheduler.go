package backtest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"bourse/internal/domain"
	"bourse/internal/util"
)

// AcquisitionStats counts the outcome of every scheduled purchase.
type AcquisitionStats struct {
	Months       int // purchase attempts
	Acquired     int
	NoPrice      int // skipped: price unavailable or zero
	Insufficient int // skipped: budget buys less than one share
}

// Add accumulates o into s.
func (s *AcquisitionStats) Add(o AcquisitionStats) {
	s.Months += o.Months
	s.Acquired += o.Acquired
	s.NoPrice += o.NoPrice
	s.Insufficient += o.Insufficient
}

// Scheduler buys whole shares of an instrument once per calendar month with
// a fixed budget.
type Scheduler struct {
	resolver  *Resolver
	params    Params
	spendable decimal.Decimal
	fee       decimal.Decimal
	log       *slog.Logger
}

// NewScheduler creates a Scheduler. params must already be validated.
func NewScheduler(resolver *Resolver, params Params, log *slog.Logger) *Scheduler {
	fee := decimal.NewFromFloat(params.AcquisitionFee)
	return &Scheduler{
		resolver:  resolver,
		params:    params,
		spendable: decimal.NewFromFloat(params.MonthlyBudget).Sub(fee),
		fee:       fee,
		log:       log.With("component", "scheduler"),
	}
}

// Acquire runs the monthly purchase loop for symbol from Start to End
// inclusive and returns the open lots in acquisition order. The cadence
// advances by one calendar month whatever the outcome; each month resolves
// its first trading day.
func (s *Scheduler) Acquire(ctx context.Context, symbol string) ([]domain.Lot, AcquisitionStats, error) {
	var (
		lots  []domain.Lot
		stats AcquisitionStats
	)
	for k, cur := 0, s.params.Start; !cur.After(s.params.End); k, cur = k+1, util.AddMonths(s.params.Start, k+1) {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		stats.Months++

		q, err := s.resolver.ResolveMonth(ctx, symbol, cur.Year(), cur.Month(), 0)
		if errors.Is(err, ErrPriceUnavailable) {
			stats.NoPrice++
			s.log.Debug("purchase skipped: no price", "symbol", symbol, "month", cur.Format("2006-01"), "err", err)
			continue
		}
		if err != nil {
			return nil, stats, err
		}

		lot, ok := s.buy(symbol, q)
		if !ok {
			reason := "budget buys less than one share"
			if q.Price <= 0 {
				reason = "zero price"
				stats.NoPrice++
			} else {
				stats.Insufficient++
			}
			s.log.Info("purchase skipped", "symbol", symbol, "month", cur.Format("2006-01"),
				"price", q.Price, "reason", reason)
			continue
		}
		stats.Acquired++
		lots = append(lots, lot)
	}
	return lots, stats, nil
}

// buy sizes a lot at quote q: floor(spendable / price) whole shares.
func (s *Scheduler) buy(symbol string, q Quote) (domain.Lot, bool) {
	if q.Price <= 0 {
		return domain.Lot{}, false
	}
	price := decimal.NewFromFloat(q.Price)
	shares := s.spendable.Div(price).Floor()
	if shares.LessThan(decimal.NewFromInt(1)) {
		return domain.Lot{}, false
	}
	gross := price.Mul(shares)
	return domain.Lot{
		Symbol:         symbol,
		AcquiredOn:     q.Date,
		UnitPrice:      q.Price,
		Shares:         shares.IntPart(),
		AcquisitionFee: s.fee.InexactFloat64(),
		GrossCost:      gross.InexactFloat64(),
		NetCost:        gross.Add(s.fee).InexactFloat64(),
	}, true
}
