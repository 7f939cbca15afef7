package backtest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bourse/internal/analytics"
	"bourse/internal/domain"
	"bourse/internal/util"
)

// LiquidationStats counts lot outcomes after a liquidation pass.
type LiquidationStats struct {
	Closed    int
	Unmatured int // no disposal price yet; the lot stays open
}

// Add accumulates o into s.
func (s *LiquidationStats) Add(o LiquidationStats) {
	s.Closed += o.Closed
	s.Unmatured += o.Unmatured
}

// Liquidator sells every open lot once its holding period has elapsed.
type Liquidator struct {
	resolver *Resolver
	months   int
	fee      decimal.Decimal
	log      *slog.Logger
}

// NewLiquidator creates a Liquidator for params.HoldingMonths. params must
// already be validated.
func NewLiquidator(resolver *Resolver, params Params, log *slog.Logger) *Liquidator {
	return &Liquidator{
		resolver: resolver,
		months:   params.HoldingMonths,
		fee:      decimal.NewFromFloat(params.DisposalFee),
		log:      log.With("component", "liquidator", "holding_months", params.HoldingMonths),
	}
}

// Liquidate closes every open lot of pf that can be sold. Lots whose
// disposal price cannot be resolved stay open and are counted as unmatured.
func (l *Liquidator) Liquidate(ctx context.Context, pf *domain.Portfolio) (LiquidationStats, error) {
	var stats LiquidationStats
	for i := 0; i < pf.Len(); i++ {
		lot := pf.Lot(i)
		if lot.IsClosed() {
			continue
		}
		d, ok, err := l.Dispose(ctx, lot)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.Unmatured++
			continue
		}
		if err := pf.Close(i, d); err != nil {
			return stats, err
		}
		stats.Closed++
	}
	return stats, nil
}

// Dispose computes the sale of lot in the month HoldingMonths after its
// acquisition month. ok is false when no price strictly after the
// acquisition date is available.
func (l *Liquidator) Dispose(ctx context.Context, lot domain.Lot) (domain.Disposal, bool, error) {
	acquired := util.FirstOfMonth(lot.AcquiredOn.Year(), lot.AcquiredOn.Month())
	target := util.AddMonths(acquired, l.months)

	q, err := l.resolver.ResolveMonth(ctx, lot.Symbol, target.Year(), target.Month(), 0)
	if errors.Is(err, ErrPriceUnavailable) {
		l.log.Info("lot unmatured", "symbol", lot.Symbol,
			"acquired", lot.AcquiredOn.Format(time.DateOnly), "target", target.Format("2006-01"), "err", err)
		return domain.Disposal{}, false, nil
	}
	if err != nil {
		return domain.Disposal{}, false, err
	}
	if !q.Date.After(lot.AcquiredOn) {
		l.log.Info("lot unmatured: disposal not after acquisition", "symbol", lot.Symbol,
			"acquired", lot.AcquiredOn.Format(time.DateOnly), "resolved", q.Date.Format(time.DateOnly))
		return domain.Disposal{}, false, nil
	}

	price := decimal.NewFromFloat(q.Price)
	gross := price.Mul(decimal.NewFromInt(lot.Shares))
	net := gross.Sub(l.fee)
	grossCost := decimal.NewFromFloat(lot.GrossCost)
	netCost := decimal.NewFromFloat(lot.NetCost)

	d := domain.Disposal{
		DisposedOn:    q.Date,
		UnitPrice:     q.Price,
		Fee:           l.fee.InexactFloat64(),
		GrossProceeds: gross.InexactFloat64(),
		NetProceeds:   net.InexactFloat64(),
		GrossGain:     gross.Sub(grossCost).InexactFloat64(),
		NetGain:       net.Sub(netCost).InexactFloat64(),
		HoldingMonths: l.months,
	}
	d.GrossReturnPct = analytics.Pct(d.GrossGain, lot.GrossCost).Or(0)
	d.NetReturnPct = analytics.Pct(d.NetGain, lot.NetCost).Or(0)
	annGross := analytics.AnnualizedReturnPct(d.GrossProceeds, lot.GrossCost, l.months)
	annNet := analytics.AnnualizedReturnPct(d.NetProceeds, lot.NetCost, l.months)
	d.AnnualizedGrossPct, d.AnnualizedGrossUndefined = annGross.Or(0), !annGross.Valid
	d.AnnualizedNetPct, d.AnnualizedNetUndefined = annNet.Or(0), !annNet.Valid
	return d, true, nil
}
