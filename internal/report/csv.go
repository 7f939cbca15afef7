package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"bourse/internal/analytics"
	"bourse/internal/domain"
)

var lotHeader = []string{
	"symbol", "acquired_on", "unit_price", "shares", "acquisition_fee", "gross_cost", "net_cost",
	"disposed_on", "disposal_price", "disposal_fee", "gross_proceeds", "net_proceeds",
	"gross_gain", "net_gain", "holding_months",
	"gross_return_pct", "net_return_pct", "annualized_gross_pct", "annualized_net_pct",
}

// lotRow renders one ledger line. Disposal columns are blank for open lots.
func (o Options) lotRow(l domain.Lot) []string {
	row := []string{
		l.Symbol,
		Date(l.AcquiredOn),
		o.Float(l.UnitPrice, 4),
		strconv.FormatInt(l.Shares, 10),
		o.Float(l.AcquisitionFee, 2),
		o.Float(l.GrossCost, 2),
		o.Float(l.NetCost, 2),
	}
	d := l.Disposal
	if d == nil {
		return append(row, make([]string, len(lotHeader)-len(row))...)
	}
	return append(row,
		Date(d.DisposedOn),
		o.Float(d.UnitPrice, 4),
		o.Float(d.Fee, 2),
		o.Float(d.GrossProceeds, 2),
		o.Float(d.NetProceeds, 2),
		o.Float(d.GrossGain, 2),
		o.Float(d.NetGain, 2),
		strconv.Itoa(d.HoldingMonths),
		o.Float(d.GrossReturnPct, 2),
		o.Float(d.NetReturnPct, 2),
		o.annualized(d.AnnualizedGrossPct, d.AnnualizedGrossUndefined),
		o.annualized(d.AnnualizedNetPct, d.AnnualizedNetUndefined),
	)
}

func (o Options) annualized(v float64, undefined bool) string {
	if undefined {
		return o.Metric(analytics.Undefined, 2)
	}
	return o.Float(v, 2)
}

// WriteLotsCSV writes the lot ledger, one line per lot in portfolio order.
func WriteLotsCSV(w io.Writer, lots []domain.Lot, o Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = o.separator()
	if err := cw.Write(lotHeader); err != nil {
		return err
	}
	for _, l := range lots {
		if err := cw.Write(o.lotRow(l)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// metricRow is one line of the per-instrument table.
type metricRow struct {
	name  string
	value func(r *analytics.Report) string
}

func (o Options) metricRows() []metricRow {
	m := func(name string, f func(r *analytics.Report) analytics.Metric, decimals int) metricRow {
		return metricRow{name, func(r *analytics.Report) string { return o.Metric(f(r), decimals) }}
	}
	fl := func(name string, f func(r *analytics.Report) float64, decimals int) metricRow {
		return metricRow{name, func(r *analytics.Report) string { return o.Float(f(r), decimals) }}
	}
	n := func(name string, f func(r *analytics.Report) int) metricRow {
		return metricRow{name, func(r *analytics.Report) string { return strconv.Itoa(f(r)) }}
	}
	s := func(name string, f func(r *analytics.Report) string) metricRow {
		return metricRow{name, f}
	}

	return []metricRow{
		n("holding_months", func(r *analytics.Report) int { return r.HoldingMonths }),
		n("lots", func(r *analytics.Report) int { return r.Lots }),
		n("closed_lots", func(r *analytics.Report) int { return r.ClosedLots }),
		n("open_lots", func(r *analytics.Report) int { return r.OpenLots }),
		fl("invested_gross", func(r *analytics.Report) float64 { return r.InvestedGross }, 2),
		fl("invested_net", func(r *analytics.Report) float64 { return r.InvestedNet }, 2),
		fl("sold_gross", func(r *analytics.Report) float64 { return r.SoldGross }, 2),
		fl("sold_net", func(r *analytics.Report) float64 { return r.SoldNet }, 2),
		fl("gross_gain", func(r *analytics.Report) float64 { return r.GrossGain }, 2),
		fl("net_gain", func(r *analytics.Report) float64 { return r.NetGain }, 2),
		fl("total_fees", func(r *analytics.Report) float64 { return r.TotalFees }, 2),
		m("gross_return_pct", func(r *analytics.Report) analytics.Metric { return r.GrossReturnPct }, 2),
		m("net_return_pct", func(r *analytics.Report) analytics.Metric { return r.NetReturnPct }, 2),
		m("fee_impact_pts", func(r *analytics.Report) analytics.Metric { return r.FeeImpactPts }, 2),
		fl("fee_to_gain_pct", func(r *analytics.Report) float64 { return r.FeeToGainPct }, 2),
		m("fee_rate_pct", func(r *analytics.Report) analytics.Metric { return r.FeeRatePct }, 2),
		m("net_return_mean_pct", func(r *analytics.Report) analytics.Metric { return r.NetReturns.Mean }, 2),
		m("net_return_median_pct", func(r *analytics.Report) analytics.Metric { return r.NetReturns.Median }, 2),
		m("net_return_std_pct", func(r *analytics.Report) analytics.Metric { return r.NetReturns.StdDev }, 2),
		m("net_return_min_pct", func(r *analytics.Report) analytics.Metric { return r.NetReturns.Min }, 2),
		m("net_return_max_pct", func(r *analytics.Report) analytics.Metric { return r.NetReturns.Max }, 2),
		n("annualized_excluded_lots", func(r *analytics.Report) int { return r.AnnualizedExcluded }),
		m("annualized_gross_pct", func(r *analytics.Report) analytics.Metric { return r.AnnualizedGrossPct }, 2),
		m("annualized_net_pct", func(r *analytics.Report) analytics.Metric { return r.AnnualizedNetPct }, 2),
		m("annualized_net_std", func(r *analytics.Report) analytics.Metric { return r.AnnualizedNetStd }, 2),
		m("sharpe", func(r *analytics.Report) analytics.Metric { return r.Sharpe }, 3),
		n("wins", func(r *analytics.Report) int { return r.Wins }),
		n("losses", func(r *analytics.Report) int { return r.Losses }),
		fl("success_rate_pct", func(r *analytics.Report) float64 { return r.SuccessRatePct }, 2),
		m("avg_win_pct", func(r *analytics.Report) analytics.Metric { return r.AvgWinPct }, 2),
		m("avg_loss_pct", func(r *analytics.Report) analytics.Metric { return r.AvgLossPct }, 2),
		m("win_loss_ratio", func(r *analytics.Report) analytics.Metric { return r.WinLossRatio }, 2),
		m("cadence_mean_days", func(r *analytics.Report) analytics.Metric { return r.Cadence.Mean }, 1),
		m("cadence_std_days", func(r *analytics.Report) analytics.Metric { return r.Cadence.StdDev }, 1),
		m("cadence_min_days", func(r *analytics.Report) analytics.Metric { return r.Cadence.Min }, 0),
		m("cadence_max_days", func(r *analytics.Report) analytics.Metric { return r.Cadence.Max }, 0),
		s("rating_fee_to_gain", func(r *analytics.Report) string { return r.Ratings.FeeToGain }),
		s("rating_sharpe", func(r *analytics.Report) string { return r.Ratings.Sharpe }),
		s("rating_fee_rate", func(r *analytics.Report) string { return r.Ratings.FeeRate }),
		s("rating_cadence", func(r *analytics.Report) string { return r.Ratings.Cadence }),
	}
}

// WriteResultsCSV writes one column per report and one line per metric.
func WriteResultsCSV(w io.Writer, reports []analytics.Report, o Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = o.separator()

	header := make([]string, 0, len(reports)+1)
	header = append(header, "metric")
	for _, r := range reports {
		header = append(header, r.Symbol)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range o.metricRows() {
		line := make([]string, 0, len(reports)+1)
		line = append(line, row.name)
		for i := range reports {
			line = append(line, row.value(&reports[i]))
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
