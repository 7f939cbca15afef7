package analytics

import (
	"sort"

	"bourse/internal/domain"
)

// PooledSymbol labels the report computed over every instrument at once.
const PooledSymbol = "ALL"

// Pooled computes one report over the lots of all instruments. Aggregates
// are money-weighted across the whole book; cadence gaps are still measured
// per instrument.
func Pooled(lots []domain.Lot, opts Options) Report {
	return Compute(PooledSymbol, lots, opts)
}

// PeriodReport is the outcome of one holding period in a sweep.
type PeriodReport struct {
	HoldingMonths int
	Pooled        Report
	Instruments   []Report
}

// Rank orders periods best first: by Sharpe-like ratio, then money-weighted
// annualized net return, then shorter holding. Undefined figures sort last.
// The input is not modified.
func Rank(periods []PeriodReport) []PeriodReport {
	out := append([]PeriodReport(nil), periods...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Pooled, out[j].Pooled
		if c := compareMetric(a.Sharpe, b.Sharpe); c != 0 {
			return c > 0
		}
		if c := compareMetric(a.AnnualizedNetPct, b.AnnualizedNetPct); c != 0 {
			return c > 0
		}
		return out[i].HoldingMonths < out[j].HoldingMonths
	})
	return out
}

// compareMetric returns 1 when a beats b, -1 when b beats a, 0 on a tie.
// Any defined value beats an undefined one.
func compareMetric(a, b Metric) int {
	switch {
	case a.Valid && !b.Valid:
		return 1
	case !a.Valid && b.Valid:
		return -1
	case !a.Valid && !b.Valid, a.Value == b.Value:
		return 0
	case a.Value > b.Value:
		return 1
	default:
		return -1
	}
}
