package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bourse/internal/domain"
)

const eps = 1e-9

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// closedLot builds a lot sold after months at sell, with fee charged on both
// sides.
func closedLot(sym string, on time.Time, buy float64, shares int64, sell, fee float64, months int) domain.Lot {
	l := openLot(sym, on, buy, shares, fee)
	gross := sell * float64(shares)
	net := gross - fee
	l.Disposal = &domain.Disposal{
		DisposedOn:         on.AddDate(0, months, 0),
		UnitPrice:          sell,
		Fee:                fee,
		GrossProceeds:      gross,
		NetProceeds:        net,
		GrossGain:          gross - l.GrossCost,
		NetGain:            net - l.NetCost,
		HoldingMonths:      months,
		GrossReturnPct:     (gross - l.GrossCost) / l.GrossCost * 100,
		NetReturnPct:       (net - l.NetCost) / l.NetCost * 100,
	}
	ag := AnnualizedReturnPct(gross, l.GrossCost, months)
	an := AnnualizedReturnPct(net, l.NetCost, months)
	l.Disposal.AnnualizedGrossPct, l.Disposal.AnnualizedGrossUndefined = ag.Or(0), !ag.Valid
	l.Disposal.AnnualizedNetPct, l.Disposal.AnnualizedNetUndefined = an.Or(0), !an.Valid
	return l
}

func openLot(sym string, on time.Time, buy float64, shares int64, fee float64) domain.Lot {
	gross := buy * float64(shares)
	return domain.Lot{
		Symbol:         sym,
		AcquiredOn:     on,
		UnitPrice:      buy,
		Shares:         shares,
		AcquisitionFee: fee,
		GrossCost:      gross,
		NetCost:        gross + fee,
	}
}

func TestAnnualizedReturnPct(t *testing.T) {
	// Flat proceeds over a year annualize to exactly zero.
	got := AnnualizedReturnPct(100, 100, 12)
	require.True(t, got.Valid)
	assert.InDelta(t, 0, got.Value, eps)

	got = AnnualizedReturnPct(59, 51, 6)
	require.True(t, got.Valid)
	assert.InDelta(t, (math.Pow(59.0/51.0, 2)-1)*100, got.Value, eps)
	assert.InDelta(t, 33.83, got.Value, 0.01)

	assert.False(t, AnnualizedReturnPct(100, 100, 0).Valid, "zero months")
	assert.False(t, AnnualizedReturnPct(100, 0, 12).Valid, "zero cost")
	assert.False(t, AnnualizedReturnPct(-5, 100, 12).Valid, "negative growth")
}

func TestDescribe(t *testing.T) {
	empty := Describe(nil)
	assert.Equal(t, 0, empty.N)
	assert.False(t, empty.Mean.Valid)
	assert.False(t, empty.StdDev.Valid)

	single := Describe([]float64{4.2})
	assert.True(t, single.Mean.Valid)
	assert.Equal(t, 4.2, single.Median.Value)
	assert.False(t, single.StdDev.Valid, "std of one observation must be undefined")

	xs := []float64{4, 1, 3, 2}
	s := Describe(xs)
	assert.InDelta(t, 2.5, s.Mean.Value, eps)
	assert.InDelta(t, 2.5, s.Median.Value, eps)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.StdDev.Value, eps)
	assert.Equal(t, 1.0, s.Min.Value)
	assert.Equal(t, 4.0, s.Max.Value)
	assert.Equal(t, []float64{4, 1, 3, 2}, xs, "input must not be reordered")
}

func TestComputeSingleLotScenario(t *testing.T) {
	lot := closedLot("X", day(2020, 1, 2), 50, 1, 60, 1, 6)
	r := Compute("X", []domain.Lot{lot}, Options{RiskFreeRatePct: 1.7})

	assert.Equal(t, 1, r.ClosedLots)
	assert.Equal(t, 6, r.HoldingMonths)
	assert.InDelta(t, 51, r.InvestedNet, eps)
	assert.InDelta(t, 59, r.SoldNet, eps)
	assert.InDelta(t, 8, r.NetGain, eps)
	assert.InDelta(t, 8.0/51.0*100, r.NetReturnPct.Value, eps)
	assert.InDelta(t, 15.69, r.NetReturnPct.Value, 0.01)
	assert.InDelta(t, 33.83, r.AnnualizedNetPct.Value, 0.01)
	assert.InDelta(t, 44, r.AnnualizedGrossPct.Value, 1e-6)

	assert.False(t, r.Sharpe.Valid, "a single lot has no dispersion")
	assert.Equal(t, "n/a", r.Ratings.Sharpe)
	assert.InDelta(t, 100, r.SuccessRatePct, eps)
	assert.True(t, r.WinLossRatio.IsInf(), "no losses gives an infinite win/loss ratio")
	assert.InDelta(t, 20, r.FeeToGainPct, eps)
	assert.Equal(t, "very high", r.Ratings.FeeToGain)
	assert.False(t, r.Cadence.Mean.Valid)
}

func TestComputeMixedLots(t *testing.T) {
	lots := []domain.Lot{
		closedLot("X", day(2020, 1, 2), 10, 9, 12, 1, 12),
		closedLot("X", day(2020, 2, 3), 10, 9, 9, 1, 12),
		closedLot("X", day(2020, 3, 2), 20, 4, 25, 1, 12),
		openLot("X", day(2020, 4, 1), 20, 4, 1),
	}
	r := Compute("X", lots, Options{RiskFreeRatePct: 1.7})

	require.Equal(t, 4, r.Lots)
	require.Equal(t, 3, r.ClosedLots)
	assert.Equal(t, 1, r.OpenLots)

	assert.InDelta(t, 260, r.InvestedGross, eps)
	assert.InDelta(t, 263, r.InvestedNet, eps)
	assert.InDelta(t, 289, r.SoldGross, eps)
	assert.InDelta(t, 286, r.SoldNet, eps)
	assert.InDelta(t, 29, r.GrossGain, eps)
	assert.InDelta(t, 23, r.NetGain, eps)
	assert.InDelta(t, 6, r.TotalFees, eps)

	assert.InDelta(t, 29.0/260*100, r.GrossReturnPct.Value, eps)
	assert.InDelta(t, 23.0/263*100, r.NetReturnPct.Value, eps)
	assert.InDelta(t, 29.0/260*100-23.0/263*100, r.FeeImpactPts.Value, eps)
	assert.InDelta(t, 6.0/29*100, r.FeeToGainPct, eps)
	assert.InDelta(t, 6.0/263*100, r.FeeRatePct.Value, eps)
	assert.Equal(t, "high", r.Ratings.FeeRate)

	pcts := []float64{16.0 / 91 * 100, -11.0 / 91 * 100, 18.0 / 81 * 100}
	assert.InDelta(t, (pcts[0]+pcts[1]+pcts[2])/3, r.NetReturns.Mean.Value, eps)
	assert.InDelta(t, pcts[0], r.NetReturns.Median.Value, eps)
	assert.InDelta(t, pcts[1], r.NetReturns.Min.Value, eps)
	assert.InDelta(t, pcts[2], r.NetReturns.Max.Value, eps)

	// Twelve-month holding: annualized equals simple return, and the
	// money-weighted mean is total net gain over total net cost.
	assert.InDelta(t, 23.0/263*100, r.AnnualizedNetPct.Value, 1e-9)
	assert.InDelta(t, 29.0/260*100, r.AnnualizedGrossPct.Value, 1e-9)
	std := SampleStdDev(pcts)
	require.True(t, std.Valid)
	assert.InDelta(t, (23.0/263*100-1.7)/std.Value, r.Sharpe.Value, 1e-9)

	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.InDelta(t, 200.0/3, r.SuccessRatePct, eps)
	assert.InDelta(t, (pcts[0]+pcts[2])/2, r.AvgWinPct.Value, eps)
	assert.InDelta(t, pcts[1], r.AvgLossPct.Value, eps)
	assert.InDelta(t, -((pcts[0]+pcts[2])/2)/pcts[1], r.WinLossRatio.Value, eps)

	// Acquisition gaps include the open lot: 32, 28 and 30 days.
	assert.Equal(t, 3, r.Cadence.N)
	assert.InDelta(t, 30, r.Cadence.Mean.Value, eps)
	assert.InDelta(t, 30, r.Cadence.Median.Value, eps)
	assert.InDelta(t, 2, r.Cadence.StdDev.Value, eps)
	assert.InDelta(t, 28, r.Cadence.Min.Value, eps)
	assert.InDelta(t, 32, r.Cadence.Max.Value, eps)
	assert.Equal(t, "very regular", r.Ratings.Cadence)
}

func TestComputeLeavesOutUndefinedAnnualized(t *testing.T) {
	lots := []domain.Lot{
		closedLot("X", day(2020, 1, 2), 50, 1, 0.5, 1, 6), // net proceeds -0.5
		closedLot("X", day(2020, 2, 3), 50, 1, 60, 1, 6),
	}
	require.True(t, lots[0].Disposal.AnnualizedNetUndefined)

	r := Compute("X", lots, Options{RiskFreeRatePct: 1.7})
	assert.Equal(t, 1, r.AnnualizedExcluded)
	require.True(t, r.AnnualizedNetPct.Valid)
	assert.InDelta(t, (math.Pow(59.0/51.0, 2)-1)*100, r.AnnualizedNetPct.Value, eps)
	assert.False(t, r.AnnualizedNetStd.Valid, "one defined lot has no dispersion")
	assert.False(t, r.Sharpe.Valid)

	// Gross proceeds stay positive, so both lots weigh in.
	require.True(t, r.AnnualizedGrossPct.Valid)
	assert.InDelta(t, (-99.99+44)/2, r.AnnualizedGrossPct.Value, 1e-6)

	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 2, r.NetReturns.N)

	all := Compute("X", lots[:1], Options{})
	assert.False(t, all.AnnualizedNetPct.Valid)
	assert.Equal(t, "n/a", all.AnnualizedNetPct.String())
}

func TestComputeDegenerateInputs(t *testing.T) {
	r := Compute("X", nil, Options{})
	assert.Equal(t, 0, r.ClosedLots)
	assert.Equal(t, 0.0, r.SuccessRatePct)
	assert.Equal(t, 0.0, r.FeeToGainPct)
	assert.False(t, r.NetReturnPct.Valid)
	assert.False(t, r.FeeRatePct.Valid)
	assert.False(t, r.Sharpe.Valid)
	assert.False(t, r.WinLossRatio.Valid)

	// Only open lots: aggregates stay empty.
	r = Compute("X", []domain.Lot{openLot("X", day(2020, 1, 2), 10, 9, 1)}, Options{})
	assert.Equal(t, 1, r.OpenLots)
	assert.Equal(t, 0.0, r.InvestedNet)

	// Two identical lots: zero dispersion leaves Sharpe undefined.
	same := []domain.Lot{
		closedLot("X", day(2020, 1, 2), 10, 9, 12, 1, 12),
		closedLot("X", day(2020, 2, 3), 10, 9, 12, 1, 12),
	}
	r = Compute("X", same, Options{RiskFreeRatePct: 1.7})
	require.True(t, r.AnnualizedNetStd.Valid)
	assert.Equal(t, 0.0, r.AnnualizedNetStd.Value)
	assert.False(t, r.Sharpe.Valid)

	// Zero gross gain leaves the fee/gain ratio at 0.
	flat := []domain.Lot{closedLot("X", day(2020, 1, 2), 10, 9, 10, 1, 12)}
	r = Compute("X", flat, Options{})
	assert.Equal(t, 0.0, r.FeeToGainPct)
	assert.Equal(t, 0, r.Wins, "a negative net return is a loss")
}

func TestSuccessRateBounds(t *testing.T) {
	var lots []domain.Lot
	for i, sell := range []float64{8, 9, 10, 11, 12, 13} {
		lots = append(lots, closedLot("X", day(2020, time.Month(i+1), 2), 10, 9, sell, 0, 6))
	}
	r := Compute("X", lots, Options{})
	wins := 0
	for _, l := range lots {
		if l.Disposal.NetReturnPct > 0 {
			wins++
		}
	}
	assert.InDelta(t, 100*float64(wins)/float64(len(lots)), r.SuccessRatePct, eps)
	assert.GreaterOrEqual(t, r.SuccessRatePct, 0.0)
	assert.LessOrEqual(t, r.SuccessRatePct, 100.0)
	// The zero-return lot counts as a loss.
	assert.Equal(t, 3, r.Losses)
}

func TestWinLossRatio(t *testing.T) {
	assert.False(t, winLossRatio(Undefined, Defined(-3)).Valid)
	assert.True(t, winLossRatio(Defined(5), Undefined).IsInf())
	assert.True(t, winLossRatio(Defined(5), Defined(0)).IsInf())
	assert.InDelta(t, 2.5, winLossRatio(Defined(5), Defined(-2)).Value, eps)
}

func TestPooledMixesInstruments(t *testing.T) {
	lots := []domain.Lot{
		closedLot("A", day(2020, 1, 2), 10, 9, 12, 1, 12),
		closedLot("B", day(2020, 1, 3), 20, 4, 25, 1, 12),
		closedLot("A", day(2020, 2, 3), 10, 9, 9, 1, 12),
	}
	r := Pooled(lots, Options{})
	assert.Equal(t, PooledSymbol, r.Symbol)
	assert.Equal(t, 3, r.ClosedLots)
	// Only A has two acquisitions; B's lone lot contributes no gap.
	assert.Equal(t, 1, r.Cadence.N)
	assert.InDelta(t, 32, r.Cadence.Mean.Value, eps)
}

func TestRank(t *testing.T) {
	periods := []PeriodReport{
		{HoldingMonths: 6, Pooled: Report{Sharpe: Defined(0.5), AnnualizedNetPct: Defined(9)}},
		{HoldingMonths: 12, Pooled: Report{Sharpe: Defined(1.2), AnnualizedNetPct: Defined(7)}},
		{HoldingMonths: 24, Pooled: Report{Sharpe: Undefined, AnnualizedNetPct: Defined(20)}},
		{HoldingMonths: 36, Pooled: Report{Sharpe: Defined(1.2), AnnualizedNetPct: Defined(8)}},
	}
	ranked := Rank(periods)
	var order []int
	for _, p := range ranked {
		order = append(order, p.HoldingMonths)
	}
	assert.Equal(t, []int{36, 12, 6, 24}, order)
	assert.Equal(t, 6, periods[0].HoldingMonths, "input must not be reordered")
}

func TestRatings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"fee/gain loss", RateFeeToGain(3, -10), "negative"},
		{"fee/gain 4", RateFeeToGain(4, 10), "very good"},
		{"fee/gain 5", RateFeeToGain(5, 10), "acceptable"},
		{"fee/gain 12", RateFeeToGain(12, 10), "high"},
		{"fee/gain 15", RateFeeToGain(15, 10), "very high"},
		{"sharpe -1", RateSharpe(Defined(-1)), "poor"},
		{"sharpe 0.5", RateSharpe(Defined(0.5)), "insufficient"},
		{"sharpe 1", RateSharpe(Defined(1)), "good"},
		{"sharpe 2.5", RateSharpe(Defined(2.5)), "very good"},
		{"sharpe 3", RateSharpe(Defined(3)), "excellent"},
		{"fee rate 0.4", RateFeeRate(Defined(0.4)), "excellent"},
		{"fee rate 0.5", RateFeeRate(Defined(0.5)), "very good"},
		{"fee rate 1.5", RateFeeRate(Defined(1.5)), "acceptable"},
		{"fee rate 2", RateFeeRate(Defined(2)), "high"},
		{"fee rate 3", RateFeeRate(Defined(3)), "very high"},
		{"cadence 4", RateCadence(Defined(4)), "very regular"},
		{"cadence 9", RateCadence(Defined(9)), "regular"},
		{"cadence 19", RateCadence(Defined(19)), "fairly regular"},
		{"cadence 20", RateCadence(Defined(20)), "irregular"},
		{"cadence n/a", RateCadence(Undefined), "n/a"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestMetricFormat(t *testing.T) {
	assert.Equal(t, "n/a", Undefined.String())
	assert.Equal(t, "inf", Inf.String())
	assert.Equal(t, "15.69", Defined(15.6862745).String())
	assert.Equal(t, "3.1", Defined(3.14).Format(1))
	assert.Equal(t, 7.0, Undefined.Or(7))
}
