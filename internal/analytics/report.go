package analytics

import (
	"sort"

	"bourse/internal/domain"
)

// Options parameterise Compute.
type Options struct {
	RiskFreeRatePct float64
}

// Report is the performance summary of one instrument's lots. It is derived
// data: recompute it whenever the lots change.
type Report struct {
	Symbol        string
	HoldingMonths int // 0 when lots disagree or none are closed
	Lots          int
	ClosedLots    int
	OpenLots      int

	// Aggregates over closed lots.
	InvestedGross float64
	InvestedNet   float64
	SoldGross     float64
	SoldNet       float64
	GrossGain     float64
	NetGain       float64
	TotalFees     float64

	GrossReturnPct Metric // GrossGain / InvestedGross
	NetReturnPct   Metric // NetGain / InvestedNet

	// Fee impact.
	FeeImpactPts Metric  // GrossReturnPct - NetReturnPct, in percentage points
	FeeToGainPct float64 // TotalFees / |GrossGain|; 0 when GrossGain is 0
	FeeRatePct   Metric  // TotalFees / InvestedNet

	// Per-lot net return % dispersion.
	NetReturns Summary

	// Money-weighted annualized returns and their risk adjustment. Lots
	// whose annualized net return is undefined are left out and counted in
	// AnnualizedExcluded.
	AnnualizedExcluded int
	AnnualizedGrossPct Metric
	AnnualizedNetPct   Metric
	AnnualizedNetStd   Metric
	Sharpe             Metric

	// Win/loss classification: a win has a strictly positive net return.
	Wins           int
	Losses         int
	SuccessRatePct float64
	AvgWinPct      Metric
	AvgLossPct     Metric
	WinLossRatio   Metric

	// Day gaps between consecutive acquisitions of a symbol, open lots
	// included.
	Cadence Summary

	Ratings Ratings
}

// Compute builds the report of symbol from its lots. Open lots only count
// towards Lots, OpenLots and Cadence.
func Compute(symbol string, lots []domain.Lot, opts Options) Report {
	r := Report{Symbol: symbol, Lots: len(lots)}

	var (
		closed     []domain.Lot
		netPcts    []float64
		annGross   []float64
		annNet     []float64
		grossCosts []float64
		netCosts   []float64
		winPcts    []float64
		lossPcts   []float64
	)
	holding := -1
	for _, l := range lots {
		if l.IsClosed() {
			closed = append(closed, l)
		}
	}
	r.ClosedLots = len(closed)
	r.OpenLots = r.Lots - r.ClosedLots

	for _, l := range closed {
		d := l.Disposal
		r.InvestedGross += l.GrossCost
		r.InvestedNet += l.NetCost
		r.SoldGross += d.GrossProceeds
		r.SoldNet += d.NetProceeds
		r.TotalFees += l.AcquisitionFee + d.Fee

		netPcts = append(netPcts, d.NetReturnPct)
		if !d.AnnualizedGrossUndefined {
			annGross = append(annGross, d.AnnualizedGrossPct)
			grossCosts = append(grossCosts, l.GrossCost)
		}
		if d.AnnualizedNetUndefined {
			r.AnnualizedExcluded++
		} else {
			annNet = append(annNet, d.AnnualizedNetPct)
			netCosts = append(netCosts, l.NetCost)
		}

		if d.NetReturnPct > 0 {
			winPcts = append(winPcts, d.NetReturnPct)
		} else {
			lossPcts = append(lossPcts, d.NetReturnPct)
		}

		switch holding {
		case -1:
			holding = d.HoldingMonths
		case d.HoldingMonths:
		default:
			holding = 0
		}
	}
	r.HoldingMonths = max(holding, 0)
	r.GrossGain = r.SoldGross - r.InvestedGross
	r.NetGain = r.SoldNet - r.InvestedNet

	r.GrossReturnPct = Pct(r.GrossGain, r.InvestedGross)
	r.NetReturnPct = Pct(r.NetGain, r.InvestedNet)

	if r.GrossReturnPct.Valid && r.NetReturnPct.Valid {
		r.FeeImpactPts = Defined(r.GrossReturnPct.Value - r.NetReturnPct.Value)
	}
	r.FeeToGainPct = Pct(r.TotalFees, abs(r.GrossGain)).Or(0)
	r.FeeRatePct = Pct(r.TotalFees, r.InvestedNet)

	r.NetReturns = Describe(netPcts)

	r.AnnualizedGrossPct = WeightedMean(annGross, grossCosts)
	r.AnnualizedNetPct = WeightedMean(annNet, netCosts)
	r.AnnualizedNetStd = SampleStdDev(annNet)
	if r.AnnualizedNetPct.Valid && r.AnnualizedNetStd.Valid && r.AnnualizedNetStd.Value != 0 {
		r.Sharpe = Defined((r.AnnualizedNetPct.Value - opts.RiskFreeRatePct) / r.AnnualizedNetStd.Value)
	}

	r.Wins, r.Losses = len(winPcts), len(lossPcts)
	r.SuccessRatePct = Pct(float64(r.Wins), float64(r.ClosedLots)).Or(0)
	if r.Wins > 0 {
		r.AvgWinPct = Defined(mean(winPcts))
	}
	if r.Losses > 0 {
		r.AvgLossPct = Defined(mean(lossPcts))
	}
	r.WinLossRatio = winLossRatio(r.AvgWinPct, r.AvgLossPct)

	r.Cadence = Describe(acquisitionGaps(lots))

	r.Ratings = Ratings{
		FeeToGain: RateFeeToGain(r.FeeToGainPct, r.GrossGain),
		Sharpe:    RateSharpe(r.Sharpe),
		FeeRate:   RateFeeRate(r.FeeRatePct),
		Cadence:   RateCadence(r.Cadence.StdDev),
	}
	return r
}

// winLossRatio is -avgWin/avgLoss. It is infinite when there are wins but
// the average loss is zero or there are no losses, and undefined without
// wins.
func winLossRatio(avgWin, avgLoss Metric) Metric {
	if !avgWin.Valid {
		return Undefined
	}
	if !avgLoss.Valid || avgLoss.Value == 0 {
		return Inf
	}
	return Defined(-avgWin.Value / avgLoss.Value)
}

// acquisitionGaps returns the day gaps between consecutive acquisitions of
// the same symbol, symbols taken in sorted order.
func acquisitionGaps(lots []domain.Lot) []float64 {
	bySymbol := make(map[string][]int64)
	for _, l := range lots {
		bySymbol[l.Symbol] = append(bySymbol[l.Symbol], l.AcquiredOn.Unix())
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var gaps []float64
	for _, sym := range symbols {
		days := bySymbol[sym]
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		for i := 1; i < len(days); i++ {
			gaps = append(gaps, float64(days[i]-days[i-1])/86400)
		}
	}
	return gaps
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
