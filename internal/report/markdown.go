package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"bourse/internal/analytics"
	"bourse/internal/backtest"
)

// WriteMarkdown writes a human-readable summary of one or more runs over the
// same universe. With several runs a holding-period comparison is added.
func WriteMarkdown(w io.Writer, results []*backtest.Result) error {
	bw := bufio.NewWriter(w)
	if len(results) == 0 {
		fmt.Fprintln(bw, "# Backtest summary")
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "No runs.")
		return bw.Flush()
	}

	p := results[0].Params
	fmt.Fprintln(bw, "# Backtest summary")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "- Period: %s to %s\n", Date(p.Start), Date(p.End))
	fmt.Fprintf(bw, "- Instruments: %d\n", len(results[0].Symbols))
	fmt.Fprintf(bw, "- Monthly budget: %.2f (acquisition fee %.2f, disposal fee %.2f)\n",
		p.MonthlyBudget, p.AcquisitionFee, p.DisposalFee)
	fmt.Fprintf(bw, "- Risk-free rate: %.2f%%\n", p.RiskFreeRatePct)
	acq := results[0].Acquisition
	fmt.Fprintf(bw, "- Purchases: %s made, %s skipped for lack of price, %s skipped for lack of budget\n",
		FormatInt(acq.Acquired), FormatInt(acq.NoPrice), FormatInt(acq.Insufficient))

	if len(results) > 1 {
		writeComparison(bw, results)
	}
	for _, res := range results {
		writeRun(bw, res)
	}
	return bw.Flush()
}

func writeComparison(w io.Writer, results []*backtest.Result) {
	periods := make([]analytics.PeriodReport, len(results))
	for i, r := range results {
		periods[i] = r.PeriodReport()
	}
	ranked := analytics.Rank(periods)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "## Holding period comparison")
	fmt.Fprintln(w)
	table(w, []string{"Rank", "Holding (months)", "Closed lots", "Net return", "Annualized net", "Sharpe", "Success rate"})
	for i, pr := range ranked {
		r := pr.Pooled
		row(w,
			fmt.Sprint(i+1),
			fmt.Sprint(pr.HoldingMonths),
			FormatInt(r.ClosedLots),
			FormatPct(r.NetReturnPct),
			FormatPct(r.AnnualizedNetPct),
			r.Sharpe.Format(3),
			fmt.Sprintf("%.1f%%", r.SuccessRatePct),
		)
	}
	best := ranked[0]
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Best holding period: **%d months** (Sharpe %s, annualized net %s).\n",
		best.HoldingMonths, best.Pooled.Sharpe.Format(3), FormatPct(best.Pooled.AnnualizedNetPct))
}

func writeRun(w io.Writer, res *backtest.Result) {
	r := res.Pooled
	fmt.Fprintln(w)
	fmt.Fprintf(w, "## Holding %d months\n", res.Params.HoldingMonths)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run `%s`, %s.\n", res.RunID, res.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "- Lots: %s (%s closed, %s open)\n", FormatInt(r.Lots), FormatInt(r.ClosedLots), FormatInt(r.OpenLots))
	fmt.Fprintf(w, "- Invested: %s net, sold %s net, gain %s\n",
		FormatMoney(r.InvestedNet), FormatMoney(r.SoldNet), FormatMoney(r.NetGain))
	fmt.Fprintf(w, "- Return: %s gross, %s net (fees cost %s pts)\n",
		FormatPct(r.GrossReturnPct), FormatPct(r.NetReturnPct), r.FeeImpactPts.Format(2))
	fmt.Fprintf(w, "- Annualized: %s gross, %s net, std %s, Sharpe %s (%s)\n",
		FormatPct(r.AnnualizedGrossPct), FormatPct(r.AnnualizedNetPct),
		r.AnnualizedNetStd.Format(2), r.Sharpe.Format(3), r.Ratings.Sharpe)
	if r.AnnualizedExcluded > 0 {
		fmt.Fprintf(w, "- Annualized figures leave out %d lot(s) sold for less than the disposal fee\n",
			r.AnnualizedExcluded)
	}
	fmt.Fprintf(w, "- Fees: %.2f%% of gross gain (%s), %s of invested (%s)\n",
		r.FeeToGainPct, r.Ratings.FeeToGain, FormatPct(r.FeeRatePct), r.Ratings.FeeRate)
	fmt.Fprintf(w, "- Wins: %d, losses: %d, success rate %.1f%%, win/loss ratio %s\n",
		r.Wins, r.Losses, r.SuccessRatePct, r.WinLossRatio.Format(2))
	fmt.Fprintf(w, "- Purchase spacing: mean %s days, std %s (%s)\n",
		r.Cadence.Mean.Format(1), r.Cadence.StdDev.Format(1), r.Ratings.Cadence)

	if len(res.Reports) == 0 {
		return
	}
	fmt.Fprintln(w)
	table(w, []string{"Symbol", "Lots", "Closed", "Net return", "Annualized net", "Sharpe", "Success", "Win/loss", "Fee rate"})
	for _, ir := range res.Reports {
		row(w,
			ir.Symbol,
			fmt.Sprint(ir.Lots),
			fmt.Sprint(ir.ClosedLots),
			FormatPct(ir.NetReturnPct),
			FormatPct(ir.AnnualizedNetPct),
			ir.Sharpe.Format(3),
			fmt.Sprintf("%.1f%%", ir.SuccessRatePct),
			ir.WinLossRatio.Format(2),
			FormatPct(ir.FeeRatePct),
		)
	}
}

func table(w io.Writer, header []string) {
	row(w, header...)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	row(w, sep...)
}

func row(w io.Writer, cells ...string) {
	fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
}
