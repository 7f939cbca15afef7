package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bourse/internal/analytics"
	"bourse/internal/backtest"
	"bourse/internal/domain"
)

// WriteXLSX writes a workbook with a comparison sheet followed by a lots
// sheet and an instruments sheet per run. The summary and lots sheets hold
// real numbers; undefined metrics are the text "n/a".
func WriteXLSX(w io.Writer, results []*backtest.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	if err := writeSummarySheet(f, summary, results); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}

	for _, res := range results {
		lots := fmt.Sprintf("Lots %dm", res.Params.HoldingMonths)
		if _, err := f.NewSheet(lots); err != nil {
			return err
		}
		if err := writeLotsSheet(f, lots, res.Portfolio.Lots()); err != nil {
			return fmt.Errorf("%s sheet: %w", lots, err)
		}

		inst := fmt.Sprintf("Instruments %dm", res.Params.HoldingMonths)
		if _, err := f.NewSheet(inst); err != nil {
			return err
		}
		if err := writeInstrumentsSheet(f, inst, append([]analytics.Report{res.Pooled}, res.Reports...)); err != nil {
			return fmt.Errorf("%s sheet: %w", inst, err)
		}
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, rowIdx int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// cellMetric stores defined metrics as numbers and the rest as text.
func cellMetric(m analytics.Metric) any {
	if !m.Valid || m.IsInf() {
		return m.Format(2)
	}
	return m.Value
}

func writeSummarySheet(f *excelize.File, sheet string, results []*backtest.Result) error {
	header := []any{"Holding (months)", "Run ID", "Lots", "Closed", "Open",
		"Invested net", "Sold net", "Net gain", "Net return %", "Annualized net %", "Sharpe", "Success rate %"}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, res := range results {
		r := res.Pooled
		if err := setRow(f, sheet, i+2, []any{
			res.Params.HoldingMonths, res.RunID, r.Lots, r.ClosedLots, r.OpenLots,
			r.InvestedNet, r.SoldNet, r.NetGain,
			cellMetric(r.NetReturnPct), cellMetric(r.AnnualizedNetPct), cellMetric(r.Sharpe),
			r.SuccessRatePct,
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeLotsSheet(f *excelize.File, sheet string, lots []domain.Lot) error {
	header := make([]any, len(lotHeader))
	for i, h := range lotHeader {
		header[i] = h
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, l := range lots {
		vals := []any{l.Symbol, Date(l.AcquiredOn), l.UnitPrice, l.Shares, l.AcquisitionFee, l.GrossCost, l.NetCost}
		if d := l.Disposal; d != nil {
			vals = append(vals, Date(d.DisposedOn), d.UnitPrice, d.Fee, d.GrossProceeds, d.NetProceeds,
				d.GrossGain, d.NetGain, d.HoldingMonths,
				d.GrossReturnPct, d.NetReturnPct,
				cellAnnualized(d.AnnualizedGrossPct, d.AnnualizedGrossUndefined),
				cellAnnualized(d.AnnualizedNetPct, d.AnnualizedNetUndefined))
		}
		if err := setRow(f, sheet, i+2, vals); err != nil {
			return err
		}
	}
	return nil
}

// writeInstrumentsSheet lays reports out like the results CSV: one column
// per report, one line per metric.
func writeInstrumentsSheet(f *excelize.File, sheet string, reports []analytics.Report) error {
	header := []any{"metric"}
	for _, r := range reports {
		header = append(header, r.Symbol)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	o := Options{}
	for i, mr := range o.metricRows() {
		vals := []any{mr.name}
		for j := range reports {
			vals = append(vals, mr.value(&reports[j]))
		}
		if err := setRow(f, sheet, i+2, vals); err != nil {
			return err
		}
	}
	return nil
}

func cellAnnualized(v float64, undefined bool) any {
	if undefined {
		return cellMetric(analytics.Undefined)
	}
	return v
}
