package report

import (
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"bourse/internal/domain"
)

// LotRecord is the Parquet row of one lot. Disposal columns are null for open
// lots.
type LotRecord struct {
	RunID          string  `parquet:"run_id"`
	Symbol         string  `parquet:"symbol"`
	AcquiredOn     int64   `parquet:"acquired_on,timestamp(millisecond)"`
	UnitPrice      float64 `parquet:"unit_price"`
	Shares         int64   `parquet:"shares"`
	AcquisitionFee float64 `parquet:"acquisition_fee"`
	GrossCost      float64 `parquet:"gross_cost"`
	NetCost        float64 `parquet:"net_cost"`

	DisposedOn         *int64   `parquet:"disposed_on,optional,timestamp(millisecond)"`
	DisposalPrice      *float64 `parquet:"disposal_price,optional"`
	DisposalFee        *float64 `parquet:"disposal_fee,optional"`
	GrossProceeds      *float64 `parquet:"gross_proceeds,optional"`
	NetProceeds        *float64 `parquet:"net_proceeds,optional"`
	GrossGain          *float64 `parquet:"gross_gain,optional"`
	NetGain            *float64 `parquet:"net_gain,optional"`
	HoldingMonths      *int32   `parquet:"holding_months,optional"`
	GrossReturnPct     *float64 `parquet:"gross_return_pct,optional"`
	NetReturnPct       *float64 `parquet:"net_return_pct,optional"`
	AnnualizedNetPct   *float64 `parquet:"annualized_net_pct,optional"`
	AnnualizedGrossPct *float64 `parquet:"annualized_gross_pct,optional"`
}

// NewLotRecord converts a lot for the given run.
func NewLotRecord(runID string, l domain.Lot) LotRecord {
	rec := LotRecord{
		RunID:          runID,
		Symbol:         l.Symbol,
		AcquiredOn:     l.AcquiredOn.UnixMilli(),
		UnitPrice:      l.UnitPrice,
		Shares:         l.Shares,
		AcquisitionFee: l.AcquisitionFee,
		GrossCost:      l.GrossCost,
		NetCost:        l.NetCost,
	}
	if d := l.Disposal; d != nil {
		ms := d.DisposedOn.UnixMilli()
		months := int32(d.HoldingMonths)
		rec.DisposedOn = &ms
		rec.DisposalPrice = ptr(d.UnitPrice)
		rec.DisposalFee = ptr(d.Fee)
		rec.GrossProceeds = ptr(d.GrossProceeds)
		rec.NetProceeds = ptr(d.NetProceeds)
		rec.GrossGain = ptr(d.GrossGain)
		rec.NetGain = ptr(d.NetGain)
		rec.HoldingMonths = &months
		rec.GrossReturnPct = ptr(d.GrossReturnPct)
		rec.NetReturnPct = ptr(d.NetReturnPct)
		if !d.AnnualizedNetUndefined {
			rec.AnnualizedNetPct = ptr(d.AnnualizedNetPct)
		}
		if !d.AnnualizedGrossUndefined {
			rec.AnnualizedGrossPct = ptr(d.AnnualizedGrossPct)
		}
	}
	return rec
}

// Lot converts the record back.
func (r LotRecord) Lot() domain.Lot {
	l := domain.Lot{
		Symbol:         r.Symbol,
		AcquiredOn:     time.UnixMilli(r.AcquiredOn).UTC(),
		UnitPrice:      r.UnitPrice,
		Shares:         r.Shares,
		AcquisitionFee: r.AcquisitionFee,
		GrossCost:      r.GrossCost,
		NetCost:        r.NetCost,
	}
	if r.DisposedOn != nil {
		l.Disposal = &domain.Disposal{
			DisposedOn:         time.UnixMilli(*r.DisposedOn).UTC(),
			UnitPrice:          deref(r.DisposalPrice),
			Fee:                deref(r.DisposalFee),
			GrossProceeds:      deref(r.GrossProceeds),
			NetProceeds:        deref(r.NetProceeds),
			GrossGain:          deref(r.GrossGain),
			NetGain:            deref(r.NetGain),
			GrossReturnPct:     deref(r.GrossReturnPct),
			NetReturnPct:       deref(r.NetReturnPct),
			AnnualizedNetPct:   deref(r.AnnualizedNetPct),
			AnnualizedGrossPct: deref(r.AnnualizedGrossPct),

			AnnualizedNetUndefined:   r.AnnualizedNetPct == nil,
			AnnualizedGrossUndefined: r.AnnualizedGrossPct == nil,
		}
		if r.HoldingMonths != nil {
			l.Disposal.HoldingMonths = int(*r.HoldingMonths)
		}
	}
	return l
}

// WriteLotsParquet writes the lots of one run as a single row group.
func WriteLotsParquet(w io.Writer, runID string, lots []domain.Lot) error {
	recs := make([]LotRecord, len(lots))
	for i, l := range lots {
		recs[i] = NewLotRecord(runID, l)
	}
	return parquet.Write(w, recs)
}

// ReadLotsParquet reads a ledger written by WriteLotsParquet.
func ReadLotsParquet(r io.ReaderAt, size int64) ([]LotRecord, error) {
	return parquet.Read[LotRecord](r, size)
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
