// Package domain defines the core value types shared across the backtester:
// daily price bars, index constituents, and the purchased lots that make up a
// simulated portfolio.
package domain

import (
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// Bar is one daily OHLCV record for an instrument as persisted by the stores.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// PricePoint projects the bar onto the fields the simulation needs.
func (b Bar) PricePoint() PricePoint {
	return PricePoint{Symbol: b.Symbol, Date: b.Date, Open: b.Open, Close: b.Close}
}

// PricePoint is the open/close pair of an instrument on one trading day.
type PricePoint struct {
	Symbol string
	Date   time.Time
	Open   float64
	Close  float64
}

// Reference returns the reference trade price: the midpoint of open and close.
func (p PricePoint) Reference() float64 {
	return (p.Open + p.Close) / 2
}

// Constituent is one row of a published index composition.
type Constituent struct {
	IndexName string
	UpdatedOn time.Time
	Company   string
	Mnemonic  string
	Sector    string
	WeightPct float64
	Ticker    string
}

// ---------------------------------------------------------------------------
// Lots
// ---------------------------------------------------------------------------

// ErrLotClosed is returned when disposing of a lot that was already sold.
var ErrLotClosed = errors.New("lot already closed")

// Lot is a block of whole shares bought in a single month.
type Lot struct {
	Symbol         string
	AcquiredOn     time.Time
	UnitPrice      float64
	Shares         int64
	AcquisitionFee float64
	GrossCost      float64 // UnitPrice * Shares
	NetCost        float64 // GrossCost + AcquisitionFee

	// Disposal is nil while the lot is open.
	Disposal *Disposal
}

// Disposal carries every field that becomes known when a lot is sold.
type Disposal struct {
	DisposedOn         time.Time
	UnitPrice          float64
	Fee                float64
	GrossProceeds      float64
	NetProceeds        float64
	GrossGain          float64
	NetGain            float64
	HoldingMonths      int
	GrossReturnPct     float64
	NetReturnPct       float64
	AnnualizedGrossPct float64
	AnnualizedNetPct   float64

	// Set when proceeds are negative and the compound rate has no value.
	// The matching Annualized*Pct field is then 0 and carries no meaning.
	AnnualizedGrossUndefined bool
	AnnualizedNetUndefined   bool
}

// IsClosed reports whether the lot has been sold.
func (l Lot) IsClosed() bool { return l.Disposal != nil }

func (l Lot) clone() Lot {
	if l.Disposal != nil {
		d := *l.Disposal
		l.Disposal = &d
	}
	return l
}

// ---------------------------------------------------------------------------
// Portfolio
// ---------------------------------------------------------------------------

// Portfolio is the ordered collection of lots produced by one backtest run.
// Lots are only appended during acquisition and only closed afterwards.
type Portfolio struct {
	lots []Lot
}

// NewPortfolio returns an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{}
}

// Append adds newly acquired lots. Any disposal data on the input is dropped.
func (p *Portfolio) Append(lots ...Lot) {
	for _, l := range lots {
		l.Disposal = nil
		p.lots = append(p.lots, l)
	}
}

// Extend appends the lots of other in order, keeping their open or closed
// state.
func (p *Portfolio) Extend(other *Portfolio) {
	for _, l := range other.lots {
		p.lots = append(p.lots, l.clone())
	}
}

// Len returns the number of lots.
func (p *Portfolio) Len() int { return len(p.lots) }

// Lot returns a copy of the lot at index i.
func (p *Portfolio) Lot(i int) Lot { return p.lots[i].clone() }

// Close records the disposal of the lot at index i. A lot can be closed once.
func (p *Portfolio) Close(i int, d Disposal) error {
	if p.lots[i].Disposal != nil {
		return ErrLotClosed
	}
	p.lots[i].Disposal = &d
	return nil
}

// Lots returns a copy of all lots in acquisition order. Disposals are
// copied too.
func (p *Portfolio) Lots() []Lot {
	out := make([]Lot, len(p.lots))
	for i, l := range p.lots {
		out[i] = l.clone()
	}
	return out
}

// Symbols returns the distinct symbols in first-seen order.
func (p *Portfolio) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range p.lots {
		if _, ok := seen[l.Symbol]; ok {
			continue
		}
		seen[l.Symbol] = struct{}{}
		out = append(out, l.Symbol)
	}
	return out
}

// BySymbol returns all lots of one instrument.
func (p *Portfolio) BySymbol(symbol string) []Lot {
	return p.filter(func(l *Lot) bool { return l.Symbol == symbol })
}

// Open returns the lots that have not been sold.
func (p *Portfolio) Open() []Lot {
	return p.filter(func(l *Lot) bool { return !l.IsClosed() })
}

// Closed returns the lots that have been sold.
func (p *Portfolio) Closed() []Lot {
	return p.filter(func(l *Lot) bool { return l.IsClosed() })
}

// ClosedBySymbol returns the sold lots of one instrument.
func (p *Portfolio) ClosedBySymbol(symbol string) []Lot {
	return p.filter(func(l *Lot) bool { return l.Symbol == symbol && l.IsClosed() })
}

func (p *Portfolio) filter(keep func(*Lot) bool) []Lot {
	var out []Lot
	for i := range p.lots {
		if keep(&p.lots[i]) {
			out = append(out, p.lots[i].clone())
		}
	}
	return out
}
