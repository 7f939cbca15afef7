// Package analytics computes realized, annualized and risk-adjusted
// performance statistics over closed lots.
package analytics

import (
	"fmt"
	"math"
)

// Metric is a number that may be undefined, typically because its
// denominator was zero. Undefined metrics render as "n/a".
type Metric struct {
	Value float64
	Valid bool
}

// Defined wraps a computed value.
func Defined(v float64) Metric { return Metric{Value: v, Valid: true} }

// Undefined is the zero Metric.
var Undefined = Metric{}

// Inf is a defined positive infinity, used for ratios whose denominator
// vanishes while the numerator is meaningful.
var Inf = Metric{Value: math.Inf(1), Valid: true}

// Ratio returns num/den, or Undefined when den is zero.
func Ratio(num, den float64) Metric {
	if den == 0 {
		return Undefined
	}
	return Defined(num / den)
}

// Pct returns 100*num/den, or Undefined when den is zero.
func Pct(num, den float64) Metric {
	if den == 0 {
		return Undefined
	}
	return Defined(num / den * 100)
}

// Or returns the value, or def when the metric is undefined.
func (m Metric) Or(def float64) float64 {
	if !m.Valid {
		return def
	}
	return m.Value
}

// IsInf reports whether the metric is a defined infinity.
func (m Metric) IsInf() bool { return m.Valid && math.IsInf(m.Value, 0) }

// String formats with two decimals.
func (m Metric) String() string { return m.Format(2) }

// Format renders the value with the given number of decimals.
func (m Metric) Format(decimals int) string {
	switch {
	case !m.Valid:
		return "n/a"
	case math.IsInf(m.Value, 1):
		return "inf"
	case math.IsInf(m.Value, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.*f", decimals, m.Value)
}

// AnnualizedReturnPct is the compound yearly rate, in percent, that turns
// cost into proceeds over months: ((proceeds/cost)^(12/months) - 1) * 100.
// It is undefined for a zero holding period, a zero cost, or a negative
// proceeds/cost ratio.
func AnnualizedReturnPct(proceeds, cost float64, months int) Metric {
	if months == 0 || cost == 0 {
		return Undefined
	}
	growth := proceeds / cost
	if growth < 0 {
		return Undefined
	}
	return Defined((math.Pow(growth, 12/float64(months)) - 1) * 100)
}
