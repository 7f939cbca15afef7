// Package report renders backtest results: lot ledgers and per-instrument
// metrics as CSV, a Markdown summary, an XLSX workbook and a Parquet ledger.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"bourse/internal/analytics"
)

// Options control number rendering in the text formats.
type Options struct {
	// Separator is the CSV field separator.
	Separator rune
	// DecimalComma writes 12,5 instead of 12.5.
	DecimalComma bool
}

// DefaultOptions matches spreadsheet defaults in French locales.
func DefaultOptions() Options {
	return Options{Separator: ';', DecimalComma: true}
}

func (o Options) separator() rune {
	if o.Separator == 0 {
		return ';'
	}
	return o.Separator
}

// Float formats v with the given number of decimals.
func (o Options) Float(v float64, decimals int) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := fmt.Sprintf("%.*f", decimals, v)
	if o.DecimalComma {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

// Metric formats m, rendering undefined values as "n/a".
func (o Options) Metric(m analytics.Metric, decimals int) string {
	s := m.Format(decimals)
	if o.DecimalComma && m.Valid && !m.IsInf() {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

// Date formats a calendar day, or "" for the zero time.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// FormatInt formats an integer with thousands separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats an amount with K/M suffixes for large values.
func FormatMoney(v float64) string {
	a := math.Abs(v)
	switch {
	case a >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case a >= 1e4:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// FormatPct formats a percentage metric as "+X.XX%" or "-X.XX%".
func FormatPct(m analytics.Metric) string {
	if !m.Valid || m.IsInf() {
		return m.Format(2)
	}
	return fmt.Sprintf("%+.2f%%", m.Value)
}
