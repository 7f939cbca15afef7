package gather

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bourse/internal/domain"
	"bourse/internal/store"
	"bourse/internal/util"
)

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// ---------------------------------------------------------------------------
// Daily bars
// ---------------------------------------------------------------------------

// ImportBars reads daily bars for symbol from a CSV file with a header row
// naming at least date, open and close (high, low and volume are optional;
// matching is case-insensitive, so Yahoo exports work as is). comma is the
// field separator; with ';' numbers may use a decimal comma. Rows already in
// the store are left untouched. It returns the number of rows read.
func ImportBars(ctx context.Context, r io.Reader, symbol string, comma rune, sink store.BarStore) (int, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, errors.New("import bars: empty symbol")
	}

	rows, cols, err := readTable(r, comma)
	if err != nil {
		return 0, fmt.Errorf("import bars %s: %w", symbol, err)
	}
	for _, c := range []string{"date", "open", "close"} {
		if _, ok := cols[c]; !ok {
			return 0, fmt.Errorf("import bars %s: %w %q", symbol, ErrMissingColumn, c)
		}
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		day, err := parseCSVDate(field(row, cols, "date"))
		if err != nil {
			return 0, fmt.Errorf("import bars %s line %d: %w", symbol, line, err)
		}
		b := domain.Bar{Symbol: symbol, Date: day}
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
		} {
			v := field(row, cols, f.col)
			if v == "" {
				continue
			}
			if *f.dst, err = parseNumber(v); err != nil {
				return 0, fmt.Errorf("import bars %s line %d %s: %w", symbol, line, f.col, err)
			}
		}
		if v := field(row, cols, "volume"); v != "" {
			vol, err := parseNumber(v)
			if err != nil {
				return 0, fmt.Errorf("import bars %s line %d volume: %w", symbol, line, err)
			}
			b.Volume = int64(vol)
		}
		bars = append(bars, b)
	}

	if len(bars) == 0 {
		return 0, nil
	}
	if err := sink.WriteBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("import bars %s: %w", symbol, err)
	}
	return len(bars), nil
}

// ---------------------------------------------------------------------------
// Index composition
// ---------------------------------------------------------------------------

// tickerFixes maps mnemonics whose Yahoo ticker is not simply MNEMO.PA.
var tickerFixes = map[string]string{
	"TOUP": "ALTOU.PA",
	"SOLB": "SOLB.BR",
	"APAM": "APAM.AS",
	"MT":   "MT.AS",
	"CGM":  "ALCGM.PA",
}

// mnemonicFixes renames mnemonics that changed since publication.
var mnemonicFixes = map[string]string{
	"TOUP": "ALTOU",
}

// TickerFor returns the market data ticker of a Euronext Paris mnemonic.
func TickerFor(mnemonic string) string {
	m := strings.ToUpper(strings.TrimSpace(mnemonic))
	if t, ok := tickerFixes[m]; ok {
		return t
	}
	return m + ".PA"
}

// ImportComposition reads an index composition published on updatedOn. The
// header must name the company, mnemonic (MNEMO), sector and weight columns
// as in Euronext's composition sheets; an optional ticker column overrides
// TickerFor. Weights like "12,34%" are accepted.
func ImportComposition(ctx context.Context, r io.Reader, index string, updatedOn time.Time, comma rune, sink store.ConstituentStore) (int, error) {
	index = strings.TrimSpace(index)
	if index == "" {
		return 0, errors.New("import composition: empty index name")
	}

	rows, cols, err := readTable(r, comma)
	if err != nil {
		return 0, fmt.Errorf("import composition %s: %w", index, err)
	}
	aliases := map[string][]string{
		"company":  {"company"},
		"mnemonic": {"mnemo", "mnemonic"},
		"sector":   {"sector (icb)", "sector", "sector_icb"},
		"weight":   {"weight (%)", "weight", "weight_percent"},
	}
	for canon, names := range aliases {
		for _, n := range names {
			if idx, ok := cols[n]; ok {
				cols[canon] = idx
				break
			}
		}
		if _, ok := cols[canon]; !ok {
			return 0, fmt.Errorf("import composition %s: %w %q", index, ErrMissingColumn, canon)
		}
	}

	day := util.DateOnly(updatedOn)
	out := make([]domain.Constituent, 0, len(rows))
	for i, row := range rows {
		mnemo := strings.ToUpper(field(row, cols, "mnemonic"))
		if mnemo == "" {
			continue
		}
		weight, err := parseNumber(strings.TrimSuffix(field(row, cols, "weight"), "%"))
		if err != nil {
			return 0, fmt.Errorf("import composition %s line %d weight: %w", index, i+2, err)
		}
		ticker := strings.ToUpper(field(row, cols, "ticker"))
		if ticker == "" {
			ticker = TickerFor(mnemo)
		}
		if fixed, ok := mnemonicFixes[mnemo]; ok {
			mnemo = fixed
		}
		out = append(out, domain.Constituent{
			IndexName: index,
			UpdatedOn: day,
			Company:   field(row, cols, "company"),
			Mnemonic:  mnemo,
			Sector:    field(row, cols, "sector"),
			WeightPct: weight,
			Ticker:    ticker,
		})
	}

	if len(out) == 0 {
		return 0, nil
	}
	if err := sink.WriteConstituents(ctx, out); err != nil {
		return 0, fmt.Errorf("import composition %s: %w", index, err)
	}
	return len(out), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// readTable parses the whole file and indexes header names in lower case.
func readTable(r io.Reader, comma rune) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("empty file")
	}
	if err != nil {
		return nil, nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return rows, cols, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseCSVDate accepts YYYY-MM-DD optionally followed by a time part.
func parseCSVDate(s string) (time.Time, error) {
	if len(s) >= 10 {
		if t, err := time.Parse(time.DateOnly, s[:10]); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseNumber accepts both "1234.5" and "1 234,5".
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}
