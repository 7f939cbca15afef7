package backtest

import (
	"context"
	"fmt"
	"strings"

	"bourse/internal/domain"
)

// UniverseSource lists candidate instruments.
type UniverseSource interface {
	ListConstituents(ctx context.Context, index string) ([]domain.Constituent, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// Universe picks the instruments to simulate: explicit symbols when given,
// otherwise the tickers of the latest composition of index, otherwise every
// symbol with stored bars. The second return names the source used.
func Universe(ctx context.Context, src UniverseSource, index string, symbols []string) ([]string, string, error) {
	if syms := normalizeSymbols(symbols); len(syms) > 0 {
		return syms, "symbols", nil
	}

	if index = strings.TrimSpace(index); index != "" {
		rows, err := src.ListConstituents(ctx, index)
		if err != nil {
			return nil, "", fmt.Errorf("composition %s: %w", index, err)
		}
		tickers := make([]string, 0, len(rows))
		for _, r := range rows {
			tickers = append(tickers, r.Ticker)
		}
		if syms := normalizeSymbols(tickers); len(syms) > 0 {
			return syms, "index " + index, nil
		}
	}

	all, err := src.ListSymbols(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("listing symbols: %w", err)
	}
	return normalizeSymbols(all), "store", nil
}
