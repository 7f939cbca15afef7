// Package gather fills the price store: daily bars from the Alpaca market
// data API and CSV imports of bars and index compositions.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange is a half-open range of days [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no day.
func (r DateRange) Empty() bool { return !r.Start.Before(r.End) }

// batches splits symbols into consecutive slices of at most size entries.
func batches(symbols []string, size int) [][]string {
	size = max(size, 1)
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		out = append(out, symbols[i:min(i+size, len(symbols))])
	}
	return out
}
