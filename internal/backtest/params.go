package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = errors.New("invalid backtest parameters")

// Params are the simulation inputs. They are fixed for the lifetime of a
// Backtester.
type Params struct {
	Start         time.Time
	End           time.Time
	HoldingMonths int

	MonthlyBudget  float64
	AcquisitionFee float64
	DisposalFee    float64

	RiskFreeRatePct float64

	// ExtrapolatePastEnd lets the resolver reuse the last known price for
	// dates after the end of a series.
	ExtrapolatePastEnd bool

	// Workers bounds per-instrument concurrency; values below 1 mean 1.
	Workers int
}

// WithHolding returns a copy of p with another holding period.
func (p Params) WithHolding(months int) Params {
	p.HoldingMonths = months
	return p
}

// Validate rejects parameters the simulation cannot run with. All problems
// are reported together.
func (p Params) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidParams}, args...)...))
	}

	if p.Start.IsZero() || p.End.IsZero() {
		add("start and end dates are required")
	} else if p.End.Before(p.Start) {
		add("end %s is before start %s", p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	if p.HoldingMonths <= 0 {
		add("holding period must be positive, got %d months", p.HoldingMonths)
	}
	if p.MonthlyBudget <= 0 {
		add("monthly budget must be positive, got %g", p.MonthlyBudget)
	}
	if p.AcquisitionFee < 0 {
		add("acquisition fee must not be negative, got %g", p.AcquisitionFee)
	}
	if p.DisposalFee < 0 {
		add("disposal fee must not be negative, got %g", p.DisposalFee)
	}
	if p.MonthlyBudget > 0 && p.AcquisitionFee >= p.MonthlyBudget {
		add("acquisition fee %g leaves nothing to invest from budget %g", p.AcquisitionFee, p.MonthlyBudget)
	}
	return errors.Join(errs...)
}
