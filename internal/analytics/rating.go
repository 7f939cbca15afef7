package analytics

// Ratings are qualitative reads of a report's headline figures.
type Ratings struct {
	FeeToGain string
	Sharpe    string
	FeeRate   string
	Cadence   string
}

// RateFeeToGain grades the share of gross gains absorbed by fees. A gross
// loss is graded "negative": fees then add to the loss.
func RateFeeToGain(feeToGainPct, grossGain float64) string {
	switch {
	case grossGain < 0:
		return "negative"
	case feeToGainPct < 5:
		return "very good"
	case feeToGainPct < 10:
		return "acceptable"
	case feeToGainPct < 15:
		return "high"
	default:
		return "very high"
	}
}

// RateSharpe grades the Sharpe-like ratio.
func RateSharpe(m Metric) string {
	if !m.Valid {
		return "n/a"
	}
	switch v := m.Value; {
	case v < 0:
		return "poor"
	case v < 1:
		return "insufficient"
	case v < 2:
		return "good"
	case v < 3:
		return "very good"
	default:
		return "excellent"
	}
}

// RateFeeRate grades total fees as a percentage of net invested capital.
func RateFeeRate(m Metric) string {
	if !m.Valid {
		return "n/a"
	}
	switch v := m.Value; {
	case v < 0.5:
		return "excellent"
	case v < 1:
		return "very good"
	case v < 2:
		return "acceptable"
	case v < 3:
		return "high"
	default:
		return "very high"
	}
}

// RateCadence grades the regularity of acquisition gaps from their standard
// deviation in days.
func RateCadence(stddev Metric) string {
	if !stddev.Valid {
		return "n/a"
	}
	switch v := stddev.Value; {
	case v < 5:
		return "very regular"
	case v < 10:
		return "regular"
	case v < 20:
		return "fairly regular"
	default:
		return "irregular"
	}
}
