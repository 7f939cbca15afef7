package analytics

import (
	"math"
	"sort"
)

// Summary holds the descriptive statistics of a sample.
type Summary struct {
	N      int
	Mean   Metric
	Median Metric
	StdDev Metric // sample (n-1); undefined below two observations
	Min    Metric
	Max    Metric
}

// Describe computes the summary of xs. xs is not modified.
func Describe(xs []float64) Summary {
	s := Summary{N: len(xs)}
	if len(xs) == 0 {
		return s
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	s.Min = Defined(sorted[0])
	s.Max = Defined(sorted[len(sorted)-1])
	s.Mean = Defined(mean(sorted))
	if n := len(sorted); n%2 == 1 {
		s.Median = Defined(sorted[n/2])
	} else {
		s.Median = Defined((sorted[n/2-1] + sorted[n/2]) / 2)
	}
	s.StdDev = SampleStdDev(xs)
	return s
}

// SampleStdDev is the n-1 standard deviation, undefined for fewer than two
// observations.
func SampleStdDev(xs []float64) Metric {
	if len(xs) < 2 {
		return Undefined
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return Defined(math.Sqrt(ss / float64(len(xs)-1)))
}

// WeightedMean returns sum(v*w)/sum(w), undefined when the weights sum to 0.
func WeightedMean(values, weights []float64) Metric {
	var num, den float64
	for i := range values {
		num += values[i] * weights[i]
		den += weights[i]
	}
	return Ratio(num, den)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
