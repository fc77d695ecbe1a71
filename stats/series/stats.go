// Package series computes summary statistics over radial-velocity time
// series and their residuals against an orbit model, as a fit-quality
// diagnostic.
package series

import (
	"math"

	"github.com/cwbudde/algo-rv/orbit"
)

// Stats holds single-pass summary statistics of a residual sequence.
type Stats struct {
	Length   int
	Mean     float64
	RMS      float64
	Max      float64
	MaxPos   int
	Min      float64
	MinPos   int
	Range    float64 // max - min
	Variance float64
	Skewness float64
	Kurtosis float64 // excess kurtosis
}

// Calculate computes all statistics in a single pass using Welford's
// online algorithm for numerical stability on higher-order moments.
func Calculate(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}

	// Welford accumulators.
	var (
		mean float64
		m2   float64
		m3   float64
		m4   float64
	)

	var (
		sumSq  float64
		maxVal = values[0]
		maxPos int
		minVal = values[0]
		minPos int
	)

	for i, x := range values {
		ni := float64(i + 1) // 1-based count after this sample
		delta := x - mean
		deltaN := delta / ni
		deltaN2 := deltaN * deltaN
		term1 := delta * deltaN * float64(i) // delta * delta_n * (n-1)

		// M4 must be updated before M3, and M3 before M2.
		m4 += term1*deltaN2*(ni*ni-3*ni+3) + 6*deltaN2*m2 - 4*deltaN*m3
		m3 += term1*deltaN*(float64(i)-1) - 3*deltaN*m2
		m2 += term1
		mean += deltaN

		sumSq += x * x

		if x > maxVal {
			maxVal = x
			maxPos = i
		}

		if x < minVal {
			minVal = x
			minPos = i
		}
	}

	nf := float64(n)
	variance := m2 / nf

	var skewness, kurtosis float64
	if variance > 0 {
		skewness = (m3 / nf) / (variance * math.Sqrt(variance))
		kurtosis = (m4/nf)/(variance*variance) - 3
	}

	return Stats{
		Length:   n,
		Mean:     mean,
		RMS:      math.Sqrt(sumSq / nf),
		Max:      maxVal,
		MaxPos:   maxPos,
		Min:      minVal,
		MinPos:   minPos,
		Range:    maxVal - minVal,
		Variance: variance,
		Skewness: skewness,
		Kurtosis: kurtosis,
	}
}

// Residuals returns the sigma-normalized residuals of the series against
// the orbit model, one per point.
func Residuals(s orbit.Series, p orbit.Params) ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, len(s))
	for i, pt := range s {
		out[i] = (pt.Velocity - p.Velocity(pt.Time)) / pt.Sigma
	}
	return out, nil
}

// ResidualStats computes summary statistics of the sigma-normalized
// residuals. A well-calibrated fit has RMS near 1 and moments near those
// of a standard normal.
func ResidualStats(s orbit.Series, p orbit.Params) (Stats, error) {
	r, err := Residuals(s, p)
	if err != nil {
		return Stats{}, err
	}
	return Calculate(r), nil
}
