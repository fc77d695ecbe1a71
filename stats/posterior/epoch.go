package posterior

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// EpochResult is the disambiguated reference epoch: T0 samples shifted by
// an integer cycle count chosen to decorrelate them from the period, plus
// the derived ascending-node epoch a quarter period earlier.
type EpochResult struct {
	Cycles        int       // chosen cycle offset n
	Correlation   float64   // |Pearson| between shifted T0 and P at n
	T0            []float64 // shifted T0 samples
	AscendingNode []float64 // shifted T0 - 0.25 * P, per draw

	AscendingNodeEpoch float64 // mean of AscendingNode
	Precision          float64 // sample standard deviation of AscendingNode
}

// DisambiguateEpoch scans integer cycle offsets n in [-maxCycles,
// maxCycles] in ascending order, shifting the T0 samples by n periods per
// draw, and selects the n whose shifted samples have the smallest absolute
// Pearson correlation with the period samples. Exact ties keep the first n
// in scan order, which makes the procedure reproducible bit for bit.
func DisambiguateEpoch(t0, p []float64, maxCycles int) (*EpochResult, error) {
	if len(t0) != len(p) {
		return nil, ErrLengthMatch
	}
	if len(t0) < 2 {
		return nil, ErrTooFewDraws
	}
	if stat.Variance(p, nil) == 0 || stat.Variance(t0, nil) == 0 {
		return nil, ErrZeroVariance
	}
	if maxCycles < 0 {
		maxCycles = -maxCycles
	}

	shifted := make([]float64, len(t0))
	best := math.Inf(1)
	bestN := 0

	for n := -maxCycles; n <= maxCycles; n++ {
		fn := float64(n)
		for i := range t0 {
			shifted[i] = t0[i] + fn*p[i]
		}
		c := math.Abs(stat.Correlation(shifted, p, nil))
		if math.IsNaN(c) {
			continue
		}
		if c < best {
			best = c
			bestN = n
		}
	}

	if math.IsInf(best, 1) {
		return nil, ErrZeroVariance
	}

	out := &EpochResult{
		Cycles:        bestN,
		Correlation:   best,
		T0:            make([]float64, len(t0)),
		AscendingNode: make([]float64, len(t0)),
	}
	fn := float64(bestN)
	for i := range t0 {
		out.T0[i] = t0[i] + fn*p[i]
		out.AscendingNode[i] = out.T0[i] - 0.25*p[i]
	}
	out.AscendingNodeEpoch = stat.Mean(out.AscendingNode, nil)
	out.Precision = stat.StdDev(out.AscendingNode, nil)
	return out, nil
}
