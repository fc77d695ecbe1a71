package posterior

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

func sortFloats(xs []float64) {
	sort.Float64s(xs)
}

// BFMI returns the Bayesian fraction of missing information of one chain's
// energy trace: the variance of energy transitions over the marginal
// energy variance. Values well below ~0.3 indicate the momentum refresh
// cannot explore the energy distribution.
func BFMI(energies []float64) float64 {
	if len(energies) < 2 {
		return math.NaN()
	}

	var num float64
	for i := 1; i < len(energies); i++ {
		d := energies[i] - energies[i-1]
		num += d * d
	}
	num /= float64(len(energies) - 1)

	den := stat.Variance(energies, nil)
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Histogram is a fixed-width bin count over a closed range.
type Histogram struct {
	Edges  []float64 // len(Counts)+1 ascending bin edges
	Counts []int
}

// EnergyHistograms returns histograms of the centered marginal energy and
// of the energy transitions, over shared bin edges so the two shapes can
// be compared directly. A transition distribution much narrower than the
// marginal one is the qualitative signature of low BFMI.
func EnergyHistograms(energies []float64, bins int) (marginal, transition Histogram) {
	if len(energies) < 2 || bins <= 0 {
		return Histogram{}, Histogram{}
	}

	mean := stat.Mean(energies, nil)
	centered := make([]float64, len(energies))
	for i, e := range energies {
		centered[i] = e - mean
	}

	deltas := make([]float64, len(energies)-1)
	for i := 1; i < len(energies); i++ {
		deltas[i-1] = energies[i] - energies[i-1]
	}

	lo, hi := centered[0], centered[0]
	for _, v := range centered {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for _, v := range deltas {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		hi = lo + 1
	}

	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}

	return histogram(centered, edges), histogram(deltas, edges)
}

func histogram(values []float64, edges []float64) Histogram {
	h := Histogram{
		Edges:  append([]float64(nil), edges...),
		Counts: make([]int, len(edges)-1),
	}
	lo := edges[0]
	width := (edges[len(edges)-1] - lo) / float64(len(h.Counts))
	for _, v := range values {
		bin := int((v - lo) / width)
		if bin < 0 {
			bin = 0
		}
		if bin >= len(h.Counts) {
			bin = len(h.Counts) - 1
		}
		h.Counts[bin]++
	}
	return h
}
