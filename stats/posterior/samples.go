package posterior

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Errors returned by sample-set validation.
var (
	ErrNoChains     = errors.New("posterior: sample set has no chains")
	ErrEmptyChain   = errors.New("posterior: chain has no draws")
	ErrLengthAlign  = errors.New("posterior: parameter arrays are not index-aligned")
	ErrTooFewDraws  = errors.New("posterior: need at least two draws")
	ErrLengthMatch  = errors.New("posterior: sample arrays differ in length")
	ErrZeroVariance = errors.New("posterior: samples have zero variance")
)

// Chain holds one chain's draws. Arrays are index-aligned: entry i across
// parameters is one joint draw.
type Chain struct {
	T0          []float64
	P           []float64
	Gamma       []float64
	K           []float64
	Efac        []float64
	Energies    []float64
	Divergences int
}

// Validate checks the index-alignment invariant.
func (c *Chain) Validate() error {
	n := len(c.T0)
	if n == 0 {
		return ErrEmptyChain
	}
	for _, arr := range [][]float64{c.P, c.Gamma, c.K, c.Efac} {
		if len(arr) != n {
			return ErrLengthAlign
		}
	}
	return nil
}

// Len returns the number of draws in the chain.
func (c *Chain) Len() int { return len(c.T0) }

// Set is a posterior sample set grouped by independent chain.
type Set struct {
	Chains []Chain
}

// Validate checks every chain.
func (s *Set) Validate() error {
	if len(s.Chains) == 0 {
		return ErrNoChains
	}
	for i := range s.Chains {
		if err := s.Chains[i].Validate(); err != nil {
			return fmt.Errorf("posterior: chain %d: %w", i, err)
		}
	}
	return nil
}

// Merged concatenates all chains into one. Energies and divergence counts
// are carried along for convenience; cross-chain energy differences are
// not meaningful and the merged Energies slice is for summary only.
func (s *Set) Merged() Chain {
	var out Chain
	for _, c := range s.Chains {
		out.T0 = append(out.T0, c.T0...)
		out.P = append(out.P, c.P...)
		out.Gamma = append(out.Gamma, c.Gamma...)
		out.K = append(out.K, c.K...)
		out.Efac = append(out.Efac, c.Efac...)
		out.Energies = append(out.Energies, c.Energies...)
		out.Divergences += c.Divergences
	}
	return out
}

// Summary holds the posterior mean and standard deviation of one
// parameter.
type Summary struct {
	Mean float64
	Std  float64
}

// Summarize returns mean and standard deviation of the samples.
func Summarize(samples []float64) Summary {
	return Summary{
		Mean: stat.Mean(samples, nil),
		Std:  stat.StdDev(samples, nil),
	}
}

// Quantile returns the p-quantile of the samples without mutating the
// input.
func Quantile(samples []float64, p float64) float64 {
	sorted := append([]float64(nil), samples...)
	sortFloats(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
