package testutil

import (
	"math/rand"

	"github.com/cwbudde/algo-rv/line"
	"github.com/cwbudde/algo-rv/orbit"
	"github.com/cwbudde/algo-rv/spectrum"
)

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// SynthSpectrum builds an observation whose flux is the line model at the
// given parameters on top of a continuum, with deterministic Gaussian noise
// of the given sigma. A zero sigma yields exact model flux.
func SynthSpectrum(m *line.Model, params, grid []float64, continuum func(x float64) float64,
	sigma float64, seed int64, time, baryVel float64) *spectrum.Observation {

	flux := make([]float64, len(grid))
	if err := m.Eval(grid, params, flux); err != nil {
		panic(err)
	}

	rng := rand.New(rand.NewSource(seed))
	fluxErr := make([]float64, len(grid))
	for i, x := range grid {
		if continuum != nil {
			flux[i] += continuum(x)
		}
		if sigma > 0 {
			flux[i] += rng.NormFloat64() * sigma
			fluxErr[i] = sigma
		} else {
			// A nominal uncertainty keeps weights finite on noise-free data.
			fluxErr[i] = 1e-3
		}
	}

	return &spectrum.Observation{
		Wavelength: grid,
		Flux:       flux,
		FluxErr:    fluxErr,
		Time:       time,
		BaryVel:    baryVel,
	}
}

// SynthSeries builds a velocity series sampled at the given times from a
// circular orbit, with deterministic Gaussian noise of the given sigma per
// point.
func SynthSeries(p orbit.Params, times []float64, sigma float64, seed int64) orbit.Series {
	rng := rand.New(rand.NewSource(seed))
	s := make(orbit.Series, len(times))
	for i, t := range times {
		v := p.Velocity(t)
		if sigma > 0 {
			v += rng.NormFloat64() * sigma
		}
		reported := sigma
		if reported <= 0 {
			reported = 1
		}
		s[i] = orbit.Point{Time: t, Velocity: v, Sigma: reported}
	}
	return s
}

// PhaseSpreadTimes returns n observation times spread over span periods of
// p, jittered deterministically so phases do not alias.
func PhaseSpreadTimes(p orbit.Params, n int, span float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	times := make([]float64, n)
	for i := range times {
		frac := (float64(i) + 0.35*rng.Float64()) / float64(n)
		times[i] = p.T0 + frac*span*p.P
	}
	return times
}

// GaussianNoise returns deterministic normal draws with the given sigma.
func GaussianNoise(sigma float64, n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * sigma
	}
	return out
}
