// Package periodogram provides a coarse FFT period search over a radial
// velocity time series.
//
// The series is binned onto a uniform time grid, tapered, and transformed;
// the strongest peak inside the search band yields a period, amplitude,
// and phase good enough to seed the orbit fitter's prior ephemeris. It is
// a coarse tool: unevenly sampled series lose power to the binning, so the
// output is a starting point, never a measurement.
package periodogram

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-rv/orbit"
)

// Errors returned by the search.
var (
	ErrShortSeries = errors.New("periodogram: need at least four points")
	ErrNoSpan      = errors.New("periodogram: series spans zero time")
	ErrNoPeak      = errors.New("periodogram: no peak inside the period band")
)

// Config controls the search. Zero values select defaults.
type Config struct {
	MinPeriod  float64 // shortest period searched, default 0.1
	MaxPeriod  float64 // longest period searched, default 10
	Oversample int     // grid refinement beyond Nyquist need, default 4
	MaxBins    int     // grid size cap, default 1 << 18
}

func (c Config) withDefaults() Config {
	if c.MinPeriod <= 0 {
		c.MinPeriod = 0.1
	}
	if c.MaxPeriod <= 0 {
		c.MaxPeriod = 10
	}
	if c.Oversample <= 0 {
		c.Oversample = 4
	}
	if c.MaxBins <= 0 {
		c.MaxBins = 1 << 18
	}
	return c
}

// Estimate is the peak of the periodogram.
type Estimate struct {
	Period    float64 // peak period, time units of the series
	Power     float64 // squared spectral magnitude at the peak
	Amplitude float64 // coarse velocity semi-amplitude
	Phase     float64 // spectral phase at the peak, radians
	Mean      float64 // weighted mean velocity of the series

	tMin float64
}

// CoarsePrior converts the estimate into a circular-orbit prior: period
// and semi-amplitude from the peak, systemic velocity from the weighted
// mean, and T0 placed from the peak phase within one period of the first
// observation.
func (e *Estimate) CoarsePrior() orbit.Params {
	omega := 2 * math.Pi / e.Period

	// For v(t) = K sin(omega (t - T0)) the bin phase is
	// -omega T0 - pi/2 (mod 2 pi).
	t0 := -(e.Phase + math.Pi/2) / omega
	t0 = math.Mod(t0, e.Period)
	if t0 < 0 {
		t0 += e.Period
	}

	return orbit.Params{
		T0:    e.tMin + t0,
		P:     e.Period,
		Gamma: e.Mean,
		K:     e.Amplitude,
	}
}

// Search runs the binned-FFT period search over the series.
func Search(s orbit.Series, cfg Config) (*Estimate, error) {
	cfg = cfg.withDefaults()
	if cfg.MinPeriod >= cfg.MaxPeriod {
		return nil, fmt.Errorf("periodogram: period band [%g, %g] is empty", cfg.MinPeriod, cfg.MaxPeriod)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(s) < 4 {
		return nil, ErrShortSeries
	}

	tMin := s[0].Time
	span := s[len(s)-1].Time - tMin
	if span <= 0 {
		return nil, ErrNoSpan
	}

	// Grid fine enough to resolve MinPeriod, padded for interpolation.
	bins := nextPowerOf2(cfg.Oversample * int(math.Ceil(2*span/cfg.MinPeriod)))
	if bins > cfg.MaxBins {
		bins = cfg.MaxBins
	}
	if bins < 8 {
		bins = 8
	}
	dt := span / float64(bins-1)

	// Weighted mean removal keeps the zero-frequency bin from dominating.
	var wSum, vSum float64
	for _, pt := range s {
		w := 1 / (pt.Sigma * pt.Sigma)
		wSum += w
		vSum += w * pt.Velocity
	}
	mean := vSum / wSum

	binned := make([]float64, bins)
	counts := make([]float64, bins)
	for _, pt := range s {
		bin := int(math.Round((pt.Time - tMin) / dt))
		if bin >= bins {
			bin = bins - 1
		}
		binned[bin] += pt.Velocity - mean
		counts[bin]++
	}
	for i, c := range counts {
		if c > 0 {
			binned[i] /= c
		}
	}

	// Hann taper against leakage from the hard series edges.
	taper := make([]float64, bins)
	var taperGain float64
	for i := range taper {
		taper[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(bins-1)))
	}
	for i, c := range counts {
		if c > 0 {
			taperGain += taper[i]
		}
	}
	if taperGain == 0 {
		taperGain = 1
	}
	vecmath.MulBlockInPlace(binned, taper)

	plan, err := algofft.NewPlan64(bins)
	if err != nil {
		return nil, fmt.Errorf("periodogram: fft plan: %w", err)
	}

	in := make([]complex128, bins)
	for i, v := range binned {
		in[i] = complex(v, 0)
	}
	out := make([]complex128, bins)
	if err := plan.Forward(out, in); err != nil {
		return nil, fmt.Errorf("periodogram: fft: %w", err)
	}

	half := bins/2 + 1
	re := make([]float64, half)
	im := make([]float64, half)
	for i := 0; i < half; i++ {
		re[i] = real(out[i])
		im[i] = imag(out[i])
	}
	power := make([]float64, half)
	vecmath.Power(power, re, im)

	// Peak search restricted to the period band; bin k has frequency
	// k / (bins * dt).
	binHz := 1 / (float64(bins) * dt)
	peak := -1
	for k := 1; k < half; k++ {
		period := 1 / (float64(k) * binHz)
		if period < cfg.MinPeriod || period > cfg.MaxPeriod {
			continue
		}
		if peak < 0 || power[k] > power[peak] {
			peak = k
		}
	}
	if peak < 0 {
		return nil, ErrNoPeak
	}

	mag := math.Sqrt(power[peak])
	return &Estimate{
		Period: 1 / (float64(peak) * binHz),
		Power:  power[peak],
		// A pure sine contributes mag = K/2 * sum(taper at filled bins).
		Amplitude: 2 * mag / taperGain,
		Phase:     math.Atan2(im[peak], re[peak]),
		Mean:      mean,
		tMin:      tMin,
	}, nil
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
