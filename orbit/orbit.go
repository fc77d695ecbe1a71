package orbit

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by parameter and series validation.
var (
	ErrNonFiniteParams = errors.New("orbit: parameters must be finite")
	ErrNonPositiveP    = errors.New("orbit: period must be > 0")
	ErrEmptySeries     = errors.New("orbit: velocity series is empty")
	ErrUnorderedSeries = errors.New("orbit: velocity series times must be non-decreasing")
)

// Params holds circular-orbit ephemeris parameters. Times share one unit
// (typically days), velocities another (typically m/s).
type Params struct {
	T0    float64 // reference epoch
	P     float64 // period
	Gamma float64 // systemic velocity
	K     float64 // velocity semi-amplitude
}

// Validate checks that all parameters are finite and the period positive.
func (p Params) Validate() error {
	for _, v := range []float64{p.T0, p.P, p.Gamma, p.K} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFiniteParams
		}
	}
	if p.P <= 0 {
		return ErrNonPositiveP
	}
	return nil
}

// Velocity returns the model radial velocity at time t.
func (p Params) Velocity(t float64) float64 {
	return p.K*math.Sin(2*math.Pi*(t-p.T0)/p.P) + p.Gamma
}

// Phase returns the orbital phase of t in [0, 1).
func (p Params) Phase(t float64) float64 {
	ph := math.Mod((t-p.T0)/p.P, 1)
	if ph < 0 {
		ph++
	}
	return ph
}

// Point is one entry of a radial-velocity time series. Velocities are
// barycentric-corrected; Sigma is the 1-sigma velocity uncertainty.
type Point struct {
	Time     float64
	Velocity float64
	Sigma    float64
}

// Series is a time-ordered radial-velocity series.
type Series []Point

// Validate checks that the series is non-empty, time-ordered, and carries
// positive uncertainties.
func (s Series) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	for i, pt := range s {
		if i > 0 && pt.Time < s[i-1].Time {
			return ErrUnorderedSeries
		}
		if pt.Sigma <= 0 {
			return fmt.Errorf("orbit: sigma must be > 0 at point %d: %g", i, pt.Sigma)
		}
		if math.IsNaN(pt.Velocity) || math.IsInf(pt.Velocity, 0) {
			return fmt.Errorf("orbit: non-finite velocity at point %d", i)
		}
	}
	return nil
}

// Times returns the time column of the series.
func (s Series) Times() []float64 {
	out := make([]float64, len(s))
	for i, pt := range s {
		out[i] = pt.Time
	}
	return out
}
