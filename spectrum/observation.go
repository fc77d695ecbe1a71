package spectrum

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-rv/core"
)

// Errors returned by observation validation and window selection.
var (
	ErrEmptyObservation = errors.New("spectrum: observation has no pixels")
	ErrEmptyWindow      = errors.New("spectrum: window selects no pixels")
	ErrNonFinite        = errors.New("spectrum: observation contains non-finite values")
)

// Observation is one calibrated spectrum: per-pixel wavelength, flux, and
// flux uncertainty, the observation time on a uniform standard, and the
// barycentric velocity correction to add back to a fitted velocity.
// Observations are treated as immutable once ingested.
type Observation struct {
	Wavelength []float64 // Angstrom, ascending
	Flux       []float64
	FluxErr    []float64
	Time       float64 // e.g. barycentric Julian date
	BaryVel    float64 // m/s
}

// Validate checks structural invariants: equal non-zero array lengths,
// finite values, positive uncertainties.
func (o *Observation) Validate() error {
	n := len(o.Wavelength)
	if n == 0 {
		return ErrEmptyObservation
	}
	if len(o.Flux) != n || len(o.FluxErr) != n {
		return fmt.Errorf("spectrum: array length mismatch: wavelength %d, flux %d, fluxErr %d",
			n, len(o.Flux), len(o.FluxErr))
	}
	if !core.AllFinite(o.Wavelength) || !core.AllFinite(o.Flux) || !core.AllFinite(o.FluxErr) {
		return ErrNonFinite
	}
	for i, e := range o.FluxErr {
		if e <= 0 {
			return fmt.Errorf("spectrum: flux uncertainty must be > 0 at pixel %d: %g", i, e)
		}
	}
	return nil
}

// Window is an inclusive wavelength range.
type Window struct {
	Lo, Hi float64
}

// Contains reports whether x lies inside the window.
func (w Window) Contains(x float64) bool {
	return x >= w.Lo && x <= w.Hi
}

// Mask returns the indices of wavelength samples that fall inside any of
// the given windows, in pixel order.
func Mask(wavelength []float64, windows ...Window) []int {
	var idx []int
	for i, x := range wavelength {
		for _, w := range windows {
			if w.Contains(x) {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

// Gather copies the values at the given indices into a new slice.
func Gather(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
