package spectrum

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Continuum is a Chebyshev polynomial estimate of the smooth background
// flux, fitted over flanking continuum windows and evaluated anywhere in
// its domain.
type Continuum struct {
	domain Window
	coeffs []float64
}

// FitContinuum fits a Chebyshev polynomial of the given degree to the flux
// inside the continuum windows, weighting each pixel by its inverse flux
// uncertainty. The basis is evaluated on domain mapped to [-1, 1], which
// keeps the normal equations well conditioned at astronomical wavelengths.
func FitContinuum(obs *Observation, windows []Window, degree int, domain Window) (*Continuum, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if degree < 0 {
		return nil, fmt.Errorf("spectrum: continuum degree must be >= 0: %d", degree)
	}
	if domain.Hi <= domain.Lo {
		return nil, fmt.Errorf("spectrum: continuum domain [%g, %g] is empty", domain.Lo, domain.Hi)
	}

	idx := Mask(obs.Wavelength, windows...)
	if len(idx) == 0 {
		return nil, ErrEmptyWindow
	}
	if len(idx) <= degree {
		return nil, fmt.Errorf("spectrum: %d continuum pixels cannot constrain degree %d", len(idx), degree)
	}

	c := &Continuum{domain: domain, coeffs: make([]float64, degree+1)}

	// Weighted least squares: rows scaled by 1/fluxErr.
	a := mat.NewDense(len(idx), degree+1, nil)
	b := mat.NewVecDense(len(idx), nil)
	basis := make([]float64, degree+1)
	for row, j := range idx {
		w := 1 / obs.FluxErr[j]
		c.basisAt(obs.Wavelength[j], basis)
		for k, t := range basis {
			a.Set(row, k, w*t)
		}
		b.SetVec(row, w*obs.Flux[j])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("spectrum: continuum solve failed: %w", err)
	}
	for k := range c.coeffs {
		c.coeffs[k] = sol.AtVec(k)
	}
	return c, nil
}

// basisAt writes T_0..T_degree at wavelength x into dst.
func (c *Continuum) basisAt(x float64, dst []float64) {
	u := (2*x - c.domain.Lo - c.domain.Hi) / (c.domain.Hi - c.domain.Lo)
	dst[0] = 1
	if len(dst) > 1 {
		dst[1] = u
	}
	for k := 2; k < len(dst); k++ {
		dst[k] = 2*u*dst[k-1] - dst[k-2]
	}
}

// Eval returns the continuum estimate at wavelength x.
func (c *Continuum) Eval(x float64) float64 {
	basis := make([]float64, len(c.coeffs))
	c.basisAt(x, basis)
	var sum float64
	for k, t := range basis {
		sum += c.coeffs[k] * t
	}
	return sum
}

// Subtract returns flux with the continuum removed, evaluated per pixel.
func (c *Continuum) Subtract(wavelength, flux []float64) ([]float64, error) {
	if len(wavelength) != len(flux) {
		return nil, fmt.Errorf("spectrum: array length mismatch: wavelength %d, flux %d", len(wavelength), len(flux))
	}
	out := make([]float64, len(flux))
	basis := make([]float64, len(c.coeffs))
	for i, x := range wavelength {
		c.basisAt(x, basis)
		var sum float64
		for k, t := range basis {
			sum += c.coeffs[k] * t
		}
		out[i] = flux[i] - sum
	}
	return out, nil
}
