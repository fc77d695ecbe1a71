package line

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-rv/core"
	"github.com/cwbudde/algo-rv/internal/autodiff"
)

// Errors returned by model construction and evaluation.
var (
	ErrNoComponents = errors.New("line: component table is empty")
	ErrNoPixels     = errors.New("line: no pixels selected")
)

// Component describes one Gaussian in the blended complex.
type Component struct {
	Name           string
	RestWavelength float64 // Angstrom
	FWHM           float64 // velocity full width at half maximum, m/s
	DopplerLocked  bool    // center tied to the shared velocity parameter
}

// BowenHeII returns the default component table: the broad He II 4686 line
// with a free center plus five Doppler-locked narrow components from the
// Bowen fluorescence blend.
func BowenHeII() []Component {
	return []Component{
		{Name: "HeII 4686", RestWavelength: 4685.71, FWHM: 1.4e6, DopplerLocked: false},
		{Name: "NIII 4634", RestWavelength: 4634.13, FWHM: 4.0e5, DopplerLocked: true},
		{Name: "NIII 4640", RestWavelength: 4640.64, FWHM: 4.0e5, DopplerLocked: true},
		{Name: "CIII 4647", RestWavelength: 4647.42, FWHM: 4.0e5, DopplerLocked: true},
		{Name: "CIII 4650", RestWavelength: 4650.25, FWHM: 4.0e5, DopplerLocked: true},
		{Name: "OII 4661", RestWavelength: 4661.63, FWHM: 4.0e5, DopplerLocked: true},
	}
}

// Model evaluates a sum of Gaussian components sharing one velocity.
//
// Parameter vector layout: index 0 is the velocity (m/s); then, per
// component in table order, an amplitude, with a free-center component also
// consuming a center parameter directly after its amplitude.
type Model struct {
	components []Component
	sigmas     []float64 // precomputed per component, wavelength units
	numParams  int
}

// New builds a Model from a component table.
func New(components []Component) (*Model, error) {
	if len(components) == 0 {
		return nil, ErrNoComponents
	}

	sigmas := make([]float64, len(components))
	numParams := 1 // shared velocity
	for i, c := range components {
		if c.RestWavelength <= 0 {
			return nil, fmt.Errorf("line: component %q rest wavelength must be > 0: %g", c.Name, c.RestWavelength)
		}
		if c.FWHM <= 0 {
			return nil, fmt.Errorf("line: component %q FWHM must be > 0: %g", c.Name, c.FWHM)
		}
		sigmas[i] = core.GaussianSigma(c.FWHM, c.RestWavelength)
		numParams++
		if !c.DopplerLocked {
			numParams++
		}
	}

	return &Model{
		components: append([]Component(nil), components...),
		sigmas:     append([]float64(nil), sigmas...),
		numParams:  numParams,
	}, nil
}

// NumParams returns the length of the parameter vector.
func (m *Model) NumParams() int { return m.numParams }

// Components returns a copy of the component table.
func (m *Model) Components() []Component {
	return append([]Component(nil), m.components...)
}

// ParamNames returns human-readable names for each parameter slot.
func (m *Model) ParamNames() []string {
	names := make([]string, 0, m.numParams)
	names = append(names, "velocity")
	for _, c := range m.components {
		names = append(names, c.Name+" amplitude")
		if !c.DopplerLocked {
			names = append(names, c.Name+" center")
		}
	}
	return names
}

// Bounds returns the solver box for the parameter vector: velocity bounded
// above by zero, all amplitudes non-negative, free centers unbounded.
func (m *Model) Bounds() (lower, upper []float64) {
	lower = make([]float64, m.numParams)
	upper = make([]float64, m.numParams)

	lower[0] = negInf
	upper[0] = 0

	i := 1
	for _, c := range m.components {
		lower[i], upper[i] = 0, posInf // amplitude
		i++
		if !c.DopplerLocked {
			lower[i], upper[i] = negInf, posInf // center
			i++
		}
	}
	return lower, upper
}

// Eval writes the model flux at each wavelength into dst.
func (m *Model) Eval(wavelength, params, dst []float64) error {
	if len(params) != m.numParams {
		return fmt.Errorf("line: parameter vector length %d, want %d", len(params), m.numParams)
	}
	if len(dst) != len(wavelength) {
		return fmt.Errorf("line: dst length %d, want %d", len(dst), len(wavelength))
	}

	v := params[0]
	for p := range wavelength {
		x := wavelength[p]
		var flux float64
		i := 1
		for k, c := range m.components {
			amp := params[i]
			i++
			center := core.DopplerShift(c.RestWavelength, v)
			if !c.DopplerLocked {
				center = params[i]
				i++
			}
			d := (x - center) / m.sigmas[k]
			flux += amp * gaussExp(d)
		}
		dst[p] = flux
	}
	return nil
}

// ResidualJacobian writes the weighted residuals (flux - model) / fluxErr
// and their Jacobian with respect to the parameter vector, built with
// forward-mode automatic differentiation.
func (m *Model) ResidualJacobian(wavelength, flux, fluxErr, params []float64, r []float64, jac *mat.Dense) error {
	if len(wavelength) == 0 {
		return ErrNoPixels
	}
	if len(flux) != len(wavelength) || len(fluxErr) != len(wavelength) {
		return fmt.Errorf("line: array length mismatch: wavelength %d, flux %d, fluxErr %d",
			len(wavelength), len(flux), len(fluxErr))
	}
	if len(params) != m.numParams {
		return fmt.Errorf("line: parameter vector length %d, want %d", len(params), m.numParams)
	}

	n := m.numParams
	v := autodiff.Var(params[0], 0, n)

	for p := range wavelength {
		x := wavelength[p]
		model := autodiff.Const(0, n)

		i := 1
		for k, c := range m.components {
			amp := autodiff.Var(params[i], i, n)
			i++

			var center autodiff.Dual
			if c.DopplerLocked {
				// center = rest * (1 + v/c)
				center = v.Scale(c.RestWavelength / core.SpeedOfLight).AddConst(c.RestWavelength)
			} else {
				center = autodiff.Var(params[i], i, n)
				i++
			}

			d := center.Neg().AddConst(x).Scale(1 / m.sigmas[k])
			model = model.Add(amp.Mul(d.Square().Scale(-0.5).Exp()))
		}

		// residual = (flux - model) / fluxErr
		res := model.Neg().AddConst(flux[p]).Scale(1 / fluxErr[p])
		r[p] = res.Value
		for q := 0; q < n; q++ {
			jac.Set(p, q, res.Grad[q])
		}
	}
	return nil
}
