package line

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-rv/core"
)

func wavelengthGrid(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoComponents) {
		t.Errorf("empty table: got %v, want ErrNoComponents", err)
	}
	if _, err := New([]Component{{Name: "bad", RestWavelength: -1, FWHM: 1}}); err == nil {
		t.Error("negative rest wavelength: expected error")
	}
	if _, err := New([]Component{{Name: "bad", RestWavelength: 4686, FWHM: 0}}); err == nil {
		t.Error("zero FWHM: expected error")
	}
}

func TestModel_ParamLayout(t *testing.T) {
	m, err := New(BowenHeII())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// velocity + (amp, center) for the broad line + 5 narrow amplitudes.
	if got := m.NumParams(); got != 8 {
		t.Errorf("NumParams: got %d, want 8", got)
	}

	names := m.ParamNames()
	if names[0] != "velocity" {
		t.Errorf("names[0]: got %q", names[0])
	}
	if names[2] != "HeII 4686 center" {
		t.Errorf("names[2]: got %q", names[2])
	}
}

func TestModel_Bounds(t *testing.T) {
	m, _ := New(BowenHeII())
	lower, upper := m.Bounds()

	if !math.IsInf(lower[0], -1) || upper[0] != 0 {
		t.Errorf("velocity bounds: [%g, %g], want (-Inf, 0]", lower[0], upper[0])
	}
	if lower[1] != 0 || !math.IsInf(upper[1], 1) {
		t.Errorf("broad amplitude bounds: [%g, %g], want [0, Inf)", lower[1], upper[1])
	}
	if !math.IsInf(lower[2], -1) || !math.IsInf(upper[2], 1) {
		t.Errorf("broad center bounds: [%g, %g], want unbounded", lower[2], upper[2])
	}
	for i := 3; i < 8; i++ {
		if lower[i] != 0 || !math.IsInf(upper[i], 1) {
			t.Errorf("narrow amplitude %d bounds: [%g, %g], want [0, Inf)", i, lower[i], upper[i])
		}
	}
}

func TestModel_EvalSingleGaussian(t *testing.T) {
	m, err := New([]Component{{Name: "one", RestWavelength: 5000, FWHM: 3e5, DopplerLocked: true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sigma := core.GaussianSigma(3e5, 5000)
	grid := wavelengthGrid(4990, 5010, 201)
	params := []float64{0, 2.5} // zero velocity, amplitude 2.5

	dst := make([]float64, len(grid))
	if err := m.Eval(grid, params, dst); err != nil {
		t.Fatalf("Eval: %v", err)
	}

	for i, x := range grid {
		d := (x - 5000) / sigma
		want := 2.5 * math.Exp(-0.5*d*d)
		if math.Abs(dst[i]-want) > 1e-12 {
			t.Fatalf("pixel %d: got %g, want %g", i, dst[i], want)
		}
	}
}

func TestModel_DopplerLockedCenterShifts(t *testing.T) {
	m, _ := New([]Component{{Name: "one", RestWavelength: 5000, FWHM: 3e5, DopplerLocked: true}})
	grid := wavelengthGrid(4930, 5010, 401)

	const v = -3e6 // 1% of c, blueshift of 50 A
	params := []float64{v, 1}
	dst := make([]float64, len(grid))
	if err := m.Eval(grid, params, dst); err != nil {
		t.Fatalf("Eval: %v", err)
	}

	peak := 0
	for i := range dst {
		if dst[i] > dst[peak] {
			peak = i
		}
	}
	if math.Abs(grid[peak]-4950) > 0.5 {
		t.Errorf("peak at %g, want ~4950", grid[peak])
	}
}

func TestModel_ResidualJacobianMatchesNumeric(t *testing.T) {
	m, err := New(BowenHeII())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	grid := wavelengthGrid(4620, 4700, 120)
	params := []float64{-1.2e5, 3.0, 4686.2, 1.1, 0.9, 0.7, 0.8, 0.4}

	flux := make([]float64, len(grid))
	if err := m.Eval(grid, params, flux); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	// Perturb so residuals are nonzero.
	for i := range flux {
		flux[i] += 0.05 * math.Sin(float64(i))
	}
	fluxErr := make([]float64, len(grid))
	for i := range fluxErr {
		fluxErr[i] = 0.1
	}

	r := make([]float64, len(grid))
	jac := mat.NewDense(len(grid), m.NumParams(), nil)
	if err := m.ResidualJacobian(grid, flux, fluxErr, params, r, jac); err != nil {
		t.Fatalf("ResidualJacobian: %v", err)
	}

	// Central differences on the residual vector, parameter by parameter.
	steps := []float64{1, 1e-4, 1e-4, 1e-6, 1e-6, 1e-6, 1e-6, 1e-6}
	rPlus := make([]float64, len(grid))
	rMinus := make([]float64, len(grid))
	model := make([]float64, len(grid))
	evalResiduals := func(p []float64, dst []float64) {
		if err := m.Eval(grid, p, model); err != nil {
			t.Fatalf("Eval: %v", err)
		}
		for i := range dst {
			dst[i] = (flux[i] - model[i]) / fluxErr[i]
		}
	}

	for q := 0; q < m.NumParams(); q++ {
		h := steps[q]
		pp := append([]float64(nil), params...)
		pp[q] += h
		evalResiduals(pp, rPlus)
		pp[q] -= 2 * h
		evalResiduals(pp, rMinus)

		for i := range grid {
			num := (rPlus[i] - rMinus[i]) / (2 * h)
			got := jac.At(i, q)
			scale := math.Max(math.Abs(num), 1)
			if math.Abs(got-num)/scale > 1e-5 {
				t.Fatalf("jacobian[%d,%d]: got %g, numeric %g", i, q, got, num)
			}
		}
	}
}

func TestModel_ResidualJacobianErrors(t *testing.T) {
	m, _ := New(BowenHeII())
	jac := mat.NewDense(1, 8, nil)

	err := m.ResidualJacobian(nil, nil, nil, make([]float64, 8), nil, jac)
	if !errors.Is(err, ErrNoPixels) {
		t.Errorf("empty pixels: got %v, want ErrNoPixels", err)
	}

	err = m.ResidualJacobian([]float64{1, 2}, []float64{1}, []float64{1, 1}, make([]float64, 8), make([]float64, 2), jac)
	if err == nil {
		t.Error("length mismatch: expected error")
	}
}
