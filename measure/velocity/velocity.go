// Package velocity measures a radial velocity from one continuum-subtracted
// spectrum by fitting the blended emission-line complex.
//
// The pipeline per spectrum: select the fit window and two flanking
// continuum windows, remove a weighted Chebyshev continuum, run a
// bounds-constrained least-squares fit of the line model, recover the
// velocity variance from the truncated-SVD covariance of the Jacobian, and
// combine it in quadrature with a fixed systematic floor.
package velocity

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-rv/internal/lsq"
	"github.com/cwbudde/algo-rv/line"
	"github.com/cwbudde/algo-rv/orbit"
	"github.com/cwbudde/algo-rv/spectrum"
)

// ErrUndefinedUncertainty is returned when every direction of the
// covariance was truncated, leaving the velocity variance undetermined.
// The fitted velocity itself is still reported in the accompanying Result.
var ErrUndefinedUncertainty = errors.New("velocity: covariance fully truncated, uncertainty undefined")

// Config holds measurement parameters. Zero values select defaults.
type Config struct {
	Components       []line.Component  // line table, default line.BowenHeII()
	FitWindow        spectrum.Window   // default 4560-4760 A
	ContinuumWindows []spectrum.Window // default flanks of the fit window
	ContinuumDegree  int               // default 3
	SystematicFloor  float64           // quadrature floor on uncertainty, default 200 m/s
	BroadCenterInit  float64           // initial free-center wavelength, default 4686 A
	Prior            orbit.Params      // coarse ephemeris used to seed the velocity
	MaxIterations    int               // solver cap, default 200
}

func (c Config) withDefaults() Config {
	if c.Components == nil {
		c.Components = line.BowenHeII()
	}
	if c.FitWindow == (spectrum.Window{}) {
		c.FitWindow = spectrum.Window{Lo: 4560, Hi: 4760}
	}
	if c.ContinuumWindows == nil {
		c.ContinuumWindows = []spectrum.Window{
			{Lo: c.FitWindow.Lo, Hi: c.FitWindow.Lo + 22},
			{Lo: c.FitWindow.Hi - 22, Hi: c.FitWindow.Hi},
		}
	}
	if c.ContinuumDegree == 0 {
		c.ContinuumDegree = 3
	}
	if c.SystematicFloor == 0 {
		c.SystematicFloor = 200
	}
	if c.BroadCenterInit == 0 {
		c.BroadCenterInit = 4686.0
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 200
	}
	return c
}

// Result holds one per-spectrum measurement.
type Result struct {
	Velocity         float64 // fitted velocity plus barycentric correction, m/s
	Uncertainty      float64 // 1-sigma, floor-adjusted, m/s
	ReducedChiSquare float64
	Params           []float64     // full fitted parameter vector
	Covariance       *mat.SymDense // scaled parameter covariance
	Rank             int           // surviving covariance directions
	Converged        bool
}

// Point converts the result into a velocity-series point at time t.
func (r Result) Point(t float64) orbit.Point {
	return orbit.Point{Time: t, Velocity: r.Velocity, Sigma: r.Uncertainty}
}

// Calculator measures velocities with a fixed configuration.
type Calculator struct {
	cfg   Config
	model *line.Model
}

// NewCalculator builds a Calculator, normalizing the config and validating
// the line table and prior ephemeris.
func NewCalculator(cfg Config) (*Calculator, error) {
	cfg = cfg.withDefaults()

	if cfg.FitWindow.Hi <= cfg.FitWindow.Lo {
		return nil, fmt.Errorf("velocity: fit window [%g, %g] is empty", cfg.FitWindow.Lo, cfg.FitWindow.Hi)
	}
	if err := cfg.Prior.Validate(); err != nil {
		return nil, err
	}

	model, err := line.New(cfg.Components)
	if err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg, model: model}, nil
}

// Model returns the line model used by the calculator.
func (c *Calculator) Model() *line.Model { return c.model }

// Measure fits the line complex in one observation and returns the
// barycentric-corrected velocity with its floor-adjusted uncertainty.
//
// Empty pixel selections are configuration errors and abort. Hitting the
// solver's iteration cap does not: the best point found is reported and
// flagged through Converged and the reduced chi-square.
func (c *Calculator) Measure(obs *spectrum.Observation) (Result, error) {
	if err := obs.Validate(); err != nil {
		return Result{}, err
	}

	cont, err := spectrum.FitContinuum(obs, c.cfg.ContinuumWindows, c.cfg.ContinuumDegree, c.cfg.FitWindow)
	if err != nil {
		return Result{}, err
	}

	// Line pixels: inside the fit window, outside every continuum window.
	// No pixel is shared between the continuum and line fits.
	var idx []int
	for i, x := range obs.Wavelength {
		if !c.cfg.FitWindow.Contains(x) {
			continue
		}
		inCont := false
		for _, w := range c.cfg.ContinuumWindows {
			if w.Contains(x) {
				inCont = true
				break
			}
		}
		if !inCont {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return Result{}, spectrum.ErrEmptyWindow
	}
	if len(idx) <= c.model.NumParams() {
		return Result{}, fmt.Errorf("velocity: %d line pixels cannot constrain %d parameters", len(idx), c.model.NumParams())
	}

	wl := spectrum.Gather(obs.Wavelength, idx)
	fluxErr := spectrum.Gather(obs.FluxErr, idx)
	flux, err := cont.Subtract(wl, spectrum.Gather(obs.Flux, idx))
	if err != nil {
		return Result{}, err
	}

	x0 := c.initialParams(obs, flux)
	lower, upper := c.model.Bounds()

	problem := lsq.Problem{
		NumResiduals: len(idx),
		NumParams:    c.model.NumParams(),
		Eval: func(x, r []float64) {
			evalResiduals(c.model, wl, flux, fluxErr, x, r)
		},
		Jac: func(x []float64, j *mat.Dense) {
			// Eval and Jac share the AD pass; residual output is discarded
			// here to keep the solver interface simple.
			r := make([]float64, len(idx))
			if err := c.model.ResidualJacobian(wl, flux, fluxErr, x, r, j); err != nil {
				panic(err) // lengths are fixed above; unreachable
			}
		},
	}

	sol, err := lsq.Solve(problem, x0, lsq.Bounds{Lower: lower, Upper: upper},
		lsq.Settings{MaxIterations: c.cfg.MaxIterations})
	if err != nil {
		return Result{}, err
	}

	redChi2 := lsq.ReducedChiSquare(sol.Cost, len(idx), c.model.NumParams())

	res := Result{
		Velocity:         sol.X[0] + obs.BaryVel,
		ReducedChiSquare: redChi2,
		Params:           sol.X,
		Converged:        sol.Status == lsq.StatusConverged,
	}

	cov, rank, err := lsq.Covariance(sol.Jacobian, redChi2)
	if err != nil {
		return res, ErrUndefinedUncertainty
	}
	res.Covariance = cov
	res.Rank = rank

	floor := c.cfg.SystematicFloor
	res.Uncertainty = math.Sqrt(cov.At(0, 0) + floor*floor)
	return res, nil
}

// MeasureSeries measures every observation in order and assembles the
// velocity time series. The optional progress callback is invoked after
// each spectrum with (done, total).
func (c *Calculator) MeasureSeries(observations []*spectrum.Observation, progress func(done, total int)) (orbit.Series, []Result, error) {
	if len(observations) == 0 {
		return nil, nil, spectrum.ErrEmptyObservation
	}

	series := make(orbit.Series, 0, len(observations))
	results := make([]Result, 0, len(observations))
	for i, obs := range observations {
		res, err := c.Measure(obs)
		if err != nil {
			return nil, nil, fmt.Errorf("velocity: spectrum %d: %w", i, err)
		}
		series = append(series, res.Point(obs.Time))
		results = append(results, res)
		if progress != nil {
			progress(i+1, len(observations))
		}
	}

	if err := series.Validate(); err != nil {
		return nil, nil, err
	}
	return series, results, nil
}

// initialParams seeds the solver: velocity from the prior ephemeris minus
// the barycentric correction, broad amplitude at half the detrended peak,
// broad center at its nominal wavelength, narrow amplitudes at the peak.
func (c *Calculator) initialParams(obs *spectrum.Observation, detrended []float64) []float64 {
	peak := 0.0
	for _, v := range detrended {
		if v > peak {
			peak = v
		}
	}

	v0 := c.cfg.Prior.Velocity(obs.Time) - obs.BaryVel
	if v0 > 0 {
		v0 = 0 // the velocity parameter is bounded above by zero
	}

	x0 := make([]float64, c.model.NumParams())
	x0[0] = v0

	i := 1
	for _, comp := range c.model.Components() {
		if comp.DopplerLocked {
			x0[i] = peak
			i++
			continue
		}
		x0[i] = peak / 2
		i++
		x0[i] = c.cfg.BroadCenterInit
		i++
	}
	return x0
}

func evalResiduals(m *line.Model, wl, flux, fluxErr, x, r []float64) {
	// Residuals without the Jacobian: evaluate the model directly.
	model := make([]float64, len(wl))
	if err := m.Eval(wl, x, model); err != nil {
		panic(err) // lengths are fixed by the caller; unreachable
	}
	for i := range r {
		r[i] = (flux[i] - model[i]) / fluxErr[i]
	}
}
