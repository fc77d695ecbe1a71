package orbit

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-rv/internal/autodiff"
	"github.com/cwbudde/algo-rv/internal/lsq"
)

// FitResult holds the point-estimate orbit fit.
type FitResult struct {
	Params           Params
	Residuals        []float64  // weighted residuals at the optimum
	Jacobian         *mat.Dense // len(series) x 4, at the optimum
	Cost             float64    // sum of squared weighted residuals
	ReducedChiSquare float64
	Converged        bool
	Iterations       int
}

// residualJacobian writes the weighted residuals and their Jacobian with
// respect to (T0, P, gamma, K) at x.
func residualJacobian(s Series, x []float64, r []float64, jac *mat.Dense) {
	const n = 4
	t0 := autodiff.Var(x[0], 0, n)
	p := autodiff.Var(x[1], 1, n)
	gamma := autodiff.Var(x[2], 2, n)
	k := autodiff.Var(x[3], 3, n)

	twoPi := 2 * math.Pi

	for i, pt := range s {
		// phase = 2 pi (t - T0) / P
		phase := t0.Neg().AddConst(pt.Time).Scale(twoPi).Div(p)
		model := k.Mul(phase.Sin()).Add(gamma)
		res := model.Neg().AddConst(pt.Velocity).Scale(1 / pt.Sigma)

		if r != nil {
			r[i] = res.Value
		}
		if jac != nil {
			for q := 0; q < n; q++ {
				jac.Set(i, q, res.Grad[q])
			}
		}
	}
}

// Fit runs an unconstrained least-squares solve of the circular-orbit model
// over the series, starting from a coarse prior ephemeris. Hitting the
// solver's iteration cap is not an error; the best point found is returned
// with Converged set to false.
func Fit(s Series, init Params) (*FitResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := init.Validate(); err != nil {
		return nil, err
	}

	problem := lsq.Problem{
		NumResiduals: len(s),
		NumParams:    4,
		Eval: func(x, r []float64) {
			residualJacobian(s, x, r, nil)
		},
		Jac: func(x []float64, j *mat.Dense) {
			residualJacobian(s, x, nil, j)
		},
	}

	x0 := []float64{init.T0, init.P, init.Gamma, init.K}
	res, err := lsq.Solve(problem, x0, lsq.Bounds{}, lsq.Settings{})
	if err != nil {
		return nil, err
	}

	return &FitResult{
		Params: Params{
			T0:    res.X[0],
			P:     res.X[1],
			Gamma: res.X[2],
			K:     res.X[3],
		},
		Residuals:        res.Residuals,
		Jacobian:         res.Jacobian,
		Cost:             res.Cost,
		ReducedChiSquare: lsq.ReducedChiSquare(res.Cost, len(s), 4),
		Converged:        res.Status == lsq.StatusConverged,
		Iterations:       res.Iterations,
	}, nil
}
