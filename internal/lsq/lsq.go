// Package lsq implements damped least-squares minimization with simple
// bound constraints, plus covariance recovery from the optimal Jacobian.
//
// The solver is a Levenberg-Marquardt iteration with Marquardt diagonal
// scaling and projection of trial steps onto the feasible box, which is the
// behavior the fitting packages need: bounded trust-region steps, best-point
// result on iteration cap, exact Jacobians supplied by the caller.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Errors returned by the solver.
var (
	ErrNoResiduals = errors.New("lsq: problem has no residuals")
	ErrNoParams    = errors.New("lsq: problem has no parameters")
	ErrBadBounds   = errors.New("lsq: lower bound exceeds upper bound")
)

// Problem describes a residual vector and its Jacobian.
type Problem struct {
	NumResiduals int
	NumParams    int

	// Eval writes the residual vector for parameters x into r.
	Eval func(x, r []float64)

	// Jac writes the NumResiduals x NumParams Jacobian of the residuals
	// at x into j.
	Jac func(x []float64, j *mat.Dense)
}

// Bounds holds per-parameter box constraints. A nil slice means unbounded
// on that side; individual entries may be +-Inf.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Settings controls the iteration. Zero values select defaults.
type Settings struct {
	MaxIterations int     // default 200
	CostTol       float64 // relative cost decrease, default 1e-10
	GradTol       float64 // projected gradient infinity norm, default 1e-10
	StepTol       float64 // relative step size, default 1e-12
}

// Status reports how the solver stopped.
type Status int

const (
	// StatusConverged means a tolerance criterion was met.
	StatusConverged Status = iota

	// StatusMaxIterations means the iteration cap was hit; the result holds
	// the best point found and is still usable.
	StatusMaxIterations
)

// Result holds the solver output.
type Result struct {
	X          []float64
	Residuals  []float64
	Jacobian   *mat.Dense
	Cost       float64 // sum of squared residuals at X
	Status     Status
	Iterations int
}

func (s Settings) withDefaults() Settings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = 200
	}
	if s.CostTol <= 0 {
		s.CostTol = 1e-10
	}
	if s.GradTol <= 0 {
		s.GradTol = 1e-10
	}
	if s.StepTol <= 0 {
		s.StepTol = 1e-12
	}
	return s
}

func (b Bounds) lower(i int) float64 {
	if b.Lower == nil {
		return math.Inf(-1)
	}
	return b.Lower[i]
}

func (b Bounds) upper(i int) float64 {
	if b.Upper == nil {
		return math.Inf(1)
	}
	return b.Upper[i]
}

func (b Bounds) validate(n int) error {
	if b.Lower != nil && len(b.Lower) != n {
		return fmt.Errorf("lsq: lower bounds length %d, want %d", len(b.Lower), n)
	}
	if b.Upper != nil && len(b.Upper) != n {
		return fmt.Errorf("lsq: upper bounds length %d, want %d", len(b.Upper), n)
	}
	for i := 0; i < n; i++ {
		if b.lower(i) > b.upper(i) {
			return ErrBadBounds
		}
	}
	return nil
}

func (b Bounds) project(x []float64) {
	for i := range x {
		if lo := b.lower(i); x[i] < lo {
			x[i] = lo
		}
		if hi := b.upper(i); x[i] > hi {
			x[i] = hi
		}
	}
}

func sumSquares(r []float64) float64 {
	var s float64
	for _, v := range r {
		s += v * v
	}
	return s
}

// projectedGradNorm returns the infinity norm of the gradient with
// components that push against an active bound zeroed out.
func projectedGradNorm(g, x []float64, b Bounds) float64 {
	var norm float64
	for i, gi := range g {
		if x[i] <= b.lower(i) && gi > 0 {
			continue
		}
		if x[i] >= b.upper(i) && gi < 0 {
			continue
		}
		if a := math.Abs(gi); a > norm {
			norm = a
		}
	}
	return norm
}

// Solve minimizes the sum of squared residuals of p starting at x0, keeping
// every iterate inside the bounds. Hitting the iteration cap is not an
// error: the best point found is returned with StatusMaxIterations.
func Solve(p Problem, x0 []float64, bounds Bounds, settings Settings) (Result, error) {
	if p.NumResiduals <= 0 {
		return Result{}, ErrNoResiduals
	}
	if p.NumParams <= 0 {
		return Result{}, ErrNoParams
	}
	if len(x0) != p.NumParams {
		return Result{}, fmt.Errorf("lsq: initial point length %d, want %d", len(x0), p.NumParams)
	}
	if err := bounds.validate(p.NumParams); err != nil {
		return Result{}, err
	}

	settings = settings.withDefaults()

	m, n := p.NumResiduals, p.NumParams

	x := make([]float64, n)
	copy(x, x0)
	bounds.project(x)

	r := make([]float64, m)
	p.Eval(x, r)
	cost := sumSquares(r)

	jac := mat.NewDense(m, n, nil)
	p.Jac(x, jac)

	normal := mat.NewDense(n, n, nil)   // J^T J
	grad := mat.NewVecDense(n, nil)     // J^T r
	damped := mat.NewDense(n, n, nil)   // J^T J + lambda diag
	step := mat.NewVecDense(n, nil)     // trial step
	rVec := mat.NewVecDense(m, nil)     // residual view for grad product
	trialX := make([]float64, n)
	trialR := make([]float64, m)

	lambda := 0.0
	status := StatusMaxIterations

	iter := 0
	for ; iter < settings.MaxIterations; iter++ {
		normal.Mul(jac.T(), jac)
		copy(rVec.RawVector().Data, r)
		grad.MulVec(jac.T(), rVec)

		if projectedGradNorm(grad.RawVector().Data, x, bounds) < settings.GradTol {
			status = StatusConverged
			break
		}

		if lambda == 0 {
			// Damping is relative to the normal-matrix diagonal, so the
			// starting value is scale free.
			lambda = 1e-3
		}

		accepted := false
		for !accepted && lambda < 1e12 {
			damped.Copy(normal)
			for i := 0; i < n; i++ {
				d := normal.At(i, i)
				if d == 0 {
					d = 1
				}
				damped.Set(i, i, normal.At(i, i)+lambda*d)
			}

			if err := step.SolveVec(damped, grad); err != nil {
				lambda *= 4
				continue
			}

			for i := 0; i < n; i++ {
				trialX[i] = x[i] - step.AtVec(i)
			}
			bounds.project(trialX)

			p.Eval(trialX, trialR)
			trialCost := sumSquares(trialR)

			if trialCost < cost {
				stepNorm := 0.0
				xNorm := 0.0
				for i := 0; i < n; i++ {
					d := trialX[i] - x[i]
					stepNorm += d * d
					xNorm += trialX[i] * trialX[i]
				}
				relCost := (cost - trialCost) / math.Max(cost, 1e-300)

				copy(x, trialX)
				copy(r, trialR)
				cost = trialCost
				p.Jac(x, jac)
				lambda = math.Max(lambda*0.3, 1e-12)
				accepted = true

				if relCost < settings.CostTol || stepNorm <= settings.StepTol*settings.StepTol*math.Max(xNorm, 1) {
					status = StatusConverged
				}
			} else {
				lambda *= 4
			}
		}

		if !accepted {
			// Damping saturated without progress; the current point is the
			// best available.
			status = StatusConverged
			break
		}
		if status == StatusConverged {
			break
		}
	}

	return Result{
		X:          x,
		Residuals:  r,
		Jacobian:   jac,
		Cost:       cost,
		Status:     status,
		Iterations: iter,
	}, nil
}

// ReducedChiSquare returns cost / (numResiduals - numParams), the standard
// goodness-of-fit figure for a least-squares optimum.
func ReducedChiSquare(cost float64, numResiduals, numParams int) float64 {
	dof := numResiduals - numParams
	if dof <= 0 {
		return math.NaN()
	}
	return cost / float64(dof)
}
