// Package autodiff implements forward-mode automatic differentiation on
// dual numbers carrying a dense gradient vector.
//
// The fitting packages use it to build exact residual Jacobians and
// log-density gradients. Finite differences are not precise enough for the
// SVD-based covariance recovery downstream, so every model derivative in
// this module flows through here.
package autodiff

import "math"

// Dual is a scalar value together with its gradient with respect to a fixed
// set of independent variables. All duals combined in one expression must
// carry gradients of the same length.
type Dual struct {
	Value float64
	Grad  []float64
}

// Const returns a dual constant: value v, zero gradient of length n.
func Const(v float64, n int) Dual {
	return Dual{Value: v, Grad: make([]float64, n)}
}

// Var returns the i-th independent variable of an n-variable expression:
// value v, gradient e_i.
func Var(v float64, i, n int) Dual {
	g := make([]float64, n)
	g[i] = 1
	return Dual{Value: v, Grad: g}
}

// Add returns d + e.
func (d Dual) Add(e Dual) Dual {
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = d.Grad[i] + e.Grad[i]
	}
	return Dual{Value: d.Value + e.Value, Grad: g}
}

// Sub returns d - e.
func (d Dual) Sub(e Dual) Dual {
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = d.Grad[i] - e.Grad[i]
	}
	return Dual{Value: d.Value - e.Value, Grad: g}
}

// Mul returns d * e.
func (d Dual) Mul(e Dual) Dual {
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = d.Grad[i]*e.Value + d.Value*e.Grad[i]
	}
	return Dual{Value: d.Value * e.Value, Grad: g}
}

// Div returns d / e. The caller must ensure e.Value is nonzero.
func (d Dual) Div(e Dual) Dual {
	inv := 1 / e.Value
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = (d.Grad[i] - d.Value*inv*e.Grad[i]) * inv
	}
	return Dual{Value: d.Value * inv, Grad: g}
}

// Neg returns -d.
func (d Dual) Neg() Dual {
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = -d.Grad[i]
	}
	return Dual{Value: -d.Value, Grad: g}
}

// AddConst returns d + c.
func (d Dual) AddConst(c float64) Dual {
	g := make([]float64, len(d.Grad))
	copy(g, d.Grad)
	return Dual{Value: d.Value + c, Grad: g}
}

// Scale returns c * d.
func (d Dual) Scale(c float64) Dual {
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = c * d.Grad[i]
	}
	return Dual{Value: c * d.Value, Grad: g}
}

// Square returns d * d.
func (d Dual) Square() Dual {
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = 2 * d.Value * d.Grad[i]
	}
	return Dual{Value: d.Value * d.Value, Grad: g}
}

// Sin returns sin(d).
func (d Dual) Sin() Dual {
	s, c := math.Sincos(d.Value)
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = c * d.Grad[i]
	}
	return Dual{Value: s, Grad: g}
}

// Cos returns cos(d).
func (d Dual) Cos() Dual {
	s, c := math.Sincos(d.Value)
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = -s * d.Grad[i]
	}
	return Dual{Value: c, Grad: g}
}

// Exp returns exp(d).
func (d Dual) Exp() Dual {
	v := math.Exp(d.Value)
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = v * d.Grad[i]
	}
	return Dual{Value: v, Grad: g}
}

// Log returns ln(d). The caller must ensure d.Value is positive.
func (d Dual) Log() Dual {
	inv := 1 / d.Value
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = inv * d.Grad[i]
	}
	return Dual{Value: math.Log(d.Value), Grad: g}
}

// Sigmoid returns 1 / (1 + exp(-d)), computed in a saturation-safe form.
func (d Dual) Sigmoid() Dual {
	var s float64
	if d.Value >= 0 {
		s = 1 / (1 + math.Exp(-d.Value))
	} else {
		e := math.Exp(d.Value)
		s = e / (1 + e)
	}
	deriv := s * (1 - s)
	g := make([]float64, len(d.Grad))
	for i := range g {
		g[i] = deriv * d.Grad[i]
	}
	return Dual{Value: s, Grad: g}
}
