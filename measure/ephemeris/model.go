package ephemeris

import (
	"math"

	"github.com/cwbudde/algo-rv/internal/autodiff"
	"github.com/cwbudde/algo-rv/internal/nuts"
	"github.com/cwbudde/algo-rv/orbit"
	"github.com/cwbudde/algo-rv/stats/posterior"
)

// Parameter order inside the sampler.
const (
	idxT0 = iota
	idxP
	idxGamma
	idxK
	idxEfac
	numParams
)

// orbitModel is the joint posterior density over (T0, P, gamma, K, efac)
// on an unconstrained space. Each bounded parameter is mapped through a
// scaled sigmoid; the log-density carries the transform's Jacobian so the
// constrained prior stays uniform over its band.
type orbitModel struct {
	series orbit.Series
	bands  [numParams][2]float64
	init   [numParams]float64
}

func newOrbitModel(series orbit.Series, estimate orbit.Params, cfg Config) *orbitModel {
	m := &orbitModel{series: series}

	w := cfg.T0WindowPeriods * estimate.P
	m.bands[idxT0] = [2]float64{estimate.T0 - w, estimate.T0 + w}
	m.bands[idxP] = cfg.PBand
	m.bands[idxGamma] = cfg.GammaBand
	m.bands[idxK] = cfg.KBand
	m.bands[idxEfac] = cfg.EfacBand

	m.init[idxT0] = estimate.T0
	m.init[idxP] = estimate.P
	m.init[idxGamma] = estimate.Gamma
	m.init[idxK] = estimate.K
	m.init[idxEfac] = 1

	return m
}

// unconstrainedInit maps the point estimate into sampler coordinates,
// nudging values on a band edge into the interior so the logit is finite.
func (m *orbitModel) unconstrainedInit() []float64 {
	y := make([]float64, numParams)
	for j := 0; j < numParams; j++ {
		lo, hi := m.bands[j][0], m.bands[j][1]
		x := clampInterior(m.init[j], lo, hi)
		y[j] = logit((x - lo) / (hi - lo))
	}
	return y
}

// logProb evaluates the joint log-density and its gradient in sampler
// coordinates. The Gaussian likelihood scales every reported uncertainty
// by the efac parameter.
func (m *orbitModel) logProb(y, grad []float64) float64 {
	// Constrained parameters as duals over the 5 sampler coordinates.
	var x [numParams]autodiff.Dual
	lp := autodiff.Const(0, numParams)

	for j := 0; j < numParams; j++ {
		s := autodiff.Var(y[j], j, numParams).Sigmoid()
		lo, hi := m.bands[j][0], m.bands[j][1]
		x[j] = s.Scale(hi - lo).AddConst(lo)

		// log |dx/dy| = log(hi-lo) + log s + log(1-s)
		lp = lp.Add(s.Log()).Add(s.Neg().AddConst(1).Log()).AddConst(math.Log(hi - lo))
	}

	t0, p, gamma, k, efac := x[idxT0], x[idxP], x[idxGamma], x[idxK], x[idxEfac]

	twoPi := 2 * math.Pi
	for _, pt := range m.series {
		phase := t0.Neg().AddConst(pt.Time).Scale(twoPi).Div(p)
		model := k.Mul(phase.Sin()).Add(gamma)

		resid := model.Neg().AddConst(pt.Velocity).Scale(1 / pt.Sigma).Div(efac)
		lp = lp.Add(resid.Square().Scale(-0.5))
	}

	// The efac normalization term: -n * log(efac). The per-point -log sigma
	// terms are constant in the parameters and dropped.
	lp = lp.Sub(efac.Log().Scale(float64(len(m.series))))

	copy(grad, lp.Grad)
	return lp.Value
}

// constrain maps one unconstrained draw back to the parameter bands.
func (m *orbitModel) constrain(y []float64) [numParams]float64 {
	var x [numParams]float64
	for j := 0; j < numParams; j++ {
		lo, hi := m.bands[j][0], m.bands[j][1]
		s := 1 / (1 + math.Exp(-y[j]))
		x[j] = lo + (hi-lo)*s
	}
	return x
}

// constrainChain converts a raw sampler chain into constrained posterior
// arrays.
func (m *orbitModel) constrainChain(raw *nuts.Chain) posterior.Chain {
	n := len(raw.Samples)
	out := posterior.Chain{
		T0:          make([]float64, n),
		P:           make([]float64, n),
		Gamma:       make([]float64, n),
		K:           make([]float64, n),
		Efac:        make([]float64, n),
		Energies:    append([]float64(nil), raw.Energies...),
		Divergences: raw.Divergences,
	}
	for i, y := range raw.Samples {
		x := m.constrain(y)
		out.T0[i] = x[idxT0]
		out.P[i] = x[idxP]
		out.Gamma[i] = x[idxGamma]
		out.K[i] = x[idxK]
		out.Efac[i] = x[idxEfac]
	}
	return out
}
