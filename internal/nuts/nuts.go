package nuts

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Errors returned by configuration validation.
var (
	ErrNilTarget = errors.New("nuts: target log-density is nil")
	ErrBadInit   = errors.New("nuts: initial point has non-finite log-density")
)

// LogProb evaluates the joint log-density at x and writes its gradient
// into grad. Both slices have the chain dimension.
type LogProb func(x, grad []float64) float64

// Config controls one chain. Zero values select defaults.
type Config struct {
	Warmup       int     // adaptation draws, discarded; default 1000
	Samples      int     // retained draws; default 1000
	TargetAccept float64 // dual-averaging target, default 0.8
	MaxTreeDepth int     // default 10
	Seed         uint64  // PCG stream seed
}

func (c Config) withDefaults() Config {
	if c.Warmup <= 0 {
		c.Warmup = 1000
	}
	if c.Samples <= 0 {
		c.Samples = 1000
	}
	if c.TargetAccept <= 0 || c.TargetAccept >= 1 {
		c.TargetAccept = 0.8
	}
	if c.MaxTreeDepth <= 0 {
		c.MaxTreeDepth = 10
	}
	return c
}

// Chain holds the retained draws and sampler diagnostics of one chain.
type Chain struct {
	Samples     [][]float64 // Samples x dim, post-warmup
	Energies    []float64   // Hamiltonian at the start of each retained transition
	Divergences int         // divergent transitions post-warmup
	StepSize    float64     // adapted leapfrog step size
	AcceptMean  float64     // mean acceptance statistic post-warmup
}

// divergenceThreshold is the energy error beyond which a leapfrog
// trajectory is declared divergent.
const divergenceThreshold = 1000

// sampler carries one chain's mutable state.
type sampler struct {
	logp   LogProb
	dim    int
	cfg    Config
	rng    *rand.Rand
	metric *metric
}

// Sample runs one NUTS chain from init and returns its retained draws.
func Sample(logp LogProb, init []float64, cfg Config) (*Chain, error) {
	if logp == nil {
		return nil, ErrNilTarget
	}
	if len(init) == 0 {
		return nil, fmt.Errorf("nuts: empty initial point")
	}
	cfg = cfg.withDefaults()

	dim := len(init)
	s := &sampler{
		logp:   logp,
		dim:    dim,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		metric: identityMetric(dim),
	}

	q := append([]float64(nil), init...)
	grad := make([]float64, dim)
	lp := logp(q, grad)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return nil, ErrBadInit
	}

	chain := &Chain{
		Samples:  make([][]float64, 0, cfg.Samples),
		Energies: make([]float64, 0, cfg.Samples),
	}

	// Warmup phase 1: identity metric, step-size adaptation.
	// The second half of phase 1 feeds the dense metric estimate; phase 2
	// re-adapts the step size under the new metric.
	phase1 := cfg.Warmup / 2
	windowStart := phase1 / 2

	da := newDualAveraging(s.findReasonableStepSize(q, lp, grad), cfg.TargetAccept)
	var window [][]float64

	for i := 0; i < phase1; i++ {
		var accept float64
		q, lp, grad, accept, _, _ = s.transition(q, lp, grad, da.stepSize())
		da.update(accept)
		if i >= windowStart {
			window = append(window, append([]float64(nil), q...))
		}
	}

	if m, err := denseMetricFromDraws(window, dim); err == nil {
		s.metric = m
	}

	da = newDualAveraging(s.findReasonableStepSize(q, lp, grad), cfg.TargetAccept)
	for i := phase1; i < cfg.Warmup; i++ {
		var accept float64
		q, lp, grad, accept, _, _ = s.transition(q, lp, grad, da.stepSize())
		da.update(accept)
	}

	stepSize := da.adaptedStepSize()
	chain.StepSize = stepSize

	var acceptSum float64
	for i := 0; i < cfg.Samples; i++ {
		var accept, energy float64
		var diverged bool
		q, lp, grad, accept, energy, diverged = s.transition(q, lp, grad, stepSize)
		if diverged {
			chain.Divergences++
		}
		acceptSum += accept
		chain.Samples = append(chain.Samples, append([]float64(nil), q...))
		chain.Energies = append(chain.Energies, energy)
	}
	chain.AcceptMean = acceptSum / float64(cfg.Samples)

	return chain, nil
}

// transition performs one NUTS update from (q, lp, grad) and returns the
// new state, the mean acceptance statistic, the starting Hamiltonian, and
// whether the trajectory diverged.
func (s *sampler) transition(q []float64, lp float64, grad []float64, stepSize float64,
) (qNew []float64, lpNew float64, gradNew []float64, accept, energy float64, diverged bool) {

	p := s.metric.samplePotential(s.rng)
	h0 := -lp + s.metric.kinetic(p)
	energy = h0

	// Slice variable, in log space.
	logu := -h0 + math.Log(s.rng.Float64())

	st := &treeState{
		qMinus: append([]float64(nil), q...),
		pMinus: append([]float64(nil), p...),
		gMinus: append([]float64(nil), grad...),
		qPlus:  append([]float64(nil), q...),
		pPlus:  append([]float64(nil), p...),
		gPlus:  append([]float64(nil), grad...),
	}

	qNew = q
	lpNew = lp
	gradNew = grad
	n := 1
	alphaSum := 0.0
	nAlpha := 0

	for depth := 0; depth < s.cfg.MaxTreeDepth; depth++ {
		dir := 1.0
		if s.rng.Float64() < 0.5 {
			dir = -1
		}

		sub := s.buildTree(st, logu, dir, depth, stepSize, h0)
		if sub.diverged {
			diverged = true
		}

		if sub.ok && sub.n > 0 && s.rng.Float64() < float64(sub.n)/float64(n) {
			qNew = sub.qSample
			lpNew = sub.lpSample
			gradNew = sub.gSample
		}
		n += sub.n
		alphaSum += sub.alpha
		nAlpha += sub.nAlpha

		if !sub.ok || !s.noUTurn(st) {
			break
		}
	}
	accept = alphaSum / float64(nAlpha)

	return qNew, lpNew, gradNew, accept, energy, diverged
}

// treeState tracks the outermost trajectory endpoints.
type treeState struct {
	qMinus, pMinus, gMinus []float64
	qPlus, pPlus, gPlus    []float64
}

// subtree is the result of one buildTree call.
type subtree struct {
	qSample  []float64
	lpSample float64
	gSample  []float64
	n        int
	ok       bool // no U-turn, no divergence inside
	alpha    float64
	nAlpha   int
	diverged bool
}

func (s *sampler) buildTree(st *treeState, logu, dir float64, depth int, stepSize, h0 float64) subtree {
	if depth == 0 {
		// Base case: a single leapfrog step in direction dir.
		var q, p, g []float64
		if dir > 0 {
			q, p, g = st.qPlus, st.pPlus, st.gPlus
		} else {
			q, p, g = st.qMinus, st.pMinus, st.gMinus
		}

		q2, p2, g2, lp2 := s.leapfrog(q, p, g, dir*stepSize)
		h := -lp2 + s.metric.kinetic(p2)

		if dir > 0 {
			st.qPlus, st.pPlus, st.gPlus = q2, p2, g2
		} else {
			st.qMinus, st.pMinus, st.gMinus = q2, p2, g2
		}

		out := subtree{
			qSample:  q2,
			lpSample: lp2,
			gSample:  g2,
			nAlpha:   1,
		}
		if logu <= -h {
			out.n = 1
		}
		if logu-divergenceThreshold >= -h || math.IsNaN(h) {
			out.diverged = true
			out.ok = false
		} else {
			out.ok = true
		}
		if a := math.Exp(h0 - h); a < 1 {
			out.alpha = a
		} else {
			out.alpha = 1
		}
		return out
	}

	// Recursion: build two subtrees in the same direction.
	first := s.buildTree(st, logu, dir, depth-1, stepSize, h0)
	if !first.ok {
		return first
	}

	second := s.buildTree(st, logu, dir, depth-1, stepSize, h0)

	out := subtree{
		qSample:  first.qSample,
		lpSample: first.lpSample,
		gSample:  first.gSample,
		n:        first.n + second.n,
		alpha:    first.alpha + second.alpha,
		nAlpha:   first.nAlpha + second.nAlpha,
		diverged: first.diverged || second.diverged,
	}
	if total := out.n; total > 0 && second.n > 0 && s.rng.Float64() < float64(second.n)/float64(total) {
		out.qSample = second.qSample
		out.lpSample = second.lpSample
		out.gSample = second.gSample
	}
	out.ok = second.ok && s.noUTurn(&treeState{
		qMinus: st.qMinus, pMinus: st.pMinus,
		qPlus: st.qPlus, pPlus: st.pPlus,
	})
	return out
}

// noUTurn reports whether the trajectory endpoints are still moving apart.
func (s *sampler) noUTurn(st *treeState) bool {
	vMinus := s.metric.velocity(st.pMinus)
	vPlus := s.metric.velocity(st.pPlus)

	var forward, backward float64
	for i := range st.qPlus {
		d := st.qPlus[i] - st.qMinus[i]
		forward += d * vPlus[i]
		backward += d * vMinus[i]
	}
	return forward >= 0 && backward >= 0
}

// leapfrog advances (q, p) by one step of size eps and returns the new
// state with its gradient and log-density.
func (s *sampler) leapfrog(q, p, grad []float64, eps float64) (q2, p2, g2 []float64, lp2 float64) {
	dim := s.dim
	p2 = make([]float64, dim)
	for i := 0; i < dim; i++ {
		p2[i] = p[i] + 0.5*eps*grad[i]
	}

	v := s.metric.velocity(p2)
	q2 = make([]float64, dim)
	for i := 0; i < dim; i++ {
		q2[i] = q[i] + eps*v[i]
	}

	g2 = make([]float64, dim)
	lp2 = s.logp(q2, g2)

	for i := 0; i < dim; i++ {
		p2[i] += 0.5 * eps * g2[i]
	}
	return q2, p2, g2, lp2
}

// findReasonableStepSize doubles or halves the step until a single
// leapfrog step crosses 50% acceptance, following Hoffman & Gelman.
func (s *sampler) findReasonableStepSize(q []float64, lp float64, grad []float64) float64 {
	eps := 1.0
	p := s.metric.samplePotential(s.rng)
	h0 := -lp + s.metric.kinetic(p)

	_, p2, _, lp2 := s.leapfrog(q, p, grad, eps)
	h := -lp2 + s.metric.kinetic(p2)

	logRatio := h0 - h
	dir := 1.0
	if !(logRatio > math.Log(0.5)) {
		dir = -1
	}

	for i := 0; i < 50; i++ {
		if dir > 0 && logRatio > math.Log(0.5) {
			eps *= 2
		} else if dir < 0 && logRatio <= math.Log(0.5) {
			eps *= 0.5
		} else {
			break
		}
		_, p2, _, lp2 = s.leapfrog(q, p, grad, eps)
		h = -lp2 + s.metric.kinetic(p2)
		logRatio = h0 - h
		if math.IsNaN(logRatio) {
			logRatio = math.Inf(-1)
		}
	}
	return eps
}

// metric is the dense mass-matrix state: sigma is the position-space
// covariance estimate (the inverse mass matrix) and chol its Cholesky
// factor used both to draw momenta and to convert momenta to velocities.
type metric struct {
	dim   int
	sigma *mat.SymDense
	chol  *mat.Cholesky
}

func identityMetric(dim int) *metric {
	sigma := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		sigma.SetSym(i, i, 1)
	}
	return newMetric(sigma)
}

func newMetric(sigma *mat.SymDense) *metric {
	var chol mat.Cholesky
	if ok := chol.Factorize(sigma); !ok {
		return nil
	}
	return &metric{dim: sigma.SymmetricDim(), sigma: sigma, chol: &chol}
}

// denseMetricFromDraws estimates a regularized covariance from warmup
// draws, shrinking toward the diagonal as Stan's windowed adaptation does.
func denseMetricFromDraws(draws [][]float64, dim int) (*metric, error) {
	n := len(draws)
	if n < dim+5 {
		return nil, fmt.Errorf("nuts: %d draws cannot estimate a %d-dim metric", n, dim)
	}

	means := make([]float64, dim)
	for _, d := range draws {
		for j, v := range d {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	sigma := mat.NewSymDense(dim, nil)
	for a := 0; a < dim; a++ {
		for b := a; b < dim; b++ {
			var sum float64
			for _, d := range draws {
				sum += (d[a] - means[a]) * (d[b] - means[b])
			}
			sigma.SetSym(a, b, sum/float64(n-1))
		}
	}

	// Shrinkage toward a small identity component keeps the factorization
	// positive definite on short windows.
	w := float64(n) / (float64(n) + 5)
	for a := 0; a < dim; a++ {
		for b := a; b < dim; b++ {
			v := w * sigma.At(a, b)
			if a == b {
				v += (1 - w) * 1e-3
			}
			sigma.SetSym(a, b, v)
		}
	}

	m := newMetric(sigma)
	if m == nil {
		return nil, fmt.Errorf("nuts: metric estimate is not positive definite")
	}
	return m, nil
}

// samplePotential draws p ~ N(0, sigma^-1) via the Cholesky factor.
func (m *metric) samplePotential(rng *rand.Rand) []float64 {
	z := mat.NewVecDense(m.dim, nil)
	for i := 0; i < m.dim; i++ {
		z.SetVec(i, rng.NormFloat64())
	}

	// p = L^-T z has covariance (L L^T)^-1 = sigma^-1.
	var lT mat.TriDense
	m.chol.LTo(&lT)
	var p mat.VecDense
	if err := p.SolveVec(lT.T(), z); err != nil {
		// Factorization already succeeded; a singular triangle cannot occur.
		panic(err)
	}

	out := make([]float64, m.dim)
	copy(out, p.RawVector().Data)
	return out
}

// velocity returns sigma * p, the position-space velocity of momentum p.
func (m *metric) velocity(p []float64) []float64 {
	out := make([]float64, m.dim)
	pv := mat.NewVecDense(m.dim, p)
	ov := mat.NewVecDense(m.dim, out)
	ov.MulVec(m.sigma, pv)
	return out
}

// kinetic returns 0.5 * p^T sigma p.
func (m *metric) kinetic(p []float64) float64 {
	v := m.velocity(p)
	var sum float64
	for i, pi := range p {
		sum += pi * v[i]
	}
	return 0.5 * sum
}
