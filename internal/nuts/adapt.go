package nuts

import "math"

// dualAveraging adapts the leapfrog step size toward a target acceptance
// statistic (Hoffman & Gelman 2014, section 3.2).
type dualAveraging struct {
	mu        float64
	target    float64
	logEps    float64
	logEpsBar float64
	hBar      float64
	m         int

	gamma float64
	t0    float64
	kappa float64
}

func newDualAveraging(initStep, target float64) *dualAveraging {
	if initStep <= 0 {
		initStep = 0.1
	}
	return &dualAveraging{
		mu:        math.Log(10 * initStep),
		target:    target,
		logEps:    math.Log(initStep),
		logEpsBar: 0,
		gamma:     0.05,
		t0:        10,
		kappa:     0.75,
	}
}

// update folds one transition's acceptance statistic into the running
// averages.
func (da *dualAveraging) update(accept float64) {
	if math.IsNaN(accept) {
		accept = 0
	}
	da.m++
	m := float64(da.m)

	eta := 1 / (m + da.t0)
	da.hBar = (1-eta)*da.hBar + eta*(da.target-accept)
	da.logEps = da.mu - math.Sqrt(m)/da.gamma*da.hBar

	w := math.Pow(m, -da.kappa)
	da.logEpsBar = w*da.logEps + (1-w)*da.logEpsBar
}

// stepSize returns the exploratory step size used while adapting.
func (da *dualAveraging) stepSize() float64 {
	return math.Exp(da.logEps)
}

// adaptedStepSize returns the smoothed step size to freeze after warmup.
func (da *dualAveraging) adaptedStepSize() float64 {
	if da.m == 0 {
		return da.stepSize()
	}
	return math.Exp(da.logEpsBar)
}
