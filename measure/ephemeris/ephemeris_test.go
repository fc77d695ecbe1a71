package ephemeris

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-rv/internal/testutil"
	"github.com/cwbudde/algo-rv/orbit"
)

func truth() orbit.Params {
	return orbit.Params{T0: 2455444.7284, P: 0.7873143, Gamma: -113700, K: 74600}
}

func coarsePrior() orbit.Params {
	p := truth()
	p.T0 += 0.01
	p.P += 0.001
	p.Gamma += 2000
	p.K -= 3000
	return p
}

func testSeries(sigma float64, seed int64) orbit.Series {
	times := testutil.PhaseSpreadTimes(truth(), 20, 10, seed)
	return testutil.SynthSeries(truth(), times, sigma, seed+100)
}

func fastConfig() Config {
	return Config{
		Prior:   coarsePrior(),
		Chains:  2,
		Warmup:  400,
		Samples: 600,
		Seed:    5,
	}
}

func TestConfig_Validation(t *testing.T) {
	s := testSeries(500, 1)

	bad := fastConfig()
	bad.PBand = [2]float64{-1, 1}
	if _, err := Run(s, bad); !errors.Is(err, ErrBadP) {
		t.Errorf("negative period band: got %v, want ErrBadP", err)
	}

	bad = fastConfig()
	bad.KBand = [2]float64{5, 5}
	if _, err := Run(s, bad); !errors.Is(err, ErrBadBand) {
		t.Errorf("empty K band: got %v, want ErrBadBand", err)
	}
}

func TestSamplePosterior_EmptySeries(t *testing.T) {
	_, err := SamplePosterior(orbit.Series{}, truth(), fastConfig())
	if !errors.Is(err, orbit.ErrEmptySeries) {
		t.Errorf("got %v, want ErrEmptySeries", err)
	}
}

func TestModel_LogProbGradientMatchesNumeric(t *testing.T) {
	s := testSeries(500, 3)
	m := newOrbitModel(s, truth(), fastConfig().withDefaults())

	y := []float64{0.2, -0.3, 0.5, -0.1, 0.4}
	grad := make([]float64, numParams)
	lp := m.logProb(y, grad)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		t.Fatalf("logProb: non-finite %g", lp)
	}

	scratch := make([]float64, numParams)
	const h = 1e-6
	for j := 0; j < numParams; j++ {
		yp := append([]float64(nil), y...)
		yp[j] += h
		lpPlus := m.logProb(yp, scratch)
		yp[j] -= 2 * h
		lpMinus := m.logProb(yp, scratch)

		num := (lpPlus - lpMinus) / (2 * h)
		scale := math.Max(math.Abs(num), 1)
		if math.Abs(grad[j]-num)/scale > 1e-4 {
			t.Errorf("grad[%d]: got %g, numeric %g", j, grad[j], num)
		}
	}
}

func TestModel_ConstrainRespectsBands(t *testing.T) {
	s := testSeries(500, 4)
	cfg := fastConfig().withDefaults()
	m := newOrbitModel(s, truth(), cfg)

	for _, y := range [][]float64{
		{0, 0, 0, 0, 0},
		{50, -50, 50, -50, 50},
		{-50, 50, -50, 50, -50},
	} {
		x := m.constrain(y)
		for j := 0; j < numParams; j++ {
			if x[j] < m.bands[j][0] || x[j] > m.bands[j][1] {
				t.Errorf("param %d out of band: %g not in [%g, %g]", j, x[j], m.bands[j][0], m.bands[j][1])
			}
		}
	}
}

func TestModel_InitRoundTrips(t *testing.T) {
	s := testSeries(500, 5)
	cfg := fastConfig().withDefaults()
	est := truth()
	m := newOrbitModel(s, est, cfg)

	x := m.constrain(m.unconstrainedInit())
	if math.Abs(x[idxT0]-est.T0) > 1e-6 {
		t.Errorf("T0 init: got %.8f, want %.8f", x[idxT0], est.T0)
	}
	if math.Abs(x[idxP]-est.P) > 1e-9 {
		t.Errorf("P init: got %.10f, want %.10f", x[idxP], est.P)
	}
	if math.Abs(x[idxEfac]-1) > 1e-6 {
		t.Errorf("efac init: got %g, want 1", x[idxEfac])
	}
}

func TestRun_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("sampling run")
	}

	const sigma = 2000.0
	s := testSeries(sigma, 7)

	res, err := Run(s, fastConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Point estimate close to truth.
	want := truth()
	if math.Abs(res.Fit.Params.P-want.P) > 1e-3 {
		t.Errorf("fit P: got %.6f, want %.6f", res.Fit.Params.P, want.P)
	}
	if math.Abs(res.Fit.Params.K-want.K) > 4*sigma {
		t.Errorf("fit K: got %g, want %g", res.Fit.Params.K, want.K)
	}

	// Posterior structure: two chains of the configured length.
	if len(res.Posterior.Chains) != 2 {
		t.Fatalf("chains: got %d, want 2", len(res.Posterior.Chains))
	}
	for i, c := range res.Posterior.Chains {
		if c.Len() != 600 {
			t.Errorf("chain %d draws: got %d, want 600", i, c.Len())
		}
	}

	// Posterior concentration: true parameters inside broad credible
	// intervals of the merged samples.
	m := res.Posterior.Merged()
	checks := []struct {
		name    string
		samples []float64
		truth   float64
	}{
		{"P", m.P, want.P},
		{"Gamma", m.Gamma, want.Gamma},
		{"K", m.K, want.K},
	}
	for _, c := range checks {
		sum := testSummary(c.samples)
		if dist := math.Abs(sum.mean - c.truth); dist > 5*sum.std {
			t.Errorf("%s: posterior mean %g is %.1f sigma from truth %g", c.name, sum.mean, dist/sum.std, c.truth)
		}
	}

	// Diagnostics present and sane.
	if len(res.BFMI) != 2 {
		t.Fatalf("BFMI entries: got %d, want 2", len(res.BFMI))
	}
	for i, b := range res.BFMI {
		if math.IsNaN(b) || b <= 0 {
			t.Errorf("chain %d BFMI: got %g", i, b)
		}
	}

	// Epoch disambiguation produced an ascending node a quarter period
	// before the decorrelated T0.
	if res.Epoch == nil {
		t.Fatal("missing epoch result")
	}
	if res.Epoch.Precision <= 0 {
		t.Errorf("epoch precision: got %g", res.Epoch.Precision)
	}

	params := res.Params()
	if err := params.Validate(); err != nil {
		t.Errorf("result params: %v", err)
	}
}

type summary struct{ mean, std float64 }

func testSummary(xs []float64) summary {
	var m float64
	for _, v := range xs {
		m += v
	}
	m /= float64(len(xs))
	var s2 float64
	for _, v := range xs {
		s2 += (v - m) * (v - m)
	}
	return summary{mean: m, std: math.Sqrt(s2 / float64(len(xs)-1))}
}
