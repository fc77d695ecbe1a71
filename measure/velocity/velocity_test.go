package velocity

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-rv/internal/testutil"
	"github.com/cwbudde/algo-rv/orbit"
	"github.com/cwbudde/algo-rv/spectrum"
)

func testPrior() orbit.Params {
	return orbit.Params{T0: 2455444.7284, P: 0.7873143, Gamma: -113700, K: 74600}
}

// testParams returns a line-model parameter vector whose velocity matches
// the prior ephemeris at the given time (barycentric frame).
func testParams(t float64, baryVel float64) []float64 {
	v := testPrior().Velocity(t) - baryVel
	if v > 0 {
		v = 0
	}
	return []float64{v, 3.0, 4686.3, 1.2, 1.6, 0.9, 1.0, 0.6}
}

func flatContinuum(x float64) float64 { return 12.0 }

func grid() []float64 {
	return testutil.Linspace(4550, 4770, 1100)
}

func TestNewCalculator_Defaults(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if got := c.Model().NumParams(); got != 8 {
		t.Errorf("default model params: got %d, want 8", got)
	}
}

func TestNewCalculator_InvalidConfig(t *testing.T) {
	if _, err := NewCalculator(Config{}); err == nil {
		t.Error("zero prior: expected invalid-period error")
	}

	bad := Config{Prior: testPrior(), FitWindow: spectrum.Window{Lo: 10, Hi: 5}}
	if _, err := NewCalculator(bad); err == nil {
		t.Error("inverted fit window: expected error")
	}
}

func TestMeasure_RecoversNoiseFreeVelocity(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	obsTime := testPrior().T0 + 0.31*testPrior().P
	const baryVel = 8000.0
	params := testParams(obsTime, baryVel)

	obs := testutil.SynthSpectrum(c.Model(), params, grid(), flatContinuum, 0, 1, obsTime, baryVel)

	res, err := c.Measure(obs)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if !res.Converged {
		t.Error("expected convergence on noise-free data")
	}

	wantVelocity := params[0] + baryVel
	if math.Abs(res.Velocity-wantVelocity) > 50 {
		t.Errorf("velocity: got %g, want %g", res.Velocity, wantVelocity)
	}
	if res.ReducedChiSquare > 1e-6 {
		t.Errorf("reduced chi-square on exact data: got %g", res.ReducedChiSquare)
	}
}

func TestMeasure_RecoversNoisyVelocity(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	obsTime := testPrior().T0 + 0.62*testPrior().P
	params := testParams(obsTime, 0)

	obs := testutil.SynthSpectrum(c.Model(), params, grid(), flatContinuum, 0.05, 7, obsTime, 0)

	res, err := c.Measure(obs)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}

	// The fitted velocity should land within a few reported sigmas.
	if diff := math.Abs(res.Velocity - params[0]); diff > 4*res.Uncertainty {
		t.Errorf("velocity off by %g with uncertainty %g", diff, res.Uncertainty)
	}
	if res.ReducedChiSquare > 2 || res.ReducedChiSquare < 0.4 {
		t.Errorf("reduced chi-square: got %g, want near 1", res.ReducedChiSquare)
	}
}

func TestMeasure_UncertaintyIncludesSystematicFloor(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	obsTime := testPrior().T0 + 0.11*testPrior().P
	params := testParams(obsTime, 0)
	obs := testutil.SynthSpectrum(c.Model(), params, grid(), flatContinuum, 0, 1, obsTime, 0)

	res, err := c.Measure(obs)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}

	// Never below the floor, and on near-exact data essentially the floor.
	if res.Uncertainty < 200 {
		t.Errorf("uncertainty %g below systematic floor", res.Uncertainty)
	}
	statVar := res.Uncertainty*res.Uncertainty - 200*200
	if statVar < -1e-6 {
		t.Errorf("negative statistical variance %g", statVar)
	}
}

func TestMeasure_VelocityRespectsUpperBound(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	obsTime := testPrior().T0 + 0.47*testPrior().P
	params := testParams(obsTime, 0)
	obs := testutil.SynthSpectrum(c.Model(), params, grid(), flatContinuum, 0.05, 3, obsTime, 0)

	res, err := c.Measure(obs)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if res.Params[0] > 0 {
		t.Errorf("fitted velocity parameter %g violates upper bound", res.Params[0])
	}
	for i := 3; i < 8; i++ {
		if res.Params[i] < 0 {
			t.Errorf("narrow amplitude %d is negative: %g", i, res.Params[i])
		}
	}
}

func TestMeasure_EmptyWindowIsConfigError(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	// A spectrum far away from the fit window.
	wl := testutil.Linspace(6000, 6100, 200)
	obs := &spectrum.Observation{
		Wavelength: wl,
		Flux:       make([]float64, len(wl)),
		FluxErr:    make([]float64, len(wl)),
	}
	for i := range obs.FluxErr {
		obs.Flux[i] = 1
		obs.FluxErr[i] = 0.1
	}

	_, err = c.Measure(obs)
	if !errors.Is(err, spectrum.ErrEmptyWindow) {
		t.Errorf("got %v, want ErrEmptyWindow", err)
	}
}

func TestMeasure_BarycentricCorrectionAddedBack(t *testing.T) {
	c, err := NewCalculator(Config{Prior: testPrior()})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	obsTime := testPrior().T0 + 0.29*testPrior().P
	const baryVel = -15000.0
	params := testParams(obsTime, baryVel)
	obs := testutil.SynthSpectrum(c.Model(), params, grid(), flatContinuum, 0, 2, obsTime, baryVel)

	res, err := c.Measure(obs)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	want := params[0] + baryVel
	if math.Abs(res.Velocity-want) > 50 {
		t.Errorf("velocity: got %g, want %g", res.Velocity, want)
	}
}

func TestMeasureSeries(t *testing.T) {
	prior := testPrior()
	c, err := NewCalculator(Config{Prior: prior})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}

	const n = 6
	observations := make([]*spectrum.Observation, n)
	for i := 0; i < n; i++ {
		obsTime := prior.T0 + float64(i)*0.37*prior.P
		params := testParams(obsTime, 0)
		observations[i] = testutil.SynthSpectrum(c.Model(), params, grid(), flatContinuum, 0.05, int64(i+1), obsTime, 0)
	}

	var calls int
	series, results, err := c.MeasureSeries(observations, func(done, total int) {
		calls++
		if total != n {
			t.Errorf("progress total: got %d, want %d", total, n)
		}
	})
	if err != nil {
		t.Fatalf("MeasureSeries: %v", err)
	}
	if len(series) != n || len(results) != n {
		t.Fatalf("got %d series points, %d results", len(series), len(results))
	}
	if calls != n {
		t.Errorf("progress calls: got %d, want %d", calls, n)
	}
	if err := series.Validate(); err != nil {
		t.Errorf("series invariant: %v", err)
	}
}
