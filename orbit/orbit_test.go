package orbit

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func referenceParams() Params {
	return Params{T0: 2455444.7284, P: 0.7873143, Gamma: -113700, K: 74600}
}

func TestParams_Validate(t *testing.T) {
	if err := referenceParams().Validate(); err != nil {
		t.Errorf("valid params: got %v", err)
	}

	bad := referenceParams()
	bad.P = 0
	if err := bad.Validate(); !errors.Is(err, ErrNonPositiveP) {
		t.Errorf("zero period: got %v, want ErrNonPositiveP", err)
	}

	bad = referenceParams()
	bad.K = math.NaN()
	if err := bad.Validate(); !errors.Is(err, ErrNonFiniteParams) {
		t.Errorf("NaN K: got %v, want ErrNonFiniteParams", err)
	}
}

func TestVelocity_Periodic(t *testing.T) {
	p := referenceParams()
	for _, dt := range []float64{0, 0.1, 0.33, 2.7, 100.123} {
		t1 := p.T0 + dt
		v1 := p.Velocity(t1)
		v2 := p.Velocity(t1 + p.P)
		if !almostEqual(v1, v2, 1e-6) {
			t.Errorf("period shift at dt=%g: %g vs %g", dt, v1, v2)
		}
	}
}

func TestVelocity_PhaseFoldInvariance(t *testing.T) {
	p := referenceParams()
	for _, n := range []float64{-3, -1, 1, 2, 17} {
		shifted := p
		shifted.T0 = p.T0 + n*p.P
		for _, dt := range []float64{0.05, 0.4, 1.9} {
			tt := p.T0 + dt
			if !almostEqual(p.Velocity(tt), shifted.Velocity(tt), 1e-5) {
				t.Errorf("n=%g dt=%g: %g vs %g", n, dt, p.Velocity(tt), shifted.Velocity(tt))
			}
		}
	}
}

func TestVelocity_QuadraturePoints(t *testing.T) {
	p := referenceParams()

	if got := p.Velocity(p.T0); !almostEqual(got, p.Gamma, 1e-6) {
		t.Errorf("v(T0): got %g, want gamma %g", got, p.Gamma)
	}
	if got := p.Velocity(p.T0 + p.P/4); !almostEqual(got, p.Gamma+p.K, 1e-6) {
		t.Errorf("v(T0+P/4): got %g, want %g", got, p.Gamma+p.K)
	}
	if got := p.Velocity(p.T0 + 3*p.P/4); !almostEqual(got, p.Gamma-p.K, 1e-6) {
		t.Errorf("v(T0+3P/4): got %g, want %g", got, p.Gamma-p.K)
	}
}

func TestPhase(t *testing.T) {
	p := referenceParams()
	if got := p.Phase(p.T0); !almostEqual(got, 0, tolerance) {
		t.Errorf("Phase(T0): got %g", got)
	}
	if got := p.Phase(p.T0 - p.P/4); !almostEqual(got, 0.75, 1e-9) {
		t.Errorf("Phase(T0-P/4): got %g, want 0.75", got)
	}
}

func TestSeries_Validate(t *testing.T) {
	if err := (Series{}).Validate(); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("empty: got %v, want ErrEmptySeries", err)
	}

	unordered := Series{
		{Time: 2, Velocity: 0, Sigma: 1},
		{Time: 1, Velocity: 0, Sigma: 1},
	}
	if err := unordered.Validate(); !errors.Is(err, ErrUnorderedSeries) {
		t.Errorf("unordered: got %v, want ErrUnorderedSeries", err)
	}

	badSigma := Series{{Time: 1, Velocity: 0, Sigma: 0}}
	if err := badSigma.Validate(); err == nil {
		t.Error("zero sigma: expected error")
	}
}

func synthSeries(p Params, n int, span float64) Series {
	s := make(Series, n)
	for i := range s {
		tt := p.T0 + span*float64(i)/float64(n-1)
		s[i] = Point{Time: tt, Velocity: p.Velocity(tt), Sigma: 500}
	}
	return s
}

func TestFit_RecoversExactParams(t *testing.T) {
	truth := referenceParams()
	s := synthSeries(truth, 40, 10*truth.P)

	init := truth
	init.T0 += 0.02
	init.P += 0.002
	init.Gamma += 3000
	init.K -= 4000

	res, err := Fit(s, init)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !res.Converged {
		t.Error("expected convergence on noise-free data")
	}
	if !almostEqual(res.Params.T0, truth.T0, 1e-5) {
		t.Errorf("T0: got %.6f, want %.6f", res.Params.T0, truth.T0)
	}
	if !almostEqual(res.Params.P, truth.P, 1e-6) {
		t.Errorf("P: got %.7f, want %.7f", res.Params.P, truth.P)
	}
	if !almostEqual(res.Params.Gamma, truth.Gamma, 1) {
		t.Errorf("Gamma: got %g, want %g", res.Params.Gamma, truth.Gamma)
	}
	if !almostEqual(res.Params.K, truth.K, 1) {
		t.Errorf("K: got %g, want %g", res.Params.K, truth.K)
	}
	if res.ReducedChiSquare > 1e-10 {
		t.Errorf("reduced chi-square on exact data: got %g", res.ReducedChiSquare)
	}
}

func TestFit_InvalidInputs(t *testing.T) {
	truth := referenceParams()
	s := synthSeries(truth, 10, 5)

	if _, err := Fit(Series{}, truth); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("empty series: got %v", err)
	}
	bad := truth
	bad.P = -1
	if _, err := Fit(s, bad); !errors.Is(err, ErrNonPositiveP) {
		t.Errorf("bad init: got %v", err)
	}
}
