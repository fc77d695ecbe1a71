// Package ephemeris derives a circular-orbit ephemeris from a radial
// velocity time series: a least-squares point estimate, a posterior over
// the orbit parameters sampled with NUTS, and the cycle-count
// disambiguation of the reference epoch.
package ephemeris

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-rv/internal/nuts"
	"github.com/cwbudde/algo-rv/orbit"
	"github.com/cwbudde/algo-rv/stats/posterior"
)

// Errors returned by configuration validation.
var (
	ErrBadBand = errors.New("ephemeris: prior band must satisfy lo < hi")
	ErrBadP    = errors.New("ephemeris: period band must be positive")
)

// Config controls the full orbit-inference run. Zero values select
// defaults.
type Config struct {
	Prior orbit.Params // coarse ephemeris seeding the point fit

	PBand     [2]float64 // period prior band, default [0.5, 1.0] d
	GammaBand [2]float64 // systemic-velocity prior band, default [-2e5, 0] m/s
	KBand     [2]float64 // semi-amplitude prior band, default [0, 2e5] m/s
	EfacBand  [2]float64 // error-inflation prior band, default [0.5, 10]

	// T0WindowPeriods bounds the T0 prior to +- this many estimated
	// periods around the point estimate, keeping aliased solutions out of
	// the posterior. Default 3.
	T0WindowPeriods float64

	Chains  int    // parallel chains, default 4
	Warmup  int    // per chain, default 1000
	Samples int    // per chain, default 1000
	Seed    uint64 // base seed split across chains, default 1

	MaxCycles int // epoch disambiguation scan half-range, default 2000
}

func (c Config) withDefaults() Config {
	if c.PBand == ([2]float64{}) {
		c.PBand = [2]float64{0.5, 1.0}
	}
	if c.GammaBand == ([2]float64{}) {
		c.GammaBand = [2]float64{-2e5, 0}
	}
	if c.KBand == ([2]float64{}) {
		c.KBand = [2]float64{0, 2e5}
	}
	if c.EfacBand == ([2]float64{}) {
		c.EfacBand = [2]float64{0.5, 10}
	}
	if c.T0WindowPeriods <= 0 {
		c.T0WindowPeriods = 3
	}
	if c.Chains <= 0 {
		c.Chains = 4
	}
	if c.Warmup <= 0 {
		c.Warmup = 1000
	}
	if c.Samples <= 0 {
		c.Samples = 1000
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.MaxCycles <= 0 {
		c.MaxCycles = 2000
	}
	return c
}

func (c Config) validate() error {
	if c.PBand[0] <= 0 {
		return ErrBadP
	}
	for _, band := range [][2]float64{c.PBand, c.GammaBand, c.KBand, c.EfacBand} {
		if band[0] >= band[1] {
			return ErrBadBand
		}
	}
	if c.EfacBand[0] <= 0 {
		return fmt.Errorf("ephemeris: efac band must be positive: [%g, %g]", c.EfacBand[0], c.EfacBand[1])
	}
	return nil
}

// Result holds the complete orbit inference.
type Result struct {
	Fit       *orbit.FitResult
	Posterior posterior.Set
	BFMI      []float64 // per chain
	Epoch     *posterior.EpochResult
}

// Params returns the posterior-mean orbit parameters with the
// disambiguated reference epoch.
func (r *Result) Params() orbit.Params {
	m := r.Posterior.Merged()
	return orbit.Params{
		T0:    posterior.Summarize(r.Epoch.T0).Mean,
		P:     posterior.Summarize(m.P).Mean,
		Gamma: posterior.Summarize(m.Gamma).Mean,
		K:     posterior.Summarize(m.K).Mean,
	}
}

// Run executes the full pipeline on a velocity time series: point fit,
// multi-chain posterior sampling seeded at the point estimate, and epoch
// disambiguation on the merged samples.
func Run(series orbit.Series, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	fit, err := orbit.Fit(series, cfg.Prior)
	if err != nil {
		return nil, err
	}

	set, err := SamplePosterior(series, fit.Params, cfg)
	if err != nil {
		return nil, err
	}

	merged := set.Merged()
	epoch, err := posterior.DisambiguateEpoch(merged.T0, merged.P, cfg.MaxCycles)
	if err != nil {
		return nil, err
	}

	bfmi := make([]float64, len(set.Chains))
	for i := range set.Chains {
		bfmi[i] = posterior.BFMI(set.Chains[i].Energies)
	}

	return &Result{
		Fit:       fit,
		Posterior: set,
		BFMI:      bfmi,
		Epoch:     epoch,
	}, nil
}

// SamplePosterior draws the posterior over (T0, P, gamma, K, efac) with
// independent parallel NUTS chains, each initialized at the point
// estimate. Chains share nothing after initialization; results are
// aggregated once all chains complete.
func SamplePosterior(series orbit.Series, estimate orbit.Params, cfg Config) (posterior.Set, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return posterior.Set{}, err
	}
	if err := series.Validate(); err != nil {
		return posterior.Set{}, err
	}
	if err := estimate.Validate(); err != nil {
		return posterior.Set{}, err
	}

	model := newOrbitModel(series, estimate, cfg)
	init := model.unconstrainedInit()

	chains := make([]posterior.Chain, cfg.Chains)
	errs := make([]error, cfg.Chains)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Chains; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := nuts.Sample(model.logProb, init, nuts.Config{
				Warmup:  cfg.Warmup,
				Samples: cfg.Samples,
				Seed:    chainSeed(cfg.Seed, i),
			})
			if err != nil {
				errs[i] = err
				return
			}
			chains[i] = model.constrainChain(raw)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return posterior.Set{}, fmt.Errorf("ephemeris: chain %d: %w", i, err)
		}
	}

	set := posterior.Set{Chains: chains}
	if err := set.Validate(); err != nil {
		return posterior.Set{}, err
	}
	return set, nil
}

// chainSeed derives an independent stream seed per chain from the base
// seed (splitmix64 increment).
func chainSeed(base uint64, chain int) uint64 {
	return base + uint64(chain)*0x9e3779b97f4a7c15
}

func clampInterior(v, lo, hi float64) float64 {
	margin := 1e-6 * (hi - lo)
	if v < lo+margin {
		return lo + margin
	}
	if v > hi-margin {
		return hi - margin
	}
	return v
}

func logit(u float64) float64 {
	return math.Log(u / (1 - u))
}
