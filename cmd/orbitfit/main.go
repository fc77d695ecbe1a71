// Command orbitfit fits a circular orbit to a radial-velocity series and
// reports the posterior ephemeris.
//
// Usage:
//
//	orbitfit [flags] [velocities.csv]
//
// The input is CSV with one row per measurement: time, velocity, sigma
// (days, m/s, m/s). Lines starting with '#' and a leading header row are
// skipped. Without a file argument it reads from standard input.
//
// Examples:
//
//	orbitfit velocities.csv
//	orbitfit -pmin 0.5 -pmax 1.0 velocities.csv
//	orbitfit -fit-only velocities.csv
//	orbitfit -chains 8 -samples 2000 -seed 7 velocities.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-rv/measure/ephemeris"
	"github.com/cwbudde/algo-rv/orbit"
	"github.com/cwbudde/algo-rv/periodogram"
	"github.com/cwbudde/algo-rv/stats/posterior"
	"github.com/cwbudde/algo-rv/stats/series"
)

func main() {
	pmin := flag.Float64("pmin", 0.5, "shortest period considered [d]")
	pmax := flag.Float64("pmax", 1.0, "longest period considered [d]")
	period := flag.Float64("period", math.NaN(), "skip the periodogram and seed the fit with this period [d]")
	fitOnly := flag.Bool("fit-only", false, "stop after the least-squares fit, skip posterior sampling")
	chains := flag.Int("chains", 4, "number of independent sampler chains")
	warmup := flag.Int("warmup", 1000, "warmup iterations per chain")
	samples := flag.Int("samples", 1000, "posterior draws per chain")
	seed := flag.Uint64("seed", 1, "base random seed, split across chains")
	cycles := flag.Int("cycles", 2000, "half-range of the epoch disambiguation scan")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orbitfit [flags] [velocities.csv]\n\n")
		fmt.Fprintf(os.Stderr, "Fits a circular orbit to a radial-velocity time series and\n")
		fmt.Fprintf(os.Stderr, "samples the posterior ephemeris. Reads stdin without a file.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  orbitfit velocities.csv\n")
		fmt.Fprintf(os.Stderr, "  orbitfit -pmin 0.5 -pmax 1.0 velocities.csv\n")
		fmt.Fprintf(os.Stderr, "  orbitfit -fit-only velocities.csv\n")
	}
	flag.Parse()

	s, err := readSeries(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	prior, err := coarsePrior(s, *pmin, *pmax, *period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *fitOnly {
		fit, err := orbit.Fit(s, prior)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: fit: %v\n", err)
			os.Exit(1)
		}
		printFit(fit, s)
		return
	}

	result, err := ephemeris.Run(s, ephemeris.Config{
		Prior:     prior,
		PBand:     [2]float64{*pmin, *pmax},
		Chains:    *chains,
		Warmup:    *warmup,
		Samples:   *samples,
		Seed:      *seed,
		MaxCycles: *cycles,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	printFit(result.Fit, s)
	printPosterior(result)
}

// readSeries parses time, velocity, sigma rows, skipping comments and a
// non-numeric header line, and returns the series sorted by time.
func readSeries(path string) (orbit.Series, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 3

	var s orbit.Series
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		t, err0 := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		v, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		sig, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err0 != nil || err1 != nil || err2 != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("parse input: line %d: non-numeric field", line)
		}
		s = append(s, orbit.Point{Time: t, Velocity: v, Sigma: sig})
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Time < s[j].Time })
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func coarsePrior(s orbit.Series, pmin, pmax, period float64) (orbit.Params, error) {
	est, err := periodogram.Search(s, periodogram.Config{MinPeriod: pmin, MaxPeriod: pmax})
	if err != nil {
		return orbit.Params{}, fmt.Errorf("periodogram: %w", err)
	}
	p := est.CoarsePrior()
	if !math.IsNaN(period) {
		p.P = period
	}
	return p, nil
}

func printFit(fit *orbit.FitResult, s orbit.Series) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Least-squares fit\t\n")
	fmt.Fprintf(tw, "  T0\t%.6f d\n", fit.Params.T0)
	fmt.Fprintf(tw, "  P\t%.7f d\n", fit.Params.P)
	fmt.Fprintf(tw, "  gamma\t%.1f m/s\n", fit.Params.Gamma)
	fmt.Fprintf(tw, "  K\t%.1f m/s\n", fit.Params.K)
	fmt.Fprintf(tw, "  red. chi2\t%.3f\n", fit.ReducedChiSquare)
	fmt.Fprintf(tw, "  converged\t%v (%d iterations)\n", fit.Converged, fit.Iterations)
	if st, err := series.ResidualStats(s, fit.Params); err == nil {
		fmt.Fprintf(tw, "  residual RMS\t%.3f sigma\n", st.RMS)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}
}

func printPosterior(result *ephemeris.Result) {
	merged := result.Posterior.Merged()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\nPosterior\tmean\tstd\t16%%\t50%%\t84%%\n")
	for _, row := range []struct {
		name    string
		samples []float64
	}{
		{"T0 [d]", merged.T0},
		{"P [d]", merged.P},
		{"gamma [m/s]", merged.Gamma},
		{"K [m/s]", merged.K},
		{"efac", merged.Efac},
	} {
		sum := posterior.Summarize(row.samples)
		fmt.Fprintf(tw, "%s\t%.6g\t%.3g\t%.6g\t%.6g\t%.6g\n",
			row.name,
			sum.Mean,
			sum.Std,
			posterior.Quantile(row.samples, 0.16),
			posterior.Quantile(row.samples, 0.50),
			posterior.Quantile(row.samples, 0.84),
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}

	fmt.Printf("\nDivergences: %d\n", merged.Divergences)
	fmt.Printf("BFMI per chain:")
	for _, b := range result.BFMI {
		fmt.Printf(" %.3f", b)
	}
	fmt.Println()

	e := result.Epoch
	fmt.Printf("\nEpoch disambiguation: n = %d cycles, |corr(T0, P)| = %.4f\n",
		e.Cycles, e.Correlation)
	fmt.Printf("Ascending node: %.6f +/- %.6f d\n",
		e.AscendingNodeEpoch, e.Precision)
}
