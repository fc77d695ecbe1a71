// Package nuts implements the No-U-Turn sampler: Hamiltonian Monte Carlo
// with recursive trajectory doubling, dual-averaging step-size adaptation,
// and a dense mass matrix estimated during warmup.
//
// The target is supplied as a joint log-density with gradient on an
// unconstrained parameter space; bounded parameters must be transformed by
// the caller before they reach this package.
package nuts
