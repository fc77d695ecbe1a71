// Package posterior holds posterior sample sets for the circular-orbit
// model, sampler health diagnostics, and the cycle-count disambiguation of
// the reference epoch.
package posterior
