// Package spectrum holds the calibrated spectrum observation type and the
// continuum-estimation utilities used to prepare a spectrum for line
// fitting.
//
// The package does not read instrument files. Observations arrive fully
// calibrated, with times on a uniform standard and the barycentric velocity
// correction attached as a scalar.
package spectrum
