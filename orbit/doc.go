// Package orbit models the radial-velocity curve of a circular binary
// orbit and fits it to a velocity time series.
//
// The model is v(t) = K sin(2 pi (t - T0) / P) + gamma. The fitter is an
// unconstrained least-squares solve; multimodality over the period is dealt
// with downstream by the posterior's bounded priors, not by bounding this
// fit.
package orbit
