// Package core provides shared numeric primitives for radial-velocity work.
//
// It holds the Doppler transform, the FWHM-to-sigma conversion used by the
// line model, and small comparison helpers shared across packages.
package core
