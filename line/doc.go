// Package line models a blended emission-line complex as a sum of Gaussian
// components tied to a single radial velocity.
//
// The component table is declarative: each entry carries a rest wavelength,
// a velocity full width at half maximum, and a flag saying whether its
// center is Doppler-locked to the shared velocity parameter or fitted
// freely. Component widths are precomputed from the table and are never fit
// parameters.
package line
