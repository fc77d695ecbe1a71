package core

import "math"

// SpeedOfLight is the light-speed constant used by all Doppler transforms,
// in m/s. The round 3e8 value is deliberate: fitted velocities are defined
// relative to this constant and must not drift if the physical value changes.
const SpeedOfLight = 3e8

// sigmaPerFWHM converts a Gaussian full width at half maximum to sigma.
var sigmaPerFWHM = 1 / (2 * math.Sqrt(2*math.Ln2))

// DopplerShift returns the observed wavelength of a feature at rest
// wavelength lambda moving at radial velocity v (m/s, positive receding).
func DopplerShift(lambda, v float64) float64 {
	return lambda * (1 + v/SpeedOfLight)
}

// GaussianSigma returns the Gaussian sigma, in wavelength units, of a line
// at rest wavelength lambda whose velocity full width at half maximum is
// fwhm (m/s).
func GaussianSigma(fwhm, lambda float64) float64 {
	return fwhm * lambda / SpeedOfLight * sigmaPerFWHM
}
