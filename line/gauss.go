package line

import "math"

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// gaussExp evaluates exp(-0.5 * d^2) for a normalized offset d.
func gaussExp(d float64) float64 {
	return math.Exp(-0.5 * d * d)
}
