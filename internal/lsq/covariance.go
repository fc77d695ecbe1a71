package lsq

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateJacobian is returned when every singular value of the
// Jacobian falls below the truncation threshold, leaving no numerically
// determined directions in parameter space.
var ErrDegenerateJacobian = errors.New("lsq: jacobian has no usable singular values")

// Covariance recovers the parameter covariance matrix from the Jacobian at
// a least-squares optimum via truncated singular value decomposition.
//
// Singular values below eps * max(m, n) * s_max are discarded; the
// covariance is reconstructed from the surviving right singular vectors as
// V diag(1/s^2) V^T and multiplied by scale (typically the reduced
// chi-square of the fit). Directions that were truncated contribute zero,
// so a rank-deficient Jacobian yields zero variance along its null space
// rather than a spurious finite value; the returned rank tells the caller
// how many directions survived.
func Covariance(jac *mat.Dense, scale float64) (*mat.SymDense, int, error) {
	m, n := jac.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(jac, mat.SVDThin); !ok {
		return nil, 0, ErrDegenerateJacobian
	}

	s := svd.Values(nil)
	if len(s) == 0 || s[0] == 0 {
		return nil, 0, ErrDegenerateJacobian
	}

	eps := math.Nextafter(1, 2) - 1
	tol := eps * float64(max(m, n)) * s[0]

	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	if rank == 0 {
		return nil, 0, ErrDegenerateJacobian
	}

	var v mat.Dense
	svd.VTo(&v)

	cov := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			var sum float64
			for k := 0; k < rank; k++ {
				sum += v.At(a, k) * v.At(b, k) / (s[k] * s[k])
			}
			cov.SetSym(a, b, scale*sum)
		}
	}

	return cov, rank, nil
}
