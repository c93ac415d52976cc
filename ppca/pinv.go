package ppca

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const eps = 2.220446049250313e-16

// pseudoInverse returns the Moore-Penrose pseudo-inverse of a, computed
// from its thin SVD.  Singular values below the rank tolerance are treated
// as zero, which keeps the M-step robust to a rank-deficient system.
func pseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("ppca: SVD factorization failed")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := rankTol(a, s)
	k := len(s)
	inv := mat.NewDense(k, k, nil)
	for i, sv := range s {
		if sv > tol {
			inv.Set(i, i, 1/sv)
		}
	}

	var tmp, out mat.Dense
	tmp.Mul(&v, inv)
	out.Mul(&tmp, u.T())
	return &out, nil
}

// orth returns an orthonormal basis for the column space of a: the left
// singular vectors whose singular values exceed the rank tolerance.
func orth(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("ppca: SVD factorization failed")
	}
	s := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	tol := rankTol(a, s)
	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	if rank == 0 {
		return nil, fmt.Errorf("ppca: loadings collapsed to rank zero")
	}

	r, _ := u.Dims()
	return mat.DenseCopyOf(u.Slice(0, r, 0, rank)), nil
}

func rankTol(a mat.Matrix, s []float64) float64 {
	r, c := a.Dims()
	n := r
	if c > n {
		n = c
	}
	var mx float64
	for _, sv := range s {
		if sv > mx {
			mx = sv
		}
	}
	return float64(n) * eps * mx
}
