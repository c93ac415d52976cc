// Package pca provides plain principal component analysis for
// dimensionality reduction of fully observed data.  The components are
// linear combinations of the input features, so the reduced variables
// carry no physical meaning.  For matrices with missing entries use the
// ppca package instead.
package pca

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNotFitted is returned by Transform before Fit.
var ErrNotFitted = errors.New("pca: model is not fitted")

// PCA holds a fitted principal component basis.
type PCA struct {
	// Components holds one principal direction per column (D x k).
	Components *mat.Dense

	// Means is the per-feature mean removed before projection.
	Means []float64

	// SingularValues are the singular values of the centered data for the
	// kept components.
	SingularValues []float64

	// VarExplained is the fraction of total variance captured by each
	// kept component, in order.
	VarExplained []float64
}

// Fit computes the top ncomp principal components of x.  ncomp of zero
// keeps every component.
func Fit(x mat.Matrix, ncomp int) (*PCA, error) {
	n, d := x.Dims()
	if n < 2 || d == 0 {
		return nil, fmt.Errorf("pca: need at least two rows, got %dx%d", n, d)
	}
	if ncomp <= 0 || ncomp > d {
		ncomp = d
	}
	if ncomp > n {
		ncomp = n
	}

	means := make([]float64, d)
	for j := 0; j < d; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += x.At(i, j)
		}
		means[j] = s / float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, x.At(i, j)-means[j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(centered, mat.SVDThin) {
		return nil, fmt.Errorf("pca: SVD factorization failed")
	}
	sv := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	var total float64
	for _, s := range sv {
		total += s * s
	}

	comps := mat.NewDense(d, ncomp, nil)
	kept := make([]float64, ncomp)
	varExp := make([]float64, ncomp)
	for k := 0; k < ncomp; k++ {
		comps.SetCol(k, mat.Col(nil, k, &v))
		kept[k] = sv[k]
		if total > 0 {
			varExp[k] = sv[k] * sv[k] / total
		}
	}

	return &PCA{
		Components:     comps,
		Means:          means,
		SingularValues: kept,
		VarExplained:   varExp,
	}, nil
}

// Transform centers x with the fitted means and projects it onto the kept
// components, returning an n x k score matrix.
func (p *PCA) Transform(x mat.Matrix) (*mat.Dense, error) {
	if p == nil || p.Components == nil {
		return nil, ErrNotFitted
	}
	n, d := x.Dims()
	if d != len(p.Means) {
		return nil, fmt.Errorf("pca: %d features, fitted with %d", d, len(p.Means))
	}

	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, x.At(i, j)-p.Means[j])
		}
	}
	var out mat.Dense
	out.Mul(centered, p.Components)
	return &out, nil
}

// CumulativeExplained returns the running sum of VarExplained.
func (p *PCA) CumulativeExplained() []float64 {
	out := make([]float64, len(p.VarExplained))
	var cum float64
	for i, v := range p.VarExplained {
		cum += v
		out[i] = cum
	}
	return out
}
