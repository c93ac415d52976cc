package crossval

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is an ordinary least squares baseline satisfying the
// Regressor contract, so cross-validation runs do not depend on an
// external model.
type LinearRegression struct {
	beta *mat.VecDense // intercept followed by one weight per feature
}

// NewLinearRegression returns an unfitted least-squares regressor.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit solves the least-squares problem for an intercept plus one weight
// per column of x.  Any previous fit is discarded.
func (lr *LinearRegression) Fit(x mat.Matrix, y []float64) error {
	n, c := x.Dims()
	if len(y) != n {
		return fmt.Errorf("crossval: %d rows but %d targets", n, len(y))
	}

	aug := mat.NewDense(n, c+1, nil)
	for i := 0; i < n; i++ {
		aug.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			aug.Set(i, j+1, x.At(i, j))
		}
	}

	var qr mat.QR
	qr.Factorize(aug)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, mat.NewVecDense(n, y)); err != nil {
		return fmt.Errorf("crossval: least squares solve: %w", err)
	}

	beta := mat.NewVecDense(c+1, nil)
	for j := 0; j <= c; j++ {
		beta.SetVec(j, sol.At(j, 0))
	}
	lr.beta = beta
	return nil
}

// Predict returns the fitted linear response for each row of x.
func (lr *LinearRegression) Predict(x mat.Matrix) ([]float64, error) {
	if lr.beta == nil {
		return nil, fmt.Errorf("crossval: regressor is not fitted")
	}
	n, c := x.Dims()
	if c+1 != lr.beta.Len() {
		return nil, fmt.Errorf("crossval: %d features, fitted with %d", c, lr.beta.Len()-1)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := lr.beta.AtVec(0)
		for j := 0; j < c; j++ {
			v += lr.beta.AtVec(j+1) * x.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}
