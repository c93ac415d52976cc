package ppca

import "errors"

var (
	// ErrNotFitted is returned when an operation that requires a fitted
	// model is invoked before Fit has run.
	ErrNotFitted = errors.New("ppca: model is not fitted")

	// ErrEmptyData is returned when the input matrix has no rows or columns.
	ErrEmptyData = errors.New("ppca: empty input matrix")

	// ErrNoRetainedColumns is returned when every column fails the
	// minimum-observation filter.
	ErrNoRetainedColumns = errors.New("ppca: no column has enough observed entries")

	// ErrDimension is returned when the requested latent dimension exceeds
	// the number of retained columns, or a warm-start model has loadings
	// of the wrong shape.
	ErrDimension = errors.New("ppca: invalid latent dimension")
)
