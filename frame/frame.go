// Package frame provides a small column-labeled wrapper around a dense
// numeric matrix: named column selection, concatenation, and retrieval of
// a column as a vector.  Missing values are NaN, matching the imputation
// packages.
package frame

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownColumn is returned when a named column does not exist.
	ErrUnknownColumn = errors.New("frame: unknown column")

	// ErrShape is returned when names and data dimensions disagree, or
	// when concatenating frames with different row counts.
	ErrShape = errors.New("frame: shape mismatch")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("frame: duplicate column name")
)

// Frame couples column names with an N x D matrix.  Rows are observations,
// columns are named variables.
type Frame struct {
	names []string
	index map[string]int
	data  *mat.Dense
}

// New wraps data with the given column names.  The matrix is not copied.
func New(names []string, data *mat.Dense) (*Frame, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil data", ErrShape)
	}
	_, c := data.Dims()
	if c != len(names) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrShape, len(names), c)
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		index[name] = i
	}
	return &Frame{names: append([]string(nil), names...), index: index, data: data}, nil
}

// FromColumns builds a frame from named column vectors, which must all
// have the same length.
func FromColumns(names []string, cols [][]float64) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrShape, len(names), len(cols))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrShape)
	}
	n := len(cols[0])
	for _, col := range cols {
		if len(col) != n {
			return nil, fmt.Errorf("%w: ragged columns", ErrShape)
		}
	}
	data := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		data.SetCol(j, col)
	}
	return New(names, data)
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Dims returns the row and column counts.
func (f *Frame) Dims() (int, int) {
	return f.data.Dims()
}

// Mat returns the backing matrix.  It is shared, not copied.
func (f *Frame) Mat() *mat.Dense {
	return f.data
}

// Column returns a copy of the named column as a vector.
func (f *Frame) Column(name string) ([]float64, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return mat.Col(nil, j, f.data), nil
}

// Select returns a new frame holding copies of the named columns, in the
// given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	n, _ := f.data.Dims()
	data := mat.NewDense(n, len(names), nil)
	for k, name := range names {
		j, ok := f.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		data.SetCol(k, mat.Col(nil, j, f.data))
	}
	return New(names, data)
}

// Drop returns a new frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	skip := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := f.index[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		skip[name] = true
	}
	var keep []string
	for _, name := range f.names {
		if !skip[name] {
			keep = append(keep, name)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: all columns dropped", ErrShape)
	}
	return f.Select(keep...)
}

// Concat returns a new frame with the columns of f followed by the columns
// of g.  Both frames must have the same number of rows.
func (f *Frame) Concat(g *Frame) (*Frame, error) {
	fr, fc := f.data.Dims()
	gr, gc := g.data.Dims()
	if fr != gr {
		return nil, fmt.Errorf("%w: %d rows vs %d rows", ErrShape, fr, gr)
	}
	data := mat.NewDense(fr, fc+gc, nil)
	for j := 0; j < fc; j++ {
		data.SetCol(j, mat.Col(nil, j, f.data))
	}
	for j := 0; j < gc; j++ {
		data.SetCol(fc+j, mat.Col(nil, j, g.data))
	}
	return New(append(f.Names(), g.names...), data)
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out, _ := New(f.names, mat.DenseCopyOf(f.data))
	return out
}
