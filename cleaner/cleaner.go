// Package cleaner removes or fills missing values in labeled frames.  The
// simple strategies (row/column removal, mean or median fill) are purely
// local; ImputePPCA delegates to the probabilistic PCA model for a
// structure-aware reconstruction.
package cleaner

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/Harrykjg-physics/MAST-ML/frame"
	"github.com/Harrykjg-physics/MAST-ML/ppca"
)

// ErrAllRemoved is returned when a removal pass leaves nothing behind.
var ErrAllRemoved = errors.New("cleaner: nothing left after removal")

// Strategy selects the fill rule used by Impute.
type Strategy uint8

const (
	Mean Strategy = iota
	Median
)

// DropRows returns a frame without any row that contains a missing value.
func DropRows(f *frame.Frame) (*frame.Frame, error) {
	m := f.Mat()
	r, c := m.Dims()

	var keep []int
	for i := 0; i < r; i++ {
		ok := true
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, ErrAllRemoved
	}

	out := mat.NewDense(len(keep), c, nil)
	for k, i := range keep {
		for j := 0; j < c; j++ {
			out.Set(k, j, m.At(i, j))
		}
	}
	return frame.New(f.Names(), out)
}

// DropColumns returns a frame without any column that contains a missing
// value.
func DropColumns(f *frame.Frame) (*frame.Frame, error) {
	m := f.Mat()
	r, c := m.Dims()
	names := f.Names()

	var drop []string
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			if math.IsNaN(m.At(i, j)) {
				drop = append(drop, names[j])
				break
			}
		}
	}
	if len(drop) == len(names) {
		return nil, ErrAllRemoved
	}
	if len(drop) == 0 {
		return f.Clone(), nil
	}
	return f.Drop(drop...)
}

// DropConstant returns a frame without zero-variance columns.  Variance is
// computed over the non-missing entries; only an exactly zero variance
// drops a column.
func DropConstant(f *frame.Frame) (*frame.Frame, error) {
	m := f.Mat()
	_, c := m.Dims()
	names := f.Names()

	var drop []string
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, m)
		if nanVariance(col) == 0 {
			drop = append(drop, names[j])
		}
	}
	if len(drop) == len(names) {
		return nil, ErrAllRemoved
	}
	if len(drop) == 0 {
		return f.Clone(), nil
	}
	return f.Drop(drop...)
}

// Impute fills missing entries column by column with the mean or median of
// the observed entries.  Columns named in leaveOut are excluded from the
// fill and concatenated back unchanged after the imputed columns.
func Impute(f *frame.Frame, strategy Strategy, leaveOut []string) (*frame.Frame, error) {
	kept, held, err := split(f, leaveOut)
	if err != nil {
		return nil, err
	}

	m := mat.DenseCopyOf(kept.Mat())
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, m)
		var fill float64
		switch strategy {
		case Mean:
			fill = nanMean(col)
		case Median:
			fill = nanMedian(col)
		default:
			return nil, fmt.Errorf("cleaner: unknown strategy %d", strategy)
		}
		for i := 0; i < r; i++ {
			if math.IsNaN(m.At(i, j)) {
				m.Set(i, j, fill)
			}
		}
	}

	out, err := frame.New(kept.Names(), m)
	if err != nil {
		return nil, err
	}
	return rejoin(out, held)
}

// ImputePPCA fills missing entries by fitting a probabilistic PCA model to
// the kept columns and de-standardizing its completed dataset.  Columns
// the model drops for having too few observations stay dropped; columns
// named in leaveOut are concatenated back unchanged.  The fitted model is
// returned alongside the frame so callers can inspect the explained
// variance or persist the loadings.
func ImputePPCA(f *frame.Frame, leaveOut []string, cfg ppca.FitConfig) (*frame.Frame, *ppca.Model, error) {
	kept, held, err := split(f, leaveOut)
	if err != nil {
		return nil, nil, err
	}

	model, err := ppca.Fit(kept.Mat(), cfg)
	if err != nil {
		return nil, nil, err
	}

	rec, err := model.Reconstruction()
	if err != nil {
		return nil, nil, err
	}

	names := kept.Names()
	retained := make([]string, len(model.Retained))
	for k, j := range model.Retained {
		retained[k] = names[j]
	}
	out, err := frame.New(retained, rec)
	if err != nil {
		return nil, nil, err
	}
	out, err = rejoin(out, held)
	if err != nil {
		return nil, nil, err
	}
	return out, model, nil
}

func split(f *frame.Frame, leaveOut []string) (*frame.Frame, *frame.Frame, error) {
	if len(leaveOut) == 0 {
		return f, nil, nil
	}
	kept, err := f.Drop(leaveOut...)
	if err != nil {
		return nil, nil, err
	}
	held, err := f.Select(leaveOut...)
	if err != nil {
		return nil, nil, err
	}
	return kept, held, nil
}

func rejoin(f, held *frame.Frame) (*frame.Frame, error) {
	if held == nil {
		return f, nil
	}
	return f.Concat(held)
}

func nanMean(x []float64) float64 {
	var sum float64
	var n int
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	return sum / float64(n)
}

func nanMedian(x []float64) float64 {
	var obs []float64
	for _, v := range x {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	if len(obs) == 0 {
		return math.NaN()
	}
	sort.Float64s(obs)
	n := len(obs)
	if n%2 == 1 {
		return obs[n/2]
	}
	return (obs[n/2-1] + obs[n/2]) / 2
}

// nanVariance is the sample variance of the observed entries, NaN when
// fewer than two are observed.
func nanVariance(x []float64) float64 {
	mean := nanMean(x)
	var ssq float64
	var n int
	for _, v := range x {
		if !math.IsNaN(v) {
			e := v - mean
			ssq += e * e
			n++
		}
	}
	if n < 2 {
		return math.NaN()
	}
	return ssq / float64(n-1)
}
