package cleaner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Harrykjg-physics/MAST-ML/frame"
	"github.com/Harrykjg-physics/MAST-ML/ppca"
)

var nan = math.NaN()

func testFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New([]string{"a", "b", "c"}, mat.NewDense(4, 3, []float64{
		1, nan, 10,
		2, 5, 10,
		3, 6, 10,
		4, 7, 10,
	}))
	require.NoError(t, err)
	return f
}

func TestDropRows(t *testing.T) {
	out, err := DropRows(testFrame(t))
	require.NoError(t, err)
	r, _ := out.Dims()
	require.Equal(t, 3, r)
	a, err := out.Column("a")
	require.NoError(t, err)
	require.Equal(t, []float64{2, 3, 4}, a)
}

func TestDropColumns(t *testing.T) {
	out, err := DropColumns(testFrame(t))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, out.Names())

	all, err := frame.FromColumns([]string{"x"}, [][]float64{{nan, 1}})
	require.NoError(t, err)
	_, err = DropColumns(all)
	require.ErrorIs(t, err, ErrAllRemoved)
}

func TestDropConstant(t *testing.T) {
	out, err := DropConstant(testFrame(t))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, out.Names())
}

func TestImputeMean(t *testing.T) {
	out, err := Impute(testFrame(t), Mean, nil)
	require.NoError(t, err)
	b, err := out.Column("b")
	require.NoError(t, err)
	require.Equal(t, 6.0, b[0]) // mean of 5, 6, 7
}

func TestImputeMedian(t *testing.T) {
	f, err := frame.FromColumns([]string{"x"}, [][]float64{{1, 2, nan, 100}})
	require.NoError(t, err)
	out, err := Impute(f, Median, nil)
	require.NoError(t, err)
	x, err := out.Column("x")
	require.NoError(t, err)
	require.Equal(t, 2.0, x[2])
}

func TestImputeLeaveOut(t *testing.T) {
	out, err := Impute(testFrame(t), Mean, []string{"c"})
	require.NoError(t, err)
	// Held-out columns reattach after the imputed ones.
	require.Equal(t, []string{"a", "b", "c"}, out.Names())
	c, err := out.Column("c")
	require.NoError(t, err)
	require.Equal(t, []float64{10, 10, 10, 10}, c)
}

func TestImputePPCA(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	n, d := 80, 5
	raw := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		z := rng.NormFloat64()
		for j := 0; j < d; j++ {
			raw.Set(i, j, z*float64(j+1)+0.05*rng.NormFloat64())
		}
	}
	missing := 0
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if rng.Float64() < 0.08 {
				raw.Set(i, j, nan)
				missing++
			}
		}
	}
	require.Greater(t, missing, 0)

	names := []string{"f0", "f1", "f2", "f3", "y"}
	f, err := frame.New(names, raw)
	require.NoError(t, err)

	out, model, err := ImputePPCA(f, []string{"y"}, ppca.FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)
	require.True(t, model.Converged)
	require.Equal(t, []string{"f0", "f1", "f2", "f3", "y"}, out.Names())

	// No missing values remain in the imputed columns.
	m := out.Mat()
	for i := 0; i < n; i++ {
		for j := 0; j < 4; j++ {
			require.False(t, math.IsNaN(m.At(i, j)))
		}
	}

	ev, err := model.ExplainedVar()
	require.NoError(t, err)
	require.NotEmpty(t, ev)
}

func TestImputePPCADropsSparseColumns(t *testing.T) {
	rng := rand.New(rand.NewSource(32))
	n := 30
	cols := [][]float64{make([]float64, n), make([]float64, n), make([]float64, n)}
	for i := 0; i < n; i++ {
		v := rng.NormFloat64()
		cols[0][i] = v + 0.1*rng.NormFloat64()
		cols[1][i] = -v + 0.1*rng.NormFloat64()
		cols[2][i] = nan // never observed
	}
	f, err := frame.FromColumns([]string{"p", "q", "empty"}, cols)
	require.NoError(t, err)

	out, model, err := ImputePPCA(f, nil, ppca.FitConfig{MinObs: 5, RNG: rng})
	require.NoError(t, err)
	require.Equal(t, []string{"p", "q"}, out.Names())
	require.Equal(t, []int{0, 1}, model.Retained)
}
