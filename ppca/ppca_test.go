package ppca

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// lowRank builds an n x d matrix with latent rank r plus Gaussian noise.
func lowRank(rng *rand.Rand, n, d, r int, noise float64) *mat.Dense {
	z := mat.NewDense(n, r, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < r; j++ {
			z.Set(i, j, rng.NormFloat64())
		}
	}
	w := mat.NewDense(r, d, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < d; j++ {
			w.Set(i, j, rng.NormFloat64())
		}
	}
	var x mat.Dense
	x.Mul(z, w)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			x.Set(i, j, x.At(i, j)+noise*rng.NormFloat64())
		}
	}
	return &x
}

func standardized(x *mat.Dense) *mat.Dense {
	means, stds := nanMoments(x)
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (x.At(i, j)-means[j])/stds[j])
		}
	}
	return out
}

func TestFitRecoversStandardization(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := standardized(lowRank(rng, 80, 5, 2, 0.05))

	m, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)

	for j := range m.Means {
		require.InDelta(t, 0, m.Means[j], 1e-8)
		require.InDelta(t, 1, m.Stds[j], 1e-8)
	}
	require.Greater(t, m.SS, 0.0)
	require.Less(t, m.SS, 0.5)
}

func TestFitFullyObservedRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := lowRank(rng, 60, 4, 2, 0.05)
	want := standardized(x)

	m, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)
	require.True(t, m.Converged)

	// With nothing missing, the completed dataset is exactly the
	// standardized input.
	r, c := want.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			require.Equal(t, want.At(i, j), m.Data.At(i, j))
		}
	}

	// The model reconstruction tracks the data closely at full latent
	// dimension.
	var recon mat.Dense
	recon.Mul(m.X, m.C.T())
	require.Less(t, sumSqDiff(&recon, m.Data)/float64(r*c), 0.5)
}

func TestObservedEntriesHeldFixed(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := lowRank(rng, 100, 6, 2, 0.05)
	orig := mat.DenseCopyOf(x)

	// Punch out ~10% of the entries.
	nan := 0
	for i := 0; i < 100; i++ {
		for j := 0; j < 6; j++ {
			if rng.Float64() < 0.1 {
				x.Set(i, j, math.NaN())
				nan++
			}
		}
	}
	require.Greater(t, nan, 0)

	m, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)
	require.Len(t, m.Retained, 6)

	// Observed entries stay pinned to their standardized input values;
	// missing entries come out finite.
	r, c := m.Data.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.Data.At(i, j)
			require.False(t, math.IsNaN(v))
			if m.Observed[i*c+j] {
				require.Equal(t, (orig.At(i, j)-m.Means[j])/m.Stds[j], v)
			}
		}
	}
}

func TestColumnDropping(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	x := lowRank(rng, 20, 4, 2, 0.05)

	// Column 2 keeps only 5 observed entries, below the default floor.
	for i := 5; i < 20; i++ {
		x.Set(i, 2, math.NaN())
	}

	m, err := Fit(x, FitConfig{RNG: rng})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 3}, m.Retained)

	_, c := m.Data.Dims()
	require.Equal(t, 3, c)
	require.Len(t, m.Means, 3)
}

func TestExplainedVarianceMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := lowRank(rng, 60, 5, 2, 0.1)

	m, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)

	ev, err := m.ExplainedVar()
	require.NoError(t, err)
	require.NotEmpty(t, ev)
	for i := 1; i < len(ev); i++ {
		require.GreaterOrEqual(t, ev[i], ev[i-1]-1e-12)
	}
	// Eigenvalues carry an n-1 divisor against a population total
	// variance, so the final fraction may exceed one by about 1/(n-1).
	require.LessOrEqual(t, ev[len(ev)-1], 1.0+0.05)
}

func TestConvergenceFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	x := lowRank(rng, 40, 3, 2, 0.05)

	// A huge tolerance is met on the first pass; the floor must still
	// force the loop through its minimum iterations.
	m, err := Fit(x, FitConfig{MinObs: 1, Tol: 1e6, RNG: rng})
	require.NoError(t, err)
	require.True(t, m.Converged)
	require.GreaterOrEqual(t, m.Iter, 6)
}

func TestReconstructionErrorMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	x := lowRank(rng, 60, 5, 2, 0.05)

	m, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)
	require.Len(t, m.ReconErr, m.Iter)

	// Fully observed at full latent dimension: each iteration's
	// reconstruction may not be worse than the last.
	for i := 1; i < len(m.ReconErr); i++ {
		require.LessOrEqual(t, m.ReconErr[i], m.ReconErr[i-1]*(1+1e-9),
			"iteration %d", i)
	}
}

func TestInfinityClamping(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := lowRank(rng, 30, 3, 2, 0.05)

	// Track the largest finite value, then plant infinities.
	mx := math.Inf(-1)
	r, c := x.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := x.At(i, j); v > mx {
				mx = v
			}
		}
	}
	x.Set(0, 0, math.Inf(1))
	x.Set(3, 1, math.Inf(-1))

	m, err := Fit(x, FitConfig{MinObs: 1, InPlace: true, RNG: rng})
	require.NoError(t, err)
	require.True(t, m.Converged)

	// In-place mode clamps the caller's matrix.
	require.Equal(t, mx, x.At(0, 0))
	require.Equal(t, mx, x.At(3, 1))
}

func TestCopyOnEntryDefault(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	x := lowRank(rng, 30, 3, 2, 0.05)
	x.Set(2, 2, math.Inf(1))

	_, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)
	require.True(t, math.IsInf(x.At(2, 2), 1))
}

func TestTargetDimCompression(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	x := lowRank(rng, 60, 5, 2, 0.05)

	m, err := Fit(x, FitConfig{TargetDim: 2, MinObs: 1, RNG: rng})
	require.NoError(t, err)

	_, d := m.C.Dims()
	require.Equal(t, 2, d)
	require.Len(t, m.EigVals, 2)

	proj, err := m.Transform(nil)
	require.NoError(t, err)
	_, pc := proj.Dims()
	require.Equal(t, 2, pc)
}

func TestTargetDimTooLarge(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	x := lowRank(rng, 30, 3, 2, 0.05)

	_, err := Fit(x, FitConfig{TargetDim: 7, MinObs: 1, RNG: rng})
	require.ErrorIs(t, err, ErrDimension)
}

func TestWarmStart(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	x := lowRank(rng, 60, 4, 2, 0.05)

	m1, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)

	m2, err := Fit(x, FitConfig{MinObs: 1, Warm: m1, RNG: rng})
	require.NoError(t, err)
	require.True(t, m2.Converged)

	// Mismatched warm loadings are rejected.
	_, err = Fit(x, FitConfig{TargetDim: 2, MinObs: 1, Warm: m1, RNG: rng})
	require.ErrorIs(t, err, ErrDimension)
}

func TestMaxIterCap(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	x := lowRank(rng, 60, 4, 2, 0.05)

	m, err := Fit(x, FitConfig{MinObs: 1, MaxIter: 3, Tol: 1e-12, RNG: rng})
	require.NoError(t, err)
	require.False(t, m.Converged)
	require.Equal(t, 3, m.Iter)
}

func TestNotFitted(t *testing.T) {
	var m Model

	_, err := m.Transform(nil)
	require.ErrorIs(t, err, ErrNotFitted)

	_, err = m.ExplainedVar()
	require.ErrorIs(t, err, ErrNotFitted)

	_, err = m.Standardize(mat.NewDense(1, 1, nil))
	require.ErrorIs(t, err, ErrNotFitted)

	_, err = m.Reconstruction()
	require.ErrorIs(t, err, ErrNotFitted)

	require.ErrorIs(t, m.Save("unused"), ErrNotFitted)
}

func TestEmptyInput(t *testing.T) {
	_, err := Fit(nil, FitConfig{})
	require.ErrorIs(t, err, ErrEmptyData)

	_, err = Fit(mat.NewDense(5, 2, nil), FitConfig{MinObs: 10})
	require.ErrorIs(t, err, ErrNoRetainedColumns)
}

func TestDeterministicWithSeed(t *testing.T) {
	x1 := lowRank(rand.New(rand.NewSource(13)), 40, 4, 2, 0.05)
	x2 := mat.DenseCopyOf(x1)

	m1, err := Fit(x1, FitConfig{MinObs: 1, RNG: rand.New(rand.NewSource(99))})
	require.NoError(t, err)
	m2, err := Fit(x2, FitConfig{MinObs: 1, RNG: rand.New(rand.NewSource(99))})
	require.NoError(t, err)

	require.True(t, mat.Equal(m1.C, m2.C))
	require.Equal(t, m1.SS, m2.SS)
	require.Equal(t, m1.Iter, m2.Iter)
}

func TestReconstructionScale(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	x := lowRank(rng, 50, 4, 2, 0.05)
	orig := mat.DenseCopyOf(x)

	m, err := Fit(x, FitConfig{MinObs: 1, RNG: rng})
	require.NoError(t, err)

	rec, err := m.Reconstruction()
	require.NoError(t, err)

	// Fully observed: de-standardizing returns the input up to rounding.
	r, c := orig.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			require.InDelta(t, orig.At(i, j), rec.At(i, j), 1e-10)
		}
	}
}
