// Package ppca fills in missing entries of a numeric matrix using a
// probabilistic principal component model fit by expectation maximization.
//
// Missing entries are marked with IEEE-754 NaN.  Fit standardizes each
// retained column, alternates E and M steps until a variational bound
// stabilizes, and leaves behind loadings that can project new data into
// the latent space.
package ppca

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultTol is the relative-change threshold on the variational
	// bound used to declare convergence.
	DefaultTol = 1e-4

	// DefaultMinObs is the minimum number of observed entries a column
	// needs to take part in the fit.
	DefaultMinObs = 10

	// The EM loop may not stop before the iteration counter passes this
	// floor, even when the bound has already stabilized.
	minIter = 5
)

// FitConfig controls a single call to Fit.  The zero value selects the
// defaults: full latent dimension, DefaultTol, DefaultMinObs, an unbounded
// iteration loop, copy-on-entry, and a time-seeded random source.
type FitConfig struct {
	// TargetDim is the latent dimensionality d.  Zero means use all
	// retained columns (denoising and imputation without compression).
	TargetDim int

	// Tol is the relative-change threshold on the variational bound.
	Tol float64

	// MinObs is the minimum count of non-missing entries a column must
	// have to be retained.
	MinObs int

	// MaxIter caps the EM loop when positive.  Zero leaves the loop
	// unbounded; a capped fit that stops early is reported through
	// Model.Converged rather than an error.
	MaxIter int

	// InPlace applies the infinity clamp directly to the caller's matrix
	// instead of an internal copy.  Off by default.
	InPlace bool

	// RNG is the source used to draw the initial loadings.  When nil a
	// time-seeded source is used.
	RNG *rand.Rand

	// Warm seeds the loadings from a previously fitted model instead of a
	// random draw.  The warm loadings must match the retained-column and
	// latent dimensions of this fit.
	Warm *Model

	// Logger receives per-iteration diagnostics at debug level and
	// numerical-instability notices at warn level.  The zero Logger is
	// silent.
	Logger zerolog.Logger
}

// Model holds the fitted state of the imputer.
type Model struct {
	// C maps the latent space to the retained observed variables (D' x d).
	C *mat.Dense

	// X holds the latent scores at convergence (N x d).
	X *mat.Dense

	// SS is the shared residual variance.
	SS float64

	// Data is the completed dataset in standardized coordinates (N x D').
	// Entries that were observed hold their standardized input values;
	// entries that were missing hold the model's final imputation.
	Data *mat.Dense

	// Means and Stds are the per-retained-column moments used to
	// standardize, computed from the non-missing entries only.
	Means []float64
	Stds  []float64

	// Retained lists the original column indices that passed the
	// minimum-observation filter, in order.
	Retained []int

	// Observed marks which standardized entries were present in the
	// input, row-major over the N x D' grid.
	Observed []bool

	// EigVals are the eigenvalues of the latent-projection covariance,
	// sorted descending.
	EigVals []float64

	// ReconErr records, one entry per EM iteration, the sum of squared
	// differences between the reconstruction X*C' and the standardized
	// data over the observed entries.  The final loadings are rotated
	// after the loop, so this trace is the only view of the loop's own
	// reconstruction quality.
	ReconErr []float64

	// Iter is the number of EM iterations performed; Converged reports
	// whether the bound criterion was met (false only for capped fits).
	Iter      int
	Converged bool

	varExp []float64
}

// Fit estimates a PPCA model from data, an N x D matrix with missing
// entries marked by NaN.  Infinities are clamped to the largest finite
// value present; by default this happens on an internal copy, so the
// caller's matrix is never mutated unless cfg.InPlace is set.
//
// Columns with fewer than cfg.MinObs observed entries are dropped from the
// fit entirely; Model.Retained records the surviving column indices.
// Zero-variance columns are not special-cased: standardization divides by
// a zero deviation and the resulting non-finite values propagate through
// the fit.  Drop such columns beforehand if that is not wanted.
func Fit(data *mat.Dense, cfg FitConfig) (*Model, error) {
	if data == nil {
		return nil, ErrEmptyData
	}
	n, ncol := data.Dims()
	if n == 0 || ncol == 0 {
		return nil, ErrEmptyData
	}

	if cfg.Tol <= 0 {
		cfg.Tol = DefaultTol
	}
	if cfg.MinObs <= 0 {
		cfg.MinObs = DefaultMinObs
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := cfg.Logger

	raw := data
	if !cfg.InPlace {
		raw = mat.DenseCopyOf(data)
	}
	clampInf(raw)

	// Column filter: a column takes part only if it has enough
	// non-missing entries.
	var retained []int
	for j := 0; j < ncol; j++ {
		nobs := 0
		for i := 0; i < n; i++ {
			if !math.IsNaN(raw.At(i, j)) {
				nobs++
			}
		}
		if nobs >= cfg.MinObs {
			retained = append(retained, j)
		}
	}
	if len(retained) == 0 {
		return nil, ErrNoRetainedColumns
	}

	dp := len(retained)
	work := mat.NewDense(n, dp, nil)
	for k, j := range retained {
		for i := 0; i < n; i++ {
			work.Set(i, k, raw.At(i, j))
		}
	}

	means, stds := nanMoments(work)
	for j, s := range stds {
		if s == 0 {
			log.Warn().Int("column", retained[j]).Msg("zero-variance column, standardization will produce non-finite values")
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < dp; j++ {
			work.Set(i, j, (work.At(i, j)-means[j])/stds[j])
		}
	}

	// The mask is taken after standardization, so entries that a zero
	// deviation turned into NaN count as missing too.
	observed := make([]bool, n*dp)
	missing := 0
	for i := 0; i < n; i++ {
		for j := 0; j < dp; j++ {
			if math.IsNaN(work.At(i, j)) {
				missing++
				work.Set(i, j, 0)
			} else {
				observed[i*dp+j] = true
			}
		}
	}

	d := cfg.TargetDim
	if d <= 0 {
		d = dp
	}
	if d > dp {
		return nil, fmt.Errorf("%w: target dimension %d exceeds %d retained columns", ErrDimension, d, dp)
	}

	C := mat.NewDense(dp, d, nil)
	if cfg.Warm != nil && cfg.Warm.C != nil {
		wr, wc := cfg.Warm.C.Dims()
		if wr != dp || wc != d {
			return nil, fmt.Errorf("%w: warm-start loadings are %dx%d, want %dx%d", ErrDimension, wr, wc, dp, d)
		}
		C.Copy(cfg.Warm.C)
	} else {
		for i := 0; i < dp; i++ {
			for j := 0; j < d; j++ {
				C.Set(i, j, cfg.RNG.NormFloat64())
			}
		}
	}

	var cc mat.Dense
	cc.Mul(C.T(), C)
	var cci mat.Dense
	if err := cci.Inverse(&cc); err != nil {
		return nil, fmt.Errorf("ppca: initial loadings are rank deficient: %w", err)
	}
	var tmp, X mat.Dense
	tmp.Mul(work, C)
	X.Mul(&tmp, &cci)

	var recon mat.Dense
	recon.Mul(&X, C.T())
	zeroMissing(&recon, observed)
	ss := sumSqDiff(&recon, work) / float64(n*dp-missing)

	v0 := math.Inf(1)
	counter := 0
	iters := 0
	converged := false
	var reconErr []float64
	var sx, xx mat.Dense

	for {
		iters++

		// Posterior latent covariance Sx = (I + C'C/ss)^-1.
		pre := mat.NewDense(d, d, nil)
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				v := cc.At(i, j) / ss
				if i == j {
					v++
				}
				pre.Set(i, j, v)
			}
		}
		if err := sx.Inverse(pre); err != nil {
			return nil, fmt.Errorf("ppca: posterior covariance is singular: %w", err)
		}

		// E-step: re-impute the missing entries from the current
		// reconstruction, then update the latent scores.  Observed
		// entries are never touched.
		ss0 := ss
		if missing > 0 {
			var proj mat.Dense
			proj.Mul(&X, C.T())
			r, c := work.Dims()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					if !observed[i*c+j] {
						work.Set(i, j, proj.At(i, j))
					}
				}
			}
		}
		tmp.Mul(work, C)
		X.Mul(&tmp, &sx)
		X.Scale(1/ss, &X)

		// M-step.
		xx.Mul(X.T(), &X)
		var a mat.Dense
		a.Scale(float64(n), &sx)
		a.Add(&a, &xx)
		ai, err := pseudoInverse(&a)
		if err != nil {
			return nil, err
		}
		var b mat.Dense
		b.Mul(work.T(), &X)
		C.Mul(&b, ai)
		cc.Mul(C.T(), C)

		recon.Mul(&X, C.T())
		zeroMissing(&recon, observed)
		reconErr = append(reconErr, observedSqDiff(&recon, work, observed))
		ss = (sumSqDiff(&recon, work) + float64(n)*elemProdSum(&cc, &sx) + float64(missing)*ss0) / float64(n*dp)

		// Convergence score on the variational bound.
		det := math.Log(mat.Det(&sx))
		if math.IsInf(det, 0) {
			var lu mat.LU
			lu.Factorize(&sx)
			ld, _ := lu.LogDet()
			det = math.Abs(ld)
			log.Warn().Float64("logdet", det).Msg("determinant under/overflow, using slogdet magnitude")
		}
		v1 := float64(n)*(float64(dp)*math.Log(ss)+trace(&sx)-det) +
			trace(&xx) - float64(missing)*math.Log(ss0)

		diff := math.Abs(v1/v0 - 1)
		log.Debug().Int("iter", iters).Float64("diff", diff).Float64("ss", ss).Msg("em iteration")

		if diff < cfg.Tol && counter > minIter {
			converged = true
			break
		}
		counter++
		v0 = v1

		if cfg.MaxIter > 0 && iters >= cfg.MaxIter {
			log.Warn().Int("maxiter", cfg.MaxIter).Msg("iteration cap reached before convergence")
			break
		}
	}

	// Replace C by an orthonormal basis of its column space, then rotate
	// it into the eigenbasis of the latent-projection covariance so the
	// components come out in decreasing-variance order.
	co, err := orth(C)
	if err != nil {
		return nil, err
	}
	var proj mat.Dense
	proj.Mul(work, co)
	_, q := co.Dims()

	cov := mat.NewSymDense(q, nil)
	stat.CovarianceMatrix(cov, &proj, nil)
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, fmt.Errorf("ppca: eigendecomposition of latent covariance failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	order := make([]int, q)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return vals[order[i]] > vals[order[j]]
	})
	sorted := make([]float64, q)
	ordered := mat.NewDense(q, q, nil)
	for k, idx := range order {
		sorted[k] = vals[idx]
		ordered.SetCol(k, mat.Col(nil, idx, &vecs))
	}
	var cFinal mat.Dense
	cFinal.Mul(co, ordered)

	m := &Model{
		C:         &cFinal,
		X:         &X,
		SS:        ss,
		Data:      work,
		Means:     means,
		Stds:      stds,
		Retained:  retained,
		Observed:  observed,
		EigVals:   sorted,
		ReconErr:  reconErr,
		Iter:      iters,
		Converged: converged,
	}
	m.calcVar()
	return m, nil
}

// Transform projects x onto the fitted loadings.  A nil x projects the
// model's own completed dataset.  The model is not mutated.
func (m *Model) Transform(x mat.Matrix) (*mat.Dense, error) {
	if m == nil || m.C == nil {
		return nil, ErrNotFitted
	}
	if x == nil {
		if m.Data == nil {
			return nil, ErrNotFitted
		}
		x = m.Data
	}
	var out mat.Dense
	out.Mul(x, m.C)
	return &out, nil
}

// Standardize maps x into the standardized coordinates of the fit.  x must
// have one column per retained column.
func (m *Model) Standardize(x mat.Matrix) (*mat.Dense, error) {
	if m == nil || m.Means == nil || m.Stds == nil {
		return nil, ErrNotFitted
	}
	r, c := x.Dims()
	if c != len(m.Means) {
		return nil, fmt.Errorf("%w: %d columns, want %d", ErrDimension, c, len(m.Means))
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (x.At(i, j)-m.Means[j])/m.Stds[j])
		}
	}
	return out, nil
}

// Reconstruction returns the completed dataset mapped back to the original
// scale, data*std + mean, one column per retained input column.
func (m *Model) Reconstruction() (*mat.Dense, error) {
	if m == nil || m.Data == nil {
		return nil, ErrNotFitted
	}
	r, c := m.Data.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.Data.At(i, j)*m.Stds[j]+m.Means[j])
		}
	}
	return out, nil
}

// ExplainedVar returns the cumulative explained-variance fractions indexed
// by retained latent dimension.  The sequence is non-decreasing.
func (m *Model) ExplainedVar() ([]float64, error) {
	if m == nil || m.Data == nil {
		return nil, ErrNotFitted
	}
	return append([]float64(nil), m.varExp...), nil
}

func (m *Model) calcVar() {
	r, c := m.Data.Dims()

	vars := make([]float64, c)
	for j := 0; j < c; j++ {
		var mean float64
		for i := 0; i < r; i++ {
			mean += m.Data.At(i, j)
		}
		mean /= float64(r)
		var v float64
		for i := 0; i < r; i++ {
			e := m.Data.At(i, j) - mean
			v += e * e
		}
		vars[j] = v / float64(r)
	}
	total := floats.Sum(vars)

	m.varExp = make([]float64, len(m.EigVals))
	cum := 0.0
	for i, ev := range m.EigVals {
		cum += ev
		m.varExp[i] = cum / total
	}
}

// clampInf replaces infinite entries with the largest finite value present
// anywhere in the matrix.
func clampInf(m *mat.Dense) {
	r, c := m.Dims()
	mx := math.Inf(-1)
	hasInf := false
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsInf(v, 0) {
				hasInf = true
			} else if !math.IsNaN(v) && v > mx {
				mx = v
			}
		}
	}
	if !hasInf {
		return
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsInf(m.At(i, j), 0) {
				m.Set(i, j, mx)
			}
		}
	}
}

// nanMoments returns the per-column mean and population standard deviation
// computed over the non-missing entries.
func nanMoments(m *mat.Dense) ([]float64, []float64) {
	r, c := m.Dims()
	means := make([]float64, c)
	stds := make([]float64, c)
	for j := 0; j < c; j++ {
		var sum float64
		var nobs int
		for i := 0; i < r; i++ {
			v := m.At(i, j)
			if !math.IsNaN(v) {
				sum += v
				nobs++
			}
		}
		means[j] = sum / float64(nobs)
		var ssq float64
		for i := 0; i < r; i++ {
			v := m.At(i, j)
			if !math.IsNaN(v) {
				e := v - means[j]
				ssq += e * e
			}
		}
		stds[j] = math.Sqrt(ssq / float64(nobs))
	}
	return means, stds
}

func zeroMissing(m *mat.Dense, observed []bool) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !observed[i*c+j] {
				m.Set(i, j, 0)
			}
		}
	}
}

// observedSqDiff sums the squared differences between a and b over the
// entries marked observed.
func observedSqDiff(a, b *mat.Dense, observed []bool) float64 {
	r, c := a.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if observed[i*c+j] {
				e := a.At(i, j) - b.At(i, j)
				s += e * e
			}
		}
	}
	return s
}

func sumSqDiff(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			e := a.At(i, j) - b.At(i, j)
			s += e * e
		}
	}
	return s
}

// elemProdSum returns the sum of the elementwise product of a and b, which
// for symmetric b equals trace(a*b).
func elemProdSum(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s += a.At(i, j) * b.At(i, j)
		}
	}
	return s
}

func trace(a *mat.Dense) float64 {
	r, _ := a.Dims()
	var s float64
	for i := 0; i < r; i++ {
		s += a.At(i, i)
	}
	return s
}
