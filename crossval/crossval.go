// Package crossval runs leave-out-percent cross-validation: repeated
// random shuffle splits of a labeled dataset, fitting a regressor on the
// kept rows and scoring its predictions on the left-out rows.
package crossval

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrBadSplit is returned when the leave-out percentage produces an empty
// train or test partition.
var ErrBadSplit = errors.New("crossval: leave-out percentage yields an empty partition")

// Regressor is the external model contract: anything that can be fit to a
// feature matrix with a target vector and then predict targets for new
// rows.
type Regressor interface {
	Fit(x mat.Matrix, y []float64) error
	Predict(x mat.Matrix) ([]float64, error)
}

// Config controls a cross-validation run.  The zero value leaves out 20%
// per test, runs 10 tests, and uses a time-seeded shuffle.
type Config struct {
	// PercentLeaveOut is the share of rows scored in each test.
	PercentLeaveOut float64

	// NumTests is the number of independent shuffle splits.
	NumTests int

	// RNG drives the shuffles; nil means time-seeded.
	RNG *rand.Rand

	// Progress draws a progress bar over the tests.
	Progress bool

	Logger zerolog.Logger
}

// TestResult holds the scores of one shuffle-split test.
type TestResult struct {
	RMSE      float64
	MeanError float64
	R2        float64

	// TestRows are the row indices that were left out and scored.
	TestRows []int
}

// Result aggregates all tests in a run.
type Result struct {
	Tests []TestResult

	// MeanRMSE and StdRMSE summarize the per-test RMSE values.
	MeanRMSE float64
	StdRMSE  float64

	// Best and Worst index the tests with the lowest and highest RMSE.
	Best  int
	Worst int
}

// Run performs cross-validation of reg on the dataset (x, y).  The same
// regressor value is re-fit for every test, so its Fit must fully reset
// internal state.
func Run(reg Regressor, x mat.Matrix, y []float64, cfg Config) (*Result, error) {
	n, c := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("crossval: %d rows but %d targets", n, len(y))
	}

	if cfg.PercentLeaveOut <= 0 {
		cfg.PercentLeaveOut = 20
	}
	if cfg.NumTests <= 0 {
		cfg.NumTests = 10
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ntest := int(math.Round(float64(n) * cfg.PercentLeaveOut / 100))
	if ntest < 1 || ntest >= n {
		return nil, fmt.Errorf("%w: %d rows, %.0f%% leave-out", ErrBadSplit, n, cfg.PercentLeaveOut)
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.New(cfg.NumTests)
	}

	res := &Result{Tests: make([]TestResult, 0, cfg.NumTests)}
	rmses := make([]float64, 0, cfg.NumTests)

	for k := 0; k < cfg.NumTests; k++ {
		perm := cfg.RNG.Perm(n)
		testRows := append([]int(nil), perm[:ntest]...)
		trainRows := perm[ntest:]

		xTrain, yTrain := takeRows(x, y, trainRows, c)
		xTest, yTest := takeRows(x, y, testRows, c)

		if err := reg.Fit(xTrain, yTrain); err != nil {
			return nil, fmt.Errorf("crossval: test %d: fit: %w", k, err)
		}
		pred, err := reg.Predict(xTest)
		if err != nil {
			return nil, fmt.Errorf("crossval: test %d: predict: %w", k, err)
		}

		tr := score(pred, yTest)
		tr.TestRows = testRows
		res.Tests = append(res.Tests, tr)
		rmses = append(rmses, tr.RMSE)

		cfg.Logger.Debug().Int("test", k).Float64("rmse", tr.RMSE).Float64("r2", tr.R2).Msg("cv test")
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	res.MeanRMSE = stat.Mean(rmses, nil)
	res.StdRMSE = stat.StdDev(rmses, nil)
	for k, r := range rmses {
		if r < rmses[res.Best] {
			res.Best = k
		}
		if r > rmses[res.Worst] {
			res.Worst = k
		}
	}
	return res, nil
}

func takeRows(x mat.Matrix, y []float64, rows []int, c int) (*mat.Dense, []float64) {
	out := mat.NewDense(len(rows), c, nil)
	yout := make([]float64, len(rows))
	for k, i := range rows {
		for j := 0; j < c; j++ {
			out.Set(k, j, x.At(i, j))
		}
		yout[k] = y[i]
	}
	return out, yout
}

func score(pred, obs []float64) TestResult {
	var sq, me float64
	for i := range pred {
		e := pred[i] - obs[i]
		sq += e * e
		me += e
	}
	n := float64(len(pred))
	return TestResult{
		RMSE:      math.Sqrt(sq / n),
		MeanError: me / n,
		R2:        stat.RSquaredFrom(pred, obs, nil),
	}
}
