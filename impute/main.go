// Command impute reads a CSV dataset with missing cells, fills them with
// the selected strategy, and writes the completed table back out.  With
// the ppca strategy it can also persist the fitted loadings and report the
// explained-variance profile; with a target column it cross-validates a
// least-squares baseline on the completed data.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Harrykjg-physics/MAST-ML/cleaner"
	"github.com/Harrykjg-physics/MAST-ML/crossval"
	"github.com/Harrykjg-physics/MAST-ML/frame"
	"github.com/Harrykjg-physics/MAST-ML/pca"
	"github.com/Harrykjg-physics/MAST-ML/ppca"
)

func main() {

	var inname, outname, method, leaveout, savepath, target string
	flag.StringVar(&inname, "in", "", "Input CSV file")
	flag.StringVar(&outname, "out", "", "Output CSV file")
	flag.StringVar(&method, "method", "ppca", "Imputation method: mean, median, or ppca")
	flag.StringVar(&leaveout, "leaveout", "", "Comma-separated columns excluded from imputation")
	flag.StringVar(&savepath, "save", "", "Write fitted PPCA loadings to this path")
	flag.StringVar(&target, "cvtarget", "", "Cross-validate a linear baseline predicting this column")

	var dim, minobs, maxiter, cvtests, pcadim int
	flag.IntVar(&dim, "dim", 0, "Latent dimension for ppca (0 means all retained columns)")
	flag.IntVar(&minobs, "minobs", 10, "Minimum observed entries to retain a column")
	flag.IntVar(&maxiter, "maxiter", 0, "EM iteration cap (0 means unbounded)")
	flag.IntVar(&cvtests, "cvtests", 10, "Number of cross-validation tests")
	flag.IntVar(&pcadim, "pcadim", 0, "Replace feature columns with this many principal components")

	var tol, leavepct float64
	flag.Float64Var(&tol, "tol", ppca.DefaultTol, "Convergence tolerance for ppca")
	flag.Float64Var(&leavepct, "leavepct", 20, "Percent of rows left out per cross-validation test")

	var seed int64
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 means time-based)")

	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Log per-iteration diagnostics")
	flag.Parse()

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if inname == "" || outname == "" {
		log.Fatal().Msg("'in' and 'out' are required arguments")
	}
	if savepath != "" && method != "ppca" {
		log.Fatal().Str("method", method).Msg("'save' requires the ppca method")
	}

	fid, err := os.Open(inname)
	if err != nil {
		log.Fatal().Err(err).Msg("opening input")
	}
	f, skipped, err := frame.ReadCSV(fid)
	fid.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("reading CSV")
	}
	if len(skipped) > 0 {
		log.Info().Strs("columns", skipped).Msg("non-numeric columns ignored")
	}

	var hold []string
	if leaveout != "" {
		hold = strings.Split(leaveout, ",")
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var out *frame.Frame
	switch method {
	case "mean":
		out, err = cleaner.Impute(f, cleaner.Mean, hold)
	case "median":
		out, err = cleaner.Impute(f, cleaner.Median, hold)
	case "ppca":
		var model *ppca.Model
		out, model, err = cleaner.ImputePPCA(f, hold, ppca.FitConfig{
			TargetDim: dim,
			Tol:       tol,
			MinObs:    minobs,
			MaxIter:   maxiter,
			RNG:       rng,
			Logger:    log,
		})
		if err == nil {
			ev, everr := model.ExplainedVar()
			if everr != nil {
				log.Fatal().Err(everr).Msg("explained variance")
			}
			log.Info().Int("iterations", model.Iter).Bool("converged", model.Converged).
				Floats64("explained_variance", ev).Msg("ppca fit complete")
			if savepath != "" {
				if serr := model.Save(savepath); serr != nil {
					log.Fatal().Err(serr).Msg("saving loadings")
				}
				log.Info().Str("path", savepath).Msg("loadings saved")
			}
		}
	default:
		log.Fatal().Str("method", method).Msg("unknown imputation method")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("imputation failed")
	}

	if target != "" {
		y, cerr := out.Column(target)
		if cerr != nil {
			log.Fatal().Err(cerr).Msg("cross-validation target")
		}
		xf, derr := out.Drop(target)
		if derr != nil {
			log.Fatal().Err(derr).Msg("cross-validation features")
		}
		res, rerr := crossval.Run(crossval.NewLinearRegression(), xf.Mat(), y, crossval.Config{
			PercentLeaveOut: leavepct,
			NumTests:        cvtests,
			RNG:             rng,
			Progress:        true,
			Logger:          log,
		})
		if rerr != nil {
			log.Fatal().Err(rerr).Msg("cross-validation failed")
		}
		log.Info().Float64("mean_rmse", res.MeanRMSE).Float64("std_rmse", res.StdRMSE).
			Float64("best_rmse", res.Tests[res.Best].RMSE).
			Float64("worst_rmse", res.Tests[res.Worst].RMSE).Msg("cross-validation complete")
	}

	if pcadim > 0 {
		// Reduce the completed feature columns to principal component
		// scores; held-out and target columns pass through unchanged.
		keepOut := append([]string(nil), hold...)
		if target != "" {
			keepOut = append(keepOut, target)
		}
		feats := out
		var held *frame.Frame
		if len(keepOut) > 0 {
			if feats, err = out.Drop(keepOut...); err != nil {
				log.Fatal().Err(err).Msg("selecting PCA features")
			}
			if held, err = out.Select(keepOut...); err != nil {
				log.Fatal().Err(err).Msg("selecting pass-through columns")
			}
		}
		p, perr := pca.Fit(feats.Mat(), pcadim)
		if perr != nil {
			log.Fatal().Err(perr).Msg("pca fit failed")
		}
		scores, terr := p.Transform(feats.Mat())
		if terr != nil {
			log.Fatal().Err(terr).Msg("pca transform failed")
		}
		_, k := scores.Dims()
		names := make([]string, k)
		for j := range names {
			names[j] = fmt.Sprintf("pc%d", j)
		}
		reduced, ferr := frame.New(names, scores)
		if ferr != nil {
			log.Fatal().Err(ferr).Msg("building reduced frame")
		}
		if held != nil {
			if reduced, ferr = reduced.Concat(held); ferr != nil {
				log.Fatal().Err(ferr).Msg("recombining pass-through columns")
			}
		}
		out = reduced
		log.Info().Floats64("cumulative_explained", p.CumulativeExplained()).Msg("pca reduction applied")
	}

	ofid, err := os.Create(outname)
	if err != nil {
		log.Fatal().Err(err).Msg("creating output")
	}
	defer ofid.Close()
	if err := frame.WriteCSV(ofid, out); err != nil {
		log.Fatal().Err(err).Msg("writing CSV")
	}
	log.Info().Str("out", outname).Msg("completed dataset written")
}
