// Command generate writes a synthetic tabular dataset with a low-rank
// latent structure, Gaussian noise, and a configurable share of missing
// entries, for exercising the imputation tools.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/Harrykjg-physics/MAST-ML/frame"
)

func main() {

	var outname string
	flag.StringVar(&outname, "out", "", "Output CSV file name")

	var nrow, ncol, rank, ninf int
	flag.IntVar(&nrow, "rows", 200, "Number of rows")
	flag.IntVar(&ncol, "cols", 8, "Number of columns")
	flag.IntVar(&rank, "rank", 2, "Latent rank of the generated data")
	flag.IntVar(&ninf, "inf", 0, "Number of entries replaced with +Inf")

	var noise, missing float64
	flag.Float64Var(&noise, "noise", 0.1, "Noise standard deviation")
	flag.Float64Var(&missing, "missing", 0.1, "Fraction of entries set to missing")

	var seed int64
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 means time-based)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if outname == "" {
		log.Fatal().Msg("'out' is a required argument")
	}
	if rank < 1 || rank > ncol {
		log.Fatal().Int("rank", rank).Int("cols", ncol).Msg("rank must be between 1 and cols")
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	z := mat.NewDense(nrow, rank, nil)
	for i := 0; i < nrow; i++ {
		for j := 0; j < rank; j++ {
			z.Set(i, j, rng.NormFloat64())
		}
	}
	w := mat.NewDense(rank, ncol, nil)
	for i := 0; i < rank; i++ {
		for j := 0; j < ncol; j++ {
			w.Set(i, j, rng.NormFloat64())
		}
	}
	var x mat.Dense
	x.Mul(z, w)
	for i := 0; i < nrow; i++ {
		for j := 0; j < ncol; j++ {
			x.Set(i, j, x.At(i, j)+noise*rng.NormFloat64())
		}
	}

	nmiss := 0
	for i := 0; i < nrow; i++ {
		for j := 0; j < ncol; j++ {
			if rng.Float64() < missing {
				x.Set(i, j, math.NaN())
				nmiss++
			}
		}
	}
	for k := 0; k < ninf; k++ {
		x.Set(rng.Intn(nrow), rng.Intn(ncol), math.Inf(1))
	}

	names := make([]string, ncol)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
	}
	f, err := frame.New(names, &x)
	if err != nil {
		log.Fatal().Err(err).Msg("building frame")
	}

	fid, err := os.Create(outname)
	if err != nil {
		log.Fatal().Err(err).Msg("creating output file")
	}
	defer fid.Close()

	if err := frame.WriteCSV(fid, f); err != nil {
		log.Fatal().Err(err).Msg("writing CSV")
	}

	log.Info().Int("rows", nrow).Int("cols", ncol).Int("missing", nmiss).
		Int64("seed", seed).Str("out", outname).Msg("dataset written")
}
