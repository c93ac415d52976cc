package ppca

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Only the loading matrix is persisted.  Means, deviations and latent
// scores are deliberately left out: a loaded model can Transform data the
// caller has already standardized, nothing more.
type savedLoadings struct {
	Rows, Cols int
	Elems      []float64
}

// Save writes the loading matrix to path as a gzip-compressed gob file.
// Floating-point values round-trip bit for bit.
func (m *Model) Save(path string) error {
	if m == nil || m.C == nil {
		return ErrNotFitted
	}

	r, c := m.C.Dims()
	sl := savedLoadings{Rows: r, Cols: c, Elems: make([]float64, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sl.Elems[i*c+j] = m.C.At(i, j)
		}
	}

	fid, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ppca: save: %w", err)
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)
	defer gid.Close()

	if err := gob.NewEncoder(gid).Encode(&sl); err != nil {
		return fmt.Errorf("ppca: save: %w", err)
	}
	return nil
}

// Load reads a loading matrix written by Save into a fresh model.  The
// result has no column statistics or completed data, so Transform must be
// given pre-standardized input.
func Load(path string) (*Model, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ppca: load: %w", err)
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, fmt.Errorf("ppca: load: %w", err)
	}
	defer gid.Close()

	var sl savedLoadings
	if err := gob.NewDecoder(gid).Decode(&sl); err != nil {
		return nil, fmt.Errorf("ppca: load: %w", err)
	}
	if sl.Rows <= 0 || sl.Cols <= 0 || len(sl.Elems) != sl.Rows*sl.Cols {
		return nil, fmt.Errorf("ppca: load: malformed loadings in %s", path)
	}

	return &Model{C: mat.NewDense(sl.Rows, sl.Cols, sl.Elems)}, nil
}
