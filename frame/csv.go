package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// missing cell spellings accepted on read
var naStrings = map[string]bool{
	"":    true,
	"NA":  true,
	"NaN": true,
	"nan": true,
}

// ReadCSV parses a headed CSV stream into a frame.  Blank, NA, and NaN
// cells become NaN.  Columns containing any other non-numeric cell are
// left out of the frame and reported by name, so a caller can hold string
// columns aside and recombine them later.
func ReadCSV(r io.Reader) (*Frame, []string, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("frame: read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("frame: read csv: need a header row and at least one data row")
	}

	header := records[0]
	rows := records[1:]
	ncol := len(header)

	numeric := make([]bool, ncol)
	cols := make([][]float64, ncol)
	for j := 0; j < ncol; j++ {
		numeric[j] = true
		cols[j] = make([]float64, len(rows))
	}

	for i, rec := range rows {
		if len(rec) != ncol {
			return nil, nil, fmt.Errorf("frame: read csv: row %d has %d cells, want %d", i+1, len(rec), ncol)
		}
		for j, cell := range rec {
			if !numeric[j] {
				continue
			}
			if naStrings[cell] {
				cols[j][i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				numeric[j] = false
				continue
			}
			cols[j][i] = v
		}
	}

	var names []string
	var kept [][]float64
	var skipped []string
	for j, name := range header {
		if numeric[j] {
			names = append(names, name)
			kept = append(kept, cols[j])
		} else {
			skipped = append(skipped, name)
		}
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("frame: read csv: no numeric columns")
	}

	f, err := FromColumns(names, kept)
	if err != nil {
		return nil, nil, err
	}
	return f, skipped, nil
}

// WriteCSV writes the frame with a header row.  NaN cells are written as
// NA; all other values use the shortest exact decimal representation.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.names); err != nil {
		return fmt.Errorf("frame: write csv: %w", err)
	}

	r, c := f.data.Dims()
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := f.data.At(i, j)
			if math.IsNaN(v) {
				rec[j] = "NA"
			} else {
				rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("frame: write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("frame: write csv: %w", err)
	}
	return nil
}
