// Package raster assembles resampled arrays with their georeferencing into
// the structure handed to a raster writer. It knows nothing about any file
// format.
package raster

import (
	"fmt"

	"github.com/hsaf-tools/snowgrid/internal/grid"
)

// Raster is a gridded output: row-major cell values, the grid definition
// that georeferences them, the fill sentinel for empty cells, and a per-cell
// count of contributing source samples. A Raster is created fresh per
// conversion and consumed once by the writer.
type Raster struct {
	Def      grid.Definition
	Values   []int16
	Fill     int16
	Coverage []uint32
}

// New returns a raster for the given definition with every cell at the fill
// value and zero coverage.
func New(def grid.Definition, fill int16) (*Raster, error) {
	if def.Rows <= 0 || def.Cols <= 0 {
		return nil, fmt.Errorf("raster: invalid grid %dx%d", def.Cols, def.Rows)
	}
	n := def.Rows * def.Cols
	values := make([]int16, n)
	if fill != 0 {
		for i := range values {
			values[i] = fill
		}
	}
	return &Raster{
		Def:      def,
		Values:   values,
		Fill:     fill,
		Coverage: make([]uint32, n),
	}, nil
}

// At returns the value at (row, col).
func (r *Raster) At(row, col int) int16 {
	return r.Values[row*r.Def.Cols+col]
}

// Set writes a value at (row, col) and bumps the cell's coverage count.
func (r *Raster) Set(row, col int, v int16) {
	i := row*r.Def.Cols + col
	r.Values[i] = v
	r.Coverage[i]++
}

// CoveredCells returns the number of cells with at least one contributing
// sample.
func (r *Raster) CoveredCells() int {
	n := 0
	for _, c := range r.Coverage {
		if c > 0 {
			n++
		}
	}
	return n
}

// Writer persists an output raster. Implementations receive the value
// array, CRS identifier, affine transform and fill value through the Raster
// and make no further assumptions.
type Writer interface {
	Write(path string, r *Raster) error
}
