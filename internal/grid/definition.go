package grid

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateExtent reports that too few valid geolocated samples exist to
// define an output grid. It is fatal: no partial output is produced.
var ErrDegenerateExtent = errors.New("grid: degenerate extent")

// Definition describes a regular output grid: the target CRS, the world
// coordinates of the top-left cell corner, a square cell size, and the
// row/column counts. Rows proceed north to south, so the affine y-scale is
// negative while Cell itself is positive.
type Definition struct {
	CRS     string
	OriginX float64
	OriginY float64
	Cell    float64
	Rows    int
	Cols    int
}

// Transform returns the affine transform mapping (col, row) pixel
// coordinates to world coordinates of cell corners.
func (d Definition) Transform() Affine {
	return Affine{A: d.Cell, B: 0, C: d.OriginX, D: 0, E: -d.Cell, F: d.OriginY}
}

// CellIndex maps a world coordinate to the grid cell containing it.
// Coordinates exactly on the right or bottom grid edge clamp into the last
// cell, so in-range samples are never truncated. ok is false outside the
// grid.
func (d Definition) CellIndex(x, y float64) (row, col int, ok bool) {
	fc := (x - d.OriginX) / d.Cell
	fr := (d.OriginY - y) / d.Cell

	col = int(math.Floor(fc))
	row = int(math.Floor(fr))

	if col == d.Cols && fc <= float64(d.Cols) {
		col = d.Cols - 1
	}
	if row == d.Rows && fr <= float64(d.Rows) {
		row = d.Rows - 1
	}

	if row < 0 || row >= d.Rows || col < 0 || col >= d.Cols {
		return 0, 0, false
	}
	return row, col, true
}

func (d Definition) String() string {
	return fmt.Sprintf("%s %dx%d @%g origin (%g, %g)", d.CRS, d.Cols, d.Rows, d.Cell, d.OriginX, d.OriginY)
}

// Builder accumulates the bounding box of valid projected sample
// coordinates and derives a grid definition from it.
type Builder struct {
	crs   string
	minX  float64
	minY  float64
	maxX  float64
	maxY  float64
	count int
}

// NewBuilder returns a Builder for the given target CRS identifier.
func NewBuilder(crs string) *Builder {
	return &Builder{
		crs:  crs,
		minX: math.Inf(1), minY: math.Inf(1),
		maxX: math.Inf(-1), maxY: math.Inf(-1),
	}
}

// Add extends the extent with one valid projected coordinate.
func (b *Builder) Add(x, y float64) {
	if x < b.minX {
		b.minX = x
	}
	if x > b.maxX {
		b.maxX = x
	}
	if y < b.minY {
		b.minY = y
	}
	if y > b.maxY {
		b.maxY = y
	}
	b.count++
}

// Count returns the number of coordinates added so far.
func (b *Builder) Count() int { return b.count }

// Extent returns the accumulated bounding box.
func (b *Builder) Extent() (minX, minY, maxX, maxY float64) {
	return b.minX, b.minY, b.maxX, b.maxY
}

// Build derives the grid definition for the given cell size. Row and column
// counts are ceil(extent/cell) with an exclusive upper edge; a half ULP of
// slack absorbs floating point noise when the extent is an exact multiple of
// the cell size. Fewer than two valid samples, or an extent collapsed to a
// single point, yield ErrDegenerateExtent.
func (b *Builder) Build(cell float64) (Definition, error) {
	if cell <= 0 {
		return Definition{}, fmt.Errorf("grid: invalid cell size %v", cell)
	}
	if b.count < 2 {
		return Definition{}, fmt.Errorf("%w: %d valid samples", ErrDegenerateExtent, b.count)
	}
	spanX := b.maxX - b.minX
	spanY := b.maxY - b.minY
	if spanX == 0 && spanY == 0 {
		return Definition{}, fmt.Errorf("%w: all samples at (%g, %g)", ErrDegenerateExtent, b.minX, b.minY)
	}

	cols := spanCells(spanX, cell)
	rows := spanCells(spanY, cell)

	return Definition{
		CRS:     b.crs,
		OriginX: b.minX,
		OriginY: b.maxY,
		Cell:    cell,
		Rows:    rows,
		Cols:    cols,
	}, nil
}

// spanCells returns ceil(span/cell), guarding against floating point noise
// just above an exact multiple, and never returns less than 1.
func spanCells(span, cell float64) int {
	n := span / cell
	r := math.Round(n)
	if r >= 1 && math.Abs(n-r) < 1e-9*math.Max(r, 1) {
		return int(r)
	}
	c := int(math.Ceil(n))
	if c < 1 {
		return 1
	}
	return c
}
