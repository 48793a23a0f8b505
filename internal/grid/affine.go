// Package grid defines regular output grids and their affine georeferencing.
package grid

import (
	"fmt"
	"math"
)

// Affine is a 2-D affine transform mapping raster pixel coordinates
// (col, row) to world coordinates, using the rasterio coefficient layout:
//
//	x = a*col + b*row + c
//	y = d*col + e*row + f
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// FromGDAL converts a GDAL geotransform
// (originX, dx, rot, originY, rot, dy) to an Affine.
func FromGDAL(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// ToGDAL converts the Affine to GDAL geotransform order.
func (a Affine) ToGDAL() [6]float64 {
	return [6]float64{a.C, a.A, a.B, a.F, a.D, a.E}
}

// Apply maps pixel coordinates (col, row) to world coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return col*a.A + row*a.B + a.C, col*a.D + row*a.E + a.F
}

// Invert returns the inverse transform, mapping world coordinates back to
// pixel coordinates.
func (a Affine) Invert() Affine {
	inv := 1 / (a.A*a.E - a.B*a.D)

	ra := a.E * inv
	rb := -a.B * inv
	rd := -a.D * inv
	re := a.A * inv

	return Affine{
		A: ra, B: rb, C: -a.C*ra - a.F*rb,
		D: rd, E: re, F: -a.C*rd - a.F*re,
	}
}

// Resolution returns the absolute x and y cell sizes.
func (a Affine) Resolution() (dx, dy float64) {
	return math.Abs(a.A), math.Abs(a.E)
}

func (a Affine) String() string {
	return fmt.Sprintf("Affine(%v, %v, %v, %v, %v, %v)", a.A, a.B, a.C, a.D, a.E, a.F)
}
