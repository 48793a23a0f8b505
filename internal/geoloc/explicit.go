package geoloc

import (
	"fmt"
	"math"
)

// ExplicitGrid locates samples through parallel per-pixel latitude and
// longitude arrays, one entry per sample in row-major scan order.
type ExplicitGrid struct {
	lats []float64
	lons []float64
	rows int
	cols int
}

// NewExplicitGrid builds a locator from row-major coordinate arrays.
// Both arrays must hold exactly rows*cols entries.
func NewExplicitGrid(lats, lons []float64, rows, cols int) (*ExplicitGrid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("geoloc: invalid shape %dx%d", rows, cols)
	}
	if len(lats) != rows*cols || len(lons) != rows*cols {
		return nil, fmt.Errorf("geoloc: coordinate arrays have %d/%d entries, want %d",
			len(lats), len(lons), rows*cols)
	}
	return &ExplicitGrid{lats: lats, lons: lons, rows: rows, cols: cols}, nil
}

// NewRegularGrid builds an explicit locator for a regular lat/lon grid, as
// delivered by the GRIB2 products: cell centres start at (lat0, lon0) and
// step by (dLat, dLon) per row/column. dLat is negative for north-to-south
// scan order.
func NewRegularGrid(lat0, lon0, dLat, dLon float64, rows, cols int) (*ExplicitGrid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("geoloc: invalid shape %dx%d", rows, cols)
	}
	lats := make([]float64, rows*cols)
	lons := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		lat := lat0 + float64(r)*dLat
		for c := 0; c < cols; c++ {
			i := r*cols + c
			lats[i] = lat
			lons[i] = lon0 + float64(c)*dLon
		}
	}
	return NewExplicitGrid(lats, lons, rows, cols)
}

func (g *ExplicitGrid) Rows() int { return g.rows }
func (g *ExplicitGrid) Cols() int { return g.cols }

// Locate returns the stored coordinates for the sample. Samples outside the
// valid latitude/longitude range, or with non-finite coordinates, report
// ok=false and are excluded from gridding.
func (g *ExplicitGrid) Locate(row, col int) (lat, lon float64, ok bool) {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return 0, 0, false
	}
	i := row*g.cols + col
	lat, lon = g.lats[i], g.lons[i]
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
