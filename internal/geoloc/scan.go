package geoloc

import (
	"fmt"

	"github.com/hsaf-tools/snowgrid/internal/coord"
)

// ScanGeometry locates samples of a geostationary full-disk grid
// analytically: a sample's position in the satellite scan plane follows
// directly from its grid indices, and the geostationary inverse projection
// turns that into a geographic coordinate. It is immutable once constructed
// and uses the same projection as the GEOS output target, so locating a
// sample and projecting it back to GEOS recovers the pixel centre exactly.
type ScanGeometry struct {
	proj    *coord.Geos
	originX float64 // scan-plane x of the top-left cell corner, metres
	originY float64 // scan-plane y of the top-left cell corner, metres
	cell    float64 // cell size, metres
	rows    int
	cols    int
}

// NewScanGeometry builds a locator for a full-disk grid with the given
// viewing geometry. originX/originY name the top-left cell corner in
// scan-plane metres; rows proceed north to south.
func NewScanGeometry(p coord.GeosParams, originX, originY, cell float64, rows, cols int) (*ScanGeometry, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("geoloc: invalid shape %dx%d", rows, cols)
	}
	if cell <= 0 {
		return nil, fmt.Errorf("geoloc: invalid cell size %v", cell)
	}
	return &ScanGeometry{
		proj:    coord.NewGeos(p),
		originX: originX,
		originY: originY,
		cell:    cell,
		rows:    rows,
		cols:    cols,
	}, nil
}

func (s *ScanGeometry) Rows() int { return s.rows }
func (s *ScanGeometry) Cols() int { return s.cols }

// Cell returns the native cell size in scan-plane metres.
func (s *ScanGeometry) Cell() float64 { return s.cell }

// Origin returns the scan-plane coordinates of the top-left cell corner.
func (s *ScanGeometry) Origin() (x, y float64) { return s.originX, s.originY }

// Projection returns the geostationary projection backing this geometry.
func (s *ScanGeometry) Projection() *coord.Geos { return s.proj }

// Locate derives the geographic position of the sample centre. Grid cells
// whose scan angles fall off the earth disk report ok=false.
func (s *ScanGeometry) Locate(row, col int) (lat, lon float64, ok bool) {
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		return 0, 0, false
	}
	x := s.originX + (float64(col)+0.5)*s.cell
	y := s.originY - (float64(row)+0.5)*s.cell
	lat, lon, err := s.proj.Inverse(x, y)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
