package geoloc

import (
	"math"
	"testing"

	"github.com/hsaf-tools/snowgrid/internal/coord"
)

func TestNewExplicitGrid_ShapeMismatch(t *testing.T) {
	lats := make([]float64, 6)
	lons := make([]float64, 5)
	if _, err := NewExplicitGrid(lats, lons, 2, 3); err == nil {
		t.Fatal("expected error for mismatched coordinate array length")
	}
	if _, err := NewExplicitGrid(lats, lats, 0, 3); err == nil {
		t.Fatal("expected error for zero rows")
	}
}

func TestExplicitGrid_Locate(t *testing.T) {
	lats := []float64{48.5, 48.5, 48.0, math.NaN()}
	lons := []float64{10.0, 10.5, 200.0, 11.0}
	g, err := NewExplicitGrid(lats, lons, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	lat, lon, ok := g.Locate(0, 1)
	if !ok || lat != 48.5 || lon != 10.5 {
		t.Errorf("Locate(0,1) = (%v, %v, %v), want (48.5, 10.5, true)", lat, lon, ok)
	}

	// Longitude out of range.
	if _, _, ok := g.Locate(1, 0); ok {
		t.Error("Locate(1,0): expected invalid for lon=200")
	}
	// NaN latitude.
	if _, _, ok := g.Locate(1, 1); ok {
		t.Error("Locate(1,1): expected invalid for NaN latitude")
	}
	// Index out of bounds.
	if _, _, ok := g.Locate(2, 0); ok {
		t.Error("Locate(2,0): expected invalid for out-of-bounds row")
	}
	if _, _, ok := g.Locate(0, -1); ok {
		t.Error("Locate(0,-1): expected invalid for negative column")
	}
}

func TestNewRegularGrid(t *testing.T) {
	// H13-style grid: 0.25 degree cells, north to south.
	g, err := NewRegularGrid(75.0, -25.0, -0.25, 0.25, 3, 4)
	if err != nil {
		t.Fatal(err)
	}

	lat, lon, ok := g.Locate(0, 0)
	if !ok || lat != 75.0 || lon != -25.0 {
		t.Errorf("Locate(0,0) = (%v, %v, %v), want (75, -25, true)", lat, lon, ok)
	}

	lat, lon, ok = g.Locate(2, 3)
	if !ok || math.Abs(lat-74.5) > 1e-12 || math.Abs(lon-(-24.25)) > 1e-12 {
		t.Errorf("Locate(2,3) = (%v, %v, %v), want (74.5, -24.25, true)", lat, lon, ok)
	}
}

func TestScanGeometry_CentreVisible(t *testing.T) {
	// A small grid centred on the sub-satellite point.
	cell := 3000.0
	s, err := NewScanGeometry(coord.DefaultGeosParams(), -5*cell, 5*cell, cell, 10, 10)
	if err != nil {
		t.Fatal(err)
	}

	// All cells of this near-nadir grid are on the disk.
	for r := 0; r < s.Rows(); r++ {
		for c := 0; c < s.Cols(); c++ {
			if _, _, ok := s.Locate(r, c); !ok {
				t.Fatalf("Locate(%d,%d): near-nadir cell reported off-disk", r, c)
			}
		}
	}

	// The grid is symmetric about nadir, so the centre 2x2 cells surround
	// (0, 0) at sub-pixel distance.
	lat, lon, _ := s.Locate(4, 4)
	if math.Abs(lat) > 0.05 || math.Abs(lon) > 0.05 {
		t.Errorf("Locate(4,4) = (%v, %v), want near (0, 0)", lat, lon)
	}
}

func TestScanGeometry_RoundTripThroughProjection(t *testing.T) {
	// Locating a sample and projecting the result back to the scan plane
	// must recover the pixel centre within floating point tolerance.
	cell := 3000.4031658172607
	origin := 5567248.074173927
	s, err := NewScanGeometry(coord.DefaultGeosParams(), -origin, origin, cell, 3712, 3712)
	if err != nil {
		t.Fatal(err)
	}

	proj := s.Projection()
	checked := 0
	for _, rc := range [][2]int{{1856, 1856}, {1000, 1200}, {2500, 2000}, {1856, 300}, {600, 1856}} {
		row, col := rc[0], rc[1]
		lat, lon, ok := s.Locate(row, col)
		if !ok {
			continue
		}
		x, y, err := proj.Forward(lat, lon)
		if err != nil {
			t.Fatalf("Forward(%v,%v) error: %v", lat, lon, err)
		}
		wantX := -origin + (float64(col)+0.5)*cell
		wantY := origin - (float64(row)+0.5)*cell
		if math.Abs(x-wantX) > 1e-3 || math.Abs(y-wantY) > 1e-3 {
			t.Errorf("pixel (%d,%d): scan plane round trip (%v,%v), want (%v,%v)",
				row, col, x, y, wantX, wantY)
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no on-disk pixels checked")
	}
}

func TestScanGeometry_OffDiskCorners(t *testing.T) {
	// The corners of the full-disk grid lie outside the earth disk.
	cell := 3000.4031658172607
	origin := 5567248.074173927
	s, err := NewScanGeometry(coord.DefaultGeosParams(), -origin, origin, cell, 3712, 3712)
	if err != nil {
		t.Fatal(err)
	}

	for _, rc := range [][2]int{{0, 0}, {0, 3711}, {3711, 0}, {3711, 3711}} {
		if _, _, ok := s.Locate(rc[0], rc[1]); ok {
			t.Errorf("Locate(%d,%d): full-disk corner reported on-disk", rc[0], rc[1])
		}
	}
}
