// Package coord converts between geographic WGS84 coordinates and the
// supported target reference systems.
package coord

import (
	"errors"
	"fmt"
)

// Transform converts between geographic coordinates (degrees) and a target CRS.
type Transform interface {
	// Forward converts latitude/longitude (degrees) to target CRS coordinates.
	Forward(lat, lon float64) (x, y float64, err error)

	// Inverse converts target CRS coordinates back to latitude/longitude (degrees).
	Inverse(x, y float64) (lat, lon float64, err error)

	// CRS returns the identifier of the target system.
	CRS() string
}

// ErrNotVisible reports a coordinate outside the visible disk of the
// geostationary satellite. It is a per-sample condition, never fatal.
var ErrNotVisible = errors.New("coord: point outside the visible disk")

// ErrUnsupportedCRS reports a CRS identifier with no registered transform.
var ErrUnsupportedCRS = errors.New("coord: unsupported CRS")

// ForCRS returns the Transform for the given CRS identifier.
// Accepted identifiers: "4326", "EPSG:4326", "WGS84" and "GEOS".
// The geos parameters are only consulted for the GEOS target.
func ForCRS(id string, geos GeosParams) (Transform, error) {
	switch id {
	case "4326", "EPSG:4326", "WGS84":
		return &WGS84{}, nil
	case "GEOS", "geos":
		return NewGeos(geos), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCRS, id)
	}
}

// WGS84 is the identity transform for geographic output grids: projected
// coordinates are plain (lon, lat) degrees.
type WGS84 struct{}

func (w *WGS84) CRS() string { return "EPSG:4326" }

func (w *WGS84) Forward(lat, lon float64) (x, y float64, err error) {
	return lon, lat, nil
}

func (w *WGS84) Inverse(x, y float64) (lat, lon float64, err error) {
	return y, x, nil
}

// NormLon wraps a longitude in degrees into -180..+180.
func NormLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
