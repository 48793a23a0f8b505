// Package geoloc models how a source sample's geographic location is
// determined: either from explicit per-pixel coordinate arrays (swath and
// fixed lat/lon grid products) or from an analytic geostationary scan
// geometry (full-disk products).
package geoloc

// Locator resolves the geographic position of a source sample.
type Locator interface {
	// Locate returns the latitude/longitude (degrees) of the sample at
	// (row, col) in source scan order. ok is false for samples with no
	// valid location (fill coordinates, out-of-range values, or scan
	// positions outside the visible disk).
	Locate(row, col int) (lat, lon float64, ok bool)

	// Rows returns the number of sample rows.
	Rows() int

	// Cols returns the number of sample columns.
	Cols() int
}
