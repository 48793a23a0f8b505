// Package config holds the immutable product catalog: which container
// format, data variable, geolocation variant and native grid belong to each
// supported product code. The catalog is passed into the engine at
// construction time; nothing in it is module-level mutable state.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Container formats delivered by the product families.
const (
	FormatNetCDF = "netcdf"
	FormatGRIB2  = "grib2"
)

// Geolocation variants.
const (
	// GeolocScan derives sample positions analytically from a fixed
	// geostationary scan geometry.
	GeolocScan = "scan"
	// GeolocGrid reads sample positions from the regular lat/lon grid
	// described in the container itself.
	GeolocGrid = "grid"
)

// MSG full-disk native cell size in scan-plane metres.
const MSGCell = 3000.4031658172607

// MSG full-disk scan-plane half width: the top-left corner of the 3712x3712
// grid sits at (-MSGHalfWidth, +MSGHalfWidth).
const MSGHalfWidth = 5567248.074173927

// ScanSpec is the native geostationary grid of a full-disk product:
// top-left corner in scan-plane metres, cell size, and grid shape.
type ScanSpec struct {
	SubLon  float64 `yaml:"sub_lon"`
	OriginX float64 `yaml:"origin_x"`
	OriginY float64 `yaml:"origin_y"`
	Cell    float64 `yaml:"cell"`
	Rows    int     `yaml:"rows"`
	Cols    int     `yaml:"cols"`
}

// Product describes one supported product code.
type Product struct {
	Code      string    `yaml:"code"`
	Format    string    `yaml:"format"`
	Variable  string    `yaml:"variable"`
	Geoloc    string    `yaml:"geoloc"`
	Fill      int16     `yaml:"fill"`
	WGS84Cell float64   `yaml:"wgs84_cell"` // output resolution for geographic targets, degrees
	Scan      *ScanSpec `yaml:"scan,omitempty"`
	TargetCRS []string  `yaml:"target_crs"`
}

// AllowsCRS reports whether the product may be geocoded to the given CRS
// identifier.
func (p Product) AllowsCRS(id string) bool {
	for _, c := range p.TargetCRS {
		if c == id {
			return true
		}
	}
	return false
}

// Catalog maps product codes to their static configuration.
type Catalog struct {
	products map[string]Product
}

// Default returns the built-in catalog for the supported snow products.
//
// H10 and H34 are MSG full-disk (or windowed full-disk) HDF products on the
// native geostationary grid; H11, H12, H13 and H35 are GRIB2 products on
// regular lat/lon grids whose geometry travels inside the container.
func Default() Catalog {
	const (
		h10Cols = 1902
		h10Rows = 916
	)
	products := []Product{
		{
			Code: "H10", Format: FormatNetCDF, Variable: "SC", Geoloc: GeolocScan,
			Fill: -9999, WGS84Cell: 0.03,
			Scan: &ScanSpec{
				SubLon: 0,
				// Europe window of the full disk; the native product
				// georeferencing names the window's east/south corner, the
				// north-up origin follows from the window shape.
				OriginX: 3770007.5181810227 - h10Cols*MSGCell,
				OriginY: 2635854.6990046464 + h10Rows*MSGCell,
				Cell:    MSGCell,
				Rows:    h10Rows,
				Cols:    h10Cols,
			},
			TargetCRS: []string{"4326", "GEOS"},
		},
		{
			Code: "H34", Format: FormatNetCDF, Variable: "SC", Geoloc: GeolocScan,
			Fill: -9999, WGS84Cell: 0.03,
			Scan: &ScanSpec{
				SubLon:  0,
				OriginX: -MSGHalfWidth,
				OriginY: MSGHalfWidth,
				Cell:    MSGCell,
				Rows:    3712,
				Cols:    3712,
			},
			TargetCRS: []string{"4326", "GEOS"},
		},
		{
			Code: "H11", Format: FormatGRIB2, Variable: "rssc", Geoloc: GeolocGrid,
			Fill: -9999, WGS84Cell: 0.25, TargetCRS: []string{"4326"},
		},
		{
			Code: "H12", Format: FormatGRIB2, Variable: "rssc", Geoloc: GeolocGrid,
			Fill: -9999, WGS84Cell: 0.01, TargetCRS: []string{"4326"},
		},
		{
			Code: "H13", Format: FormatGRIB2, Variable: "rssc", Geoloc: GeolocGrid,
			Fill: -9999, WGS84Cell: 0.25, TargetCRS: []string{"4326"},
		},
		{
			Code: "H35", Format: FormatGRIB2, Variable: "rssc", Geoloc: GeolocGrid,
			Fill: -9999, WGS84Cell: 0.01, TargetCRS: []string{"4326"},
		},
	}

	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.Code] = p
	}
	return Catalog{products: m}
}

// Load reads a YAML catalog file and overlays it on the built-in defaults.
// Entries with a known code replace the default; new codes extend it.
func Load(path string) (Catalog, error) {
	cat := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}

	var file struct {
		Products []Product `yaml:"products"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for _, p := range file.Products {
		p.Code = strings.ToUpper(p.Code)
		if err := validate(p); err != nil {
			return Catalog{}, fmt.Errorf("config: %s: product %s: %w", path, p.Code, err)
		}
		cat.products[p.Code] = p
	}
	return cat, nil
}

func validate(p Product) error {
	if p.Code == "" {
		return fmt.Errorf("missing code")
	}
	switch p.Format {
	case FormatNetCDF, FormatGRIB2:
	default:
		return fmt.Errorf("unknown format %q", p.Format)
	}
	switch p.Geoloc {
	case GeolocScan:
		if p.Scan == nil {
			return fmt.Errorf("scan geolocation requires a scan spec")
		}
		if p.Scan.Cell <= 0 || p.Scan.Rows <= 0 || p.Scan.Cols <= 0 {
			return fmt.Errorf("invalid scan spec")
		}
	case GeolocGrid:
	default:
		return fmt.Errorf("unknown geolocation variant %q", p.Geoloc)
	}
	if p.WGS84Cell <= 0 {
		return fmt.Errorf("invalid wgs84 cell size %v", p.WGS84Cell)
	}
	if len(p.TargetCRS) == 0 {
		return fmt.Errorf("no target CRS allowed")
	}
	return nil
}

// Lookup returns the product with the given code (case-insensitive).
func (c Catalog) Lookup(code string) (Product, bool) {
	p, ok := c.products[strings.ToUpper(code)]
	return p, ok
}

// Codes returns the supported product codes in sorted order.
func (c Catalog) Codes() []string {
	codes := make([]string, 0, len(c.products))
	for code := range c.products {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
