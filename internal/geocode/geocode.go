// Package geocode orchestrates one conversion: geolocate the source
// samples, project them to the target CRS, derive the output grid, and
// resample. Configuration problems surface before any array is touched;
// per-sample conditions are counted and never abort a run.
package geocode

import (
	"errors"
	"fmt"

	"github.com/hsaf-tools/snowgrid/internal/config"
	"github.com/hsaf-tools/snowgrid/internal/coord"
	"github.com/hsaf-tools/snowgrid/internal/geoloc"
	"github.com/hsaf-tools/snowgrid/internal/grid"
	"github.com/hsaf-tools/snowgrid/internal/gridder"
	"github.com/hsaf-tools/snowgrid/internal/raster"
)

// ConfigurationError reports an unsupported CRS or product/CRS combination.
// It is fatal and raised before any processing begins.
type ConfigurationError struct {
	Product string
	CRS     string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("geocode: product %s to CRS %s: %s", e.Product, e.CRS, e.Reason)
}

// Options tunes a conversion.
type Options struct {
	// Cell overrides the catalog output cell size (same units as the
	// target CRS). 0 keeps the product default.
	Cell float64
	// Mode is the resampler tie-break policy.
	Mode gridder.Mode
	// Workers is handed to the resampler.
	Workers int
	// Progress, when non-nil, is called once per processed source row;
	// a conversion processes every row twice (extent pass + binning pass).
	Progress func()
}

// Geocoder converts source fields of one product to one target CRS.
// Construct once per (product, CRS) pair; conversions share no mutable
// state and may run concurrently on separate Geocoders.
type Geocoder struct {
	product config.Product
	crsID   string
	tr      coord.Transform
	cell    float64
	opts    Options
}

// New validates the product/CRS combination and resolves the transform and
// output resolution. All failures are ConfigurationErrors.
func New(p config.Product, crsID string, opts Options) (*Geocoder, error) {
	if !p.AllowsCRS(crsID) {
		return nil, &ConfigurationError{
			Product: p.Code, CRS: crsID,
			Reason: fmt.Sprintf("target not supported for this product (allowed: %v)", p.TargetCRS),
		}
	}

	var geos coord.GeosParams
	if p.Scan != nil {
		geos = coord.DefaultGeosParams()
		geos.SubLon = p.Scan.SubLon
	}
	tr, err := coord.ForCRS(crsID, geos)
	if err != nil {
		return nil, &ConfigurationError{Product: p.Code, CRS: crsID, Reason: err.Error()}
	}

	if _, ok := tr.(*coord.Geos); ok && p.Scan == nil {
		return nil, &ConfigurationError{
			Product: p.Code, CRS: crsID,
			Reason: "geostationary target requires a native scan geometry",
		}
	}

	cell := opts.Cell
	if cell == 0 {
		switch tr.(type) {
		case *coord.Geos:
			// Geostationary targets reuse the product's native resolution.
			cell = p.Scan.Cell
		default:
			cell = p.WGS84Cell
		}
	}
	if cell <= 0 {
		return nil, &ConfigurationError{
			Product: p.Code, CRS: crsID,
			Reason: fmt.Sprintf("no output resolution configured (cell %v)", cell),
		}
	}

	return &Geocoder{product: p, crsID: crsID, tr: tr, cell: cell, opts: opts}, nil
}

// Transform returns the resolved coordinate transform.
func (g *Geocoder) Transform() coord.Transform { return g.tr }

// Cell returns the resolved output cell size.
func (g *Geocoder) Cell() float64 { return g.cell }

// ScanLocator builds the analytic locator for a scan-geometry product and
// validates the field shape against the catalog grid.
func ScanLocator(p config.Product, f *gridder.Field) (*geoloc.ScanGeometry, error) {
	if p.Scan == nil {
		return nil, fmt.Errorf("geocode: product %s has no scan geometry", p.Code)
	}
	if f.Rows != p.Scan.Rows || f.Cols != p.Scan.Cols {
		return nil, fmt.Errorf("geocode: product %s field is %dx%d, native grid is %dx%d",
			p.Code, f.Cols, f.Rows, p.Scan.Cols, p.Scan.Rows)
	}
	geos := coord.DefaultGeosParams()
	geos.SubLon = p.Scan.SubLon
	return geoloc.NewScanGeometry(geos, p.Scan.OriginX, p.Scan.OriginY, p.Scan.Cell, p.Scan.Rows, p.Scan.Cols)
}

// Convert geocodes one source field. The grid definition is derived from
// the extent of the valid samples; fewer than two valid geolocated samples
// yield grid.ErrDegenerateExtent and no output.
func (g *Geocoder) Convert(f *gridder.Field, loc geoloc.Locator) (*raster.Raster, gridder.Stats, error) {
	if f.Rows != loc.Rows() || f.Cols != loc.Cols() {
		return nil, gridder.Stats{}, fmt.Errorf("geocode: field %dx%d does not match geolocation %dx%d",
			f.Rows, f.Cols, loc.Rows(), loc.Cols())
	}

	def, err := g.buildGrid(f, loc)
	if err != nil {
		return nil, gridder.Stats{}, err
	}

	out, stats, err := gridder.Resample(f, loc, g.tr, def, gridder.Options{
		Mode:     g.opts.Mode,
		Workers:  g.opts.Workers,
		Progress: g.opts.Progress,
	})
	if err != nil {
		return nil, gridder.Stats{}, err
	}
	return out, stats, nil
}

// buildGrid runs the extent pass: project every valid sample and accumulate
// the bounding box.
func (g *Geocoder) buildGrid(f *gridder.Field, loc geoloc.Locator) (grid.Definition, error) {
	b := grid.NewBuilder(g.tr.CRS())
	for row := 0; row < f.Rows; row++ {
		for col := 0; col < f.Cols; col++ {
			if f.At(row, col) == f.Fill {
				continue
			}
			lat, lon, ok := loc.Locate(row, col)
			if !ok {
				continue
			}
			x, y, err := g.tr.Forward(lat, lon)
			if err != nil {
				continue
			}
			b.Add(x, y)
		}
		if g.opts.Progress != nil {
			g.opts.Progress()
		}
	}

	def, err := b.Build(g.cell)
	if err != nil {
		if errors.Is(err, grid.ErrDegenerateExtent) {
			return grid.Definition{}, fmt.Errorf("geocode: product %s to %s: %w", g.product.Code, g.crsID, err)
		}
		return grid.Definition{}, err
	}
	return def, nil
}
