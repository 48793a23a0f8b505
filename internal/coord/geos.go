package coord

import "math"

// GeosParams describes a geostationary viewing geometry. The defaults match
// the MSG full-disk products: GRS-style ellipsoid a=6378169 m with inverse
// flattening 295.488065897014, satellite height 35785831 m above the surface,
// sub-satellite point on the equator at SubLon degrees east.
type GeosParams struct {
	SubLon        float64 // sub-satellite longitude, degrees east
	SemiMajor     float64 // ellipsoid semi-major axis, metres
	InverseFlat   float64 // inverse flattening 1/f
	SatelliteAlt  float64 // satellite height above the ellipsoid surface, metres
}

// DefaultGeosParams returns the MSG/SEVIRI full-disk geometry at 0 degrees.
func DefaultGeosParams() GeosParams {
	return GeosParams{
		SubLon:       0,
		SemiMajor:    6378169.0,
		InverseFlat:  295.488065897014,
		SatelliteAlt: 35785831.0,
	}
}

// Geos is the geostationary satellite view projection (the GDAL
// "Geostationary_Satellite" / PROJ "geos" projection, sweep axis y as used by
// MSG). Projected coordinates are metres in the satellite scan plane:
// scan angle times satellite height.
//
// All internal terms are normalized by the semi-major axis, mirroring the
// usual normalized formulation of the projection equations.
type Geos struct {
	params      GeosParams
	subLonRad   float64
	radiusP     float64 // b/a
	radiusP2    float64 // (b/a)^2
	radiusPInv2 float64 // (a/b)^2
	radiusG     float64 // 1 + h/a, satellite distance from earth centre
	radiusG1    float64 // h/a
	c           float64 // radiusG^2 - 1
}

// NewGeos constructs the projection for the given geometry. Zero-valued
// ellipsoid parameters fall back to the MSG defaults.
func NewGeos(p GeosParams) *Geos {
	def := DefaultGeosParams()
	if p.SemiMajor == 0 {
		p.SemiMajor = def.SemiMajor
	}
	if p.InverseFlat == 0 {
		p.InverseFlat = def.InverseFlat
	}
	if p.SatelliteAlt == 0 {
		p.SatelliteAlt = def.SatelliteAlt
	}

	f := 1.0 / p.InverseFlat
	radiusP := 1.0 - f // b/a
	g := &Geos{
		params:      p,
		subLonRad:   toRad(NormLon(p.SubLon)),
		radiusP:     radiusP,
		radiusP2:    radiusP * radiusP,
		radiusPInv2: 1.0 / (radiusP * radiusP),
		radiusG1:    p.SatelliteAlt / p.SemiMajor,
	}
	g.radiusG = 1.0 + g.radiusG1
	g.c = g.radiusG*g.radiusG - 1.0
	return g
}

func (g *Geos) CRS() string { return "GEOS" }

// Params returns the viewing geometry the projection was built with.
func (g *Geos) Params() GeosParams { return g.params }

// Forward converts latitude/longitude (degrees) to scan-plane metres.
// Points not visible from the satellite yield ErrNotVisible.
func (g *Geos) Forward(lat, lon float64) (x, y float64, err error) {
	lam := toRad(NormLon(lon)) - g.subLonRad
	if lam > math.Pi {
		lam -= 2 * math.Pi
	} else if lam < -math.Pi {
		lam += 2 * math.Pi
	}

	// Geodetic to geocentric latitude on the normalized ellipsoid.
	phi := math.Atan(g.radiusP2 * math.Tan(toRad(lat)))

	// Surface point as a vector from the earth centre, in a-units.
	r := g.radiusP / math.Hypot(g.radiusP*math.Cos(phi), math.Sin(phi))
	vx := r * math.Cos(lam) * math.Cos(phi)
	vy := r * math.Sin(lam) * math.Cos(phi)
	vz := r * math.Sin(phi)

	// The point is visible only if the satellite-to-point ray does not pass
	// below the local horizon.
	tmp := g.radiusG - vx
	if (tmp*vx - vy*vy - vz*vz*g.radiusPInv2) < 0 {
		return 0, 0, ErrNotVisible
	}

	// Scan angles (sweep axis y), scaled to metres.
	x = g.params.SemiMajor * g.radiusG1 * math.Atan(vy/tmp)
	y = g.params.SemiMajor * g.radiusG1 * math.Atan(vz/math.Hypot(vy, tmp))
	return x, y, nil
}

// Inverse converts scan-plane metres back to latitude/longitude (degrees).
// Scan angles whose viewing ray misses the ellipsoid yield ErrNotVisible.
func (g *Geos) Inverse(x, y float64) (lat, lon float64, err error) {
	xa := x / (g.params.SemiMajor * g.radiusG1)
	ya := y / (g.params.SemiMajor * g.radiusG1)

	// Components of the viewing ray from the satellite (sweep axis y).
	vx := -1.0
	vy := math.Tan(xa)
	vz := math.Tan(ya) * math.Hypot(1.0, vy)

	// Intersect the ray with the ellipsoid: quadratic in the ray parameter.
	av := vz / g.radiusP
	av = vy*vy + av*av + vx*vx
	bv := 2 * g.radiusG * vx
	det := bv*bv - 4*av*g.c
	if det < 0 {
		return 0, 0, ErrNotVisible
	}

	k := (-bv - math.Sqrt(det)) / (2 * av)
	sx := g.radiusG + k*vx
	sy := k * vy
	sz := k * vz

	lam := math.Atan2(sy, sx)
	phi := math.Atan(sz * math.Cos(lam) / sx)
	phi = math.Atan(g.radiusPInv2 * math.Tan(phi))

	lat = toDeg(phi)
	lon = NormLon(toDeg(lam + g.subLonRad))
	return lat, lon, nil
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
