// Package ncdf reads the NetCDF classic containers of the full-disk snow
// products. The data variable is a 2D class grid stored north-up,
// west-to-east, matching the scan geometry in the product catalog; it is
// read through in storage order.
package ncdf

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"

	"github.com/hsaf-tools/snowgrid/internal/gridder"
)

// ReadField reads one variable from a NetCDF classic file into an int16
// field. Values equal to the variable's _FillValue (or missing_value)
// attribute are mapped to fill; the row and column order is kept as stored.
func ReadField(path, variable string, fill int16) (*gridder.Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("ncdf: opening %s: %w", path, err)
	}

	dims := nc.Header.Lengths(variable)
	if len(dims) == 0 {
		return nil, fmt.Errorf("ncdf: %s: variable %q not in file", path, variable)
	}
	// A leading unit time dimension is tolerated.
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 || dims[0] <= 0 || dims[1] <= 0 {
		return nil, fmt.Errorf("ncdf: %s: variable %q has shape %v, want 2D", path, variable, dims)
	}
	rows, cols := dims[0], dims[1]

	r := nc.Reader(variable, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("ncdf: %s: reading %q: %w", path, variable, err)
	}

	values, err := toInt16(buf, fill)
	if err != nil {
		return nil, fmt.Errorf("ncdf: %s: variable %q: %w", path, variable, err)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("ncdf: %s: variable %q has %d values, want %d",
			path, variable, len(values), rows*cols)
	}

	if nd, ok := noDataValue(nc, variable); ok {
		for i, v := range values {
			if v == nd {
				values[i] = fill
			}
		}
	}

	return gridder.NewField(values, rows, cols, fill)
}

// toInt16 converts the raw variable buffer to int16 class values.
// Floating point inputs are rounded; NaN becomes fill.
func toInt16(buf interface{}, fill int16) ([]int16, error) {
	switch data := buf.(type) {
	case []int16:
		out := make([]int16, len(data))
		copy(out, data)
		return out, nil
	case []int8:
		out := make([]int16, len(data))
		for i, v := range data {
			out[i] = int16(v)
		}
		return out, nil
	case []int32:
		out := make([]int16, len(data))
		for i, v := range data {
			if v < math.MinInt16 || v > math.MaxInt16 {
				out[i] = fill
			} else {
				out[i] = int16(v)
			}
		}
		return out, nil
	case []float32:
		out := make([]int16, len(data))
		for i, v := range data {
			out[i] = roundClass(float64(v), fill)
		}
		return out, nil
	case []float64:
		out := make([]int16, len(data))
		for i, v := range data {
			out[i] = roundClass(v, fill)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", buf)
	}
}

func roundClass(v float64, fill int16) int16 {
	if math.IsNaN(v) || v < math.MinInt16 || v > math.MaxInt16 {
		return fill
	}
	return int16(math.Round(v))
}

// noDataValue reads the variable's fill attribute, trying _FillValue first
// and missing_value second.
func noDataValue(nc *cdf.File, variable string) (int16, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		attr := nc.Header.GetAttribute(variable, name)
		if attr == nil {
			continue
		}
		switch v := attr.(type) {
		case []int16:
			if len(v) > 0 {
				return v[0], true
			}
		case []int32:
			if len(v) > 0 && v[0] >= math.MinInt16 && v[0] <= math.MaxInt16 {
				return int16(v[0]), true
			}
		case []float32:
			if len(v) > 0 {
				return roundClass(float64(v[0]), 0), true
			}
		case []float64:
			if len(v) > 0 {
				return roundClass(v[0], 0), true
			}
		}
	}
	return 0, false
}
