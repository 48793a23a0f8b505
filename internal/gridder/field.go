// Package gridder maps source samples onto a regular output grid.
package gridder

import "fmt"

// Field is a 2-D array of geophysical sample values in row-major scan order
// with a designated fill sentinel. The shape must match the geolocation
// descriptor it is gridded with.
type Field struct {
	Values []int16
	Rows   int
	Cols   int
	Fill   int16
}

// NewField wraps a row-major value array. The slice must hold exactly
// rows*cols entries.
func NewField(values []int16, rows, cols int, fill int16) (*Field, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("gridder: invalid field shape %dx%d", rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("gridder: field has %d values, want %d", len(values), rows*cols)
	}
	return &Field{Values: values, Rows: rows, Cols: cols, Fill: fill}, nil
}

// At returns the value at (row, col) in source scan order.
func (f *Field) At(row, col int) int16 {
	return f.Values[row*f.Cols+col]
}
