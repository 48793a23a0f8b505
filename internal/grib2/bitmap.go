package grib2

import (
	"fmt"
	"math"
)

// applyBitmap expands packed values (one per set bitmap bit) to a full
// totalPoints grid. Positions where the bitmap bit is 0 become NaN.
//
// GRIB2 bitmaps are MSB-first: bit 7 of byte 0 is grid point 0.
func applyBitmap(vals []float64, bitmap []byte, totalPoints int) ([]float64, error) {
	setBits := 0
	for i := 0; i < totalPoints; i++ {
		if bitmapBit(bitmap, i) {
			setBits++
		}
	}
	if setBits != len(vals) {
		return nil, fmt.Errorf("bitmap: %d set bits but %d packed values", setBits, len(vals))
	}

	result := make([]float64, totalPoints)
	vi := 0
	for i := 0; i < totalPoints; i++ {
		if bitmapBit(bitmap, i) {
			result[i] = vals[vi]
			vi++
		} else {
			result[i] = math.NaN()
		}
	}
	return result, nil
}

func bitmapBit(bitmap []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bitmap) {
		return false
	}
	return (bitmap[byteIdx]>>uint(7-(i%8)))&1 == 1
}
