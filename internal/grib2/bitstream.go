package grib2

import (
	"encoding/binary"
	"fmt"
)

// bitReader reads unsigned integers of arbitrary bit width from a byte
// slice, MSB-first within each byte. It never panics on truncated input.
type bitReader struct {
	buf []byte
	pos int // bit position
}

func newBitReader(b []byte) *bitReader { return &bitReader{buf: b} }

// read reads n bits (0..64) and returns them as a uint64.
func (r *bitReader) read(n int) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	end := r.pos + n
	if end > len(r.buf)*8 {
		return 0, fmt.Errorf("bitReader: read %d bits at pos %d overflows buffer (%d bytes)",
			n, r.pos, len(r.buf))
	}
	// Byte-aligned reads of exact byte widths skip the bit loop.
	if r.pos%8 == 0 {
		off := r.pos / 8
		switch n {
		case 8:
			r.pos = end
			return uint64(r.buf[off]), nil
		case 16:
			r.pos = end
			return uint64(binary.BigEndian.Uint16(r.buf[off:])), nil
		case 32:
			r.pos = end
			return uint64(binary.BigEndian.Uint32(r.buf[off:])), nil
		}
	}
	var v uint64
	for i := 0; i < n; i++ {
		byteIdx := (r.pos + i) / 8
		bitIdx := 7 - ((r.pos + i) % 8)
		v = (v << 1) | uint64((r.buf[byteIdx]>>bitIdx)&1)
	}
	r.pos = end
	return v, nil
}
