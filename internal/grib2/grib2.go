// Package grib2 decodes the GRIB2 containers used by the regular lat/lon
// snow products. It understands grid definition template 3.0 (equidistant
// cylindrical), data representation template 5.0 (simple packing) and the
// section 6 bitmap; everything else is a named error.
package grib2

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Input sanity limits, well above any real product file.
const (
	maxGridDim  = 40000
	maxBitWidth = 64
)

// LatLonGrid is a regular geographic grid decoded from GDT 3.0, normalized
// to north-up: row 0 is the northernmost, Lat0/Lon0 name the centre of the
// first grid point, DLat/DLon are the (positive) increments in degrees.
type LatLonGrid struct {
	Ni, Nj     int
	Lat0, Lon0 float64
	DLat, DLon float64
}

// Message is one decoded GRIB2 message: the grid geometry plus Ni*Nj values
// in row-major north-up order. Bitmap gaps are NaN.
type Message struct {
	Grid LatLonGrid
	Vals []float64
}

// section0 is the 16-byte indicator section.
type section0 struct {
	discipline  byte
	edition     byte
	totalLength uint64
}

func parseSection0(b []byte) (section0, error) {
	if len(b) < 16 {
		return section0{}, fmt.Errorf("section 0: need 16 bytes, got %d", len(b))
	}
	if string(b[0:4]) != "GRIB" {
		return section0{}, fmt.Errorf("section 0: missing GRIB magic: %q", b[0:4])
	}
	s := section0{
		discipline:  b[6],
		edition:     b[7],
		totalLength: binary.BigEndian.Uint64(b[8:16]),
	}
	if s.edition != 2 {
		return section0{}, fmt.Errorf("section 0: unsupported edition %d", s.edition)
	}
	return s, nil
}

// sectionAt finds the section starting at byte offset off.
// Returns (sectionNum, sectionData, nextOffset). The "7777" end marker is
// only 4 bytes, so it is checked before the 5-byte header guard.
func sectionAt(buf []byte, off int) (byte, []byte, int, error) {
	if off+4 <= len(buf) && string(buf[off:off+4]) == "7777" {
		return 8, buf[off : off+4], off + 4, nil
	}
	if off+5 > len(buf) {
		return 0, nil, 0, fmt.Errorf("section header at %d: out of bounds (buf=%d)", off, len(buf))
	}
	sLen := binary.BigEndian.Uint32(buf[off : off+4])
	// uint64 arithmetic so a crafted length cannot overflow int on 32-bit.
	end64 := uint64(off) + uint64(sLen)
	if sLen < 5 || end64 > uint64(len(buf)) {
		return 0, nil, 0, fmt.Errorf("section %d at %d: length %d overflows buffer %d",
			buf[off+4], off, sLen, len(buf))
	}
	return buf[off+4], buf[off:int(end64)], int(end64), nil
}

// signed32 decodes a GRIB2 sign-magnitude 32-bit integer (MSB is the sign).
func signed32(raw uint32) int32 {
	v := int32(raw & 0x7FFFFFFF)
	if raw&0x80000000 != 0 {
		return -v
	}
	return v
}

// decodeScaleFactor decodes a sign-magnitude 2-byte scale factor.
func decodeScaleFactor(raw uint16) int {
	magnitude := int(raw & 0x7FFF)
	if raw&0x8000 != 0 {
		return -magnitude
	}
	return magnitude
}

// normLon maps a 0..360 longitude into (-180, 180].
func normLon(lon float64) float64 {
	if lon > 180 {
		lon -= 360
	}
	return lon
}

// parseSection3 decodes GDT 3.0 (latitude/longitude grid).
// Template offsets (g = sec[14:]):
//
//	g+0..15   shape of earth + radius/axes (ignored, geometry is geographic)
//	g+16..19  Ni
//	g+20..23  Nj
//	g+24..31  basic angle + subdivisions (must be 0/missing)
//	g+32..35  La1 (µdeg, sign-magnitude)
//	g+36..39  Lo1 (µdeg, 0-360)
//	g+40      resolution flags
//	g+41..48  La2, Lo2
//	g+49..52  Di (µdeg)
//	g+53..56  Dj (µdeg)
//	g+57      scanning mode
func parseSection3(sec []byte) (LatLonGrid, byte, error) {
	if len(sec) < 14+58 {
		return LatLonGrid{}, 0, fmt.Errorf("section 3: too short (%d bytes)", len(sec))
	}
	gdt := binary.BigEndian.Uint16(sec[12:14])
	if gdt != 0 {
		return LatLonGrid{}, 0, fmt.Errorf("section 3: unsupported grid definition template %d (only 3.0)", gdt)
	}
	g := sec[14:]
	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(g[off : off+4]) }

	ni := int(u32(16))
	nj := int(u32(20))
	if ni <= 0 || ni > maxGridDim || nj <= 0 || nj > maxGridDim {
		return LatLonGrid{}, 0, fmt.Errorf("section 3: invalid grid dimensions %dx%d (max %d)",
			ni, nj, maxGridDim)
	}
	if basic := u32(24); basic != 0 && basic != 0xFFFFFFFF {
		return LatLonGrid{}, 0, fmt.Errorf("section 3: non-trivial basic angle %d not supported", basic)
	}

	la1 := float64(signed32(u32(32))) / 1e6
	lo1 := normLon(float64(u32(36)) / 1e6)
	di := float64(u32(49)) / 1e6
	dj := float64(u32(53)) / 1e6
	scanMode := g[57]

	if di <= 0 || dj <= 0 {
		return LatLonGrid{}, 0, fmt.Errorf("section 3: invalid increments %v x %v", di, dj)
	}
	// Only +i scanning with consecutive points along rows is produced for
	// these products; both row directions are accepted and normalized.
	if scanMode&^0x40 != 0 {
		return LatLonGrid{}, 0, fmt.Errorf("section 3: unsupported scan mode 0x%02X", scanMode)
	}

	grid := LatLonGrid{Ni: ni, Nj: nj, Lat0: la1, Lon0: lo1, DLat: dj, DLon: di}
	if scanMode&0x40 != 0 {
		// Rows stored south to north: La1 is the southern edge; the
		// north-up first row sits Nj-1 increments above it.
		grid.Lat0 = la1 + float64(nj-1)*dj
	}
	return grid, scanMode, nil
}

// drs0Params holds DRS template 5.0 (simple packing) parameters.
type drs0Params struct {
	referenceValue     float64
	binaryScaleFactor  int
	decimalScaleFactor int
	nbits              int
	n                  int // packed data points from sec[5:9]
}

func parseDRS0(sec []byte) (drs0Params, error) {
	if len(sec) < 11+10 {
		return drs0Params{}, fmt.Errorf("section 5 DRS 5.0: too short (%d bytes)", len(sec))
	}
	tmpl := int(binary.BigEndian.Uint16(sec[9:11]))
	if tmpl != 0 {
		return drs0Params{}, fmt.Errorf("section 5: unsupported data representation template %d (only 5.0)", tmpl)
	}

	nRaw := binary.BigEndian.Uint32(sec[5:9])
	if nRaw > uint32(maxGridDim)*uint32(maxGridDim) {
		return drs0Params{}, fmt.Errorf("section 5: N=%d exceeds maximum", nRaw)
	}

	t := sec[11:]
	p := drs0Params{
		referenceValue:     float64(math.Float32frombits(binary.BigEndian.Uint32(t[0:4]))),
		binaryScaleFactor:  decodeScaleFactor(binary.BigEndian.Uint16(t[4:6])),
		decimalScaleFactor: decodeScaleFactor(binary.BigEndian.Uint16(t[6:8])),
		nbits:              int(t[8]),
		n:                  int(nRaw),
	}
	if p.nbits > maxBitWidth {
		return drs0Params{}, fmt.Errorf("section 5: Nbits=%d exceeds %d", p.nbits, maxBitWidth)
	}
	return p, nil
}

// unpackDRS0 decodes a simple-packing section 7: n consecutive nbits-wide
// unsigned integers, MSB-first. Y = (R + X*2^E) / 10^D.
func unpackDRS0(sec7 []byte, p drs0Params) ([]float64, error) {
	if len(sec7) < 5 {
		return nil, fmt.Errorf("drs0: section 7 too short")
	}
	data := sec7[5:]

	scaleE := math.Ldexp(1.0, p.binaryScaleFactor)
	scaleD := math.Pow(10, float64(p.decimalScaleFactor))

	result := make([]float64, p.n)
	if p.nbits == 0 {
		// Constant field.
		v := p.referenceValue / scaleD
		for i := range result {
			result[i] = v
		}
		return result, nil
	}

	br := newBitReader(data)
	for i := range result {
		x, err := br.read(p.nbits)
		if err != nil {
			return nil, fmt.Errorf("drs0: reading value %d: %w", i, err)
		}
		result[i] = (p.referenceValue + scaleE*float64(x)) / scaleD
	}
	return result, nil
}

// DecodeMessage decodes one raw GRIB2 message (all sections) into a Message.
func DecodeMessage(raw []byte) (*Message, error) {
	if _, err := parseSection0(raw); err != nil {
		return nil, err
	}

	off := 16 // past section 0
	var grid *LatLonGrid
	var scanMode byte
	var drs drs0Params
	var hasDRS bool
	var sec7 []byte
	var bitmapData []byte

	for off < len(raw) {
		sNum, sec, next, err := sectionAt(raw, off)
		if err != nil {
			return nil, err
		}
		if sNum == 8 {
			break
		}

		switch sNum {
		case 1, 2, 4:
			// Identification, local use, product definition: not needed.
		case 3:
			g, sm, err := parseSection3(sec)
			if err != nil {
				return nil, err
			}
			grid, scanMode = &g, sm
		case 5:
			drs, err = parseDRS0(sec)
			if err != nil {
				return nil, err
			}
			hasDRS = true
		case 6:
			if len(sec) < 6 {
				return nil, fmt.Errorf("section 6 too short")
			}
			switch sec[5] {
			case 255:
				// No bitmap, every grid point has data.
			case 0:
				bitmapData = sec[6:]
			default:
				return nil, fmt.Errorf("bitmap section: unsupported indicator %d", sec[5])
			}
		case 7:
			sec7 = sec
		}
		off = next
	}

	if grid == nil {
		return nil, fmt.Errorf("no section 3 found in message")
	}
	if !hasDRS {
		return nil, fmt.Errorf("no section 5 found in message")
	}
	if sec7 == nil {
		return nil, fmt.Errorf("no section 7 found in message")
	}

	vals, err := unpackDRS0(sec7, drs)
	if err != nil {
		return nil, fmt.Errorf("unpack DRS 5.0: %w", err)
	}

	total64 := int64(grid.Ni) * int64(grid.Nj)
	if bitmapData != nil {
		vals, err = applyBitmap(vals, bitmapData, int(total64))
		if err != nil {
			return nil, fmt.Errorf("applying bitmap: %w", err)
		}
	}
	if int64(len(vals)) != total64 {
		return nil, fmt.Errorf("decoded %d values, expected %d (%dx%d)",
			len(vals), total64, grid.Ni, grid.Nj)
	}

	if scanMode&0x40 != 0 {
		flipRows(vals, grid.Ni, grid.Nj)
	}
	return &Message{Grid: *grid, Vals: vals}, nil
}

// flipRows reverses row order in place, turning a south-up value array into
// the north-up order the grid geometry promises.
func flipRows(vals []float64, ni, nj int) {
	for top, bot := 0, nj-1; top < bot; top, bot = top+1, bot-1 {
		t := vals[top*ni : top*ni+ni]
		b := vals[bot*ni : bot*ni+ni]
		for i := range t {
			t[i], b[i] = b[i], t[i]
		}
	}
}

// ReadFile decodes the first GRIB2 message of a file. The snow products
// carry a single message per file.
func ReadFile(path string) (*Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s0, err := parseSection0(raw)
	if err != nil {
		return nil, fmt.Errorf("grib2: %s: %w", path, err)
	}
	if s0.totalLength > uint64(len(raw)) {
		return nil, fmt.Errorf("grib2: %s: message length %d exceeds file size %d",
			path, s0.totalLength, len(raw))
	}
	msg, err := DecodeMessage(raw[:s0.totalLength])
	if err != nil {
		return nil, fmt.Errorf("grib2: %s: %w", path, err)
	}
	return msg, nil
}
