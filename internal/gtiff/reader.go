package gtiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Info is the decoded content of a single-band int16 GeoTIFF.
type Info struct {
	Cols, Rows int
	Cell       float64
	OriginX    float64
	OriginY    float64
	EPSG       int // 0 for user-defined CRS
	Citation   string
	Nodata     int16
	HasNodata  bool
	Values     []int16
}

// Read parses a GeoTIFF written by this package. Classic little-endian
// TIFF with one Deflate strip only; anything else is an error.
func Read(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("gtiff: %s: %w", path, err)
	}
	return info, nil
}

type rawEntry struct {
	dataType uint16
	count    uint32
	value    []byte
}

func decode(raw []byte) (*Info, error) {
	le := binary.LittleEndian
	if len(raw) < 8 || string(raw[0:2]) != "II" || le.Uint16(raw[2:4]) != 42 {
		return nil, fmt.Errorf("not a little-endian classic TIFF")
	}
	ifdOffset := le.Uint32(raw[4:8])
	if int(ifdOffset)+2 > len(raw) {
		return nil, fmt.Errorf("IFD offset %d out of bounds", ifdOffset)
	}

	n := int(le.Uint16(raw[ifdOffset : ifdOffset+2]))
	entries := make(map[uint16]rawEntry, n)
	for i := 0; i < n; i++ {
		off := int(ifdOffset) + 2 + i*12
		if off+12 > len(raw) {
			return nil, fmt.Errorf("IFD entry %d out of bounds", i)
		}
		tag := le.Uint16(raw[off : off+2])
		e := rawEntry{
			dataType: le.Uint16(raw[off+2 : off+4]),
			count:    le.Uint32(raw[off+4 : off+8]),
		}
		size := int(e.count) * typeSize(e.dataType)
		if size <= 4 {
			e.value = raw[off+8 : off+12]
		} else {
			dataOff := le.Uint32(raw[off+8 : off+12])
			if int(dataOff)+size > len(raw) {
				return nil, fmt.Errorf("tag %d value out of bounds", tag)
			}
			e.value = raw[dataOff : int(dataOff)+size]
		}
		entries[tag] = e
	}

	info := &Info{}
	info.Cols = int(entryU32(entries[tagImageWidth], le))
	info.Rows = int(entryU32(entries[tagImageLength], le))
	if info.Cols <= 0 || info.Rows <= 0 {
		return nil, fmt.Errorf("bad dimensions %dx%d", info.Cols, info.Rows)
	}
	if c := entryU32(entries[tagCompression], le); c != compressionDeflate {
		return nil, fmt.Errorf("unsupported compression %d", c)
	}

	scale := entryDoubles(entries[tagModelPixelScaleTag], le)
	if len(scale) >= 1 {
		info.Cell = scale[0]
	}
	tie := entryDoubles(entries[tagModelTiepointTag], le)
	if len(tie) >= 6 {
		info.OriginX = tie[3] - tie[0]*info.Cell
		info.OriginY = tie[4] + tie[1]*info.Cell
	}

	if e, ok := entries[tagGeoAsciiParamsTag]; ok {
		info.Citation = strings.TrimRight(string(e.value[:e.count]), "|\x00")
	}
	if e, ok := entries[tagGeoKeyDirectoryTag]; ok {
		info.EPSG = epsgFromGeoKeys(entryShorts(e, le))
	}
	if e, ok := entries[tagGDALNodata]; ok {
		s := strings.TrimRight(string(e.value[:e.count]), "\x00")
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			info.Nodata = int16(v)
			info.HasNodata = true
		}
	}

	stripOff := entryU32(entries[tagStripOffsets], le)
	stripLen := entryU32(entries[tagStripByteCounts], le)
	if int(stripOff)+int(stripLen) > len(raw) {
		return nil, fmt.Errorf("strip out of bounds")
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw[stripOff : stripOff+stripLen]))
	if err != nil {
		return nil, fmt.Errorf("opening strip: %w", err)
	}
	defer zr.Close()
	pix, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing strip: %w", err)
	}
	want := info.Rows * info.Cols * 2
	if len(pix) != want {
		return nil, fmt.Errorf("strip decodes to %d bytes, want %d", len(pix), want)
	}
	info.Values = make([]int16, info.Rows*info.Cols)
	for i := range info.Values {
		info.Values[i] = int16(le.Uint16(pix[i*2:]))
	}
	return info, nil
}

// epsgFromGeoKeys extracts the geographic or projected CRS code; 0 when the
// CRS is user-defined.
func epsgFromGeoKeys(keys []uint16) int {
	if len(keys) < 4 {
		return 0
	}
	numKeys := int(keys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		switch keys[base] {
		case gkGeographicTypeGeoKey, gkProjectedCSTypeGeoKey:
			if v := keys[base+3]; v != 32767 {
				return int(v)
			}
		}
	}
	return 0
}

func typeSize(dt uint16) int {
	switch dt {
	case dtShort:
		return 2
	case dtLong:
		return 4
	case dtDouble:
		return 8
	default:
		return 1
	}
}

func entryU32(e rawEntry, le binary.ByteOrder) uint32 {
	switch e.dataType {
	case dtShort:
		return uint32(le.Uint16(e.value))
	case dtLong:
		return le.Uint32(e.value)
	}
	return 0
}

func entryShorts(e rawEntry, le binary.ByteOrder) []uint16 {
	out := make([]uint16, e.count)
	for i := range out {
		out[i] = le.Uint16(e.value[i*2:])
	}
	return out
}

func entryDoubles(e rawEntry, le binary.ByteOrder) []float64 {
	if e.dataType != dtDouble {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(le.Uint64(e.value[i*8:]))
	}
	return out
}
