// Package gtiff writes single-band int16 GeoTIFFs: little-endian classic
// TIFF, one Deflate-compressed strip, georeferencing via the GeoTIFF tags.
package gtiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hsaf-tools/snowgrid/internal/raster"
)

// TIFF tag IDs.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagSampleFormat       = 339
	tagModelPixelScaleTag = 33550
	tagModelTiepointTag   = 33922
	tagGeoKeyDirectoryTag = 34735
	tagGeoAsciiParamsTag  = 34737
	tagGDALNodata         = 42113
)

// TIFF data types.
const (
	dtASCII  = 2
	dtShort  = 3
	dtLong   = 4
	dtDouble = 12
)

// GeoTIFF GeoKey IDs.
const (
	gkModelTypeGeoKey       = 1024
	gkRasterTypeGeoKey      = 1025
	gkCitationGeoKey        = 1026
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

const compressionDeflate = 8 // zlib streams, the GDAL default deflate

// Writer writes rasters as GeoTIFF files. It satisfies raster.Writer.
// The output is written to a temp file in the target directory and renamed
// into place, so a failed run never leaves a partial product behind.
type Writer struct {
	// WorldFile also writes a .tfw sidecar next to the TIFF.
	WorldFile bool
}

// Write encodes r and atomically places it at path.
func (w Writer) Write(path string, r *raster.Raster) error {
	if r.Def.Rows <= 0 || r.Def.Cols <= 0 {
		return fmt.Errorf("gtiff: empty raster %dx%d", r.Def.Cols, r.Def.Rows)
	}
	if len(r.Values) != r.Def.Rows*r.Def.Cols {
		return fmt.Errorf("gtiff: raster has %d values for a %dx%d grid",
			len(r.Values), r.Def.Cols, r.Def.Rows)
	}

	body, err := encode(r)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	if w.WorldFile {
		return writeWorldFile(worldFilePath(path), r)
	}
	return nil
}

// entry is one IFD entry with its value already serialized.
type entry struct {
	tag      uint16
	dataType uint16
	count    uint32
	value    []byte // raw little-endian value bytes
}

// encode builds the whole TIFF in memory. Layout: 8-byte header, the
// compressed strip, external entry values, IFD last.
func encode(r *raster.Raster) ([]byte, error) {
	le := binary.LittleEndian

	strip, err := compressStrip(r.Values)
	if err != nil {
		return nil, err
	}
	stripLen := uint32(len(strip))
	if len(strip)%2 == 1 { // keep everything after the strip word-aligned
		strip = append(strip, 0)
	}
	stripOffset := uint32(8)

	geoKeys, geoAscii := geoKeysFor(r.Def.CRS)
	if geoKeys == nil {
		return nil, fmt.Errorf("gtiff: no georeferencing for CRS %q", r.Def.CRS)
	}

	entries := []entry{
		u32Entry(tagImageWidth, uint32(r.Def.Cols)),
		u32Entry(tagImageLength, uint32(r.Def.Rows)),
		u16Entry(tagBitsPerSample, 16),
		u16Entry(tagCompression, compressionDeflate),
		u16Entry(tagPhotometric, 1), // BlackIsZero
		u32Entry(tagStripOffsets, stripOffset),
		u16Entry(tagSamplesPerPixel, 1),
		u32Entry(tagRowsPerStrip, uint32(r.Def.Rows)),
		u32Entry(tagStripByteCounts, stripLen),
		u16Entry(tagPlanarConfig, 1),
		u16Entry(tagSampleFormat, 2), // signed integer
		doubleEntry(tagModelPixelScaleTag, []float64{r.Def.Cell, r.Def.Cell, 0}),
		// Pixel (0,0) corner maps to the grid origin.
		doubleEntry(tagModelTiepointTag, []float64{0, 0, 0, r.Def.OriginX, r.Def.OriginY, 0}),
		shortSliceEntry(tagGeoKeyDirectoryTag, geoKeys),
	}
	if geoAscii != "" {
		entries = append(entries, asciiEntry(tagGeoAsciiParamsTag, geoAscii))
	}
	entries = append(entries, asciiEntry(tagGDALNodata, strconv.Itoa(int(r.Fill))))

	// External value area sits between the strip and the IFD.
	extOffset := stripOffset + uint32(len(strip))
	var ext bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.value) <= 4 {
			continue
		}
		off := extOffset + uint32(ext.Len())
		ext.Write(e.value)
		if ext.Len()%2 == 1 { // word-align external values
			ext.WriteByte(0)
		}
		inline := make([]byte, 4)
		le.PutUint32(inline, off)
		e.value = inline
	}
	ifdOffset := extOffset + uint32(ext.Len())

	var buf bytes.Buffer
	buf.WriteString("II")
	head := make([]byte, 6)
	le.PutUint16(head[0:2], 42)
	le.PutUint32(head[2:6], ifdOffset)
	buf.Write(head)
	buf.Write(strip)
	buf.Write(ext.Bytes())

	ifd := make([]byte, 2+len(entries)*12+4)
	le.PutUint16(ifd[0:2], uint16(len(entries)))
	for i, e := range entries {
		b := ifd[2+i*12:]
		le.PutUint16(b[0:2], e.tag)
		le.PutUint16(b[2:4], e.dataType)
		le.PutUint32(b[4:8], e.count)
		copy(b[8:12], e.value)
	}
	// Last 4 bytes: next IFD offset, zero.
	buf.Write(ifd)
	return buf.Bytes(), nil
}

// compressStrip packs the values little-endian and deflates them as one strip.
func compressStrip(values []int16) ([]byte, error) {
	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// geoKeysFor builds the GeoKey directory for the supported output CRS.
// Geographic output names EPSG 4326 directly; geostationary output is a
// user-defined projected CRS carrying a citation string.
func geoKeysFor(crs string) ([]uint16, string) {
	switch crs {
	case "EPSG:4326", "4326", "WGS84":
		return []uint16{
			1, 1, 0, 3,
			gkModelTypeGeoKey, 0, 1, 2, // geographic
			gkRasterTypeGeoKey, 0, 1, 1, // pixel is area
			gkGeographicTypeGeoKey, 0, 1, 4326,
		}, ""
	case "GEOS":
		citation := "Geostationary satellite view (MSG), sweep y|"
		return []uint16{
			1, 1, 0, 4,
			gkModelTypeGeoKey, 0, 1, 1, // projected
			gkRasterTypeGeoKey, 0, 1, 1,
			gkCitationGeoKey, tagGeoAsciiParamsTag, uint16(len(citation)), 0,
			gkProjectedCSTypeGeoKey, 0, 1, 32767, // user-defined
		}, citation
	default:
		return nil, ""
	}
}

func u16Entry(tag uint16, v uint16) entry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b, v)
	return entry{tag: tag, dataType: dtShort, count: 1, value: b}
}

func u32Entry(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return entry{tag: tag, dataType: dtLong, count: 1, value: b}
}

func doubleEntry(tag uint16, vals []float64) entry {
	b := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[i*8:], floatBits(v))
	}
	return entry{tag: tag, dataType: dtDouble, count: uint32(len(vals)), value: b}
}

func floatBits(v float64) uint64 {
	return math.Float64bits(v)
}

func shortSliceEntry(tag uint16, vals []uint16) entry {
	b := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return entry{tag: tag, dataType: dtShort, count: uint32(len(vals)), value: b}
}

// asciiEntry serializes a NUL-terminated ASCII tag value.
func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	v := make([]byte, len(b))
	copy(v, b)
	if len(v) < 4 {
		v = append(v, make([]byte, 4-len(v))...)
	}
	return entry{tag: tag, dataType: dtASCII, count: uint32(len(b)), value: v}
}

// worldFilePath swaps the extension for .tfw.
func worldFilePath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + ".tfw"
}

// writeWorldFile writes the six-line world file. The world file origin is
// the centre of the upper-left pixel, not its corner.
func writeWorldFile(path string, r *raster.Raster) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%.12g\n0\n0\n%.12g\n%.12g\n%.12g\n",
		r.Def.Cell, -r.Def.Cell,
		r.Def.OriginX+r.Def.Cell/2, r.Def.OriginY-r.Def.Cell/2)
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
