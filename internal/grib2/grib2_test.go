package grib2

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// msgSpec describes a synthetic single-field GRIB2 message for tests.
type msgSpec struct {
	ni, nj     int
	la1, lo1   float64 // first stored grid point, degrees
	di, dj     float64
	scanMode   byte
	nbits      int
	packed     []uint64 // raw packed integers (R=0, E=0, D=0)
	refValue   float32
	bitmap     []byte // nil for indicator 255
	gdt        uint16
	drs        uint16
	skipSec3   bool
	skipSec5   bool
	skipSec7   bool
	bitmapFlag byte
}

func putMicroDeg(b []byte, deg float64) {
	v := int64(math.Round(deg * 1e6))
	var raw uint32
	if v < 0 {
		raw = uint32(-v) | 0x80000000
	} else {
		raw = uint32(v)
	}
	binary.BigEndian.PutUint32(b, raw)
}

// buildMessage assembles sections 0..8 for the spec.
func buildMessage(t *testing.T, s msgSpec) []byte {
	t.Helper()

	var msg []byte
	sec := func(num byte, body []byte) {
		b := make([]byte, 5+len(body))
		binary.BigEndian.PutUint32(b, uint32(len(b)))
		b[4] = num
		copy(b[5:], body)
		msg = append(msg, b...)
	}

	// Section 1: identification, content irrelevant here.
	sec(1, make([]byte, 16))

	if !s.skipSec3 {
		g := make([]byte, 9+58)
		binary.BigEndian.PutUint32(g[1:5], uint32(s.ni*s.nj))
		binary.BigEndian.PutUint16(g[7:9], s.gdt)
		tpl := g[9:]
		binary.BigEndian.PutUint32(tpl[16:20], uint32(s.ni))
		binary.BigEndian.PutUint32(tpl[20:24], uint32(s.nj))
		putMicroDeg(tpl[32:36], s.la1)
		lo1 := s.lo1
		if lo1 < 0 {
			lo1 += 360
		}
		binary.BigEndian.PutUint32(tpl[36:40], uint32(math.Round(lo1*1e6)))
		putMicroDeg(tpl[41:45], s.la1) // La2, informational
		binary.BigEndian.PutUint32(tpl[49:53], uint32(math.Round(s.di*1e6)))
		binary.BigEndian.PutUint32(tpl[53:57], uint32(math.Round(s.dj*1e6)))
		tpl[57] = s.scanMode
		sec(3, g)
	}

	if !s.skipSec5 {
		d := make([]byte, 6+10)
		binary.BigEndian.PutUint32(d[0:4], uint32(len(s.packed)))
		binary.BigEndian.PutUint16(d[4:6], s.drs)
		binary.BigEndian.PutUint32(d[6:10], math.Float32bits(s.refValue))
		d[14] = byte(s.nbits)
		sec(5, d)
	}

	if s.bitmap != nil {
		sec(6, append([]byte{s.bitmapFlag}, s.bitmap...))
	} else {
		sec(6, []byte{255})
	}

	if !s.skipSec7 {
		var data []byte
		if s.nbits > 0 {
			nbytes := (len(s.packed)*s.nbits + 7) / 8
			data = make([]byte, nbytes)
			pos := 0
			for _, x := range s.packed {
				for b := s.nbits - 1; b >= 0; b-- {
					if x>>uint(b)&1 == 1 {
						data[pos/8] |= 1 << uint(7-pos%8)
					}
					pos++
				}
			}
		}
		sec(7, data)
	}

	msg = append(msg, []byte("7777")...)

	head := make([]byte, 16)
	copy(head, "GRIB")
	head[7] = 2
	binary.BigEndian.PutUint64(head[8:16], uint64(16+len(msg)))
	return append(head, msg...)
}

func defaultSpec(vals []uint64) msgSpec {
	return msgSpec{
		ni: 3, nj: 2, la1: 46, lo1: 10, di: 0.5, dj: 0.5,
		scanMode: 0, nbits: 8, packed: vals,
	}
}

func TestDecodeMessage_NorthUp(t *testing.T) {
	raw := buildMessage(t, defaultSpec([]uint64{1, 2, 3, 4, 5, 6}))

	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.Grid.Ni != 3 || m.Grid.Nj != 2 {
		t.Fatalf("grid = %dx%d, want 3x2", m.Grid.Ni, m.Grid.Nj)
	}
	if m.Grid.Lat0 != 46 || m.Grid.Lon0 != 10 || m.Grid.DLat != 0.5 || m.Grid.DLon != 0.5 {
		t.Errorf("geometry = %+v", m.Grid)
	}
	want := []float64{1, 2, 3, 4, 5, 6}
	for i, v := range want {
		if m.Vals[i] != v {
			t.Errorf("val[%d] = %v, want %v", i, m.Vals[i], v)
		}
	}
}

func TestDecodeMessage_SouthUpFlipped(t *testing.T) {
	// Scan mode 0x40 stores rows south to north; the decoder normalizes
	// to north-up and re-derives the northern origin.
	s := defaultSpec([]uint64{1, 2, 3, 4, 5, 6})
	s.scanMode = 0x40
	s.la1 = 45.5 // southern row

	m, err := DecodeMessage(buildMessage(t, s))
	if err != nil {
		t.Fatal(err)
	}
	if m.Grid.Lat0 != 46 {
		t.Errorf("Lat0 = %v, want 46 (northern row)", m.Grid.Lat0)
	}
	want := []float64{4, 5, 6, 1, 2, 3}
	for i, v := range want {
		if m.Vals[i] != v {
			t.Errorf("val[%d] = %v, want %v", i, m.Vals[i], v)
		}
	}
}

func TestDecodeMessage_Bitmap(t *testing.T) {
	s := defaultSpec([]uint64{9, 8, 7, 6})
	s.bitmap = []byte{0b10101100} // points 0,2,4,5 present
	m, err := DecodeMessage(buildMessage(t, s))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{9, math.NaN(), 8, math.NaN(), 7, 6}
	for i := range want {
		got := m.Vals[i]
		if math.IsNaN(want[i]) != math.IsNaN(got) || (!math.IsNaN(got) && got != want[i]) {
			t.Errorf("val[%d] = %v, want %v", i, got, want[i])
		}
	}
}

func TestDecodeMessage_BitmapCountMismatch(t *testing.T) {
	s := defaultSpec([]uint64{9, 8, 7})
	s.bitmap = []byte{0b10101100} // 4 set bits, 3 packed values
	if _, err := DecodeMessage(buildMessage(t, s)); err == nil {
		t.Fatal("expected bitmap/value count mismatch error")
	}
}

func TestDecodeMessage_ConstantField(t *testing.T) {
	s := defaultSpec(make([]uint64, 6))
	s.nbits = 0
	s.refValue = 3
	m, err := DecodeMessage(buildMessage(t, s))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range m.Vals {
		if v != 3 {
			t.Errorf("val[%d] = %v, want 3", i, v)
		}
	}
}

func TestDecodeMessage_Negatives(t *testing.T) {
	// A grid whose first point is on the southern/western hemisphere.
	s := defaultSpec([]uint64{1, 2, 3, 4, 5, 6})
	s.la1, s.lo1 = -10, -25
	m, err := DecodeMessage(buildMessage(t, s))
	if err != nil {
		t.Fatal(err)
	}
	if m.Grid.Lat0 != -10 || m.Grid.Lon0 != -25 {
		t.Errorf("origin = (%v, %v), want (-10, -25)", m.Grid.Lat0, m.Grid.Lon0)
	}
}

func TestDecodeMessage_Errors(t *testing.T) {
	base := defaultSpec([]uint64{1, 2, 3, 4, 5, 6})

	tests := []struct {
		name string
		mod  func(*msgSpec)
		want string
	}{
		{"unsupported gdt", func(s *msgSpec) { s.gdt = 30 }, "grid definition template"},
		{"unsupported drs", func(s *msgSpec) { s.drs = 3 }, "data representation template"},
		{"bad scan mode", func(s *msgSpec) { s.scanMode = 0x20 }, "scan mode"},
		{"bad bitmap flag", func(s *msgSpec) { s.bitmap = []byte{0xFF}; s.bitmapFlag = 17 }, "indicator"},
		{"missing grid", func(s *msgSpec) { s.skipSec3 = true }, "no section 3"},
		{"missing drs", func(s *msgSpec) { s.skipSec5 = true }, "no section 5"},
		{"missing data", func(s *msgSpec) { s.skipSec7 = true }, "no section 7"},
		{"short data", func(s *msgSpec) { s.packed = s.packed[:3] }, "expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mod(&s)
			_, err := DecodeMessage(buildMessage(t, s))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestDecodeMessage_BadMagic(t *testing.T) {
	raw := buildMessage(t, defaultSpec([]uint64{1, 2, 3, 4, 5, 6}))
	raw[0] = 'X'
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatal("expected GRIB magic error")
	}
}

func TestDecodeMessage_TruncatedSection(t *testing.T) {
	raw := buildMessage(t, defaultSpec([]uint64{1, 2, 3, 4, 5, 6}))
	if _, err := DecodeMessage(raw[:len(raw)-20]); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestSigned32(t *testing.T) {
	tests := []struct {
		raw  uint32
		want int32
	}{
		{0, 0},
		{46000000, 46000000},
		{0x80000000 | 25000000, -25000000},
		{0x7FFFFFFF, 0x7FFFFFFF},
	}
	for _, tt := range tests {
		if got := signed32(tt.raw); got != tt.want {
			t.Errorf("signed32(%#x) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeScaleFactor(t *testing.T) {
	if got := decodeScaleFactor(3); got != 3 {
		t.Errorf("decodeScaleFactor(3) = %d", got)
	}
	if got := decodeScaleFactor(0x8000 | 2); got != -2 {
		t.Errorf("decodeScaleFactor(-2) = %d", got)
	}
}

func TestUnpackDRS0_Scaling(t *testing.T) {
	// R=10, E=1, D=1: Y = (10 + X*2) / 10.
	sec5 := make([]byte, 11+10)
	binary.BigEndian.PutUint32(sec5[0:4], uint32(len(sec5)))
	sec5[4] = 5
	binary.BigEndian.PutUint32(sec5[5:9], 2)
	t5 := sec5[11:]
	binary.BigEndian.PutUint32(t5[0:4], math.Float32bits(10))
	binary.BigEndian.PutUint16(t5[4:6], 1)
	binary.BigEndian.PutUint16(t5[6:8], 1)
	t5[8] = 8
	p, err := parseDRS0(sec5)
	if err != nil {
		t.Fatal(err)
	}

	sec7 := []byte{0, 0, 0, 7, 7, 5, 20}
	vals, err := unpackDRS0(sec7, p)
	if err != nil {
		t.Fatal(err)
	}
	if vals[0] != 2.0 || vals[1] != 5.0 {
		t.Errorf("vals = %v, want [2 5]", vals)
	}
}

func TestBitReader_NonAligned(t *testing.T) {
	br := newBitReader([]byte{0b10110100, 0b11000000})
	got := make([]uint64, 0, 3)
	for i := 0; i < 3; i++ {
		v, err := br.read(3)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v)
	}
	want := []uint64{0b101, 0b101, 0b001}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("read %d = %b, want %b", i, got[i], want[i])
		}
	}
	if _, err := br.read(10); err == nil {
		t.Error("expected overflow error")
	}
}

func TestReadFile(t *testing.T) {
	raw := buildMessage(t, defaultSpec([]uint64{1, 2, 3, 4, 5, 6}))
	path := filepath.Join(t.TempDir(), "h13.grib2")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Vals) != 6 {
		t.Fatalf("len(Vals) = %d, want 6", len(m.Vals))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.grib2")); err == nil {
		t.Error("expected error for missing file")
	}
}
