package ncdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"

	"github.com/hsaf-tools/snowgrid/internal/config"
	"github.com/hsaf-tools/snowgrid/internal/geocode"
)

const fill = int16(-9999)

// writeFixture creates a NetCDF classic file with one variable.
func writeFixture(t *testing.T, name string, dims []string, lengths []int, varDims []string, sample interface{}, data interface{}, fillAttr interface{}) string {
	t.Helper()

	h := cdf.NewHeader(dims, lengths)
	h.AddVariable("SC", varDims, sample)
	if fillAttr != nil {
		h.AddAttribute("SC", "_FillValue", fillAttr)
	}
	h.Define()

	path := filepath.Join(t.TempDir(), name)
	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	end := f.Header.Lengths("SC")
	w := f.Writer("SC", make([]int, len(end)), end)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := ff.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadField_PreservesRowOrder(t *testing.T) {
	// The stored array is already north-up, west-to-east; the reader must
	// hand it to the engine unmoved.
	stored := []int16{1, 2, 3, 4, 5, 6}
	path := writeFixture(t, "scan.nc",
		[]string{"y", "x"}, []int{3, 2},
		[]string{"y", "x"}, []int16{0}, stored, []int16{-32768})

	f, err := ReadField(path, "SC", fill)
	if err != nil {
		t.Fatal(err)
	}
	if f.Rows != 3 || f.Cols != 2 {
		t.Fatalf("shape = %dx%d, want 2x3", f.Cols, f.Rows)
	}
	for i, v := range stored {
		if f.Values[i] != v {
			t.Errorf("value[%d] = %d, want %d", i, f.Values[i], v)
		}
	}
}

func TestReadField_FullDiskOrientation(t *testing.T) {
	// Stored pixel (0,0) is the north-west sample of the window and must
	// land in the north-west cell of a native geostationary conversion.
	stored := []int16{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	path := writeFixture(t, "disk.nc",
		[]string{"y", "x"}, []int{3, 3},
		[]string{"y", "x"}, []int16{0}, stored, nil)

	p := config.Product{
		Code: "T00", Format: config.FormatNetCDF, Variable: "SC",
		Geoloc: config.GeolocScan, Fill: fill, WGS84Cell: 0.03,
		Scan: &config.ScanSpec{
			OriginX: -600000, OriginY: 600000, Cell: 400000, Rows: 3, Cols: 3,
		},
		TargetCRS: []string{"GEOS"},
	}

	f, err := ReadField(path, "SC", fill)
	if err != nil {
		t.Fatal(err)
	}
	loc, err := geocode.ScanLocator(p, f)
	if err != nil {
		t.Fatal(err)
	}
	g, err := geocode.New(p, "GEOS", geocode.Options{})
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := g.Convert(f, loc)
	if err != nil {
		t.Fatal(err)
	}

	if got := out.At(0, 0); got != 1 {
		t.Errorf("north-west cell = %d, want 1 (stored pixel (0,0))", got)
	}
	if out.Def.OriginY <= 0 {
		t.Errorf("output origin Y = %g, want the northern edge", out.Def.OriginY)
	}
}

func TestReadField_MapsFillValue(t *testing.T) {
	stored := []int16{1, -32768, 3, 4}
	path := writeFixture(t, "fill.nc",
		[]string{"y", "x"}, []int{2, 2},
		[]string{"y", "x"}, []int16{0}, stored, []int16{-32768})

	f, err := ReadField(path, "SC", fill)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.At(0, 1); got != fill {
		t.Errorf("At(0,1) = %d, want fill %d", got, fill)
	}
	if got := f.At(1, 0); got != 3 {
		t.Errorf("At(1,0) = %d, want 3", got)
	}
}

func TestReadField_FloatVariable(t *testing.T) {
	stored := []float32{1.2, 2.6, 3.0, 4.4}
	path := writeFixture(t, "float.nc",
		[]string{"y", "x"}, []int{2, 2},
		[]string{"y", "x"}, []float32{0}, stored, nil)

	f, err := ReadField(path, "SC", fill)
	if err != nil {
		t.Fatal(err)
	}
	want := []int16{1, 3, 3, 4}
	for i, v := range want {
		if f.Values[i] != v {
			t.Errorf("value[%d] = %d, want %d", i, f.Values[i], v)
		}
	}
}

func TestReadField_LeadingTimeDimension(t *testing.T) {
	stored := []int16{1, 2, 3, 4, 5, 6}
	path := writeFixture(t, "time.nc",
		[]string{"t", "y", "x"}, []int{1, 2, 3},
		[]string{"t", "y", "x"}, []int16{0}, stored, nil)

	f, err := ReadField(path, "SC", fill)
	if err != nil {
		t.Fatal(err)
	}
	if f.Rows != 2 || f.Cols != 3 {
		t.Fatalf("shape = %dx%d, want 3x2", f.Cols, f.Rows)
	}
}

func TestReadField_MissingVariable(t *testing.T) {
	path := writeFixture(t, "missing.nc",
		[]string{"y", "x"}, []int{2, 2},
		[]string{"y", "x"}, []int16{0}, []int16{1, 2, 3, 4}, nil)

	if _, err := ReadField(path, "snow", fill); err == nil {
		t.Fatal("expected error for missing variable")
	}
}

func TestReadField_MissingFile(t *testing.T) {
	if _, err := ReadField(filepath.Join(t.TempDir(), "nope.nc"), "SC", fill); err == nil {
		t.Fatal("expected error for missing file")
	}
}
