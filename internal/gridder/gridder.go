package gridder

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hsaf-tools/snowgrid/internal/coord"
	"github.com/hsaf-tools/snowgrid/internal/geoloc"
	"github.com/hsaf-tools/snowgrid/internal/grid"
	"github.com/hsaf-tools/snowgrid/internal/raster"
)

// Mode selects the tie-break policy when several source samples land in the
// same output cell.
type Mode int

const (
	// ModeLastWriter keeps the last sample in source scan order.
	ModeLastWriter Mode = iota
	// ModeNearestCenter keeps the sample whose projected position is
	// closest to the cell centre, independent of scan order.
	ModeNearestCenter
)

// ParseMode resolves a tie-break policy name.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "last", "last-writer":
		return ModeLastWriter, nil
	case "nearest", "nearest-center":
		return ModeNearestCenter, nil
	default:
		return 0, fmt.Errorf("gridder: unknown resampling mode %q (want last or nearest)", name)
	}
}

// Options configures a resampling run.
type Options struct {
	Mode Mode
	// Workers partitions source rows across goroutines. Results are
	// identical to the sequential pass for both modes. 0 or 1 runs
	// sequentially.
	Workers int
	// Progress, when non-nil, is called once per completed source row.
	Progress func()
}

// Stats counts per-sample dispositions of one resampling run. Per-sample
// conditions never abort the run.
type Stats struct {
	Gridded         int64 // samples written into the output grid
	FillSamples     int64 // values equal to the fill sentinel
	InvalidLocation int64 // samples with no valid geolocation
	NotVisible      int64 // samples outside the projection domain
	OutOfGrid       int64 // projected samples falling outside the grid
}

func (s Stats) add(o Stats) Stats {
	s.Gridded += o.Gridded
	s.FillSamples += o.FillSamples
	s.InvalidLocation += o.InvalidLocation
	s.NotVisible += o.NotVisible
	s.OutOfGrid += o.OutOfGrid
	return s
}

// Resample bins every valid source sample into the output grid described by
// def, projecting through tr. Cells no sample reaches keep the fill value;
// that is valid output, not an error. The pass is deterministic: with
// ModeLastWriter the last sample in source scan order wins ties regardless
// of the worker count.
func Resample(f *Field, loc geoloc.Locator, tr coord.Transform, def grid.Definition, opts Options) (*raster.Raster, Stats, error) {
	if f.Rows != loc.Rows() || f.Cols != loc.Cols() {
		return nil, Stats{}, fmt.Errorf("gridder: field %dx%d does not match geolocation %dx%d",
			f.Rows, f.Cols, loc.Rows(), loc.Cols())
	}

	out, err := raster.New(def, f.Fill)
	if err != nil {
		return nil, Stats{}, err
	}

	workers := opts.Workers
	if workers > f.Rows {
		workers = f.Rows
	}
	if workers <= 1 {
		var dist []float64
		if opts.Mode == ModeNearestCenter {
			dist = newDistances(def)
		}
		stats := gridRows(f, loc, tr, def, 0, f.Rows, out.Values, out.Coverage, dist, opts)
		return out, stats, nil
	}

	// Partition source rows into contiguous bands, grid each band into its
	// own buffers, then merge in band order. Later bands overwrite earlier
	// ones where both wrote, which reproduces scan-order last-writer-wins;
	// nearest-centre merges on distance instead and is order-free.
	type band struct {
		values   []int16
		coverage []uint32
		dist     []float64
		stats    Stats
	}

	bands := make([]band, workers)
	rowsPerBand := (f.Rows + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerBand
		end := start + rowsPerBand
		if end > f.Rows {
			end = f.Rows
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			b := &bands[w]
			b.values = make([]int16, def.Rows*def.Cols)
			for i := range b.values {
				b.values[i] = f.Fill
			}
			b.coverage = make([]uint32, def.Rows*def.Cols)
			if opts.Mode == ModeNearestCenter {
				b.dist = newDistances(def)
			}
			b.stats = gridRows(f, loc, tr, def, start, end, b.values, b.coverage, b.dist, opts)
		}(w, start, end)
	}
	wg.Wait()

	var stats Stats
	var best []float64
	if opts.Mode == ModeNearestCenter {
		best = newDistances(def)
	}
	for w := range bands {
		b := &bands[w]
		if b.values == nil {
			continue
		}
		stats = stats.add(b.stats)
		for i, c := range b.coverage {
			if c == 0 {
				continue
			}
			out.Coverage[i] += c
			switch opts.Mode {
			case ModeNearestCenter:
				if b.dist[i] < best[i] {
					best[i] = b.dist[i]
					out.Values[i] = b.values[i]
				}
			default:
				out.Values[i] = b.values[i]
			}
		}
	}
	return out, stats, nil
}

// gridRows bins source rows [start, end) into the given buffers.
func gridRows(f *Field, loc geoloc.Locator, tr coord.Transform, def grid.Definition,
	start, end int, values []int16, coverage []uint32, dist []float64, opts Options) Stats {

	var stats Stats
	for row := start; row < end; row++ {
		for col := 0; col < f.Cols; col++ {
			v := f.At(row, col)
			if v == f.Fill {
				stats.FillSamples++
				continue
			}
			lat, lon, ok := loc.Locate(row, col)
			if !ok {
				stats.InvalidLocation++
				continue
			}
			x, y, err := tr.Forward(lat, lon)
			if err != nil {
				if errors.Is(err, coord.ErrNotVisible) {
					stats.NotVisible++
					continue
				}
				stats.InvalidLocation++
				continue
			}
			gr, gc, ok := def.CellIndex(x, y)
			if !ok {
				stats.OutOfGrid++
				continue
			}

			i := gr*def.Cols + gc
			if dist != nil {
				cx := def.OriginX + (float64(gc)+0.5)*def.Cell
				cy := def.OriginY - (float64(gr)+0.5)*def.Cell
				d := (x-cx)*(x-cx) + (y-cy)*(y-cy)
				if d < dist[i] {
					dist[i] = d
					values[i] = v
				}
			} else {
				values[i] = v
			}
			coverage[i]++
			stats.Gridded++
		}
		if opts.Progress != nil {
			opts.Progress()
		}
	}
	return stats
}

func newDistances(def grid.Definition) []float64 {
	d := make([]float64, def.Rows*def.Cols)
	for i := range d {
		d[i] = math.Inf(1)
	}
	return d
}
