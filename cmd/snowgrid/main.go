package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hsaf-tools/snowgrid/internal/config"
	"github.com/hsaf-tools/snowgrid/internal/geocode"
	"github.com/hsaf-tools/snowgrid/internal/geoloc"
	"github.com/hsaf-tools/snowgrid/internal/grib2"
	"github.com/hsaf-tools/snowgrid/internal/gridder"
	"github.com/hsaf-tools/snowgrid/internal/gtiff"
	"github.com/hsaf-tools/snowgrid/internal/logger"
	"github.com/hsaf-tools/snowgrid/internal/ncdf"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input      string  `short:"i" long:"input"      description:"Input product file"`
	Output     string  `short:"o" long:"output"     description:"Output GeoTIFF path"`
	Product    string  `short:"p" long:"product"    description:"Product code (e.g. H10, H13, H34)"`
	CRS        string  `long:"crs"                  description:"Target CRS: 4326 or GEOS"                       default:"4326"`
	Cell       float64 `long:"cell"                 description:"Output cell size override (target CRS units)"`
	Resampling string  `short:"r" long:"resampling" description:"Tie-break policy" choice:"last" choice:"nearest" default:"last"`
	Workers    int     `short:"w" long:"workers"    description:"Parallel resampling workers (0 = all CPUs)"`
	Catalog    string  `long:"catalog"              description:"YAML product catalog overriding the built-ins"`
	WorldFile  bool    `long:"world-file"           description:"Also write a .tfw sidecar"`
	Progress   bool    `long:"progress"             description:"Show a progress bar on stderr"`
	Version    bool    `long:"version"              description:"Print version and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("snowgrid %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	opts.Logger.Setup()

	if missing := missingOptions(&opts); len(missing) > 0 {
		log.Fatal().Strs("flags", missing).Msg("Missing required flags")
	}

	// Everything below is validated before any input file is touched.
	cat := config.Default()
	if opts.Catalog != "" {
		var err error
		cat, err = config.Load(opts.Catalog)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load product catalog")
		}
	}

	product, ok := cat.Lookup(opts.Product)
	if !ok {
		log.Fatal().
			Str("product", opts.Product).
			Strs("supported", cat.Codes()).
			Msg("Unknown product code")
	}

	mode, err := gridder.ParseMode(opts.Resampling)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid resampling mode")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if !strings.HasSuffix(strings.ToLower(opts.Output), ".tif") &&
		!strings.HasSuffix(strings.ToLower(opts.Output), ".tiff") {
		log.Fatal().Str("output", opts.Output).Msg("Output file must have a .tif extension")
	}

	gopts := geocode.Options{Cell: opts.Cell, Mode: mode, Workers: workers}
	g, err := geocode.New(product, opts.CRS, gopts)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid product/CRS combination")
	}

	fmt.Printf("snowgrid %s\n", version)
	fmt.Printf("  %-12s %s (%s, %s geolocation)\n", "Product:", product.Code, product.Format, product.Geoloc)
	fmt.Printf("  %-12s %s at cell %g\n", "Target:", g.Transform().CRS(), g.Cell())
	fmt.Printf("  %-12s %s, %d worker(s)\n", "Resampling:", opts.Resampling, workers)
	fmt.Printf("  %-12s %s\n", "Input:", opts.Input)
	fmt.Printf("  %-12s %s\n", "Output:", opts.Output)

	start := time.Now()
	field, loc, err := readInput(product, opts.Input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}
	log.Info().
		Int("rows", field.Rows).
		Int("cols", field.Cols).
		Dur("elapsed", time.Since(start)).
		Msg("Input loaded")

	var bar *gridder.ProgressBar
	if opts.Progress {
		bar = gridder.NewProgressBar(field.Rows)
		gopts.Progress = bar.Increment
		g, err = geocode.New(product, opts.CRS, gopts)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid product/CRS combination")
		}
	}

	convStart := time.Now()
	out, stats, err := g.Convert(field, loc)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Geocoding failed")
	}

	log.Info().
		Int64("gridded", stats.Gridded).
		Int64("fill", stats.FillSamples).
		Int64("invalid_location", stats.InvalidLocation).
		Int64("not_visible", stats.NotVisible).
		Int64("out_of_grid", stats.OutOfGrid).
		Dur("elapsed", time.Since(convStart)).
		Msg("Resampling finished")

	if err := (gtiff.Writer{WorldFile: opts.WorldFile}).Write(opts.Output, out); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}

	fi, _ := os.Stat(opts.Output)
	var size int64
	if fi != nil {
		size = fi.Size()
	}
	fmt.Printf("Done: %dx%d cells (%d covered), %s, %v → %s\n",
		out.Def.Cols, out.Def.Rows, out.CoveredCells(), humanSize(size),
		time.Since(start).Round(time.Millisecond), opts.Output)
}

// missingOptions lists the required flags left unset. They are not marked
// required in the struct tags so that --version works on its own.
func missingOptions(opts *Options) []string {
	var missing []string
	if opts.Input == "" {
		missing = append(missing, "--input")
	}
	if opts.Output == "" {
		missing = append(missing, "--output")
	}
	if opts.Product == "" {
		missing = append(missing, "--product")
	}
	return missing
}

// readInput loads the source field and its geolocation for the product's
// container format.
func readInput(p config.Product, path string) (*gridder.Field, geoloc.Locator, error) {
	switch p.Format {
	case config.FormatNetCDF:
		field, err := ncdf.ReadField(path, p.Variable, p.Fill)
		if err != nil {
			return nil, nil, err
		}
		loc, err := geocode.ScanLocator(p, field)
		if err != nil {
			return nil, nil, err
		}
		return field, loc, nil

	case config.FormatGRIB2:
		msg, err := grib2.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		values := make([]int16, len(msg.Vals))
		for i, v := range msg.Vals {
			values[i] = roundClass(v, p.Fill)
		}
		field, err := gridder.NewField(values, msg.Grid.Nj, msg.Grid.Ni, p.Fill)
		if err != nil {
			return nil, nil, err
		}
		loc, err := geoloc.NewRegularGrid(msg.Grid.Lat0, msg.Grid.Lon0,
			-msg.Grid.DLat, msg.Grid.DLon, msg.Grid.Nj, msg.Grid.Ni)
		if err != nil {
			return nil, nil, err
		}
		return field, loc, nil

	default:
		return nil, nil, fmt.Errorf("unsupported container format %q", p.Format)
	}
}

func roundClass(v float64, fill int16) int16 {
	if v != v || v < -32768 || v > 32767 { // NaN or out of int16 range
		return fill
	}
	if v >= 0 {
		return int16(v + 0.5)
	}
	return int16(v - 0.5)
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
