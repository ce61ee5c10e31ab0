// Command waffle resolves recursive elevation catalogs into gridded
// surfaces and estimates their interpolation uncertainty.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/demworks/waffle/internal/catalog"
	"github.com/demworks/waffle/internal/config"
	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/fsutil"
	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/native"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/report"
	"github.com/demworks/waffle/internal/spatialmeta"
	"github.com/demworks/waffle/internal/store"
	"github.com/demworks/waffle/internal/uncertainty"
	"github.com/demworks/waffle/internal/version"
	"github.com/demworks/waffle/internal/waffle"
)

const usage = `waffle - recursive elevation catalogs, gridding and uncertainty

Usage:
  waffle grid        -region W/E/S/N -cell SIZE [options] <datalist>
  waffle uncertainty -region W/E/S/N -cell SIZE [options] <datalist>
  waffle datalist    <list|inf|append> [options] <datalist> ["entry line"]
  waffle spat-meta   -region W/E/S/N -cell SIZE [options] <datalist>
  waffle migrate     <up|down|status> [-db PATH] [-migrations DIR]
  waffle version

Run any subcommand with -h for its flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "grid":
		runGrid(os.Args[2:])
	case "uncertainty":
		runUncertainty(os.Args[2:])
	case "datalist":
		runDatalist(os.Args[2:])
	case "spat-meta":
		runSpatialMeta(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("waffle %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

// loadConfig reads an optional config file; an empty path gives an
// empty config so the Get accessors supply defaults.
func loadConfig(path string) *config.RunConfig {
	if path == "" {
		return config.Empty()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// resolveTarget combines the -region/-cell flags with the config file;
// flags win when both are set.
func resolveTarget(cfg *config.RunConfig, regionFlag string, cellFlag float64) (region.Region, float64) {
	regionStr := regionFlag
	if regionStr == "" && cfg.Region != nil {
		regionStr = *cfg.Region
	}
	if regionStr == "" {
		log.Fatal("A target region is required (-region W/E/S/N[/zmin/zmax])")
	}
	r, err := region.Parse(regionStr)
	if err != nil {
		log.Fatalf("Invalid region: %v", err)
	}

	cell := cellFlag
	if cell == 0 {
		cell = cfg.GetCellSize()
	}
	if cell <= 0 {
		log.Fatal("A positive cell size is required (-cell)")
	}
	return r, cell
}

func catalogOptions(r region.Region, override float64, overwrite bool) catalog.Options {
	opts := catalog.Options{Region: &r, OverwriteCache: overwrite}
	if r.HasZ {
		opts.UseZ = true
		opts.ZMin = r.ZMin
		opts.ZMax = r.ZMax
	}
	if override > 0 {
		opts.Override = &override
	}
	return opts
}

func parseMode(s string) grid.Mode {
	switch s {
	case "count":
		return grid.Count
	case "mean":
		return grid.Mean
	case "presence":
		return grid.Presence
	}
	log.Fatalf("Unknown mode %q (want count, mean or presence)", s)
	return grid.Mean
}

func runGrid(args []string) {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Run configuration JSON file")
		regionStr  = fs.String("region", "", "Target region west/east/south/north[/zmin/zmax]")
		cellSize   = fs.Float64("cell", 0, "Cell size in region units")
		mode       = fs.String("mode", "", "Binning mode: count, mean or presence")
		useIDW     = fs.Bool("idw", false, "Interpolate with inverse distance weighting instead of binning")
		power      = fs.Float64("power", 2, "IDW distance exponent")
		radius     = fs.Int("radius", 16, "IDW search radius in cells")
		chunk      = fs.Int("chunk", -1, "Tile size in cells for chunked interpolation (0 disables)")
		override   = fs.Float64("weight", 0, "Weight override compounded down the catalog")
		overwrite  = fs.Bool("overwrite", false, "Regenerate extent-cache sidecars")
		archiveDir = fs.String("archive", "", "Also archive the resolved stream into this directory")
		output     = fs.String("output", "waffle", "Output path prefix")
	)
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("Usage: waffle grid [options] <datalist>")
	}
	rootRef := fs.Arg(0)
	cfg := loadConfig(*configPath)
	target, cell := resolveTarget(cfg, *regionStr, *cellSize)

	modeStr := *mode
	if modeStr == "" {
		modeStr = cfg.GetMode()
	}
	chunkCells := *chunk
	if chunkCells < 0 {
		chunkCells = cfg.GetChunkCells()
	}
	wo := *override
	if wo == 0 && cfg.WeightOverride != nil {
		wo = *cfg.WeightOverride
	}

	res := catalog.NewResolver()
	opts := waffle.Options{
		Region:     target,
		CellSize:   cell,
		Mode:       parseMode(modeStr),
		ChunkCells: chunkCells,
		Catalog:    catalogOptions(target, wo, *overwrite || cfg.GetOverwriteCache()),
	}
	if *useIDW {
		opts.Engine = native.Engine{Power: *power, RadiusCells: *radius}
		opts.Params = engine.GridParams{Method: "idw"}
	}

	out, err := waffle.Run(res, rootRef, opts)
	if err != nil {
		log.Fatalf("Gridding failed: %v", err)
	}

	writer := native.AsciiWriter{FS: fsutil.OS{}}
	demPath, err := writer.Write(out.DEM, *output+"_dem")
	if err != nil {
		log.Fatalf("Failed to write surface: %v", err)
	}
	maskPath, err := writer.Write(out.Mask, *output+"_mask")
	if err != nil {
		log.Fatalf("Failed to write mask: %v", err)
	}
	log.Printf("Wrote %s and %s (%d records)", demPath, maskPath, out.Points)

	if *archiveDir != "" {
		name := strings.TrimSuffix(filepath.Base(rootRef), filepath.Ext(rootRef))
		if err := res.Archive(rootRef, opts.Catalog, *archiveDir, name, nil); err != nil {
			log.Fatalf("Archive failed: %v", err)
		}
		log.Printf("Archived resolved stream under %s", *archiveDir)
	}
}

func runUncertainty(args []string) {
	fs := flag.NewFlagSet("uncertainty", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Run configuration JSON file")
		regionStr  = fs.String("region", "", "Target region west/east/south/north[/zmin/zmax]")
		cellSize   = fs.Float64("cell", 0, "Cell size in region units")
		power      = fs.Float64("power", 2, "IDW distance exponent")
		radius     = fs.Int("radius", 16, "IDW search radius in cells")
		sims       = fs.Int("sims", 0, "Split-sample simulation rounds")
		percentile = fs.Float64("percentile", 0, "Proximity percentile for tiling and sample bounds")
		seed       = fs.Int64("seed", 0, "RNG seed")
		name       = fs.String("name", "", "Run name recorded in the store")
		dbPath     = fs.String("db", "", "Run store database path")
		migrations = fs.String("migrations", "internal/store/migrations", "Migrations directory")
		reportDir  = fs.String("report", "", "Write HTML and PNG reports into this directory")
		output     = fs.String("output", "waffle", "Output path prefix")
	)
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("Usage: waffle uncertainty [options] <datalist>")
	}
	rootRef := fs.Arg(0)
	cfg := loadConfig(*configPath)
	target, cell := resolveTarget(cfg, *regionStr, *cellSize)

	res := catalog.NewResolver()
	gridOut, err := waffle.Run(res, rootRef, waffle.Options{
		Region:   target,
		CellSize: cell,
		Engine:   native.Engine{Power: *power, RadiusCells: *radius},
		Params:   engine.GridParams{Method: "idw"},
		Catalog:  catalogOptions(target, 0, cfg.GetOverwriteCache()),
	})
	if err != nil {
		log.Fatalf("Gridding failed: %v", err)
	}

	estCfg := uncertainty.DefaultConfig()
	estCfg.Sims = pickInt(*sims, cfg.GetSims())
	estCfg.Percentile = pickFloat(*percentile, cfg.GetPercentile())
	estCfg.ChunkLevel = cfg.GetChunkLevel()
	estCfg.MaxTilesPerZone = cfg.GetMaxTilesPerZone()
	estCfg.Seed = pickInt64(*seed, cfg.GetSeed())

	est := &uncertainty.Estimator{
		Engine:  native.Engine{Power: *power, RadiusCells: *radius},
		Deriver: native.Deriver{},
		Params:  engine.GridParams{Method: "idw"},
		Config:  estCfg,
	}
	result, err := est.Run(gridOut.DEM, gridOut.Mask)
	if err != nil {
		log.Fatalf("Uncertainty estimation failed: %v", err)
	}
	log.Printf("Distance model: %.4g + %.4g*x^%.4g", result.Distance.P0, result.Distance.P1, result.Distance.P2)
	log.Printf("Slope model:    %.4g + %.4g*x^%.4g", result.Slope.P0, result.Slope.P1, result.Slope.P2)

	writer := native.AsciiWriter{FS: fsutil.OS{}}
	if _, err := writer.Write(result.DistanceUnc, *output+"_unc_distance"); err != nil {
		log.Fatalf("Failed to write distance uncertainty: %v", err)
	}
	if _, err := writer.Write(result.SlopeUnc, *output+"_unc_slope"); err != nil {
		log.Fatalf("Failed to write slope uncertainty: %v", err)
	}

	db := *dbPath
	if db == "" {
		db = cfg.GetDBPath()
	}
	st, err := store.Open(db)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer st.Close()
	if err := st.MigrateUp(*migrations); err != nil {
		log.Fatalf("Failed to migrate run store: %v", err)
	}
	run := &store.Run{
		Name:       *name,
		Region:     target.String(),
		CellSize:   cell,
		Percentile: estCfg.Percentile,
		Sims:       estCfg.Sims,
		TileCount:  result.TileCount,
		TrialCount: result.TrialCount,
		Density:    result.Density,
		Distance:   result.Distance,
		Slope:      result.Slope,
	}
	if err := st.SaveRun(run, result.Samples); err != nil {
		log.Fatalf("Failed to save run: %v", err)
	}
	log.Printf("Saved run %s (%d samples)", run.ID, run.SampleCount)

	if *reportDir != "" {
		osfs := fsutil.OS{}
		if err := osfs.MkdirAll(*reportDir, 0o755); err != nil {
			log.Fatalf("Failed to create report dir: %v", err)
		}
		htmlPath := filepath.Join(*reportDir, "uncertainty.html")
		err := report.WriteHTML(osfs, htmlPath, run.Name, result.Samples,
			report.DistanceFit(result), report.SlopeFit(result))
		if err != nil {
			log.Fatalf("Failed to write HTML report: %v", err)
		}
		for _, fit := range []report.BestFit{report.DistanceFit(result), report.SlopeFit(result)} {
			png := filepath.Join(*reportDir, strings.ReplaceAll(fit.Name, " ", "_")+".png")
			if err := report.SavePNG(png, run.Name, result.Samples, fit); err != nil {
				log.Fatalf("Failed to write plot: %v", err)
			}
		}
		log.Printf("Wrote report to %s", htmlPath)
	}
}

func runDatalist(args []string) {
	if len(args) < 1 {
		log.Fatal("Usage: waffle datalist <list|inf|append> [options] <datalist>")
	}
	action := args[0]
	fs := flag.NewFlagSet("datalist "+action, flag.ExitOnError)
	var (
		regionStr = fs.String("region", "", "Restrict to region west/east/south/north[/zmin/zmax]")
		overwrite = fs.Bool("overwrite", false, "Regenerate extent-cache sidecars")
	)
	fs.Parse(args[1:])
	if fs.NArg() < 1 {
		log.Fatalf("Usage: waffle datalist %s [options] <datalist>", action)
	}
	rootRef := fs.Arg(0)

	res := catalog.NewResolver()
	var opts catalog.Options
	if *regionStr != "" {
		r, err := region.Parse(*regionStr)
		if err != nil {
			log.Fatalf("Invalid region: %v", err)
		}
		opts = catalogOptions(r, 0, *overwrite)
	} else {
		opts.OverwriteCache = *overwrite
	}

	switch action {
	case "list":
		entries, err := res.List(rootRef, opts)
		if err != nil {
			log.Fatalf("List failed: %v", err)
		}
		for _, e := range entries {
			fmt.Println(e.String())
		}

	case "inf":
		root, err := catalog.ParseEntry(rootRef, res.Registry)
		if err != nil {
			log.Fatalf("Bad catalog reference: %v", err)
		}
		ext, ok := res.Extent(root, root.Path, *overwrite)
		if !ok {
			log.Fatalf("No extent could be determined for %s", rootRef)
		}
		fmt.Println(ext.String())

	case "append":
		if fs.NArg() != 2 {
			log.Fatal(`Usage: waffle datalist append <datalist> "path code weight [metadata]"`)
		}
		e, err := catalog.ParseEntry(fs.Arg(1), res.Registry)
		if err != nil {
			log.Fatalf("Bad entry: %v", err)
		}
		if err := res.AppendEntry(rootRef, e); err != nil {
			log.Fatalf("Append failed: %v", err)
		}
		log.Printf("Appended %s to %s", e.Path, rootRef)

	default:
		log.Fatalf("Unknown datalist action %q (want list, inf or append)", action)
	}
}

func runSpatialMeta(args []string) {
	fs := flag.NewFlagSet("spat-meta", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Run configuration JSON file")
		regionStr  = fs.String("region", "", "Target region west/east/south/north[/zmin/zmax]")
		cellSize   = fs.Float64("cell", 0, "Cell size in region units")
		layer      = fs.String("layer", "coverage", "Output layer name")
		outDir     = fs.String("out", "vectors", "Output directory for GeoJSON layers")
		workers    = fs.Int("workers", 0, "Concurrent tracing workers")
	)
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("Usage: waffle spat-meta [options] <datalist>")
	}
	rootRef := fs.Arg(0)
	cfg := loadConfig(*configPath)
	target, cell := resolveTarget(cfg, *regionStr, *cellSize)

	res := catalog.NewResolver()
	writer := native.NewGeoJSONWriter(fsutil.OS{}, *outDir)
	b := &spatialmeta.Builder{
		Resolver:    res,
		Writer:      writer,
		Polygonizer: native.Footprint{},
		Workers:     pickInt(*workers, cfg.GetWorkers()),
	}
	if err := b.Run(rootRef, catalogOptions(target, 0, cfg.GetOverwriteCache()), target, cell, *layer); err != nil {
		log.Fatalf("Spatial metadata failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		log.Fatalf("Failed to write layers: %v", err)
	}
	log.Printf("Wrote layer %s under %s", *layer, *outDir)
}

func runMigrate(args []string) {
	if len(args) < 1 {
		log.Fatal("Usage: waffle migrate <up|down|status> [-db PATH] [-migrations DIR]")
	}
	action := args[0]
	fs := flag.NewFlagSet("migrate "+action, flag.ExitOnError)
	var (
		dbPath     = fs.String("db", "waffle.db", "Run store database path")
		migrations = fs.String("migrations", "internal/store/migrations", "Migrations directory")
	)
	fs.Parse(args[1:])

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer st.Close()

	switch action {
	case "up":
		if err := st.MigrateUp(*migrations); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied")
	case "down":
		if err := st.MigrateDown(*migrations); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back one migration")
	case "status":
		version, dirty, err := st.MigrateVersion(*migrations)
		if err != nil {
			log.Fatalf("Migration status failed: %v", err)
		}
		log.Printf("Schema version %d (dirty=%v)", version, dirty)
	default:
		log.Fatalf("Unknown migrate action %q (want up, down or status)", action)
	}
}

func pickInt(flagVal, cfgVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

func pickInt64(flagVal, cfgVal int64) int64 {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

func pickFloat(flagVal, cfgVal float64) float64 {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}
