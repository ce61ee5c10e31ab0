// Package uncertainty estimates interpolation error empirically by
// re-gridding training tiles with part of their data withheld and
// fitting a power-law model of error against distance-to-data and
// slope.
package uncertainty

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// Zone classifies a training tile by the sign of its elevation range.
type Zone int

const (
	// ZoneNegative tiles lie entirely below zero.
	ZoneNegative Zone = iota
	// ZoneMixed tiles cross zero.
	ZoneMixed
	// ZonePositive tiles lie entirely above zero.
	ZonePositive

	zoneCount
)

// String implements fmt.Stringer.
func (z Zone) String() string {
	switch z {
	case ZoneNegative:
		return "negative"
	case ZoneMixed:
		return "mixed"
	case ZonePositive:
		return "positive"
	}
	return fmt.Sprintf("zone(%d)", int(z))
}

// Config tunes an estimation run.
type Config struct {
	// Sims is the number of split-sample simulation rounds.
	Sims int
	// MaxTilesPerZone caps the training tiles simulated per zone
	// per round.
	MaxTilesPerZone int
	// Percentile is the proximity percentile that sizes training
	// tiles and bounds sample distances.
	Percentile float64
	// ChunkLevel multiplies the target proximity percentile into a
	// tile size in cells.
	ChunkLevel float64
	// BufferCells pads each training tile with surrounding context
	// data, in cell units.
	BufferCells int
	// Seed feeds the shuffling and sub-sampling RNG.
	Seed int64
}

// DefaultConfig mirrors the historical defaults: 10 simulations, 25
// tiles per zone, 95th percentile, chunk level 4, 20-cell buffer.
func DefaultConfig() Config {
	return Config{
		Sims:            10,
		MaxTilesPerZone: 25,
		Percentile:      95,
		ChunkLevel:      4,
		BufferCells:     20,
		Seed:            1,
	}
}

// Estimator runs the split-sample uncertainty analysis. Engine and
// Deriver are the external interpolation and derived-raster
// collaborators; their invocations are synchronous and unretried.
type Estimator struct {
	Engine  engine.GridEngine
	Deriver engine.Deriver
	Params  engine.GridParams
	Config  Config
}

// Result is the outcome of one estimation run.
type Result struct {
	Distance    Coefficients
	Slope       Coefficients
	Samples     []Sample
	DistanceUnc *grid.Raster
	SlopeUnc    *grid.Raster

	TileCount  int
	TrialCount int
	Density    float64 // global data density, percent
}

type tileInfo struct {
	region  region.Region
	cells   int
	data    int
	density float64
	zmin    float64
	zmax    float64
	zone    Zone
}

// Run estimates interpolation uncertainty for a gridded DEM and its
// data presence mask. Both rasters must share geometry; the mask holds
// 1 where source data fell and 0 elsewhere.
func (e *Estimator) Run(dem, mask *grid.Raster) (*Result, error) {
	if dem.Spec.Region != mask.Spec.Region || dem.Spec.CellSize != mask.Spec.CellSize {
		return nil, fmt.Errorf("dem and mask geometry differ: %w", region.ErrInvalid)
	}
	cfg := e.Config
	if cfg.Sims <= 0 {
		cfg = DefaultConfig()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	// Analyze: global density and proximity percentiles.
	prox, err := e.Deriver.Proximity(mask)
	if err != nil {
		return nil, fmt.Errorf("proximity raster: %w: %v", engine.ErrExternalTool, err)
	}
	slope, err := e.Deriver.Slope(dem)
	if err != nil {
		return nil, fmt.Errorf("slope raster: %w: %v", engine.ErrExternalTool, err)
	}
	dataCells := 0
	for _, v := range mask.Data {
		if v == 1 {
			dataCells++
		}
	}
	density := 100 * float64(dataCells) / float64(len(mask.Data))
	proxTarget := percentile(prox.ValidValues(), cfg.Percentile)
	if proxTarget < 2 {
		proxTarget = 2
	}
	log.Printf("uncertainty: density %.2f%%, %.0fth percentile proximity %.2f cells", density, cfg.Percentile, proxTarget)

	// Tile: denser data gives a smaller proximity percentile and so
	// smaller training tiles.
	chunkCells := int(proxTarget * cfg.ChunkLevel)
	if chunkCells < 1 {
		chunkCells = 1
	}
	tiles := region.Chunk(dem.Spec.Region, dem.Spec.CellSize, chunkCells)
	log.Printf("uncertainty: chunked region into %d tiles of %d cells", len(tiles), chunkCells)

	// Classify tiles into elevation zones.
	var infos []tileInfo
	for _, tr := range tiles {
		if info, ok := classifyTile(dem, mask, tr); ok {
			infos = append(infos, info)
		}
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no tile contains data")
	}

	densities := make([]float64, len(infos))
	for i, ti := range infos {
		densities[i] = ti.density
	}
	ssSamp := percentile(densities, 5)

	// Select training tiles: per zone, keep tiles denser than the
	// zone median, decluster their order, cap the head.
	trainers := selectTraining(infos, cfg.MaxTilesPerZone, rng)

	res := &Result{TileCount: len(infos), Density: density}
	for sim := 0; sim < cfg.Sims; sim++ {
		log.Printf("uncertainty: split-sample simulation %d of %d", sim+1, cfg.Sims)
		for _, train := range trainers {
			for _, ti := range train {
				samples, err := e.simulateTile(dem, mask, slope, ti, ssSamp, rng)
				if err != nil {
					log.Printf("warning: uncertainty: tile %v: %v, tile skipped", ti.region, err)
					continue
				}
				res.Samples = append(res.Samples, samples...)
				res.TrialCount++
			}
		}
	}

	// Aggregate: guard against extrapolation past the global
	// proximity percentile.
	kept := res.Samples[:0]
	for _, s := range res.Samples {
		if s.Distance < proxTarget {
			kept = append(kept, s)
		}
	}
	res.Samples = kept
	log.Printf("uncertainty: gathered %d error samples from %d trials", len(res.Samples), res.TrialCount)
	if len(res.Samples) == 0 {
		return nil, fmt.Errorf("no error samples gathered")
	}

	// Fit both axes from the fixed initial guess.
	res.Distance, err = FitSamples(res.Samples, func(s Sample) float64 { return s.Distance })
	if err != nil {
		return nil, fmt.Errorf("distance fit: %w", err)
	}
	res.Slope, err = FitSamples(res.Samples, func(s Sample) float64 { return s.Slope })
	if err != nil {
		return nil, fmt.Errorf("slope fit: %w", err)
	}

	// Apply cell-wise over the full-region derived rasters.
	res.DistanceUnc = Apply(res.Distance, prox)
	res.SlopeUnc = Apply(res.Slope, slope)
	return res, nil
}

// classifyTile computes a tile's density and elevation zone. ok is
// false when the tile holds no gridded data.
func classifyTile(dem, mask *grid.Raster, tr region.Region) (tileInfo, bool) {
	info := tileInfo{region: tr}
	first := true
	for row := 0; row < dem.Spec.Height; row++ {
		for col := 0; col < dem.Spec.Width; col++ {
			x, y := dem.Spec.CellCenter(col, row)
			if !tr.Contains(x, y) {
				continue
			}
			info.cells++
			if mask.At(col, row) == 1 {
				info.data++
			}
			v := dem.At(col, row)
			if v == dem.Spec.Nodata {
				continue
			}
			if first {
				info.zmin, info.zmax = v, v
				first = false
			} else {
				if v < info.zmin {
					info.zmin = v
				}
				if v > info.zmax {
					info.zmax = v
				}
			}
		}
	}
	if info.cells == 0 || first {
		return info, false
	}
	info.density = 100 * float64(info.data) / float64(info.cells)
	switch {
	case info.zmax < 0:
		info.zone = ZoneNegative
	case info.zmin > 0:
		info.zone = ZonePositive
	default:
		info.zone = ZoneMixed
	}
	return info, true
}

// selectTraining keeps, per zone, the tiles denser than the zone
// median, in declustered order, capped at maxTiles.
func selectTraining(infos []tileInfo, maxTiles int, rng *rand.Rand) [][]tileInfo {
	out := make([][]tileInfo, zoneCount)
	for z := Zone(0); z < zoneCount; z++ {
		var zoneTiles []tileInfo
		var dens []float64
		for _, ti := range infos {
			if ti.zone == z {
				zoneTiles = append(zoneTiles, ti)
				dens = append(dens, ti.density)
			}
		}
		if len(zoneTiles) == 0 {
			continue
		}
		median := percentile(dens, 50)
		byRegion := make(map[region.Region]tileInfo, len(zoneTiles))
		var regions []region.Region
		for _, ti := range zoneTiles {
			if ti.density > median {
				byRegion[ti.region] = ti
				regions = append(regions, ti.region)
			}
		}
		log.Printf("uncertainty: %s zone: %d candidate training tiles (median density %.2f%%)", z, len(regions), median)

		ordered := region.Decluster(regions, rng)
		if len(ordered) > maxTiles {
			ordered = ordered[:maxTiles]
		}
		for _, tr := range ordered {
			out[z] = append(out[z], byRegion[tr])
		}
	}
	return out
}

// simulateTile runs one withhold-and-resample trial over a training
// tile and returns its error samples.
func (e *Estimator) simulateTile(dem, mask, slope *grid.Raster, ti tileInfo, ssSamp float64, rng *rand.Rand) ([]Sample, error) {
	cell := dem.Spec.CellSize
	buffered := region.Buffer(ti.region, float64(e.bufferCells())*cell, false)

	// Pull the tile's gridded data points: inner is the test set,
	// outer the surrounding context.
	var inner, outer []xyz.Point
	for row := 0; row < dem.Spec.Height; row++ {
		for col := 0; col < dem.Spec.Width; col++ {
			if mask.At(col, row) != 1 {
				continue
			}
			v := dem.At(col, row)
			if v == dem.Spec.Nodata {
				continue
			}
			x, y := dem.Spec.CellCenter(col, row)
			if !buffered.Contains(x, y) {
				continue
			}
			p := xyz.Point{X: x, Y: y, Z: v, Weight: 1}
			if ti.region.Contains(x, y) {
				inner = append(inner, p)
			} else {
				outer = append(outer, p)
			}
		}
	}
	if len(inner) == 0 {
		return nil, fmt.Errorf("no data in tile")
	}

	// Sub-sample the inner set down to the target density.
	keep := 1
	if ti.density >= ssSamp {
		keep = int(float64(ti.cells)*ssSamp/100) + 1
	}
	if keep > len(inner) {
		keep = len(inner)
	}
	rng.Shuffle(len(inner), func(i, j int) { inner[i], inner[j] = inner[j], inner[i] })
	head, withheld := inner[:keep], inner[keep:]
	if len(withheld) == 0 {
		return nil, fmt.Errorf("no withheld points")
	}

	training := make([]xyz.Point, 0, len(outer)+len(head))
	training = append(training, outer...)
	training = append(training, head...)

	// Rebuild a trial surface from the thinned data.
	trialDEM, err := e.Engine.Generate(ti.region, cell, xyz.SliceSource(training), e.Params)
	if err != nil {
		return nil, fmt.Errorf("trial surface: %w: %v", engine.ErrExternalTool, err)
	}
	trialSpec, err := grid.NewSpec(ti.region, cell)
	if err != nil {
		return nil, err
	}
	trialMask, err := grid.Bin(xyz.SliceSource(training), trialSpec, grid.Presence)
	if err != nil {
		return nil, err
	}
	trialProx, err := e.Deriver.Proximity(trialMask)
	if err != nil {
		return nil, fmt.Errorf("trial proximity: %w: %v", engine.ErrExternalTool, err)
	}

	// Query withheld points against the trial surface.
	var out []Sample
	for _, p := range withheld {
		pred, ok := trialDEM.Sample(p.X, p.Y)
		if !ok || pred == trialDEM.Spec.Nodata {
			continue
		}
		dist, ok := trialProx.Sample(p.X, p.Y)
		if !ok || dist == trialProx.Spec.Nodata {
			continue
		}
		slp, _ := slope.Sample(p.X, p.Y)
		out = append(out, Sample{Error: p.Z - pred, Distance: dist, Slope: slp})
	}
	return out, nil
}

func (e *Estimator) bufferCells() int {
	if e.Config.BufferCells > 0 {
		return e.Config.BufferCells
	}
	return DefaultConfig().BufferCells
}
