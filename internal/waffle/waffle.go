// Package waffle runs the end-to-end gridding workflow: resolve a
// catalog into a filtered weighted point stream, bin or interpolate it
// over the target grid, and keep the data presence mask alongside.
package waffle

import (
	"fmt"
	"log"

	"github.com/demworks/waffle/internal/catalog"
	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// Options configure one gridding run.
type Options struct {
	Region   region.Region
	CellSize float64

	// Mode is used when Engine is nil: records are binned directly.
	Mode grid.Mode

	// Engine, when set, interpolates a surface instead of binning.
	Engine engine.GridEngine
	Params engine.GridParams

	// ChunkCells splits engine interpolation into square tiles of
	// that many cells. A failed tile is dropped and the run
	// continues; unchunked failures abort. 0 disables chunking.
	ChunkCells int

	Catalog catalog.Options
}

// Output is the result of a run: the surface (or binned) raster and
// the presence mask of the records that built it.
type Output struct {
	DEM    *grid.Raster
	Mask   *grid.Raster
	Points int
}

// Run executes the workflow against a resolver and a catalog root.
func Run(res *catalog.Resolver, rootRef string, o Options) (*Output, error) {
	spec, err := grid.NewSpec(o.Region, o.CellSize)
	if err != nil {
		return nil, fmt.Errorf("target grid: %w", err)
	}
	if o.Engine == nil {
		return runBinned(res, rootRef, o, spec)
	}
	return runEngine(res, rootRef, o, spec)
}

// runBinned streams records once, feeding the mode accumulator and the
// presence mask together.
func runBinned(res *catalog.Resolver, rootRef string, o Options, spec grid.Spec) (*Output, error) {
	acc := grid.NewAccumulator(spec, o.Mode)
	maskAcc := grid.NewAccumulator(spec, grid.Presence)

	n := 0
	err := res.Resolve(rootRef, o.Catalog, func(p xyz.Point) error {
		n++
		acc.Add(p)
		maskAcc.Add(p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gridding %s: %w", rootRef, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("no records in region for %s", rootRef)
	}
	log.Printf("gridded %d records into %dx%d cells (%s)", n, spec.Width, spec.Height, o.Mode)
	return &Output{DEM: acc.Finalize(), Mask: maskAcc.Finalize(), Points: n}, nil
}

// runEngine buffers the stream once, then interpolates the whole
// region or each tile through the external engine.
func runEngine(res *catalog.Resolver, rootRef string, o Options, spec grid.Spec) (*Output, error) {
	maskAcc := grid.NewAccumulator(spec, grid.Presence)

	var points []xyz.Point
	err := res.Resolve(rootRef, o.Catalog, func(p xyz.Point) error {
		points = append(points, p)
		maskAcc.Add(p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gridding %s: %w", rootRef, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no records in region for %s", rootRef)
	}
	mask := maskAcc.Finalize()

	if o.ChunkCells <= 0 {
		dem, err := o.Engine.Generate(o.Region, o.CellSize, xyz.SliceSource(points), o.Params)
		if err != nil {
			return nil, fmt.Errorf("surface generation: %w: %v", engine.ErrExternalTool, err)
		}
		return &Output{DEM: dem, Mask: mask, Points: len(points)}, nil
	}

	dem := grid.NewRaster(spec)
	tiles := region.Chunk(o.Region, o.CellSize, o.ChunkCells)
	ok := 0
	for _, tile := range tiles {
		sub, err := o.Engine.Generate(tile, o.CellSize, tileSource(points, tile), o.Params)
		if err != nil {
			log.Printf("warning: tile %v: %v, tile dropped", tile, err)
			continue
		}
		pasteTile(dem, sub)
		ok++
	}
	if ok == 0 {
		return nil, fmt.Errorf("surface generation: all %d tiles failed: %w", len(tiles), engine.ErrExternalTool)
	}
	log.Printf("gridded %d records across %d/%d tiles", len(points), ok, len(tiles))
	return &Output{DEM: dem, Mask: mask, Points: len(points)}, nil
}

// tileSource restricts a buffered point set to one tile.
func tileSource(points []xyz.Point, tile region.Region) xyz.Source {
	return xyz.SourceFunc(func(fn xyz.Sink) error {
		for _, p := range points {
			if !tile.Contains(p.X, p.Y) {
				continue
			}
			if err := fn(p); err != nil {
				return err
			}
		}
		return nil
	})
}

// pasteTile copies a tile raster's valid cells into the parent grid.
// Tiles are cut on parent cell boundaries, so centers land exactly.
func pasteTile(dst, src *grid.Raster) {
	for row := 0; row < src.Spec.Height; row++ {
		for col := 0; col < src.Spec.Width; col++ {
			v := src.At(col, row)
			if v == src.Spec.Nodata {
				continue
			}
			x, y := src.Spec.CellCenter(col, row)
			dcol, drow := dst.Spec.CellOf(x, y)
			if !dst.Spec.InBounds(dcol, drow) {
				continue
			}
			dst.Set(dcol, drow, v)
		}
	}
}
