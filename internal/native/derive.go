// Package native provides in-process implementations of the external
// tooling interfaces: derived rasters, surface interpolation, vector
// and raster output. They keep the full workflow runnable without any
// system dependency; heavier external engines can be swapped in behind
// the same interfaces.
package native

import (
	"math"

	"github.com/demworks/waffle/internal/grid"
)

// Deriver computes proximity and slope rasters directly on the grid.
type Deriver struct{}

// Proximity returns the Chebyshev distance, in cells, to the nearest
// data cell of the mask. Data cells hold 1; all cells of an empty mask
// come back nodata.
func (Deriver) Proximity(mask *grid.Raster) (*grid.Raster, error) {
	w, h := mask.Spec.Width, mask.Spec.Height
	out := grid.NewRaster(mask.Spec)

	type cell struct{ col, row int }
	queue := make([]cell, 0, w*h/4)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if mask.At(col, row) == 1 {
				out.Set(col, row, 0)
				queue = append(queue, cell{col, row})
			}
		}
	}
	if len(queue) == 0 {
		return out, nil
	}

	// Multi-source BFS over the 8-neighborhood gives exact Chebyshev
	// distances.
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		d := out.At(c.col, c.row)
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				if dr == 0 && dc == 0 {
					continue
				}
				col, row := c.col+dc, c.row+dr
				if !mask.Spec.InBounds(col, row) {
					continue
				}
				if out.At(col, row) != out.Spec.Nodata {
					continue
				}
				out.Set(col, row, d+1)
				queue = append(queue, cell{col, row})
			}
		}
	}
	return out, nil
}

// Slope returns the gradient magnitude of the surface in degrees.
// Nodata cells stay nodata.
func (Deriver) Slope(dem *grid.Raster) (*grid.Raster, error) {
	w, h := dem.Spec.Width, dem.Spec.Height
	cell := dem.Spec.CellSize
	out := grid.NewRaster(dem.Spec)

	value := func(col, row int) (float64, bool) {
		if !dem.Spec.InBounds(col, row) {
			return 0, false
		}
		v := dem.At(col, row)
		return v, v != dem.Spec.Nodata
	}

	// Central differences where both neighbors exist, one-sided at
	// edges and next to nodata holes.
	diff := func(center float64, lo float64, okLo bool, hi float64, okHi bool) float64 {
		switch {
		case okLo && okHi:
			return (hi - lo) / (2 * cell)
		case okHi:
			return (hi - center) / cell
		case okLo:
			return (center - lo) / cell
		}
		return 0
	}

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			center, ok := value(col, row)
			if !ok {
				continue
			}
			east, okE := value(col+1, row)
			west, okW := value(col-1, row)
			north, okN := value(col, row-1)
			south, okS := value(col, row+1)

			dx := diff(center, west, okW, east, okE)
			dy := diff(center, south, okS, north, okN)
			out.Set(col, row, math.Atan(math.Hypot(dx, dy))*180/math.Pi)
		}
	}
	return out, nil
}
