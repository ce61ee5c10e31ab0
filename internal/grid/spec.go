// Package grid derives raster geometry from a region and cell size and
// aggregates point streams into raster cells.
package grid

import (
	"fmt"
	"math"

	"github.com/demworks/waffle/internal/region"
)

// DefaultNodata is the fill value for cells that receive no data.
const DefaultNodata = -9999.0

// Transform is a GDAL-style affine geotransform:
// geoX = t[0] + px*t[1] + py*t[2], geoY = t[3] + px*t[4] + py*t[5].
type Transform [6]float64

// Spec is the geometry of a raster: region, cell size, pixel
// dimensions, affine transform and nodata value. Derived once per
// raster; value semantics, never mutated.
type Spec struct {
	Region    region.Region
	CellSize  float64
	Width     int
	Height    int
	Transform Transform
	Nodata    float64
}

// NewSpec derives a Spec from a region and cell size. Row 0 sits at the
// region's north edge. Returns region.ErrInvalid for degenerate input.
func NewSpec(r region.Region, cellSize float64) (Spec, error) {
	if !r.Valid() {
		return Spec{}, fmt.Errorf("grid spec for %v: %w", r, region.ErrInvalid)
	}
	if cellSize <= 0 {
		return Spec{}, fmt.Errorf("grid spec: cell size %g: %w", cellSize, region.ErrInvalid)
	}
	width := int(math.Round(r.Width() / cellSize))
	height := int(math.Round(r.Height() / cellSize))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return Spec{
		Region:    r,
		CellSize:  cellSize,
		Width:     width,
		Height:    height,
		Transform: Transform{r.West, cellSize, 0, r.North, 0, -cellSize},
		Nodata:    DefaultNodata,
	}, nil
}

// CellCenter returns the geocoordinates of the center of cell
// (col, row): origin + (i+0.5)*cellSize along each axis.
func (s Spec) CellCenter(col, row int) (x, y float64) {
	t := s.Transform
	x = t[0] + (float64(col)+0.5)*t[1] + (float64(row)+0.5)*t[2]
	y = t[3] + (float64(col)+0.5)*t[4] + (float64(row)+0.5)*t[5]
	return x, y
}

// CellOf maps geocoordinates to the containing cell by flooring the
// inverse transform, so a point at a cell's geometric center maps to
// that cell. The result may be out of bounds; see InBounds.
func (s Spec) CellOf(x, y float64) (col, row int) {
	t := s.Transform
	col = int(math.Floor((x - t[0]) / t[1]))
	row = int(math.Floor((y - t[3]) / t[5]))
	return col, row
}

// InBounds reports whether (col, row) addresses a cell of the raster.
func (s Spec) InBounds(col, row int) bool {
	return col >= 0 && col < s.Width && row >= 0 && row < s.Height
}

// Index flattens (col, row) into a row-major slice offset.
func (s Spec) Index(col, row int) int { return row*s.Width + col }
