package native

import (
	"github.com/demworks/waffle/internal/grid"
)

// Footprint traces the data-bearing regions of a presence mask. Each
// 8-connected component becomes one rectangular exterior ring spanning
// the component's bounding cells.
type Footprint struct{}

// Polygonize returns one closed ring per connected data component, in
// grid coordinates on cell edges.
func (Footprint) Polygonize(mask *grid.Raster) ([][][2]float64, error) {
	w, h := mask.Spec.Width, mask.Spec.Height
	seen := make([]bool, w*h)

	type cell struct{ col, row int }
	var rings [][][2]float64

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			idx := mask.Spec.Index(col, row)
			if seen[idx] || mask.At(col, row) != 1 {
				continue
			}

			// Flood the component, tracking its bounding cells.
			minCol, maxCol := col, col
			minRow, maxRow := row, row
			queue := []cell{{col, row}}
			seen[idx] = true
			for len(queue) > 0 {
				c := queue[0]
				queue = queue[1:]
				if c.col < minCol {
					minCol = c.col
				}
				if c.col > maxCol {
					maxCol = c.col
				}
				if c.row < minRow {
					minRow = c.row
				}
				if c.row > maxRow {
					maxRow = c.row
				}
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						nc, nr := c.col+dc, c.row+dr
						if !mask.Spec.InBounds(nc, nr) {
							continue
						}
						nidx := mask.Spec.Index(nc, nr)
						if seen[nidx] || mask.At(nc, nr) != 1 {
							continue
						}
						seen[nidx] = true
						queue = append(queue, cell{nc, nr})
					}
				}
			}

			// Ring on the outer cell edges, closed, clockwise from
			// the northwest corner.
			cs := mask.Spec.CellSize
			wx, ny := mask.Spec.CellCenter(minCol, minRow)
			ex, sy := mask.Spec.CellCenter(maxCol, maxRow)
			west, north := wx-cs/2, ny+cs/2
			east, south := ex+cs/2, sy-cs/2
			rings = append(rings, [][2]float64{
				{west, north}, {east, north}, {east, south}, {west, south}, {west, north},
			})
		}
	}
	return rings, nil
}
