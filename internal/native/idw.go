package native

import (
	"fmt"
	"math"

	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// Engine interpolates surfaces by inverse-distance weighting. Points
// are indexed into grid cells first, so each output cell only searches
// a bounded neighborhood.
type Engine struct {
	// Power is the IDW distance exponent. 0 means 2.
	Power float64
	// RadiusCells bounds the neighborhood search, in cells. 0 means
	// 16.
	RadiusCells int
}

// GridParams keys recognized by Generate.
const (
	ParamPower  = "power"
	ParamRadius = "radius_cells"
)

// Generate builds an IDW surface over r. Cells with no point inside
// the search radius stay nodata. Point weights scale each point's
// influence.
func (e Engine) Generate(r region.Region, cellSize float64, src xyz.Source, params engine.GridParams) (*grid.Raster, error) {
	spec, err := grid.NewSpec(r, cellSize)
	if err != nil {
		return nil, err
	}

	power := e.Power
	if power <= 0 {
		power = 2
	}
	radius := e.RadiusCells
	if radius <= 0 {
		radius = 16
	}
	if params.Args != nil {
		if v, ok := params.Args[ParamPower]; ok {
			if _, err := fmt.Sscanf(v, "%f", &power); err != nil {
				return nil, fmt.Errorf("idw power %q: %w", v, err)
			}
		}
		if v, ok := params.Args[ParamRadius]; ok {
			if _, err := fmt.Sscanf(v, "%d", &radius); err != nil {
				return nil, fmt.Errorf("idw radius %q: %w", v, err)
			}
		}
	}

	// Bucket points per cell for bounded neighborhood lookups.
	buckets := make(map[int][]xyz.Point)
	n := 0
	err = src.Each(func(p xyz.Point) error {
		col, row := spec.CellOf(p.X, p.Y)
		if !spec.InBounds(col, row) {
			return nil
		}
		idx := spec.Index(col, row)
		buckets[idx] = append(buckets[idx], p)
		n++
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := grid.NewRaster(spec)
	if n == 0 {
		return out, nil
	}

	maxDist := float64(radius) * cellSize
	for row := 0; row < spec.Height; row++ {
		for col := 0; col < spec.Width; col++ {
			x, y := spec.CellCenter(col, row)
			var num, den float64
			exact := math.NaN()
		search:
			for dr := -radius; dr <= radius; dr++ {
				for dc := -radius; dc <= radius; dc++ {
					nc, nr := col+dc, row+dr
					if !spec.InBounds(nc, nr) {
						continue
					}
					for _, p := range buckets[spec.Index(nc, nr)] {
						d := math.Hypot(p.X-x, p.Y-y)
						if d > maxDist {
							continue
						}
						if d == 0 {
							exact = p.Z
							break search
						}
						w := p.Weight
						if w <= 0 {
							w = 1
						}
						iw := w / math.Pow(d, power)
						num += iw * p.Z
						den += iw
					}
				}
			}
			switch {
			case !math.IsNaN(exact):
				out.Set(col, row, exact)
			case den > 0:
				out.Set(col, row, num/den)
			}
		}
	}
	return out, nil
}
