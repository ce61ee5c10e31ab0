package region

import (
	"math"
	"math/rand"
)

// Chunk tiles r into sub-regions of tileCells x tileCells grid cells of
// size cellSize, iterating row-major. The final row and column are
// clipped to r's bounds rather than dropped or overrun, so the tiles
// cover r exactly with boundary edges shared.
func Chunk(r Region, cellSize float64, tileCells int) []Region {
	if !r.Valid() || cellSize <= 0 || tileCells <= 0 {
		return nil
	}
	xCount := int(math.Ceil(r.Width() / cellSize))
	yCount := int(math.Ceil(r.Height() / cellSize))

	var out []Region
	for y0 := 0; y0 < yCount; y0 += tileCells {
		for x0 := 0; x0 < xCount; x0 += tileCells {
			tile := Region{
				West:  r.West + float64(x0)*cellSize,
				East:  r.West + float64(x0+tileCells)*cellSize,
				South: r.South + float64(y0)*cellSize,
				North: r.South + float64(y0+tileCells)*cellSize,
			}
			if tile.East > r.East {
				tile.East = r.East
			}
			if tile.North > r.North {
				tile.North = r.North
			}
			out = append(out, tile)
		}
	}
	return out
}

// Decluster orders regions so that consecutive picks are spatially
// decorrelated: repeatedly take the head of a shuffled list, then push
// every region closer than the median pairwise distance to the back
// before reshuffling the remainder. The input slice is not modified.
func Decluster(rs []Region, rng *rand.Rand) []Region {
	work := make([]Region, len(rs))
	copy(work, rs)
	rng.Shuffle(len(work), func(i, j int) { work[i], work[j] = work[j], work[i] })

	var out []Region
	for len(work) > 0 {
		head := work[0]
		out = append(out, head)
		work = work[1:]
		if len(work) == 0 {
			break
		}
		hx, hy := head.Center()
		dists := make([]float64, len(work))
		for i, w := range work {
			wx, wy := w.Center()
			dists[i] = math.Hypot(wx-hx, wy-hy)
		}
		median := medianOf(dists)

		// Far tiles first so the next pick lands away from head.
		rng.Shuffle(len(work), func(i, j int) {
			work[i], work[j] = work[j], work[i]
			dists[i], dists[j] = dists[j], dists[i]
		})
		far := make([]Region, 0, len(work))
		near := make([]Region, 0, len(work))
		for i, w := range work {
			if dists[i] > median {
				far = append(far, w)
			} else {
				near = append(near, w)
			}
		}
		work = append(far, near...)
	}
	return out
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
