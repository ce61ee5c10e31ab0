package grid

import (
	"fmt"

	"github.com/demworks/waffle/internal/xyz"
)

// Mode selects the aggregation policy applied when mapping points into
// raster cells.
type Mode int

const (
	// Count sets each cell to the number of points it received.
	Count Mode = iota
	// Mean sets each cell to the weighted mean elevation of its
	// points; cells with no points stay nodata.
	Mean
	// Presence sets each cell to 1 when it received at least one
	// point, 0 otherwise.
	Presence
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Count:
		return "count"
	case Mean:
		return "mean"
	case Presence:
		return "presence"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Accumulator collects per-cell aggregates for one partition of a
// point stream. Count and Mean accumulators over disjoint partitions
// merge by per-cell addition, so partitions can be binned
// independently and combined before Finalize.
type Accumulator struct {
	spec   Spec
	mode   Mode
	counts []float64
	sumWZ  []float64 // Mean only
	sumW   []float64 // Mean only
}

// NewAccumulator returns an empty accumulator for the given geometry
// and mode.
func NewAccumulator(spec Spec, mode Mode) *Accumulator {
	a := &Accumulator{
		spec:   spec,
		mode:   mode,
		counts: make([]float64, spec.Width*spec.Height),
	}
	if mode == Mean {
		a.sumWZ = make([]float64, spec.Width*spec.Height)
		a.sumW = make([]float64, spec.Width*spec.Height)
	}
	return a
}

// Add maps one point into its cell. Points outside the grid contribute
// nothing.
func (a *Accumulator) Add(p xyz.Point) {
	col, row := a.spec.CellOf(p.X, p.Y)
	if !a.spec.InBounds(col, row) {
		return
	}
	i := a.spec.Index(col, row)
	a.counts[i]++
	if a.mode == Mean {
		w := p.Weight
		if w <= 0 {
			w = 1
		}
		a.sumWZ[i] += w * p.Z
		a.sumW[i] += w
	}
}

// Merge adds the partial aggregates of other into a. The accumulators
// must share geometry and mode.
func (a *Accumulator) Merge(other *Accumulator) error {
	if a.spec != other.spec || a.mode != other.mode {
		return fmt.Errorf("merging accumulators with different geometry or mode")
	}
	for i := range a.counts {
		a.counts[i] += other.counts[i]
	}
	if a.mode == Mean {
		for i := range a.sumWZ {
			a.sumWZ[i] += other.sumWZ[i]
			a.sumW[i] += other.sumW[i]
		}
	}
	return nil
}

// Finalize produces the output raster. Cells that received no points
// remain nodata under Mean, 0 under Count and Presence.
func (a *Accumulator) Finalize() *Raster {
	out := NewRaster(a.spec)
	for i, n := range a.counts {
		switch a.mode {
		case Count:
			out.Data[i] = n
		case Presence:
			if n > 0 {
				out.Data[i] = 1
			} else {
				out.Data[i] = 0
			}
		case Mean:
			if n > 0 && a.sumW[i] > 0 {
				out.Data[i] = a.sumWZ[i] / a.sumW[i]
			}
		}
	}
	return out
}

// Bin consumes an entire point source into a raster under the given
// mode.
func Bin(src xyz.Source, spec Spec, mode Mode) (*Raster, error) {
	acc := NewAccumulator(spec, mode)
	if err := src.Each(func(p xyz.Point) error {
		acc.Add(p)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("binning (%s): %w", mode, err)
	}
	return acc.Finalize(), nil
}
