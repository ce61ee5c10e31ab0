package grid

// Raster is an in-memory single-band float raster, the unit of
// exchange between the binner, the external engine collaborators and
// the uncertainty estimator. Data is row-major with row 0 at north.
type Raster struct {
	Spec Spec
	Data []float64
}

// NewRaster allocates a raster with every cell set to the spec's
// nodata value.
func NewRaster(spec Spec) *Raster {
	data := make([]float64, spec.Width*spec.Height)
	for i := range data {
		data[i] = spec.Nodata
	}
	return &Raster{Spec: spec, Data: data}
}

// At returns the value of cell (col, row).
func (r *Raster) At(col, row int) float64 {
	return r.Data[r.Spec.Index(col, row)]
}

// Set assigns the value of cell (col, row).
func (r *Raster) Set(col, row int, v float64) {
	r.Data[r.Spec.Index(col, row)] = v
}

// Sample returns the value of the cell containing (x, y) and whether
// that cell is inside the raster and holds data.
func (r *Raster) Sample(x, y float64) (float64, bool) {
	col, row := r.Spec.CellOf(x, y)
	if !r.Spec.InBounds(col, row) {
		return r.Spec.Nodata, false
	}
	v := r.At(col, row)
	return v, v != r.Spec.Nodata
}

// ValidValues returns every non-nodata cell value.
func (r *Raster) ValidValues() []float64 {
	out := make([]float64, 0, len(r.Data))
	for _, v := range r.Data {
		if v != r.Spec.Nodata {
			out = append(out, v)
		}
	}
	return out
}

// ZRange returns the min and max of valid cells. ok is false when the
// raster holds no data.
func (r *Raster) ZRange() (zmin, zmax float64, ok bool) {
	for _, v := range r.Data {
		if v == r.Spec.Nodata {
			continue
		}
		if !ok {
			zmin, zmax, ok = v, v, true
			continue
		}
		if v < zmin {
			zmin = v
		}
		if v > zmax {
			zmax = v
		}
	}
	return zmin, zmax, ok
}
