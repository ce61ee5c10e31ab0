// Package engine declares the narrow interfaces through which the core
// consumes external geospatial tooling: raster and vector codecs, the
// surface interpolation engine, derived-raster computation and
// coordinate reprojection. The core never constructs tool command
// strings; implementations live behind these types.
package engine

import (
	"errors"

	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// ErrExternalTool reports a failed collaborator invocation. When work
// is chunked the failing unit is dropped and the run continues;
// otherwise the run aborts.
var ErrExternalTool = errors.New("external tool failure")

// RasterInfo describes an opened raster source.
type RasterInfo struct {
	Width      int
	Height     int
	Bands      int
	Transform  grid.Transform
	Projection string
	Nodata     float64
}

// Srcwin is a pixel-space read window: origin column/row and size.
type Srcwin struct {
	XOff, YOff   int
	XSize, YSize int
}

// RasterReader opens raster sources and reads windows of band data.
type RasterReader interface {
	Info(path string) (RasterInfo, error)
	ReadWindow(path string, win Srcwin) ([]float64, error)
}

// RasterWriter persists an in-memory raster and returns the written
// path.
type RasterWriter interface {
	Write(r *grid.Raster, path string) (string, error)
}

// RasterScanner streams a raster source's valid cells as points,
// honoring a region/z filter. Used by the catalog resolver for raster
// entries.
type RasterScanner interface {
	Scan(path string, filter xyz.Filter, fn xyz.Sink) error
	// Extent reports the source's bounding region, including the z
	// range of valid cells.
	Extent(path string) (region.Region, error)
}

// Field is one attribute column of a vector layer.
type Field struct {
	Name string
}

// Feature is one polygon feature: an exterior ring of (x, y) pairs
// plus one attribute value per layer field.
type Feature struct {
	Ring       [][2]float64
	Attributes []string
}

// VectorWriter appends polygon features to a named output layer.
type VectorWriter interface {
	CreateLayer(name string, fields []Field) error
	AddFeature(layer string, f Feature) error
	Close() error
}

// Polygonizer traces the data-bearing cells of a presence mask into
// polygon exterior rings.
type Polygonizer interface {
	Polygonize(mask *grid.Raster) ([][][2]float64, error)
}

// GridParams selects and parameterizes the interpolation method.
// Args is method-specific and passes through opaquely.
type GridParams struct {
	Method string
	Args   map[string]string
}

// GridEngine builds a surface raster from a weighted point source over
// a region. Implementations wrap external interpolation tooling;
// invocations are synchronous with no timeout or retry.
type GridEngine interface {
	Generate(r region.Region, cellSize float64, src xyz.Source, params GridParams) (*grid.Raster, error)
}

// Deriver computes derived rasters from a source raster.
type Deriver interface {
	// Proximity returns a raster whose cells hold the distance to
	// the nearest cell containing data, in cell units.
	Proximity(r *grid.Raster) (*grid.Raster, error)
	// Slope returns a raster of local gradient magnitude.
	Slope(r *grid.Raster) (*grid.Raster, error)
}

// Reprojector transforms a coordinate pair between EPSG systems.
type Reprojector interface {
	Transform(x, y float64, srcEPSG, dstEPSG int) (float64, float64, error)
}

// Fetcher streams points from a remote source for a query region.
// Fetchers are registered against a scheme prefix; wire protocols are
// implementation detail.
type Fetcher interface {
	Fetch(r region.Region, args []string, fn xyz.Sink) error
}
