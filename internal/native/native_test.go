package native

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/fsutil"
	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

func newRaster(t *testing.T, size int) *grid.Raster {
	t.Helper()
	spec, err := grid.NewSpec(region.New(0, float64(size), 0, float64(size)), 1)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	return grid.NewRaster(spec)
}

func TestProximityChebyshev(t *testing.T) {
	mask := newRaster(t, 5)
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			mask.Set(col, row, 0)
		}
	}
	mask.Set(2, 2, 1)

	prox, err := Deriver{}.Proximity(mask)
	if err != nil {
		t.Fatalf("Proximity: %v", err)
	}
	if got := prox.At(2, 2); got != 0 {
		t.Errorf("data cell distance = %g, want 0", got)
	}
	if got := prox.At(3, 3); got != 1 {
		t.Errorf("diagonal neighbor distance = %g, want 1", got)
	}
	if got := prox.At(0, 0); got != 2 {
		t.Errorf("corner distance = %g, want 2", got)
	}
	if got := prox.At(4, 2); got != 2 {
		t.Errorf("edge distance = %g, want 2", got)
	}
}

func TestProximityEmptyMask(t *testing.T) {
	mask := newRaster(t, 3)
	prox, err := Deriver{}.Proximity(mask)
	if err != nil {
		t.Fatalf("Proximity: %v", err)
	}
	for _, v := range prox.Data {
		if v != prox.Spec.Nodata {
			t.Fatalf("empty mask produced distance %g", v)
		}
	}
}

func TestSlopeOfPlane(t *testing.T) {
	dem := newRaster(t, 6)
	// z = x: gradient 1, slope 45 degrees.
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			x, _ := dem.Spec.CellCenter(col, row)
			dem.Set(col, row, x)
		}
	}
	slope, err := Deriver{}.Slope(dem)
	if err != nil {
		t.Fatalf("Slope: %v", err)
	}
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			if got := slope.At(col, row); math.Abs(got-45) > 1e-9 {
				t.Fatalf("slope at (%d,%d) = %g, want 45", col, row, got)
			}
		}
	}
}

func TestSlopeFlatSurfacePreservesNodata(t *testing.T) {
	dem := newRaster(t, 4)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			if col == 0 && row == 0 {
				continue
			}
			dem.Set(col, row, 7)
		}
	}
	slope, err := Deriver{}.Slope(dem)
	if err != nil {
		t.Fatalf("Slope: %v", err)
	}
	if got := slope.At(0, 0); got != slope.Spec.Nodata {
		t.Errorf("nodata cell slope = %g, want nodata", got)
	}
	if got := slope.At(2, 2); got != 0 {
		t.Errorf("flat cell slope = %g, want 0", got)
	}
}

func TestIDWExactHitAndInterpolation(t *testing.T) {
	pts := xyz.SliceSource{
		{X: 0.5, Y: 0.5, Z: 10, Weight: 1},
		{X: 3.5, Y: 0.5, Z: 20, Weight: 1},
	}
	out, err := Engine{}.Generate(region.New(0, 4, 0, 1), 1, pts, engine.GridParams{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := out.At(0, 0); got != 10 {
		t.Errorf("exact hit = %g, want 10", got)
	}
	if got := out.At(3, 0); got != 20 {
		t.Errorf("exact hit = %g, want 20", got)
	}
	// Between two equidistant points the estimate is their mean.
	mid, ok := out.Sample(1.5, 0.5)
	if !ok {
		t.Fatal("mid cell out of bounds")
	}
	lo, hi := 10.0, 20.0
	if mid <= lo || mid >= hi {
		t.Errorf("interpolated value %g outside (%g, %g)", mid, lo, hi)
	}
}

func TestIDWRadiusLeavesFarCellsEmpty(t *testing.T) {
	pts := xyz.SliceSource{{X: 0.5, Y: 0.5, Z: 10, Weight: 1}}
	out, err := Engine{RadiusCells: 2}.Generate(region.New(0, 10, 0, 1), 1, pts, engine.GridParams{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := out.At(9, 0); got != out.Spec.Nodata {
		t.Errorf("far cell = %g, want nodata", got)
	}
	if got := out.At(1, 0); got == out.Spec.Nodata {
		t.Error("near cell stayed nodata")
	}
}

func TestIDWParamsOverride(t *testing.T) {
	pts := xyz.SliceSource{{X: 0.5, Y: 0.5, Z: 10, Weight: 1}}
	params := engine.GridParams{Method: "idw", Args: map[string]string{ParamRadius: "1"}}
	out, err := Engine{RadiusCells: 50}.Generate(region.New(0, 10, 0, 1), 1, pts, params)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := out.At(5, 0); got != out.Spec.Nodata {
		t.Errorf("cell beyond overridden radius = %g, want nodata", got)
	}

	bad := engine.GridParams{Args: map[string]string{ParamPower: "high"}}
	if _, err := (Engine{}).Generate(region.New(0, 2, 0, 2), 1, pts, bad); err == nil {
		t.Error("Generate accepted a non-numeric power")
	}
}

func TestFootprintRings(t *testing.T) {
	mask := newRaster(t, 8)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			mask.Set(col, row, 0)
		}
	}
	// Two separate components.
	mask.Set(1, 1, 1)
	mask.Set(2, 1, 1)
	mask.Set(2, 2, 1)
	mask.Set(6, 6, 1)

	rings, err := Footprint{}.Polygonize(mask)
	if err != nil {
		t.Fatalf("Polygonize: %v", err)
	}
	if len(rings) != 2 {
		t.Fatalf("got %d rings, want 2", len(rings))
	}
	for _, ring := range rings {
		if len(ring) != 5 {
			t.Fatalf("ring has %d vertices, want 5 (closed box)", len(ring))
		}
		if ring[0] != ring[len(ring)-1] {
			t.Error("ring not closed")
		}
	}
}

func TestFootprintEmptyMask(t *testing.T) {
	mask := newRaster(t, 3)
	rings, err := Footprint{}.Polygonize(mask)
	if err != nil {
		t.Fatalf("Polygonize: %v", err)
	}
	if len(rings) != 0 {
		t.Errorf("empty mask produced %d rings", len(rings))
	}
}

func TestAsciiWriter(t *testing.T) {
	fs := fsutil.NewMemory()
	r := newRaster(t, 2)
	r.Set(0, 0, 1.5)
	r.Set(1, 1, -2)

	path, err := AsciiWriter{FS: fs}.Write(r, "out/dem")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != "out/dem.asc" {
		t.Errorf("path = %q, want out/dem.asc", path)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	for _, want := range []string{"ncols 2", "nrows 2", "NODATA_value -9999", "1.5"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestGeoJSONWriter(t *testing.T) {
	fs := fsutil.NewMemory()
	w := NewGeoJSONWriter(fs, "vectors")

	fields := []engine.Field{{Name: "Name"}, {Name: "Agency"}}
	if err := w.CreateLayer("coverage", fields); err != nil {
		t.Fatalf("CreateLayer: %v", err)
	}
	if err := w.CreateLayer("coverage", fields); err == nil {
		t.Fatal("duplicate layer accepted")
	}
	if err := w.AddFeature("missing", engine.Feature{}); err == nil {
		t.Fatal("feature on missing layer accepted")
	}

	ring := [][2]float64{{0, 1}, {1, 1}, {1, 0}, {0, 0}, {0, 1}}
	if err := w.AddFeature("coverage", engine.Feature{Ring: ring, Attributes: []string{"SurveyA"}}); err != nil {
		t.Fatalf("AddFeature: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := fs.ReadFile("vectors/coverage.geojson")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var coll struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string         `json:"type"`
				Coordinates [][][2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]string `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &coll); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if coll.Type != "FeatureCollection" || len(coll.Features) != 1 {
		t.Fatalf("unexpected collection: %+v", coll)
	}
	f := coll.Features[0]
	if f.Geometry.Type != "Polygon" || len(f.Geometry.Coordinates[0]) != 5 {
		t.Errorf("unexpected geometry: %+v", f.Geometry)
	}
	if f.Properties["Name"] != "SurveyA" || f.Properties["Agency"] != "" {
		t.Errorf("unexpected properties: %v", f.Properties)
	}
}
