package grid

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

func mustSpec(t *testing.T, r region.Region, inc float64) Spec {
	t.Helper()
	s, err := NewSpec(r, inc)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	return s
}

func TestNewSpecDimensions(t *testing.T) {
	s := mustSpec(t, region.New(0, 10, 0, 5), 1)
	if s.Width != 10 || s.Height != 5 {
		t.Errorf("dims = %dx%d, want 10x5", s.Width, s.Height)
	}
	want := Transform{0, 1, 0, 5, 0, -1}
	if diff := cmp.Diff(want, s.Transform); diff != "" {
		t.Errorf("transform mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSpecRejectsDegenerate(t *testing.T) {
	if _, err := NewSpec(region.New(10, 0, 0, 10), 1); err == nil {
		t.Error("degenerate region must be rejected")
	}
	if _, err := NewSpec(region.New(0, 10, 0, 10), -1); err == nil {
		t.Error("non-positive cell size must be rejected")
	}
}

func TestCellCenterRoundTrip(t *testing.T) {
	s := mustSpec(t, region.New(0, 10, 0, 10), 0.5)
	for _, cell := range [][2]int{{0, 0}, {5, 7}, {19, 19}} {
		x, y := s.CellCenter(cell[0], cell[1])
		col, row := s.CellOf(x, y)
		if col != cell[0] || row != cell[1] {
			t.Errorf("center of (%d,%d) mapped back to (%d,%d)", cell[0], cell[1], col, row)
		}
	}
}

func TestCellOfNorthwestOrigin(t *testing.T) {
	s := mustSpec(t, region.New(0, 10, 0, 10), 1)
	// A point just inside the northwest corner is cell (0, 0).
	col, row := s.CellOf(0.01, 9.99)
	if col != 0 || row != 0 {
		t.Errorf("northwest point mapped to (%d,%d), want (0,0)", col, row)
	}
	// Just inside the southeast corner is (Width-1, Height-1).
	col, row = s.CellOf(9.99, 0.01)
	if col != 9 || row != 9 {
		t.Errorf("southeast point mapped to (%d,%d), want (9,9)", col, row)
	}
}

func TestCountSinglePoint(t *testing.T) {
	s := mustSpec(t, region.New(0, 10, 0, 10), 1)
	x, y := s.CellCenter(3, 4)
	out, err := Bin(xyz.SliceSource{{X: x, Y: y, Z: 1, Weight: 1}}, s, Count)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}
	for row := 0; row < s.Height; row++ {
		for col := 0; col < s.Width; col++ {
			want := 0.0
			if col == 3 && row == 4 {
				want = 1
			}
			if got := out.At(col, row); got != want {
				t.Errorf("cell (%d,%d) = %f, want %f", col, row, got, want)
			}
		}
	}
}

func TestMeanWeighted(t *testing.T) {
	s := mustSpec(t, region.New(0, 2, 0, 2), 1)
	x, y := s.CellCenter(0, 0)
	src := xyz.SliceSource{
		{X: x, Y: y, Z: 10, Weight: 1},
		{X: x, Y: y, Z: 40, Weight: 2},
	}
	out, err := Bin(src, s, Mean)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}
	// (1*10 + 2*40) / 3 = 30.
	if got := out.At(0, 0); math.Abs(got-30) > 1e-12 {
		t.Errorf("weighted mean = %f, want 30", got)
	}
	// Empty cells stay nodata under Mean.
	if got := out.At(1, 1); got != s.Nodata {
		t.Errorf("empty cell = %f, want nodata", got)
	}
}

func TestPresence(t *testing.T) {
	s := mustSpec(t, region.New(0, 2, 0, 2), 1)
	x, y := s.CellCenter(1, 0)
	out, err := Bin(xyz.SliceSource{{X: x, Y: y, Z: 5, Weight: 1}}, s, Presence)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}
	if out.At(1, 0) != 1 {
		t.Error("occupied cell should be 1")
	}
	if out.At(0, 1) != 0 {
		t.Error("empty cell should be 0")
	}
}

func TestOutsidePointsIgnored(t *testing.T) {
	s := mustSpec(t, region.New(0, 2, 0, 2), 1)
	src := xyz.SliceSource{
		{X: -5, Y: -5, Z: 1, Weight: 1},
		{X: 100, Y: 1, Z: 1, Weight: 1},
	}
	out, err := Bin(src, s, Count)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}
	for _, v := range out.Data {
		if v != 0 {
			t.Fatalf("outside points leaked into the grid: %v", out.Data)
		}
	}
}

func TestMeanMergeOrderIndependent(t *testing.T) {
	s := mustSpec(t, region.New(0, 4, 0, 4), 1)
	pts := xyz.SliceSource{
		{X: 0.5, Y: 0.5, Z: 2, Weight: 1},
		{X: 0.5, Y: 0.5, Z: 6, Weight: 3},
		{X: 2.5, Y: 1.5, Z: -4, Weight: 2},
		{X: 3.5, Y: 3.5, Z: 9, Weight: 1},
	}

	whole, err := Bin(pts, s, Mean)
	if err != nil {
		t.Fatalf("Bin: %v", err)
	}

	// Bin the first two and last two separately, then merge partials.
	a := NewAccumulator(s, Mean)
	b := NewAccumulator(s, Mean)
	for _, p := range pts[:2] {
		a.Add(p)
	}
	for _, p := range pts[2:] {
		b.Add(p)
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	merged := a.Finalize()

	if diff := cmp.Diff(whole.Data, merged.Data); diff != "" {
		t.Errorf("merged partials differ from single pass (-whole +merged):\n%s", diff)
	}
}

func TestMergeRejectsMismatch(t *testing.T) {
	a := NewAccumulator(mustSpec(t, region.New(0, 2, 0, 2), 1), Mean)
	b := NewAccumulator(mustSpec(t, region.New(0, 4, 0, 4), 1), Mean)
	if err := a.Merge(b); err == nil {
		t.Error("merging mismatched geometry must fail")
	}
	c := NewAccumulator(mustSpec(t, region.New(0, 2, 0, 2), 1), Count)
	if err := a.Merge(c); err == nil {
		t.Error("merging mismatched modes must fail")
	}
}

func TestRasterZRangeAndSample(t *testing.T) {
	s := mustSpec(t, region.New(0, 2, 0, 2), 1)
	r := NewRaster(s)
	if _, _, ok := r.ZRange(); ok {
		t.Error("empty raster should report no z-range")
	}
	r.Set(0, 0, -12)
	r.Set(1, 1, 7)
	zmin, zmax, ok := r.ZRange()
	if !ok || zmin != -12 || zmax != 7 {
		t.Errorf("z-range = (%f,%f,%v), want (-12,7,true)", zmin, zmax, ok)
	}

	x, y := s.CellCenter(0, 0)
	if v, ok := r.Sample(x, y); !ok || v != -12 {
		t.Errorf("Sample = (%f,%v), want (-12,true)", v, ok)
	}
	if _, ok := r.Sample(-100, -100); ok {
		t.Error("out-of-grid sample should report no data")
	}
}
