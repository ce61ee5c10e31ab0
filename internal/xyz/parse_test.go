package xyz

import (
	"strings"
	"testing"

	"github.com/demworks/waffle/internal/region"
)

func collect(t *testing.T, data string, layout Layout, filter Filter) []Point {
	t.Helper()
	var out []Point
	err := Parse(strings.NewReader(data), "test", layout, filter, func(p Point) error {
		out = append(out, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return out
}

func TestProbeDelim(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"1,2,3", ","},
		{"1 2 3", " "},
		{"1\t2\t3", "\t"},
		{"1/2/3", "/"},
		{"1:2:3", ":"},
		{"123", ""},
	}
	for _, c := range cases {
		if got := ProbeDelim(c.line); got != c.want {
			t.Errorf("ProbeDelim(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestParseAutoDelim(t *testing.T) {
	pts := collect(t, "1.5,2.5,-10\n2,3,4\n", DefaultLayout(), Filter{})
	if len(pts) != 2 {
		t.Fatalf("want 2 points, got %d", len(pts))
	}
	if pts[0].X != 1.5 || pts[0].Y != 2.5 || pts[0].Z != -10 {
		t.Errorf("first point wrong: %+v", pts[0])
	}
	if pts[0].Weight != 1 {
		t.Errorf("parsed weight should default to 1, got %f", pts[0].Weight)
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	data := "1 2 3\nnot a point\n4 5\n6 7 8\n"
	pts := collect(t, data, DefaultLayout(), Filter{})
	if len(pts) != 2 {
		t.Fatalf("want 2 valid points, got %d", len(pts))
	}
}

func TestParseHeaderSkipAndColumns(t *testing.T) {
	data := "lon lat depth junk\n10 20 30 x\n"
	layout := Layout{XPos: 0, YPos: 1, ZPos: 2, Skip: 1}
	pts := collect(t, data, layout, Filter{})
	if len(pts) != 1 || pts[0].Z != 30 {
		t.Fatalf("header skip / columns wrong: %+v", pts)
	}

	// Reordered columns.
	layout = Layout{XPos: 1, YPos: 2, ZPos: 0}
	pts = collect(t, "30 10 20\n", layout, Filter{})
	if pts[0].X != 10 || pts[0].Y != 20 || pts[0].Z != 30 {
		t.Errorf("column remap wrong: %+v", pts[0])
	}
}

func TestParseRegionAndZFilters(t *testing.T) {
	r := region.New(0, 10, 0, 10)
	filter := Filter{Region: &r, ZMin: -5, ZMax: 5, UseZ: true}
	data := "1 1 0\n50 50 0\n2 2 100\n3 3 -4\n"
	pts := collect(t, data, DefaultLayout(), filter)
	if len(pts) != 2 {
		t.Fatalf("want 2 filtered points, got %d: %+v", len(pts), pts)
	}
}

func TestSliceSourceStops(t *testing.T) {
	src := SliceSource{{X: 1}, {X: 2}, {X: 3}}
	n := 0
	stop := func(p Point) error {
		n++
		if n == 2 {
			return errStop
		}
		return nil
	}
	if err := src.Each(stop); err != errStop {
		t.Fatalf("want errStop, got %v", err)
	}
	if n != 2 {
		t.Errorf("sink called %d times, want 2", n)
	}
}

var errStop = &stopError{}

type stopError struct{}

func (*stopError) Error() string { return "stop" }
