// Package region implements the bounding-box algebra used throughout
// the gridding pipeline. Regions are immutable value types; every
// operation returns a new value.
package region

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalid reports a degenerate region (west >= east or south >= north)
// reaching an operation that requires a valid one.
var ErrInvalid = errors.New("invalid region")

// Region is an axis-aligned geographic bounding box with optional
// elevation bounds. HasZ reports whether ZMin/ZMax carry data.
type Region struct {
	West  float64
	East  float64
	South float64
	North float64

	ZMin float64
	ZMax float64
	HasZ bool
}

// New returns a 2D region.
func New(west, east, south, north float64) Region {
	return Region{West: west, East: east, South: south, North: north}
}

// NewZ returns a region carrying elevation bounds.
func NewZ(west, east, south, north, zmin, zmax float64) Region {
	return Region{West: west, East: east, South: south, North: north, ZMin: zmin, ZMax: zmax, HasZ: true}
}

// Valid reports whether the region spans a positive area.
func (r Region) Valid() bool {
	return r.West < r.East && r.South < r.North
}

// Width returns the east-west extent.
func (r Region) Width() float64 { return r.East - r.West }

// Height returns the north-south extent.
func (r Region) Height() float64 { return r.North - r.South }

// Center returns the geometric center of the region.
func (r Region) Center() (x, y float64) {
	return r.West + r.Width()/2, r.South + r.Height()/2
}

// Contains reports whether the point (x, y) lies inside the region.
// Points on the boundary are considered outside, matching the
// containment test applied during point streaming.
func (r Region) Contains(x, y float64) bool {
	return x > r.West && x < r.East && y > r.South && y < r.North
}

// ZPass reports whether elevation z passes the region's z-bounds.
// Regions without z-bounds pass everything.
func (r Region) ZPass(z float64) bool {
	if !r.HasZ {
		return true
	}
	return z >= r.ZMin && z <= r.ZMax
}

// Reduce returns the intersection of a and b. The result may be
// degenerate when the inputs do not overlap; callers must check Valid
// before use.
func Reduce(a, b Region) Region {
	return Region{
		West:  math.Max(a.West, b.West),
		East:  math.Min(a.East, b.East),
		South: math.Max(a.South, b.South),
		North: math.Min(a.North, b.North),
	}
}

// Merge returns the smallest region containing both a and b. When both
// inputs carry z-bounds the result carries their merged z-bounds.
func Merge(a, b Region) Region {
	m := Region{
		West:  math.Min(a.West, b.West),
		East:  math.Max(a.East, b.East),
		South: math.Min(a.South, b.South),
		North: math.Max(a.North, b.North),
	}
	if a.HasZ && b.HasZ {
		m.ZMin = math.Min(a.ZMin, b.ZMin)
		m.ZMax = math.Max(a.ZMax, b.ZMax)
		m.HasZ = true
	}
	return m
}

// Intersects reports whether a and b share any area.
func Intersects(a, b Region) bool {
	return Reduce(a, b).Valid()
}

// Buffer expands all four edges of r by value. When pct is true the
// buffer distance is ((east-west)+(north-south)) * value / 200, i.e.
// value is a percentage of the mean region extent.
func Buffer(r Region, value float64, pct bool) Region {
	if pct {
		value = (r.Width()*(value*0.01) + r.Height()*(value*0.01)) / 2
	}
	out := r
	out.West -= value
	out.East += value
	out.South -= value
	out.North += value
	return out
}

// Parse builds a Region from a west/east/south/north string, with
// optional zmin/zmax, e.g. "-90/-89/28/29" or "-90/-89/28/29/-100/10".
func Parse(s string) (Region, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 && len(parts) != 6 {
		return Region{}, fmt.Errorf("region %q: want 4 or 6 fields, got %d: %w", s, len(parts), ErrInvalid)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("region %q field %d: %w", s, i, ErrInvalid)
		}
		vals[i] = v
	}
	r := New(vals[0], vals[1], vals[2], vals[3])
	if len(vals) == 6 {
		r = NewZ(vals[0], vals[1], vals[2], vals[3], vals[4], vals[5])
	}
	if !r.Valid() {
		return Region{}, fmt.Errorf("region %q: %w", s, ErrInvalid)
	}
	return r, nil
}

// String formats the region as west/east/south/north[/zmin/zmax].
func (r Region) String() string {
	if r.HasZ {
		return fmt.Sprintf("%g/%g/%g/%g/%g/%g", r.West, r.East, r.South, r.North, r.ZMin, r.ZMax)
	}
	return fmt.Sprintf("%g/%g/%g/%g", r.West, r.East, r.South, r.North)
}
