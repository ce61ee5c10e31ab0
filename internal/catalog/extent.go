package catalog

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// SidecarExt is the extent-cache suffix stored beside each source.
const SidecarExt = ".inf"

// ParseSidecar parses an extent-cache sidecar: one line of 4 or 6
// space-separated floats, xmin xmax ymin ymax [zmin zmax].
func ParseSidecar(data []byte) (region.Region, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 4 && len(fields) != 6 {
		return region.Region{}, fmt.Errorf("sidecar: want 4 or 6 fields, got %d", len(fields))
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return region.Region{}, fmt.Errorf("sidecar field %d: %w", i, err)
		}
		vals[i] = v
	}
	if len(vals) == 6 {
		return region.NewZ(vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]), nil
	}
	return region.New(vals[0], vals[1], vals[2], vals[3]), nil
}

// FormatSidecar renders a region as sidecar text.
func FormatSidecar(r region.Region) []byte {
	if r.HasZ {
		return []byte(fmt.Sprintf("%g %g %g %g %g %g\n", r.West, r.East, r.South, r.North, r.ZMin, r.ZMax))
	}
	return []byte(fmt.Sprintf("%g %g %g %g\n", r.West, r.East, r.South, r.North))
}

// Extent returns the cached extent of an entry, computing and writing
// the sidecar lazily. Cached sidecars are reused unless overwrite is
// set; staleness is never auto-detected. ok is false when no extent
// can be determined (the entry is then never pruned).
func (r *Resolver) Extent(e Entry, path string, overwrite bool) (region.Region, bool) {
	return r.extent(e, path, overwrite, map[string]bool{})
}

func (r *Resolver) extent(e Entry, path string, overwrite bool, visited map[string]bool) (region.Region, bool) {
	if e.Kind == KindRemote {
		return region.Region{}, false
	}
	side := path + SidecarExt
	if !overwrite && r.FS.Exists(side) {
		if data, err := r.FS.ReadFile(side); err == nil {
			if ext, err := ParseSidecar(data); err == nil {
				return ext, true
			}
		}
		log.Printf("warning: unreadable sidecar %s, rescanning", side)
	}

	ext, ok := r.scanExtent(e, path, overwrite, visited)
	if !ok {
		return region.Region{}, false
	}
	if err := r.FS.WriteFile(side, FormatSidecar(ext), 0o644); err != nil {
		log.Printf("warning: could not write sidecar %s: %v", side, err)
	}
	return ext, true
}

func (r *Resolver) scanExtent(e Entry, path string, overwrite bool, visited map[string]bool) (region.Region, bool) {
	switch e.Kind {
	case KindPoints:
		return r.scanPointsExtent(path)

	case KindRaster:
		if r.Rasters == nil {
			return region.Region{}, false
		}
		ext, err := r.Rasters.Extent(path)
		if err != nil {
			log.Printf("warning: raster extent of %s: %v", path, err)
			return region.Region{}, false
		}
		return ext, ext.Valid()

	case KindCatalog:
		abs := cleanPath(path)
		if visited[abs] {
			log.Printf("warning: %s: %v during extent scan", path, ErrCatalogCycle)
			return region.Region{}, false
		}
		visited[abs] = true
		defer delete(visited, abs)

		f, err := r.FS.Open(path)
		if err != nil {
			return region.Region{}, false
		}
		children, err := readEntries(f, path, r.Registry)
		f.Close()
		if err != nil {
			return region.Region{}, false
		}
		var out region.Region
		var any bool
		dir := filepath.Dir(path)
		for _, child := range children {
			ext, ok := r.extent(child, joinEntryPath(dir, child), overwrite, visited)
			if !ok {
				continue
			}
			if !any {
				out, any = ext, true
			} else {
				out = region.Merge(out, ext)
			}
		}
		return out, any
	}
	return region.Region{}, false
}

// scanPointsExtent reads an xyz source in full and returns the bbox
// and z range of its records.
func (r *Resolver) scanPointsExtent(path string) (region.Region, bool) {
	f, err := r.FS.Open(path)
	if err != nil {
		return region.Region{}, false
	}
	defer f.Close()

	xmin, xmax := math.Inf(1), math.Inf(-1)
	ymin, ymax := math.Inf(1), math.Inf(-1)
	zmin, zmax := math.Inf(1), math.Inf(-1)
	n := 0
	err = xyz.Parse(f, path, r.Layout, xyz.Filter{}, func(p xyz.Point) error {
		n++
		xmin, xmax = math.Min(xmin, p.X), math.Max(xmax, p.X)
		ymin, ymax = math.Min(ymin, p.Y), math.Max(ymax, p.Y)
		zmin, zmax = math.Min(zmin, p.Z), math.Max(zmax, p.Z)
		return nil
	})
	if err != nil || n == 0 {
		return region.Region{}, false
	}
	return region.NewZ(xmin, xmax, ymin, ymax, zmin, zmax), true
}
