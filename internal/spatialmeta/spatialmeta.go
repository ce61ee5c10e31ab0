// Package spatialmeta builds a per-source coverage vector layer for a
// catalog: each leaf source becomes polygon features tracing where its
// in-region data falls, attributed with the source's metadata columns.
package spatialmeta

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/demworks/waffle/internal/catalog"
	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// LayerFields are the attribute columns of the coverage layer, aligned
// with the catalog's metadata columns.
var LayerFields = []engine.Field{
	{Name: "Name"},
	{Name: "Agency"},
	{Name: "Date"},
	{Name: "Type"},
	{Name: "Resolution"},
	{Name: "HDatum"},
	{Name: "VDatum"},
	{Name: "URL"},
}

const defaultWorkers = 4

// Builder assembles the coverage layer. Sources are masked and traced
// concurrently; the writer is serialized internally.
type Builder struct {
	Resolver    *catalog.Resolver
	Writer      engine.VectorWriter
	Polygonizer engine.Polygonizer
	Workers     int
}

type job struct {
	entry  catalog.Entry
	path   string
	points []xyz.Point
}

// Run resolves the catalog once and writes one coverage layer over the
// target region. Sources whose footprint cannot be traced are skipped
// with a warning.
func (b *Builder) Run(rootRef string, opts catalog.Options, r region.Region, cellSize float64, layer string) error {
	spec, err := grid.NewSpec(r, cellSize)
	if err != nil {
		return fmt.Errorf("coverage layer grid: %w", err)
	}
	if err := b.Writer.CreateLayer(layer, LayerFields); err != nil {
		return fmt.Errorf("create layer %s: %w", layer, err)
	}

	workers := b.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	jobs := make(chan job)

	var (
		wg       sync.WaitGroup
		writeMu  sync.Mutex
		errMu    sync.Mutex
		firstErr error
		features int
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				n, err := b.trace(spec, layer, j, &writeMu)
				if err != nil {
					fail(err)
					continue
				}
				errMu.Lock()
				features += n
				errMu.Unlock()
			}
		}()
	}

	// Entries arrive strictly in traversal order, so the previous
	// source is complete once the next sink is requested.
	var pending *job
	flush := func() {
		if pending != nil && len(pending.points) > 0 {
			jobs <- *pending
		}
		pending = nil
	}
	err = b.Resolver.ResolveEntries(rootRef, opts, func(e catalog.Entry, path string) (xyz.Sink, error) {
		flush()
		j := &job{entry: e, path: path}
		pending = j
		return func(p xyz.Point) error {
			j.points = append(j.points, p)
			return nil
		}, nil
	})
	flush()
	close(jobs)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("spatial metadata for %s: %w", rootRef, err)
	}
	if firstErr != nil {
		return firstErr
	}
	log.Printf("spatial metadata: wrote %d features to layer %s", features, layer)
	return nil
}

// trace masks one source's points over the layer grid and writes its
// footprint polygons.
func (b *Builder) trace(spec grid.Spec, layer string, j job, writeMu *sync.Mutex) (int, error) {
	mask, err := grid.Bin(xyz.SliceSource(j.points), spec, grid.Presence)
	if err != nil {
		return 0, fmt.Errorf("mask %s: %w", j.path, err)
	}
	rings, err := b.Polygonizer.Polygonize(mask)
	if err != nil {
		log.Printf("warning: footprint of %s: %v, source skipped", j.path, err)
		return 0, nil
	}

	attrs := attributes(j.entry, j.path)
	writeMu.Lock()
	defer writeMu.Unlock()
	n := 0
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		if err := b.Writer.AddFeature(layer, engine.Feature{Ring: ring, Attributes: attrs}); err != nil {
			return n, fmt.Errorf("feature for %s: %w", j.path, err)
		}
		n++
	}
	return n, nil
}

// attributes pads a source's metadata columns out to the layer fields,
// defaulting the name column to the source filename.
func attributes(e catalog.Entry, path string) []string {
	out := make([]string, len(LayerFields))
	copy(out, e.Metadata)
	if out[0] == "" {
		base := filepath.Base(path)
		out[0] = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return out
}
