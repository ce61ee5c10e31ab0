package catalog

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/fsutil"
	"github.com/demworks/waffle/internal/region"
	"github.com/demworks/waffle/internal/xyz"
)

// remotePadPct is the percentage buffer applied to the query region
// before it is forwarded to a remote fetcher.
const remotePadPct = 5

// Resolver walks a datalist tree depth-first and streams the filtered,
// weighted point records of its leaves. Resolution is single-pass with
// one source open at a time; a fresh call restarts from the root.
type Resolver struct {
	FS       fsutil.FileSystem
	Registry *Registry
	Layout   xyz.Layout
	Rasters  engine.RasterScanner      // nil: raster entries are skipped
	Fetchers map[string]engine.Fetcher // keyed by scheme prefix
}

// NewResolver returns a resolver over the real filesystem with the
// standard format registry and column layout.
func NewResolver() *Resolver {
	return &Resolver{
		FS:       fsutil.OS{},
		Registry: NewRegistry(),
		Layout:   xyz.DefaultLayout(),
		Fetchers: make(map[string]engine.Fetcher),
	}
}

// RegisterFetcher installs a remote fetcher under a scheme prefix and
// teaches the registry to infer KindRemote for it.
func (r *Resolver) RegisterFetcher(scheme string, f engine.Fetcher) {
	if r.Fetchers == nil {
		r.Fetchers = make(map[string]engine.Fetcher)
	}
	r.Fetchers[strings.ToLower(scheme)] = f
	r.Registry.RegisterScheme(scheme)
}

// Options scope one resolution call.
type Options struct {
	// Region restricts streamed records and enables extent-cache
	// pruning. Nil streams everything.
	Region *region.Region

	// ZMin/ZMax filter record elevations when UseZ is set.
	ZMin float64
	ZMax float64
	UseZ bool

	// Override compounds a caller-supplied weight down the catalog
	// tree. Nil leaves each entry's own weight in effect.
	Override *float64

	// OverwriteCache forces extent sidecars to be regenerated.
	// Staleness is never detected automatically.
	OverwriteCache bool
}

func (o Options) filter() xyz.Filter {
	return xyz.Filter{Region: o.Region, ZMin: o.ZMin, ZMax: o.ZMax, UseZ: o.UseZ}
}

// EntrySink maps a leaf entry about to be streamed to the sink that
// should receive its records. Returning a nil sink skips the entry
// without opening it.
type EntrySink func(e Entry, path string) (xyz.Sink, error)

// Resolve streams every leaf record of the catalog tree rooted at
// rootRef into fn. rootRef is parsed as a datalist line, so it may be
// a bare path or carry an explicit format code and weight.
func (r *Resolver) Resolve(rootRef string, opts Options, fn xyz.Sink) error {
	return r.ResolveEntries(rootRef, opts, func(Entry, string) (xyz.Sink, error) {
		return fn, nil
	})
}

// ResolveEntries is Resolve with per-entry sink selection, used by the
// archiver and the bulk-cataloguing workload.
func (r *Resolver) ResolveEntries(rootRef string, opts Options, entryFn EntrySink) error {
	root, err := ParseEntry(rootRef, r.Registry)
	if err != nil {
		return fmt.Errorf("root entry: %w", err)
	}
	return r.resolveEntry(root, "", opts.Override, opts, entryFn, map[string]bool{})
}

// List returns the leaf entries reachable from rootRef, with extent
// pruning applied but no leaf source opened. Weights are resolved
// against the override the same way Resolve resolves them.
func (r *Resolver) List(rootRef string, opts Options) ([]Entry, error) {
	var out []Entry
	err := r.ResolveEntries(rootRef, opts, func(e Entry, path string) (xyz.Sink, error) {
		resolved := e
		resolved.Path = path
		resolved.Weight = e.EffectiveWeight(opts.Override)
		resolved.HasWgt = true
		out = append(out, resolved)
		return nil, nil
	})
	return out, err
}

// AppendEntry appends an entry line to a datalist file.
func (r *Resolver) AppendEntry(catalogPath string, e Entry) error {
	return r.FS.Append(catalogPath, []byte(e.String()+"\n"))
}

func (r *Resolver) resolveEntry(e Entry, dir string, override *float64, opts Options, entryFn EntrySink, visited map[string]bool) error {
	path := joinEntryPath(dir, e)

	// Prune on the cached extent before opening anything.
	if opts.Region != nil && e.Kind != KindRemote {
		if ext, ok := r.Extent(e, path, opts.OverwriteCache); ok && ext.Valid() {
			if !region.Intersects(ext, *opts.Region) {
				return nil
			}
			if ext.HasZ && opts.UseZ && (ext.ZMin > opts.ZMax || ext.ZMax < opts.ZMin) {
				return nil
			}
		}
	}

	switch e.Kind {
	case KindCatalog:
		return r.resolveCatalog(e, path, override, opts, entryFn, visited)
	case KindPoints:
		return r.resolvePoints(e, path, override, opts, entryFn)
	case KindRaster:
		return r.resolveRaster(e, path, override, opts, entryFn)
	case KindRemote:
		return r.resolveRemote(e, override, opts, entryFn)
	}
	log.Printf("warning: %s: %v, entry skipped", e.Path, ErrUnsupportedFormat)
	return nil
}

func (r *Resolver) resolveCatalog(e Entry, path string, override *float64, opts Options, entryFn EntrySink, visited map[string]bool) error {
	abs := cleanPath(path)
	if visited[abs] {
		log.Printf("warning: %s: %v, entry skipped", path, ErrCatalogCycle)
		return nil
	}
	visited[abs] = true
	defer delete(visited, abs)

	f, err := r.FS.Open(path)
	if err != nil {
		log.Printf("warning: %s: %v (%v), entry skipped", path, ErrSourceUnavailable, err)
		return nil
	}
	children, err := readEntries(f, path, r.Registry)
	f.Close()
	if err != nil {
		return err
	}

	// An override in effect compounds through this catalog's own
	// weight; without one, children keep their own weights.
	var childOverride *float64
	if override != nil {
		w := e.EffectiveWeight(override)
		childOverride = &w
	}

	dir := filepath.Dir(path)
	for _, child := range children {
		if err := r.resolveEntry(child, dir, childOverride, opts, entryFn, visited); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) resolvePoints(e Entry, path string, override *float64, opts Options, entryFn EntrySink) error {
	sink, err := entryFn(e, path)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil
	}
	f, err := r.FS.Open(path)
	if err != nil {
		log.Printf("warning: %s: %v (%v), entry skipped", path, ErrSourceUnavailable, err)
		return nil
	}
	defer f.Close()

	weight := e.EffectiveWeight(override)
	return xyz.Parse(f, path, r.Layout, opts.filter(), weighted(sink, weight))
}

func (r *Resolver) resolveRaster(e Entry, path string, override *float64, opts Options, entryFn EntrySink) error {
	if r.Rasters == nil {
		log.Printf("warning: %s: no raster scanner configured, entry skipped", path)
		return nil
	}
	sink, err := entryFn(e, path)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil
	}
	if !r.FS.Exists(path) {
		log.Printf("warning: %s: %v, entry skipped", path, ErrSourceUnavailable)
		return nil
	}
	weight := e.EffectiveWeight(override)
	if err := r.Rasters.Scan(path, opts.filter(), weighted(sink, weight)); err != nil {
		log.Printf("warning: %s: raster scan: %v, entry skipped", path, err)
	}
	return nil
}

func (r *Resolver) resolveRemote(e Entry, override *float64, opts Options, entryFn EntrySink) error {
	scheme, args := splitRemoteRef(e.Path)
	fetcher, ok := r.Fetchers[scheme]
	if !ok {
		log.Printf("warning: %s: no fetcher for scheme %q, entry skipped", e.Path, scheme)
		return nil
	}
	sink, err := entryFn(e, e.Path)
	if err != nil {
		return err
	}
	if sink == nil {
		return nil
	}

	var query region.Region
	if opts.Region != nil {
		query = region.Buffer(*opts.Region, remotePadPct, true)
	}
	weight := e.EffectiveWeight(override)
	filter := opts.filter()
	out := func(p xyz.Point) error {
		if !filter.Pass(p) {
			return nil
		}
		p.Weight = weight
		return sink(p)
	}
	if err := fetcher.Fetch(query, args, out); err != nil {
		log.Printf("warning: %s: fetch: %v, entry skipped", e.Path, err)
	}
	return nil
}

// weighted wraps a sink so every record carries the resolved entry
// weight as its fourth field.
func weighted(fn xyz.Sink, w float64) xyz.Sink {
	return func(p xyz.Point) error {
		p.Weight = w
		return fn(p)
	}
}

// readEntries parses the non-comment, non-blank lines of a datalist.
// Unparsable lines are logged and skipped.
func readEntries(f io.Reader, name string, reg *Registry) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := ParseEntry(line, reg)
		if err != nil {
			log.Printf("warning: %s: %v, line skipped", name, err)
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return out, nil
}

// joinEntryPath resolves a child reference relative to its catalog's
// directory. Remote references and absolute paths pass through.
func joinEntryPath(dir string, e Entry) string {
	if e.Kind == KindRemote || dir == "" || filepath.IsAbs(e.Path) {
		return e.Path
	}
	return filepath.Join(dir, e.Path)
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func splitRemoteRef(ref string) (scheme string, args []string) {
	parts := strings.Split(ref, ":")
	scheme = strings.ToLower(parts[0])
	if len(parts) > 1 {
		args = parts[1:]
	}
	return scheme, args
}
