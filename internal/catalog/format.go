// Package catalog resolves recursive datalist trees of heterogeneous
// elevation sources into a single lazily-produced, weighted,
// region-filtered point stream.
package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Resolution failure taxonomy. Source and format errors skip the
// offending entry and continue the run; cycles fail the re-entered
// entry with a distinct error.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCatalogCycle      = errors.New("catalog cycle")
)

// Kind is the variant of a catalog entry.
type Kind int

const (
	// KindCatalog is a nested datalist of further entries.
	KindCatalog Kind = iota
	// KindPoints is a delimited ASCII xyz source.
	KindPoints
	// KindRaster is a gridded source scanned through the raster
	// collaborator.
	KindRaster
	// KindRemote is a scheme-addressed fetch source.
	KindRemote
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindCatalog:
		return "catalog"
	case KindPoints:
		return "points"
	case KindRaster:
		return "raster"
	case KindRemote:
		return "remote"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Wire format codes carried in datalist lines. Codes at or above
// CodeRemote all map to KindRemote; the scheme selects the fetcher.
const (
	CodeCatalog = -1
	CodePoints  = 168
	CodeRaster  = 200
	CodeRemote  = 400
)

// Registry maps wire format codes and filename extensions to entry
// kinds. The zero Registry is not usable; construct with NewRegistry
// and extend with RegisterExt for additional source spellings.
type Registry struct {
	exts    map[string]int
	schemes map[string]bool
}

// NewRegistry returns a registry preloaded with the standard datalist
// format spellings.
func NewRegistry() *Registry {
	r := &Registry{exts: make(map[string]int), schemes: make(map[string]bool)}
	for _, e := range []string{"datalist", "mb-1"} {
		r.exts[e] = CodeCatalog
	}
	for _, e := range []string{"xyz", "csv", "dat", "ascii"} {
		r.exts[e] = CodePoints
	}
	for _, e := range []string{"tif", "img", "grd", "nc", "vrt", "bag"} {
		r.exts[e] = CodeRaster
	}
	return r
}

// RegisterExt maps a filename extension (without dot) to a wire code.
func (r *Registry) RegisterExt(ext string, code int) {
	r.exts[strings.ToLower(ext)] = code
}

// RegisterScheme marks a remote-fetch scheme as known, so bare
// "scheme:args" references infer KindRemote.
func (r *Registry) RegisterScheme(scheme string) {
	r.schemes[strings.ToLower(scheme)] = true
}

// KindOf maps a wire code to its entry kind.
func (r *Registry) KindOf(code int) (Kind, error) {
	switch {
	case code == CodeCatalog:
		return KindCatalog, nil
	case code == CodePoints:
		return KindPoints, nil
	case code == CodeRaster:
		return KindRaster, nil
	case code >= CodeRemote:
		return KindRemote, nil
	}
	return 0, fmt.Errorf("format code %d: %w", code, ErrUnsupportedFormat)
}

// Infer guesses the wire code of a source reference from its extension
// or scheme prefix.
func (r *Registry) Infer(ref string) (int, error) {
	if i := strings.IndexByte(ref, ':'); i > 0 && !strings.Contains(ref[:i], "/") {
		if r.schemes[strings.ToLower(ref[:i])] {
			return CodeRemote, nil
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(ref), "."))
	if code, ok := r.exts[ext]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("cannot infer format of %q: %w", ref, ErrUnsupportedFormat)
}
