package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/demworks/waffle/internal/xyz"
)

// Archive streams the catalog like Resolve while teeing each leaf's
// in-region records into an archive directory. Every archived leaf
// becomes a plain xyz file, and a new top-level datalist indexing them
// is written at <dir>/<name>.datalist. The forwarded stream reaches fn
// unchanged, so a grid run and an archive can share one pass.
func (r *Resolver) Archive(rootRef string, opts Options, dir, name string, fn xyz.Sink) error {
	if err := r.FS.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive dir %s: %w", dir, err)
	}
	indexPath := filepath.Join(dir, name+".datalist")

	seen := map[string]int{}
	err := r.ResolveEntries(rootRef, opts, func(e Entry, path string) (xyz.Sink, error) {
		base := archiveBase(path, seen)
		outPath := filepath.Join(dir, base+".xyz")

		indexed := false
		return func(p xyz.Point) error {
			// Index lazily so empty leaves leave no trace.
			if !indexed {
				entry := Entry{Path: base + ".xyz", Code: CodePoints, Weight: e.EffectiveWeight(opts.Override), HasWgt: true, Metadata: e.Metadata}
				if err := r.AppendEntry(indexPath, entry); err != nil {
					return fmt.Errorf("archive index: %w", err)
				}
				indexed = true
			}
			line := fmt.Sprintf("%g %g %g\n", p.X, p.Y, p.Z)
			if err := r.FS.Append(outPath, []byte(line)); err != nil {
				return fmt.Errorf("archiving %s: %w", outPath, err)
			}
			if fn != nil {
				return fn(p)
			}
			return nil
		}, nil
	})
	if err != nil {
		return err
	}
	if !r.FS.Exists(indexPath) {
		return fmt.Errorf("archive of %s produced no data", rootRef)
	}
	return nil
}

// archiveBase derives a unique archive filename stem from a source
// path.
func archiveBase(path string, seen map[string]int) string {
	base := filepath.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\':
			return '_'
		}
		return r
	}, base)
	n := seen[base]
	seen[base] = n + 1
	if n > 0 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}
