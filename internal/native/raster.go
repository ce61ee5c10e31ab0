package native

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/demworks/waffle/internal/fsutil"
	"github.com/demworks/waffle/internal/grid"
)

// AsciiWriter persists rasters as ESRI ASCII grids.
type AsciiWriter struct {
	FS fsutil.FileSystem
}

// Write renders r to path, appending the .asc extension when missing,
// and returns the written path.
func (w AsciiWriter) Write(r *grid.Raster, path string) (string, error) {
	if !strings.HasSuffix(path, ".asc") {
		path += ".asc"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ncols %d\n", r.Spec.Width)
	fmt.Fprintf(&buf, "nrows %d\n", r.Spec.Height)
	fmt.Fprintf(&buf, "xllcorner %g\n", r.Spec.Region.West)
	fmt.Fprintf(&buf, "yllcorner %g\n", r.Spec.Region.South)
	fmt.Fprintf(&buf, "cellsize %g\n", r.Spec.CellSize)
	fmt.Fprintf(&buf, "NODATA_value %g\n", r.Spec.Nodata)
	for row := 0; row < r.Spec.Height; row++ {
		for col := 0; col < r.Spec.Width; col++ {
			if col > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "%g", r.At(col, row))
		}
		buf.WriteByte('\n')
	}

	if err := w.FS.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write raster %s: %w", path, err)
	}
	return path, nil
}
