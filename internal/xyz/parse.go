package xyz

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/demworks/waffle/internal/region"
)

// ErrMalformedRecord reports an unparsable point line. Malformed
// records are skipped, never fatal.
var ErrMalformedRecord = errors.New("malformed record")

// knownDelims is the ordered set of candidate field delimiters probed
// against the first data line of a source.
var knownDelims = []string{",", " ", "\t", "/", ":"}

// Layout describes the column layout of a delimited xyz source.
// The zero value selects auto-detected delimiter, columns x=0 y=1 z=2
// and no header lines.
type Layout struct {
	Delim string // "" means probe knownDelims
	XPos  int
	YPos  int
	ZPos  int
	Skip  int // header lines to skip
}

// DefaultLayout returns the standard x/y/z column layout.
func DefaultLayout() Layout {
	return Layout{XPos: 0, YPos: 1, ZPos: 2}
}

// ProbeDelim returns the first known delimiter that splits line into
// more than one field, or "" when none does.
func ProbeDelim(line string) string {
	for _, d := range knownDelims {
		if len(strings.Split(line, d)) > 1 {
			return d
		}
	}
	return ""
}

// ParseLine parses one delimited line into a Point with Weight 1.
func ParseLine(line string, layout Layout) (Point, error) {
	fields := strings.Split(strings.TrimSpace(line), layout.Delim)
	if layout.Delim == " " {
		fields = strings.Fields(line)
	}
	max := layout.XPos
	if layout.YPos > max {
		max = layout.YPos
	}
	if layout.ZPos > max {
		max = layout.ZPos
	}
	if len(fields) <= max {
		return Point{}, fmt.Errorf("%w: %q has %d fields", ErrMalformedRecord, line, len(fields))
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(fields[layout.XPos]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: x: %q", ErrMalformedRecord, line)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(fields[layout.YPos]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: y: %q", ErrMalformedRecord, line)
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(fields[layout.ZPos]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: z: %q", ErrMalformedRecord, line)
	}
	return Point{X: x, Y: y, Z: z, Weight: 1}, nil
}

// Filter restricts a parsed stream. A nil Region passes every
// coordinate; UseZ gates on the z range.
type Filter struct {
	Region *region.Region
	ZMin   float64
	ZMax   float64
	UseZ   bool
}

// Pass reports whether p survives the filter.
func (f Filter) Pass(p Point) bool {
	if f.Region != nil && !f.Region.Contains(p.X, p.Y) {
		return false
	}
	if f.UseZ && (p.Z < f.ZMin || p.Z > f.ZMax) {
		return false
	}
	return true
}

// Parse streams points from delimited ASCII data. The delimiter is
// probed from the first data line when the layout does not fix one.
// Unparsable lines are logged and skipped; the scan continues. name is
// used only for log messages.
func Parse(r io.Reader, name string, layout Layout, filter Filter, fn Sink) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	skip := layout.Skip
	for sc.Scan() {
		line := sc.Text()
		if skip > 0 {
			skip--
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if layout.Delim == "" {
			layout.Delim = ProbeDelim(strings.TrimSpace(line))
			if layout.Delim == "" {
				layout.Delim = " "
			}
		}
		p, err := ParseLine(line, layout)
		if err != nil {
			log.Printf("warning: %s: skipping record: %v", name, err)
			continue
		}
		if !filter.Pass(p) {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", name, err)
	}
	return nil
}
