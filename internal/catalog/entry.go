package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// maxMetadata caps the metadata fields carried by one entry.
const maxMetadata = 8

// Entry is one parsed datalist line: a source reference, its format,
// an optional weight and up to eight metadata strings.
type Entry struct {
	Path     string
	Code     int
	Kind     Kind
	Weight   float64
	HasWgt   bool // false means "inherit the caller-supplied weight"
	Metadata []string
}

// EffectiveWeight resolves the entry's weight against an optional
// caller override. With no override the entry's own weight (default 1)
// is used unmodified; with an override the entry weight is compounded
// into it, so overrides multiply down nested catalogs.
func (e Entry) EffectiveWeight(override *float64) float64 {
	w := 1.0
	if e.HasWgt {
		w = e.Weight
	}
	if override != nil {
		return *override * w
	}
	return w
}

// ParseEntry parses one datalist line `path [formatCode [weight
// [meta1,meta2,...]]]`. Missing format codes are inferred from the
// reference; a missing weight leaves HasWgt false.
func ParseEntry(line string, reg *Registry) (Entry, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Entry{}, fmt.Errorf("empty entry line")
	}

	e := Entry{Path: fields[0]}

	if len(fields) > 1 {
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return Entry{}, fmt.Errorf("entry %q: bad format code %q", line, fields[1])
		}
		e.Code = code
	} else {
		code, err := reg.Infer(e.Path)
		if err != nil {
			return Entry{}, err
		}
		e.Code = code
	}

	kind, err := reg.KindOf(e.Code)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q: %w", line, err)
	}
	e.Kind = kind

	if len(fields) > 2 {
		w, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return Entry{}, fmt.Errorf("entry %q: bad weight %q", line, fields[2])
		}
		if w <= 0 {
			return Entry{}, fmt.Errorf("entry %q: weight must be positive, got %g", line, w)
		}
		e.Weight = w
		e.HasWgt = true
	}

	if len(fields) > 3 {
		meta := strings.Split(strings.Join(fields[3:], " "), ",")
		if len(meta) > maxMetadata {
			meta = meta[:maxMetadata]
		}
		for i := range meta {
			meta[i] = strings.TrimSpace(meta[i])
		}
		e.Metadata = meta
	}

	return e, nil
}

// String formats the entry as a datalist line.
func (e Entry) String() string {
	parts := []string{e.Path, strconv.Itoa(e.Code)}
	if e.HasWgt {
		parts = append(parts, strconv.FormatFloat(e.Weight, 'g', -1, 64))
	}
	if len(e.Metadata) > 0 {
		if !e.HasWgt {
			parts = append(parts, "1")
		}
		parts = append(parts, strings.Join(e.Metadata, ","))
	}
	return strings.Join(parts, " ")
}
