// Package xyz provides the point record type shared by the catalog,
// gridding and uncertainty layers, and a streaming parser for
// delimited ASCII elevation data.
package xyz

// Point is one elevation sample. Weight is attached by the catalog
// resolver; sources that carry no weight stream with Weight 1.
type Point struct {
	X      float64
	Y      float64
	Z      float64
	Weight float64
}

// Sink consumes points one at a time. Returning a non-nil error stops
// the producing stream and propagates out of it.
type Sink func(Point) error

// Source produces points into a Sink. Implementations stream: they
// never materialize the full point set.
type Source interface {
	Each(fn Sink) error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(fn Sink) error

// Each calls f(fn).
func (f SourceFunc) Each(fn Sink) error { return f(fn) }

// SliceSource adapts an in-memory point slice to the Source interface.
// Used for trial datasets and tests; production paths stream from files.
type SliceSource []Point

// Each yields every point in order.
func (s SliceSource) Each(fn Sink) error {
	for _, p := range s {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}
