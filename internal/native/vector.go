package native

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/demworks/waffle/internal/engine"
	"github.com/demworks/waffle/internal/fsutil"
)

// GeoJSONWriter collects polygon features per layer and writes each
// layer as a GeoJSON FeatureCollection on Close.
type GeoJSONWriter struct {
	FS fsutil.FileSystem
	// Dir receives one <layer>.geojson file per created layer.
	Dir string

	layers map[string]*geoJSONLayer
}

type geoJSONLayer struct {
	fields   []engine.Field
	features []engine.Feature
}

// NewGeoJSONWriter returns a writer emitting into dir.
func NewGeoJSONWriter(fs fsutil.FileSystem, dir string) *GeoJSONWriter {
	return &GeoJSONWriter{FS: fs, Dir: dir, layers: make(map[string]*geoJSONLayer)}
}

// CreateLayer registers a layer and its attribute columns.
func (w *GeoJSONWriter) CreateLayer(name string, fields []engine.Field) error {
	if _, ok := w.layers[name]; ok {
		return fmt.Errorf("layer %s already exists", name)
	}
	w.layers[name] = &geoJSONLayer{fields: fields}
	return nil
}

// AddFeature appends a polygon feature to a created layer.
func (w *GeoJSONWriter) AddFeature(layer string, f engine.Feature) error {
	l, ok := w.layers[layer]
	if !ok {
		return fmt.Errorf("layer %s not created", layer)
	}
	l.features = append(l.features, f)
	return nil
}

type geoJSONFeature struct {
	Type       string            `json:"type"`
	Geometry   geoJSONGeometry   `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// Close writes every layer out.
func (w *GeoJSONWriter) Close() error {
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("vector output dir %s: %w", w.Dir, err)
	}
	names := make([]string, 0, len(w.layers))
	for name := range w.layers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		l := w.layers[name]
		coll := geoJSONCollection{Type: "FeatureCollection", Features: make([]geoJSONFeature, 0, len(l.features))}
		for _, f := range l.features {
			props := make(map[string]string, len(l.fields))
			for i, field := range l.fields {
				if i < len(f.Attributes) {
					props[field.Name] = f.Attributes[i]
				} else {
					props[field.Name] = ""
				}
			}
			coll.Features = append(coll.Features, geoJSONFeature{
				Type:       "Feature",
				Geometry:   geoJSONGeometry{Type: "Polygon", Coordinates: [][][2]float64{f.Ring}},
				Properties: props,
			})
		}

		data, err := json.MarshalIndent(coll, "", "  ")
		if err != nil {
			return fmt.Errorf("encode layer %s: %w", name, err)
		}
		path := w.Dir + "/" + name + ".geojson"
		if err := w.FS.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write layer %s: %w", path, err)
		}
	}
	return nil
}
