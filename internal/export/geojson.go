// Package export serializes query-result collections to interchange formats.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/geoatlas/poimap/pkg/overpass"
)

// WriteGeoJSON writes the collection as a GeoJSON FeatureCollection. Features
// appear in class order (points, lines, polygons, multipolygons) and within
// each class in the collection's stored order, so repeated exports of the
// same collection are byte-identical.
func WriteGeoJSON(w io.Writer, c *overpass.Collection) error {
	if c == nil {
		return eris.New("export: nil collection")
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, c.Count())}
	for _, f := range c.All() {
		fc.Features = append(fc.Features, toGeoJSON(f))
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

func toGeoJSON(f overpass.Feature) *geojson.Feature {
	props := make(map[string]any, len(f.Tags)+1)
	for k, v := range f.Tags {
		props[k] = v
	}
	props["@id"] = featureID(f)

	return &geojson.Feature{
		ID:         featureID(f),
		Geometry:   f.Geom,
		Properties: props,
	}
}

// featureID renders the conventional "kind/id" OSM identifier.
func featureID(f overpass.Feature) string {
	return fmt.Sprintf("%s/%d", f.Kind, f.ID)
}
