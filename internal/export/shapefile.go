package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/geoatlas/poimap/pkg/overpass"
)

// DBF string columns are capped at 254 bytes; we keep them well under.
const (
	idFieldLen   = 24
	nameFieldLen = 100
)

// WriteShapefiles writes one shapefile per geometry class under dir, named
// <base>_points.shp, <base>_lines.shp and <base>_polygons.shp (polygons and
// multipolygons share the polygon file). Classes with no features produce no
// file. Returns the paths written.
func WriteShapefiles(dir, base string, c *overpass.Collection) ([]string, error) {
	if c == nil {
		return nil, eris.New("export: nil collection")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	var written []string

	if len(c.Points) > 0 {
		path := filepath.Join(dir, base+"_points.shp")
		if err := writeClass(path, shp.POINT, c.Points, pointShape); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	if len(c.Lines) > 0 {
		path := filepath.Join(dir, base+"_lines.shp")
		if err := writeClass(path, shp.POLYLINE, c.Lines, lineShape); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	if polys := append(append([]overpass.Feature{}, c.Polygons...), c.MultiPolygons...); len(polys) > 0 {
		path := filepath.Join(dir, base+"_polygons.shp")
		if err := writeClass(path, shp.POLYGON, polys, polygonShape); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	zap.L().Info("export: shapefiles written",
		zap.String("dir", dir), zap.Strings("files", written))
	return written, nil
}

// writeClass writes one geometry class. toShape returns nil for features
// whose geometry cannot be expressed in the target shape type; those are
// skipped.
func writeClass(path string, st shp.ShapeType, features []overpass.Feature, toShape func(geom.T) shp.Shape) error {
	w, err := shp.Create(path, st)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.StringField("OSM_ID", idFieldLen),
		shp.StringField("NAME", nameFieldLen),
	})

	var skipped int
	for _, f := range features {
		shape := toShape(f.Geom)
		if shape == nil {
			skipped++
			continue
		}
		row := int(w.Write(shape))
		if err := w.WriteAttribute(row, 0, clip(fmt.Sprintf("%s/%d", f.Kind, f.ID), idFieldLen)); err != nil {
			return eris.Wrapf(err, "export: write OSM_ID for %s/%d", f.Kind, f.ID)
		}
		if err := w.WriteAttribute(row, 1, clip(f.Name(), nameFieldLen)); err != nil {
			return eris.Wrapf(err, "export: write NAME for %s/%d", f.Kind, f.ID)
		}
	}

	if skipped > 0 {
		zap.L().Debug("export: skipped shapefile records",
			zap.String("path", path), zap.Int("skipped", skipped))
	}
	return nil
}

func pointShape(g geom.T) shp.Shape {
	p, ok := g.(*geom.Point)
	if !ok {
		return nil
	}
	return &shp.Point{X: p.X(), Y: p.Y()}
}

func lineShape(g geom.T) shp.Shape {
	switch l := g.(type) {
	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{flatPoints(l.FlatCoords(), 0, len(l.FlatCoords()), l.Stride())})
	case *geom.MultiLineString:
		parts := make([][]shp.Point, 0, l.NumLineStrings())
		start := 0
		for _, end := range l.Ends() {
			parts = append(parts, flatPoints(l.FlatCoords(), start, end, l.Stride()))
			start = end
		}
		return shp.NewPolyLine(parts)
	default:
		return nil
	}
}

func polygonShape(g geom.T) shp.Shape {
	var parts [][]shp.Point
	switch p := g.(type) {
	case *geom.Polygon:
		parts = ringParts(p.FlatCoords(), p.Ends(), p.Stride())
	case *geom.MultiPolygon:
		start := 0
		for _, ends := range p.Endss() {
			for _, end := range ends {
				parts = append(parts, flatPoints(p.FlatCoords(), start, end, p.Stride()))
				start = end
			}
		}
	default:
		return nil
	}
	if len(parts) == 0 {
		return nil
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

func ringParts(flat []float64, ends []int, stride int) [][]shp.Point {
	parts := make([][]shp.Point, 0, len(ends))
	start := 0
	for _, end := range ends {
		parts = append(parts, flatPoints(flat, start, end, stride))
		start = end
	}
	return parts
}

func flatPoints(flat []float64, start, end, stride int) []shp.Point {
	pts := make([]shp.Point, 0, (end-start)/stride)
	for i := start; i < end; i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
