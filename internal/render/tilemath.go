// Package render stitches slippy-map basemap tiles for a bounding box and
// overlays query results on top, producing an in-memory image.
package render

import (
	"math"

	"github.com/geoatlas/poimap/pkg/geo"
)

// TileSize is the edge length in pixels of standard slippy-map tiles.
const TileSize = 256

// maxZoom caps zoom selection at the level public OSM tile servers serve.
const maxZoom = 19

// tileCoords projects lat/lon to fractional tile coordinates at zoom z
// (Web Mercator, the slippy-map scheme).
func tileCoords(lat, lon float64, z int) (x, y float64) {
	n := float64(int(1) << uint(z))
	x = (lon + 180) / 360 * n

	rad := lat * math.Pi / 180
	y = (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * n
	return x, y
}

// tileRange is the inclusive tile rectangle covering a bounding box.
type tileRange struct {
	zoom                   int
	minX, minY, maxX, maxY int
}

// cols and rows are the tile grid dimensions.
func (tr tileRange) cols() int { return tr.maxX - tr.minX + 1 }
func (tr tileRange) rows() int { return tr.maxY - tr.minY + 1 }
func (tr tileRange) count() int {
	return tr.cols() * tr.rows()
}

// rangeAt computes the covering tile range for bounds at a fixed zoom.
func rangeAt(bounds geo.BoundingBox, zoom int) tileRange {
	// North-west corner has the smallest tile coordinates.
	minXf, minYf := tileCoords(bounds.North, bounds.West, zoom)
	maxXf, maxYf := tileCoords(bounds.South, bounds.East, zoom)

	n := (1 << uint(zoom)) - 1
	return tileRange{
		zoom: zoom,
		minX: clampInt(int(math.Floor(minXf)), 0, n),
		minY: clampInt(int(math.Floor(minYf)), 0, n),
		maxX: clampInt(int(math.Floor(maxXf)), 0, n),
		maxY: clampInt(int(math.Floor(maxYf)), 0, n),
	}
}

// zoomFor picks the highest zoom whose stitched width stays at or under
// targetWidth pixels and whose tile count stays within maxTiles.
func zoomFor(bounds geo.BoundingBox, targetWidth, maxTiles int) tileRange {
	best := rangeAt(bounds, 0)
	for z := 1; z <= maxZoom; z++ {
		tr := rangeAt(bounds, z)
		if tr.count() > maxTiles || tr.cols()*TileSize > targetWidth {
			break
		}
		best = tr
	}
	return best
}

// projection maps lat/lon to pixel coordinates inside the stitched image for
// one tile range.
type projection struct {
	tr tileRange
}

func (p projection) pixel(lat, lon float64) (x, y float64) {
	tx, ty := tileCoords(lat, lon, p.tr.zoom)
	return (tx - float64(p.tr.minX)) * TileSize, (ty - float64(p.tr.minY)) * TileSize
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
