package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/twpayne/go-geom"
	"golang.org/x/image/vector"

	"github.com/geoatlas/poimap/pkg/overpass"
)

type point2 struct {
	x, y float64
}

// drawCollection overlays every feature of the collection on dst using the
// projection of the stitched basemap. Drawing order is polygons, then lines,
// then points, so markers stay visible.
func drawCollection(dst *image.RGBA, proj projection, c *overpass.Collection, style Style) {
	fill := style.fill()
	stroke := style.stroke()

	for _, f := range c.Polygons {
		if poly, ok := f.Geom.(*geom.Polygon); ok {
			drawPolygon(dst, proj, poly, fill, stroke, style.StrokeWidth)
		}
	}
	for _, f := range c.MultiPolygons {
		if mp, ok := f.Geom.(*geom.MultiPolygon); ok {
			for i := 0; i < mp.NumPolygons(); i++ {
				drawPolygon(dst, proj, mp.Polygon(i), fill, stroke, style.StrokeWidth)
			}
		}
	}
	for _, f := range c.Lines {
		switch g := f.Geom.(type) {
		case *geom.LineString:
			strokePolyline(dst, projectFlat(proj, g.FlatCoords(), g.Stride()), style.StrokeWidth, stroke)
		case *geom.MultiLineString:
			for i := 0; i < g.NumLineStrings(); i++ {
				ls := g.LineString(i)
				strokePolyline(dst, projectFlat(proj, ls.FlatCoords(), ls.Stride()), style.StrokeWidth, stroke)
			}
		}
	}
	for _, f := range c.Points {
		if pt, ok := f.Geom.(*geom.Point); ok {
			x, y := proj.pixel(pt.Y(), pt.X())
			fillDisc(dst, point2{x, y}, style.PointRadius, fill)
			strokeDisc(dst, point2{x, y}, style.PointRadius, style.StrokeWidth, stroke)
		}
	}
}

// projectFlat converts flat lon/lat coords to pixel points.
func projectFlat(proj projection, flat []float64, stride int) []point2 {
	pts := make([]point2, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		x, y := proj.pixel(flat[i+1], flat[i])
		pts = append(pts, point2{x, y})
	}
	return pts
}

func drawPolygon(dst *image.RGBA, proj projection, poly *geom.Polygon, fill, stroke color.Color, width float64) {
	rings := make([][]point2, 0, poly.NumLinearRings())
	for i := 0; i < poly.NumLinearRings(); i++ {
		ring := poly.LinearRing(i)
		rings = append(rings, projectFlat(proj, ring.FlatCoords(), ring.Stride()))
	}

	fillRings(dst, rings, fill)
	for _, ring := range rings {
		strokePolyline(dst, ring, width, stroke)
	}
}

// fillRings rasterizes closed rings as a single filled path. The rasterizer
// applies the non-zero winding rule, so the first (outer) ring is oriented
// clockwise and every later (inner) ring counter-clockwise to punch holes.
func fillRings(dst *image.RGBA, rings [][]point2, col color.Color) {
	z := vector.NewRasterizer(dst.Rect.Dx(), dst.Rect.Dy())
	z.DrawOp = draw.Over

	empty := true
	for i, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		ring = orient(ring, i == 0)
		z.MoveTo(float32(ring[0].x), float32(ring[0].y))
		for _, p := range ring[1:] {
			z.LineTo(float32(p.x), float32(p.y))
		}
		z.ClosePath()
		empty = false
	}
	if empty {
		return
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{})
}

// orient returns the ring wound clockwise (in pixel space, y down) when cw
// is true, counter-clockwise otherwise.
func orient(ring []point2, cw bool) []point2 {
	var area float64
	for i := 0; i < len(ring); i++ {
		a, b := ring[i], ring[(i+1)%len(ring)]
		area += a.x*b.y - b.x*a.y
	}
	// Positive shoelace area means clockwise under a y-down axis.
	if (area > 0) == cw {
		return ring
	}
	rev := make([]point2, len(ring))
	for i, p := range ring {
		rev[len(ring)-1-i] = p
	}
	return rev
}

// strokePolyline draws a path as quads per segment plus joint discs.
func strokePolyline(dst *image.RGBA, pts []point2, width float64, col color.Color) {
	if width <= 0 || len(pts) < 2 {
		return
	}
	half := width / 2

	z := vector.NewRasterizer(dst.Rect.Dx(), dst.Rect.Dy())
	z.DrawOp = draw.Over

	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		dx, dy := b.x-a.x, b.y-a.y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		// Unit normal of the segment.
		nx, ny := -dy/length*half, dx/length*half

		z.MoveTo(float32(a.x+nx), float32(a.y+ny))
		z.LineTo(float32(b.x+nx), float32(b.y+ny))
		z.LineTo(float32(b.x-nx), float32(b.y-ny))
		z.LineTo(float32(a.x-nx), float32(a.y-ny))
		z.ClosePath()
	}
	// Joint discs must wind like the segment quads or the overlap cancels
	// under the non-zero rule.
	for _, p := range pts {
		appendArc(z, p, half, true)
	}

	z.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{})
}

func fillDisc(dst *image.RGBA, center point2, radius float64, col color.Color) {
	if radius <= 0 {
		return
	}
	z := vector.NewRasterizer(dst.Rect.Dx(), dst.Rect.Dy())
	z.DrawOp = draw.Over
	appendDisc(z, center, radius)
	z.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{})
}

func strokeDisc(dst *image.RGBA, center point2, radius, width float64, col color.Color) {
	if radius <= 0 || width <= 0 {
		return
	}
	z := vector.NewRasterizer(dst.Rect.Dx(), dst.Rect.Dy())
	z.DrawOp = draw.Over

	// Annulus: outer disc minus reverse-wound inner disc.
	appendArc(z, center, radius+width/2, false)
	appendArc(z, center, math.Max(radius-width/2, 0), true)
	z.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{})
}

func appendDisc(z *vector.Rasterizer, center point2, radius float64) {
	appendArc(z, center, radius, false)
}

// appendArc approximates a circle as a 24-gon path; reverse flips winding.
func appendArc(z *vector.Rasterizer, center point2, radius float64, reverse bool) {
	const segments = 24
	if radius <= 0 {
		return
	}
	z.MoveTo(float32(center.x+radius), float32(center.y))
	for i := 1; i <= segments; i++ {
		angle := 2 * math.Pi * float64(i) / segments
		if reverse {
			angle = -angle
		}
		z.LineTo(float32(center.x+radius*math.Cos(angle)), float32(center.y+radius*math.Sin(angle)))
	}
	z.ClosePath()
}
