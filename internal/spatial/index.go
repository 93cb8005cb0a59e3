// Package spatial builds an in-memory R-tree over a query result, so callers
// can narrow or inspect a collection locally instead of re-issuing remote
// queries.
package spatial

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/geoatlas/poimap/pkg/geo"
	"github.com/geoatlas/poimap/pkg/overpass"
)

const (
	dimensions  = 2
	minChildren = 8
	maxChildren = 16

	// degenerate extent for point features; rtreego rejects zero-size rects
	pointExtent = 1e-9
)

type item struct {
	feature overpass.Feature
	rect    rtreego.Rect
}

func (it *item) Bounds() rtreego.Rect {
	return it.rect
}

// Index is an immutable R-tree over the features of one collection.
// Build once, query many times; not safe for concurrent mutation (there is
// none) but safe for concurrent reads.
type Index struct {
	tree *rtreego.Rtree
	size int
}

// NewIndex indexes every feature of the collection by its geometry envelope.
func NewIndex(c *overpass.Collection) (*Index, error) {
	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)

	size := 0
	for _, f := range c.All() {
		rect, err := envelope(f.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: index %s %d", f.Kind, f.ID)
		}
		tree.Insert(&item{feature: f, rect: rect})
		size++
	}
	return &Index{tree: tree, size: size}, nil
}

// Len returns the number of indexed features.
func (ix *Index) Len() int {
	return ix.size
}

// Within returns the features whose envelope intersects the box, in no
// particular order.
func (ix *Index) Within(bounds geo.BoundingBox) []overpass.Feature {
	lengths := []float64{
		math.Max(bounds.East-bounds.West, pointExtent),
		math.Max(bounds.North-bounds.South, pointExtent),
	}
	rect, err := rtreego.NewRect(rtreego.Point{bounds.West, bounds.South}, lengths)
	if err != nil {
		return nil
	}

	var out []overpass.Feature
	for _, sp := range ix.tree.SearchIntersect(rect) {
		out = append(out, sp.(*item).feature)
	}
	return out
}

// Nearest returns up to n features closest to the point by envelope distance.
func (ix *Index) Nearest(lat, lon float64, n int) []overpass.Feature {
	if n <= 0 {
		return nil
	}

	out := make([]overpass.Feature, 0, n)
	for _, sp := range ix.tree.NearestNeighbors(n, rtreego.Point{lon, lat}) {
		if sp == nil {
			break
		}
		out = append(out, sp.(*item).feature)
	}
	return out
}

// envelope computes the x/y bounding rectangle of a geometry.
func envelope(g geom.T) (rtreego.Rect, error) {
	if g == nil {
		return rtreego.Rect{}, eris.New("nil geometry")
	}

	flat := g.FlatCoords()
	if len(flat) < 2 {
		return rtreego.Rect{}, eris.New("empty geometry")
	}

	stride := g.Stride()
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(flat); i += stride {
		minX = math.Min(minX, flat[i])
		maxX = math.Max(maxX, flat[i])
		minY = math.Min(minY, flat[i+1])
		maxY = math.Max(maxY, flat[i+1])
	}

	w := math.Max(maxX-minX, pointExtent)
	h := math.Max(maxY-minY, pointExtent)
	return rtreego.NewRect(rtreego.Point{minX, minY}, []float64{w, h})
}
