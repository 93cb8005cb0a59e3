package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoatlas/poimap/pkg/geo"
)

func TestTileCoords_Origin(t *testing.T) {
	// Lat/lon 0,0 sits at the center of the tile grid.
	x, y := tileCoords(0, 0, 1)
	assert.InDelta(t, 1.0, x, 1e-9)
	assert.InDelta(t, 1.0, y, 1e-9)

	x, y = tileCoords(0, 0, 0)
	assert.InDelta(t, 0.5, x, 1e-9)
	assert.InDelta(t, 0.5, y, 1e-9)
}

func TestTileCoords_KnownLocation(t *testing.T) {
	// Lagos at zoom 10 lands in tile x=521, y=493.
	x, y := tileCoords(6.5244, 3.3792, 10)
	assert.Equal(t, 521, int(x))
	assert.Equal(t, 493, int(y))
}

func TestRangeAt(t *testing.T) {
	lagos, err := geo.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	require.NoError(t, err)

	tr := rangeAt(lagos, 10)
	assert.Equal(t, 10, tr.zoom)
	assert.LessOrEqual(t, tr.minX, tr.maxX)
	assert.LessOrEqual(t, tr.minY, tr.maxY)
	assert.Equal(t, tr.cols()*tr.rows(), tr.count())
}

func TestZoomFor_RespectsBudgets(t *testing.T) {
	lagos, err := geo.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	require.NoError(t, err)

	tr := zoomFor(lagos, 1024, 16)
	assert.LessOrEqual(t, tr.count(), 16)
	assert.LessOrEqual(t, tr.cols()*TileSize, 1024)
	assert.Greater(t, tr.zoom, 0)
}

func TestZoomFor_MonotonicWithWidth(t *testing.T) {
	lagos, err := geo.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	require.NoError(t, err)

	small := zoomFor(lagos, 512, 64)
	large := zoomFor(lagos, 4096, 64)
	assert.GreaterOrEqual(t, large.zoom, small.zoom)
}

func TestProjection_CornersMap(t *testing.T) {
	lagos, err := geo.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	require.NoError(t, err)

	tr := rangeAt(lagos, 12)
	proj := projection{tr: tr}

	// The NW corner projects into the first tile of the range.
	x, y := proj.pixel(lagos.North, lagos.West)
	assert.GreaterOrEqual(t, x, 0.0)
	assert.GreaterOrEqual(t, y, 0.0)
	assert.Less(t, x, float64(TileSize))
	assert.Less(t, y, float64(TileSize))

	// South-east of the box projects south-east in pixels.
	x2, y2 := proj.pixel(lagos.South, lagos.East)
	assert.Greater(t, x2, x)
	assert.Greater(t, y2, y)
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 0, clampInt(-5, 0, 10))
	assert.Equal(t, 10, clampInt(50, 0, 10))
	assert.Equal(t, 7, clampInt(7, 0, 10))
}
