package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/geoatlas/poimap/pkg/geo"
	"github.com/geoatlas/poimap/pkg/overpass"
)

// tileServer serves solid-gray PNG tiles and counts requests.
func tileServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	tile := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	for i := range tile.Pix {
		tile.Pix[i] = 0xee
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, tile))
	data := buf.Bytes()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
}

func TestBasemapFetcher_FetchRegion(t *testing.T) {
	var calls atomic.Int32
	srv := tileServer(t, &calls)
	defer srv.Close()

	f := NewBasemapFetcher(srv.URL, "png", WithConcurrency(2))

	tr := tileRange{zoom: 10, minX: 521, minY: 493, maxX: 522, maxY: 494}
	img, err := f.FetchRegion(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, 2*TileSize, img.Bounds().Dx())
	assert.Equal(t, 2*TileSize, img.Bounds().Dy())
	assert.Equal(t, int32(4), calls.Load())

	// All four quadrants carry tile pixels.
	_, _, b, _ := img.At(10, 10).RGBA()
	assert.NotZero(t, b)
}

func TestBasemapFetcher_CacheAvoidsRefetch(t *testing.T) {
	var calls atomic.Int32
	srv := tileServer(t, &calls)
	defer srv.Close()

	f := NewBasemapFetcher(srv.URL, "png", WithTileCache(64, time.Minute))
	tr := tileRange{zoom: 5, minX: 16, minY: 15, maxX: 16, maxY: 15}

	_, err := f.FetchRegion(context.Background(), tr)
	require.NoError(t, err)
	_, err = f.FetchRegion(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second region must come from cache")
}

func TestBasemapFetcher_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewBasemapFetcher(srv.URL, "png", WithTileCache(0, 0))
	_, err := f.FetchRegion(context.Background(), tileRange{zoom: 3, minX: 1, minY: 1, maxX: 1, maxY: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func testRenderer(t *testing.T, srvURL string) *Renderer {
	t.Helper()
	return NewRenderer(NewBasemapFetcher(srvURL, "png"), 1024, 64)
}

func TestRenderer_Render(t *testing.T) {
	srv := tileServer(t, nil)
	defer srv.Close()

	bounds, err := geo.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	require.NoError(t, err)

	c := &overpass.Collection{
		Points: []overpass.Feature{{
			ID:   1,
			Kind: overpass.KindNode,
			Geom: geom.NewPointFlat(geom.XY, []float64{3.38, 6.52}).SetSRID(4326),
			Tags: map[string]string{"amenity": "hospital"},
		}},
		Lines:         []overpass.Feature{},
		Polygons:      []overpass.Feature{},
		MultiPolygons: []overpass.Feature{},
		Bounds:        bounds,
	}

	style := DefaultStyle()
	style.PointRadius = 6
	style.FillOpacity = 1

	img, err := testRenderer(t, srv.URL).Render(context.Background(), bounds, c, style)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Positive(t, img.Bounds().Dx())
	assert.Positive(t, img.Bounds().Dy())
}

func TestRenderer_RenderInvalidStyle(t *testing.T) {
	srv := tileServer(t, nil)
	defer srv.Close()

	bounds, _ := geo.NewBoundingBox(0, 0, 1, 1)
	bad := DefaultStyle()
	bad.FillColor = "chartreuse"

	_, err := testRenderer(t, srv.URL).Render(context.Background(), bounds, nil, bad)
	assert.Error(t, err)
}

func TestRenderer_RenderInvalidBounds(t *testing.T) {
	srv := tileServer(t, nil)
	defer srv.Close()

	_, err := testRenderer(t, srv.URL).Render(context.Background(),
		geo.BoundingBox{South: 5, North: 0, West: 0, East: 1}, nil, DefaultStyle())
	assert.Error(t, err)
}

func TestRenderer_RenderAntimeridianBounds(t *testing.T) {
	srv := tileServer(t, nil)
	defer srv.Close()

	// A Fiji-style box that crosses the dateline is rejected up front rather
	// than silently producing an empty canvas.
	bounds, err := geo.NewAntimeridianBox(-20, 177, -15, -178)
	require.NoError(t, err)

	_, err = testRenderer(t, srv.URL).Render(context.Background(), bounds, nil, DefaultStyle())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "antimeridian")
}

func TestDrawCollection_MarksPixels(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 2*TileSize, 2*TileSize))
	tr := rangeAt(mustBounds(t), 10)
	proj := projection{tr: tr}

	// A polygon covering a chunk of the box center.
	center := mustBounds(t)
	lat, lon := center.Center()
	d := 0.02
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		lon - d, lat - d, lon + d, lat - d, lon + d, lat + d, lon - d, lat + d, lon - d, lat - d,
	}, []int{10}).SetSRID(4326)

	c := &overpass.Collection{
		Points: []overpass.Feature{}, Lines: []overpass.Feature{},
		Polygons:      []overpass.Feature{{ID: 1, Kind: overpass.KindWay, Geom: poly, Tags: map[string]string{}}},
		MultiPolygons: []overpass.Feature{},
	}

	style := DefaultStyle()
	style.FillOpacity = 1
	drawCollection(dst, proj, c, style)

	px, py := proj.pixel(lat, lon)
	got := dst.RGBAAt(int(px), int(py))
	want, _ := parseHexColor(style.FillColor)
	assert.Equal(t, want.R, got.R)
	assert.NotEqual(t, color.RGBA{}, got, "polygon center must be painted")
}

func mustBounds(t *testing.T) geo.BoundingBox {
	t.Helper()
	b, err := geo.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	require.NoError(t, err)
	return b
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	require.NoError(t, EncodePNG(&buf, img))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}

func TestTileServerURLShape(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		tile := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
		var buf bytes.Buffer
		_ = png.Encode(&buf, tile)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := NewBasemapFetcher(srv.URL, "png", WithTileCache(0, 0))
	_, err := f.fetchTile(context.Background(), 10, 521, 493)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/%d/%d/%d.png", 10, 521, 493), gotPath)
}
