package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/geoatlas/poimap/internal/render"
	geopkg "github.com/geoatlas/poimap/pkg/geo"
	"github.com/geoatlas/poimap/pkg/nominatim"
	"github.com/geoatlas/poimap/pkg/overpass"
)

type stubOverpass struct {
	coll *overpass.Collection
	err  error
}

func (s *stubOverpass) Execute(_ context.Context, q overpass.Query, _ overpass.Format) (*overpass.Collection, error) {
	if s.err != nil {
		return nil, s.err
	}
	c := *s.coll
	c.Bounds = q.Bounds()
	return &c, nil
}

func testDeps(coll *overpass.Collection, execErr error) *serverDeps {
	bounds, _ := geopkg.NewBoundingBox(6.39, 3.14, 6.70, 3.62)
	return &serverDeps{
		resolver: &stubResolver{bounds: bounds},
		client:   &stubOverpass{coll: coll, err: execErr},
	}
}

func emptyCollection() *overpass.Collection {
	return &overpass.Collection{
		Points:        []overpass.Feature{},
		Lines:         []overpass.Feature{},
		Polygons:      []overpass.Feature{},
		MultiPolygons: []overpass.Feature{},
	}
}

func TestRouter_Health(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Resolve(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/resolve?place=Lagos", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Place string             `json:"place"`
		BBox  map[string]float64 `json:"bbox"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Lagos", body.Place)
	assert.InDelta(t, 6.39, body.BBox["south"], 1e-9)
	assert.InDelta(t, 3.62, body.BBox["east"], 1e-9)
}

func TestRouter_ResolveMissingPlace(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/resolve", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_ResolveNotFound(t *testing.T) {
	testConfig(t)
	deps := testDeps(emptyCollection(), nil)
	deps.resolver = &stubResolver{err: &nominatim.NotFoundError{Place: "Atlantis"}}
	router := buildRouter(deps, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/resolve?place=Atlantis", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Query(t *testing.T) {
	testConfig(t)
	coll := emptyCollection()
	coll.Points = []overpass.Feature{{
		ID:   7,
		Kind: overpass.KindNode,
		Geom: geom.NewPointFlat(geom.XY, []float64{3.38, 6.52}).SetSRID(4326),
		Tags: map[string]string{"amenity": "hospital"},
	}}
	router := buildRouter(testDeps(coll, nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/query?place=Lagos&tag=amenity%3Dhospital", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 1)
}

func TestRouter_QueryWithin(t *testing.T) {
	testConfig(t)
	coll := emptyCollection()
	coll.Points = []overpass.Feature{
		{ID: 7, Kind: overpass.KindNode,
			Geom: geom.NewPointFlat(geom.XY, []float64{3.38, 6.52}).SetSRID(4326),
			Tags: map[string]string{"amenity": "hospital"}},
		{ID: 8, Kind: overpass.KindNode,
			Geom: geom.NewPointFlat(geom.XY, []float64{3.60, 6.40}).SetSRID(4326),
			Tags: map[string]string{"amenity": "hospital"}},
	}
	router := buildRouter(testDeps(coll, nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/query?place=Lagos&tag=amenity%3Dhospital&within=6.5,3.3,6.6,3.4", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var fc struct {
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "node/7", fc.Features[0].ID)
}

func TestRouter_QueryBadWithin(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/query?place=Lagos&within=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_QueryInvalidBBox(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/query?bbox=91,0,95,1", nil))
	assert.NotEqual(t, http.StatusOK, rr.Code)
}

func TestRouter_QueryUpstreamDown(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(nil, &overpass.TransportError{StatusCode: 504}), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/query?place=Lagos", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_QueryPost(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	body := strings.NewReader(`{"bbox":"6.39,3.14,6.70,3.62","tags":["amenity=hospital"]}`)
	req := httptest.NewRequest(http.MethodPost, "/query", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
}

func TestRouter_QueryPostBadBody(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_TileProxy(t *testing.T) {
	testConfig(t)

	tileBytes := []byte("\x89PNG-fake-tile")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(tileBytes)
	}))
	defer upstream.Close()

	deps := testDeps(emptyCollection(), nil)
	deps.fetcher = render.NewBasemapFetcher(upstream.URL, "png")
	router := buildRouter(deps, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tiles/10/521/493.png", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, tileBytes, rr.Body.Bytes())
}

func TestRouter_TileProxyBadZoom(t *testing.T) {
	testConfig(t)
	deps := testDeps(emptyCollection(), nil)
	deps.fetcher = render.NewBasemapFetcher("http://localhost:0", "png")
	router := buildRouter(deps, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tiles/99/0/0.png", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRouter_CORSHeader(t *testing.T) {
	testConfig(t)
	router := buildRouter(testDeps(emptyCollection(), nil), []string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
