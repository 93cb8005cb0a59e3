package nominatim

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/geoatlas/poimap/internal/resilience"
)

const fixtureLagos = `[
	{
		"place_id": 234471236,
		"osm_type": "relation",
		"osm_id": 3718182,
		"display_name": "Lagos, Lagos State, Nigeria",
		"category": "boundary",
		"type": "administrative",
		"importance": 0.72,
		"boundingbox": ["6.3932605", "6.7007041", "3.1438834", "3.6216129"]
	},
	{
		"place_id": 108928798,
		"osm_type": "relation",
		"osm_id": 5488668,
		"display_name": "Lagos, Faro, Portugal",
		"category": "boundary",
		"type": "administrative",
		"importance": 0.65,
		"boundingbox": ["37.0806187", "37.1693511", "-8.7391413", "-8.5922377"]
	}
]`

func newTestResolver(srvURL string, opts ...Option) Resolver {
	base := []Option{
		WithEndpoint(srvURL),
		WithRateLimit(float64(rate.Inf)),
	}
	return NewResolver(append(base, opts...)...)
}

func TestResolve_FirstPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Lagos", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, fixtureLagos)
	}))
	defer srv.Close()

	bounds, err := newTestResolver(srv.URL).Resolve(context.Background(), "Lagos")
	require.NoError(t, err)

	// The Nigerian Lagos ranks first and sits in known real-world bounds.
	assert.InDelta(t, 6.39, bounds.South, 0.05)
	assert.InDelta(t, 6.70, bounds.North, 0.05)
	assert.InDelta(t, 3.14, bounds.West, 0.05)
	assert.InDelta(t, 3.62, bounds.East, 0.05)
}

func TestResolve_StrictPolicyAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, fixtureLagos)
	}))
	defer srv.Close()

	_, err := newTestResolver(srv.URL, WithPolicy(PolicyStrict)).Resolve(context.Background(), "Lagos")

	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, 2, nfe.Candidates)
	assert.Contains(t, nfe.Error(), "ambiguous")
}

func TestResolve_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestResolver(srv.URL).Resolve(context.Background(), "Xyzzyville")

	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Contains(t, nfe.Error(), "not found")
}

func TestResolve_ServiceUnavailableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestResolver(srv.URL).Resolve(context.Background(), "Lagos")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestResolve_EmptyPlace(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), "   ")
	assert.Error(t, err)
}

func TestCandidates_SkipsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
			{"display_name": "broken", "boundingbox": ["not-a-number", "1", "0", "1"]},
			{"display_name": "ok", "category": "place", "type": "city",
			 "boundingbox": ["6.39", "6.70", "3.14", "3.62"]}
		]`)
	}))
	defer srv.Close()

	places, err := newTestResolver(srv.URL).Candidates(context.Background(), "Lagos")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "ok", places[0].DisplayName)
}

func TestResolve_CacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, fixtureLagos)
	}))
	defer srv.Close()

	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), 0, 16)
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	r := newTestResolver(srv.URL, WithCache(cache))

	first, err := r.Resolve(context.Background(), "Lagos")
	require.NoError(t, err)

	// Different spacing and case must still hit the same cache entry.
	second, err := r.Resolve(context.Background(), "  LAGOS ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second resolve must come from cache")
}

func TestResolve_CachesMisses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), 0, 16)
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	r := newTestResolver(srv.URL, WithCache(cache))

	var nfe *NotFoundError
	_, err = r.Resolve(context.Background(), "Xyzzyville")
	require.ErrorAs(t, err, &nfe)

	_, err = r.Resolve(context.Background(), "Xyzzyville")
	require.ErrorAs(t, err, &nfe)

	assert.Equal(t, int32(1), calls.Load(), "cached miss must not re-hit the service")
}

func TestNormalizePlace(t *testing.T) {
	assert.Equal(t, "lagos", normalizePlace("  LAGOS "))
	assert.Equal(t, "new york city", normalizePlace("New   York\tCity"))
	assert.Equal(t, "", normalizePlace("   "))
}
