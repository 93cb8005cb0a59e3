package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoatlas/poimap/internal/config"
	"github.com/geoatlas/poimap/internal/render"
	"github.com/geoatlas/poimap/internal/resilience"
	"github.com/geoatlas/poimap/internal/spatial"
	"github.com/geoatlas/poimap/pkg/geo"
	"github.com/geoatlas/poimap/pkg/nominatim"
	"github.com/geoatlas/poimap/pkg/overpass"
	"github.com/geoatlas/poimap/pkg/taginfo"
)

// newResolver wires the place-name resolver with its SQLite cache. The
// returned cache must be closed by the caller; it is nil if opening failed
// (the resolver then just skips caching).
func newResolver() (nominatim.Resolver, *nominatim.Cache) {
	opts := []nominatim.Option{
		nominatim.WithEndpoint(cfg.Nominatim.Endpoint),
		nominatim.WithUserAgent(cfg.Nominatim.UserAgent),
		nominatim.WithRateLimit(cfg.Nominatim.RateLimit),
	}
	if cfg.Nominatim.Policy == "strict" {
		opts = append(opts, nominatim.WithPolicy(nominatim.PolicyStrict))
	}

	var cache *nominatim.Cache
	if cfg.Cache.Path != "" {
		c, err := nominatim.NewCache(cfg.Cache.Path,
			time.Duration(cfg.Cache.TTLHours)*time.Hour, cfg.Cache.MemEntries)
		if err != nil {
			zap.L().Warn("resolution cache unavailable, continuing without",
				zap.String("path", cfg.Cache.Path), zap.Error(err))
		} else {
			cache = c
			opts = append(opts, nominatim.WithCache(cache))
		}
	}

	return nominatim.NewResolver(opts...), cache
}

func newOverpassClient() overpass.Client {
	return overpass.NewClient(
		overpass.WithEndpoint(cfg.Overpass.Endpoint),
		overpass.WithUserAgent(cfg.Overpass.UserAgent),
		overpass.WithRateLimit(cfg.Overpass.RateLimit),
	)
}

// newVocabulary returns the filter-key vocabulary, or nil when validation is
// disabled. With snapshot_keys > 0 it pulls a live snapshot from taginfo,
// falling back to the built-in table on failure.
func newVocabulary(ctx context.Context) overpass.Vocabulary {
	if !cfg.Taginfo.Validate {
		return nil
	}
	if cfg.Taginfo.SnapshotKeys > 0 {
		client := taginfo.NewClient(taginfo.WithEndpoint(cfg.Taginfo.Endpoint))
		snap, err := client.Snapshot(ctx, cfg.Taginfo.SnapshotKeys)
		if err != nil {
			zap.L().Warn("taginfo snapshot failed, using built-in vocabulary", zap.Error(err))
			return taginfo.NewStatic()
		}
		return snap
	}
	return taginfo.NewStatic()
}

func newBasemapFetcher() *render.BasemapFetcher {
	return render.NewBasemapFetcher(cfg.Render.TileURL, cfg.Render.TileFormat,
		render.WithTileUserAgent(cfg.Render.UserAgent),
		render.WithConcurrency(cfg.Render.Concurrency),
		render.WithTileCache(cfg.Render.CacheEntries,
			time.Duration(cfg.Render.CacheTTLMins)*time.Minute),
	)
}

func newRenderer(fetcher *render.BasemapFetcher) *render.Renderer {
	return render.NewRenderer(fetcher, cfg.Render.Width, cfg.Render.MaxTiles)
}

// retryConfig builds the retry policy for remote calls. Overpass transport
// failures retry alongside resilience's transient classification.
func retryConfig(c *config.Config, operation string) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if c.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = c.Retry.MaxAttempts
	}
	if d, err := time.ParseDuration(c.Retry.InitialBackoff); err == nil && d > 0 {
		rc.InitialBackoff = d
	}
	if c.Retry.JitterFraction >= 0 {
		rc.JitterFraction = c.Retry.JitterFraction
	}
	rc.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) || overpass.IsRetryable(err)
	}
	rc.OnRetry = resilience.RetryLogger(operation)
	return rc
}

// resolveBounds produces the query bounding box from either an explicit
// --bbox value or a --place name, exactly one of which must be set.
func resolveBounds(ctx context.Context, resolver nominatim.Resolver, place, bbox string) (geo.BoundingBox, error) {
	switch {
	case place != "" && bbox != "":
		return geo.BoundingBox{}, eris.New("--place and --bbox are mutually exclusive")
	case bbox != "":
		return parseBBox(bbox)
	case place != "":
		return resilience.DoVal(ctx, retryConfig(cfg, "resolve"),
			func(ctx context.Context) (geo.BoundingBox, error) {
				return resolver.Resolve(ctx, place)
			})
	default:
		return geo.BoundingBox{}, eris.New("either --place or --bbox is required")
	}
}

// parseBBox parses "south,west,north,east" in decimal degrees.
func parseBBox(s string) (geo.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, eris.Errorf("bbox %q: want south,west,north,east", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, eris.Wrapf(err, "bbox coordinate %q", p)
		}
		vals[i] = v
	}
	return geo.NewBoundingBox(vals[0], vals[1], vals[2], vals[3])
}

// parseFilters converts repeated --tag values into query filters.
func parseFilters(tags []string) ([]overpass.Filter, error) {
	filters := make([]overpass.Filter, 0, len(tags))
	for _, t := range tags {
		f, err := overpass.ParseFilter(t)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// parseClasses converts a comma list like "node,way" into a class mask.
// Empty input means all classes.
func parseClasses(s string) (overpass.ElementClass, error) {
	if strings.TrimSpace(s) == "" {
		return overpass.ClassAll, nil
	}
	var mask overpass.ElementClass
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "node":
			mask |= overpass.ClassNode
		case "way":
			mask |= overpass.ClassWay
		case "relation":
			mask |= overpass.ClassRelation
		default:
			return 0, eris.Errorf("unknown element class %q", part)
		}
	}
	return mask, nil
}

// narrowCollection applies local --within / --near narrowing to a query
// result through an R-tree index, without re-issuing remote queries. Both
// filters may be combined; --within applies first. Response order within each
// geometry class is preserved.
func narrowCollection(c *overpass.Collection, within, near string) (*overpass.Collection, error) {
	if within == "" && near == "" {
		return c, nil
	}

	if within != "" {
		box, err := parseBBox(within)
		if err != nil {
			return nil, err
		}
		idx, err := spatial.NewIndex(c)
		if err != nil {
			return nil, err
		}
		c = keepFeatures(c, idx.Within(box))
	}

	if near != "" {
		lat, lon, n, err := parseNear(near)
		if err != nil {
			return nil, err
		}
		idx, err := spatial.NewIndex(c)
		if err != nil {
			return nil, err
		}
		c = keepFeatures(c, idx.Nearest(lat, lon, n))
	}

	return c, nil
}

// parseNear parses "lat,lon" or "lat,lon,count".
func parseNear(s string) (lat, lon float64, n int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, eris.Errorf("near %q: want lat,lon[,count]", s)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, 0, eris.Wrapf(err, "near latitude %q", parts[0])
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, 0, eris.Wrapf(err, "near longitude %q", parts[1])
	}
	n = 10
	if len(parts) == 3 {
		if n, err = strconv.Atoi(strings.TrimSpace(parts[2])); err != nil || n <= 0 {
			return 0, 0, 0, eris.Errorf("near count %q must be a positive integer", parts[2])
		}
	}
	return lat, lon, n, nil
}

type featureKey struct {
	kind overpass.ElementKind
	id   int64
}

// keepFeatures filters every class of c down to the selected features,
// preserving the collection's stored order and provenance fields.
func keepFeatures(c *overpass.Collection, selected []overpass.Feature) *overpass.Collection {
	keep := make(map[featureKey]bool, len(selected))
	for _, f := range selected {
		keep[featureKey{f.Kind, f.ID}] = true
	}

	filter := func(in []overpass.Feature) []overpass.Feature {
		out := make([]overpass.Feature, 0, len(in))
		for _, f := range in {
			if keep[featureKey{f.Kind, f.ID}] {
				out = append(out, f)
			}
		}
		return out
	}

	out := *c
	out.Points = filter(c.Points)
	out.Lines = filter(c.Lines)
	out.Polygons = filter(c.Polygons)
	out.MultiPolygons = filter(c.MultiPolygons)
	return &out
}

// executeQuery runs one Overpass query with the configured retry policy.
func executeQuery(ctx context.Context, client overpass.Client, q overpass.Query, format overpass.Format) (*overpass.Collection, error) {
	return resilience.DoVal(ctx, retryConfig(cfg, "query"),
		func(ctx context.Context) (*overpass.Collection, error) {
			return client.Execute(ctx, q, format)
		})
}
