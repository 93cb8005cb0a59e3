// Package nominatim resolves human-readable place names into geographic
// bounding boxes via the Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/geoatlas/poimap/internal/resilience"
	"github.com/geoatlas/poimap/pkg/geo"
)

// DefaultEndpoint is the public Nominatim instance.
const DefaultEndpoint = "https://nominatim.openstreetmap.org"

// Policy decides what to do when a name resolves to multiple candidates.
type Policy int

const (
	// PolicyFirst takes the highest-ranked candidate. Nominatim orders
	// results by importance, so this matches its own disambiguation.
	PolicyFirst Policy = iota

	// PolicyStrict fails with NotFoundError unless exactly one candidate
	// matched.
	PolicyStrict
)

// Resolver resolves place names to bounding boxes.
type Resolver interface {
	// Resolve returns the bounding box for a place name. One blocking
	// network call per uncached name; no internal retries.
	Resolve(ctx context.Context, place string) (geo.BoundingBox, error)

	// Candidates returns every candidate region for a place name, in the
	// service's ranking order.
	Candidates(ctx context.Context, place string) ([]Place, error)
}

// Option configures the resolver.
type Option func(*resolver)

// WithEndpoint points the resolver at a different Nominatim instance.
func WithEndpoint(endpoint string) Option {
	return func(r *resolver) {
		r.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *resolver) {
		r.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. The public instance's
// usage policy caps at 1 req/s, which is the default.
func WithRateLimit(rps float64) Option {
	return func(r *resolver) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithUserAgent overrides the User-Agent header, required by the public
// instance's usage policy.
func WithUserAgent(ua string) Option {
	return func(r *resolver) {
		r.userAgent = ua
	}
}

// WithPolicy sets the disambiguation policy.
func WithPolicy(p Policy) Option {
	return func(r *resolver) {
		r.policy = p
	}
}

// WithCache attaches a resolution cache consulted before the network.
func WithCache(c *Cache) Option {
	return func(r *resolver) {
		r.cache = c
	}
}

type resolver struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	policy     Policy
	cache      *Cache
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...Option) Resolver {
	r := &resolver{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		userAgent:  "poimap/1.0",
		policy:     PolicyFirst,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *resolver) Resolve(ctx context.Context, place string) (geo.BoundingBox, error) {
	key := normalizePlace(place)
	if key == "" {
		return geo.BoundingBox{}, eris.New("nominatim: empty place name")
	}

	if r.cache != nil {
		if hit, ok := r.cache.Get(ctx, key); ok {
			if !hit.Matched {
				return geo.BoundingBox{}, &NotFoundError{Place: place}
			}
			return hit.Bounds, nil
		}
	}

	places, err := r.search(ctx, place)
	if err != nil {
		return geo.BoundingBox{}, err
	}

	var bounds geo.BoundingBox
	var matched bool
	switch {
	case len(places) == 0:
		// cache the miss below
	case r.policy == PolicyStrict && len(places) > 1:
		return geo.BoundingBox{}, &NotFoundError{Place: place, Candidates: len(places)}
	default:
		bounds = places[0].Bounds
		matched = true
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, Resolution{Bounds: bounds, Matched: matched}); err != nil {
			zap.L().Warn("nominatim: cache write failed", zap.Error(err))
		}
	}

	if !matched {
		return geo.BoundingBox{}, &NotFoundError{Place: place}
	}
	return bounds, nil
}

func (r *resolver) Candidates(ctx context.Context, place string) ([]Place, error) {
	return r.search(ctx, place)
}

func (r *resolver) search(ctx context.Context, place string) ([]Place, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit")
	}

	params := url.Values{
		"q":      {place},
		"format": {"jsonv2"},
		"limit":  {"10"},
	}
	reqURL := r.endpoint + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "nominatim: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, resilience.NewTransientError(
			eris.Errorf("nominatim: service returned status %d", resp.StatusCode),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("nominatim: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "nominatim: read body"), 0)
	}

	var wire []wirePlace
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, eris.Wrap(err, "nominatim: parse response")
	}

	places := make([]Place, 0, len(wire))
	for _, wp := range wire {
		p, err := wp.toPlace()
		if err != nil {
			zap.L().Debug("nominatim: skipping malformed candidate",
				zap.String("display_name", wp.DisplayName), zap.Error(err))
			continue
		}
		places = append(places, p)
	}

	zap.L().Debug("nominatim: resolved place",
		zap.String("place", place), zap.Int("candidates", len(places)))
	return places, nil
}

// normalizePlace produces the canonical cache key form of a place name.
func normalizePlace(place string) string {
	return strings.Join(strings.Fields(strings.ToLower(place)), " ")
}
