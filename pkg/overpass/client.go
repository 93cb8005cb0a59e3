package overpass

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the main public Overpass API interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Client executes feature queries against an Overpass API endpoint.
type Client interface {
	// Execute runs one query and materializes the response in the
	// requested format. Each call issues exactly one blocking network
	// request; wrap with a retry policy if needed (queries are read-only
	// and idempotent, so TransportError results are safe to retry).
	Execute(ctx context.Context, q Query, format Format) (*Collection, error)
}

// Option configures the client.
type Option func(*client)

// WithEndpoint points the client at a different interpreter URL.
func WithEndpoint(endpoint string) Option {
	return func(c *client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the client-side requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithUserAgent overrides the User-Agent header. Public Overpass instances
// require an identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

type client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient creates an Overpass client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(1, 1), // public instance etiquette
		userAgent:  "poimap/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Execute(ctx context.Context, q Query, format Format) (*Collection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	ql := q.QL(format)
	reqID := uuid.NewString()
	log := zap.L().With(zap.String("request_id", reqID))
	log.Debug("overpass: executing query",
		zap.String("bbox", q.Bounds().String()),
		zap.Int("filters", len(q.Filters())),
		zap.String("format", format.String()),
	)

	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "read body")}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusGatewayTimeout,
		resp.StatusCode >= 500:
		return nil, &TransportError{
			Err:        eris.Errorf("service unavailable: %s", http.StatusText(resp.StatusCode)),
			StatusCode: resp.StatusCode,
		}
	default:
		return nil, &ServiceError{StatusCode: resp.StatusCode, Remark: extractRemark(body)}
	}

	var coll *Collection
	if format == FormatTopology {
		coll, err = parseTopology(body, q)
	} else {
		coll, err = parseSimple(body, q)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			log.Warn("overpass: undecodable response", zap.Error(pe.Err), zap.String("body", pe.Snippet))
		}
		return nil, err
	}

	log.Debug("overpass: query complete",
		zap.Int("points", len(coll.Points)),
		zap.Int("lines", len(coll.Lines)),
		zap.Int("polygons", len(coll.Polygons)),
		zap.Int("multipolygons", len(coll.MultiPolygons)),
	)
	return coll, nil
}

// extractRemark pulls the service's rejection reason out of an error body,
// which Overpass serves as HTML for bad requests.
func extractRemark(body []byte) string {
	s := string(body)
	if i := strings.Index(s, "Error"); i >= 0 {
		s = s[i:]
		if j := strings.IndexAny(s, "<\n"); j > 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	return snippet(body)
}
