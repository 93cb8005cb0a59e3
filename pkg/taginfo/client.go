package taginfo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the public taginfo instance.
const DefaultEndpoint = "https://taginfo.openstreetmap.org"

// KeyValue is one observed value of a tag key with its global usage count.
type KeyValue struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Client queries the taginfo API for tag keys and their values.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	values     *lru.Cache[string, []KeyValue]
}

// ClientOption configures the taginfo client.
type ClientOption func(*Client)

// WithEndpoint points the client at a different taginfo instance.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a taginfo client.
func NewClient(opts ...ClientOption) *Client {
	values, _ := lru.New[string, []KeyValue](128)
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(2, 1),
		userAgent:  "poimap/1.0",
		values:     values,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireKeys struct {
	Data []struct {
		Key      string `json:"key"`
		CountAll int64  `json:"count_all"`
	} `json:"data"`
}

type wireValues struct {
	Data []KeyValue `json:"data"`
}

// Keys returns the most-used tag keys, ranked by global usage.
func (c *Client) Keys(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{
		"page":      {"1"},
		"rp":        {strconv.Itoa(limit)},
		"sortname":  {"count_all"},
		"sortorder": {"desc"},
	}

	var wire wireKeys
	if err := c.get(ctx, "/api/4/keys/all", params, &wire); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(wire.Data))
	for _, d := range wire.Data {
		keys = append(keys, d.Key)
	}
	return keys, nil
}

// KeyValues returns the most common values of a tag key. Results are
// memoized per key for the client's lifetime.
func (c *Client) KeyValues(ctx context.Context, key string, limit int) ([]KeyValue, error) {
	if cached, ok := c.values.Get(key); ok {
		return cached, nil
	}

	if limit <= 0 {
		limit = 50
	}
	params := url.Values{
		"key":       {key},
		"page":      {"1"},
		"rp":        {strconv.Itoa(limit)},
		"sortname":  {"count"},
		"sortorder": {"desc"},
	}

	var wire wireValues
	if err := c.get(ctx, "/api/4/key/values", params, &wire); err != nil {
		return nil, err
	}

	c.values.Add(key, wire.Data)
	return wire.Data, nil
}

// Snapshot fetches the top keys and freezes them into a Static vocabulary
// suitable for overpass.WithVocabulary.
func (c *Client) Snapshot(ctx context.Context, limit int) (*Static, error) {
	keys, err := c.Keys(ctx, limit)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("taginfo: vocabulary snapshot", zap.Int("keys", len(keys)))
	return NewStatic(keys...), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "taginfo: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "taginfo: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "taginfo: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("taginfo: unexpected status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "taginfo: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "taginfo: parse response")
	}
	return nil
}
