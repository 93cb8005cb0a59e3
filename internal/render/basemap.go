package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BasemapFetcher downloads and stitches raster tiles from a slippy-map tile
// server (OSM or compatible), with an in-memory TTL cache.
type BasemapFetcher struct {
	baseURL     string
	format      string
	userAgent   string
	client      *http.Client
	cache       *expirable.LRU[string, []byte]
	concurrency int
}

// FetcherOption configures the basemap fetcher.
type FetcherOption func(*BasemapFetcher)

// WithTileHTTPClient sets a custom HTTP client.
func WithTileHTTPClient(hc *http.Client) FetcherOption {
	return func(f *BasemapFetcher) {
		f.client = hc
	}
}

// WithTileUserAgent overrides the User-Agent header; OSM tile policy
// requires an identifying agent.
func WithTileUserAgent(ua string) FetcherOption {
	return func(f *BasemapFetcher) {
		f.userAgent = ua
	}
}

// WithTileCache sizes the tile cache. entries <= 0 disables caching.
func WithTileCache(entries int, ttl time.Duration) FetcherOption {
	return func(f *BasemapFetcher) {
		if entries <= 0 {
			f.cache = nil
			return
		}
		f.cache = expirable.NewLRU[string, []byte](entries, nil, ttl)
	}
}

// WithConcurrency bounds parallel tile downloads.
func WithConcurrency(n int) FetcherOption {
	return func(f *BasemapFetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// NewBasemapFetcher creates a fetcher for the given tile server base URL and
// image format ("png" or "jpg").
func NewBasemapFetcher(baseURL, format string, opts ...FetcherOption) *BasemapFetcher {
	f := &BasemapFetcher{
		baseURL:     baseURL,
		format:      format,
		userAgent:   "poimap/1.0",
		client:      &http.Client{Timeout: 30 * time.Second},
		cache:       expirable.NewLRU[string, []byte](512, nil, time.Hour),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchRegion downloads every tile of the range and composites them into one
// RGBA image. Tiles download concurrently; the first failure aborts the rest.
func (f *BasemapFetcher) FetchRegion(ctx context.Context, tr tileRange) (*image.RGBA, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, tr.cols()*TileSize, tr.rows()*TileSize))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for ty := tr.minY; ty <= tr.maxY; ty++ {
		for tx := tr.minX; tx <= tr.maxX; tx++ {
			g.Go(func() error {
				img, err := f.fetchTile(gctx, tr.zoom, tx, ty)
				if err != nil {
					return err
				}
				origin := image.Pt((tx-tr.minX)*TileSize, (ty-tr.minY)*TileSize)
				draw.Draw(canvas, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(TileSize, TileSize))},
					img, img.Bounds().Min, draw.Src)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Debug("render: basemap stitched",
		zap.Int("zoom", tr.zoom), zap.Int("tiles", tr.count()),
		zap.Int("width", canvas.Rect.Dx()), zap.Int("height", canvas.Rect.Dy()))
	return canvas, nil
}

func (f *BasemapFetcher) fetchTile(ctx context.Context, z, x, y int) (image.Image, error) {
	data, err := f.Tile(ctx, z, x, y)
	if err != nil {
		return nil, err
	}
	return f.decode(data)
}

// Tile returns the raw encoded bytes of one tile, from cache when possible.
func (f *BasemapFetcher) Tile(ctx context.Context, z, x, y int) ([]byte, error) {
	if z < 0 || z > maxZoom {
		return nil, eris.Errorf("render: zoom %d out of range", z)
	}

	key := fmt.Sprintf("%d/%d/%d", z, x, y)
	if f.cache != nil {
		if data, ok := f.cache.Get(key); ok {
			return data, nil
		}
	}

	url := fmt.Sprintf("%s/%d/%d/%d.%s", f.baseURL, z, x, y, f.format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "render: build tile request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "render: fetch tile %s", key)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("render: tile server returned %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "render: read tile %s", key)
	}

	if f.cache != nil {
		f.cache.Add(key, data)
	}
	return data, nil
}

func (f *BasemapFetcher) decode(data []byte) (image.Image, error) {
	switch f.format {
	case "jpg", "jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		return img, eris.Wrap(err, "render: decode jpeg tile")
	default:
		img, err := png.Decode(bytes.NewReader(data))
		return img, eris.Wrap(err, "render: decode png tile")
	}
}
