package render

import (
	"context"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geoatlas/poimap/pkg/geo"
	"github.com/geoatlas/poimap/pkg/overpass"
)

// Renderer composes basemap tiles and query-result overlays into map images.
type Renderer struct {
	fetcher  *BasemapFetcher
	width    int
	maxTiles int
}

// NewRenderer creates a renderer targeting roughly width output pixels,
// downloading at most maxTiles basemap tiles per image.
func NewRenderer(fetcher *BasemapFetcher, width, maxTiles int) *Renderer {
	if width <= 0 {
		width = 1024
	}
	if maxTiles <= 0 {
		maxTiles = 64
	}
	return &Renderer{fetcher: fetcher, width: width, maxTiles: maxTiles}
}

// Render fetches the basemap covering bounds, overlays the collection with
// the given style, and returns the image cropped to the bounding box. The
// overlay itself is pure; only tile fetching touches the network.
func (r *Renderer) Render(ctx context.Context, bounds geo.BoundingBox, c *overpass.Collection, style Style) (image.Image, error) {
	if err := bounds.Validate(); err != nil {
		return nil, eris.Wrap(err, "render: bounds")
	}
	// Tile ranges are computed west to east in one pass and cannot span the
	// dateline seam without producing an empty canvas.
	if bounds.WrapsAntimeridian() {
		return nil, eris.New("render: bounding boxes crossing the antimeridian are not supported")
	}
	if err := style.Validate(); err != nil {
		return nil, err
	}

	tr := zoomFor(bounds, r.width, r.maxTiles)
	canvas, err := r.fetcher.FetchRegion(ctx, tr)
	if err != nil {
		return nil, err
	}

	proj := projection{tr: tr}
	if c != nil {
		drawCollection(canvas, proj, c, style)
	}

	cropped := crop(canvas, proj, bounds)
	zap.L().Info("render: map composed",
		zap.String("bbox", bounds.String()),
		zap.Int("zoom", tr.zoom),
		zap.Int("features", featureCount(c)),
		zap.Int("width", cropped.Bounds().Dx()),
		zap.Int("height", cropped.Bounds().Dy()),
	)
	return cropped, nil
}

// crop cuts the stitched canvas down to the pixel rectangle of bounds.
func crop(canvas *image.RGBA, proj projection, bounds geo.BoundingBox) image.Image {
	x0, y0 := proj.pixel(bounds.North, bounds.West)
	x1, y1 := proj.pixel(bounds.South, bounds.East)

	rect := image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	).Intersect(canvas.Bounds())
	if rect.Empty() {
		return canvas
	}
	return canvas.SubImage(rect)
}

func featureCount(c *overpass.Collection) int {
	if c == nil {
		return 0
	}
	return c.Count()
}

// EncodePNG writes the rendered image as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return eris.Wrap(png.Encode(w, img), "render: encode png")
}
